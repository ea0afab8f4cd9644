package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestRedactPIILeavesPlainTextAlone(t *testing.T) {
	out, changed := RedactPII("likes coffee")
	if changed || out != "likes coffee" {
		t.Fatalf("RedactPII() = %q, %v; want unchanged", out, changed)
	}
}

func TestLogPreview(t *testing.T) {
	if got := LogPreview("reach me at sam@example.com", 0, true); got != "reach me at [REDACTED_EMAIL]" {
		t.Fatalf("LogPreview() = %q", got)
	}
	if got := LogPreview("reach me at sam@example.com", 0, false); !strings.Contains(got, "sam@example.com") {
		t.Fatalf("LogPreview() without redaction = %q, want raw email", got)
	}
	if got := LogPreview("héllo wörld", 5, false); got != "héllo…" {
		t.Fatalf("LogPreview() = %q, want %q", got, "héllo…")
	}
}
