// Command memload replays concurrent memory writes against a running
// memoryd and checks that every write is visible in the user's timeline,
// stats and (optionally) watch stream.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/memoryd/internal/memory"
	"github.com/ent0n29/memoryd/internal/protocol"
)

type options struct {
	baseURL string
	userID  string
	llm     string
	count   int
	writers int
	watch   bool
	timeout time.Duration
	verbose bool
}

type storeRequest struct {
	UserID  string `json:"user_id"`
	LLM     string `json:"llm"`
	Content string `json:"content"`
}

type statsResponse struct {
	UserID string `json:"user_id"`
	memory.Stats
}

type report struct {
	Stored    int
	Failed    int
	Total     int
	Watched   int
	Latencies []time.Duration
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "memload: %v\n", err)
		os.Exit(2)
	}
	rep, err := run(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "memload: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(rep.summary())
}

func parseFlags(args []string) (options, error) {
	var cfg options
	fs := flag.NewFlagSet("memload", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8000", "memoryd base URL")
	fs.StringVar(&cfg.userID, "user-id", "", "user_id to write under (default: random)")
	fs.StringVar(&cfg.llm, "llm", "memload", "llm name recorded on each item")
	fs.IntVar(&cfg.count, "count", 200, "number of items to store")
	fs.IntVar(&cfg.writers, "writers", 16, "concurrent writers")
	fs.BoolVar(&cfg.watch, "watch", true, "also verify the watch stream delivers every item")
	fs.DurationVar(&cfg.timeout, "timeout", 2*time.Minute, "overall deadline")
	fs.BoolVar(&cfg.verbose, "verbose", false, "print progress")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.count <= 0 {
		return options{}, fmt.Errorf("count must be > 0")
	}
	if cfg.writers <= 0 {
		return options{}, fmt.Errorf("writers must be > 0")
	}
	if cfg.timeout <= 0 {
		return options{}, fmt.Errorf("timeout must be > 0")
	}
	if strings.TrimSpace(cfg.userID) == "" {
		cfg.userID = "memload-" + uuid.NewString()[:8]
	}
	return cfg, nil
}

func run(ctx context.Context, cfg options) (report, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()
	client := &http.Client{Timeout: 30 * time.Second}

	before, err := fetchStats(ctx, client, cfg)
	if err != nil {
		return report{}, fmt.Errorf("stats before: %w", err)
	}

	var (
		watched   int
		watchDone chan struct{}
		watchMu   sync.Mutex
	)
	if cfg.watch {
		wsURL, err := wsURLForUser(cfg.baseURL, cfg.userID)
		if err != nil {
			return report{}, fmt.Errorf("build ws URL: %w", err)
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			return report{}, fmt.Errorf("open websocket: %w", err)
		}
		defer conn.Close()
		var hello protocol.SystemEvent
		if err := conn.ReadJSON(&hello); err != nil || hello.Code != "subscribed" {
			return report{}, fmt.Errorf("watch handshake failed: code=%q err=%v", hello.Code, err)
		}

		watchDone = make(chan struct{})
		go func() {
			defer close(watchDone)
			for {
				var ev protocol.MemoryStored
				if err := conn.ReadJSON(&ev); err != nil {
					return
				}
				if ev.Type != protocol.TypeMemoryStored {
					continue
				}
				watchMu.Lock()
				watched++
				n := watched
				watchMu.Unlock()
				if n >= cfg.count {
					return
				}
			}
		}()
	}

	rep := storeAll(ctx, client, cfg)

	after, err := fetchStats(ctx, client, cfg)
	if err != nil {
		return rep, fmt.Errorf("stats after: %w", err)
	}
	rep.Total = after.Total

	timeline, err := fetchTimeline(ctx, client, cfg)
	if err != nil {
		return rep, fmt.Errorf("read timeline: %w", err)
	}
	if len(timeline) != after.Total {
		return rep, fmt.Errorf("timeline has %d items but stats total is %d", len(timeline), after.Total)
	}
	for i := 1; i < len(timeline); i++ {
		if timeline[i].Timestamp.Before(timeline[i-1].Timestamp) {
			return rep, fmt.Errorf("timeline out of order at index %d", i)
		}
	}

	if watchDone != nil {
		select {
		case <-watchDone:
		case <-ctx.Done():
		}
		watchMu.Lock()
		rep.Watched = watched
		watchMu.Unlock()
	}

	if rep.Failed > 0 {
		return rep, fmt.Errorf("%d of %d writes failed", rep.Failed, cfg.count)
	}
	if want := before.Total + rep.Stored; after.Total != want {
		return rep, fmt.Errorf("stats total = %d, want %d", after.Total, want)
	}
	if cfg.watch && rep.Watched < rep.Stored {
		return rep, fmt.Errorf("watch delivered %d of %d items", rep.Watched, rep.Stored)
	}
	return rep, nil
}

func storeAll(ctx context.Context, client *http.Client, cfg options) report {
	jobs := make(chan int)
	var (
		mu  sync.Mutex
		rep report
		wg  sync.WaitGroup
	)
	for w := 0; w < cfg.writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				start := time.Now()
				err := storeOne(ctx, client, cfg, fmt.Sprintf("memload item %d", i))
				elapsed := time.Since(start)
				mu.Lock()
				if err != nil {
					rep.Failed++
					if cfg.verbose {
						fmt.Fprintf(os.Stderr, "memload: item %d failed: %v\n", i, err)
					}
				} else {
					rep.Stored++
					rep.Latencies = append(rep.Latencies, elapsed)
				}
				mu.Unlock()
			}
		}()
	}
	for i := 0; i < cfg.count; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return rep
}

func storeOne(ctx context.Context, client *http.Client, cfg options, content string) error {
	payload, err := json.Marshal(storeRequest{UserID: cfg.userID, LLM: cfg.llm, Content: content})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/memory/", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<16))
		return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}

func fetchStats(ctx context.Context, client *http.Client, cfg options) (statsResponse, error) {
	var out statsResponse
	err := getJSON(ctx, client, cfg.baseURL+"/memory/"+url.PathEscape(cfg.userID)+"/stats", &out)
	return out, err
}

func fetchTimeline(ctx context.Context, client *http.Client, cfg options) ([]memory.Item, error) {
	var out []memory.Item
	err := getJSON(ctx, client, cfg.baseURL+"/memory/"+url.PathEscape(cfg.userID), &out)
	return out, err
}

func getJSON(ctx context.Context, client *http.Client, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 64<<20))
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}

func wsURLForUser(baseURL, userID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/memory/" + userID + "/watch"
	return u.String(), nil
}

func (r report) summary() string {
	lat := append([]time.Duration(nil), r.Latencies...)
	sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })
	return fmt.Sprintf("stored=%d failed=%d total=%d watched=%d p50=%s p95=%s p99=%s",
		r.Stored, r.Failed, r.Total, r.Watched,
		percentile(lat, 0.50), percentile(lat, 0.95), percentile(lat, 0.99))
}

// percentile uses nearest-rank on an ascending slice.
func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q*float64(len(sorted))+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
