package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ent0n29/memoryd/internal/memory"
	"github.com/ent0n29/memoryd/internal/policy"
)

const logPreviewRunes = 48

// storeMemoryRequest uses pointers so a missing field can be told apart
// from an empty one. Empty strings are valid values.
type storeMemoryRequest struct {
	UserID  *string `json:"user_id"`
	LLM     *string `json:"llm"`
	Content *string `json:"content"`
}

func (r storeMemoryRequest) missingFields() []string {
	var missing []string
	if r.UserID == nil {
		missing = append(missing, "user_id")
	}
	if r.LLM == nil {
		missing = append(missing, "llm")
	}
	if r.Content == nil {
		missing = append(missing, "content")
	}
	return missing
}

type storeMemoryResponse struct {
	Status    string    `json:"status"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

type statsResponse struct {
	UserID string `json:"user_id"`
	memory.Stats
}

func (s *Server) handleStoreMemory(w http.ResponseWriter, r *http.Request) {
	var req storeMemoryRequest
	if err := decodeJSON(r, &req); err != nil {
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.Is(err, errEmptyBody):
			respondError(w, http.StatusUnprocessableEntity, "validation_error", "request body is required")
		case errors.As(err, &typeErr) && typeErr.Field == "":
			respondError(w, http.StatusUnprocessableEntity, "validation_error", "request body must be a JSON object")
		case errors.As(err, &typeErr):
			respondError(w, http.StatusUnprocessableEntity, "validation_error", typeErr.Field+" must be a string")
		default:
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		}
		return
	}
	if missing := req.missingFields(); len(missing) > 0 {
		respondError(w, http.StatusUnprocessableEntity, "validation_error", "missing required fields: "+strings.Join(missing, ", "))
		return
	}

	item := memory.Item{
		ID:        uuid.NewString(),
		UserID:    *req.UserID,
		LLM:       *req.LLM,
		Content:   *req.Content,
		// Microseconds so the echoed timestamp matches what postgres keeps.
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := s.store.Add(r.Context(), item); err != nil {
		log.Printf("memory store failed user=%q: %v", item.UserID, err)
		respondError(w, http.StatusInternalServerError, "store_error", "failed to store memory")
		return
	}

	if s.hub != nil {
		delivered := s.hub.Publish(item)
		if s.metrics != nil && delivered > 0 {
			s.metrics.WatchEvents.WithLabelValues("delivered").Add(float64(delivered))
		}
	}
	if s.cfg.Debug {
		log.Printf("memory stored user=%q llm=%q content=%q",
			item.UserID, item.LLM, policy.LogPreview(item.Content, logPreviewRunes, s.cfg.LogRedactPII))
	}

	respondJSON(w, http.StatusOK, storeMemoryResponse{
		Status:    "stored",
		ID:        item.ID,
		Timestamp: item.Timestamp,
	})
}

func (s *Server) handleReadMemory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	items, err := s.store.Get(r.Context(), userID)
	if err != nil {
		log.Printf("memory read failed user=%q: %v", userID, err)
		respondError(w, http.StatusInternalServerError, "store_error", "failed to read memory")
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (s *Server) handleSearchMemory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	q := r.URL.Query()
	query := q.Get("query")
	if _, ok := q["query"]; !ok {
		query = q.Get("q")
	}
	// A present-but-empty llm parameter filters on the empty model name.
	var llm *string
	if vals, ok := q["llm"]; ok && len(vals) > 0 {
		v := vals[0]
		llm = &v
	}

	items, err := s.store.Search(r.Context(), userID, query, llm)
	if err != nil {
		log.Printf("memory search failed user=%q: %v", userID, err)
		respondError(w, http.StatusInternalServerError, "store_error", "failed to search memory")
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (s *Server) handleMemoryStats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	st, err := s.store.Stats(r.Context(), userID)
	if err != nil {
		log.Printf("memory stats failed user=%q: %v", userID, err)
		respondError(w, http.StatusInternalServerError, "store_error", "failed to compute memory stats")
		return
	}
	respondJSON(w, http.StatusOK, statsResponse{UserID: userID, Stats: st})
}
