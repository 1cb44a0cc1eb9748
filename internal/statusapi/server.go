package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical/quizgen/internal/observability"
	"github.com/spherical/quizgen/internal/storage"
)

// BatchStore is the read side of the batch ledger.
type BatchStore interface {
	ListBatches(ctx context.Context, limit int) ([]storage.BatchRecord, error)
	GetBatch(ctx context.Context, id string) (*storage.BatchDetail, error)
}

// Handler serves the status API.
type Handler struct {
	store     BatchStore
	hub       *Hub
	keepAlive time.Duration
	logger    *observability.Logger
}

// NewRouter creates the API router. store or hub may be nil to disable the
// matching routes.
func NewRouter(store BatchStore, hub *Hub, logger *observability.Logger) http.Handler {
	if logger == nil {
		logger = observability.Nop()
	}
	h := &Handler{store: store, hub: hub, keepAlive: 15 * time.Second, logger: logger.WithOperation("statusapi")}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"quizgen"}`))
	})

	if store != nil {
		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(30 * time.Second))
			r.Get("/batches", h.ListBatches)
			r.Get("/batches/{batchID}", h.GetBatch)
		})
	}
	if hub != nil {
		r.Get("/events", h.Events)
	}
	return r
}

// ListBatches handles GET /batches?limit=N.
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "invalid limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	batches, err := h.store.ListBatches(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("List batches failed")
		h.writeError(w, http.StatusInternalServerError, "list batches failed", "")
		return
	}
	if batches == nil {
		batches = []storage.BatchRecord{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

// GetBatch handles GET /batches/{batchID}.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "batchID")
	batch, err := h.store.GetBatch(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "batch not found", id)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("batch_id", id).Msg("Get batch failed")
		h.writeError(w, http.StatusInternalServerError, "get batch failed", "")
		return
	}
	h.writeJSON(w, http.StatusOK, batch)
}

// Events handles GET /events?batch=ID as a server-sent event stream.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming unsupported", "")
		return
	}
	batchID := r.URL.Query().Get("batch")

	events, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			if batchID != "" && ev.BatchID != batchID {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			name := "progress"
			if ev.Final {
				name = "done"
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
			flusher.Flush()
		}
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn().Err(err).Msg("Write response failed")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	h.writeJSON(w, status, resp)
}
