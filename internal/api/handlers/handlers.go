// Package handlers implements the HTTP handlers for the Tiller control
// plane: the streaming chat entry point, deferred job submission and
// cancellation, tool catalog sync, and cache observability.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tillerhq/tiller/internal/catalog"
	"github.com/tillerhq/tiller/internal/config"
	"github.com/tillerhq/tiller/internal/conversation"
	"github.com/tillerhq/tiller/internal/embedcache"
	"github.com/tillerhq/tiller/internal/executor"
	"github.com/tillerhq/tiller/internal/jobs"
	"github.com/tillerhq/tiller/internal/semindex"
	"github.com/tillerhq/tiller/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Cfg          *config.Config
	Orchestrator *executor.Orchestrator
	Store        *conversation.Store
	Catalog      *catalog.Catalog
	Index        *semindex.Index
	Cache        *embedcache.Cache
	Queue        *jobs.Queue
	Pool         *jobs.Pool
}

// ── Chat ─────────────────────────────────────────────────────

// ChatStream runs a chat request and streams its events over SSE.
// POST /api/v1/chat/stream
func (h *Handlers) ChatStream(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	runID := uuid.NewString()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Run-Id", runID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	res := h.Orchestrator.Run(r.Context(), runID, req, func(ev models.StreamEvent) error {
		data, _ := json.Marshal(ev)
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})

	log.Debug().Str("run", runID).Str("state", string(res.State)).Msg("Chat stream closed")
}

// ChatEnqueue defers a chat request to the background queue.
// POST /api/v1/chat/enqueue
func (h *Handlers) ChatEnqueue(w http.ResponseWriter, r *http.Request) {
	var body struct {
		models.ChatRequest
		Priority string `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Query == "" {
		respondError(w, http.StatusBadRequest, "query is required")
		return
	}

	priority, err := parsePriority(body.Priority)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := h.Queue.Enqueue(body.ChatRequest, priority)
	respondJSON(w, http.StatusAccepted, job)
}

func parsePriority(name string) (models.Priority, error) {
	switch name {
	case "", "interactive":
		return models.PriorityInteractive, nil
	case "bulk_import":
		return models.PriorityBulkImport, nil
	case "reprocess":
		return models.PriorityReprocess, nil
	case "background":
		return models.PriorityBackground, nil
	}
	return 0, fmt.Errorf("unknown priority %q", name)
}

// ── Jobs ─────────────────────────────────────────────────────

// CancelJob cancels a queued or running job (or streaming run).
// POST /api/v1/jobs/{jobID}/cancel
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "job id is required")
		return
	}
	respondJSON(w, http.StatusOK, h.Pool.Cancel(jobID))
}

// GetJob returns the last known status of a job.
// GET /api/v1/jobs/{jobID}
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	status, ok := h.Queue.Status(jobID)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("job %q not found", jobID))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": jobID, "status": string(status)})
}

// ── Conversations ────────────────────────────────────────────

// GetConversation returns a conversation's current state.
// GET /api/v1/conversations/{conversationID}
func (h *Handlers) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	state, err := h.Store.Get(r.Context(), id)
	if err != nil {
		var nf *conversation.ErrNotFound
		if errors.As(err, &nf) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// GetCheckpoint returns a checkpoint snapshot.
// GET /api/v1/checkpoints/{checkpointID}
func (h *Handlers) GetCheckpoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "checkpointID")
	cp, err := h.Store.GetCheckpoint(r.Context(), id)
	if err != nil {
		var nf *conversation.ErrNotFound
		if errors.As(err, &nf) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, cp)
}

// ── Tool Catalog ─────────────────────────────────────────────

// ListTools returns every registered tool descriptor.
// GET /api/v1/tools
func (h *Handlers) ListTools(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Catalog.List())
}

// SyncTools batch-upserts descriptors and re-indexes them.
// POST /api/v1/tools/sync
func (h *Handlers) SyncTools(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Tools []models.ToolDescriptor `json:"tools"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(body.Tools) == 0 {
		respondError(w, http.StatusBadRequest, "tools list is empty")
		return
	}

	var idx catalog.Indexer
	if h.Index != nil {
		idx = h.Index
	}
	result := h.Catalog.Sync(r.Context(), body.Tools, idx)

	status := http.StatusOK
	if !result.Success {
		status = http.StatusMultiStatus
	}
	respondJSON(w, status, result)
}

// ── Cache ────────────────────────────────────────────────────

// CacheStats returns embedding cache counters.
// GET /api/v1/cache/stats
func (h *Handlers) CacheStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Cache.Stats())
}

// CacheClear flushes the embedding cache, or a single entry when a hash is
// given.
// POST /api/v1/cache/clear
func (h *Handlers) CacheClear(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Hash string `json:"hash"`
	}
	// An empty body means a full flush.
	_ = json.NewDecoder(r.Body).Decode(&body)

	removed := h.Cache.Clear(body.Hash)
	respondJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// ── Helpers ──────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
