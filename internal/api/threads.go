package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/samhotchkiss/threadline/internal/chunker"
	"github.com/samhotchkiss/threadline/internal/config"
	"github.com/samhotchkiss/threadline/internal/store"
)

// ThreadHandler serves persisted thread CRUD.
type ThreadHandler struct {
	Store    *store.ThreadStore
	Defaults config.ChunkConfig
}

// CreateThread handles POST /api/threads. It chunks the text and
// persists the result.
func (h *ThreadHandler) CreateThread(w http.ResponseWriter, r *http.Request) {
	var req ChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	opts := resolveOptions(req, h.Defaults)
	thread, err := chunker.Split(req.Text, opts)
	if err != nil {
		var cfgErr chunker.ConfigurationError
		if errors.As(err, &cfgErr) {
			sendError(w, http.StatusBadRequest, cfgErr.Error())
			return
		}
		sendError(w, http.StatusInternalServerError, "failed to chunk text")
		return
	}
	if len(thread.Chunks) == 0 {
		sendError(w, http.StatusBadRequest, "text is empty")
		return
	}

	input := store.CreateThreadInput{
		SourceText: req.Text,
		ChunkLimit: opts.Limit,
		Template:   opts.Template,
		Chunks:     toStoredChunks(thread.Chunks),
	}
	created, err := h.Store.CreateThread(r.Context(), input)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "failed to save thread")
		return
	}

	sendJSON(w, http.StatusCreated, map[string]any{
		"thread":   created,
		"stats":    chunker.Stats(thread, opts.Limit),
		"warnings": thread.Warnings,
	})
}

// ListThreads handles GET /api/threads.
func (h *ThreadHandler) ListThreads(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			sendError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = parsed
	}

	threads, err := h.Store.ListThreads(r.Context(), limit)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "failed to list threads")
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{"threads": threads})
}

// GetThread handles GET /api/threads/{id}.
func (h *ThreadHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	thread, err := h.Store.GetThread(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		sendError(w, http.StatusNotFound, "thread not found")
		return
	}
	if err != nil {
		sendError(w, http.StatusInternalServerError, "failed to load thread")
		return
	}
	sendJSON(w, http.StatusOK, thread)
}

// ExportThread handles GET /api/threads/{id}/export. It returns the
// rendered chunks joined by the export separator as plain text.
func (h *ThreadHandler) ExportThread(w http.ResponseWriter, r *http.Request) {
	thread, err := h.Store.GetThread(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		sendError(w, http.StatusNotFound, "thread not found")
		return
	}
	if err != nil {
		sendError(w, http.StatusInternalServerError, "failed to load thread")
		return
	}

	rendered := chunker.Thread{Chunks: make([]chunker.Chunk, len(thread.Chunks))}
	for i, chunk := range thread.Chunks {
		rendered.Chunks[i] = chunker.Chunk{
			Index:  chunk.Index,
			Body:   chunk.Body,
			Text:   chunk.Rendered,
			Length: chunk.CharCount,
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(chunker.Export(rendered, chunker.DefaultExportSeparator)))
}

func toStoredChunks(chunks []chunker.Chunk) []store.ThreadChunk {
	stored := make([]store.ThreadChunk, len(chunks))
	for i, chunk := range chunks {
		stored[i] = store.ThreadChunk{
			Index:     chunk.Index,
			Body:      chunk.Body,
			Rendered:  chunk.Text,
			CharCount: chunk.Length,
		}
	}
	return stored
}
