package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/samhotchkiss/threadline/internal/chunker"
	"github.com/samhotchkiss/threadline/internal/config"
)

// ChunkRequest is the shared payload for previewing and persisting a
// chunked thread.
type ChunkRequest struct {
	Text     string `json:"text"`
	Limit    int    `json:"limit,omitempty"`
	Template string `json:"template,omitempty"`
}

// ChunkResponse is the preview result for a chunking request.
type ChunkResponse struct {
	Chunks   []chunker.Chunk     `json:"chunks"`
	Stats    chunker.ThreadStats `json:"stats"`
	Warnings []string            `json:"warnings,omitempty"`
}

// ChunkHandler serves stateless chunk previews.
type ChunkHandler struct {
	Defaults config.ChunkConfig
}

// Preview handles POST /api/chunk. It chunks the text and returns the
// result without persisting anything.
func (h *ChunkHandler) Preview(w http.ResponseWriter, r *http.Request) {
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

	resp := ChunkResponse{
		Chunks:   thread.Chunks,
		Stats:    chunker.Stats(thread, opts.Limit),
		Warnings: thread.Warnings,
	}
	if resp.Chunks == nil {
		resp.Chunks = []chunker.Chunk{}
	}
	sendJSON(w, http.StatusOK, resp)
}

func resolveOptions(req ChunkRequest, defaults config.ChunkConfig) chunker.Options {
	opts := chunker.Options{Limit: req.Limit, Template: req.Template}
	if opts.Limit <= 0 {
		opts.Limit = defaults.Limit
	}
	if opts.Template == "" {
		opts.Template = defaults.Template
	}
	return opts
}
