package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/samhotchkiss/threadline/internal/chunker"
	"github.com/samhotchkiss/threadline/internal/config"
	"github.com/samhotchkiss/threadline/internal/poster"
	"github.com/samhotchkiss/threadline/internal/store"
	"github.com/samhotchkiss/threadline/internal/ws"
)

// SessionHandler starts, reports, and cancels posting sessions. Each
// running session holds a cancel func in the registry so a cancel
// request can reach it.
type SessionHandler struct {
	Threads  *store.ThreadStore
	Sessions *store.SessionStore
	Hub      *ws.Hub
	Client   poster.Client
	Posting  config.PostingConfig

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewSessionHandler(threads *store.ThreadStore, sessions *store.SessionStore, hub *ws.Hub, client poster.Client, posting config.PostingConfig) *SessionHandler {
	return &SessionHandler{
		Threads:  threads,
		Sessions: sessions,
		Hub:      hub,
		Client:   client,
		Posting:  posting,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// StartSessionRequest optionally overrides the configured pacing delay
// and retry budget for one session.
type StartSessionRequest struct {
	DelayMS    int  `json:"delay_ms,omitempty"`
	MaxRetries *int `json:"max_retries,omitempty"`
}

// StartSession handles POST /api/threads/{id}/post. It validates the
// thread, records a ready session, and kicks off posting in the
// background.
func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	if h.Client == nil {
		sendError(w, http.StatusServiceUnavailable, "posting is not configured; set TWITTER_ACCESS_TOKEN")
		return
	}

	var req StartSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			sendError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	thread, err := h.Threads.GetThread(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		sendError(w, http.StatusNotFound, "thread not found")
		return
	}
	if err != nil {
		sendError(w, http.StatusInternalServerError, "failed to load thread")
		return
	}

	posterThread := toPosterThread(thread)
	if problems := poster.Validate(posterThread, thread.ChunkLimit, h.Posting.MaxThreadLength); len(problems) > 0 {
		sendJSON(w, http.StatusBadRequest, map[string]any{
			"error":    "thread is not postable",
			"problems": problems,
		})
		return
	}

	cfg := poster.Config{
		Delay:       h.Posting.Delay,
		MaxRetries:  h.Posting.MaxRetries,
		BackoffBase: h.Posting.BackoffBase,
	}
	if req.DelayMS > 0 {
		cfg.Delay = time.Duration(req.DelayMS) * time.Millisecond
	}
	if req.MaxRetries != nil && *req.MaxRetries >= 0 {
		cfg.MaxRetries = *req.MaxRetries
	}

	session, err := h.Sessions.CreateSession(r.Context(), store.CreateSessionInput{
		ThreadID:   thread.ID,
		Delay:      cfg.Delay,
		MaxRetries: cfg.MaxRetries,
	})
	if errors.Is(err, store.ErrSessionActive) {
		sendError(w, http.StatusConflict, "thread already has an active posting session")
		return
	}
	if err != nil {
		sendError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	go h.runSession(session, posterThread, cfg)

	sendJSON(w, http.StatusAccepted, map[string]any{
		"session":            session,
		"estimated_duration": poster.EstimateDuration(len(posterThread.Chunks), cfg.Delay).String(),
	})
}

// runSession drives one posting session to its terminal state,
// persisting outcomes and broadcasting progress as it goes. Persistence
// uses a background context so a canceled session still records what
// happened.
func (h *SessionHandler) runSession(session *store.PostSession, thread chunker.Thread, cfg poster.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	h.registerCancel(session.ID, cancel)
	defer h.dropCancel(session.ID)

	persistCtx := context.Background()

	if err := h.Sessions.MarkRunning(persistCtx, session.ID); err != nil {
		log.Printf("session %s: mark running: %v", session.ID, err)
		return
	}

	run := poster.NewSession(h.Client, thread, cfg)
	run.Logf = log.Printf
	run.Notify = func(outcome poster.Outcome) {
		if err := h.Sessions.RecordOutcome(persistCtx, session.ID, toStoredOutcome(outcome)); err != nil {
			log.Printf("session %s: record outcome %d: %v", session.ID, outcome.Index, err)
		}
		h.broadcastOutcome(session, outcome)
	}

	outcomes, runErr := run.Run(ctx)

	for _, outcome := range outcomes {
		if outcome.Status != poster.ChunkNotAttempted {
			continue
		}
		if err := h.Sessions.RecordOutcome(persistCtx, session.ID, toStoredOutcome(outcome)); err != nil {
			log.Printf("session %s: record outcome %d: %v", session.ID, outcome.Index, err)
		}
	}

	status := store.SessionStatusCompleted
	var sessionErr *string
	eventType := ws.MessageSessionCompleted
	if runErr != nil {
		status = store.SessionStatusAborted
		msg := runErr.Error()
		sessionErr = &msg
		eventType = ws.MessageSessionAborted
		log.Printf("session %s aborted: %v", session.ID, runErr)
	}

	if err := h.Sessions.FinishSession(persistCtx, session.ID, status, sessionErr); err != nil {
		log.Printf("session %s: finish: %v", session.ID, err)
	}

	event := ws.Event{Type: eventType, SessionID: session.ID, ThreadID: session.ThreadID}
	if sessionErr != nil {
		event.Error = *sessionErr
	}
	h.broadcast(session.ID, event)
}

// GetSession handles GET /api/sessions/{id}.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.Sessions.GetSession(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		sendError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		sendError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	sendJSON(w, http.StatusOK, session)
}

// CancelSession handles POST /api/sessions/{id}/cancel. The chunk in
// flight runs to its outcome before the session stops.
func (h *SessionHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	h.mu.Lock()
	cancel, ok := h.cancels[id]
	h.mu.Unlock()
	if !ok {
		sendError(w, http.StatusConflict, "session is not running")
		return
	}

	cancel()
	sendJSON(w, http.StatusAccepted, map[string]string{
		"status": "canceling",
		"detail": "the chunk in flight will finish before the session stops",
	})
}

func (h *SessionHandler) registerCancel(id string, cancel context.CancelFunc) {
	h.mu.Lock()
	h.cancels[id] = cancel
	h.mu.Unlock()
}

func (h *SessionHandler) dropCancel(id string) {
	h.mu.Lock()
	if cancel, ok := h.cancels[id]; ok {
		cancel()
		delete(h.cancels, id)
	}
	h.mu.Unlock()
}

func (h *SessionHandler) broadcastOutcome(session *store.PostSession, outcome poster.Outcome) {
	eventType := ws.MessageChunkPosted
	if outcome.Status != poster.ChunkSucceeded {
		eventType = ws.MessageChunkFailed
	}
	h.broadcast(session.ID, ws.Event{
		Type:      eventType,
		SessionID: session.ID,
		ThreadID:  session.ThreadID,
		Outcome:   outcome,
		Error:     outcome.Err,
	})
}

func (h *SessionHandler) broadcast(sessionID string, event ws.Event) {
	if h.Hub == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("session %s: marshal event: %v", sessionID, err)
		return
	}
	h.Hub.Broadcast(sessionID, payload)
}

func toPosterThread(thread *store.Thread) chunker.Thread {
	chunks := make([]chunker.Chunk, len(thread.Chunks))
	for i, chunk := range thread.Chunks {
		chunks[i] = chunker.Chunk{
			Index:  chunk.Index,
			Body:   chunk.Body,
			Text:   chunk.Rendered,
			Length: chunk.CharCount,
		}
	}
	return chunker.Thread{Chunks: chunks}
}

func toStoredOutcome(outcome poster.Outcome) store.PostOutcome {
	stored := store.PostOutcome{
		Index:    outcome.Index,
		Status:   string(outcome.Status),
		Attempts: outcome.Attempts,
	}
	if outcome.PostID != "" {
		postID := outcome.PostID
		stored.PostID = &postID
	}
	if outcome.ErrKind != "" {
		kind := string(outcome.ErrKind)
		stored.ErrorKind = &kind
	}
	if outcome.Err != "" {
		msg := outcome.Err
		stored.Error = &msg
	}
	return stored
}
