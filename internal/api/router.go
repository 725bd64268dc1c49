// Package api exposes the chunking and posting workflow over HTTP.
package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/samhotchkiss/threadline/internal/config"
	"github.com/samhotchkiss/threadline/internal/poster"
	"github.com/samhotchkiss/threadline/internal/store"
	"github.com/samhotchkiss/threadline/internal/twitter"
	"github.com/samhotchkiss/threadline/internal/ws"
)

var startTime = time.Now()

type HealthResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

func NewRouter(cfg config.Config, db *sql.DB) http.Handler {
	r := chi.NewRouter()

	hub := ws.NewHub()
	go hub.Run()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Get("/health", handleHealth)
	r.Get("/", handleRoot)
	r.Handle("/ws", &ws.Handler{Hub: hub})

	chunkHandler := &ChunkHandler{Defaults: cfg.Chunk}
	r.Post("/api/chunk", chunkHandler.Preview)

	threadStore := store.NewThreadStore(db)
	threadHandler := &ThreadHandler{Store: threadStore, Defaults: cfg.Chunk}
	r.Post("/api/threads", threadHandler.CreateThread)
	r.Get("/api/threads", threadHandler.ListThreads)
	r.Get("/api/threads/{id}", threadHandler.GetThread)
	r.Get("/api/threads/{id}/export", threadHandler.ExportThread)

	var client poster.Client
	if cfg.PostingEnabled() {
		client = twitter.New(twitter.Config{
			BaseURL:     cfg.Twitter.BaseURL,
			AccessToken: cfg.Twitter.AccessToken,
			Timeout:     cfg.Twitter.Timeout,
		})
	}
	sessionHandler := NewSessionHandler(threadStore, store.NewSessionStore(db), hub, client, cfg.Posting)
	r.Post("/api/threads/{id}/post", sessionHandler.StartSession)
	r.Get("/api/sessions/{id}", sessionHandler.GetSession)
	r.Post("/api/sessions/{id}/cancel", sessionHandler.CancelSession)

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Version:   getVersion(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = json.NewEncoder(w).Encode(resp)
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]string{
		"name":    "Threadline",
		"tagline": "Split your thoughts, not your ideas",
		"health":  "/health",
	})
}

func getVersion() string {
	if v := os.Getenv("VERSION"); v != "" {
		return v
	}
	return "dev"
}
