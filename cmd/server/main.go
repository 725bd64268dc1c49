package main

import (
	"database/sql"
	"log"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	"github.com/samhotchkiss/threadline/internal/api"
	"github.com/samhotchkiss/threadline/internal/automigrate"
	"github.com/samhotchkiss/threadline/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if cfg.DatabaseURL == "" {
		log.Fatalf("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Fatalf("database unreachable: %v", err)
	}

	if err := automigrate.Run(db, "migrations"); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	router := api.NewRouter(cfg, db)

	if cfg.PostingEnabled() {
		log.Printf("🧵 Threadline starting on port %s (posting enabled)", cfg.Port)
	} else {
		log.Printf("🧵 Threadline starting on port %s (preview only, no access token)", cfg.Port)
	}
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
