package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Thread is a persisted chunked thread.
type Thread struct {
	ID         string        `json:"id"`
	SourceText string        `json:"source_text"`
	ChunkLimit int           `json:"chunk_limit"`
	Template   string        `json:"template"`
	ChunkCount int           `json:"chunk_count"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	Chunks     []ThreadChunk `json:"chunks,omitempty"`
}

// ThreadChunk is one stored chunk of a thread.
type ThreadChunk struct {
	Index     int    `json:"index"`
	Body      string `json:"body"`
	Rendered  string `json:"rendered"`
	CharCount int    `json:"char_count"`
}

// CreateThreadInput carries everything needed to persist a chunked thread.
type CreateThreadInput struct {
	SourceText string
	ChunkLimit int
	Template   string
	Chunks     []ThreadChunk
}

// ThreadStore persists threads and their chunks.
type ThreadStore struct {
	db *sql.DB
}

func NewThreadStore(db *sql.DB) *ThreadStore {
	return &ThreadStore{db: db}
}

const threadColumns = `
	id,
	source_text,
	chunk_limit,
	template,
	chunk_count,
	created_at,
	updated_at
`

// CreateThread stores a thread and its chunks in one transaction.
func (s *ThreadStore) CreateThread(ctx context.Context, input CreateThreadInput) (*Thread, error) {
	if strings.TrimSpace(input.SourceText) == "" {
		return nil, fmt.Errorf("source_text is required")
	}
	if input.ChunkLimit < 1 {
		return nil, fmt.Errorf("chunk_limit must be at least 1")
	}
	if len(input.Chunks) == 0 {
		return nil, fmt.Errorf("thread must have at least one chunk")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create thread: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var thread Thread
	err = tx.QueryRowContext(ctx, `
		INSERT INTO threads (source_text, chunk_limit, template, chunk_count)
		VALUES ($1, $2, $3, $4)
		RETURNING `+threadColumns,
		input.SourceText,
		input.ChunkLimit,
		input.Template,
		len(input.Chunks),
	).Scan(
		&thread.ID,
		&thread.SourceText,
		&thread.ChunkLimit,
		&thread.Template,
		&thread.ChunkCount,
		&thread.CreatedAt,
		&thread.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert thread: %w", err)
	}

	for _, chunk := range input.Chunks {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO thread_chunks (thread_id, chunk_index, body, rendered, char_count)
			VALUES ($1, $2, $3, $4, $5)`,
			thread.ID,
			chunk.Index,
			chunk.Body,
			chunk.Rendered,
			chunk.CharCount,
		)
		if err != nil {
			return nil, fmt.Errorf("insert chunk %d: %w", chunk.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create thread: %w", err)
	}

	thread.Chunks = append([]ThreadChunk(nil), input.Chunks...)
	return &thread, nil
}

// GetThread loads a thread with its chunks in index order.
func (s *ThreadStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	if !ValidUUID(id) {
		return nil, ErrNotFound
	}

	var thread Thread
	err := s.db.QueryRowContext(ctx,
		"SELECT "+threadColumns+" FROM threads WHERE id = $1", id,
	).Scan(
		&thread.ID,
		&thread.SourceText,
		&thread.ChunkLimit,
		&thread.Template,
		&thread.ChunkCount,
		&thread.CreatedAt,
		&thread.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_index, body, rendered, char_count
		FROM thread_chunks
		WHERE thread_id = $1
		ORDER BY chunk_index`, id)
	if err != nil {
		return nil, fmt.Errorf("get thread chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var chunk ThreadChunk
		if err := rows.Scan(&chunk.Index, &chunk.Body, &chunk.Rendered, &chunk.CharCount); err != nil {
			return nil, fmt.Errorf("scan thread chunk: %w", err)
		}
		thread.Chunks = append(thread.Chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thread chunks: %w", err)
	}

	return &thread, nil
}

// ListThreads returns recent threads without their chunks.
func (s *ThreadStore) ListThreads(ctx context.Context, limit int) ([]Thread, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+threadColumns+" FROM threads ORDER BY created_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	threads := []Thread{}
	for rows.Next() {
		var thread Thread
		err := rows.Scan(
			&thread.ID,
			&thread.SourceText,
			&thread.ChunkLimit,
			&thread.Template,
			&thread.ChunkCount,
			&thread.CreatedAt,
			&thread.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		threads = append(threads, thread)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threads: %w", err)
	}

	return threads, nil
}
