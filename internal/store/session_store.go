package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	SessionStatusReady      = "ready"
	SessionStatusInProgress = "in_progress"
	SessionStatusCompleted  = "completed"
	SessionStatusAborted    = "aborted"
)

// PostSession is one attempt to post a thread as a reply chain.
type PostSession struct {
	ID         string        `json:"id"`
	ThreadID   string        `json:"thread_id"`
	Status     string        `json:"status"`
	DelayMS    int           `json:"delay_ms"`
	MaxRetries int           `json:"max_retries"`
	Error      *string       `json:"error,omitempty"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	Outcomes   []PostOutcome `json:"outcomes,omitempty"`
}

// PostOutcome is the stored per-chunk result of a session.
type PostOutcome struct {
	Index     int     `json:"index"`
	Status    string  `json:"status"`
	PostID    *string `json:"post_id,omitempty"`
	ErrorKind *string `json:"error_kind,omitempty"`
	Attempts  int     `json:"attempts"`
	Error     *string `json:"error,omitempty"`
}

// CreateSessionInput configures a new posting session.
type CreateSessionInput struct {
	ThreadID   string
	Delay      time.Duration
	MaxRetries int
}

// SessionStore persists posting sessions and their outcomes.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

const sessionColumns = `
	id,
	thread_id,
	status,
	delay_ms,
	max_retries,
	error,
	started_at,
	finished_at,
	created_at
`

func scanSession(row *sql.Row) (*PostSession, error) {
	var session PostSession
	err := row.Scan(
		&session.ID,
		&session.ThreadID,
		&session.Status,
		&session.DelayMS,
		&session.MaxRetries,
		&session.Error,
		&session.StartedAt,
		&session.FinishedAt,
		&session.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// CreateSession inserts a ready session unless the thread already has one
// that is ready or in progress.
func (s *SessionStore) CreateSession(ctx context.Context, input CreateSessionInput) (*PostSession, error) {
	if !ValidUUID(input.ThreadID) {
		return nil, ErrNotFound
	}
	if input.Delay <= 0 {
		return nil, fmt.Errorf("delay must be greater than zero")
	}
	if input.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must not be negative")
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO post_sessions (thread_id, status, delay_ms, max_retries)
		SELECT $1, $2, $3, $4
		WHERE NOT EXISTS (
			SELECT 1 FROM post_sessions
			WHERE thread_id = $1 AND status IN ($5, $6)
		)
		RETURNING `+sessionColumns,
		input.ThreadID,
		SessionStatusReady,
		input.Delay.Milliseconds(),
		input.MaxRetries,
		SessionStatusReady,
		SessionStatusInProgress,
	)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionActive
	}
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// MarkRunning transitions a ready session to in_progress.
func (s *SessionStore) MarkRunning(ctx context.Context, id string) error {
	if !ValidUUID(id) {
		return ErrNotFound
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE post_sessions
		SET status = $1, started_at = NOW()
		WHERE id = $2 AND status = $3`,
		SessionStatusInProgress, id, SessionStatusReady,
	)
	if err != nil {
		return fmt.Errorf("mark session running: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark session running: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordOutcome upserts one chunk outcome for a session.
func (s *SessionStore) RecordOutcome(ctx context.Context, sessionID string, outcome PostOutcome) error {
	if !ValidUUID(sessionID) {
		return ErrNotFound
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO post_outcomes (session_id, chunk_index, status, post_id, error_kind, attempts, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, chunk_index) DO UPDATE SET
			status = EXCLUDED.status,
			post_id = EXCLUDED.post_id,
			error_kind = EXCLUDED.error_kind,
			attempts = EXCLUDED.attempts,
			error = EXCLUDED.error,
			recorded_at = NOW()`,
		sessionID,
		outcome.Index,
		outcome.Status,
		outcome.PostID,
		outcome.ErrorKind,
		outcome.Attempts,
		outcome.Error,
	)
	if err != nil {
		return fmt.Errorf("record outcome for chunk %d: %w", outcome.Index, err)
	}
	return nil
}

// FinishSession records the terminal status of a session.
func (s *SessionStore) FinishSession(ctx context.Context, id, status string, sessionErr *string) error {
	if !ValidUUID(id) {
		return ErrNotFound
	}
	if status != SessionStatusCompleted && status != SessionStatusAborted {
		return fmt.Errorf("invalid terminal session status %q", status)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE post_sessions
		SET status = $1, error = $2, finished_at = NOW()
		WHERE id = $3`,
		status, sessionErr, id,
	)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSession loads a session with its outcomes in chunk order.
func (s *SessionStore) GetSession(ctx context.Context, id string) (*PostSession, error) {
	if !ValidUUID(id) {
		return nil, ErrNotFound
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM post_sessions WHERE id = $1", id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_index, status, post_id, error_kind, attempts, error
		FROM post_outcomes
		WHERE session_id = $1
		ORDER BY chunk_index`, id)
	if err != nil {
		return nil, fmt.Errorf("get session outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var outcome PostOutcome
		err := rows.Scan(
			&outcome.Index,
			&outcome.Status,
			&outcome.PostID,
			&outcome.ErrorKind,
			&outcome.Attempts,
			&outcome.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		session.Outcomes = append(session.Outcomes, outcome)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}

	return session, nil
}
