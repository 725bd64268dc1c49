package poster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/samhotchkiss/threadline/internal/chunker"
)

const (
	defaultDelay       = 3 * time.Second
	defaultMaxRetries  = 2
	defaultBackoffBase = 500 * time.Millisecond
)

// ChunkStatus tracks one chunk through submission.
type ChunkStatus string

const (
	ChunkPending      ChunkStatus = "pending"
	ChunkSubmitting   ChunkStatus = "submitting"
	ChunkRetrying     ChunkStatus = "retrying"
	ChunkSucceeded    ChunkStatus = "succeeded"
	ChunkFailed       ChunkStatus = "failed"
	ChunkNotAttempted ChunkStatus = "not_attempted"
)

// SessionState tracks the whole reply chain.
type SessionState string

const (
	SessionReady      SessionState = "ready"
	SessionInProgress SessionState = "in_progress"
	SessionCompleted  SessionState = "completed"
	SessionAborted    SessionState = "aborted"
)

// Outcome records the final submission result for one chunk. Outcomes are
// aligned with the thread's chunk order and never mutated once reported.
type Outcome struct {
	Index    int         `json:"index"`
	Status   ChunkStatus `json:"status"`
	PostID   string      `json:"post_id,omitempty"`
	ErrKind  ErrKind     `json:"error_kind,omitempty"`
	Attempts int         `json:"attempts"`
	Err      string      `json:"error,omitempty"`
}

// ChainIntegrityError indicates a chunk would have been submitted without
// a valid parent post to reply to.
type ChainIntegrityError struct {
	Index int
}

func (e ChainIntegrityError) Error() string {
	return fmt.Sprintf("chunk %d has no parent post to reply to", e.Index)
}

// Config tunes a posting session. Zero values fall back to defaults.
type Config struct {
	// Delay is the pacing floor between the completion of one submission
	// and the start of the next.
	Delay time.Duration
	// MaxRetries is the retry budget per chunk after the first attempt,
	// spent only on transient failures.
	MaxRetries int
	// BackoffBase seeds the exponential backoff between retries.
	BackoffBase time.Duration
}

func (c Config) withDefaults() Config {
	if c.Delay <= 0 {
		c.Delay = defaultDelay
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	return c
}

// Session posts one thread as a reply chain. Submission is strictly
// sequential: each chunk replies to the post id returned for the previous
// one, so a failed chunk aborts the chain and everything after it is
// reported as not attempted. Sessions are single-use.
type Session struct {
	client Client
	thread chunker.Thread
	cfg    Config

	// Now and Sleep are injectable for tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
	// Notify, when set, observes each finalized outcome as it happens.
	Notify func(Outcome)
	Logf   func(string, ...any)

	mu    sync.Mutex
	state SessionState
}

// NewSession builds a session for the given thread and client capability.
func NewSession(client Client, thread chunker.Thread, cfg Config) *Session {
	return &Session{
		client: client,
		thread: thread,
		cfg:    cfg.withDefaults(),
		Now:    time.Now,
		Sleep:  sleepWithContext,
		state:  SessionReady,
	}
}

// State returns the current chain-level state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Run submits every chunk in order and returns the thread-aligned outcome
// list. The returned error is non-nil when the chain did not complete;
// the outcome list is valid either way. Cancellation is honored between
// submissions: an in-flight submission always runs to its outcome first.
func (s *Session) Run(ctx context.Context) ([]Outcome, error) {
	if s.thread.Empty() {
		return nil, fmt.Errorf("thread has no chunks to post")
	}
	if s.client == nil {
		return nil, fmt.Errorf("no client capability configured")
	}

	s.setState(SessionInProgress)

	outcomes := make([]Outcome, len(s.thread.Chunks))
	for i, chunk := range s.thread.Chunks {
		outcomes[i] = Outcome{Index: chunk.Index, Status: ChunkNotAttempted}
	}

	parentID := ""
	var lastDone time.Time

	for i, chunk := range s.thread.Chunks {
		if i > 0 {
			if err := s.pace(ctx, lastDone); err != nil {
				s.setState(SessionAborted)
				return outcomes, fmt.Errorf("posting canceled before chunk %d: %w", chunk.Index, err)
			}
			if parentID == "" {
				s.setState(SessionAborted)
				return outcomes, ChainIntegrityError{Index: chunk.Index}
			}
		} else if err := ctx.Err(); err != nil {
			s.setState(SessionAborted)
			return outcomes, err
		}

		outcome := s.submitChunk(ctx, chunk, parentID)
		outcomes[i] = outcome
		if s.Notify != nil {
			s.Notify(outcome)
		}

		if outcome.Status != ChunkSucceeded {
			s.logf("chunk %d failed after %d attempt(s): %s", chunk.Index, outcome.Attempts, outcome.Err)
			s.setState(SessionAborted)
			return outcomes, fmt.Errorf("chunk %d failed (%s): %s", chunk.Index, outcome.ErrKind, outcome.Err)
		}

		parentID = outcome.PostID
		lastDone = s.Now()
	}

	s.setState(SessionCompleted)
	return outcomes, nil
}

// pace enforces the configured delay floor between submissions.
func (s *Session) pace(ctx context.Context, lastDone time.Time) error {
	wait := s.cfg.Delay - s.Now().Sub(lastDone)
	if wait <= 0 {
		return ctx.Err()
	}
	return s.Sleep(ctx, wait)
}

func (s *Session) submitChunk(ctx context.Context, chunk chunker.Chunk, parentID string) Outcome {
	outcome := Outcome{Index: chunk.Index, Status: ChunkSubmitting}

	// Caller cancellation must not tear down a submission mid-flight; it is
	// honored between attempts and between chunks instead.
	submitCtx := context.WithoutCancel(ctx)

	backoff := retry.WithMaxRetries(uint64(s.cfg.MaxRetries), retry.NewExponential(s.cfg.BackoffBase))

	var postID string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		outcome.Attempts++
		id, submitErr := s.client.Submit(submitCtx, chunk.Text, parentID)
		if submitErr == nil {
			postID = id
			return nil
		}
		if Classify(submitErr) != ErrKindTransient {
			return submitErr
		}
		// A platform-imposed wait overrides the backoff floor.
		if wait := retryAfterOf(submitErr); wait > 0 {
			if sleepErr := s.Sleep(ctx, wait); sleepErr != nil {
				return submitErr
			}
		}
		outcome.Status = ChunkRetrying
		return retry.RetryableError(submitErr)
	})
	if err != nil {
		outcome.Status = ChunkFailed
		outcome.ErrKind = Classify(err)
		outcome.Err = err.Error()
		return outcome
	}

	outcome.Status = ChunkSucceeded
	outcome.PostID = postID
	return outcome
}

func (s *Session) logf(format string, args ...any) {
	if s.Logf != nil {
		s.Logf(format, args...)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
