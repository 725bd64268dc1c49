package poster

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samhotchkiss/threadline/internal/chunker"
)

type submitCall struct {
	text      string
	inReplyTo string
}

type fakeResponse struct {
	id  string
	err error
}

type fakeClient struct {
	mu        sync.Mutex
	calls     []submitCall
	responses []fakeResponse
	next      int
}

func (c *fakeClient) Submit(_ context.Context, text, inReplyTo string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, submitCall{text: text, inReplyTo: inReplyTo})
	if c.next < len(c.responses) {
		resp := c.responses[c.next]
		c.next++
		return resp.id, resp.err
	}
	return fmt.Sprintf("post-%d", len(c.calls)), nil
}

func (c *fakeClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type fakeErr struct {
	kind       ErrKind
	retryAfter time.Duration
	msg        string
}

func (e fakeErr) Error() string             { return e.msg }
func (e fakeErr) Kind() ErrKind             { return e.kind }
func (e fakeErr) RetryAfter() time.Duration { return e.retryAfter }

func makeThread(n int) chunker.Thread {
	chunks := make([]chunker.Chunk, n)
	for i := range chunks {
		text := fmt.Sprintf("chunk body %d %d/%d", i+1, i+1, n)
		chunks[i] = chunker.Chunk{Index: i + 1, Body: fmt.Sprintf("chunk body %d", i+1), Text: text, Length: len(text)}
	}
	return chunker.Thread{Chunks: chunks}
}

// sleepRecorder captures requested sleeps without actually waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.sleeps = append(r.sleeps, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.sleeps...)
}

func newTestSession(client Client, thread chunker.Thread, cfg Config) (*Session, *sleepRecorder) {
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = time.Millisecond
	}
	session := NewSession(client, thread, cfg)
	recorder := &sleepRecorder{}
	session.Sleep = recorder.sleep
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	session.Now = func() time.Time { return fixed }
	return session, recorder
}

func TestSessionPostsChainInOrder(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	session, _ := newTestSession(client, makeThread(3), Config{Delay: 50 * time.Millisecond})

	outcomes, err := session.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SessionCompleted, session.State())
	require.Len(t, outcomes, 3)

	for i, outcome := range outcomes {
		assert.Equal(t, i+1, outcome.Index)
		assert.Equal(t, ChunkSucceeded, outcome.Status)
		assert.Equal(t, 1, outcome.Attempts)
		assert.NotEmpty(t, outcome.PostID)
	}

	require.Len(t, client.calls, 3)
	assert.Empty(t, client.calls[0].inReplyTo, "first chunk starts the chain")
	assert.Equal(t, outcomes[0].PostID, client.calls[1].inReplyTo)
	assert.Equal(t, outcomes[1].PostID, client.calls[2].inReplyTo)
}

func TestSessionEnforcesPacingFloor(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	delay := 40 * time.Millisecond
	session, recorder := newTestSession(client, makeThread(3), Config{Delay: delay})

	_, err := session.Run(context.Background())
	require.NoError(t, err)

	// The injected clock never advances, so every gap waits the full floor.
	sleeps := recorder.recorded()
	require.Len(t, sleeps, 2, "one pacing wait per gap between chunks")
	for _, d := range sleeps {
		assert.GreaterOrEqual(t, d, delay)
	}
}

func TestSessionAbortsAfterExhaustedRetries(t *testing.T) {
	t.Parallel()

	transient := fakeErr{kind: ErrKindTransient, msg: "rate limited"}
	client := &fakeClient{responses: []fakeResponse{
		{id: "p1"},
		{id: "p2"},
		{err: transient},
		{err: transient},
	}}
	session, _ := newTestSession(client, makeThread(5), Config{Delay: time.Millisecond, MaxRetries: 1})

	outcomes, err := session.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, SessionAborted, session.State())
	require.Len(t, outcomes, 5)

	assert.Equal(t, ChunkSucceeded, outcomes[0].Status)
	assert.Equal(t, ChunkSucceeded, outcomes[1].Status)

	assert.Equal(t, ChunkFailed, outcomes[2].Status)
	assert.Equal(t, ErrKindTransient, outcomes[2].ErrKind)
	assert.Equal(t, 2, outcomes[2].Attempts)

	assert.Equal(t, ChunkNotAttempted, outcomes[3].Status)
	assert.Equal(t, ChunkNotAttempted, outcomes[4].Status)

	// Chunks after the failure point are never submitted.
	assert.Equal(t, 4, client.callCount())
}

func TestSessionAuthErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	client := &fakeClient{responses: []fakeResponse{
		{err: fakeErr{kind: ErrKindAuth, msg: "bad credentials"}},
	}}
	session, _ := newTestSession(client, makeThread(3), Config{Delay: time.Millisecond, MaxRetries: 3})

	outcomes, err := session.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, SessionAborted, session.State())

	assert.Equal(t, ChunkFailed, outcomes[0].Status)
	assert.Equal(t, ErrKindAuth, outcomes[0].ErrKind)
	assert.Equal(t, 1, outcomes[0].Attempts, "session-fatal errors burn no retries")
	assert.Equal(t, ChunkNotAttempted, outcomes[1].Status)
	assert.Equal(t, ChunkNotAttempted, outcomes[2].Status)
	assert.Equal(t, 1, client.callCount())
}

func TestSessionContentRejectionAbortsChain(t *testing.T) {
	t.Parallel()

	client := &fakeClient{responses: []fakeResponse{
		{id: "p1"},
		{err: fakeErr{kind: ErrKindContentRejected, msg: "duplicate content"}},
	}}
	session, _ := newTestSession(client, makeThread(3), Config{Delay: time.Millisecond})

	outcomes, err := session.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, SessionAborted, session.State())

	assert.Equal(t, ChunkSucceeded, outcomes[0].Status)
	assert.Equal(t, ChunkFailed, outcomes[1].Status)
	assert.Equal(t, ErrKindContentRejected, outcomes[1].ErrKind)
	assert.Equal(t, 1, outcomes[1].Attempts)
	assert.Equal(t, ChunkNotAttempted, outcomes[2].Status)
	assert.Equal(t, 2, client.callCount())
}

func TestSessionRetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	client := &fakeClient{responses: []fakeResponse{
		{err: fakeErr{kind: ErrKindTransient, retryAfter: 5 * time.Second, msg: "try later"}},
		{id: "p1"},
	}}
	session, recorder := newTestSession(client, makeThread(1), Config{Delay: time.Millisecond})

	outcomes, err := session.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SessionCompleted, session.State())

	require.Len(t, outcomes, 1)
	assert.Equal(t, ChunkSucceeded, outcomes[0].Status)
	assert.Equal(t, "p1", outcomes[0].PostID)
	assert.Equal(t, 2, outcomes[0].Attempts)

	// The platform-imposed wait is honored before retrying.
	assert.Contains(t, recorder.recorded(), 5*time.Second)
}

func TestSessionCancellationStopsBeforeNextChunk(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	session, _ := newTestSession(client, makeThread(3), Config{Delay: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	session.Notify = func(outcome Outcome) {
		if outcome.Index == 1 {
			cancel()
		}
	}

	outcomes, err := session.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, SessionAborted, session.State())

	assert.Equal(t, ChunkSucceeded, outcomes[0].Status)
	assert.Equal(t, ChunkNotAttempted, outcomes[1].Status)
	assert.Equal(t, ChunkNotAttempted, outcomes[2].Status)
	assert.Equal(t, 1, client.callCount(), "no submission after cancellation")
}

func TestSessionNotifyObservesEachOutcome(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	session, _ := newTestSession(client, makeThread(3), Config{Delay: time.Millisecond})

	var seen []int
	session.Notify = func(outcome Outcome) {
		seen = append(seen, outcome.Index)
	}

	_, err := session.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestSessionEmptyThread(t *testing.T) {
	t.Parallel()

	session := NewSession(&fakeClient{}, chunker.Thread{}, Config{})
	_, err := session.Run(context.Background())
	require.Error(t, err)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrKindAuth, Classify(fakeErr{kind: ErrKindAuth}))
	assert.Equal(t, ErrKindContentRejected, Classify(fakeErr{kind: ErrKindContentRejected}))
	assert.Equal(t, ErrKindTransient, Classify(fakeErr{kind: ErrKindTransient}))
	assert.Equal(t, ErrKindTransient, Classify(fmt.Errorf("who knows")))
	assert.Equal(t, ErrKindCanceled, Classify(context.Canceled))
	assert.Equal(t, ErrKindCanceled, Classify(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"thread has no chunks to post"}, Validate(chunker.Thread{}, 280, 25))
	assert.Empty(t, Validate(makeThread(3), 280, 25))

	issues := Validate(makeThread(26), 280, 25)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "too long")

	over := chunker.Thread{Chunks: []chunker.Chunk{{Index: 1, Text: "way too long", Length: 300}}}
	issues = Validate(over, 280, 25)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "exceeds 280 characters")

	blank := chunker.Thread{Chunks: []chunker.Chunk{{Index: 1, Text: "   ", Length: 3}}}
	issues = Validate(blank, 280, 25)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "empty")
}

func TestEstimateDuration(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Duration(0), EstimateDuration(0, 3*time.Second))
	assert.Equal(t, time.Duration(0), EstimateDuration(1, 3*time.Second))
	assert.Equal(t, 12*time.Second, EstimateDuration(5, 3*time.Second))
}
