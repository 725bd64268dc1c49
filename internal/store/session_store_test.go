package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSessionAndLifecycle(t *testing.T) {
	db := setupTestDatabase(t, getTestDatabaseURL(t))
	sessions := NewSessionStore(db)
	ctx := context.Background()

	thread := createTestThread(t, db, 3)

	session, err := sessions.CreateSession(ctx, CreateSessionInput{
		ThreadID:   thread.ID,
		Delay:      3 * time.Second,
		MaxRetries: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, SessionStatusReady, session.Status)
	assert.Equal(t, 3000, session.DelayMS)
	assert.Nil(t, session.StartedAt)

	require.NoError(t, sessions.MarkRunning(ctx, session.ID))

	postID := "111222333"
	require.NoError(t, sessions.RecordOutcome(ctx, session.ID, PostOutcome{
		Index:    1,
		Status:   "succeeded",
		PostID:   &postID,
		Attempts: 1,
	}))

	errKind := "transient"
	errMsg := "rate limited"
	require.NoError(t, sessions.RecordOutcome(ctx, session.ID, PostOutcome{
		Index:     2,
		Status:    "failed",
		ErrorKind: &errKind,
		Attempts:  3,
		Error:     &errMsg,
	}))
	require.NoError(t, sessions.RecordOutcome(ctx, session.ID, PostOutcome{
		Index:  3,
		Status: "not_attempted",
	}))

	sessionErr := "chunk 2 failed (transient): rate limited"
	require.NoError(t, sessions.FinishSession(ctx, session.ID, SessionStatusAborted, &sessionErr))

	got, err := sessions.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, SessionStatusAborted, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, sessionErr, *got.Error)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.FinishedAt)

	require.Len(t, got.Outcomes, 3)
	assert.Equal(t, "succeeded", got.Outcomes[0].Status)
	require.NotNil(t, got.Outcomes[0].PostID)
	assert.Equal(t, postID, *got.Outcomes[0].PostID)
	assert.Equal(t, "failed", got.Outcomes[1].Status)
	assert.Equal(t, 3, got.Outcomes[1].Attempts)
	assert.Equal(t, "not_attempted", got.Outcomes[2].Status)
}

func TestCreateSessionRejectsConcurrentActive(t *testing.T) {
	db := setupTestDatabase(t, getTestDatabaseURL(t))
	sessions := NewSessionStore(db)
	ctx := context.Background()

	thread := createTestThread(t, db, 2)
	input := CreateSessionInput{ThreadID: thread.ID, Delay: time.Second, MaxRetries: 1}

	first, err := sessions.CreateSession(ctx, input)
	require.NoError(t, err)

	_, err = sessions.CreateSession(ctx, input)
	assert.ErrorIs(t, err, ErrSessionActive)

	// A finished session frees the thread for another run.
	require.NoError(t, sessions.FinishSession(ctx, first.ID, SessionStatusCompleted, nil))
	_, err = sessions.CreateSession(ctx, input)
	require.NoError(t, err)
}

func TestRecordOutcomeUpserts(t *testing.T) {
	db := setupTestDatabase(t, getTestDatabaseURL(t))
	sessions := NewSessionStore(db)
	ctx := context.Background()

	thread := createTestThread(t, db, 1)
	session, err := sessions.CreateSession(ctx, CreateSessionInput{ThreadID: thread.ID, Delay: time.Second, MaxRetries: 1})
	require.NoError(t, err)

	require.NoError(t, sessions.RecordOutcome(ctx, session.ID, PostOutcome{Index: 1, Status: "not_attempted"}))

	postID := "42"
	require.NoError(t, sessions.RecordOutcome(ctx, session.ID, PostOutcome{
		Index:    1,
		Status:   "succeeded",
		PostID:   &postID,
		Attempts: 2,
	}))

	got, err := sessions.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, got.Outcomes, 1, "same chunk index overwrites, never duplicates")
	assert.Equal(t, "succeeded", got.Outcomes[0].Status)
	assert.Equal(t, 2, got.Outcomes[0].Attempts)
}

func TestCreateSessionValidation(t *testing.T) {
	db := setupTestDatabase(t, getTestDatabaseURL(t))
	sessions := NewSessionStore(db)
	ctx := context.Background()

	thread := createTestThread(t, db, 1)

	_, err := sessions.CreateSession(ctx, CreateSessionInput{ThreadID: thread.ID})
	require.Error(t, err, "zero delay rejected")

	_, err = sessions.CreateSession(ctx, CreateSessionInput{ThreadID: thread.ID, Delay: time.Second, MaxRetries: -2})
	require.Error(t, err, "negative retries rejected")

	_, err = sessions.CreateSession(ctx, CreateSessionInput{ThreadID: "nope", Delay: time.Second})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFinishSessionRejectsNonTerminalStatus(t *testing.T) {
	db := setupTestDatabase(t, getTestDatabaseURL(t))
	sessions := NewSessionStore(db)
	ctx := context.Background()

	thread := createTestThread(t, db, 1)
	session, err := sessions.CreateSession(ctx, CreateSessionInput{ThreadID: thread.ID, Delay: time.Second})
	require.NoError(t, err)

	err = sessions.FinishSession(ctx, session.ID, SessionStatusInProgress, nil)
	require.Error(t, err)
}
