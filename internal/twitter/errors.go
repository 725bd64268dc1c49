package twitter

import (
	"time"

	"github.com/samhotchkiss/threadline/internal/poster"
)

// TransientError covers network failures and server-side errors that are
// safe to retry.
type TransientError struct {
	Message string
}

func (e *TransientError) Error() string        { return e.Message }
func (e *TransientError) Kind() poster.ErrKind { return poster.ErrKindTransient }

// AuthError means the credentials were rejected; fatal for the session.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string        { return e.Message }
func (e *AuthError) Kind() poster.ErrKind { return poster.ErrKindAuth }

// ContentRejectedError means the platform refused this tweet's content.
type ContentRejectedError struct {
	Message string
}

func (e *ContentRejectedError) Error() string        { return e.Message }
func (e *ContentRejectedError) Kind() poster.ErrKind { return poster.ErrKindContentRejected }

// RateLimitError is a transient failure carrying the platform's requested
// wait before the next attempt.
type RateLimitError struct {
	Message    string
	ResetAfter time.Duration
}

func (e *RateLimitError) Error() string             { return e.Message }
func (e *RateLimitError) Kind() poster.ErrKind      { return poster.ErrKindTransient }
func (e *RateLimitError) RetryAfter() time.Duration { return e.ResetAfter }
