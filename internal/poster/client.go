// Package poster submits a chunked thread to a platform as a reply chain,
// pacing submissions, retrying transient failures, and reporting a
// per-chunk outcome list.
package poster

import (
	"context"
	"errors"
	"time"
)

// Client is the authenticated capability the poster drives. Submit posts
// text, optionally as a reply to a previous post, and returns the
// platform-assigned post id.
type Client interface {
	Submit(ctx context.Context, text, inReplyTo string) (string, error)
}

// ErrKind classifies a submission failure for retry policy decisions.
type ErrKind string

const (
	// ErrKindTransient covers rate limiting and server-side failures that
	// are worth retrying with backoff.
	ErrKindTransient ErrKind = "transient"
	// ErrKindAuth covers credential failures; fatal for the whole session.
	ErrKindAuth ErrKind = "auth"
	// ErrKindContentRejected covers per-chunk platform rejections such as
	// duplicate content; never retried.
	ErrKindContentRejected ErrKind = "content_rejected"
	// ErrKindCanceled marks a caller-initiated cancellation.
	ErrKindCanceled ErrKind = "canceled"
)

// kinder is implemented by client errors that classify themselves.
type kinder interface {
	Kind() ErrKind
}

// retryAfterer is implemented by rate-limit errors that carry the
// platform's requested wait.
type retryAfterer interface {
	RetryAfter() time.Duration
}

// Classify maps a submission error to its kind. Unclassified errors are
// treated as transient so the retry budget gets a chance to absorb them.
func Classify(err error) ErrKind {
	var k kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrKindCanceled
	}
	return ErrKindTransient
}

func retryAfterOf(err error) time.Duration {
	var r retryAfterer
	if errors.As(err, &r) {
		return r.RetryAfter()
	}
	return 0
}
