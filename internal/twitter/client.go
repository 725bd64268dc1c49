// Package twitter posts tweets through the v2 API and classifies its
// failures for the posting sequencer.
package twitter

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/samhotchkiss/threadline/internal/poster"
)

const (
	// DefaultBaseURL is the production Twitter API host.
	DefaultBaseURL = "https://api.twitter.com"

	defaultTimeout = 30 * time.Second

	createTweetPath = "/2/tweets"
)

// Config holds what the client needs to submit tweets on a user's behalf.
type Config struct {
	// BaseURL overrides the API host, mainly for tests.
	BaseURL string
	// AccessToken is the user-context bearer token with tweet.write scope.
	AccessToken string
	// Timeout bounds each submission request.
	Timeout time.Duration
}

// Client posts tweets. It implements the poster's Client capability.
type Client struct {
	http *resty.Client
}

// New builds a Client from config, applying defaults.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(cfg.AccessToken).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{http: httpClient}
}

type tweetRequest struct {
	Text  string    `json:"text"`
	Reply *replyRef `json:"reply,omitempty"`
}

type replyRef struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

type apiErrorBody struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (b apiErrorBody) message() string {
	switch {
	case b.Title != "" && b.Detail != "":
		return b.Title + ": " + b.Detail
	case b.Detail != "":
		return b.Detail
	default:
		return b.Title
	}
}

// Submit posts text as a tweet, optionally replying to inReplyTo, and
// returns the new tweet id.
func (c *Client) Submit(ctx context.Context, text, inReplyTo string) (string, error) {
	body := tweetRequest{Text: text}
	if inReplyTo != "" {
		body.Reply = &replyRef{InReplyToTweetID: inReplyTo}
	}

	var out tweetResponse
	var errBody apiErrorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&errBody).
		Post(createTweetPath)
	if err != nil {
		return "", &TransientError{Message: fmt.Sprintf("create tweet request: %v", err)}
	}

	if resp.IsSuccess() {
		if out.Data.ID == "" {
			return "", &TransientError{Message: "create tweet response missing id"}
		}
		return out.Data.ID, nil
	}

	return "", classifyStatus(resp, errBody.message())
}

// classifyStatus maps an API error response to a typed error the poster
// can act on.
func classifyStatus(resp *resty.Response, message string) error {
	status := resp.StatusCode()
	if message == "" {
		message = http.StatusText(status)
	}
	message = fmt.Sprintf("twitter api %d: %s", status, message)

	switch {
	case status == http.StatusUnauthorized:
		return &AuthError{Message: message}
	case status == http.StatusForbidden:
		// Duplicate content, protected accounts, and policy blocks all
		// surface as 403 on the create-tweet endpoint.
		return &ContentRejectedError{Message: message}
	case status == http.StatusTooManyRequests:
		return &RateLimitError{Message: message, ResetAfter: rateLimitWait(resp)}
	default:
		return &TransientError{Message: message}
	}
}

// rateLimitWait reads the platform's requested wait from the 429 response.
func rateLimitWait(resp *resty.Response) time.Duration {
	if raw := resp.Header().Get("retry-after"); raw != "" {
		if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	if raw := resp.Header().Get("x-rate-limit-reset"); raw != "" {
		if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil {
			if wait := time.Until(time.Unix(epoch, 0)); wait > 0 {
				return wait
			}
		}
	}
	return 0
}

// StatusURL returns the public URL for a posted tweet.
func StatusURL(id string) string {
	return "https://twitter.com/user/status/" + id
}

var _ poster.Client = (*Client)(nil)
