// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func init() {
	// Auto-load .env file if present (don't override existing env vars)
	_ = godotenv.Load()
}

const (
	defaultPort        = "4300"
	defaultEnvironment = "development"

	defaultChunkLimit   = 280
	defaultNumberingTpl = "{i}/{n}"

	defaultPostDelay       = 3 * time.Second
	defaultPostMaxRetries  = 2
	defaultPostBackoffBase = 500 * time.Millisecond
	defaultMaxThreadLength = 25

	defaultTwitterBaseURL = "https://api.twitter.com"
	defaultTwitterTimeout = 30 * time.Second
)

// ChunkConfig sets the chunker defaults used when a request omits them.
type ChunkConfig struct {
	Limit    int
	Template string
}

// PostingConfig tunes posting sessions.
type PostingConfig struct {
	Delay           time.Duration
	MaxRetries      int
	BackoffBase     time.Duration
	MaxThreadLength int
}

// TwitterConfig configures the outbound API client.
type TwitterConfig struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

type Config struct {
	Port        string
	DatabaseURL string
	Environment string
	Chunk       ChunkConfig
	Posting     PostingConfig
	Twitter     TwitterConfig
}

// PostingEnabled reports whether an access token is configured; without
// one the service still chunks and previews, it just cannot post.
func (c Config) PostingEnabled() bool {
	return c.Twitter.AccessToken != ""
}

func Load() (Config, error) {
	cfg := Config{
		Port:        firstNonEmpty(strings.TrimSpace(os.Getenv("PORT")), defaultPort),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Environment: resolveEnvironment(),
		Chunk: ChunkConfig{
			Template: firstNonEmpty(
				strings.TrimSpace(os.Getenv("CHUNK_NUMBERING_TEMPLATE")),
				defaultNumberingTpl,
			),
		},
		Twitter: TwitterConfig{
			BaseURL: firstNonEmpty(
				strings.TrimSpace(os.Getenv("TWITTER_API_BASE_URL")),
				defaultTwitterBaseURL,
			),
			AccessToken: strings.TrimSpace(os.Getenv("TWITTER_ACCESS_TOKEN")),
		},
	}

	chunkLimit, err := parseInt("CHUNK_LIMIT", defaultChunkLimit)
	if err != nil {
		return Config{}, err
	}
	if chunkLimit < 1 {
		return Config{}, fmt.Errorf("CHUNK_LIMIT must be at least 1")
	}
	cfg.Chunk.Limit = chunkLimit

	postDelay, err := parseDuration("POST_DELAY", defaultPostDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.Posting.Delay = postDelay

	maxRetries, err := parseInt("POST_MAX_RETRIES", defaultPostMaxRetries)
	if err != nil {
		return Config{}, err
	}
	if maxRetries < 0 {
		return Config{}, fmt.Errorf("POST_MAX_RETRIES must not be negative")
	}
	cfg.Posting.MaxRetries = maxRetries

	backoffBase, err := parseDuration("POST_BACKOFF_BASE", defaultPostBackoffBase)
	if err != nil {
		return Config{}, err
	}
	cfg.Posting.BackoffBase = backoffBase

	maxThreadLength, err := parseInt("POST_MAX_THREAD_LENGTH", defaultMaxThreadLength)
	if err != nil {
		return Config{}, err
	}
	if maxThreadLength < 1 {
		return Config{}, fmt.Errorf("POST_MAX_THREAD_LENGTH must be at least 1")
	}
	cfg.Posting.MaxThreadLength = maxThreadLength

	twitterTimeout, err := parseDuration("TWITTER_TIMEOUT", defaultTwitterTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.Twitter.Timeout = twitterTimeout

	return cfg, nil
}

func resolveEnvironment() string {
	return strings.ToLower(firstNonEmpty(
		strings.TrimSpace(os.Getenv("APP_ENV")),
		strings.TrimSpace(os.Getenv("ENVIRONMENT")),
		strings.TrimSpace(os.Getenv("GO_ENV")),
		defaultEnvironment,
	))
}

func parseDuration(name string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return defaultValue, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", name, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero", name)
	}
	return parsed, nil
}

func parseInt(name string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", name, err)
	}
	return parsed, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
