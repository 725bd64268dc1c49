package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, defaultPort, cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 280, cfg.Chunk.Limit)
	assert.Equal(t, "{i}/{n}", cfg.Chunk.Template)
	assert.Equal(t, 3*time.Second, cfg.Posting.Delay)
	assert.Equal(t, 2, cfg.Posting.MaxRetries)
	assert.Equal(t, 25, cfg.Posting.MaxThreadLength)
	assert.Equal(t, defaultTwitterBaseURL, cfg.Twitter.BaseURL)
	assert.False(t, cfg.PostingEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("CHUNK_LIMIT", "500")
	t.Setenv("CHUNK_NUMBERING_TEMPLATE", "({i}/{n})")
	t.Setenv("POST_DELAY", "10s")
	t.Setenv("POST_MAX_RETRIES", "5")
	t.Setenv("TWITTER_ACCESS_TOKEN", "token-abc")
	t.Setenv("APP_ENV", "Production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, 500, cfg.Chunk.Limit)
	assert.Equal(t, "({i}/{n})", cfg.Chunk.Template)
	assert.Equal(t, 10*time.Second, cfg.Posting.Delay)
	assert.Equal(t, 5, cfg.Posting.MaxRetries)
	assert.Equal(t, "production", cfg.Environment)
	assert.True(t, cfg.PostingEnabled())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric chunk limit", "CHUNK_LIMIT", "wide"},
		{"zero chunk limit", "CHUNK_LIMIT", "0"},
		{"bad delay", "POST_DELAY", "soon"},
		{"negative delay", "POST_DELAY", "-3s"},
		{"negative retries", "POST_MAX_RETRIES", "-1"},
		{"zero max thread length", "POST_MAX_THREAD_LENGTH", "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.key)
		})
	}
}
