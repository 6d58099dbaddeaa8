package generator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nobadaofficial/noba-da3/internal/profile"
)

func TestParseReply(t *testing.T) {
	t.Run("plain json object", func(t *testing.T) {
		reply, err := parseReply(`{"text": "hi there", "emotion": {"happiness": 3, "interest": 1, "trust": 0}, "scoreDelta": 2}`)
		require.NoError(t, err)
		require.Equal(t, "hi there", reply.Text)
		require.Equal(t, 3, reply.Signal.Happiness)
		require.Equal(t, 2, reply.ScoreDelta)
	})

	t.Run("json wrapped in code fence", func(t *testing.T) {
		reply, err := parseReply("```json\n{\"text\": \"fenced\", \"scoreDelta\": -1}\n```")
		require.NoError(t, err)
		require.Equal(t, "fenced", reply.Text)
		require.Equal(t, -1, reply.ScoreDelta)
	})

	t.Run("json with surrounding prose", func(t *testing.T) {
		reply, err := parseReply(`Here is my response: {"text": "embedded"} hope that helps`)
		require.NoError(t, err)
		require.Equal(t, "embedded", reply.Text)
	})

	t.Run("non-json output becomes plain text reply", func(t *testing.T) {
		reply, err := parseReply("I will just answer in prose.")
		require.NoError(t, err)
		require.Equal(t, "I will just answer in prose.", reply.Text)
		require.Zero(t, reply.ScoreDelta)
	})

	t.Run("json object without text fails", func(t *testing.T) {
		_, err := parseReply(`{"scoreDelta": 1}`)
		require.Error(t, err)
	})

	t.Run("empty output fails", func(t *testing.T) {
		_, err := parseReply("   ")
		require.Error(t, err)
	})
}

func TestConfigFromProfile(t *testing.T) {
	p := &profile.Profile{
		GenBaseURL: "https://llm.internal/v1",
		GenAPIKey:  "key",
		GenModel:   "gpt-4o",
		GenTimeout: 5 * time.Second,
	}
	cfg := ConfigFromProfile(p)
	require.Equal(t, "https://llm.internal/v1", cfg.BaseURL)
	require.Equal(t, "key", cfg.APIKey)
	require.Equal(t, "gpt-4o", cfg.Model)
	require.Equal(t, 5*time.Second, cfg.Timeout)

	defaults := ConfigFromProfile(&profile.Profile{})
	require.Equal(t, "https://api.openai.com/v1", defaults.BaseURL)
	require.Equal(t, "gpt-4o-mini", defaults.Model)
	require.Equal(t, 30*time.Second, defaults.Timeout)
}

func TestNewProviderRequiresAPIKey(t *testing.T) {
	_, err := NewProvider(&Config{})
	require.Error(t, err)

	provider, err := NewProvider(&Config{APIKey: "key"})
	require.NoError(t, err)
	require.NotNil(t, provider)
}
