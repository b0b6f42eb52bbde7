package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnginesGet(t *testing.T) {
	openai := NewOpenAI(StaticKey("k"), "f", "d")
	gemini := NewGemini(StaticKey("k"), "f", "d")
	e := &Engines{OpenAI: openai, Gemini: gemini}

	for _, name := range []string{"openai", "gpt"} {
		got, err := e.Get(name)
		require.NoError(t, err)
		assert.Same(t, openai, got)
	}

	got, err := e.Get("gemini")
	require.NoError(t, err)
	assert.Same(t, gemini, got)

	_, err = e.Get("claude")
	assert.Error(t, err)
}

func TestStaticKey(t *testing.T) {
	k, err := StaticKey(" secret ").APIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "secret", k)

	_, err = StaticKey("").APIKey(context.Background())
	assert.Error(t, err)
}
