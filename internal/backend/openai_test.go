package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chart-advisor/internal/strategy"
)

func completionBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"content": content}},
		},
	})
	return string(b)
}

func newTestOpenAI(srv *httptest.Server) *OpenAI {
	return NewOpenAI(StaticKey("test-key"), "fast-model", "deep-model").
		WithBaseURL(srv.URL).
		WithHTTPClient(srv.Client())
}

func TestOpenAIAnalyze(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody(`{"direction":"wait"}`)))
	}))
	defer srv.Close()

	e := newTestOpenAI(srv)
	out, err := e.Analyze(context.Background(), Request{
		ImageData: []byte{0xFF, 0xD8, 0xFF},
		ImageMIME: "image/jpeg",
		Tier:      strategy.TierDeep,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"direction":"wait"}`, out)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "deep-model", gotBody["model"])
	rf := gotBody["response_format"].(map[string]any)
	assert.Equal(t, "json_object", rf["type"])
}

func TestOpenAITierSelectsModel(t *testing.T) {
	e := NewOpenAI(StaticKey("k"), "fast-model", "deep-model")
	assert.Equal(t, "fast-model", e.Model(strategy.TierFast))
	assert.Equal(t, "deep-model", e.Model(strategy.TierDeep))
}

func TestOpenAIErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"auth refused", http.StatusUnauthorized, ErrRejected},
		{"bad request", http.StatusBadRequest, ErrRejected},
		{"rate limited", http.StatusTooManyRequests, ErrOverloaded},
		{"unavailable", http.StatusServiceUnavailable, ErrOverloaded},
		{"server error", http.StatusInternalServerError, ErrOverloaded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := newTestOpenAI(srv).Analyze(context.Background(), Request{
				ImageData: []byte{1}, ImageMIME: "image/jpeg", Tier: strategy.TierFast,
			})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOpenAIEmptyCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := newTestOpenAI(srv).Analyze(context.Background(), Request{
		ImageData: []byte{1}, ImageMIME: "image/jpeg", Tier: strategy.TierFast,
	})
	assert.Error(t, err)
}

func TestMissingKeyIsRejection(t *testing.T) {
	e := NewOpenAI(StaticKey("  "), "f", "d")
	_, err := e.Analyze(context.Background(), Request{ImageData: []byte{1}, ImageMIME: "image/jpeg"})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.True(t, IsTimeout(errors.Join(errors.New("wrap"), context.DeadlineExceeded)))
	assert.False(t, IsTimeout(context.Canceled))
	assert.False(t, IsTimeout(errors.New("boom")))
}
