package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"chart-advisor/internal/strategy"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI talks to the Chat Completions API over plain HTTP with JSON-object
// output enforcement.
type OpenAI struct {
	creds     Credentials
	modelFast string
	modelDeep string
	baseURL   string
	httpc     *http.Client
}

func NewOpenAI(creds Credentials, modelFast, modelDeep string) *OpenAI {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second, // TCP connect
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		// Vision requests can take a while before the first header byte;
		// the per-attempt budget on the request context is the real limit.
		ResponseHeaderTimeout: 120 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
	}

	return &OpenAI{
		creds:     creds,
		modelFast: modelFast,
		modelDeep: modelDeep,
		baseURL:   defaultOpenAIBaseURL,
		// Timeout stays 0: cancellation comes from the request context.
		httpc: &http.Client{Timeout: 0, Transport: tr},
	}
}

// WithHTTPClient overrides the internal HTTP client (custom timeouts, tracing).
func (e *OpenAI) WithHTTPClient(c *http.Client) *OpenAI {
	if c != nil {
		e.httpc = c
	}
	return e
}

// WithBaseURL points the engine at a compatible endpoint.
func (e *OpenAI) WithBaseURL(u string) *OpenAI {
	if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
		e.baseURL = u
	}
	return e
}

func (e *OpenAI) Name() string { return "openai" }

func (e *OpenAI) Model(tier strategy.Tier) string {
	if tier == strategy.TierDeep {
		return e.modelDeep
	}
	return e.modelFast
}

func (e *OpenAI) Analyze(ctx context.Context, req Request) (string, error) {
	key, err := e.creds.APIKey(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRejected, err)
	}

	model := e.Model(req.Tier)
	maxTokens := 1024
	if req.Tier == strategy.TierDeep {
		maxTokens = 4096
	}

	userText := strings.TrimSpace(req.Note)
	if userText == "" {
		userText = userPrompt
	}
	dataURL := "data:" + req.ImageMIME + ";base64," + base64.StdEncoding.EncodeToString(req.ImageData)

	body := map[string]any{
		"model":           model,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []any{
			map[string]any{"role": "system", "content": systemPrompt},
			map[string]any{
				"role": "user",
				"content": []any{
					map[string]any{"type": "text", "text": userText},
					map[string]any{
						"type": "image_url",
						// High detail: price labels on charts are small.
						"image_url": map[string]any{"url": dataURL, "detail": "high"},
					},
				},
			},
		},
		"temperature": 0.2,
		"max_tokens":  maxTokens,
	}

	payload, _ := json.Marshal(body)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+key)

	resp, err := e.httpc.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, strings.TrimSpace(truncateBytes(raw, 512)))
	}

	var env struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("openai: bad envelope: %w", err)
	}
	if len(env.Choices) == 0 || strings.TrimSpace(env.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("openai: empty completion; body=%s", truncateBytes(raw, 512))
	}
	return env.Choices[0].Message.Content, nil
}
