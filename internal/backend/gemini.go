package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"chart-advisor/internal/strategy"
)

// Gemini talks to the Generative Language API via the official SDK, with
// JSON output enforced through ResponseMIMEType.
type Gemini struct {
	creds     Credentials
	modelFast string
	modelDeep string
}

func NewGemini(creds Credentials, modelFast, modelDeep string) *Gemini {
	return &Gemini{
		creds:     creds,
		modelFast: strings.TrimSpace(modelFast),
		modelDeep: strings.TrimSpace(modelDeep),
	}
}

func (e *Gemini) Name() string { return "gemini" }

func (e *Gemini) Model(tier strategy.Tier) string {
	if tier == strategy.TierDeep {
		return e.modelDeep
	}
	return e.modelFast
}

func (e *Gemini) Analyze(ctx context.Context, req Request) (string, error) {
	key, err := e.creds.APIKey(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRejected, err)
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return "", err
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model(req.Tier))
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0.2),
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}

	userText := strings.TrimSpace(req.Note)
	if userText == "" {
		userText = userPrompt
	}
	parts := []genai.Part{
		genai.Text(userText),
		&genai.Blob{MIMEType: req.ImageMIME, Data: req.ImageData},
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", classifyGeminiErr(err)
	}
	txt := firstText(resp)
	if txt == "" {
		return "", fmt.Errorf("gemini: empty response")
	}
	return txt, nil
}

func classifyGeminiErr(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return classifyStatus(gerr.Code, gerr.Message)
	}
	return err
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
