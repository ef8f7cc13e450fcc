package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"peterbot/internal/logging"
	"peterbot/internal/types"
)

// GeminiClient implements Client with the Google GenAI SDK.
type GeminiClient struct {
	cfg    Config
	client *genai.Client
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(ctx context.Context, cfg Config) (*GeminiClient, error) {
	cfg = cfg.withDefaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiClient{cfg: cfg, client: client}, nil
}

// Capability implements Client.
func (c *GeminiClient) Capability() Capability { return c.cfg.Capability }

func (c *GeminiClient) buildContents(ctx context.Context, req types.GenerationRequest) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		contents = append(contents, genai.NewContentFromText(turn.Text, genai.Role(turn.Role)))
	}

	parts := []*genai.Part{genai.NewPartFromText(userText(c.cfg.Persona, c.cfg.Capability, req))}
	if c.cfg.Capability.SendsImageParts(req) {
		for _, img := range fetchImages(ctx, c.cfg.HTTPClient, req.Images, c.cfg.MaxImageBytes) {
			parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
		}
	}
	return append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
}

func (c *GeminiClient) buildConfig() *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(c.cfg.MaxOutputTokens),
	}
	if sys := c.cfg.Persona.SystemInstruction(); strings.TrimSpace(sys) != "" {
		gc.SystemInstruction = genai.NewContentFromText(sys, genai.RoleUser)
	}
	return gc
}

// Generate implements Client.
func (c *GeminiClient) Generate(ctx context.Context, req types.GenerationRequest) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	model := c.cfg.Capability.ModelFor(req)
	logging.GenerationDebug("[Gemini] Generate: model=%s history=%d images=%d", model, len(req.History), len(req.Images))

	resp, err := c.client.Models.GenerateContent(ctx, model, c.buildContents(ctx, req), c.buildConfig())
	if err != nil {
		err = classifyGeminiError(err)
		logging.GenerationError("[Gemini] Generate failed after %v: %v", time.Since(startTime), err)
		return "", err
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		text = c.cfg.EmptyResponse
	}
	logging.Generation("[Gemini] Generate: completed in %v response_len=%d", time.Since(startTime), len(text))
	return text, nil
}

// GenerateStream implements Client.
func (c *GeminiClient) GenerateStream(ctx context.Context, req types.GenerationRequest) (<-chan string, <-chan error) {
	contentChan := make(chan string, 100)
	errorChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errorChan)

		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
		}

		startTime := time.Now()
		model := c.cfg.Capability.ModelFor(req)
		logging.GenerationDebug("[Gemini] GenerateStream: model=%s history=%d images=%d", model, len(req.History), len(req.Images))

		stream := c.client.Models.GenerateContentStream(ctx, model, c.buildContents(ctx, req), c.buildConfig())
		for resp, err := range stream {
			if err != nil {
				err = classifyGeminiError(err)
				logging.GenerationError("[Gemini] GenerateStream failed after %v: %v", time.Since(startTime), err)
				errorChan <- err
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			select {
			case contentChan <- text:
			case <-ctx.Done():
				errorChan <- ctx.Err()
				return
			}
		}
		logging.Generation("[Gemini] GenerateStream: completed in %v", time.Since(startTime))
	}()

	return contentChan, errorChan
}

// classifyGeminiError maps SDK errors onto the package sentinels.
func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return statusError("gemini", apiErr.Code, apiErr.Status+": "+apiErr.Message)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return statusError("gemini", apiErrPtr.Code, apiErrPtr.Status+": "+apiErrPtr.Message)
	}
	if looksOverloaded(err.Error()) {
		return fmt.Errorf("%w: gemini: %v", ErrModelOverloaded, err)
	}
	return fmt.Errorf("gemini: %w", err)
}
