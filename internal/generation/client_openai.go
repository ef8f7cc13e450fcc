package generation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"peterbot/internal/logging"
	"peterbot/internal/types"
)

// OpenAIClient implements Client for OpenAI-compatible chat completions APIs.
type OpenAIClient struct {
	cfg     Config
	baseURL string
	limiter *rate.Limiter
}

// DefaultOpenAIBaseURL is used when no base URL is configured.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// NewOpenAIClient creates a new OpenAI-compatible client.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	cfg = cfg.withDefaults()
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultOpenAIBaseURL
	}
	return &OpenAIClient{
		cfg:     cfg,
		baseURL: base,
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
	}
}

// Capability implements Client.
func (c *OpenAIClient) Capability() Capability { return c.cfg.Capability }

func (c *OpenAIClient) buildRequest(req types.GenerationRequest, stream bool) OpenAIRequest {
	messages := make([]OpenAIMessage, 0, len(req.History)+2)
	if sys := c.cfg.Persona.SystemInstruction(); strings.TrimSpace(sys) != "" {
		messages = append(messages, OpenAIMessage{Role: "system", Content: sys})
	}
	for _, turn := range req.History {
		role := "user"
		if turn.Role == types.RoleModel {
			role = "assistant"
		}
		messages = append(messages, OpenAIMessage{Role: role, Content: turn.Text})
	}

	text := userText(c.cfg.Persona, c.cfg.Capability, req)
	if c.cfg.Capability.SendsImageParts(req) {
		parts := []OpenAIContentPart{{Type: "text", Text: text}}
		for _, u := range req.Images {
			parts = append(parts, OpenAIContentPart{Type: "image_url", ImageURL: &OpenAIImageURL{URL: u}})
		}
		messages = append(messages, OpenAIMessage{Role: "user", Content: parts})
	} else {
		messages = append(messages, OpenAIMessage{Role: "user", Content: text})
	}

	return OpenAIRequest{
		Model:     c.cfg.Capability.ModelFor(req),
		Messages:  messages,
		MaxTokens: c.cfg.MaxOutputTokens,
		Stream:    stream,
	}
}

func (c *OpenAIClient) post(ctx context.Context, body OpenAIRequest) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if body.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, statusError("openai", resp.StatusCode, string(raw))
	}
	return resp, nil
}

// Generate implements Client.
func (c *OpenAIClient) Generate(ctx context.Context, req types.GenerationRequest) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	body := c.buildRequest(req, false)
	logging.GenerationDebug("[OpenAI] Generate: model=%s messages=%d images=%d", body.Model, len(body.Messages), len(req.Images))

	resp, err := c.post(ctx, body)
	if err != nil {
		logging.GenerationError("[OpenAI] Generate failed after %v: %v", time.Since(startTime), err)
		return "", err
	}
	defer resp.Body.Close()

	var out OpenAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if out.Error != nil {
		return "", streamError("openai", out.Error.Message)
	}

	text := ""
	if len(out.Choices) > 0 {
		text = strings.TrimSpace(out.Choices[0].Message.Content)
	}
	if text == "" {
		text = c.cfg.EmptyResponse
	}
	logging.Generation("[OpenAI] Generate: completed in %v response_len=%d", time.Since(startTime), len(text))
	return text, nil
}

// GenerateStream implements Client.
func (c *OpenAIClient) GenerateStream(ctx context.Context, req types.GenerationRequest) (<-chan string, <-chan error) {
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
		body := c.buildRequest(req, true)
		logging.GenerationDebug("[OpenAI] GenerateStream: model=%s messages=%d images=%d", body.Model, len(body.Messages), len(req.Images))

		resp, err := c.post(ctx, body)
		if err != nil {
			logging.GenerationError("[OpenAI] GenerateStream failed after %v: %v", time.Since(startTime), err)
			errorChan <- err
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			if data == "[DONE]" {
				break
			}

			var chunk OpenAIResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if chunk.Error != nil {
				errorChan <- streamError("openai", chunk.Error.Message)
				return
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta == nil {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				select {
				case contentChan <- delta:
				case <-ctx.Done():
					errorChan <- ctx.Err()
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			logging.GenerationError("[OpenAI] GenerateStream: stream error after %v: %v", time.Since(startTime), err)
			errorChan <- fmt.Errorf("stream error: %w", err)
			return
		}
		logging.Generation("[OpenAI] GenerateStream: completed in %v", time.Since(startTime))
	}()

	return contentChan, errorChan
}
