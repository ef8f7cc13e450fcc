package generation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
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

// DefaultOllamaBaseURL is used when no base URL is configured.
const DefaultOllamaBaseURL = "http://localhost:11434"

// OllamaClient implements Client for Ollama's native /api/chat endpoint.
type OllamaClient struct {
	cfg     Config
	baseURL string
	limiter *rate.Limiter
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(cfg Config) *OllamaClient {
	cfg = cfg.withDefaults()
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultOllamaBaseURL
	}
	return &OllamaClient{
		cfg:     cfg,
		baseURL: base,
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
	}
}

// Capability implements Client.
func (c *OllamaClient) Capability() Capability { return c.cfg.Capability }

func (c *OllamaClient) buildRequest(ctx context.Context, req types.GenerationRequest, stream bool) OllamaRequest {
	messages := make([]OllamaMessage, 0, len(req.History)+2)
	if sys := c.cfg.Persona.SystemInstruction(); strings.TrimSpace(sys) != "" {
		messages = append(messages, OllamaMessage{Role: "system", Content: sys})
	}
	for _, turn := range req.History {
		role := "user"
		if turn.Role == types.RoleModel {
			role = "assistant"
		}
		messages = append(messages, OllamaMessage{Role: role, Content: turn.Text})
	}

	user := OllamaMessage{Role: "user", Content: userText(c.cfg.Persona, c.cfg.Capability, req)}
	if c.cfg.Capability.SendsImageParts(req) {
		for _, img := range fetchImages(ctx, c.cfg.HTTPClient, req.Images, c.cfg.MaxImageBytes) {
			user.Images = append(user.Images, base64.StdEncoding.EncodeToString(img.Data))
		}
	}
	messages = append(messages, user)

	return OllamaRequest{
		Model:    c.cfg.Capability.ModelFor(req),
		Messages: messages,
		Stream:   stream,
		Options:  OllamaOptions{NumPredict: c.cfg.MaxOutputTokens},
	}
}

func (c *OllamaClient) post(ctx context.Context, body OllamaRequest) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, statusError("ollama", resp.StatusCode, string(raw))
	}
	return resp, nil
}

// Generate implements Client.
func (c *OllamaClient) Generate(ctx context.Context, req types.GenerationRequest) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	body := c.buildRequest(ctx, req, false)
	logging.GenerationDebug("[Ollama] Generate: model=%s messages=%d", body.Model, len(body.Messages))

	resp, err := c.post(ctx, body)
	if err != nil {
		logging.GenerationError("[Ollama] Generate failed after %v: %v", time.Since(startTime), err)
		return "", err
	}
	defer resp.Body.Close()

	var out OllamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if out.Error != "" {
		return "", streamError("ollama", out.Error)
	}

	text := strings.TrimSpace(out.Message.Content)
	if text == "" {
		text = c.cfg.EmptyResponse
	}
	logging.Generation("[Ollama] Generate: completed in %v response_len=%d", time.Since(startTime), len(text))
	return text, nil
}

// GenerateStream implements Client. Ollama streams one JSON object per line.
func (c *OllamaClient) GenerateStream(ctx context.Context, req types.GenerationRequest) (<-chan string, <-chan error) {
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
		body := c.buildRequest(ctx, req, true)
		logging.GenerationDebug("[Ollama] GenerateStream: model=%s messages=%d", body.Model, len(body.Messages))

		resp, err := c.post(ctx, body)
		if err != nil {
			logging.GenerationError("[Ollama] GenerateStream failed after %v: %v", time.Since(startTime), err)
			errorChan <- err
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var chunk OllamaResponse
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				logging.GenerationDebug("[Ollama] skipping unparsable line: %v", err)
				continue
			}
			if chunk.Error != "" {
				errorChan <- streamError("ollama", chunk.Error)
				return
			}
			if chunk.Message.Content != "" {
				select {
				case contentChan <- chunk.Message.Content:
				case <-ctx.Done():
					errorChan <- ctx.Err()
					return
				}
			}
			if chunk.Done {
				break
			}
		}
		if err := scanner.Err(); err != nil {
			errorChan <- fmt.Errorf("stream error: %w", err)
			return
		}
		logging.Generation("[Ollama] GenerateStream: completed in %v", time.Since(startTime))
	}()

	return contentChan, errorChan
}
