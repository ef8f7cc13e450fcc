package generation

import (
	"net/http"
	"time"
)

// Config holds settings shared by every client.
type Config struct {
	APIKey          string
	BaseURL         string
	Capability      Capability
	MaxOutputTokens int
	MaxImageBytes   int64
	Timeout         time.Duration

	// EmptyResponse is returned by Generate when the backend answers with no text.
	EmptyResponse string

	// Persona supplies the system instruction and prompt template.
	Persona Persona

	// HTTPClient overrides the client used for API calls and image downloads.
	HTTPClient *http.Client
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = 2000
	}
	if c.Persona == nil {
		c.Persona = StaticPersona{}
	}
	if c.EmptyResponse == "" {
		c.EmptyResponse = "Empty response"
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	return c
}

// =============================================================================
// OPENAI-COMPATIBLE WIRE TYPES
// =============================================================================

// OpenAIMessage is a chat message. Content is a string, or a slice of
// OpenAIContentPart for multimodal user messages.
type OpenAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// OpenAIContentPart is one part of a multimodal message.
type OpenAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *OpenAIImageURL `json:"image_url,omitempty"`
}

// OpenAIImageURL references an image by URL.
type OpenAIImageURL struct {
	URL string `json:"url"`
}

// OpenAIRequest represents the chat completions request.
type OpenAIRequest struct {
	Model     string          `json:"model"`
	Messages  []OpenAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`
	Stream    bool            `json:"stream,omitempty"`
}

// OpenAIResponse represents a chat completions response or stream chunk.
type OpenAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		Delta *struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"delta,omitempty"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// =============================================================================
// OLLAMA WIRE TYPES
// =============================================================================

// OllamaMessage is a chat message. Images are base64 encoded.
type OllamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// OllamaOptions holds model options.
type OllamaOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

// OllamaRequest represents the /api/chat request.
type OllamaRequest struct {
	Model    string          `json:"model"`
	Messages []OllamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  OllamaOptions   `json:"options"`
}

// OllamaResponse is a /api/chat response, or one NDJSON line of a stream.
type OllamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}
