package config

import "fmt"

// Supported generation providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Vision modes describe how a backend receives images.
const (
	// VisionMultimodal sends images as structured parts.
	VisionMultimodal = "multimodal"
	// VisionInline embeds image URLs in the prompt text.
	VisionInline = "inline"
	// VisionNone drops images.
	VisionNone = "none"
)

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{ProviderGemini, ProviderOpenAI, ProviderOllama}

// LLMConfig configures the generation backend.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini, openai, ollama
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`

	// TextModel serves prompts without images, VisionModel prompts with images.
	// An empty VisionModel falls back to TextModel.
	TextModel   string `yaml:"text_model"`
	VisionModel string `yaml:"vision_model"`

	// Vision selects how images reach the model: multimodal, inline, none.
	Vision string `yaml:"vision"`

	MaxOutputTokens int    `yaml:"max_output_tokens"`
	MaxImageSize    string `yaml:"max_image_size"` // e.g. "8MB"
	Timeout         string `yaml:"timeout"`
}

// DefaultLLMConfig returns defaults for the Gemini backend.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:        ProviderGemini,
		TextModel:       "gemini-2.0-flash",
		VisionModel:     "gemini-2.0-flash",
		Vision:          VisionMultimodal,
		MaxOutputTokens: 2000,
		MaxImageSize:    "8MB",
		Timeout:         "120s",
	}
}

// EffectiveVisionModel returns the model used for requests carrying images.
func (c LLMConfig) EffectiveVisionModel() string {
	if c.VisionModel != "" {
		return c.VisionModel
	}
	return c.TextModel
}

// Validate checks the provider settings.
func (c LLMConfig) Validate() error {
	if !contains(ValidProviders, c.Provider) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.Provider, ValidProviders)
	}
	if c.Provider != ProviderOllama && c.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set GEMINI_API_KEY or OPENAI_API_KEY)")
	}
	if c.TextModel == "" {
		return fmt.Errorf("llm.text_model not configured")
	}
	switch c.Vision {
	case VisionMultimodal, VisionInline, VisionNone, "":
	default:
		return fmt.Errorf("invalid llm.vision: %s (valid: multimodal, inline, none)", c.Vision)
	}
	return nil
}
