package generation

import (
	"peterbot/internal/config"
	"peterbot/internal/types"
)

// VisionMode is how a backend receives images.
type VisionMode string

const (
	// VisionMultimodal sends images as structured parts.
	VisionMultimodal VisionMode = config.VisionMultimodal
	// VisionInline embeds image URLs in the prompt text.
	VisionInline VisionMode = config.VisionInline
	// VisionNone drops images.
	VisionNone VisionMode = config.VisionNone
)

// Capability is the resolved descriptor of a backend.
type Capability struct {
	Provider    string
	TextModel   string
	VisionModel string
	Vision      VisionMode
}

// ResolveCapability derives the descriptor from configuration.
func ResolveCapability(cfg config.LLMConfig) Capability {
	vision := VisionMode(cfg.Vision)
	if vision == "" {
		vision = VisionMultimodal
	}
	return Capability{
		Provider:    cfg.Provider,
		TextModel:   cfg.TextModel,
		VisionModel: cfg.EffectiveVisionModel(),
		Vision:      vision,
	}
}

// ModelFor picks the model that serves req.
func (c Capability) ModelFor(req types.GenerationRequest) string {
	if req.HasImages() && c.Vision != VisionNone && c.VisionModel != "" {
		return c.VisionModel
	}
	return c.TextModel
}

// SendsImageParts reports whether images for req travel as structured parts.
func (c Capability) SendsImageParts(req types.GenerationRequest) bool {
	return req.HasImages() && c.Vision == VisionMultimodal
}
