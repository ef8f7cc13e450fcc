package generation

import (
	"fmt"
	"strings"

	"peterbot/internal/logging"
	"peterbot/internal/types"
)

// Persona supplies the system instruction and wraps user prompts.
type Persona interface {
	SystemInstruction() string
	Render(prompt string) string
}

// StaticPersona is a fixed Persona.
type StaticPersona struct {
	Instruction string
	Template    string // "{message}" is replaced by the prompt
}

// SystemInstruction implements Persona.
func (p StaticPersona) SystemInstruction() string { return p.Instruction }

// Render implements Persona.
func (p StaticPersona) Render(prompt string) string {
	return RenderTemplate(p.Template, prompt)
}

// RenderTemplate substitutes prompt into template. An empty template or one
// without a placeholder returns the prompt unchanged.
func RenderTemplate(template, prompt string) string {
	if template == "" || !strings.Contains(template, "{message}") {
		return prompt
	}
	return strings.ReplaceAll(template, "{message}", prompt)
}

// userText builds the final user message text for req under capability c.
// Inline vision puts the image URLs in front of the prompt.
func userText(p Persona, c Capability, req types.GenerationRequest) string {
	text := p.Render(req.Prompt)
	if !req.HasImages() {
		return text
	}
	switch c.Vision {
	case VisionInline:
		return fmt.Sprintf("[IMPORTANT: The user has shared an image at this URL: %s. "+
			"You must describe what you actually see in this image, not hallucinate or make up content. "+
			"Look at the image first before responding.] User message: %s",
			strings.Join(req.Images, " "), text)
	case VisionNone:
		logging.GenerationDebug("dropping %d images: backend has no vision", len(req.Images))
	}
	return text
}
