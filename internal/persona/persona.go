// Package persona loads the bot's voice: the system instruction sent to the
// model and the template every user prompt is wrapped in.
package persona

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"peterbot/internal/generation"
	"peterbot/internal/logging"
)

// Placeholder is replaced by the user's prompt in PromptTemplate.
const Placeholder = "{message}"

// Persona is the on-disk persona definition.
type Persona struct {
	Name              string `yaml:"name"`
	SystemInstruction string `yaml:"system_instruction"`
	PromptTemplate    string `yaml:"prompt_template"`
}

// Default returns the built-in persona used when no file is present.
func Default() Persona {
	return Persona{
		Name: "Peter",
		SystemInstruction: "You are Peter Griffin from Family Guy, hanging out in a group chat. " +
			"Keep answers short and in character.",
		PromptTemplate: "Respond as if you were Peter Griffin from Family Guy. Avoid phrases used by other " +
			"characters from the show, e.g 'Giggity', which is used by Glenn Quagmire. Here's the message: " +
			Placeholder,
	}
}

// Load reads a persona file. A missing file yields Default.
func Load(path string) (Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Persona("persona file %s not found, using built-in persona", path)
			return Default(), nil
		}
		return Persona{}, fmt.Errorf("failed to read persona file: %w", err)
	}

	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Persona{}, fmt.Errorf("failed to parse persona file: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Persona{}, err
	}
	return p, nil
}

// Validate rejects personas that would silently drop the user's prompt.
func (p Persona) Validate() error {
	if strings.TrimSpace(p.SystemInstruction) == "" && strings.TrimSpace(p.PromptTemplate) == "" {
		return fmt.Errorf("persona %q defines neither system_instruction nor prompt_template", p.Name)
	}
	if p.PromptTemplate != "" && !strings.Contains(p.PromptTemplate, Placeholder) {
		return fmt.Errorf("persona %q prompt_template must contain %s", p.Name, Placeholder)
	}
	return nil
}

// Render wraps prompt in the template.
func (p Persona) Render(prompt string) string {
	return generation.RenderTemplate(p.PromptTemplate, prompt)
}

// Static adapts p to a fixed generation.Persona.
func (p Persona) Static() generation.StaticPersona {
	return generation.StaticPersona{Instruction: p.SystemInstruction, Template: p.PromptTemplate}
}
