package config

import "peterbot/internal/logging"

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level       string `yaml:"level" json:"level,omitempty"`             // debug, info, warn, error
	Format      string `yaml:"format" json:"format,omitempty"`           // json, console
	Development bool   `yaml:"development" json:"development,omitempty"` // zap development presets
}

// ToLogging converts to the logging package's configuration.
func (c LoggingConfig) ToLogging() logging.Config {
	return logging.Config{
		Level:       c.Level,
		Format:      c.Format,
		Development: c.Development,
	}
}
