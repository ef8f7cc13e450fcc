// Package generation adapts language-model backends to the bot.
//
// Every backend implements Client. Streaming is exposed as a pair of
// channels: content deltas in order, then at most one error after the
// content channel closes.
package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"peterbot/internal/types"
)

var (
	// ErrModelOverloaded marks a backend that refused work because it is
	// overloaded or rate limited. Callers answer it with a distinct message.
	ErrModelOverloaded = errors.New("model overloaded")
	// ErrRequestFailed marks any other non-success backend response.
	ErrRequestFailed = errors.New("generation request failed")
)

// Client is a generation backend.
// Implementations are safe for concurrent use.
type Client interface {
	// Generate returns the whole answer at once.
	Generate(ctx context.Context, req types.GenerationRequest) (string, error)

	// GenerateStream returns content deltas as they arrive. The content
	// channel is closed when generation ends; the error channel then yields
	// at most one error and is closed.
	GenerateStream(ctx context.Context, req types.GenerationRequest) (<-chan string, <-chan error)

	// Capability describes what the backend accepts. Resolved once at construction.
	Capability() Capability
}

// IsOverloaded reports whether err signals an overloaded backend.
func IsOverloaded(err error) bool {
	return errors.Is(err, ErrModelOverloaded)
}

// Drain consumes a stream from c, calling onFragment for each delta in
// order, and returns the stream's terminal error.
func Drain(ctx context.Context, c Client, req types.GenerationRequest, onFragment func(string)) error {
	content, errc := c.GenerateStream(ctx, req)
	for delta := range content {
		onFragment(delta)
	}
	return <-errc
}

// overloadMarkers are lower-cased substrings of backend error text that
// indicate overload or rate limiting.
var overloadMarkers = []string{"503", "overloaded", "rate limit", "resource_exhausted", "unavailable"}

func looksOverloaded(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range overloadMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// statusError converts a non-2xx response into a classified error.
func statusError(provider string, status int, body string) error {
	body = strings.TrimSpace(body)
	if status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable || looksOverloaded(body) {
		return fmt.Errorf("%w: %s returned %d: %s", ErrModelOverloaded, provider, status, body)
	}
	return fmt.Errorf("%w: %s returned %d - %s", ErrRequestFailed, provider, status, body)
}

// streamError classifies an error reported inside a stream body.
func streamError(provider, message string) error {
	if looksOverloaded(message) {
		return fmt.Errorf("%w: %s: %s", ErrModelOverloaded, provider, message)
	}
	return fmt.Errorf("%s stream error: %s", provider, message)
}
