// Package platform defines what the bot needs from a chat platform.
//
// Adapters (discord, telegram) translate platform events into
// types.Trigger values and implement the message operations below. The
// core never imports an adapter.
package platform

import (
	"context"
	"errors"
	"unicode/utf8"

	"peterbot/internal/types"
)

var (
	// ErrFetchUnsupported is returned by adapters whose API cannot look up
	// a message by id. Callers treat it as "no reply context".
	ErrFetchUnsupported = errors.New("platform cannot fetch messages by id")
	// ErrMessageNotFound is returned when a referenced message is gone.
	ErrMessageNotFound = errors.New("message not found")
)

// Platform is the set of chat operations the bot performs.
// Implementations must be safe for concurrent use.
type Platform interface {
	// Self returns the bot's own identity.
	Self() types.User

	// FetchMessage loads a message by id.
	FetchMessage(ctx context.Context, channelID, messageID string) (*types.Message, error)

	// Reply posts content as a reply to msg without pinging anyone.
	Reply(ctx context.Context, to types.Message, content string) (types.MessageHandle, error)

	// Edit replaces the content of a message the bot posted.
	Edit(ctx context.Context, h types.MessageHandle, content string) error

	// SendTyping shows the typing indicator in a channel for a few seconds.
	SendTyping(ctx context.Context, channelID string) error
}

// Handler receives triggers from a Source. It is called on its own
// goroutine per trigger.
type Handler func(ctx context.Context, t types.Trigger)

// Source delivers inbound messages.
type Source interface {
	// Run connects and delivers triggers to h until ctx is cancelled.
	Run(ctx context.Context, h Handler) error
}

// Adapter is a full platform integration.
type Adapter interface {
	Platform
	Source
}

// Display limits in characters.
const (
	DiscordMaxContent  = 2000
	TelegramMaxContent = 4096
)

const ellipsis = "…"

// ClipContent shortens s to at most max runes. Clipped text ends with an
// ellipsis. max <= 0 disables clipping.
func ClipContent(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + ellipsis
}
