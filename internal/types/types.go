// Package types provides shared type definitions used across peterbot packages.
// This package exists to break import cycles between the platform adapters,
// the assembler, the generation clients and the dispatcher.
package types

import (
	"strings"
	"time"
)

// =============================================================================
// CHAT MESSAGES
// =============================================================================

// User identifies a message author on the chat platform.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}

// Attachment is a file attached to a message.
type Attachment struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Filename    string `json:"filename,omitempty"`
}

// MediaType returns the lower-cased content type without parameters.
func (a Attachment) MediaType() string {
	ct := a.ContentType
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// Reference points at the message a trigger replies to.
// Message is set when the platform delivered the referenced message inline.
type Reference struct {
	MessageID string   `json:"message_id"`
	ChannelID string   `json:"channel_id"`
	Message   *Message `json:"message,omitempty"`
}

// Message is a chat message as seen by the bot.
type Message struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channel_id"`
	Author      User         `json:"author"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Mentions    []User       `json:"mentions,omitempty"`
	Reference   *Reference   `json:"reference,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// MentionsUser reports whether the message mentions the given user id.
func (m Message) MentionsUser(id string) bool {
	for _, u := range m.Mentions {
		if u.ID == id {
			return true
		}
	}
	return false
}

// Trigger is an incoming message the dispatcher may respond to.
// MentionsBot is filled in by the platform adapter, which knows how the
// platform encodes mentions.
type Trigger struct {
	Message
	MentionsBot bool
}

// RepliesTo reports whether the trigger is a reply to a message authored by botID.
// Adapters resolve Reference.Message before dispatch when the platform did
// not deliver it inline; an unresolved reference is not a reply to the bot.
func (t Trigger) RepliesTo(botID string) bool {
	if t.Reference == nil || t.Reference.Message == nil {
		return false
	}
	return t.Reference.Message.Author.ID == botID
}

// MessageHandle addresses a message the bot posted.
type MessageHandle struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

// IsZero reports whether the handle is unset.
func (h MessageHandle) IsZero() bool {
	return h.ID == ""
}

// =============================================================================
// CONVERSATION HISTORY
// =============================================================================

// Role is the speaker of a Turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

// Turn is one utterance in a conversation.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// UserTurn builds a user Turn.
func UserTurn(text string) Turn { return Turn{Role: RoleUser, Text: text} }

// ModelTurn builds a model Turn.
func ModelTurn(text string) Turn { return Turn{Role: RoleModel, Text: text} }

// Anchor keys a persisted conversation. It names the bot's own reply
// message that closed the conversation's latest exchange, scoped by
// channel because message ids are only unique within a chat on some
// platforms.
type Anchor string

// AnchorOf returns the anchor of message messageID in channelID.
func AnchorOf(channelID, messageID string) Anchor {
	return Anchor(channelID + ":" + messageID)
}

// AnchorFor returns the anchor of a posted message.
func AnchorFor(h MessageHandle) Anchor {
	return AnchorOf(h.ChannelID, h.ID)
}

// Anchor returns the anchor of the referenced message. A reference
// without a channel points into fallbackChannel.
func (r Reference) Anchor(fallbackChannel string) Anchor {
	channel := r.ChannelID
	if channel == "" {
		channel = fallbackChannel
	}
	return AnchorOf(channel, r.MessageID)
}

// =============================================================================
// GENERATION
// =============================================================================

// GenerationRequest is the assembled input to a generation backend.
// History is ordered oldest first and excludes the current prompt.
type GenerationRequest struct {
	Prompt  string
	Images  []string
	History []Turn
}

// HasImages reports whether the request carries any image URLs.
func (r GenerationRequest) HasImages() bool {
	return len(r.Images) > 0
}
