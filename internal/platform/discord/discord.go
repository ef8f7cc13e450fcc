// Package discord adapts a discordgo session to the platform interfaces.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"

	"peterbot/internal/logging"
	"peterbot/internal/platform"
	"peterbot/internal/types"
)

// Intents the bot needs: guild and direct messages with their content.
const Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

// Adapter implements platform.Adapter on Discord.
type Adapter struct {
	session *discordgo.Session

	mu   sync.RWMutex
	self types.User
}

var _ platform.Adapter = (*Adapter)(nil)

// New creates an adapter for a bot token. The gateway is not opened until Run.
func New(token string) (*Adapter, error) {
	if token == "" {
		return nil, errors.New("discord token is required")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = Intents
	return NewWithSession(s), nil
}

// NewWithSession wraps an existing session.
func NewWithSession(s *discordgo.Session) *Adapter {
	return &Adapter{session: s}
}

// Self implements platform.Platform. It is empty until the gateway is ready.
func (a *Adapter) Self() types.User {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.self
}

func (a *Adapter) setSelf(u *discordgo.User) {
	if u == nil {
		return
	}
	a.mu.Lock()
	a.self = convertUser(u)
	a.mu.Unlock()
}

// Run implements platform.Source.
func (a *Adapter) Run(ctx context.Context, h platform.Handler) error {
	removeReady := a.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		a.setSelf(r.User)
		logging.Platform("discord ready as %s (%s)", r.User.Username, r.User.ID)
	})
	defer removeReady()

	removeCreate := a.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Message == nil || m.Author == nil {
			return
		}
		msg := m.Message
		go func() {
			h(ctx, a.trigger(ctx, msg))
		}()
	})
	defer removeCreate()

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	logging.Platform("discord gateway connected")

	<-ctx.Done()

	if err := a.session.Close(); err != nil {
		logging.PlatformWarn("discord close: %v", err)
	}
	return nil
}

// trigger converts m and fills in the replied-to message when the gateway
// left referenced_message null, so replies to the bot are still recognized.
func (a *Adapter) trigger(ctx context.Context, m *discordgo.Message) types.Trigger {
	t := ToTrigger(m, a.Self())
	ref := t.Reference
	if ref == nil || ref.Message != nil {
		return t
	}
	fetched, err := a.FetchMessage(ctx, ref.ChannelID, ref.MessageID)
	if err != nil {
		logging.PlatformDebug("discord: cannot resolve referenced message %s: %v", ref.MessageID, err)
		return t
	}
	ref.Message = fetched
	return t
}

// FetchMessage implements platform.Platform.
func (a *Adapter) FetchMessage(ctx context.Context, channelID, messageID string) (*types.Message, error) {
	m, err := a.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, translateError(err)
	}
	out := convertMessage(m)
	return &out, nil
}

// Reply implements platform.Platform. Replies never ping: allowed mentions
// are empty and the replied-to author is not notified.
func (a *Adapter) Reply(ctx context.Context, to types.Message, content string) (types.MessageHandle, error) {
	send := &discordgo.MessageSend{
		Content: content,
		Reference: &discordgo.MessageReference{
			MessageID: to.ID,
			ChannelID: to.ChannelID,
		},
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{},
		},
	}
	m, err := a.session.ChannelMessageSendComplex(to.ChannelID, send, discordgo.WithContext(ctx))
	if err != nil {
		return types.MessageHandle{}, translateError(err)
	}
	return types.MessageHandle{ID: m.ID, ChannelID: m.ChannelID}, nil
}

// Edit implements platform.Platform.
func (a *Adapter) Edit(ctx context.Context, h types.MessageHandle, content string) error {
	_, err := a.session.ChannelMessageEdit(h.ChannelID, h.ID, content, discordgo.WithContext(ctx))
	return translateError(err)
}

// SendTyping implements platform.Platform.
func (a *Adapter) SendTyping(ctx context.Context, channelID string) error {
	return translateError(a.session.ChannelTyping(channelID, discordgo.WithContext(ctx)))
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %v", platform.ErrMessageNotFound, err)
	}
	return err
}
