package platform

import (
	"context"

	"peterbot/internal/types"
)

// Paced wraps a Platform so every outgoing write waits on a per-channel
// Limiter and displayed content is clipped to maxContent runes.
type Paced struct {
	inner      Platform
	limiter    *Limiter
	maxContent int
}

// NewPaced decorates p.
func NewPaced(p Platform, limiter *Limiter, maxContent int) *Paced {
	return &Paced{inner: p, limiter: limiter, maxContent: maxContent}
}

// Self implements Platform.
func (p *Paced) Self() types.User { return p.inner.Self() }

// FetchMessage implements Platform. Reads are not paced.
func (p *Paced) FetchMessage(ctx context.Context, channelID, messageID string) (*types.Message, error) {
	return p.inner.FetchMessage(ctx, channelID, messageID)
}

// Reply implements Platform.
func (p *Paced) Reply(ctx context.Context, to types.Message, content string) (types.MessageHandle, error) {
	if err := p.limiter.Wait(ctx, to.ChannelID); err != nil {
		return types.MessageHandle{}, err
	}
	return p.inner.Reply(ctx, to, ClipContent(content, p.maxContent))
}

// Edit implements Platform.
func (p *Paced) Edit(ctx context.Context, h types.MessageHandle, content string) error {
	if err := p.limiter.Wait(ctx, h.ChannelID); err != nil {
		return err
	}
	return p.inner.Edit(ctx, h, ClipContent(content, p.maxContent))
}

// SendTyping implements Platform. Typing is skipped rather than delayed
// when the channel has no spare budget.
func (p *Paced) SendTyping(ctx context.Context, channelID string) error {
	if !p.limiter.Allow(channelID) {
		return nil
	}
	return p.inner.SendTyping(ctx, channelID)
}
