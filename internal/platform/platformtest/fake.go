// Package platformtest provides an in-memory platform.Platform for tests.
package platformtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"peterbot/internal/platform"
	"peterbot/internal/types"
)

// Op is one recorded platform call.
type Op struct {
	Kind      string // "reply", "edit", "typing"
	MessageID string
	ChannelID string
	Content   string
	At        time.Time
}

// Fake records every call. Hooks may be set to inject latency or errors;
// they run before the call is recorded. Hooks must be set before use.
type Fake struct {
	Bot types.User

	ReplyHook  func(ctx context.Context, to types.Message, content string) error
	EditHook   func(ctx context.Context, h types.MessageHandle, content string) error
	TypingHook func(ctx context.Context, channelID string) error
	FetchHook  func(ctx context.Context, channelID, messageID string) (*types.Message, error)

	mu       sync.Mutex
	ops      []Op
	messages map[string]types.Message
	nextID   int
}

var _ platform.Platform = (*Fake)(nil)

// New returns a Fake whose bot user has id "bot".
func New() *Fake {
	return &Fake{
		Bot:      types.User{ID: "bot", Username: "Peter", Bot: true},
		messages: make(map[string]types.Message),
	}
}

// Put stores a message so FetchMessage can find it.
func (f *Fake) Put(m types.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[m.ID] = m
}

// Self implements platform.Platform.
func (f *Fake) Self() types.User { return f.Bot }

// FetchMessage implements platform.Platform.
func (f *Fake) FetchMessage(ctx context.Context, channelID, messageID string) (*types.Message, error) {
	if f.FetchHook != nil {
		return f.FetchHook(ctx, channelID, messageID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	if !ok {
		return nil, platform.ErrMessageNotFound
	}
	return &m, nil
}

// Reply implements platform.Platform.
func (f *Fake) Reply(ctx context.Context, to types.Message, content string) (types.MessageHandle, error) {
	if f.ReplyHook != nil {
		if err := f.ReplyHook(ctx, to, content); err != nil {
			return types.MessageHandle{}, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	h := types.MessageHandle{ID: fmt.Sprintf("reply-%d", f.nextID), ChannelID: to.ChannelID}
	f.messages[h.ID] = types.Message{ID: h.ID, ChannelID: h.ChannelID, Author: f.Bot, Content: content}
	f.ops = append(f.ops, Op{Kind: "reply", MessageID: h.ID, ChannelID: h.ChannelID, Content: content, At: time.Now()})
	return h, nil
}

// Edit implements platform.Platform.
func (f *Fake) Edit(ctx context.Context, h types.MessageHandle, content string) error {
	if f.EditHook != nil {
		if err := f.EditHook(ctx, h, content); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.messages[h.ID]
	m.Content = content
	f.messages[h.ID] = m
	f.ops = append(f.ops, Op{Kind: "edit", MessageID: h.ID, ChannelID: h.ChannelID, Content: content, At: time.Now()})
	return nil
}

// SendTyping implements platform.Platform.
func (f *Fake) SendTyping(ctx context.Context, channelID string) error {
	if f.TypingHook != nil {
		if err := f.TypingHook(ctx, channelID); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, Op{Kind: "typing", ChannelID: channelID, At: time.Now()})
	return nil
}

// Ops returns a copy of the recorded calls, optionally filtered by kind.
func (f *Fake) Ops(kinds ...string) []Op {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Op, 0, len(f.ops))
	for _, op := range f.ops {
		if len(kinds) == 0 || contains(kinds, op.Kind) {
			out = append(out, op)
		}
	}
	return out
}

// Content returns the current content of a posted message.
func (f *Fake) Content(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[id].Content
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
