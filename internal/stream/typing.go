package stream

import (
	"context"
	"sync"
	"time"

	"peterbot/internal/logging"
)

// DefaultTypingInterval refreshes the indicator before platforms expire it.
const DefaultTypingInterval = 8 * time.Second

// TypingSender shows a typing indicator in a channel.
type TypingSender interface {
	SendTyping(ctx context.Context, channelID string) error
}

// Indicator keeps a typing indicator alive until stopped.
type Indicator struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// StartTyping sends a typing indicator now and then every interval until
// Stop is called or ctx ends. Send failures are ignored.
func StartTyping(ctx context.Context, s TypingSender, channelID string, interval time.Duration) *Indicator {
	if interval <= 0 {
		interval = DefaultTypingInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	ind := &Indicator{cancel: cancel, done: make(chan struct{})}
	go ind.loop(ctx, s, channelID, interval)
	return ind
}

func (i *Indicator) loop(ctx context.Context, s TypingSender, channelID string, interval time.Duration) {
	defer close(i.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := s.SendTyping(ctx, channelID); err != nil && ctx.Err() == nil {
			logging.StreamDebug("typing indicator in %s failed: %v", channelID, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels the indicator and waits for its goroutine. Safe to call
// more than once and on a nil Indicator.
func (i *Indicator) Stop() {
	if i == nil {
		return
	}
	i.once.Do(i.cancel)
	<-i.done
}
