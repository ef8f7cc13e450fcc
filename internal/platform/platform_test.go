package platform_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peterbot/internal/platform"
	"peterbot/internal/platform/platformtest"
	"peterbot/internal/types"
)

func TestClipContent(t *testing.T) {
	assert.Equal(t, "short", platform.ClipContent("short", 10))
	assert.Equal(t, "anything", platform.ClipContent("anything", 0))

	clipped := platform.ClipContent(strings.Repeat("é", 12), 10)
	assert.Equal(t, 10, len([]rune(clipped)))
	assert.True(t, strings.HasSuffix(clipped, "…"))
}

func TestLimiterIsPerKey(t *testing.T) {
	l := platform.NewLimiter(1, 1)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))

	var nilLimiter *platform.Limiter
	assert.True(t, nilLimiter.Allow("a"))
	assert.NoError(t, nilLimiter.Wait(context.Background(), "a"))
}

func TestLimiterWaitHonorsContext(t *testing.T) {
	l := platform.NewLimiter(0.1, 1)
	require.NoError(t, l.Wait(context.Background(), "c"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "c"))
}

func TestPacedClipsAndForwards(t *testing.T) {
	fake := platformtest.New()
	p := platform.NewPaced(fake, platform.NewLimiter(100, 10), 5)

	msg := types.Message{ID: "m1", ChannelID: "c1"}
	h, err := p.Reply(context.Background(), msg, "hello world")
	require.NoError(t, err)
	assert.Equal(t, "hell…", fake.Content(h.ID))

	require.NoError(t, p.Edit(context.Background(), h, "hey"))
	assert.Equal(t, "hey", fake.Content(h.ID))

	require.NoError(t, p.SendTyping(context.Background(), "c1"))
	assert.Len(t, fake.Ops("typing"), 1)
	assert.Equal(t, fake.Bot, p.Self())
}

func TestPacedSkipsTypingWithoutBudget(t *testing.T) {
	fake := platformtest.New()
	p := platform.NewPaced(fake, platform.NewLimiter(0.01, 1), 0)

	require.NoError(t, p.SendTyping(context.Background(), "c1"))
	require.NoError(t, p.SendTyping(context.Background(), "c1"))
	assert.Len(t, fake.Ops("typing"), 1)
}

func TestFakeFetch(t *testing.T) {
	fake := platformtest.New()
	fake.Put(types.Message{ID: "x", Content: "stored"})

	m, err := fake.FetchMessage(context.Background(), "c", "x")
	require.NoError(t, err)
	assert.Equal(t, "stored", m.Content)

	_, err = fake.FetchMessage(context.Background(), "c", "missing")
	assert.ErrorIs(t, err, platform.ErrMessageNotFound)
}
