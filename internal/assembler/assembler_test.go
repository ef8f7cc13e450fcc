package assembler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peterbot/internal/history"
	"peterbot/internal/platform"
	"peterbot/internal/platform/platformtest"
	"peterbot/internal/types"
)

var lois = types.User{ID: "u1", Username: "lois"}

func newStore(t *testing.T) history.Store {
	t.Helper()
	s, err := history.NewStore(history.StoreTypeMemory)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCleanPrompt(t *testing.T) {
	self := types.User{ID: "42", Username: "Peter"}
	tests := []struct {
		name string
		msg  types.Message
		want string
	}{
		{"discord mention", types.Message{Content: "<@42> what time is it"}, "what time is it"},
		{"nickname mention", types.Message{Content: "hey <@!42>   you there?"}, "hey you there?"},
		{"handle mention", types.Message{Content: "@peter tell @lois hi", Mentions: []types.User{lois}}, "tell hi"},
		{"handle prefix not stripped", types.Message{Content: "@peterson hi"}, "@peterson hi"},
		{"only mention", types.Message{Content: "<@42>"}, ""},
		{"multiline kept", types.Message{Content: "<@42> line1\nline2"}, "line1\nline2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanPrompt(tt.msg, self))
		})
	}
}

func TestExtractImages(t *testing.T) {
	m := types.Message{
		Content: "see https://x.io/a.PNG and https://x.io/b.jpg?size=large and https://x.io/doc.pdf and https://x.io/a.PNG",
		Attachments: []types.Attachment{
			{URL: "https://cdn/1.webp", ContentType: "image/webp"},
			{URL: "https://cdn/2.txt", ContentType: "text/plain"},
			{URL: "https://cdn/3.jpg", ContentType: "IMAGE/JPEG; charset=binary"},
			{URL: "https://cdn/4.svg", ContentType: "image/svg+xml"},
		},
	}
	want := []string{
		"https://cdn/1.webp",
		"https://cdn/3.jpg",
		"https://x.io/a.PNG",
		"https://x.io/b.jpg?size=large",
		"https://x.io/a.PNG",
	}
	if diff := cmp.Diff(want, ExtractImages(m)); diff != "" {
		t.Errorf("ExtractImages mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, ExtractImages(types.Message{Content: "no images"}))
}

func TestAssembleNoReference(t *testing.T) {
	fake := platformtest.New()
	a := New(fake, newStore(t), nil)

	req, err := a.Assemble(context.Background(), types.Trigger{Message: types.Message{
		Content:     "@Peter what's this https://x.io/c.gif",
		Attachments: []types.Attachment{{URL: "https://cdn/a.png", ContentType: "image/png"}},
	}})
	require.NoError(t, err)
	assert.Equal(t, "what's this https://x.io/c.gif", req.Prompt)
	assert.Equal(t, []string{"https://cdn/a.png", "https://x.io/c.gif"}, req.Images)
	assert.Empty(t, req.History)
}

func TestAssembleReplyToHuman(t *testing.T) {
	fake := platformtest.New()
	fake.Put(types.Message{
		ID:          "m1",
		ChannelID:   "c",
		Author:      lois,
		Content:     "look at my cat",
		Attachments: []types.Attachment{{URL: "https://cdn/cat.png", ContentType: "image/png"}},
	})
	a := New(fake, newStore(t), nil)

	req, err := a.Assemble(context.Background(), types.Trigger{Message: types.Message{
		ChannelID:   "c",
		Content:     "@Peter is it cute?",
		Attachments: []types.Attachment{{URL: "https://cdn/dog.jpg", ContentType: "image/jpeg"}},
		Reference:   &types.Reference{MessageID: "m1", ChannelID: "c"},
	}})
	require.NoError(t, err)

	want := types.GenerationRequest{
		Prompt: "is it cute?",
		Images: []string{"https://cdn/cat.png", "https://cdn/dog.jpg"},
		History: []types.Turn{
			types.UserTurn("look at my cat [Images: https://cdn/cat.png]"),
		},
	}
	if diff := cmp.Diff(want, req); diff != "" {
		t.Errorf("Assemble mismatch (-want +got):\n%s", diff)
	}
}

func TestAssembleReplyToBotUsesStoredHistory(t *testing.T) {
	fake := platformtest.New()
	store := newStore(t)
	stored := []types.Turn{types.UserTurn("hi"), types.ModelTurn("Hehehe, hey")}
	require.NoError(t, store.Set(context.Background(), types.AnchorOf("c", "r1"), stored, time.Hour))

	a := New(fake, store, nil)
	botMsg := types.Message{ID: "r1", ChannelID: "c", Author: fake.Bot, Content: "Hehehe, hey"}

	req, err := a.Assemble(context.Background(), types.Trigger{Message: types.Message{
		Content:   "and then?",
		Reference: &types.Reference{MessageID: "r1", ChannelID: "c", Message: &botMsg},
	}})
	require.NoError(t, err)
	assert.Equal(t, stored, req.History)
	assert.Empty(t, req.Images)
}

func TestAssembleSyntheticTurnBeforeStoredHistory(t *testing.T) {
	fake := platformtest.New()
	store := newStore(t)
	require.NoError(t, store.Set(context.Background(), types.AnchorOf("c", "m1"), []types.Turn{types.UserTurn("old"), types.ModelTurn("older")}, 0))

	a := New(fake, store, nil)
	ref := types.Message{ID: "m1", ChannelID: "c", Author: lois, Content: "context"}
	req, err := a.Assemble(context.Background(), types.Trigger{Message: types.Message{
		ChannelID: "c",
		Content:   "q",
		Reference: &types.Reference{MessageID: "m1", ChannelID: "c", Message: &ref},
	}})
	require.NoError(t, err)
	require.Len(t, req.History, 3)
	assert.Equal(t, types.UserTurn("context"), req.History[0])
	assert.Equal(t, "old", req.History[1].Text)
}

func TestAssembleHistoryIsScopedToChannel(t *testing.T) {
	fake := platformtest.New()
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, types.AnchorFor(types.MessageHandle{ID: "5", ChannelID: "chatA"}), []types.Turn{
		types.UserTurn("chat A secret"),
		types.ModelTurn("ok"),
	}, time.Hour))

	a := New(fake, store, nil)
	botMsg := types.Message{ID: "5", ChannelID: "chatB", Author: fake.Bot, Content: "hey"}
	req, err := a.Assemble(ctx, types.Trigger{Message: types.Message{
		ChannelID: "chatB",
		Content:   "what did we talk about?",
		Reference: &types.Reference{MessageID: "5", ChannelID: "chatB", Message: &botMsg},
	}})
	require.NoError(t, err)
	assert.Empty(t, req.History)

	req, err = a.Assemble(ctx, types.Trigger{Message: types.Message{
		ChannelID: "chatA",
		Content:   "what did we talk about?",
		Reference: &types.Reference{MessageID: "5", Message: &types.Message{ID: "5", ChannelID: "chatA", Author: fake.Bot}},
	}})
	require.NoError(t, err)
	assert.Equal(t, []types.Turn{types.UserTurn("chat A secret"), types.ModelTurn("ok")}, req.History)
}

func TestAssembleFetchFailureContinues(t *testing.T) {
	fake := platformtest.New()
	var fetchedFrom string
	fake.FetchHook = func(ctx context.Context, channelID, messageID string) (*types.Message, error) {
		fetchedFrom = channelID
		return nil, errors.New("discord is down")
	}
	store := newStore(t)
	require.NoError(t, store.Set(context.Background(), types.AnchorOf("c", "m1"), []types.Turn{types.UserTurn("a"), types.ModelTurn("b")}, 0))

	a := New(fake, store, nil)
	req, err := a.Assemble(context.Background(), types.Trigger{Message: types.Message{
		ChannelID: "c",
		Content:   "hello",
		Reference: &types.Reference{MessageID: "m1"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "hello", req.Prompt)
	assert.Len(t, req.History, 2)
	assert.Equal(t, "c", fetchedFrom)
}

func TestAssembleFetchUnsupported(t *testing.T) {
	fake := platformtest.New()
	fake.FetchHook = func(ctx context.Context, channelID, messageID string) (*types.Message, error) {
		return nil, platform.ErrFetchUnsupported
	}
	a := New(fake, nil, nil)
	req, err := a.Assemble(context.Background(), types.Trigger{Message: types.Message{
		Content:   "hello",
		Reference: &types.Reference{MessageID: "gone"},
	}})
	require.NoError(t, err)
	assert.Empty(t, req.History)
}

type failingStore struct{ history.Store }

func (failingStore) Get(ctx context.Context, anchor types.Anchor) ([]types.Turn, error) {
	return nil, errors.New("redis unreachable")
}

func TestAssembleHistoryFailureContinues(t *testing.T) {
	fake := platformtest.New()
	ref := types.Message{ID: "m1", Author: lois, Content: "ctx"}
	a := New(fake, failingStore{}, nil)

	req, err := a.Assemble(context.Background(), types.Trigger{Message: types.Message{
		Content:   "q",
		Reference: &types.Reference{MessageID: "m1", Message: &ref},
	}})
	require.NoError(t, err)
	assert.Equal(t, []types.Turn{types.UserTurn("ctx")}, req.History)
}

func TestAssembleImageOnlyReference(t *testing.T) {
	fake := platformtest.New()
	ref := types.Message{
		ID:          "m1",
		Author:      lois,
		Attachments: []types.Attachment{{URL: "https://cdn/x.gif", ContentType: "image/gif"}},
	}
	a := New(fake, nil, nil)
	req, err := a.Assemble(context.Background(), types.Trigger{Message: types.Message{
		Content:   "what is it",
		Reference: &types.Reference{MessageID: "m1", Message: &ref},
	}})
	require.NoError(t, err)
	assert.Equal(t, []types.Turn{types.UserTurn("[Images: https://cdn/x.gif]")}, req.History)
	assert.Equal(t, []string{"https://cdn/x.gif"}, req.Images)
}

func TestAssembleCancelled(t *testing.T) {
	fake := platformtest.New()
	fake.FetchHook = func(ctx context.Context, channelID, messageID string) (*types.Message, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	a := New(fake, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Assemble(ctx, types.Trigger{Message: types.Message{Reference: &types.Reference{MessageID: "x"}}})
	assert.ErrorIs(t, err, context.Canceled)
}
