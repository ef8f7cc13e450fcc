// Package assembler builds generation requests from chat triggers.
//
// A request is the trigger's cleaned prompt, the images from the trigger
// and the message it replies to, and the conversation history: a synthetic
// user turn for a replied-to human message followed by whatever history is
// persisted under the replied-to message's anchor.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"peterbot/internal/history"
	"peterbot/internal/logging"
	"peterbot/internal/metrics"
	"peterbot/internal/platform"
	"peterbot/internal/types"
)

// imageMediaTypes are attachment content types treated as images.
var imageMediaTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/gif":  true,
	"image/webp": true,
}

var (
	// imageURLPattern matches literal image links in message text.
	imageURLPattern = regexp.MustCompile(`(?i)https?://[^\s<>"]+\.(?:png|jpe?g|gif|webp)(?:\?[^\s<>"]*)?`)
	// userMentionPattern matches platform-encoded user mentions such as <@123> and <@!123>.
	userMentionPattern = regexp.MustCompile(`<@!?\d+>`)
	spaceRuns          = regexp.MustCompile(`[ \t]{2,}`)
)

// Assembler builds requests. It only reads platform state.
type Assembler struct {
	platform platform.Platform
	store    history.Store
	metrics  *metrics.Collector
}

// New creates an Assembler. store and m may be nil.
func New(p platform.Platform, store history.Store, m *metrics.Collector) *Assembler {
	return &Assembler{platform: p, store: store, metrics: m}
}

// Assemble builds the request for t. Failures to load reply context or
// history are logged and treated as absent; only a cancelled ctx is an error.
func (a *Assembler) Assemble(ctx context.Context, t types.Trigger) (types.GenerationRequest, error) {
	timer := logging.StartTimer(logging.CategoryAssembly, "Assemble")
	defer timer.StopWithThreshold(2 * time.Second)

	if err := ctx.Err(); err != nil {
		return types.GenerationRequest{}, err
	}

	self := a.platform.Self()
	req := types.GenerationRequest{
		Prompt: CleanPrompt(t.Message, self),
	}
	current := ExtractImages(t.Message)

	if t.Reference == nil || t.Reference.MessageID == "" {
		req.Images = current
		a.metrics.AssembledTurns(0)
		return req, nil
	}

	ref := *t.Reference
	if ref.ChannelID == "" {
		ref.ChannelID = t.ChannelID
	}

	var (
		referenced *types.Message
		stored     []types.Turn
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		referenced = a.referencedMessage(gctx, &ref)
		return nil
	})
	g.Go(func() error {
		stored = a.storedHistory(gctx, ref.Anchor(t.ChannelID))
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return types.GenerationRequest{}, err
	}

	var refImages []string
	if referenced != nil && referenced.Author.ID != self.ID {
		refImages = ExtractImages(*referenced)
		if text := syntheticTurnText(CleanPrompt(*referenced, self), refImages); text != "" {
			req.History = append(req.History, types.UserTurn(text))
		}
	}
	req.History = append(req.History, stored...)
	req.Images = append(refImages, current...)

	a.metrics.AssembledTurns(len(req.History))
	logging.AssemblyDebug("assembled request: prompt_len=%d images=%d history=%d",
		len(req.Prompt), len(req.Images), len(req.History))
	return req, nil
}

// referencedMessage resolves the replied-to message, preferring the copy
// the platform delivered inline.
func (a *Assembler) referencedMessage(ctx context.Context, ref *types.Reference) *types.Message {
	if ref.Message != nil {
		return ref.Message
	}
	m, err := a.platform.FetchMessage(ctx, ref.ChannelID, ref.MessageID)
	if err != nil {
		if errors.Is(err, platform.ErrFetchUnsupported) {
			logging.AssemblyDebug("reply context unavailable for %s: %v", ref.MessageID, err)
		} else {
			logging.AssemblyWarn("failed to fetch referenced message %s: %v", ref.MessageID, err)
		}
		return nil
	}
	return m
}

func (a *Assembler) storedHistory(ctx context.Context, anchor types.Anchor) []types.Turn {
	if a.store == nil {
		return nil
	}
	turns, err := a.store.Get(ctx, anchor)
	a.metrics.HistoryOp("get", err)
	if err != nil {
		logging.AssemblyWarn("history lookup for %s failed: %v", anchor, err)
		return nil
	}
	return turns
}

// syntheticTurnText renders a replied-to message as history text. Images
// are listed as URLs so the turn can be replayed later.
func syntheticTurnText(text string, images []string) string {
	if len(images) == 0 {
		return text
	}
	list := fmt.Sprintf("[Images: %s]", strings.Join(images, ", "))
	if text == "" {
		return list
	}
	return text + " " + list
}

// CleanPrompt removes mentions of the bot and of mentioned users from the
// message text and trims the result.
func CleanPrompt(m types.Message, self types.User) string {
	text := userMentionPattern.ReplaceAllString(m.Content, "")

	names := make([]string, 0, len(m.Mentions)+1)
	if self.Username != "" {
		names = append(names, self.Username)
	}
	for _, u := range m.Mentions {
		if u.Username != "" {
			names = append(names, u.Username)
		}
	}
	for _, name := range names {
		text = removeHandle(text, name)
	}

	text = spaceRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// removeHandle drops "@name" tokens, case-insensitively, on word boundaries.
func removeHandle(text, name string) string {
	re, err := regexp.Compile(`(?i)@` + regexp.QuoteMeta(name) + `\b`)
	if err != nil {
		return text
	}
	return re.ReplaceAllString(text, "")
}

// ExtractImages returns image attachment URLs followed by image URLs found
// in the text. Duplicates are kept.
func ExtractImages(m types.Message) []string {
	var images []string
	for _, att := range m.Attachments {
		if imageMediaTypes[att.MediaType()] {
			images = append(images, att.URL)
		}
	}
	images = append(images, imageURLPattern.FindAllString(m.Content, -1)...)
	return images
}
