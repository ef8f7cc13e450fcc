// Package dispatch decides whether to answer a trigger and drives one
// response end to end: assembly, streamed display, history persistence and
// translation of failures into in-character replies.
//
// Every trigger is handled on its own goroutine. A failure or panic while
// handling one trigger never reaches another.
package dispatch

import (
	"context"
	"fmt"
	"math/rand"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"peterbot/internal/assembler"
	"peterbot/internal/generation"
	"peterbot/internal/history"
	"peterbot/internal/logging"
	"peterbot/internal/metrics"
	"peterbot/internal/platform"
	"peterbot/internal/stream"
	"peterbot/internal/types"
)

// Default user-facing texts.
const (
	DefaultOverloaded  = "Hehehe, my brain's all full up right now. Try me again in a bit!"
	DefaultMalfunction = "Hehehe, sorry folks, I had a bit of a malfunction there!"
)

// orphanPrefix keys history for responses that never got a visible message.
const orphanPrefix = "orphan:"

// Deps are the shared clients a Dispatcher uses. Store and Metrics may be nil.
type Deps struct {
	Platform platform.Platform
	Client   generation.Client
	Store    history.Store
	Metrics  *metrics.Collector
}

// Options tunes dispatch behaviour. Zero values fall back to defaults.
type Options struct {
	// ReplyProbability is the chance of answering a message that neither
	// mentions nor replies to the bot.
	ReplyProbability float64
	FlushInterval    time.Duration
	TypingInterval   time.Duration
	HistoryTTL       time.Duration
	MaxTurns         int
	// MaxContent is the platform's message length limit in runes.
	MaxContent int

	OverloadedMessage  string
	MalfunctionMessage string
	EmptyMessage       string

	// Rand returns a value in [0,1) for the unprompted reply draw.
	Rand func() float64
}

func (o *Options) applyDefaults() {
	if o.HistoryTTL <= 0 {
		o.HistoryTTL = 2 * time.Hour
	}
	if o.OverloadedMessage == "" {
		o.OverloadedMessage = DefaultOverloaded
	}
	if o.MalfunctionMessage == "" {
		o.MalfunctionMessage = DefaultMalfunction
	}
	if o.EmptyMessage == "" {
		o.EmptyMessage = stream.DefaultFallback
	}
	if o.Rand == nil {
		o.Rand = rand.Float64
	}
}

// Dispatcher handles triggers.
type Dispatcher struct {
	platform  platform.Platform
	client    generation.Client
	store     history.Store
	metrics   *metrics.Collector
	assembler *assembler.Assembler
	opts      Options
}

// New creates a Dispatcher.
func New(deps Deps, opts Options) (*Dispatcher, error) {
	if deps.Platform == nil {
		return nil, fmt.Errorf("dispatch: platform is required")
	}
	if deps.Client == nil {
		return nil, fmt.Errorf("dispatch: generation client is required")
	}
	opts.applyDefaults()
	return &Dispatcher{
		platform:  deps.Platform,
		client:    deps.Client,
		store:     deps.Store,
		metrics:   deps.Metrics,
		assembler: assembler.New(deps.Platform, deps.Store, deps.Metrics),
		opts:      opts,
	}, nil
}

// ShouldRespond reports whether t deserves an answer and why.
// Bot authors are always ignored.
func (d *Dispatcher) ShouldRespond(t types.Trigger) (bool, string) {
	self := d.platform.Self()
	if t.Author.Bot || (self.ID != "" && t.Author.ID == self.ID) {
		return false, metrics.DecisionSkipBot
	}
	if t.MentionsBot || (self.ID != "" && t.MentionsUser(self.ID)) {
		return true, metrics.DecisionMention
	}
	if self.ID != "" && t.RepliesTo(self.ID) {
		return true, metrics.DecisionReplyToBot
	}
	if p := d.opts.ReplyProbability; p > 0 && d.opts.Rand() < p {
		return true, metrics.DecisionRandomSample
	}
	return false, metrics.DecisionSkipIgnored
}

// Handle answers t if it should be answered. It never panics and reports
// nothing to the caller; outcomes are logged and counted.
func (d *Dispatcher) Handle(ctx context.Context, t types.Trigger) {
	respond, decision := d.ShouldRespond(t)
	d.metrics.Trigger(decision)
	if !respond {
		logging.DispatchDebug("ignoring message %s (%s)", t.ID, decision)
		return
	}

	done := d.metrics.ResponseStarted()
	outcome := metrics.OutcomePanic
	defer func() {
		if r := recover(); r != nil {
			logging.DispatchError("panic while handling message %s: %v\n%s", t.ID, r, debug.Stack())
			d.replyError(ctx, t.Message, d.opts.MalfunctionMessage)
		}
		done(outcome)
	}()

	outcome = d.respond(ctx, t, decision)
}

func (d *Dispatcher) respond(ctx context.Context, t types.Trigger, decision string) string {
	log := logging.Get(logging.CategoryDispatch).With(
		zap.String("trace", uuid.NewString()[:8]),
		zap.String("channel", t.ChannelID),
		zap.String("message", t.ID),
		zap.String("author", t.Author.Username),
	)
	log.Info("responding", zap.String("decision", decision))

	typing := stream.StartTyping(ctx, d.platform, t.ChannelID, d.opts.TypingInterval)
	defer typing.Stop()

	req, err := d.assembler.Assemble(ctx, t)
	if err != nil {
		log.Warn("assembly aborted", zap.Error(err))
		return metrics.OutcomeMalfunction
	}

	fragments, errs := d.client.GenerateStream(ctx, req)
	rec := stream.NewReconciler(stream.ReplyTo(d.platform, t.Message), stream.Options{
		MinInterval: d.opts.FlushInterval,
		Fallback:    d.opts.EmptyMessage,
		MaxContent:  d.opts.MaxContent,
		Metrics:     d.metrics,
	})
	res, genErr := rec.Run(ctx, fragments, errs)
	typing.Stop()

	if genErr != nil {
		if ctx.Err() != nil {
			log.Info("response cancelled", zap.Error(genErr))
			return metrics.OutcomeMalfunction
		}
		if generation.IsOverloaded(genErr) {
			log.Warn("model overloaded", zap.Error(genErr))
			d.replyError(ctx, t.Message, d.opts.OverloadedMessage)
			return metrics.OutcomeOverloaded
		}
		log.Error("generation failed", zap.Error(genErr))
		d.replyError(ctx, t.Message, d.opts.MalfunctionMessage)
		return metrics.OutcomeMalfunction
	}

	d.persist(ctx, log, req, res)

	switch {
	case res.CreateErr != nil:
		return metrics.OutcomeCreateFailed
	case res.Displayed != displayedTarget(res, d.opts.EmptyMessage, d.opts.MaxContent):
		return metrics.OutcomeDisplayFailed
	default:
		log.Info("response complete",
			zap.Int("chars", len(res.Text)),
			zap.Int("edits", res.Edits),
			zap.Int("history_turns", len(req.History)))
		return metrics.OutcomeOK
	}
}

// displayedTarget is what the message should show once a run succeeded.
func displayedTarget(res stream.Result, fallback string, maxContent int) string {
	text := res.Text
	if text == "" {
		text = fallback
	}
	return platform.ClipContent(text, maxContent)
}

// persist stores the exchange under the new reply's anchor, after the
// history the request was built from. Failures are logged only.
func (d *Dispatcher) persist(ctx context.Context, log *zap.Logger, req types.GenerationRequest, res stream.Result) {
	if d.store == nil {
		return
	}
	answer := res.Text
	if answer == "" {
		answer = res.Displayed
	}
	if answer == "" {
		return
	}

	anchor := types.AnchorFor(res.Handle)
	if res.Handle.IsZero() {
		anchor = types.Anchor(orphanPrefix + uuid.NewString())
	}

	turns := make([]types.Turn, 0, len(req.History)+2)
	turns = append(turns, req.History...)
	turns = append(turns, types.UserTurn(req.Prompt), types.ModelTurn(answer))

	stored, err := history.Append(ctx, d.store, anchor, turns, d.opts.HistoryTTL, d.opts.MaxTurns)
	d.metrics.HistoryOp("append", err)
	if err != nil {
		log.Error("failed to persist history", zap.String("anchor", string(anchor)), zap.Error(err))
		return
	}
	log.Debug("history persisted", zap.String("anchor", string(anchor)), zap.Int("turns", len(stored)))
}

// replyError posts a fixed in-character message. Raw errors never reach chat.
func (d *Dispatcher) replyError(ctx context.Context, to types.Message, text string) {
	if _, err := d.platform.Reply(ctx, to, text); err != nil {
		logging.DispatchError("failed to send error reply to %s: %v", to.ID, err)
	}
}
