// Package stream renders a generation stream into a single chat message.
//
// A Reconciler owns the reply message for one response. It creates the
// message on the first non-empty fragment, edits it with the accumulated
// text no more often than a minimum interval, and issues one final edit
// once the stream ends so the message always converges on the full text.
// Platform calls never overlap: at most one create or edit is in flight.
package stream

import (
	"context"
	"errors"
	"strings"
	"time"

	"peterbot/internal/logging"
	"peterbot/internal/metrics"
	"peterbot/internal/platform"
	"peterbot/internal/types"
)

// DefaultMinInterval is the edit pacing used when Options.MinInterval is unset.
const DefaultMinInterval = time.Second

// DefaultFallback is shown when a stream ends without any text.
const DefaultFallback = "Hehehe... I got nothin'."

var errReused = errors.New("stream: reconciler already ran")

// Target is the message a response is rendered into.
type Target interface {
	Create(ctx context.Context, content string) (types.MessageHandle, error)
	Edit(ctx context.Context, h types.MessageHandle, content string) error
}

type replyTarget struct {
	p  platform.Platform
	to types.Message
}

// ReplyTo returns a Target that posts the response as a reply to msg.
func ReplyTo(p platform.Platform, msg types.Message) Target {
	return replyTarget{p: p, to: msg}
}

func (t replyTarget) Create(ctx context.Context, content string) (types.MessageHandle, error) {
	return t.p.Reply(ctx, t.to, content)
}

func (t replyTarget) Edit(ctx context.Context, h types.MessageHandle, content string) error {
	return t.p.Edit(ctx, h, content)
}

// State is the reconciler lifecycle.
type State int

const (
	StateIdle State = iota
	StateCreating
	StateStreaming
	StateFinalizing
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCreating:
		return "creating"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Options configures a Reconciler.
type Options struct {
	// MinInterval is the minimum time between the completion of one
	// platform call and the start of the next periodic edit. Zero edits
	// as soon as the previous call completes.
	MinInterval time.Duration
	// Fallback replaces an empty answer. Defaults to DefaultFallback.
	Fallback string
	// MaxContent is the platform's message length limit in runes. Longer
	// text is displayed clipped. Zero disables clipping.
	MaxContent int
	Metrics    *metrics.Collector
}

// Result describes what a run displayed.
type Result struct {
	// Handle is the posted message, zero if nothing was posted.
	Handle types.MessageHandle
	// Text is the concatenation of every fragment received.
	Text string
	// Displayed is the last content the platform accepted, clipped to
	// Options.MaxContent.
	Displayed string
	// CreateErr is set when the reply could not be posted; display was
	// abandoned but Text is still complete.
	CreateErr error
	Creates   int
	Edits     int
}

type opKind int

const (
	opCreate opKind = iota
	opEdit
)

type opResult struct {
	kind    opKind
	content string
	handle  types.MessageHandle
	err     error
}

// Reconciler is single use. All state is owned by the goroutine running Run.
type Reconciler struct {
	target Target
	opts   Options

	used      bool
	state     State
	text      strings.Builder
	flushed   string
	handle    types.MessageHandle
	inFlight  bool
	lastFlush time.Time
	createErr error
	creates   int
	edits     int

	ops   chan opResult
	timer *time.Timer
	wake  <-chan time.Time
}

// NewReconciler creates a Reconciler rendering into target.
func NewReconciler(target Target, opts Options) *Reconciler {
	if opts.MinInterval < 0 {
		opts.MinInterval = 0
	}
	if opts.Fallback == "" {
		opts.Fallback = DefaultFallback
	}
	return &Reconciler{
		target: target,
		opts:   opts,
		ops:    make(chan opResult, 1),
	}
}

// State returns the lifecycle state. Only meaningful after Run returns.
func (r *Reconciler) State() State { return r.state }

// Run consumes fragments until the channel closes, then reads at most one
// error from errs and finalizes the message. The returned error is the
// generation error, or ctx.Err() if ctx ended first. Platform failures do
// not fail the run; they are reported through Result.
//
// If generation failed before any text arrived, nothing is posted so the
// caller can answer with an error message instead.
func (r *Reconciler) Run(ctx context.Context, fragments <-chan string, errs <-chan error) (Result, error) {
	if r.used {
		return Result{}, errReused
	}
	r.used = true
	defer r.stopWake()

	timer := logging.StartTimer(logging.CategoryStream, "Reconcile")
	defer timer.Stop()

	start := time.Now()
	for fragments != nil {
		select {
		case <-ctx.Done():
			r.state = StateTerminal
			return r.result(), ctx.Err()

		case frag, ok := <-fragments:
			if !ok {
				fragments = nil
				continue
			}
			if frag == "" {
				continue
			}
			if r.text.Len() == 0 {
				r.opts.Metrics.FirstFragment(time.Since(start))
			}
			r.opts.Metrics.Fragment()
			r.text.WriteString(frag)
			r.pump(ctx)

		case res := <-r.ops:
			r.complete(res)
			r.pump(ctx)

		case <-r.wake:
			r.timer, r.wake = nil, nil
			r.pump(ctx)
		}
	}

	var genErr error
	if errs != nil {
		select {
		case genErr = <-errs:
		case <-ctx.Done():
			r.state = StateTerminal
			return r.result(), ctx.Err()
		}
	}

	r.state = StateFinalizing
	r.stopWake()
	for r.inFlight {
		select {
		case res := <-r.ops:
			r.complete(res)
		case <-ctx.Done():
			r.state = StateTerminal
			return r.result(), ctx.Err()
		}
	}
	r.finalize(ctx, genErr)
	r.state = StateTerminal

	logging.StreamDebug("stream finished: chars=%d creates=%d edits=%d", r.text.Len(), r.creates, r.edits)
	return r.result(), genErr
}

// pump issues the next platform call if one is due.
func (r *Reconciler) pump(ctx context.Context) {
	if r.inFlight || r.createErr != nil {
		return
	}
	content := r.display()
	if content == "" {
		return
	}
	if r.handle.IsZero() {
		r.state = StateCreating
		r.issue(ctx, opCreate, content)
		return
	}
	if content == r.flushed {
		return
	}
	if wait := r.opts.MinInterval - time.Since(r.lastFlush); wait > 0 {
		r.armWake(wait)
		return
	}
	r.issue(ctx, opEdit, content)
}

func (r *Reconciler) issue(ctx context.Context, kind opKind, content string) {
	r.inFlight = true
	h := r.handle
	go func() {
		res := opResult{kind: kind, content: content}
		switch kind {
		case opCreate:
			res.handle, res.err = r.target.Create(ctx, content)
		case opEdit:
			res.err = r.target.Edit(ctx, h, content)
		}
		// Buffered; never blocks even if Run has returned.
		r.ops <- res
	}()
}

func (r *Reconciler) complete(res opResult) {
	r.inFlight = false
	r.lastFlush = time.Now()

	switch res.kind {
	case opCreate:
		r.creates++
		r.opts.Metrics.PlatformOp(metrics.OpCreate, res.err)
		if res.err != nil {
			r.createErr = res.err
			logging.StreamError("failed to post reply, abandoning display: %v", res.err)
			return
		}
		r.handle = res.handle
		r.flushed = res.content
		if r.state == StateCreating {
			r.state = StateStreaming
		}
	case opEdit:
		r.edits++
		r.opts.Metrics.PlatformOp(metrics.OpEdit, res.err)
		if res.err != nil {
			logging.StreamWarn("edit of %s failed, retrying with later text: %v", r.handle.ID, res.err)
			return
		}
		r.flushed = res.content
	}
}

// finalize makes the displayed message match the full text. Called with
// no call in flight.
func (r *Reconciler) finalize(ctx context.Context, genErr error) {
	if r.createErr != nil {
		return
	}
	content := r.display()
	if content == "" {
		if genErr != nil {
			return
		}
		content = platform.ClipContent(r.opts.Fallback, r.opts.MaxContent)
	}

	if r.handle.IsZero() {
		h, err := r.target.Create(ctx, content)
		r.creates++
		r.opts.Metrics.PlatformOp(metrics.OpCreate, err)
		if err != nil {
			r.createErr = err
			logging.StreamError("failed to post reply: %v", err)
			return
		}
		r.handle = h
		r.flushed = content
		return
	}

	if content == r.flushed {
		return
	}
	err := r.target.Edit(ctx, r.handle, content)
	r.edits++
	r.opts.Metrics.PlatformOp(metrics.OpFinal, err)
	if err != nil {
		logging.StreamError("final edit of %s failed: %v", r.handle.ID, err)
		return
	}
	r.flushed = content
}

// display is the accumulated text as the platform can show it. Once the
// text outgrows MaxContent it stops changing, so no further edits are due.
func (r *Reconciler) display() string {
	return platform.ClipContent(r.text.String(), r.opts.MaxContent)
}

func (r *Reconciler) armWake(d time.Duration) {
	if r.timer != nil {
		return
	}
	r.timer = time.NewTimer(d)
	r.wake = r.timer.C
}

func (r *Reconciler) stopWake() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer, r.wake = nil, nil
	}
}

func (r *Reconciler) result() Result {
	return Result{
		Handle:    r.handle,
		Text:      r.text.String(),
		Displayed: r.flushed,
		CreateErr: r.createErr,
		Creates:   r.creates,
		Edits:     r.edits,
	}
}
