// Package metrics exposes bot activity as Prometheus metrics.
//
// All Collector methods are safe on a nil receiver so components can be
// built without metrics in tests and one-shot commands.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "peterbot"

// Trigger decisions.
const (
	DecisionSkipBot      = "skip_bot"
	DecisionSkipIgnored  = "skip_ignored"
	DecisionMention      = "mention"
	DecisionReplyToBot   = "reply_to_bot"
	DecisionRandomSample = "random"
)

// Response outcomes.
const (
	OutcomeOK            = "ok"
	OutcomeOverloaded    = "overloaded"
	OutcomeMalfunction   = "malfunction"
	OutcomeCreateFailed  = "create_failed"
	OutcomePanic         = "panic"
	OutcomeDisplayFailed = "display_failed"
)

// Platform operations issued by the reconciler.
const (
	OpCreate = "create"
	OpEdit   = "edit"
	OpFinal  = "final"
)

// Collector holds every metric the bot records.
type Collector struct {
	triggers       *prometheus.CounterVec
	responses      *prometheus.CounterVec
	platformOps    *prometheus.CounterVec
	historyOps     *prometheus.CounterVec
	fragments      prometheus.Counter
	responseTime   prometheus.Histogram
	firstFragment  prometheus.Histogram
	inflight       prometheus.Gauge
	assembledTurns prometheus.Histogram
}

// NewCollector creates the metrics and registers them on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_total",
			Help:      "Inbound messages by dispatch decision.",
		}, []string{"decision"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Completed responses by outcome.",
		}, []string{"outcome"}),
		platformOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "platform_ops_total",
			Help:      "Message create and edit operations issued while streaming.",
		}, []string{"op", "result"}),
		historyOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_ops_total",
			Help:      "Conversation history reads and writes.",
		}, []string{"op", "result"}),
		fragments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_fragments_total",
			Help:      "Text fragments received from the generation backend.",
		}),
		responseTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_duration_seconds",
			Help:      "Time from accepting a trigger to the final visible edit.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		firstFragment: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_fragment_seconds",
			Help:      "Time until the first generated fragment arrived.",
			Buckets:   prometheus.DefBuckets,
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "responses_in_flight",
			Help:      "Responses currently being generated.",
		}),
		assembledTurns: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assembled_history_turns",
			Help:      "History turns sent with each generation request.",
			Buckets:   prometheus.LinearBuckets(0, 5, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(c.triggers, c.responses, c.platformOps, c.historyOps,
			c.fragments, c.responseTime, c.firstFragment, c.inflight, c.assembledTurns)
	}
	return c
}

// Trigger records a dispatch decision.
func (c *Collector) Trigger(decision string) {
	if c == nil {
		return
	}
	c.triggers.WithLabelValues(decision).Inc()
}

// ResponseStarted marks a response as in flight and returns a func that
// records its outcome and duration.
func (c *Collector) ResponseStarted() func(outcome string) {
	if c == nil {
		return func(string) {}
	}
	start := time.Now()
	c.inflight.Inc()
	return func(outcome string) {
		c.inflight.Dec()
		c.responses.WithLabelValues(outcome).Inc()
		c.responseTime.Observe(time.Since(start).Seconds())
	}
}

// PlatformOp records a create or edit result.
func (c *Collector) PlatformOp(op string, err error) {
	if c == nil {
		return
	}
	c.platformOps.WithLabelValues(op, result(err)).Inc()
}

// HistoryOp records a history store access.
func (c *Collector) HistoryOp(op string, err error) {
	if c == nil {
		return
	}
	c.historyOps.WithLabelValues(op, result(err)).Inc()
}

// Fragment counts one received fragment.
func (c *Collector) Fragment() {
	if c == nil {
		return
	}
	c.fragments.Inc()
}

// FirstFragment observes the latency to the first fragment.
func (c *Collector) FirstFragment(d time.Duration) {
	if c == nil {
		return
	}
	c.firstFragment.Observe(d.Seconds())
}

// AssembledTurns observes the history length of one request.
func (c *Collector) AssembledTurns(n int) {
	if c == nil {
		return
	}
	c.assembledTurns.Observe(float64(n))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
