package aggregator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/cellwatch/internal/eventqueue"
	"github.com/mrzor/cellwatch/internal/identity"
	"github.com/mrzor/cellwatch/internal/registry"
	"github.com/mrzor/cellwatch/internal/rules"
)

// DefaultCadence is the drain interval.
const DefaultCadence = time.Second

// Sink receives every applied batch. Errors are logged and counted, never fatal.
type Sink interface {
	Name() string
	Consume(ctx context.Context, events []identity.Event) error
}

// Observer is told about each applied batch and evaluation.
type Observer interface {
	BatchApplied(events, created, records int)
	RulesEvaluated(results []rules.Result)
	SinkFailed(sink string)
}

type nopObserver struct{}

func (nopObserver) BatchApplied(int, int, int)    {}
func (nopObserver) RulesEvaluated([]rules.Result) {}
func (nopObserver) SinkFailed(string)             {}

// Aggregator drains the queue into the registry and keeps rule results current.
type Aggregator struct {
	queue    *eventqueue.Queue
	registry *registry.Registry
	engine   *rules.Engine
	feed     *ActivityFeed
	sinks    []Sink
	cadence  time.Duration
	observer Observer
	tracer   trace.Tracer
	logger   *slog.Logger

	mu      sync.RWMutex
	results []rules.Result
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithCadence sets the drain interval. Non-positive values are ignored.
func WithCadence(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.cadence = d
		}
	}
}

// WithSinks adds batch sinks.
func WithSinks(sinks ...Sink) Option {
	return func(a *Aggregator) { a.sinks = append(a.sinks, sinks...) }
}

// WithFeed sets the activity feed.
func WithFeed(f *ActivityFeed) Option {
	return func(a *Aggregator) { a.feed = f }
}

// WithObserver sets the batch and evaluation observer.
func WithObserver(o Observer) Option {
	return func(a *Aggregator) { a.observer = o }
}

// WithTracer sets the tracer for batch spans.
func WithTracer(t trace.Tracer) Option {
	return func(a *Aggregator) { a.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// New creates an aggregator reading q into reg and evaluating engine.
func New(q *eventqueue.Queue, reg *registry.Registry, engine *rules.Engine, opts ...Option) *Aggregator {
	a := &Aggregator{
		queue:    q,
		registry: reg,
		engine:   engine,
		feed:     NewActivityFeed(500),
		cadence:  DefaultCadence,
		observer: nopObserver{},
		tracer:   otel.Tracer("github.com/mrzor/cellwatch/internal/aggregator"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run drains the queue every cadence until ctx is cancelled or the queue is closed.
// Both paths end with a final drain.
func (a *Aggregator) Run(ctx context.Context) error {
	a.evaluate(ctx)

	ticker := time.NewTicker(a.cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final := a.queue.Drain()
			a.logger.Info("final drain", "events", len(final), "reason", "cancelled")
			a.apply(context.WithoutCancel(ctx), final)
			return nil
		case <-ticker.C:
			// Closed is read first: everything put before Close is visible to this Drain.
			closed := a.queue.Closed()
			a.apply(ctx, a.queue.Drain())
			if closed {
				a.logger.Info("queue closed, aggregation finished", "records", a.registry.Len())
				return nil
			}
		}
	}
}

// Apply folds a batch into the registry immediately, outside the cadence.
func (a *Aggregator) Apply(ctx context.Context, batch []identity.Event) {
	a.apply(ctx, batch)
}

func (a *Aggregator) apply(ctx context.Context, batch []identity.Event) {
	if len(batch) == 0 {
		return
	}

	ctx, span := a.tracer.Start(ctx, "aggregator.apply", trace.WithAttributes(
		attribute.Int("cellwatch.batch.size", len(batch)),
	))
	defer span.End()

	created := 0
	for _, ev := range batch {
		if a.registry.Upsert(ev) {
			created++
		}
		a.feed.Add(ev)
	}

	for _, sink := range a.sinks {
		if err := sink.Consume(ctx, batch); err != nil {
			a.logger.Warn("sink failed", "sink", sink.Name(), "events", len(batch), "error", err)
			a.observer.SinkFailed(sink.Name())
		}
	}

	records := a.registry.Len()
	span.SetAttributes(attribute.Int("cellwatch.records.created", created))
	a.observer.BatchApplied(len(batch), created, records)
	a.logger.Debug("batch applied", "events", len(batch), "created", created, "records", records)

	a.evaluate(ctx)
}

func (a *Aggregator) evaluate(ctx context.Context) {
	results := a.engine.Evaluate(ctx, a.registry.Snapshot())

	a.mu.Lock()
	prev := a.results
	a.results = results
	a.mu.Unlock()

	for _, r := range rules.Changed(prev, results) {
		a.logger.Info("rule verdict", "rule", r.ID, "name", r.Name, "verdict", r.Verdict, "detail", r.Detail)
	}
	a.observer.RulesEvaluated(results)
}

// Results returns the latest rule results.
func (a *Aggregator) Results() []rules.Result {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]rules.Result, len(a.results))
	copy(out, a.results)
	return out
}

// Registry returns the registry the aggregator writes to.
func (a *Aggregator) Registry() *registry.Registry {
	return a.registry
}

// Feed returns the activity feed.
func (a *Aggregator) Feed() *ActivityFeed {
	return a.feed
}
