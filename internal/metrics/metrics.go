// Package metrics exposes pipeline counters on a private Prometheus registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mrzor/cellwatch/internal/identity"
	"github.com/mrzor/cellwatch/internal/rules"
)

const namespace = "cellwatch"

// QueueStats is the part of the event queue the registry samples on scrape.
type QueueStats interface {
	Len() int
	Dropped() int64
}

// Registry owns every cellwatch metric. It satisfies both decoder.Observer and
// aggregator.Observer.
type Registry struct {
	prom *prometheus.Registry

	linesRead     *prometheus.CounterVec
	linesSkipped  *prometheus.CounterVec
	eventsEmitted *prometheus.CounterVec

	batches        prometheus.Counter
	eventsApplied  prometheus.Counter
	recordsCreated prometheus.Counter
	records        prometheus.Gauge
	evaluations    prometheus.Counter
	ruleVerdict    *prometheus.GaugeVec
	sinkFailures   *prometheus.CounterVec
}

// New creates the registry with Go runtime and process collectors attached.
func New() *Registry {
	r := &Registry{
		prom: prometheus.NewRegistry(),

		linesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decoder",
			Name:      "lines_read_total",
			Help:      "Lines read from each capture channel",
		}, []string{"channel"}),
		linesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decoder",
			Name:      "lines_skipped_total",
			Help:      "Lines that produced no event, by reason",
		}, []string{"channel", "reason"}),
		eventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decoder",
			Name:      "events_total",
			Help:      "Identifier events queued, by channel and display category",
		}, []string{"channel", "category"}),

		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "batches_total",
			Help:      "Non-empty drains applied to the registry",
		}),
		eventsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "events_applied_total",
			Help:      "Events folded into the registry",
		}),
		recordsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "records_created_total",
			Help:      "Distinct identifiers seen for the first time",
		}),
		records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "records",
			Help:      "Identifier records currently held",
		}),
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "evaluations_total",
			Help:      "Rule engine evaluations",
		}),
		ruleVerdict: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "verdict",
			Help:      "1 for the current verdict of each rule, 0 otherwise",
		}, []string{"rule", "verdict"}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "failures_total",
			Help:      "Batches a sink failed to consume",
		}, []string{"sink"}),
	}

	r.prom.MustRegister(
		r.linesRead, r.linesSkipped, r.eventsEmitted,
		r.batches, r.eventsApplied, r.recordsCreated, r.records,
		r.evaluations, r.ruleVerdict, r.sinkFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Prometheus returns the underlying registry.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.prom
}

// RegisterQueue samples queue depth and drops at scrape time.
func (r *Registry) RegisterQueue(q QueueStats) error {
	depth := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Events waiting for the next drain",
	}, func() float64 { return float64(q.Len()) })
	dropped := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "dropped_total",
		Help:      "Events rejected after the queue closed",
	}, func() float64 { return float64(q.Dropped()) })

	for _, c := range []prometheus.Collector{depth, dropped} {
		if err := r.prom.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// LineRead implements decoder.Observer.
func (r *Registry) LineRead(channel string) {
	r.linesRead.WithLabelValues(channel).Inc()
}

// LineSkipped implements decoder.Observer.
func (r *Registry) LineSkipped(channel, reason string) {
	r.linesSkipped.WithLabelValues(channel, reason).Inc()
}

// EventEmitted implements decoder.Observer.
func (r *Registry) EventEmitted(channel string, category identity.Category) {
	r.eventsEmitted.WithLabelValues(channel, string(category)).Inc()
}

// BatchApplied implements aggregator.Observer.
func (r *Registry) BatchApplied(events, created, records int) {
	r.batches.Inc()
	r.eventsApplied.Add(float64(events))
	r.recordsCreated.Add(float64(created))
	r.records.Set(float64(records))
}

// RulesEvaluated implements aggregator.Observer.
func (r *Registry) RulesEvaluated(results []rules.Result) {
	r.evaluations.Inc()
	for _, res := range results {
		for _, v := range []rules.Verdict{rules.Pass, rules.Fail, rules.Pending} {
			val := 0.0
			if res.Verdict == v {
				val = 1
			}
			r.ruleVerdict.WithLabelValues(res.ID, string(v)).Set(val)
		}
	}
}

// SinkFailed implements aggregator.Observer.
func (r *Registry) SinkFailed(sink string) {
	r.sinkFailures.WithLabelValues(sink).Inc()
}
