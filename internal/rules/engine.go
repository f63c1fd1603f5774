// Package rules evaluates privacy heuristics over a registry snapshot.
//
// The engine is stateless: evaluating the same snapshot twice yields the same results.
package rules

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/cellwatch/internal/config"
	"github.com/mrzor/cellwatch/internal/registry"
)

// Verdict is the outcome of one rule.
type Verdict string

// Verdicts.
const (
	Pass    Verdict = "Pass"
	Fail    Verdict = "Fail"
	Pending Verdict = "Pending"
)

// DefaultChurnThreshold is the m-TMSI lifespan above which the churn rule fails.
const DefaultChurnThreshold = 2 * time.Hour

// Result is one rule's verdict with a human-readable detail.
type Result struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Verdict     Verdict `json:"verdict" yaml:"verdict"`
	Detail      string  `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Engine evaluates the built-in rules followed by any custom rules.
type Engine struct {
	churnThreshold time.Duration
	custom         []customRule
	tracer         trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithChurnThreshold overrides the m-TMSI lifespan limit. Non-positive values are ignored.
func WithChurnThreshold(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.churnThreshold = d
		}
	}
}

// WithTracer sets the tracer used for evaluation spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// New creates an engine. Custom rule expressions are compiled here; a compile error is
// returned and no engine is built.
func New(custom []config.CustomRule, opts ...Option) (*Engine, error) {
	e := &Engine{
		churnThreshold: DefaultChurnThreshold,
		tracer:         otel.Tracer("github.com/mrzor/cellwatch/internal/rules"),
	}
	for _, opt := range opts {
		opt(e)
	}

	compiled, err := compileCustomRules(custom)
	if err != nil {
		return nil, err
	}
	e.custom = compiled
	return e, nil
}

// ChurnThreshold returns the m-TMSI lifespan limit in use.
func (e *Engine) ChurnThreshold() time.Duration {
	return e.churnThreshold
}

// Evaluate runs every rule against records.
func (e *Engine) Evaluate(ctx context.Context, records []registry.Record) []Result {
	_, span := e.tracer.Start(ctx, "rules.evaluate")
	defer span.End()

	results := make([]Result, 0, len(builtinRules)+len(e.custom))
	for _, r := range builtinRules {
		res := Result{ID: r.id, Name: r.name, Description: r.description}
		res.Verdict, res.Detail = r.check(e, records)
		results = append(results, res)
	}
	if len(e.custom) > 0 {
		env := exprEnv(records)
		for _, c := range e.custom {
			results = append(results, c.evaluate(records, env))
		}
	}

	failed := 0
	for _, r := range results {
		if r.Verdict == Fail {
			failed++
		}
	}
	span.SetAttributes(
		attribute.Int("cellwatch.records", len(records)),
		attribute.Int("cellwatch.rules.failed", failed),
	)
	return results
}

// Changed returns the results whose verdict differs from the one in prev with the same ID.
// Results absent from prev count as changed.
func Changed(prev, next []Result) []Result {
	before := make(map[string]Verdict, len(prev))
	for _, r := range prev {
		before[r.ID] = r.Verdict
	}
	var out []Result
	for _, r := range next {
		if v, ok := before[r.ID]; !ok || v != r.Verdict {
			out = append(out, r)
		}
	}
	return out
}

func (r Result) String() string {
	return fmt.Sprintf("%s %s: %s", r.ID, r.Name, r.Verdict)
}
