// Package report renders the end-of-run registry and rule results.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/mrzor/cellwatch/internal/identity"
	"github.com/mrzor/cellwatch/internal/registry"
	"github.com/mrzor/cellwatch/internal/rules"
)

// Meta describes the run a report covers.
type Meta struct {
	Version   string
	Interface string
	// Source is "tshark" or "replay:<dir>".
	Source    string
	StartedAt time.Time
	EndedAt   time.Time
}

// Report is the document written at exit.
type Report struct {
	RunID     string         `yaml:"run_id"`
	Version   string         `yaml:"version,omitempty"`
	Interface string         `yaml:"interface,omitempty"`
	Source    string         `yaml:"source"`
	StartedAt time.Time      `yaml:"started_at"`
	EndedAt   time.Time      `yaml:"ended_at"`
	Duration  string         `yaml:"duration"`
	Total     int            `yaml:"total_identifiers"`
	Rules     []rules.Result `yaml:"rules"`
	Records   []Entry        `yaml:"identifiers"`
	// Activity is the tail of the activity feed, oldest first.
	Activity []identity.Event `yaml:"activity,omitempty"`
}

// Entry is one registry record as rendered in a report.
type Entry struct {
	registry.Record `yaml:",inline"`
	Lifespan        string `yaml:"lifespan"`
	Decoded         string `yaml:"decoded,omitempty"`
}

// Build assembles a report. Records keep the order of snapshot.
func Build(snapshot []registry.Record, results []rules.Result, meta Meta) *Report {
	r := &Report{
		RunID:     uuid.NewString(),
		Version:   meta.Version,
		Interface: meta.Interface,
		Source:    meta.Source,
		StartedAt: meta.StartedAt,
		EndedAt:   meta.EndedAt,
		Duration:  FormatLifespan(meta.EndedAt.Sub(meta.StartedAt)),
		Total:     len(snapshot),
		Rules:     results,
		Records:   make([]Entry, 0, len(snapshot)),
	}
	for _, rec := range snapshot {
		e := Entry{Record: rec, Lifespan: FormatLifespan(rec.Lifespan())}
		if d := identity.DescribeValue(rec.Value); d != rec.Value {
			e.Decoded = d
		}
		r.Records = append(r.Records, e)
	}
	return r
}

// WriteYAML encodes the report as a YAML document.
func WriteYAML(w io.Writer, r *Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to flush report: %w", err)
	}
	return nil
}

// FormatLifespan renders d as HH:MM:SS, prefixed with "Nd " when it spans whole days.
// Durations are rounded to the second; negative ones render as zero.
func FormatLifespan(d time.Duration) string {
	s := int64(d.Round(time.Second) / time.Second)
	if s < 0 {
		s = 0
	}
	days := s / 86400
	h := (s % 86400) / 3600
	m := (s % 3600) / 60
	sec := s % 60
	if days > 0 {
		return fmt.Sprintf("%dd %02d:%02d:%02d", days, h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
}
