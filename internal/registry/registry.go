// Package registry aggregates identifier events into per-identifier records.
package registry

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mrzor/cellwatch/internal/identity"
	"github.com/mrzor/cellwatch/internal/timesync"
)

// Record is the running aggregate for one (category, value) identifier.
type Record struct {
	Category        identity.Category `json:"category" yaml:"category"`
	Value           string            `json:"value" yaml:"value"`
	DisplayCategory identity.Category `json:"display_category" yaml:"display_category"`
	Count           int               `json:"count" yaml:"count"`
	FirstSeen       time.Time         `json:"first_seen" yaml:"first_seen"`
	LastSeen        time.Time         `json:"last_seen" yaml:"last_seen"`
	Cell            identity.Cell     `json:"cell" yaml:"cell"`
	MME             identity.MME      `json:"mme" yaml:"mme"`
	// Sources lists the distinct source messages in first-seen order.
	Sources []string `json:"sources" yaml:"sources"`
}

// Lifespan returns LastSeen minus FirstSeen, corrected for a day wrap.
func (r Record) Lifespan() time.Duration {
	return timesync.Elapsed(r.FirstSeen, r.LastSeen)
}

// HasSource reports whether source was seen exactly.
func (r Record) HasSource(source string) bool {
	return slices.Contains(r.Sources, source)
}

// SourceContains reports whether any source contains substr, ignoring case.
func (r Record) SourceContains(substr string) bool {
	substr = strings.ToLower(substr)
	for _, s := range r.Sources {
		if strings.Contains(strings.ToLower(s), substr) {
			return true
		}
	}
	return false
}

func (r *Record) clone() Record {
	out := *r
	out.Sources = slices.Clone(r.Sources)
	return out
}

// Registry holds one Record per identifier key. Records are never removed.
// It is safe for concurrent use, although the aggregator is its only writer.
type Registry struct {
	mu      sync.RWMutex
	records map[identity.Key]*Record
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		records: make(map[identity.Key]*Record),
	}
}

// Upsert folds ev into its record (command).
// It reports whether the record was created by this call.
func (r *Registry) Upsert(ev identity.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := ev.Key()
	rec, ok := r.records[key]
	if !ok {
		rec = &Record{
			Category:  ev.Category,
			Value:     ev.Value,
			FirstSeen: ev.ObservedAt,
		}
		r.records[key] = rec
	}

	rec.LastSeen = ev.ObservedAt
	rec.Count++
	rec.DisplayCategory = ev.DisplayCategory
	mergeCell(&rec.Cell, ev.Cell)
	mergeMME(&rec.MME, ev.MME)
	if ev.SourceMessage != "" && !slices.Contains(rec.Sources, ev.SourceMessage) {
		rec.Sources = append(rec.Sources, ev.SourceMessage)
	}
	return !ok
}

// Get returns a copy of the record for (category, value) (query).
func (r *Registry) Get(category identity.Category, value string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[identity.Key{Category: category, Value: value}]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Len returns the number of records (query).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Snapshot returns copies of every record sorted by category, then value (query).
func (r *Registry) Snapshot() []Record {
	r.mu.RLock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.clone())
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Record) int {
		if c := strings.Compare(string(a.Category), string(b.Category)); c != 0 {
			return c
		}
		return strings.Compare(a.Value, b.Value)
	})
	return out
}

// mergeCell overwrites dst fields with non-empty src fields.
func mergeCell(dst *identity.Cell, src identity.Cell) {
	if src.MCC != "" {
		dst.MCC = src.MCC
	}
	if src.MNC != "" {
		dst.MNC = src.MNC
	}
	if src.TAC != "" {
		dst.TAC = src.TAC
	}
	if src.CID != "" {
		dst.CID = src.CID
	}
}

func mergeMME(dst *identity.MME, src identity.MME) {
	if src.Group != "" {
		dst.Group = src.Group
	}
	if src.Code != "" {
		dst.Code = src.Code
	}
}
