package identity

import (
	"strings"
	"time"
)

// Category classifies an identifier sighting.
type Category string

// Identifier categories. Composite marks events from the NAS decoders, whose effective
// category is chosen per occurrence and carried in Event.DisplayCategory.
const (
	CategoryIMSI       Category = "IMSI"
	CategoryMTMSI      Category = "m-TMSI"
	Category5GTMSI     Category = "5G-TMSI"
	CategoryRandom     Category = "randomValue"
	CategoryIMEISV     Category = "IMEISV"
	CategoryMSIN       Category = "MSIN"
	CategoryUEIdentity Category = "UE-IDENTITY"
	CategoryCell       Category = "CELL"
	CategoryComposite  Category = "composite-NAS"

	// SUCI and GUTI never come out of the decoders but count as privacy-preserving
	// forms when judging paging records.
	CategorySUCI Category = "SUCI"
	CategoryGUTI Category = "GUTI"
)

// Cell is a serving-cell locator. Any field may be empty.
type Cell struct {
	MCC string `json:"mcc,omitempty" yaml:"mcc,omitempty"`
	MNC string `json:"mnc,omitempty" yaml:"mnc,omitempty"`
	TAC string `json:"tac,omitempty" yaml:"tac,omitempty"`
	CID string `json:"cid,omitempty" yaml:"cid,omitempty"`
}

// IsZero reports whether no field is set.
func (c Cell) IsZero() bool {
	return c == Cell{}
}

// MME is the core-network routing information (MME group id and code).
type MME struct {
	Group string `json:"group,omitempty" yaml:"group,omitempty"`
	Code  string `json:"code,omitempty" yaml:"code,omitempty"`
}

// Event is one decoded identifier occurrence. Events are immutable once queued.
type Event struct {
	Category        Category  `json:"category"`
	Value           string    `json:"value"`
	ObservedAt      time.Time `json:"observed_at"`
	Cell            Cell      `json:"cell"`
	MME             MME       `json:"mme"`
	SourceMessage   string    `json:"source_message"`
	DisplayCategory Category  `json:"display_category"`
	Channel         string    `json:"channel,omitempty"`
}

// Key identifies the registry record an event aggregates into.
type Key struct {
	Category Category
	Value    string
}

// Key returns the aggregation key of the event.
func (e Event) Key() Key {
	return Key{Category: e.Category, Value: e.Value}
}

// IsPaging reports whether the event was triggered by a paging message.
func (e Event) IsPaging() bool {
	return strings.Contains(e.SourceMessage, "Paging")
}
