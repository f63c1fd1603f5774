package decoder

import (
	"strings"

	"github.com/mrzor/cellwatch/internal/capture"
)

// layout describes how a channel's lines split into fields.
type layout struct {
	sep       string
	minFields int // lines with fewer raw fields are skipped
	arity     int // shorter lines are padded with empty fields
	// fallback parses lines with fewer than minFields raw fields, if set.
	fallback func(line string) ([]string, bool)
}

// split returns the whitespace-trimmed fields of line, padded to the layout arity.
func (l layout) split(line string) ([]string, bool) {
	raw := strings.Split(line, l.sep)
	if len(raw) < l.minFields {
		if l.fallback != nil {
			return l.fallback(line)
		}
		return nil, false
	}

	fields := make([]string, max(len(raw), l.arity))
	for i, f := range raw {
		fields[i] = strings.TrimSpace(f)
	}
	return fields, true
}

// handler applies one channel's rules to split fields. It returns a skip reason, or "" when
// the line was used.
type handler func(d *Decoder, fields []string) string

type channelDef struct {
	layout layout
	handle handler
}

func commaLayout(minFields, arity int) layout {
	return layout{sep: ",", minFields: minFields, arity: arity}
}

var channelDefs = map[capture.Channel]channelDef{
	capture.IMEISV4G:             {commaLayout(2, 2), handleIMEISV},
	capture.Paging4G:             {commaLayout(3, 3), handlePaging4G},
	capture.SIB14G:               {commaLayout(8, 8), handleSIB1(sourceSIB1)},
	capture.SIB15GNSA:            {commaLayout(4, 4), handleSIB1NSA},
	capture.SIB15GSA:             {commaLayout(8, 8), handleSIB1(sourceSIB1SA)},
	capture.Paging5GSA:           {commaLayout(2, 2), handlePaging5G},
	capture.RRCNewUEIdentity:     {commaLayout(2, 2), handleNewUEIdentity},
	capture.RRCConnectionRequest: {commaLayout(1, 4), handleConnectionRequest},
	capture.NASEPS:               {layout{sep: "\t", minFields: 6, arity: 6, fallback: nasEPSFallback}, handleNASEPS},
	capture.NAS5GS:               {layout{sep: "\t", minFields: 1, arity: 9}, handleNAS5GS},
}

// isToolWarning reports whether line is a dissector warning rather than field output.
func isToolWarning(line string) bool {
	low := strings.ToLower(line)
	return strings.Contains(low, "cannot find dissector") || strings.Contains(low, "falling back to data")
}

// splitTokens splits a multi-valued field on commas, dropping empty tokens.
func splitTokens(field string) []string {
	var tokens []string
	for _, tok := range strings.Split(field, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}
