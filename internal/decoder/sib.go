package decoder

import (
	"strings"

	"github.com/mrzor/cellwatch/internal/identity"
)

// handleSIB1 decodes frame, three MCC digits, two MNC digits, TAC and cell identity.
// The cell context is replaced and a CELL event is emitted only when the value changed.
func handleSIB1(source string) handler {
	return func(d *Decoder, f []string) string {
		cell := identity.Cell{
			MCC: f[1] + f[2] + f[3],
			MNC: f[4] + f[5],
			TAC: f[6],
			CID: f[7],
		}
		if cell.IsZero() {
			return ReasonNoIdentifier
		}
		if d.ctxs.Cell.Replace(cell) {
			d.emitCell(cell, source)
		}
		return ""
	}
}

// handleSIB1NSA decodes the NR SIB1 seen on a non-standalone cell.
// TAC and cell identity always replace the context; MCC and MNC only when five digits are
// present in the MCC/MNC field, otherwise the previous values are kept.
func handleSIB1NSA(d *Decoder, f []string) string {
	digits := strings.Split(f[1], ",")
	tac, cid := f[2], f[3]

	cell, changed := d.ctxs.Cell.Apply(func(prev identity.Cell) identity.Cell {
		next := prev
		if len(digits) >= 5 {
			next.MCC = digits[0] + digits[1] + digits[2]
			next.MNC = digits[3] + digits[4]
		}
		next.TAC = tac
		next.CID = cid
		return next
	})
	if changed {
		d.emitCell(cell, sourceSIB1NSA)
	}
	return ""
}
