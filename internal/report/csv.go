package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"
)

var csvHeader = []string{
	"Filter Type", "Identifier", "Count", "First Seen", "Last Seen",
	"TAC", "CID", "MCC", "MNC", "MME Group ID", "MME Code", "Message Types",
}

// WriteCSV writes one row per identifier, sources joined with commas.
func WriteCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, e := range r.Records {
		row := []string{
			string(e.Category),
			e.Value,
			fmt.Sprint(e.Count),
			e.FirstSeen.Format(time.DateTime),
			e.LastSeen.Format(time.DateTime),
			e.Cell.TAC,
			e.Cell.CID,
			e.Cell.MCC,
			e.Cell.MNC,
			e.MME.Group,
			e.MME.Code,
			strings.Join(sortedCopy(e.Sources), ","),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row for %s: %w", e.Value, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
