package report

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/mrzor/cellwatch/internal/rules"
)

// summaryTop caps the identifier table printed by Summary.
const summaryTop = 10

// Summary prints a plain-text digest: rule verdicts, then the most frequently seen identifiers.
func Summary(w io.Writer, r *Report) error {
	var b strings.Builder

	fmt.Fprintf(&b, "cellwatch run %s (%s)\n", r.RunID, r.Source)
	fmt.Fprintf(&b, "Total Unique IDs Captured: %s in %s\n\n", humanize.Comma(int64(r.Total)), r.Duration)

	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RULE\tVERDICT\tNAME")
	for _, res := range r.Rules {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", res.ID, res.Verdict, res.Name)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, res := range r.Rules {
		if res.Verdict != rules.Fail {
			continue
		}
		fmt.Fprintf(&b, "\n%s %s:\n", res.ID, res.Name)
		for _, line := range strings.Split(res.Detail, "\n") {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}

	if len(r.Records) > 0 {
		top := slices.Clone(r.Records)
		slices.SortStableFunc(top, func(a, c Entry) int { return c.Count - a.Count })
		if len(top) > summaryTop {
			top = top[:summaryTop]
		}

		fmt.Fprintf(&b, "\nTop %d identifiers by sightings:\n", len(top))
		tw = tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TYPE\tIDENTIFIER\tCOUNT\tLIFESPAN\tLAST SEEN\tSOURCES")
		for _, e := range top {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.DisplayCategory,
				e.Value,
				humanize.Comma(int64(e.Count)),
				e.Lifespan,
				humanize.RelTime(e.LastSeen, r.EndedAt, "before exit", "after exit"),
				strings.Join(sortedCopy(e.Sources), ", "),
			)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func sortedCopy(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return out
}
