package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/mrzor/cellwatch/internal/identity"
	"github.com/mrzor/cellwatch/internal/registry"
)

type builtinRule struct {
	id          string
	name        string
	description string
	check       func(e *Engine, records []registry.Record) (Verdict, string)
}

var builtinRules = []builtinRule{
	{
		id:          "R1",
		name:        "ID frequently updated",
		description: "Fail if any m-TMSI lifespan>2h.",
		check:       checkChurn,
	},
	{
		id:          "R2",
		name:        "No IMSI sent in Paging",
		description: "Fail if IMSI found in paging.",
		check:       checkPagingIMSI,
	},
	{
		id:          "R3",
		name:        "No IMSI in Attach/Reg",
		description: "Fail if IMSI used in attach/reg or identity resp.",
		check:       checkAttachIMSI,
	},
	{
		id:          "R4",
		name:        "Only SUCI/GUTI sent",
		description: "Fail if non-SUCI/GUTI in paging.",
		check:       checkPagingForms,
	},
	{
		id:          "R5",
		name:        "No IMEISV seen",
		description: "Fail if any IMEISV is found at all.",
		check:       checkIMEISV,
	},
	{
		id:          "R6",
		name:        "No IMSI in Identity Response",
		description: "Fail if IMSI is found in Identity Response message.",
		check:       checkIdentityResponseIMSI,
	},
	{
		id:          "R7",
		name:        "Test 7",
		description: "Not implemented.",
		check:       reserved,
	},
	{
		id:          "R8",
		name:        "Test 8",
		description: "Not implemented.",
		check:       reserved,
	},
}

// churnListLimit caps the identifiers listed in the churn detail.
const churnListLimit = 3

func checkChurn(e *Engine, records []registry.Record) (Verdict, string) {
	var failing []string
	seen := false
	for _, r := range records {
		if r.DisplayCategory != identity.CategoryMTMSI {
			continue
		}
		seen = true
		if r.Lifespan() > e.churnThreshold {
			failing = append(failing, r.Value)
		}
	}

	switch {
	case len(failing) > 0:
		shown := failing[:min(len(failing), churnListLimit)]
		return Fail, fmt.Sprintf("Failing m-TMSI:\n%s\nTotal= %d", strings.Join(shown, "\n"), len(failing))
	case seen:
		return Pass, fmt.Sprintf("No m-TMSI>%s", formatThreshold(e.churnThreshold))
	default:
		return Pending, "No m-TMSI data yet"
	}
}

func checkPagingIMSI(_ *Engine, records []registry.Record) (Verdict, string) {
	var found []string
	for _, r := range records {
		if r.DisplayCategory == identity.CategoryIMSI && r.HasSource("Paging") {
			found = append(found, r.Value)
		}
	}
	if len(found) > 0 {
		return Fail, "IMSI in Paging:\n" + strings.Join(found, "\n")
	}
	return Pass, "No IMSI found in Paging."
}

func checkAttachIMSI(_ *Engine, records []registry.Record) (Verdict, string) {
	var found []string
	for _, r := range records {
		if r.DisplayCategory != identity.CategoryIMSI {
			continue
		}
		if r.SourceContains("attach") || r.SourceContains("registration") || r.SourceContains("identity response") {
			found = append(found, r.Value)
		}
	}
	if len(found) > 0 {
		return Fail, "IMSI used:\n" + strings.Join(found, "\n")
	}
	return Pass, "No IMSI found in Attach/Reg"
}

// privatePagingForms are the identifier forms that keep the subscriber unlinkable in paging.
var privatePagingForms = map[identity.Category]bool{
	identity.CategoryMTMSI:  true,
	identity.Category5GTMSI: true,
	identity.CategorySUCI:   true,
	identity.CategoryGUTI:   true,
}

func checkPagingForms(_ *Engine, records []registry.Record) (Verdict, string) {
	if len(records) == 0 {
		return Pending, "No paging events."
	}
	var offending []string
	for _, r := range records {
		if r.HasSource("Paging") && !privatePagingForms[r.DisplayCategory] {
			offending = append(offending, fmt.Sprintf("%s:%s", r.DisplayCategory, r.Value))
		}
	}
	if len(offending) > 0 {
		return Fail, "Non-SUCI/GUTI in paging:\n" + strings.Join(offending, "\n")
	}
	return Pass, "All SUCI/GUTI in paging"
}

func checkIMEISV(_ *Engine, records []registry.Record) (Verdict, string) {
	var found []string
	for _, r := range records {
		if r.DisplayCategory == identity.CategoryIMEISV {
			found = append(found, r.Value)
		}
	}
	if len(found) > 0 {
		return Fail, "IMEISV found:\n" + strings.Join(found, "\n")
	}
	return Pass, "No IMEISV found."
}

func checkIdentityResponseIMSI(_ *Engine, records []registry.Record) (Verdict, string) {
	var found []string
	for _, r := range records {
		if r.DisplayCategory == identity.CategoryIMSI && r.SourceContains("identity response") {
			found = append(found, r.Value)
		}
	}
	if len(found) > 0 {
		return Fail, "IMSI in Identity Response:\n" + strings.Join(found, "\n")
	}
	return Pass, "No IMSI in Identity Response."
}

func reserved(*Engine, []registry.Record) (Verdict, string) {
	return Pending, ""
}

// formatThreshold renders whole hours as "2h" and anything else with Duration.String.
func formatThreshold(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	return d.String()
}
