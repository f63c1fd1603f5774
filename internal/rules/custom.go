package rules

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/mrzor/cellwatch/internal/config"
	"github.com/mrzor/cellwatch/internal/registry"
)

// customRule is a user-supplied boolean expression. A true result means the rule fails.
type customRule struct {
	id         string
	name       string
	expression string
	program    *vm.Program
}

// compileCustomRules pre-compiles every expression against the rule environment.
func compileCustomRules(defs []config.CustomRule) ([]customRule, error) {
	typeEnv := exprEnv(nil)

	rules := make([]customRule, 0, len(defs))
	for i, def := range defs {
		program, err := expr.Compile(def.Expression, expr.Env(typeEnv), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression for rule %q: %w", def.Name, err)
		}
		rules = append(rules, customRule{
			id:         fmt.Sprintf("C%d", i+1),
			name:       def.Name,
			expression: def.Expression,
			program:    program,
		})
	}
	return rules, nil
}

func (c customRule) evaluate(records []registry.Record, env map[string]any) Result {
	res := Result{ID: c.id, Name: c.name, Description: c.expression}
	if len(records) == 0 {
		res.Verdict = Pending
		res.Detail = "No data yet"
		return res
	}

	out, err := expr.Run(c.program, env)
	if err != nil {
		res.Verdict = Pending
		res.Detail = fmt.Sprintf("evaluation failed: %v", err)
		return res
	}

	if failed, _ := out.(bool); failed {
		res.Verdict = Fail
		res.Detail = "Expression matched."
	} else {
		res.Verdict = Pass
		res.Detail = "Expression did not match."
	}
	return res
}

// exprEnv exposes records to expressions as maps with snake_case keys:
//
//	category, value, display_category, count, first_seen, last_seen, lifespan_seconds,
//	sources, mcc, mnc, tac, cid, mme_group, mme_code
//
// plus the number of records as total.
func exprEnv(records []registry.Record) map[string]any {
	rows := make([]map[string]any, len(records))
	for i, r := range records {
		rows[i] = map[string]any{
			"category":         string(r.Category),
			"value":            r.Value,
			"display_category": string(r.DisplayCategory),
			"count":            r.Count,
			"first_seen":       r.FirstSeen,
			"last_seen":        r.LastSeen,
			"lifespan_seconds": r.Lifespan().Seconds(),
			"sources":          r.Sources,
			"mcc":              r.Cell.MCC,
			"mnc":              r.Cell.MNC,
			"tac":              r.Cell.TAC,
			"cid":              r.Cell.CID,
			"mme_group":        r.MME.Group,
			"mme_code":         r.MME.Code,
		}
	}
	return map[string]any{
		"records": rows,
		"total":   len(records),
	}
}
