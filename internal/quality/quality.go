// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package quality evaluates per-table data-quality rule sets during raw to
// trusted promotion. Every rule classifies every row as pass or fail; rows
// failing any rule are excluded from the trusted output.
package quality

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cardinalhq/streamlake/internal/tableschema"
)

// RuleOutcome is the diagnostic result of one rule over one table's rows.
// It is surfaced through logs and metrics, never persisted as business data.
type RuleOutcome struct {
	RuleID string
	Passed int64
	Failed int64
}

// Rejected is a row excluded from trusted output, with the first rule that
// failed it.
type Rejected struct {
	Row    map[string]any
	RuleID string
	Reason string
}

// ReferenceSets maps a reference rule's ID to the set of allowed values.
type ReferenceSets map[string]map[string]struct{}

// Evaluator applies a table's rule set. It is built fresh per run; the
// dedupe rule keeps per-run seen state.
type Evaluator struct {
	rules []tableschema.Rule
	refs  ReferenceSets
	seen  map[string]map[string]struct{} // dedupe ruleID -> seen keys
}

// NewEvaluator builds an evaluator for the given rules. refs must contain
// an entry for every reference rule.
func NewEvaluator(rules []tableschema.Rule, refs ReferenceSets) (*Evaluator, error) {
	for _, r := range rules {
		if r.Type == tableschema.RuleReference {
			if _, ok := refs[r.ID]; !ok {
				return nil, fmt.Errorf("rule %s: no reference set loaded", r.ID)
			}
		}
	}
	e := &Evaluator{
		rules: rules,
		refs:  refs,
		seen:  make(map[string]map[string]struct{}),
	}
	for _, r := range rules {
		if r.Type == tableschema.RuleDedupe {
			e.seen[r.ID] = make(map[string]struct{})
		}
	}
	return e, nil
}

// Evaluate classifies each row against every rule. It returns the rows
// that passed all rules, per-rule pass/fail counts, and the rejected rows
// with the first failing rule attached.
func (e *Evaluator) Evaluate(rows []map[string]any) (passed []map[string]any, outcomes []RuleOutcome, rejected []Rejected) {
	counts := make([]RuleOutcome, len(e.rules))
	for i, r := range e.rules {
		counts[i].RuleID = r.ID
	}

	passed = make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		var firstFail *tableschema.Rule
		var firstReason string
		for i := range e.rules {
			rule := &e.rules[i]
			ok, reason := e.check(rule, row)
			if ok {
				counts[i].Passed++
				continue
			}
			counts[i].Failed++
			if firstFail == nil {
				firstFail = rule
				firstReason = reason
			}
		}
		if firstFail == nil {
			passed = append(passed, row)
		} else {
			rejected = append(rejected, Rejected{Row: row, RuleID: firstFail.ID, Reason: firstReason})
		}
	}
	return passed, counts, rejected
}

func (e *Evaluator) check(rule *tableschema.Rule, row map[string]any) (bool, string) {
	switch rule.Type {
	case tableschema.RuleRequired:
		v := row[rule.Column]
		if isNull(v) {
			return false, fmt.Sprintf("column %s is null", rule.Column)
		}
		return true, ""

	case tableschema.RuleNonNegative:
		v := row[rule.Column]
		if isNull(v) {
			// Null is the required rule's concern, not this one's.
			return true, ""
		}
		f, ok := asFloat(v)
		if !ok {
			return false, fmt.Sprintf("column %s value %v is not numeric", rule.Column, v)
		}
		if f < 0 {
			return false, fmt.Sprintf("column %s value %v is negative", rule.Column, v)
		}
		return true, ""

	case tableschema.RuleReference:
		v := row[rule.Column]
		if isNull(v) {
			return false, fmt.Sprintf("column %s is null, cannot reference %s.%s", rule.Column, rule.RefTable, rule.RefColumn)
		}
		if _, ok := e.refs[rule.ID][ValueKey(v)]; !ok {
			return false, fmt.Sprintf("column %s value %v not found in %s.%s", rule.Column, v, rule.RefTable, rule.RefColumn)
		}
		return true, ""

	case tableschema.RuleDedupe:
		parts := make([]string, len(rule.Keys))
		for i, k := range rule.Keys {
			parts[i] = ValueKey(row[k])
		}
		key := strings.Join(parts, "\x1f")
		if _, dup := e.seen[rule.ID][key]; dup {
			return false, fmt.Sprintf("duplicate natural key (%s)", strings.Join(rule.Keys, ","))
		}
		e.seen[rule.ID][key] = struct{}{}
		return true, ""
	}
	return false, fmt.Sprintf("unsupported rule type %q", rule.Type)
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// ValueKey renders a value for set membership and dedupe keys. Integral
// floats collapse to their integer form so CSV-parsed and JSON-parsed
// values of the same id compare equal.
func ValueKey(v any) string {
	switch n := v.(type) {
	case nil:
		return "\x00"
	case float64:
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'g', -1, 64)
	case string:
		return n
	default:
		return fmt.Sprintf("%v", v)
	}
}
