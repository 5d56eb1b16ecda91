package journal

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// balanceRelTol is the relative tolerance used when comparing debit and
// credit sums per document group.
const balanceRelTol = 1e-5

// Validator checks a dataset against a versioned rule set. It is stateless
// apart from the clock, which exists so the future-date rule is testable.
type Validator struct {
	Now func() time.Time
}

func NewValidator() *Validator {
	return &Validator{Now: time.Now}
}

// Validate runs the structural, per-column and cross-row checks in order.
// All violations of a stage are collected before returning; business rules
// only run once the structural and per-column checks are clean.
func (v *Validator) Validate(ds *Dataset, version string) error {
	rs, err := RuleSetFor(version)
	if err != nil {
		return err
	}

	violations := checkColumns(ds, rs)
	if len(violations) > 0 {
		return &ValidationError{Version: rs.Version, Violations: violations}
	}

	violations = checkFormats(ds, rs)
	if len(violations) == 0 {
		violations = v.checkBusinessRules(ds, rs)
	}

	if len(violations) > 0 {
		return &ValidationError{Version: rs.Version, Violations: violations}
	}
	return nil
}

func checkColumns(ds *Dataset, rs *RuleSet) []Violation {
	var violations []Violation

	present := make(map[string]bool, len(ds.Columns))
	for _, col := range ds.Columns {
		present[col] = true
	}

	for _, col := range sortedKeys(rs.Required) {
		if !present[col] {
			violations = append(violations, Violation{
				Rule:     "missing_column",
				Column:   col,
				RowIndex: -1,
				Message:  fmt.Sprintf("missing required column: %s", col),
			})
		}
	}

	known := rs.Columns()
	for _, col := range ds.Columns {
		if _, ok := known[col]; !ok {
			violations = append(violations, Violation{
				Rule:     "unknown_column",
				Column:   col,
				RowIndex: -1,
				Message:  fmt.Sprintf("unknown column: %s", col),
			})
		}
	}

	return violations
}

func checkFormats(ds *Dataset, rs *RuleSet) []Violation {
	var violations []Violation

	known := rs.Columns()
	for idx, row := range ds.Rows {
		for _, col := range ds.Columns {
			rule, ok := known[col]
			if !ok {
				continue
			}
			violations = append(violations, checkValue(row[col], col, rule, rs, idx)...)
		}
	}

	return violations
}

func checkValue(value, col string, rule ColumnRule, rs *RuleSet, idx int) []Violation {
	var violations []Violation

	switch rule.Type {
	case ColumnDate:
		if _, err := time.Parse(rule.Format, value); err != nil {
			return append(violations, Violation{
				Rule:     "invalid_date",
				Column:   col,
				RowIndex: idx,
				Message:  fmt.Sprintf("invalid date %q in column %q at row %d, required format YYYY-MM-DD", value, col, idx),
			})
		}
	case ColumnFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return append(violations, Violation{
				Rule:     "invalid_number",
				Column:   col,
				RowIndex: idx,
				Message:  fmt.Sprintf("invalid numeric value %q in column %q at row %d", value, col, idx),
			})
		}
		if rule.Min != nil && f < *rule.Min {
			violations = append(violations, Violation{
				Rule:     "below_minimum",
				Column:   col,
				RowIndex: idx,
				Message:  fmt.Sprintf("value %v below minimum %v in column %q at row %d", f, *rule.Min, col, idx),
			})
		}
	case ColumnInteger:
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return append(violations, Violation{
				Rule:     "invalid_integer",
				Column:   col,
				RowIndex: idx,
				Message:  fmt.Sprintf("invalid integer value %q in column %q at row %d", value, col, idx),
			})
		}
	case ColumnEnum:
		allowed := false
		for _, want := range rule.Allowed {
			if value == want {
				allowed = true
				break
			}
		}
		if !allowed {
			violations = append(violations, Violation{
				Rule:     "invalid_value",
				Column:   col,
				RowIndex: idx,
				Message:  fmt.Sprintf("value %q not allowed in column %q at row %d, expected one of %v", value, col, idx, rule.Allowed),
			})
		}
	}

	if re, ok := rs.patterns[col]; ok && !re.MatchString(value) {
		violations = append(violations, Violation{
			Rule:     "invalid_format",
			Column:   col,
			RowIndex: idx,
			Message:  fmt.Sprintf("invalid format %q in column %q at row %d", value, col, idx),
		})
	}

	if rule.MaxLength > 0 && len(value) > rule.MaxLength {
		violations = append(violations, Violation{
			Rule:     "max_length_exceeded",
			Column:   col,
			RowIndex: idx,
			Message:  fmt.Sprintf("value exceeds maximum length %d in column %q at row %d", rule.MaxLength, col, idx),
		})
	}

	return violations
}

// checkBusinessRules runs only on data that already passed the per-column
// stage, so date and amount parsing below cannot fail.
func (v *Validator) checkBusinessRules(ds *Dataset, rs *RuleSet) []Violation {
	var violations []Violation

	now := v.Now()
	dateRule := rs.Required["date"]
	for idx, row := range ds.Rows {
		d, _ := time.Parse(dateRule.Format, row["date"])
		if d.After(now) {
			violations = append(violations, Violation{
				Rule:     "future_date",
				Column:   "date",
				RowIndex: idx,
				Message:  fmt.Sprintf("future date %s at row %d", row["date"], idx),
			})
		}

		if strings.TrimSpace(row["description"]) == "" {
			violations = append(violations, Violation{
				Rule:     "empty_description",
				Column:   "description",
				RowIndex: idx,
				Message:  fmt.Sprintf("empty description at row %d", idx),
			})
		}
	}

	violations = append(violations, checkGroupBalance(ds, rs)...)
	violations = append(violations, v.checkRowRules(ds, rs)...)

	return violations
}

func checkGroupBalance(ds *Dataset, rs *RuleSet) []Violation {
	var violations []Violation

	var order []string
	debits := map[string]float64{}
	credits := map[string]float64{}
	for _, row := range ds.Rows {
		key := row[rs.GroupBy]
		if _, seen := debits[key]; !seen {
			order = append(order, key)
		}
		d, _ := strconv.ParseFloat(row["debit"], 64)
		c, _ := strconv.ParseFloat(row["credit"], 64)
		debits[key] += d
		credits[key] += c
	}

	for _, key := range order {
		if !balanced(debits[key], credits[key]) {
			violations = append(violations, Violation{
				Rule:     "unbalanced_group",
				Column:   rs.GroupBy,
				RowIndex: -1,
				GroupKey: key,
				Message: fmt.Sprintf("entries for %s %q are not balanced (debit: %v, credit: %v)",
					rs.GroupBy, key, debits[key], credits[key]),
			})
		}
	}

	return violations
}

func balanced(debit, credit float64) bool {
	return math.Abs(debit-credit) <= 1e-8+balanceRelTol*math.Abs(credit)
}

func (v *Validator) checkRowRules(ds *Dataset, rs *RuleSet) []Violation {
	if len(rs.RowRules) == 0 {
		return nil
	}

	var violations []Violation
	known := rs.Columns()
	for idx, row := range ds.Rows {
		activation := map[string]any{}
		for _, col := range ds.Columns {
			rule, ok := known[col]
			if !ok {
				continue
			}
			switch rule.Type {
			case ColumnFloat:
				f, _ := strconv.ParseFloat(row[col], 64)
				activation[col] = f
			case ColumnInteger:
				n, _ := strconv.ParseInt(row[col], 10, 64)
				activation[col] = n
			default:
				activation[col] = row[col]
			}
		}

		for _, rule := range rs.RowRules {
			matched, err := rs.evalRowRule(rule.Name, activation)
			if err != nil {
				violations = append(violations, Violation{
					Rule:     rule.Name,
					RowIndex: idx,
					Message:  fmt.Sprintf("rule %s failed to evaluate at row %d: %v", rule.Name, idx, err),
				})
				continue
			}
			if !matched {
				violations = append(violations, Violation{
					Rule:     rule.Name,
					RowIndex: idx,
					Message:  fmt.Sprintf("rule %s violated at row %d", rule.Name, idx),
				})
			}
		}
	}

	return violations
}

// sortedKeys keeps violation ordering deterministic regardless of map
// iteration order.
func sortedKeys(rules map[string]ColumnRule) []string {
	keys := make([]string, 0, len(rules))
	for k := range rules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
