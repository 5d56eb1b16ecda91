package journal

import (
	"fmt"
	"regexp"

	"github.com/google/cel-go/cel"

	"batchflow/pkg/errutil"
)

type ColumnType string

const (
	ColumnDate    ColumnType = "date"
	ColumnString  ColumnType = "string"
	ColumnFloat   ColumnType = "float"
	ColumnInteger ColumnType = "integer"
	ColumnEnum    ColumnType = "enum"
)

// ColumnRule describes the checks applied to a single column.
type ColumnRule struct {
	Type      ColumnType
	Format    string // date layout, ColumnDate only
	Pattern   string // regexp the raw value must match
	Allowed   []string
	MaxLength int
	Min       *float64
}

// RowRule is a named CEL expression evaluated against every row after the
// structural and per-column checks pass. The row's columns are exposed as
// top-level variables; the expression must return a boolean.
type RowRule struct {
	Name       string
	Expression string
}

// RuleSet is an immutable, versioned description of one batch schema.
type RuleSet struct {
	Version  string
	Required map[string]ColumnRule
	Optional map[string]ColumnRule
	// GroupBy names the column whose distinct values form document groups.
	GroupBy  string
	RowRules []RowRule

	patterns map[string]*regexp.Regexp
	programs map[string]cel.Program
}

func minValue(v float64) *float64 { return &v }

var ruleSets = map[string]*RuleSet{}

func init() {
	for _, rs := range []*RuleSet{newRuleSetV10(), newRuleSetV11()} {
		if err := rs.compile(); err != nil {
			panic(fmt.Sprintf("rule set %s: %v", rs.Version, err))
		}
		ruleSets[rs.Version] = rs
	}
}

// RuleSetFor returns the registered rule set for the given version.
func RuleSetFor(version string) (*RuleSet, error) {
	rs, ok := ruleSets[version]
	if !ok {
		return nil, errutil.BadRequest(fmt.Sprintf("unknown rule set version %q", version))
	}
	return rs, nil
}

func newRuleSetV10() *RuleSet {
	return &RuleSet{
		Version: "1.0",
		Required: map[string]ColumnRule{
			"date":        {Type: ColumnDate, Format: "2006-01-02"},
			"account":     {Type: ColumnString, Pattern: `^\d+$`},
			"description": {Type: ColumnString, MaxLength: 255},
			"debit":       {Type: ColumnFloat, Min: minValue(0)},
			"credit":      {Type: ColumnFloat, Min: minValue(0)},
		},
		Optional: map[string]ColumnRule{
			"reference":  {Type: ColumnString, MaxLength: 50},
			"department": {Type: ColumnString, MaxLength: 50},
		},
		GroupBy: "date",
	}
}

func newRuleSetV11() *RuleSet {
	rs := newRuleSetV10()
	rs.Version = "1.1"
	rs.Required["document_id"] = ColumnRule{Type: ColumnInteger, Pattern: `^\d+$`}
	rs.Optional["movement"] = ColumnRule{Type: ColumnEnum, Allowed: []string{"Debit", "Credit"}}
	rs.GroupBy = "document_id"
	rs.RowRules = []RowRule{
		{Name: "line_has_amount", Expression: "debit > 0.0 || credit > 0.0"},
	}
	return rs
}

// Columns returns every column the rule set knows about.
func (rs *RuleSet) Columns() map[string]ColumnRule {
	all := make(map[string]ColumnRule, len(rs.Required)+len(rs.Optional))
	for name, rule := range rs.Required {
		all[name] = rule
	}
	for name, rule := range rs.Optional {
		all[name] = rule
	}
	return all
}

func (rs *RuleSet) compile() error {
	rs.patterns = map[string]*regexp.Regexp{}
	for name, rule := range rs.Columns() {
		if rule.Pattern == "" {
			continue
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("column %s: %w", name, err)
		}
		rs.patterns[name] = re
	}

	if len(rs.RowRules) == 0 {
		return nil
	}

	variables := make([]cel.EnvOption, 0, len(rs.Required)+len(rs.Optional))
	for name := range rs.Columns() {
		variables = append(variables, cel.Variable(name, cel.DynType))
	}

	env, err := cel.NewEnv(variables...)
	if err != nil {
		return fmt.Errorf("failed to create CEL env: %w", err)
	}

	rs.programs = map[string]cel.Program{}
	for _, rule := range rs.RowRules {
		ast, issues := env.Compile(rule.Expression)
		if issues != nil && issues.Err() != nil {
			return fmt.Errorf("rule %s: %w", rule.Name, issues.Err())
		}
		program, err := env.Program(ast)
		if err != nil {
			return fmt.Errorf("rule %s: %w", rule.Name, err)
		}
		rs.programs[rule.Name] = program
	}

	return nil
}

// evalRowRule runs one compiled CEL program against a row activation map.
func (rs *RuleSet) evalRowRule(name string, activation map[string]any) (bool, error) {
	program, ok := rs.programs[name]
	if !ok {
		return false, fmt.Errorf("compiled program missing for rule %s", name)
	}

	val, _, err := program.Eval(activation)
	if err != nil {
		return false, fmt.Errorf("eval failed for rule %s: %w", name, err)
	}

	matched, ok := val.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule %s did not return boolean", name)
	}

	return matched, nil
}
