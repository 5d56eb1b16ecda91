package journal

import (
	"fmt"
	"strconv"
	"strings"
)

// Group is the set of rows sharing one grouping key. Each group becomes one
// submittable document.
type Group struct {
	Key  string
	Rows []Row
}

// GroupRows buckets the dataset's rows by the rule set's grouping key,
// preserving first-seen group order and row order within a group.
func GroupRows(ds *Dataset, rs *RuleSet) []Group {
	var order []string
	byKey := map[string][]Row{}

	for _, row := range ds.Rows {
		key := row[rs.GroupBy]
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], row)
	}

	groups := make([]Group, 0, len(order))
	for _, key := range order {
		groups = append(groups, Group{Key: key, Rows: byKey[key]})
	}
	return groups
}

// Formatter converts a validated document group into a submission payload.
type Formatter struct{}

func NewFormatter() *Formatter {
	return &Formatter{}
}

// Format builds the payload for one group. Numeric fields are concretely
// constructed here even though the validator already accepted them, so a
// coercion failure is still caught and isolated to this group.
func (f *Formatter) Format(group Group, rs *RuleSet) (*SubmissionPayload, error) {
	if len(group.Rows) == 0 {
		return nil, &FormattingError{Group: group.Key, Field: rs.GroupBy, Err: fmt.Errorf("empty group")}
	}

	date := group.Key
	if rs.GroupBy != "date" {
		date = group.Rows[0]["date"]
	}

	items := make([]LineItem, 0, len(group.Rows))
	var refs []string
	seenRefs := map[string]bool{}
	for _, row := range group.Rows {
		debit, err := strconv.ParseFloat(row["debit"], 64)
		if err != nil {
			return nil, &FormattingError{Group: group.Key, Field: "debit", Err: err}
		}
		credit, err := strconv.ParseFloat(row["credit"], 64)
		if err != nil {
			return nil, &FormattingError{Group: group.Key, Field: "credit", Err: err}
		}

		items = append(items, LineItem{
			Account:     row["account"],
			Description: row["description"],
			Reference:   row["reference"],
			CostCenter:  row["department"],
			Debit:       debit,
			Credit:      credit,
		})

		if ref := strings.TrimSpace(row["reference"]); ref != "" && !seenRefs[ref] {
			seenRefs[ref] = true
			refs = append(refs, ref)
		}
	}

	return &SubmissionPayload{
		DocumentRef:  group.Key,
		Date:         date,
		Items:        items,
		Observations: strings.Join(refs, ", "),
	}, nil
}
