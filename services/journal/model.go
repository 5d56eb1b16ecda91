package journal

import (
	"fmt"
	"strings"
)

// Row is a single record of a tabular dataset, keyed by column name. Values
// stay as raw strings until the validator and formatter coerce them.
type Row map[string]string

// Dataset is the in-memory form of one uploaded batch.
type Dataset struct {
	Columns []string
	Rows    []Row
}

// Violation describes one failed check. RowIndex is -1 for batch-level
// rules. GroupKey is set only on violations scoped to a single document
// group, which lets callers isolate the group instead of failing the batch.
type Violation struct {
	Rule     string `json:"rule"`
	Column   string `json:"column,omitempty"`
	RowIndex int    `json:"row"`
	GroupKey string `json:"group_key,omitempty"`
	Message  string `json:"message"`
}

// ValidationError carries the complete violation set for one dataset.
type ValidationError struct {
	Version    string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return fmt.Sprintf("dataset failed validation against rule set %s: %s", e.Version, strings.Join(msgs, "; "))
}

// FormattingError reports a document group whose fields could not be coerced
// into a submission payload.
type FormattingError struct {
	Group string
	Field string
	Err   error
}

func (e *FormattingError) Error() string {
	return fmt.Sprintf("group %s: field %q cannot be formatted: %v", e.Group, e.Field, e.Err)
}

func (e *FormattingError) Unwrap() error { return e.Err }

// LineItem is one journal line inside a submission payload.
type LineItem struct {
	Account     string  `json:"account"`
	Description string  `json:"description"`
	Reference   string  `json:"reference,omitempty"`
	CostCenter  string  `json:"cost_center,omitempty"`
	Debit       float64 `json:"debit"`
	Credit      float64 `json:"credit"`
}

// SubmissionPayload is the normalized form of one document group, consumed
// by the accounting service client. It is never persisted.
type SubmissionPayload struct {
	DocumentRef  string     `json:"document_ref"`
	Date         string     `json:"document_date"`
	Items        []LineItem `json:"entries"`
	Observations string     `json:"observations,omitempty"`
}
