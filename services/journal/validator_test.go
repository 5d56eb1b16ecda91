package journal

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestValidator() *Validator {
	return &Validator{Now: func() time.Time { return testNow }}
}

func balancedDataset() *Dataset {
	return &Dataset{
		Columns: []string{"date", "account", "description", "debit", "credit", "reference"},
		Rows: []Row{
			{"date": "2024-05-01", "account": "110505", "description": "Cash receipt", "debit": "100.00", "credit": "0", "reference": "INV-1"},
			{"date": "2024-05-01", "account": "413505", "description": "Sales revenue", "debit": "0", "credit": "100.00", "reference": "INV-1"},
			{"date": "2024-05-02", "account": "110505", "description": "Cash receipt", "debit": "250.50", "credit": "0", "reference": ""},
			{"date": "2024-05-02", "account": "413505", "description": "Sales revenue", "debit": "0", "credit": "250.50", "reference": ""},
		},
	}
}

func violationRules(err error) []string {
	var verr *ValidationError
	if !errors.As(err, &verr) {
		return nil
	}
	rules := make([]string, 0, len(verr.Violations))
	for _, v := range verr.Violations {
		rules = append(rules, v.Rule)
	}
	return rules
}

func TestValidateCleanDataset(t *testing.T) {
	require.NoError(t, newTestValidator().Validate(balancedDataset(), "1.0"))
}

func TestValidateUnknownVersion(t *testing.T) {
	err := newTestValidator().Validate(balancedDataset(), "9.9")
	require.Error(t, err)
	var verr *ValidationError
	require.False(t, errors.As(err, &verr))
}

func TestValidateMissingColumnNamesIt(t *testing.T) {
	ds := balancedDataset()
	ds.Columns = []string{"date", "account", "description", "debit"}
	for _, row := range ds.Rows {
		delete(row, "credit")
		delete(row, "reference")
	}

	err := newTestValidator().Validate(ds, "1.0")
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Violations, 1)
	require.Equal(t, "missing_column", verr.Violations[0].Rule)
	require.Equal(t, "credit", verr.Violations[0].Column)
	require.Contains(t, verr.Violations[0].Message, "credit")
	require.Equal(t, -1, verr.Violations[0].RowIndex)
}

func TestValidateUnknownColumnRejected(t *testing.T) {
	ds := balancedDataset()
	ds.Columns = append(ds.Columns, "notes")
	for _, row := range ds.Rows {
		row["notes"] = "x"
	}

	err := newTestValidator().Validate(ds, "1.0")
	require.ErrorContains(t, err, "unknown column: notes")
	require.Contains(t, violationRules(err), "unknown_column")
}

func TestValidateStructuralStopsBeforeValueChecks(t *testing.T) {
	// a dataset missing a column should only report the structural problem,
	// not the value problems in the columns that remain
	ds := &Dataset{
		Columns: []string{"date", "account", "description", "debit"},
		Rows: []Row{
			{"date": "not-a-date", "account": "abc", "description": "", "debit": "oops"},
		},
	}

	err := newTestValidator().Validate(ds, "1.0")
	rules := violationRules(err)
	require.Equal(t, []string{"missing_column"}, rules)
}

func TestValidateInvalidNumeric(t *testing.T) {
	ds := balancedDataset()
	ds.Rows[0]["debit"] = "abc"

	err := newTestValidator().Validate(ds, "1.0")
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Violations, 1)
	require.Equal(t, "invalid_number", verr.Violations[0].Rule)
	require.Equal(t, "debit", verr.Violations[0].Column)
	require.Equal(t, 0, verr.Violations[0].RowIndex)
}

func TestValidateNegativeAmount(t *testing.T) {
	ds := balancedDataset()
	ds.Rows[1]["credit"] = "-5"

	err := newTestValidator().Validate(ds, "1.0")
	require.Contains(t, violationRules(err), "below_minimum")
}

func TestValidateInvalidDate(t *testing.T) {
	ds := balancedDataset()
	ds.Rows[2]["date"] = "01/05/2024"

	err := newTestValidator().Validate(ds, "1.0")
	rules := violationRules(err)
	require.Contains(t, rules, "invalid_date")
}

func TestValidateNonNumericAccount(t *testing.T) {
	ds := balancedDataset()
	ds.Rows[0]["account"] = "11-05"

	err := newTestValidator().Validate(ds, "1.0")
	require.Contains(t, violationRules(err), "invalid_format")
}

func TestValidateCollectsAllFormatViolations(t *testing.T) {
	ds := balancedDataset()
	ds.Rows[0]["debit"] = "abc"
	ds.Rows[3]["date"] = "bad"

	err := newTestValidator().Validate(ds, "1.0")
	rules := violationRules(err)
	require.Len(t, rules, 2)
	require.Contains(t, rules, "invalid_number")
	require.Contains(t, rules, "invalid_date")
}

func TestValidateFutureDate(t *testing.T) {
	ds := balancedDataset()
	future := testNow.AddDate(0, 0, 3).Format("2006-01-02")
	for _, row := range ds.Rows[:2] {
		row["date"] = future
	}

	err := newTestValidator().Validate(ds, "1.0")
	require.Contains(t, violationRules(err), "future_date")
}

func TestValidateEmptyDescription(t *testing.T) {
	ds := balancedDataset()
	ds.Rows[1]["description"] = "   "

	err := newTestValidator().Validate(ds, "1.0")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Violations, 1)
	require.Equal(t, "empty_description", verr.Violations[0].Rule)
	require.Equal(t, 1, verr.Violations[0].RowIndex)
}

func TestValidateUnbalancedGroupReportsSums(t *testing.T) {
	ds := balancedDataset()
	ds.Rows[3]["credit"] = "200.00"

	err := newTestValidator().Validate(ds, "1.0")
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Violations, 1)

	v := verr.Violations[0]
	require.Equal(t, "unbalanced_group", v.Rule)
	require.Equal(t, "2024-05-02", v.GroupKey)
	require.Contains(t, v.Message, "250.5")
	require.Contains(t, v.Message, "200")
}

func TestValidateBalanceTolerance(t *testing.T) {
	ds := &Dataset{
		Columns: []string{"date", "account", "description", "debit", "credit"},
		Rows: []Row{
			// within relative tolerance of 1e-5
			{"date": "2024-05-01", "account": "1", "description": "a", "debit": "100.0000001", "credit": "0"},
			{"date": "2024-05-01", "account": "2", "description": "b", "debit": "0", "credit": "100"},
		},
	}
	require.NoError(t, newTestValidator().Validate(ds, "1.0"))

	ds.Rows[0]["debit"] = "100.01"
	require.Contains(t, violationRules(newTestValidator().Validate(ds, "1.0")), "unbalanced_group")
}

func TestValidateDeterministic(t *testing.T) {
	ds := balancedDataset()
	ds.Columns = []string{"date", "account"}

	first := newTestValidator().Validate(ds, "1.0")
	for i := 0; i < 5; i++ {
		again := newTestValidator().Validate(ds, "1.0")
		require.Equal(t, first.Error(), again.Error())
	}
}

func TestValidateV11IntegerGrouping(t *testing.T) {
	ds := &Dataset{
		Columns: []string{"date", "account", "description", "debit", "credit", "document_id"},
		Rows: []Row{
			{"date": "2024-05-01", "account": "1", "description": "a", "debit": "50", "credit": "0", "document_id": "7"},
			{"date": "2024-05-01", "account": "2", "description": "b", "debit": "0", "credit": "50", "document_id": "7"},
		},
	}
	require.NoError(t, newTestValidator().Validate(ds, "1.1"))

	ds.Rows[0]["document_id"] = "seven"
	require.Contains(t, violationRules(newTestValidator().Validate(ds, "1.1")), "invalid_integer")
}

func TestValidateV11MovementEnum(t *testing.T) {
	ds := &Dataset{
		Columns: []string{"date", "account", "description", "debit", "credit", "document_id", "movement"},
		Rows: []Row{
			{"date": "2024-05-01", "account": "1", "description": "a", "debit": "50", "credit": "0", "document_id": "7", "movement": "Debit"},
			{"date": "2024-05-01", "account": "2", "description": "b", "debit": "0", "credit": "50", "document_id": "7", "movement": "Refund"},
		},
	}

	err := newTestValidator().Validate(ds, "1.1")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Violations, 1)
	require.Equal(t, "invalid_value", verr.Violations[0].Rule)
	require.Equal(t, 1, verr.Violations[0].RowIndex)
}

func TestValidateV11LineHasAmountRule(t *testing.T) {
	ds := &Dataset{
		Columns: []string{"date", "account", "description", "debit", "credit", "document_id"},
		Rows: []Row{
			{"date": "2024-05-01", "account": "1", "description": "a", "debit": "0", "credit": "0", "document_id": "7"},
		},
	}

	err := newTestValidator().Validate(ds, "1.1")
	require.Contains(t, violationRules(err), "line_has_amount")
}

func TestValidateIdempotent(t *testing.T) {
	// validation never mutates the dataset
	ds := balancedDataset()
	require.NoError(t, newTestValidator().Validate(ds, "1.0"))
	require.NoError(t, newTestValidator().Validate(ds, "1.0"))
	require.Equal(t, "100.00", ds.Rows[0]["debit"])
}
