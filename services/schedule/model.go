package schedule

import (
	"time"

	"gorm.io/datatypes"

	"batchflow/services/journal"
)

type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

func (f Frequency) String() string {
	switch f {
	case Daily, Weekly, Monthly:
		return string(f)
	default:
		return ""
	}
}

type TaskStatus string

const (
	StatusActive TaskStatus = "active"
)

// Task is a recurring schedule definition. Cancellation deletes the row, so
// no cancelled status is ever persisted.
type Task struct {
	ID          string     `gorm:"column:id;primaryKey" json:"id"`
	TenantID    string     `gorm:"column:tenant_id;index;not null" json:"tenant_id"`
	FileName    string     `gorm:"column:file_name;not null" json:"file_name"`
	Frequency   Frequency  `gorm:"column:frequency;type:varchar(10);not null" json:"frequency"`
	TimeOfDay   string     `gorm:"column:time_of_day;type:varchar(5);not null" json:"time_of_day"`
	DayOfWeek   *int       `gorm:"column:day_of_week" json:"day_of_week,omitempty"`
	DayOfMonth  *int       `gorm:"column:day_of_month" json:"day_of_month,omitempty"`
	RuleVersion string     `gorm:"column:rule_version;type:varchar(10);not null" json:"rule_version"`
	NextRun     time.Time  `gorm:"column:next_run;index;not null" json:"next_run"`
	Status      TaskStatus `gorm:"column:status;type:varchar(20);not null" json:"status"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Task) TableName() string { return "scheduled_tasks" }

// TriggerSpec extracts the trigger parameters stored on the task.
func (t *Task) TriggerSpec() TriggerSpec {
	return TriggerSpec{
		TimeOfDay:  t.TimeOfDay,
		Frequency:  t.Frequency,
		DayOfWeek:  t.DayOfWeek,
		DayOfMonth: t.DayOfMonth,
	}
}

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
)

// HistoryEntry is one immutable record of an execution attempt.
type HistoryEntry struct {
	ID       string         `gorm:"column:id;primaryKey" json:"id"`
	TaskID   string         `gorm:"column:task_id;index;not null" json:"task_id"`
	TenantID string         `gorm:"column:tenant_id;index;not null" json:"tenant_id"`
	RunTime  time.Time      `gorm:"column:run_time;index;not null" json:"run_time"`
	Outcome  Outcome        `gorm:"column:outcome;type:varchar(10);not null" json:"outcome"`
	Result   datatypes.JSON `gorm:"column:result" json:"result,omitempty"`
}

func (HistoryEntry) TableName() string { return "task_history" }

// RunResult is the structured summary stored in a history entry's result
// column.
type RunResult struct {
	Succeeded   int                 `json:"succeeded"`
	Failed      int                 `json:"failed"`
	Error       string              `json:"error,omitempty"`
	Violations  []journal.Violation `json:"violations,omitempty"`
	GroupErrors map[string]string   `json:"group_errors,omitempty"`
}
