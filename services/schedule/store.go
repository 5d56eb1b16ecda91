package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"batchflow/pkg/errutil"
)

// Store is the tenant-scoped persistence layer for tasks and their run
// history. Every query filters on tenant id; a correct-looking task id from
// another tenant behaves exactly like a missing row.
type Store struct {
	db   *gorm.DB
	node *snowflake.Node
}

func NewStore(db *gorm.DB, node *snowflake.Node) *Store {
	return &Store{db: db, node: node}
}

// Migrate creates or updates the task and history tables.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Task{}, &HistoryEntry{})
}

// AddTask inserts a new task with an assigned id and active status.
func (s *Store) AddTask(ctx context.Context, task *Task) error {
	task.ID = s.node.Generate().String()
	task.Status = StatusActive

	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return errutil.Internal("failed to store task", errutil.WithErr(err))
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, taskID, tenantID string) (*Task, error) {
	var task Task
	err := s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", taskID, tenantID).
		First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errutil.NotFound("task not found")
	}
	if err != nil {
		return nil, errutil.Internal("failed to load task", errutil.WithErr(err))
	}
	return &task, nil
}

// ListTasks returns the tenant's tasks ordered by next run time. An empty
// status lists everything.
func (s *Store) ListTasks(ctx context.Context, tenantID string, status TaskStatus) ([]*Task, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var tasks []*Task
	if err := q.Order("next_run ASC").Find(&tasks).Error; err != nil {
		return nil, errutil.Internal("failed to list tasks", errutil.WithErr(err))
	}
	return tasks, nil
}

// ListActiveTasks returns every active task across tenants, for scheduler
// startup recovery. This is the one store read that is not tenant-scoped.
func (s *Store) ListActiveTasks(ctx context.Context) ([]*Task, error) {
	var tasks []*Task
	err := s.db.WithContext(ctx).
		Where("status = ?", StatusActive).
		Order("next_run ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, errutil.Internal("failed to list active tasks", errutil.WithErr(err))
	}
	return tasks, nil
}

// UpdateTaskStatus sets the task's next run time and status in a single
// statement, so concurrent readers never observe a half-updated row.
func (s *Store) UpdateTaskStatus(ctx context.Context, taskID, tenantID string, nextRun time.Time, status TaskStatus) error {
	res := s.db.WithContext(ctx).
		Model(&Task{}).
		Where("id = ? AND tenant_id = ?", taskID, tenantID).
		Updates(map[string]any{
			"next_run": nextRun,
			"status":   status,
		})
	if res.Error != nil {
		return errutil.Internal("failed to update task", errutil.WithErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return errutil.NotFound("task not found")
	}
	return nil
}

// AddHistory appends one execution record. The run time is stamped here, at
// write time, never taken from the caller.
func (s *Store) AddHistory(ctx context.Context, taskID, tenantID string, outcome Outcome, result *RunResult) (*HistoryEntry, error) {
	entry := &HistoryEntry{
		ID:       s.node.Generate().String(),
		TaskID:   taskID,
		TenantID: tenantID,
		RunTime:  time.Now(),
		Outcome:  outcome,
	}

	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return nil, errutil.Internal("failed to encode run result", errutil.WithErr(err))
		}
		entry.Result = raw
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, errutil.Internal("failed to store history entry", errutil.WithErr(err))
	}
	return entry, nil
}

// GetHistory returns the task's execution records, newest first, optionally
// bounded by a time range.
func (s *Store) GetHistory(ctx context.Context, taskID, tenantID string, start, end *time.Time) ([]*HistoryEntry, error) {
	q := s.db.WithContext(ctx).Where("task_id = ? AND tenant_id = ?", taskID, tenantID)
	if start != nil {
		q = q.Where("run_time >= ?", *start)
	}
	if end != nil {
		q = q.Where("run_time <= ?", *end)
	}

	var entries []*HistoryEntry
	if err := q.Order("run_time DESC").Find(&entries).Error; err != nil {
		return nil, errutil.Internal("failed to load task history", errutil.WithErr(err))
	}
	return entries, nil
}

// DeleteTask removes the task and all of its history in one transaction, so
// no orphan history survives a partial failure.
func (s *Store) DeleteTask(ctx context.Context, taskID, tenantID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ? AND tenant_id = ?", taskID, tenantID).Delete(&HistoryEntry{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND tenant_id = ?", taskID, tenantID).Delete(&Task{}).Error
	})
	if err != nil {
		return errutil.Internal("failed to delete task", errutil.WithErr(err))
	}
	return nil
}
