package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"batchflow/pkg/config"
	"batchflow/services/journal"
)

// triggerSchedule adapts a TriggerSpec to the cron runner, so the live
// scheduler and the persisted next_run come from the same computation.
type triggerSchedule struct {
	spec TriggerSpec
}

func (s triggerSchedule) Next(t time.Time) time.Time {
	next, err := s.spec.NextRun(t)
	if err != nil {
		// spec was validated before registration, this cannot happen for a
		// registered task; returning zero deactivates the entry
		return time.Time{}
	}
	return next
}

// Scheduler owns the single background clock runner for a deployment. The
// request path only registers, cancels and reads; the clock runner is the
// sole producer of fire events, and each fire runs on its own goroutine.
type Scheduler struct {
	store     *Store
	pipeline  *Pipeline
	source    Source
	validator *journal.Validator
	cron      *cron.Cron
	loc       *time.Location

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// NewLocation resolves the configured scheduler timezone, falling back to
// UTC when it does not parse. The cron runner and the pipeline's reschedule
// computation both receive this one location.
func NewLocation(cfg *config.Config) *time.Location {
	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		zap.L().Warn("invalid scheduler timezone, falling back to UTC",
			zap.String("timezone", cfg.Scheduler.Timezone), zap.Error(err))
		loc = time.UTC
	}
	return loc
}

type SchedulerParams struct {
	fx.In
	Store     *Store
	Pipeline  *Pipeline
	Source    Source
	Validator *journal.Validator
	Location  *time.Location
}

func NewScheduler(p SchedulerParams) *Scheduler {
	return &Scheduler{
		store:     p.Store,
		pipeline:  p.Pipeline,
		source:    p.Source,
		validator: p.Validator,
		cron:      cron.New(cron.WithLocation(p.Location)),
		loc:       p.Location,
		entries:   map[string]cron.EntryID{},
	}
}

// Start re-registers every active task from the store and starts the clock
// runner. Persisted tasks survive process restarts; the store is the source
// of truth, the live job table is rebuilt from it.
func (s *Scheduler) Start(ctx context.Context) error {
	tasks, err := s.store.ListActiveTasks(ctx)
	if err != nil {
		return err
	}

	for _, task := range tasks {
		s.register(task)
	}

	s.cron.Start()
	zap.L().Info("[Scheduler] started", zap.Int("tasks", len(tasks)), zap.String("tz", s.loc.String()))
	return nil
}

// Stop halts the clock runner and waits for in-flight runs to finish or the
// context to expire. In-flight runs complete and write their history.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		zap.L().Warn("[Scheduler] stopped before in-flight runs finished")
	}
	zap.L().Info("[Scheduler] stopped")
	return nil
}

// ScheduleRequest carries the user-supplied parameters for a new task.
type ScheduleRequest struct {
	FileName    string    `json:"file_name"`
	TimeOfDay   string    `json:"time_of_day"`
	Frequency   Frequency `json:"frequency"`
	DayOfWeek   *int      `json:"day_of_week,omitempty"`
	DayOfMonth  *int      `json:"day_of_month,omitempty"`
	RuleVersion string    `json:"rule_version,omitempty"`
}

// ScheduleTask validates the trigger parameters and the referenced dataset,
// persists the task, registers its fire rule and returns the stored task.
func (s *Scheduler) ScheduleTask(ctx context.Context, tenantID string, req ScheduleRequest) (*Task, error) {
	spec := TriggerSpec{
		TimeOfDay:  req.TimeOfDay,
		Frequency:  req.Frequency,
		DayOfWeek:  req.DayOfWeek,
		DayOfMonth: req.DayOfMonth,
	}

	next, err := spec.NextRun(time.Now().In(s.loc))
	if err != nil {
		return nil, err
	}

	version := req.RuleVersion
	if version == "" {
		version = "1.0"
	}

	// fail fast on malformed uploads before anything persists; every later
	// fire re-reads the same reference
	ds, err := s.source.Read(ctx, req.FileName)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(ds, version); err != nil {
		return nil, err
	}

	task := &Task{
		TenantID:    tenantID,
		FileName:    req.FileName,
		Frequency:   req.Frequency,
		TimeOfDay:   req.TimeOfDay,
		DayOfWeek:   req.DayOfWeek,
		DayOfMonth:  req.DayOfMonth,
		RuleVersion: version,
		NextRun:     next,
	}
	if err := s.store.AddTask(ctx, task); err != nil {
		return nil, err
	}

	s.register(task)

	zap.L().Info("task scheduled",
		zap.String("task_id", task.ID),
		zap.String("tenant_id", tenantID),
		zap.String("frequency", string(task.Frequency)),
		zap.Time("next_run", task.NextRun),
	)
	return task, nil
}

func (s *Scheduler) register(task *Task) {
	taskID, tenantID := task.ID, task.TenantID
	entryID := s.cron.Schedule(triggerSchedule{spec: task.TriggerSpec()}, cron.FuncJob(func() {
		s.pipeline.Run(context.Background(), taskID, tenantID)
	}))

	s.mu.Lock()
	s.entries[task.ID] = entryID
	s.mu.Unlock()
}

// CancelTask removes the task's fire rule and deletes its persisted state.
// A fire rule already gone from the live scheduler is not an error; deletion
// of the stored task is what makes cancellation final.
func (s *Scheduler) CancelTask(ctx context.Context, taskID, tenantID string) error {
	if _, err := s.store.GetTask(ctx, taskID, tenantID); err != nil {
		return err
	}

	s.mu.Lock()
	if entryID, ok := s.entries[taskID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, taskID)
	}
	s.mu.Unlock()

	if err := s.store.DeleteTask(ctx, taskID, tenantID); err != nil {
		return err
	}

	zap.L().Info("task cancelled", zap.String("task_id", taskID), zap.String("tenant_id", tenantID))
	return nil
}

// GetTask, ListTasks and GetHistory are pass-through reads so callers only
// depend on the scheduler.

func (s *Scheduler) GetTask(ctx context.Context, taskID, tenantID string) (*Task, error) {
	return s.store.GetTask(ctx, taskID, tenantID)
}

func (s *Scheduler) ListTasks(ctx context.Context, tenantID string, status TaskStatus) ([]*Task, error) {
	return s.store.ListTasks(ctx, tenantID, status)
}

func (s *Scheduler) GetHistory(ctx context.Context, taskID, tenantID string, start, end *time.Time) ([]*HistoryEntry, error) {
	return s.store.GetHistory(ctx, taskID, tenantID, start, end)
}
