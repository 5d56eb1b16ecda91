package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"batchflow/pkg/errutil"
	"batchflow/services/journal"
)

// Source re-reads the tabular dataset behind a task's file reference. Every
// fire sees the latest content behind the same reference.
type Source interface {
	Read(ctx context.Context, ref string) (*journal.Dataset, error)
}

// Submitter delivers one formatted document to the external accounting
// service. Submissions must be idempotent by document on the remote side.
type Submitter interface {
	Submit(ctx context.Context, payload *journal.SubmissionPayload) error
}

// Pipeline is the unit of work executed once per fire: re-read, validate,
// format and submit per document group, classify, record, reschedule.
type Pipeline struct {
	store     *Store
	validator *journal.Validator
	formatter *journal.Formatter
	source    Source
	submitter Submitter
	loc       *time.Location
}

func NewPipeline(store *Store, validator *journal.Validator, formatter *journal.Formatter, source Source, submitter Submitter, loc *time.Location) *Pipeline {
	return &Pipeline{
		store:     store,
		validator: validator,
		formatter: formatter,
		source:    source,
		submitter: submitter,
		loc:       loc,
	}
}

// Run executes one fire for the given task. Validation, formatting and
// submission failures are converted into outcome classification and history;
// they never propagate to the scheduler's clock goroutine.
func (p *Pipeline) Run(ctx context.Context, taskID, tenantID string) {
	log := zap.L().With(zap.String("task_id", taskID), zap.String("tenant_id", tenantID))

	task, err := p.store.GetTask(ctx, taskID, tenantID)
	if err != nil {
		if errutil.HasStatus(err, errutil.StatusNotFound) {
			// cancelled between fire and lookup, nothing to do
			log.Info("task gone before run, skipping")
			return
		}
		log.Error("failed to load task for run", zap.Error(err))
		return
	}

	start := time.Now()
	result, outcome := p.execute(ctx, task)
	log.Info("run finished",
		zap.String("outcome", string(outcome)),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", time.Since(start)),
	)

	if _, err := p.store.AddHistory(ctx, task.ID, tenantID, outcome, result); err != nil {
		// losing an outcome is fatal for this run but must not stop recurrence
		log.Error("failed to record run outcome", zap.Error(err))
	}

	p.reschedule(ctx, log, task)
}

func (p *Pipeline) execute(ctx context.Context, task *Task) (*RunResult, Outcome) {
	ds, err := p.source.Read(ctx, task.FileName)
	if err != nil {
		return &RunResult{Error: err.Error()}, OutcomeFailed
	}

	// violations scoped to a single document group only exclude that group;
	// anything structural or row-level fails the whole run with no
	// submission attempted
	var badGroups map[string]string
	var violations []journal.Violation
	if err := p.validator.Validate(ds, task.RuleVersion); err != nil {
		var verr *journal.ValidationError
		if !errors.As(err, &verr) {
			return &RunResult{Error: err.Error()}, OutcomeFailed
		}
		violations = verr.Violations

		badGroups = map[string]string{}
		for _, v := range verr.Violations {
			if v.GroupKey == "" {
				return &RunResult{Error: verr.Error(), Violations: verr.Violations}, OutcomeFailed
			}
			badGroups[v.GroupKey] = v.Message
		}
	}

	rs, err := journal.RuleSetFor(task.RuleVersion)
	if err != nil {
		return &RunResult{Error: err.Error()}, OutcomeFailed
	}

	groups := journal.GroupRows(ds, rs)

	var mu sync.Mutex
	succeeded := 0
	groupErrors := map[string]string{}
	for key, msg := range badGroups {
		groupErrors[key] = msg
	}

	// each group is submitted independently; one bad group never aborts the
	// rest of the run
	var g errgroup.Group
	for _, group := range groups {
		if _, bad := badGroups[group.Key]; bad {
			continue
		}
		group := group
		g.Go(func() error {
			payload, err := p.formatter.Format(group, rs)
			if err == nil {
				err = p.submitter.Submit(ctx, payload)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				groupErrors[group.Key] = err.Error()
			} else {
				succeeded++
			}
			return nil
		})
	}
	_ = g.Wait()

	result := &RunResult{Succeeded: succeeded, Failed: len(groupErrors), Violations: violations}
	if len(groupErrors) > 0 {
		result.GroupErrors = groupErrors
	}
	return result, classify(succeeded, len(groupErrors))
}

func classify(succeeded, failed int) Outcome {
	switch {
	case failed == 0:
		return OutcomeSuccess
	case succeeded > 0:
		return OutcomePartial
	default:
		return OutcomeFailed
	}
}

// reschedule advances next_run regardless of the run's outcome; only
// explicit cancellation stops the recurrence. The computation runs in the
// scheduler's location, the same one the cron runner fires in, so the
// persisted next_run and the live schedule cannot disagree. A store failure
// here is retried once, since silently losing the update breaks the
// schedule.
func (p *Pipeline) reschedule(ctx context.Context, log *zap.Logger, task *Task) {
	next, err := task.TriggerSpec().NextRun(time.Now().In(p.loc))
	if err != nil {
		log.Error("failed to compute next run", zap.Error(err))
		return
	}

	for attempt := 1; attempt <= 2; attempt++ {
		err = p.store.UpdateTaskStatus(ctx, task.ID, task.TenantID, next, StatusActive)
		if err == nil {
			return
		}
		if errutil.HasStatus(err, errutil.StatusNotFound) {
			// task deleted while the run was in flight
			log.Info("task gone before reschedule")
			return
		}
		log.Warn("failed to persist next run", zap.Int("attempt", attempt), zap.Error(err))
	}

	log.Error("giving up persisting next run, recurrence may stall", zap.Time("next_run", next), zap.Error(err))
}
