// Package task runs fee pipelines as trackable units of work and keeps
// their progress and results for polling and download.
package task

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/feerecon/internal/model"
	"github.com/sells-group/feerecon/internal/pipeline"
)

var (
	// ErrTaskNotFound means the ID was never issued or has been swept.
	ErrTaskNotFound = eris.New("task not found")

	// ErrTaskNotReady means the task has not completed yet.
	ErrTaskNotReady = eris.New("task not ready")

	// ErrTaskFailed means the task ended in error and has no result.
	ErrTaskFailed = eris.New("task failed")
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input, progress func(pipeline.Phase)) (*pipeline.Output, error)
}

// Tracker issues task IDs, runs pipelines and records their progress.
type Tracker struct {
	reg       Registry
	runner    Runner
	base      context.Context
	retention time.Duration
	now       func() time.Time
	wg        sync.WaitGroup
}

// NewTracker creates a Tracker. Background tasks run under base, not under
// the submitting request's context, so they outlive the request.
// Terminal tasks are kept for retention after their last update.
func NewTracker(base context.Context, reg Registry, runner Runner, retention time.Duration) *Tracker {
	return &Tracker{
		reg:       reg,
		runner:    runner,
		base:      base,
		retention: retention,
		now:       time.Now,
	}
}

// Validate rejects uploads that can never be processed.
func Validate(in pipeline.Input) error {
	if !strings.EqualFold(filepath.Ext(in.Filename), ".xlsx") {
		return eris.Wrapf(model.ErrInputValidation, "task: %q is not an .xlsx workbook", in.Filename)
	}
	if len(in.Contents) == 0 {
		return eris.Wrap(model.ErrInputValidation, "task: empty upload")
	}
	if strings.TrimSpace(in.SheetName) == "" {
		return eris.Wrap(model.ErrInputValidation, "task: sheet name is required")
	}
	return nil
}

// Submit validates the upload, registers a pending task and starts it in
// the background.
func (t *Tracker) Submit(in pipeline.Input) (string, error) {
	id, err := t.register(in)
	if err != nil {
		return "", err
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		_, _ = t.execute(t.base, id, in)
	}()
	return id, nil
}

// RunSync validates the upload and runs it on the caller's goroutine. The
// task stays registered so its state can be polled and its result
// downloaded again.
func (t *Tracker) RunSync(ctx context.Context, in pipeline.Input) (string, *pipeline.Output, error) {
	id, err := t.register(in)
	if err != nil {
		return "", nil, err
	}
	out, err := t.execute(ctx, id, in)
	return id, out, err
}

func (t *Tracker) register(in pipeline.Input) (string, error) {
	if err := Validate(in); err != nil {
		return "", err
	}
	now := t.now()
	e := Entry{State: State{
		ID:        uuid.New().String(),
		Status:    StatusPending,
		Filename:  in.Filename,
		SheetName: in.SheetName,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	if err := t.reg.Insert(e); err != nil {
		return "", err
	}
	zap.L().Info("task: submitted",
		zap.String("task_id", e.ID),
		zap.String("file", in.Filename),
		zap.String("sheet", in.SheetName),
	)
	return e.ID, nil
}

// execute runs the pipeline and always leaves the task terminal.
func (t *Tracker) execute(ctx context.Context, id string, in pipeline.Input) (out *pipeline.Output, err error) {
	log := zap.L().With(zap.String("task_id", id))

	defer func() {
		if p := recover(); p != nil {
			err = eris.Errorf("task: panic: %v", p)
			out = nil
		}
		if err == nil && out == nil {
			err = eris.New("task: pipeline returned no output")
		}
		if err != nil {
			log.Error("task: failed", zap.Error(err))
			t.finish(id, func(e *Entry) {
				e.Status = StatusError
				e.Message = err.Error()
			})
			return
		}
		report := out.Report
		t.finish(id, func(e *Entry) {
			e.Status = StatusCompleted
			e.Progress = StatusCompleted.Progress()
			e.Message = fmt.Sprintf("processed %d records", report.OutputRecords)
			e.Report = &report
			e.Result = out.Contents
			e.ResultFilename = out.Filename
		})
		log.Info("task: completed", zap.Int("output_records", report.OutputRecords))
	}()

	return t.runner.Run(ctx, in, func(p pipeline.Phase) {
		s := statusForPhase(p)
		t.reg.Update(id, func(e *Entry) {
			if e.Status.Terminal() {
				return
			}
			e.Status = s
			e.Progress = s.Progress()
			e.UpdatedAt = t.now()
		})
	})
}

func (t *Tracker) finish(id string, fn func(e *Entry)) {
	t.reg.Update(id, func(e *Entry) {
		if e.Status.Terminal() {
			return
		}
		fn(e)
		e.UpdatedAt = t.now()
	})
}

// Poll returns the task's current state.
func (t *Tracker) Poll(id string) (State, error) {
	e, ok := t.reg.Get(id)
	if !ok {
		return State{}, eris.Wrapf(ErrTaskNotFound, "task: %s", id)
	}
	return e.State, nil
}

// Fetch returns the finished workbook and its filename. Tasks that have
// not completed are rejected.
func (t *Tracker) Fetch(id string) ([]byte, string, error) {
	e, ok := t.reg.Get(id)
	if !ok {
		return nil, "", eris.Wrapf(ErrTaskNotFound, "task: %s", id)
	}
	switch e.Status {
	case StatusCompleted:
		return e.Result, e.ResultFilename, nil
	case StatusError:
		return nil, "", eris.Wrapf(ErrTaskFailed, "task: %s: %s", id, e.Message)
	default:
		return nil, "", eris.Wrapf(ErrTaskNotReady, "task: %s is %s", id, e.Status)
	}
}

// List returns every tracked task, oldest first.
func (t *Tracker) List() []State {
	return t.reg.List()
}

// Sweep removes terminal tasks idle for longer than the retention period
// and returns how many were removed. Running tasks are never removed.
func (t *Tracker) Sweep() int {
	if t.retention <= 0 {
		return 0
	}
	cutoff := t.now().Add(-t.retention)
	removed := 0
	for _, s := range t.reg.List() {
		if s.Status.Terminal() && s.UpdatedAt.Before(cutoff) && t.reg.Remove(s.ID) {
			removed++
		}
	}
	if removed > 0 {
		zap.L().Info("task: swept expired tasks", zap.Int("removed", removed))
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done.
func (t *Tracker) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Sweep()
			}
		}
	}()
}

// Wait blocks until every background task has finished.
func (t *Tracker) Wait() {
	t.wg.Wait()
}
