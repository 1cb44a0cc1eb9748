// Package orchestrator runs batches of tasks on a bounded pool of workers
// and reports their progress.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spherical/quizgen/internal/config"
	"github.com/spherical/quizgen/internal/domain"
	"github.com/spherical/quizgen/internal/llm"
	"github.com/spherical/quizgen/internal/observability"
	"github.com/spherical/quizgen/internal/worker"
)

// Orchestrator dispatches tasks to workers through a Launcher.
type Orchestrator struct {
	launcher      Launcher
	keys          *llm.RotationState
	concurrency   int
	dispatchDelay time.Duration
	logger        *observability.Logger
}

// New creates an orchestrator. keys may be nil when workers use their own
// default key.
func New(launcher Launcher, keys *llm.RotationState, cfg config.OrchestratorConfig, logger *observability.Logger) *Orchestrator {
	if logger == nil {
		logger = observability.Nop()
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{
		launcher:      launcher,
		keys:          keys,
		concurrency:   concurrency,
		dispatchDelay: cfg.DispatchDelay,
		logger:        logger.WithOperation("orchestrator"),
	}
}

// Run is a batch in flight. Logs and Results are closed once every task has
// produced its result and terminal sentinel.
type Run struct {
	Logs    <-chan domain.LogLine
	Results <-chan domain.TaskResult

	stop     chan struct{}
	stopOnce sync.Once
	kill     context.CancelFunc
	done     chan struct{}
}

// Stop asks running workers to stop and cancels undispatched tasks. Workers
// still running after grace are killed. Stop may be called more than once.
func (r *Run) Stop(grace time.Duration) {
	r.stopOnce.Do(func() {
		close(r.stop)
		go func() {
			timer := time.NewTimer(grace)
			defer timer.Stop()
			select {
			case <-timer.C:
				r.kill()
			case <-r.done:
			}
		}()
	})
}

// Done is closed when every task has finished.
func (r *Run) Done() <-chan struct{} { return r.done }

func (r *Run) stopped() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

// Start dispatches tasks in order. Cancelling ctx kills workers at once;
// use Run.Stop for a graceful stop.
func (o *Orchestrator) Start(ctx context.Context, tasks []domain.Task) *Run {
	killCtx, kill := context.WithCancel(ctx)
	logs := make(chan domain.LogLine, 256)
	results := make(chan domain.TaskResult, len(tasks))

	run := &Run{
		Logs:    logs,
		Results: results,
		stop:    make(chan struct{}),
		kill:    kill,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(run.done)
		defer kill()
		defer close(logs)
		defer close(results)

		var g errgroup.Group
		g.SetLimit(o.concurrency)

		for i, task := range tasks {
			if i > 0 && o.dispatchDelay > 0 && !run.stopped() {
				timer := time.NewTimer(o.dispatchDelay)
				select {
				case <-timer.C:
				case <-run.stop:
					timer.Stop()
				}
			}

			fw := &forwarder{task: task, logs: logs, results: results}
			if run.stopped() {
				fw.cancelled()
				continue
			}

			task := task
			g.Go(func() error {
				if run.stopped() {
					fw.cancelled()
					return nil
				}
				o.runTask(killCtx, run, task, fw)
				return nil
			})
		}

		_ = g.Wait()
		o.logger.Info().Int("tasks", len(tasks)).Msg("All tasks finished")
	}()

	return run
}

func (o *Orchestrator) runTask(ctx context.Context, run *Run, task domain.Task, fw *forwarder) {
	job := worker.Job{Task: task}
	if o.keys != nil && o.keys.Len() > 0 {
		key, err := o.keys.Lease()
		if err == nil {
			job.APIKey = key
		}
	}

	logger := o.logger.WithTask(task.ID, task.OutputName)
	logger.Debug().Msg("Dispatching task")

	start := time.Now()
	err := o.launcher.Launch(ctx, job, run.stop, fw.handle)
	if err != nil {
		logger.Warn().Err(err).Msg("Worker ended abnormally")
		fw.log(fmt.Sprintf("worker ended abnormally: %v", err))
	}
	fw.finish(err, run.stopped(), time.Since(start))
}

// forwarder guarantees one result and one sentinel per task whatever the
// worker sends.
type forwarder struct {
	task    domain.Task
	logs    chan<- domain.LogLine
	results chan<- domain.TaskResult

	mu       sync.Mutex
	resulted bool
	finished bool
}

func (f *forwarder) handle(m worker.Message) {
	switch m.Type {
	case worker.MessageLog:
		f.log(m.Text)
	case worker.MessageResult:
		if m.Result != nil {
			f.result(*m.Result)
		}
	case worker.MessageFinished:
		// The sentinel is sent by finish once the worker is gone.
	}
}

func (f *forwarder) log(text string) {
	f.mu.Lock()
	done := f.finished
	f.mu.Unlock()
	if done {
		return
	}
	f.logs <- domain.LogLine{TaskID: f.task.ID, Text: text, Time: time.Now()}
}

func (f *forwarder) result(r domain.TaskResult) {
	f.mu.Lock()
	if f.resulted {
		f.mu.Unlock()
		return
	}
	f.resulted = true
	f.mu.Unlock()

	r.TaskID = f.task.ID
	if r.OutputName == "" {
		r.OutputName = f.task.OutputName
	}
	if r.Kind == "" {
		r.Kind = f.task.Kind
	}
	f.results <- r
}

// finish synthesizes a result when the worker died silently and emits the
// terminal sentinel.
func (f *forwarder) finish(cause error, stopped bool, elapsed time.Duration) {
	f.mu.Lock()
	resulted := f.resulted
	f.mu.Unlock()

	if !resulted {
		r := domain.TaskResult{
			TaskID:     f.task.ID,
			OutputName: f.task.OutputName,
			Kind:       f.task.Kind,
			Tier:       domain.TierNone,
			Cancelled:  stopped,
			Duration:   elapsed,
		}
		switch {
		case stopped:
			r.ErrorMessage = "cancelled"
		case cause != nil:
			r.ErrorMessage = fmt.Sprintf("worker exited without result: %v", cause)
		default:
			r.ErrorMessage = "worker exited without result"
		}
		f.result(r)
	}

	f.mu.Lock()
	if f.finished {
		f.mu.Unlock()
		return
	}
	f.finished = true
	f.mu.Unlock()
	f.logs <- domain.LogLine{TaskID: f.task.ID, Finished: true, Time: time.Now()}
}

func (f *forwarder) cancelled() {
	f.result(domain.CancelledResult(f.task))
	f.finish(nil, true, 0)
}
