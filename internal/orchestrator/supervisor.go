package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spherical/quizgen/internal/config"
	"github.com/spherical/quizgen/internal/domain"
	"github.com/spherical/quizgen/internal/observability"
)

// Ledger records batch outcomes.
type Ledger interface {
	StartBatch(ctx context.Context, batch domain.Batch) error
	RecordResult(ctx context.Context, batchID string, result domain.TaskResult) error
	FinishBatch(ctx context.Context, report *domain.BatchReport) error
}

// Supervisor runs a batch through the orchestrator, turning worker output
// into progress events.
type Supervisor struct {
	orch   *Orchestrator
	ledger Ledger
	sinks  []domain.ProgressSink
	poll   time.Duration
	grace  time.Duration
	logger *observability.Logger
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithLedger records every batch in l.
func WithLedger(l Ledger) SupervisorOption {
	return func(s *Supervisor) { s.ledger = l }
}

// WithSinks adds progress sinks that receive every event.
func WithSinks(sinks ...domain.ProgressSink) SupervisorOption {
	return func(s *Supervisor) { s.sinks = append(s.sinks, sinks...) }
}

// NewSupervisor creates a supervisor.
func NewSupervisor(orch *Orchestrator, cfg config.OrchestratorConfig, logger *observability.Logger, opts ...SupervisorOption) *Supervisor {
	if logger == nil {
		logger = observability.Nop()
	}
	s := &Supervisor{
		orch:   orch,
		poll:   cfg.PollInterval,
		grace:  cfg.GraceTimeout,
		logger: logger.WithOperation("supervisor"),
	}
	if s.poll <= 0 {
		s.poll = 100 * time.Millisecond
	}
	if s.grace <= 0 {
		s.grace = 15 * time.Second
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes the batch and blocks until every task has a result.
// Cancelling ctx triggers a graceful stop; Run still waits for the
// remaining results and returns the partial report.
func (s *Supervisor) Run(ctx context.Context, batch domain.Batch, progress domain.ProgressSink) (*domain.BatchReport, error) {
	logger := s.logger.WithBatch(batch.ID)
	start := time.Now()
	total := len(batch.Tasks)

	// Publishing and bookkeeping must outlive a cancelled ctx.
	bg := context.WithoutCancel(ctx)

	if s.ledger != nil {
		if err := s.ledger.StartBatch(bg, batch); err != nil {
			logger.Warn().Err(err).Msg("Ledger unavailable, continuing without it")
		}
	}

	sinks := s.sinks
	if progress != nil {
		sinks = append([]domain.ProgressSink{progress}, sinks...)
	}
	publish := func(ev domain.ProgressEvent) {
		ev.BatchID = batch.ID
		if ev.Time.IsZero() {
			ev.Time = time.Now()
		}
		for _, sink := range sinks {
			if err := sink.Publish(bg, ev); err != nil {
				logger.Debug().Err(err).Msg("Progress sink failed")
			}
		}
	}

	report := &domain.BatchReport{BatchID: batch.ID, BatchName: batch.Name}
	if total == 0 {
		publish(domain.ProgressEvent{Message: "Nothing to do", Percent: 100, Final: true})
		return s.finish(bg, report, start), nil
	}

	logger.Info().Int("tasks", total).Msg("Starting batch")
	publish(domain.ProgressEvent{Message: fmt.Sprintf("Starting %d task(s)", total)})

	run := s.orch.Start(bg, batch.Tasks)

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	logs, results := run.Logs, run.Results
	ctxDone := ctx.Done()
	finished, lastPercent := 0, -1
	var stoppedByUser bool

	for logs != nil || results != nil {
		select {
		case <-ctxDone:
			ctxDone = nil
			stoppedByUser = true
			logger.Warn().Dur("grace", s.grace).Msg("Stop requested")
			publish(domain.ProgressEvent{Message: "Stopping...", Percent: percent(finished, total)})
			run.Stop(s.grace)

		case line, ok := <-logs:
			if !ok {
				logs = nil
				continue
			}
			if line.Finished {
				finished++
				continue
			}
			publish(domain.ProgressEvent{TaskID: line.TaskID, Message: line.Text, Percent: percent(finished, total), Time: line.Time})

		case r, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			report.Results = append(report.Results, r)
			if s.ledger != nil {
				if err := s.ledger.RecordResult(bg, batch.ID, r); err != nil {
					logger.Warn().Err(err).Str("task_id", r.TaskID).Msg("Could not record result")
				}
			}
			publish(domain.ProgressEvent{TaskID: r.TaskID, Message: resultMessage(r), Percent: percent(finished, total), TaskDone: true})

		case <-ticker.C:
			if p := percent(finished, total); p != lastPercent {
				lastPercent = p
				publish(domain.ProgressEvent{Message: fmt.Sprintf("%d/%d task(s) finished", finished, total), Percent: p})
			}
		}
	}

	orderResults(report, batch.Tasks)
	report = s.finish(bg, report, start)

	summary := fmt.Sprintf("Done: %d succeeded, %d failed", report.Succeeded, report.Failed)
	if stoppedByUser {
		summary = fmt.Sprintf("Stopped: %d succeeded, %d failed, %d cancelled", report.Succeeded, report.Failed, report.Cancelled)
	}
	publish(domain.ProgressEvent{Message: summary, Percent: 100, ArtifactPaths: report.ArtifactPaths, Final: true})
	logger.Info().
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("cancelled", report.Cancelled).
		Dur("duration", report.Duration).
		Msg("Batch finished")

	return report, nil
}

func (s *Supervisor) finish(ctx context.Context, report *domain.BatchReport, start time.Time) *domain.BatchReport {
	report.Succeeded, report.Failed, report.Cancelled = 0, 0, 0
	report.ArtifactPaths = nil
	for _, r := range report.Results {
		switch {
		case r.Succeeded():
			report.Succeeded++
		default:
			report.Failed++
		}
		if r.Cancelled {
			report.Cancelled++
		}
		if r.ArtifactPath != "" {
			report.ArtifactPaths = append(report.ArtifactPaths, r.ArtifactPath)
		}
	}
	report.Duration = time.Since(start)

	if s.ledger != nil {
		if err := s.ledger.FinishBatch(ctx, report); err != nil {
			s.logger.Warn().Err(err).Str("batch_id", report.BatchID).Msg("Could not finish ledger batch")
		}
	}
	return report
}

// orderResults sorts results into task order.
func orderResults(report *domain.BatchReport, tasks []domain.Task) {
	pos := make(map[string]int, len(tasks))
	for i, t := range tasks {
		pos[t.ID] = i
	}
	sort.SliceStable(report.Results, func(i, j int) bool {
		return pos[report.Results[i].TaskID] < pos[report.Results[j].TaskID]
	})
}

func percent(done, total int) int {
	if total == 0 {
		return 100
	}
	return done * 100 / total
}

func resultMessage(r domain.TaskResult) string {
	switch {
	case r.Cancelled:
		return fmt.Sprintf("%s: cancelled", r.OutputName)
	case r.Succeeded():
		return fmt.Sprintf("%s: done", r.OutputName)
	case r.ArtifactPath != "":
		return fmt.Sprintf("%s: saved with errors (%s)", r.OutputName, r.ErrorMessage)
	default:
		return fmt.Sprintf("%s: failed (%s)", r.OutputName, r.ErrorMessage)
	}
}
