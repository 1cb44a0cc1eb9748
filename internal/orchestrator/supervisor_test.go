package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/quizgen/internal/config"
	"github.com/spherical/quizgen/internal/domain"
)

type memoryLedger struct {
	mu       sync.Mutex
	started  []string
	results  []domain.TaskResult
	finished *domain.BatchReport
}

func (l *memoryLedger) StartBatch(ctx context.Context, batch domain.Batch) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, batch.ID)
	return nil
}

func (l *memoryLedger) RecordResult(ctx context.Context, batchID string, r domain.TaskResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, r)
	return nil
}

func (l *memoryLedger) FinishBatch(ctx context.Context, report *domain.BatchReport) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finished = report
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []domain.ProgressEvent
}

func (e *eventLog) Publish(ctx context.Context, ev domain.ProgressEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *eventLog) snapshot() []domain.ProgressEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.ProgressEvent(nil), e.events...)
}

type fakePublisher struct {
	mu       sync.Mutex
	channels []string
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	return nil
}

func TestSupervisorReportsBatch(t *testing.T) {
	cfg := config.OrchestratorConfig{Concurrency: 2, PollInterval: time.Millisecond, GraceTimeout: time.Second}
	orch := New(NewInProcessLauncher(newRunner("ok")), nil, cfg, nil)
	ledger := &memoryLedger{}
	pub := &fakePublisher{}
	sup := NewSupervisor(orch, cfg, nil, WithLedger(ledger), WithSinks(NewChannelSink(pub)))

	batch := domain.Batch{ID: "b1", Name: "lo", Tasks: makeTasks(4)}
	progress := &eventLog{}

	report, err := sup.Run(context.Background(), batch, progress)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
	require.Len(t, report.Results, 4)
	for i, r := range report.Results {
		assert.Equal(t, batch.Tasks[i].ID, r.TaskID)
	}
	assert.Equal(t, []string{"bai0_TN.docx", "bai1_TN.docx", "bai2_TN.docx", "bai3_TN.docx"}, report.ArtifactPaths)

	events := progress.snapshot()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.True(t, last.Final)
	assert.Equal(t, 100, last.Percent)
	assert.Equal(t, report.ArtifactPaths, last.ArtifactPaths)
	for _, ev := range events {
		assert.Equal(t, "b1", ev.BatchID)
		assert.False(t, ev.Time.IsZero())
	}
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Percent, events[i-1].Percent)
	}
	done := 0
	for _, ev := range events {
		if ev.TaskDone {
			done++
			assert.NotEmpty(t, ev.TaskID)
		}
	}
	assert.Equal(t, 4, done)

	assert.Equal(t, []string{"b1"}, ledger.started)
	assert.Len(t, ledger.results, 4)
	assert.Same(t, report, ledger.finished)

	pub.mu.Lock()
	assert.Len(t, pub.channels, 2*len(events))
	assert.Equal(t, "progress:b1", pub.channels[0])
	assert.Equal(t, AllProgressChannel, pub.channels[1])
	pub.mu.Unlock()
}

func TestSupervisorCancellation(t *testing.T) {
	cfg := config.OrchestratorConfig{Concurrency: 5, PollInterval: time.Millisecond, GraceTimeout: 5 * time.Second}
	runner := newRunner("wait")
	orch := New(NewInProcessLauncher(runner), nil, cfg, nil)
	sup := NewSupervisor(orch, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		assert.Eventually(t, func() bool { return runner.running.Load() == 5 }, 5*time.Second, 5*time.Millisecond)
		cancel()
	}()

	progress := &eventLog{}
	report, err := sup.Run(ctx, domain.Batch{ID: "b2", Tasks: makeTasks(10)}, progress)
	require.NoError(t, err)

	assert.Len(t, report.Results, 10)
	assert.Equal(t, 10, report.Cancelled)
	assert.Equal(t, 10, report.Failed)
	assert.Empty(t, report.ArtifactPaths)

	events := progress.snapshot()
	last := events[len(events)-1]
	assert.True(t, last.Final)
	assert.Contains(t, last.Message, "10 cancelled")
}

func TestSupervisorEmptyBatch(t *testing.T) {
	cfg := config.OrchestratorConfig{Concurrency: 1}
	sup := NewSupervisor(New(NewInProcessLauncher(newRunner("ok")), nil, cfg, nil), cfg, nil)

	progress := &eventLog{}
	report, err := sup.Run(context.Background(), domain.Batch{ID: "b3"}, progress)
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	require.Len(t, progress.snapshot(), 1)
	assert.True(t, progress.snapshot()[0].Final)
}

func TestSinkFunc(t *testing.T) {
	var got domain.ProgressEvent
	sink := SinkFunc(func(ctx context.Context, ev domain.ProgressEvent) error {
		got = ev
		return nil
	})
	require.NoError(t, sink.Publish(context.Background(), domain.ProgressEvent{Message: "x"}))
	assert.Equal(t, "x", got.Message)
}
