//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/spherical/quizgen/internal/config"
	"github.com/spherical/quizgen/internal/domain"
)

func startPostgres(t *testing.T) config.LedgerConfig {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("quizgen_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return config.LedgerConfig{Driver: "postgres", Postgres: config.PostgresConfig{DSN: dsn, MaxOpenConns: 4}}
}

func TestPostgresLedgerIntegration(t *testing.T) {
	ctx := context.Background()
	cfg := startPostgres(t)

	l, err := Open(ctx, cfg, nil)
	require.NoError(t, err)

	require.NoError(t, l.StartBatch(ctx, sampleBatch()))
	require.NoError(t, l.RecordResult(ctx, "b1", domain.TaskResult{
		TaskID: "t1", OutputName: "bai1_TN", Kind: domain.KindMultipleChoice,
		ArtifactPath: "out/b1/bai1_TN.docx", Tier: domain.TierRendered, Duration: 1500 * time.Millisecond,
	}))
	require.NoError(t, l.RecordResult(ctx, "b1", domain.TaskResult{
		TaskID: "t2", OutputName: "bai1_DS", Kind: domain.KindTrueFalseSet,
		ErrorMessage: "stopped", Cancelled: true, Tier: domain.TierNone,
	}))
	require.NoError(t, l.FinishBatch(ctx, &domain.BatchReport{BatchID: "b1", Succeeded: 1, Failed: 1, Cancelled: 1, Duration: 2 * time.Second}))
	assert.ErrorIs(t, l.FinishBatch(ctx, &domain.BatchReport{BatchID: "missing"}), ErrNotFound)
	require.NoError(t, l.Close())

	// Reopening runs the migrations again with nothing to apply.
	l, err = Open(ctx, cfg, nil)
	require.NoError(t, err)
	defer l.Close()

	got, err := l.GetBatch(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Lớp 10", got.Name)
	assert.Equal(t, BatchStopped, got.Status)
	assert.Equal(t, 2, got.TaskCount)
	assert.Equal(t, 2*time.Second, got.Duration)
	require.NotNil(t, got.FinishedAt)
	require.Len(t, got.Tasks, 2)

	byID := map[string]TaskRecord{}
	for _, task := range got.Tasks {
		byID[task.TaskID] = task
	}
	assert.Equal(t, domain.TaskSucceeded, byID["t1"].State)
	assert.Equal(t, 1500*time.Millisecond, byID["t1"].Duration)
	assert.True(t, byID["t2"].Cancelled)
	assert.Equal(t, domain.TierNone, byID["t2"].Tier)

	_, err = l.GetBatch(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	batches, err := l.ListBatches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "b1", batches[0].ID)
}
