// Package storage provides the batch ledger: a record of every batch run and
// the outcome of each of its tasks.
package storage

import (
	"errors"
	"time"

	"github.com/spherical/quizgen/internal/domain"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
)

// BatchStatus is the lifecycle state of a recorded batch.
type BatchStatus string

const (
	BatchRunning  BatchStatus = "running"
	BatchFinished BatchStatus = "finished"
	BatchStopped  BatchStatus = "stopped"
)

// BatchRecord is one row of the batches table.
type BatchRecord struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Status     BatchStatus   `json:"status"`
	TaskCount  int           `json:"task_count"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Cancelled  int           `json:"cancelled"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// TaskRecord is one row of the task_results table.
type TaskRecord struct {
	BatchID      string              `json:"batch_id"`
	TaskID       string              `json:"task_id"`
	OutputName   string              `json:"output_name"`
	Kind         domain.QuestionKind `json:"kind"`
	State        domain.TaskState    `json:"state"`
	Tier         domain.Tier         `json:"tier"`
	ArtifactPath string              `json:"artifact_path,omitempty"`
	DebugPath    string              `json:"debug_path,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
	Cancelled    bool                `json:"cancelled"`
	Duration     time.Duration       `json:"duration"`
	RecordedAt   time.Time           `json:"recorded_at"`
}

// BatchDetail is a batch with its task outcomes.
type BatchDetail struct {
	BatchRecord
	Tasks []TaskRecord `json:"tasks"`
}
