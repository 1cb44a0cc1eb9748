package worker

import (
	"time"

	"github.com/spherical/quizgen/internal/domain"
)

// MessageType identifies a line of the worker protocol.
type MessageType string

const (
	// Sent to the worker.
	MessageJob  MessageType = "job"
	MessageStop MessageType = "stop"

	// Sent by the worker.
	MessageLog      MessageType = "log"
	MessageResult   MessageType = "result"
	MessageFinished MessageType = "finished"
)

// Job is everything a worker needs to run one task. The API key is leased by
// the dispatcher so workers share no rotation state.
type Job struct {
	Task   domain.Task `json:"task"`
	APIKey string      `json:"api_key,omitempty"`
}

// Message is one JSON line exchanged with a worker.
type Message struct {
	Type   MessageType        `json:"type"`
	TaskID string             `json:"task_id,omitempty"`
	Job    *Job               `json:"job,omitempty"`
	Text   string             `json:"text,omitempty"`
	Result *domain.TaskResult `json:"result,omitempty"`
	Time   time.Time          `json:"time"`
}

// LogMessage builds a log line for a task.
func LogMessage(taskID, text string) Message {
	return Message{Type: MessageLog, TaskID: taskID, Text: text, Time: time.Now()}
}

// ResultMessage wraps a task result.
func ResultMessage(result domain.TaskResult) Message {
	return Message{Type: MessageResult, TaskID: result.TaskID, Result: &result, Time: time.Now()}
}

// FinishedMessage is the terminal sentinel for a task.
func FinishedMessage(taskID string) Message {
	return Message{Type: MessageFinished, TaskID: taskID, Time: time.Now()}
}
