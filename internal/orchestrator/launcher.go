package orchestrator

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/spherical/quizgen/internal/domain"
	"github.com/spherical/quizgen/internal/observability"
	"github.com/spherical/quizgen/internal/worker"
)

// Launcher runs one job to completion. Launch blocks until the worker is
// gone. Closing stop asks the worker to stop cooperatively; cancelling ctx
// kills it.
type Launcher interface {
	Launch(ctx context.Context, job worker.Job, stop <-chan struct{}, sink func(worker.Message)) error
}

// InProcessLauncher runs workers as goroutines in this process.
type InProcessLauncher struct {
	runner worker.Runner
}

// NewInProcessLauncher wraps a runner.
func NewInProcessLauncher(runner worker.Runner) *InProcessLauncher {
	return &InProcessLauncher{runner: runner}
}

// Launch implements Launcher. A killed in-process worker is abandoned: its
// goroutine finishes in the background and its messages are dropped.
func (l *InProcessLauncher) Launch(ctx context.Context, job worker.Job, stop <-chan struct{}, sink func(worker.Message)) error {
	var (
		mu     sync.Mutex
		killed bool
	)
	guarded := func(m worker.Message) {
		mu.Lock()
		defer mu.Unlock()
		if !killed {
			sink(m)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if rec := recover(); rec != nil {
				guarded(worker.LogMessage(job.Task.ID, fmt.Sprintf("worker panicked: %v", rec)))
			}
		}()
		result := l.runner.Run(ctx, job, stop, guarded)
		guarded(worker.ResultMessage(result))
		guarded(worker.FinishedMessage(job.Task.ID))
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		mu.Lock()
		killed = true
		mu.Unlock()
		return domain.CancelledError("worker killed", ctx.Err())
	}
}

// ProcessLauncher runs each job in a child OS process speaking the worker
// JSON-lines protocol on stdin and stdout.
type ProcessLauncher struct {
	path   string
	args   []string
	env    []string
	logger *observability.Logger
}

// NewProcessLauncher creates a launcher for path with args. An empty path
// re-executes the current binary.
func NewProcessLauncher(path string, args []string, env []string, logger *observability.Logger) *ProcessLauncher {
	if logger == nil {
		logger = observability.Nop()
	}
	if path == "" {
		if exe, err := os.Executable(); err == nil {
			path = exe
		} else {
			path = os.Args[0]
		}
	}
	return &ProcessLauncher{path: path, args: args, env: env, logger: logger.WithOperation("launcher")}
}

// Launch implements Launcher.
func (l *ProcessLauncher) Launch(ctx context.Context, job worker.Job, stop <-chan struct{}, sink func(worker.Message)) error {
	taskID := job.Task.ID

	cmd := exec.CommandContext(ctx, l.path, l.args...)
	cmd.Env = append(os.Environ(), l.env...)
	cmd.WaitDelay = 2 * time.Second

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return domain.IOError("worker stdin", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return domain.IOError("worker stdout", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return domain.IOError("worker stderr", err)
	}

	if err := cmd.Start(); err != nil {
		return domain.IOError("start worker", err)
	}
	l.logger.Debug().Str("task_id", taskID).Int("pid", cmd.Process.Pid).Msg("Worker started")

	var stdinMu sync.Mutex
	writeLine := func(m worker.Message) error {
		stdinMu.Lock()
		defer stdinMu.Unlock()
		return json.NewEncoder(stdin).Encode(m)
	}

	if err := writeLine(worker.Message{Type: worker.MessageJob, Job: &job, Time: time.Now()}); err != nil {
		l.logger.Warn().Err(err).Str("task_id", taskID).Msg("Could not send job")
	}

	exited := make(chan struct{})
	go func() {
		select {
		case <-stop:
			if err := writeLine(worker.Message{Type: worker.MessageStop, Time: time.Now()}); err != nil {
				l.logger.Debug().Err(err).Str("task_id", taskID).Msg("Stop not delivered")
			}
		case <-exited:
		}
	}()

	var mu sync.Mutex
	locked := func(m worker.Message) {
		mu.Lock()
		defer mu.Unlock()
		sink(m)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		readMessages(stdout, taskID, locked)
	}()
	go func() {
		defer wg.Done()
		readStderr(stderr, taskID, locked)
	}()

	wg.Wait()
	err = cmd.Wait()
	close(exited)

	if ctx.Err() != nil {
		return domain.CancelledError("worker killed", ctx.Err())
	}
	if err != nil {
		return domain.IOError("worker exited", err)
	}
	return nil
}

const (
	maxMessageLine = 16 * 1024 * 1024
	maxStderrLine  = 1024 * 1024
)

// readMessages decodes protocol lines; anything else becomes a log line.
func readMessages(r io.Reader, taskID string, sink func(worker.Message)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxMessageLine)
	for scanner.Scan() {
		var m worker.Message
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil || m.Type == "" {
			sink(worker.LogMessage(taskID, scanner.Text()))
			continue
		}
		if m.TaskID == "" {
			m.TaskID = taskID
		}
		sink(m)
	}
	drain(r, scanner.Err(), taskID, sink)
}

func readStderr(r io.Reader, taskID string, sink func(worker.Message)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxStderrLine)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			sink(worker.LogMessage(taskID, line))
		}
	}
	drain(r, scanner.Err(), taskID, sink)
}

// drain discards the rest of a pipe the scanner gave up on, so the child
// never blocks writing to it.
func drain(r io.Reader, err error, taskID string, sink func(worker.Message)) {
	if err == nil {
		return
	}
	sink(worker.LogMessage(taskID, fmt.Sprintf("worker output unreadable, discarding the rest: %v", err)))
	_, _ = io.Copy(io.Discard, r)
}
