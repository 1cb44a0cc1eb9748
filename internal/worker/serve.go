package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/spherical/quizgen/internal/domain"
)

// Serve runs the worker side of the process protocol: the first line on in
// is the job, a later {"type":"stop"} line requests a cooperative stop. Log,
// result and finished messages are written to out as JSON lines.
func Serve(ctx context.Context, in io.Reader, out io.Writer, runner Runner) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return domain.IOError("read job", err)
		}
		return domain.ValidationError("no job received", io.ErrUnexpectedEOF)
	}

	var first Message
	if err := json.Unmarshal(scanner.Bytes(), &first); err != nil {
		return domain.ValidationError("decode job", err)
	}
	if first.Type != MessageJob || first.Job == nil {
		return domain.ValidationError("first message must be a job", nil)
	}

	stop := make(chan struct{})
	go func() {
		for scanner.Scan() {
			var msg Message
			if json.Unmarshal(scanner.Bytes(), &msg) == nil && msg.Type == MessageStop {
				close(stop)
				return
			}
		}
	}()

	enc := &encoder{enc: json.NewEncoder(out)}
	job := *first.Job

	result := runner.Run(ctx, job, stop, enc.send)
	enc.send(ResultMessage(result))
	enc.send(FinishedMessage(job.Task.ID))
	return enc.err
}

// encoder serializes concurrent writers and keeps the first write error.
type encoder struct {
	mu  sync.Mutex
	enc *json.Encoder
	err error
}

func (e *encoder) send(msg Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return
	}
	if err := e.enc.Encode(msg); err != nil {
		e.err = domain.IOError("write message", err)
	}
}
