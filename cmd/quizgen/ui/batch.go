package ui

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/spherical/quizgen/internal/domain"
)

// BatchView renders a batch's progress events on the terminal. It shows
// either one overall bar or one bar per task.
type BatchView struct {
	mu    sync.Mutex
	names map[string]string
	bar   *ProgressBar
	multi *MultiBar
	done  bool
}

// NewBatchView creates a view for batch.
func NewBatchView(batch domain.Batch, multi bool) *BatchView {
	v := &BatchView{names: make(map[string]string, len(batch.Tasks))}
	for _, t := range batch.Tasks {
		v.names[t.ID] = t.OutputName
	}
	if multi {
		v.multi = NewMultiBar()
	} else {
		v.bar = NewProgressBar(100, batch.Name)
	}
	return v
}

// Publish implements domain.ProgressSink.
func (v *BatchView) Publish(ctx context.Context, ev domain.ProgressEvent) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.done {
		return nil
	}

	if v.multi != nil {
		if ev.TaskID != "" {
			v.multi.Update(ev.TaskID, v.names[ev.TaskID], ev.Message)
			if ev.TaskDone {
				v.multi.Done(ev.TaskID, ev.Message)
			}
		}
		if ev.Final {
			v.multi.Wait()
			v.done = true
		}
		return nil
	}

	v.bar.Set(int64(ev.Percent))
	if ev.TaskID != "" && (ev.TaskDone || verbose) {
		v.bar.Clear()
		fmt.Fprintf(os.Stderr, "[%s] %s\n", v.names[ev.TaskID], ev.Message)
	} else if ev.TaskID == "" {
		v.bar.Describe(ev.Message)
	}
	if ev.Final {
		v.bar.Finish()
		v.done = true
	}
	return nil
}

// Close releases the terminal if no final event arrived.
func (v *BatchView) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.done {
		return
	}
	v.done = true
	if v.multi != nil {
		v.multi.Wait()
		return
	}
	v.bar.Finish()
}
