package ui

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// MultiBar shows one spinner bar per running task.
type MultiBar struct {
	progress *mpb.Progress

	mu   sync.Mutex
	bars map[string]*taskBar
}

type taskBar struct {
	bar    *mpb.Bar
	status atomic.Value
}

// NewMultiBar creates an empty multi-bar display on stderr.
func NewMultiBar() *MultiBar {
	return &MultiBar{
		progress: mpb.New(mpb.WithWidth(32), mpb.WithOutput(os.Stderr)),
		bars:     map[string]*taskBar{},
	}
}

// Update sets the status line of a task, adding its bar on first use.
func (m *MultiBar) Update(taskID, name, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tb, ok := m.bars[taskID]
	if !ok {
		tb = &taskBar{}
		tb.status.Store(status)
		tb.bar = m.progress.AddBar(1,
			mpb.BarFillerOnComplete("✓"),
			mpb.PrependDecorators(
				decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DSyncSpaceR}),
				decor.OnComplete(decor.Spinner([]string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}, decor.WC{W: 1}), "✓"),
			),
			mpb.AppendDecorators(
				decor.Elapsed(decor.ET_STYLE_GO, decor.WC{W: 8}),
				decor.Any(func(decor.Statistics) string {
					return " " + tb.status.Load().(string)
				}),
			),
		)
		m.bars[taskID] = tb
	}
	tb.status.Store(status)
}

// Done completes a task's bar.
func (m *MultiBar) Done(taskID, status string) {
	m.mu.Lock()
	tb, ok := m.bars[taskID]
	m.mu.Unlock()
	if ok {
		tb.status.Store(status)
		tb.bar.SetCurrent(1)
	}
}

// Wait stops the display after every bar completes.
func (m *MultiBar) Wait() {
	m.mu.Lock()
	bars := make([]*taskBar, 0, len(m.bars))
	for _, tb := range m.bars {
		bars = append(bars, tb)
	}
	m.mu.Unlock()
	for _, tb := range bars {
		if !tb.bar.Completed() {
			tb.bar.Abort(false)
		}
	}
	m.progress.Wait()
}
