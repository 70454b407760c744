// Package output handles all nophish CLI output formatting.
package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vulnverified/nophish/internal/engine"
)

// Progress writes pipeline progress to stderr. It implements
// engine.ProgressReporter.
type Progress struct {
	w       io.Writer
	verbose bool
	silent  bool
	mu      sync.Mutex
	start   time.Time
	warns   int
}

var _ engine.ProgressReporter = (*Progress)(nil)

// NewProgress creates a progress reporter.
func NewProgress(w io.Writer, verbose, silent bool) *Progress {
	return &Progress{
		w:       w,
		verbose: verbose,
		silent:  silent,
		start:   time.Now(),
	}
}

// Stage prints a stage header like "[2/5] Collecting evidence...".
func (p *Progress) Stage(num, total int, msg string) {
	if p.silent {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "[%d/%d] %s\n", num, total, msg)
}

// Detail prints verbose detail (only in verbose mode).
func (p *Progress) Detail(msg string) {
	if !p.verbose || p.silent {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "  %s\n", msg)
}

// Warn prints a degraded-evidence warning.
func (p *Progress) Warn(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.warns++
	if p.silent {
		return
	}
	fmt.Fprintf(p.w, "  ! %s\n", msg)
}

// Warnings returns how many warnings were reported.
func (p *Progress) Warnings() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.warns
}

// Complete prints the final state and duration.
func (p *Progress) Complete(state engine.State) {
	if p.silent {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	elapsed := time.Since(p.start).Seconds()
	if state == engine.StateFailed {
		fmt.Fprintf(p.w, "\nFailed after %.1fs\n", elapsed)
		return
	}
	fmt.Fprintf(p.w, "\nCompleted in %.1fs (%d warnings)\n", elapsed, p.warns)
}
