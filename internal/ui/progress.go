package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"starload/internal/pipeline"
)

// ProgressBar tracks statements of a run
type ProgressBar struct {
	out       io.Writer
	total     int
	current   int
	startTime time.Time
	mu        sync.Mutex

	successCount int
	failureCount int
	currentName  string
}

// NewProgressBar creates a new progress bar writing to out, stdout when nil
func NewProgressBar(out io.Writer, total int) *ProgressBar {
	if out == nil {
		out = os.Stdout
	}
	return &ProgressBar{
		out:       out,
		total:     total,
		startTime: time.Now(),
	}
}

// Observe records a statement result. Its signature fits pipeline.WithObserver.
func (p *ProgressBar) Observe(res pipeline.StatementResult) {
	p.Update(res.Order, res.Name, res.Err == nil)
}

// Update updates the progress bar with current status
func (p *ProgressBar) Update(current int, name string, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	p.currentName = name

	if success {
		p.successCount++
	} else {
		p.failureCount++
	}

	p.render()
}

// Finish completes the progress bar
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "\n\n%s %d statements in %s\n",
		ColorSuccess("✓"),
		p.successCount,
		formatDuration(time.Since(p.startTime)),
	)
	if p.failureCount > 0 {
		fmt.Fprintf(p.out, "  %s %d failed\n", ColorError("✗"), p.failureCount)
	}
}

func (p *ProgressBar) render() {
	fmt.Fprint(p.out, "\r\033[K")

	percentage := 100.0
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100
	}
	if percentage > 100 {
		percentage = 100
	}

	barWidth := 30
	filled := int(percentage / 100 * float64(barWidth))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	name := p.currentName
	if len(name) > 40 {
		name = "..." + name[len(name)-37:]
	}

	fmt.Fprintf(p.out, "%s %s %.0f%% [%d/%d] %s - %s",
		ColorProgress("►"),
		bar,
		percentage,
		p.current,
		p.total,
		name,
		formatDuration(time.Since(p.startTime)),
	)
}

// Spinner represents an animated spinner for long operations
type Spinner struct {
	out     io.Writer
	frames  []string
	current int
	message string
	stop    chan struct{}
	stopped bool
	mu      sync.Mutex
}

// NewSpinner creates a new spinner
func NewSpinner(out io.Writer, message string) *Spinner {
	if out == nil {
		out = os.Stdout
	}
	return &Spinner{
		out:     out,
		frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		message: message,
		stop:    make(chan struct{}),
	}
}

// Start begins the spinner animation
func (s *Spinner) Start() {
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.mu.Lock()
				if !s.stopped {
					fmt.Fprintf(s.out, "\r%s %s %s",
						ColorProgress(s.frames[s.current]),
						s.message,
						strings.Repeat(" ", 20),
					)
					s.current = (s.current + 1) % len(s.frames)
				}
				s.mu.Unlock()
			}
		}
	}()
}

// Stop stops the spinner. Calling it twice is a no-op.
func (s *Spinner) Stop(success bool, message string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stop)

	fmt.Fprint(s.out, "\r\033[K")
	if success {
		fmt.Fprintf(s.out, "%s %s\n", ColorSuccess("✓"), message)
	} else {
		fmt.Fprintf(s.out, "%s %s\n", ColorError("✗"), message)
	}
	s.mu.Unlock()
}

// UpdateMessage updates the spinner message
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}
