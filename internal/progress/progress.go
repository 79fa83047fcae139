package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Indicator shows how far an item-by-item operation such as packing or
// extracting has come.
type Indicator struct {
	writer      io.Writer
	label       string
	done        int
	total       int
	current     string
	startTime   time.Time
	mu          sync.Mutex
	showSpinner bool
	spinnerIdx  int
	lastStep    int
	stopChan    chan struct{}
	loopDone    chan struct{}
	stopOnce    sync.Once // Ensures Stop() is only called once
	isCI        bool
}

// Config holds configuration for progress indicator
type Config struct {
	Writer      io.Writer
	Label       string
	ShowSpinner bool
	IsCI        bool // Set to true in CI/CD environments to disable fancy output
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const (
	barWidth   = 30
	lineWidth  = 120
	ciStepSize = 10 // percent between CI log lines
)

// NewIndicator creates a new progress indicator
func NewIndicator(cfg Config) *Indicator {
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}

	// Auto-detect CI environment
	if !cfg.IsCI {
		cfg.IsCI = DetectCI()
	}

	return &Indicator{
		writer:      cfg.Writer,
		label:       cfg.Label,
		startTime:   time.Now(),
		showSpinner: cfg.ShowSpinner && !cfg.IsCI,
		lastStep:    -1,
		stopChan:    make(chan struct{}),
		isCI:        cfg.IsCI,
	}
}

// DetectCI reports whether the process runs under a CI system.
func DetectCI() bool {
	return os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true"
}

// IsCI reports whether the indicator prints plain lines instead of a
// spinner.
func (p *Indicator) IsCI() bool {
	return p.isCI
}

// Start begins the progress indicator display
func (p *Indicator) Start() {
	if p.showSpinner && p.loopDone == nil {
		p.loopDone = make(chan struct{})
		go p.spinnerLoop()
	}
}

// Stop stops the progress indicator and clears the spinner line.
func (p *Indicator) Stop() {
	p.stopOnce.Do(func() {
		if p.showSpinner {
			close(p.stopChan)
			if p.loopDone != nil {
				<-p.loopDone
			}
			p.mu.Lock()
			fmt.Fprintf(p.writer, "\r%s\r", strings.Repeat(" ", lineWidth))
			p.mu.Unlock()
		}
	})
}

// Update records that done of total items are finished, item being the
// last one. It is safe to call from the goroutine doing the work while
// the spinner runs.
func (p *Indicator) Update(done, total int, item string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = done
	p.total = total
	p.current = item

	if p.isCI {
		p.printStep()
	}
}

// Fraction returns the finished share of the items, 0 when the total is
// unknown.
func (p *Indicator) Fraction() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fraction()
}

func (p *Indicator) fraction() float64 {
	if p.total <= 0 {
		return 0
	}
	f := float64(p.done) / float64(p.total)
	if f > 1 {
		f = 1
	}
	return f
}

// spinnerLoop runs the spinner animation
func (p *Indicator) spinnerLoop() {
	defer close(p.loopDone)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.mu.Lock()
			p.renderProgress()
			p.spinnerIdx = (p.spinnerIdx + 1) % len(spinnerFrames)
			p.mu.Unlock()
		}
	}
}

// renderProgress draws the status line. Callers hold p.mu.
func (p *Indicator) renderProgress() {
	progress := p.fraction()
	elapsed := time.Since(p.startTime)

	var eta string
	if progress > 0 && progress < 1.0 {
		totalEstimated := time.Duration(float64(elapsed) / progress)
		eta = fmt.Sprintf(" | ETA: %s", formatDuration(totalEstimated-elapsed))
	}

	filled := int(float64(barWidth) * progress)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	line := fmt.Sprintf("%s %s [%s] %d/%d | %s%s %s",
		spinnerFrames[p.spinnerIdx],
		p.label,
		bar,
		p.done,
		p.total,
		formatDuration(elapsed),
		eta,
		truncateLeft(p.current, 40),
	)
	fmt.Fprintf(p.writer, "\r%-*s", lineWidth, truncateRight(line, lineWidth))
}

// printStep writes one line per ciStepSize percent. Callers hold p.mu.
func (p *Indicator) printStep() {
	percent := 0
	if p.total > 0 {
		percent = min(p.done*100/p.total, 100)
	}
	step := percent / ciStepSize
	if step == p.lastStep {
		return
	}
	p.lastStep = step
	fmt.Fprintf(p.writer, "%s: %d/%d (%d%%)\n", p.label, p.done, p.total, step*ciStepSize)
}

// PrintSummary writes a final line with the item count and elapsed time.
func (p *Indicator) PrintSummary() {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.writer, "✓ %s: %d items in %s\n", p.label, p.done, formatDuration(time.Since(p.startTime)))
}

// truncateLeft keeps the tail of s, which is the informative part of a path.
func truncateLeft(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "…" + string(r[len(r)-n+1:])
}

func truncateRight(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
