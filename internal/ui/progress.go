// Package ui holds terminal presentation helpers for the forge3d CLI.
package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Spinner shows an indeterminate progress indicator for work with no known
// length, such as loading models or running inference
type Spinner struct {
	bar       *progressbar.ProgressBar
	startTime time.Time
	stop      chan struct{}
	done      sync.WaitGroup
	once      sync.Once
}

// NewSpinner starts a spinner writing to w
func NewSpinner(w io.Writer, description string) *Spinner {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)

	s := &Spinner{
		bar:       bar,
		startTime: time.Now(),
		stop:      make(chan struct{}),
	}

	s.done.Add(1)
	go s.spin()
	return s
}

func (s *Spinner) spin() {
	defer s.done.Done()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.bar.Add(1)
		}
	}
}

// Describe replaces the spinner text
func (s *Spinner) Describe(description string) {
	s.bar.Describe(description)
}

// Stop halts the spinner and returns how long it ran
func (s *Spinner) Stop() time.Duration {
	s.once.Do(func() {
		close(s.stop)
		s.done.Wait()
		s.bar.Finish()
	})
	return time.Since(s.startTime)
}

// Check prints a success line
func Check(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "✓ "+format+"\n", args...)
}

// Cross prints a failure line
func Cross(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "✗ "+format+"\n", args...)
}

// FormatBytes formats bytes into human readable format
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatDuration formats duration into human readable format. Durations
// under a minute keep two decimals since inference steps are often short.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

// PadRight pads a string to the right
func PadRight(str string, length int) string {
	if len(str) >= length {
		return str
	}
	return str + strings.Repeat(" ", length-len(str))
}
