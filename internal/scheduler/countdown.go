package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Sleeper pauses for d or until ctx is done. It returns ctx.Err() when
// interrupted. A non-positive d returns immediately.
type Sleeper func(ctx context.Context, d time.Duration, label string) error

// Sleep is a plain timer Sleeper.
func Sleep(ctx context.Context, d time.Duration, label string) error {
	if d <= 0 {
		return nil
	}
	slog.Debug("sleeping", "label", strings.TrimSpace(strings.TrimSuffix(label, ": ")), "duration", d)

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Countdown returns a Sleeper that redraws "<label>Ns remaining" on out every
// second when out is a terminal, and Sleep otherwise.
func Countdown(out *os.File) Sleeper {
	if !isatty.IsTerminal(out.Fd()) && !isatty.IsCygwinTerminal(out.Fd()) {
		return Sleep
	}

	c := color.New(color.FgCyan)
	return func(ctx context.Context, d time.Duration, label string) error {
		if d <= 0 {
			return nil
		}

		deadline := time.Now().Add(d)
		timer := time.NewTimer(d)
		defer timer.Stop()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		width := 0
		draw := func() {
			secs := int(time.Until(deadline).Round(time.Second).Seconds())
			line := fmt.Sprintf("%s%ds remaining", label, secs)
			if len(line) > width {
				width = len(line)
			}
			c.Fprintf(out, "\r%-*s", width, line)
		}
		erase := func() {
			fmt.Fprintf(out, "\r%s\r", strings.Repeat(" ", width))
		}

		draw()
		for {
			select {
			case <-ctx.Done():
				erase()
				return ctx.Err()
			case <-timer.C:
				erase()
				return nil
			case <-ticker.C:
				draw()
			}
		}
	}
}
