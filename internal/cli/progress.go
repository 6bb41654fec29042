package cli

import (
	"context"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
)

// startSpinner draws an indeterminate bar on w until the returned func is
// called or ctx ends. The returned func blocks until the bar is cleared and
// may be called more than once.
func startSpinner(ctx context.Context, w io.Writer, enabled bool, label string) func() {
	if !enabled {
		return func() {}
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(label),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionThrottle(80*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)

	ctx, cancel := context.WithCancel(ctx)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		tick := time.NewTicker(120 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = bar.Finish()
				return
			case <-tick.C:
				_ = bar.Add(1)
			}
		}
	}()

	return func() {
		cancel()
		<-finished
	}
}
