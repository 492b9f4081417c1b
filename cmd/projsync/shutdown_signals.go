package main

import (
	"context"
	"os"
	"sync/atomic"

	"projsync/internal/logging"
)

// watchShutdownSignals stops the watch on the first signal and cancels the
// final deletion flush on the second. Later signals are ignored.
func watchShutdownSignals(logger *logging.Logger, stop, abortFlush context.CancelFunc, signalCh <-chan os.Signal) func() {
	if signalCh == nil {
		return func() {}
	}

	done := make(chan struct{})
	var received atomic.Int32

	go func() {
		for {
			select {
			case <-done:
				return
			case sig, ok := <-signalCh:
				if !ok {
					return
				}
				fields := map[string]string{}
				if sig != nil {
					fields["signal"] = sig.String()
				}
				switch received.Add(1) {
				case 1:
					logger.Info("shutdown signal received; flushing pending deletions", fields)
					if stop != nil {
						stop()
					}
				case 2:
					logger.Warn("second signal; abandoning pending deletions", fields)
					if abortFlush != nil {
						abortFlush()
					}
				}
			}
		}
	}()

	return func() {
		close(done)
	}
}
