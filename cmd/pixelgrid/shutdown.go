package main

import (
	"context"
	"fmt"
	"time"
)

type httpShutdowner interface {
	Shutdown(ctx context.Context) error
}

type feedCloser interface {
	Close()
}

// shutdown closes the live feed and waits for in-flight requests. The history
// recorder is stopped last, whatever Shutdown returns.
func shutdown(srv httpShutdowner, feed feedCloser, stopRecorder context.CancelFunc, timeout time.Duration) error {
	defer stopRecorder()

	feed.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
