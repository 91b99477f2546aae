package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// exitInterrupted is the conventional status for a process ended by SIGINT.
const exitInterrupted = 130

// shutdownContext returns a context canceled by the first SIGINT or SIGTERM.
// Workers finish the folder they are listing and the run still reports its
// statistics. A second signal exits with status 130 without waiting.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-ctx.Done()

		if parent.Err() != nil {
			stop()
			return
		}

		force := make(chan os.Signal, 1)
		signal.Notify(force, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(force)

		stop()

		logger.Warn("interrupted, finishing in-flight folders; interrupt again to exit now")

		select {
		case sig := <-force:
			logger.Error("second interrupt, exiting", slog.String("signal", sig.String()))
			os.Exit(exitInterrupted)
		case <-parent.Done():
		}
	}()

	return ctx
}
