// Command dynsub joins a data domain, waits for a publication of the
// configured topic, resolves its type at runtime and prints every sample it
// receives. All settings come from DYNSUB_* environment variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/drblury/dynsub/internal/runtime"
	"github.com/drblury/dynsub/internal/runtime/config"
	errspkg "github.com/drblury/dynsub/internal/runtime/errors"
	"github.com/drblury/dynsub/internal/runtime/logging"

	_ "github.com/drblury/dynsub/transport/transports"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}
	logger := logging.New(cfg.LogBackend, cfg.LogLevel, os.Stdout)

	svc, err := runtime.NewService(ctx, cfg, logger, runtime.ServiceDependencies{})
	if err != nil {
		var fatal *errspkg.FatalError
		if errors.As(err, &fatal) {
			fmt.Fprintf(os.Stderr, "Failed to create domain participant: %s\n", fatal.Reason())
		} else {
			fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		}
		return 1
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("Failed to leave domain", err, nil)
		}
	}()

	if err := svc.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Service stopped", err, nil)
		return 1
	}
	logger.Info("Shutting down", nil)
	return 0
}
