// Package serve implements the serve command, running the HTTP server.
package serve

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweepies/imgur-sans-bullshit/internal/app"
	"github.com/sweepies/imgur-sans-bullshit/internal/conf"
	"github.com/sweepies/imgur-sans-bullshit/internal/errors"
	"github.com/sweepies/imgur-sans-bullshit/internal/httpcontroller"
	"github.com/sweepies/imgur-sans-bullshit/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP mirroring server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings)
		},
	}
}

func run(settings *conf.Settings) error {
	logger := logging.ForService("serve")

	application, err := app.New(settings)
	if err != nil {
		return err
	}
	defer application.Close()

	server := httpcontroller.New(settings,
		application.Registry, application.Ingest, application.Limiter, application.Metrics)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}
