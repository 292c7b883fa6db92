package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nomadlabs/nomadlabs"
	"github.com/nomadlabs/nomadlabs/internal/printer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return printer.Error("Invalid configuration", err.Error())
	}
	if cfg.SessionSecret == "" {
		return printer.Error("Missing session secret",
			"Set NOMADLABS_SESSION_SECRET or session_secret in the config file.")
	}

	app := nomadlabs.New(cfg)
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- app.Start() }()
	printer.Step("listening on %s (%s)", app.Config.Addr, app.Config.URL)

	select {
	case err := <-errc:
		if err != nil {
			return printer.Error("Server stopped", err.Error())
		}
		return nil
	case <-ctx.Done():
	}

	printer.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Echo.Shutdown(shutdownCtx); err != nil {
		return printer.Error("Shutdown failed", err.Error())
	}
	return nil
}
