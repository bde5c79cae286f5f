package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hewlab/hew/internal/logging"
	"github.com/hewlab/hew/internal/provider"
	"github.com/hewlab/hew/internal/server"
)

// ServeCmd creates the serve command
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the host server",
		Long: `Start the HTTP/WebSocket host on the configured address
(default 127.0.0.1:27910). Local clients connect to /api/v1/agent/ws to
run agentic tasks and stream results.`,
		Run: func(cmd *cobra.Command, args []string) {
			RunServe()
		},
	}
}

// RunServe starts the host server and blocks until interrupted
func RunServe() {
	cfg := loadHostConfig()

	rt, err := initRuntime(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer rt.close()

	// Watch models.yaml so credential and catalog edits apply without a
	// restart.
	if err := provider.StartConfigWatcher(cfg.DataDir); err != nil {
		logging.Warnf("[cli] models.yaml watcher unavailable: %v", err)
	}
	defer provider.StopConfigWatcher()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("\nReceived signal: %v, shutting down...\n", sig)
		cancel()
	}()

	srv := server.New(cfg, rt.runner, rt.router, rt.sessions)
	if err := srv.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
