// Package app wires configuration, logging, the portal connection, the IPC
// surface, and the recovery supervisor into the daemon process.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/mvankamp/dictum/internal/cli"
	"github.com/mvankamp/dictum/internal/config"
	"github.com/mvankamp/dictum/internal/hub"
	"github.com/mvankamp/dictum/internal/ipc"
	"github.com/mvankamp/dictum/internal/logging"
	"github.com/mvankamp/dictum/internal/models"
	"github.com/mvankamp/dictum/internal/portal"
	"github.com/mvankamp/dictum/internal/session"
	"github.com/mvankamp/dictum/internal/version"
)

// Runner holds process-level dependencies used by Execute.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// Execute is the package entrypoint used by cmd/dictum/main.go.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

// Execute parses arguments, performs startup, and runs the daemon until
// shutdown. Startup failures exit 1; graceful shutdown exits 0.
func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("dictum"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("dictum"))
		return 0
	}
	if parsed.ShowVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	logger.Info("configuration loaded", "provider", cfg.Transcriber.Provider)

	h := hub.New(cfg)

	conn, err := portal.Connect(ctx, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("portal registration failed", "error", err.Error())
		return 1
	}

	if err := conn.CheckCapabilities(ctx); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("portal capability check failed", "error", err.Error())
		return 1
	}

	server := ipc.NewServer(conn.Bus(), h, models.NewDownloader(logger), logger)
	if err := server.Export(); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("IPC export failed", "error", err.Error())
		return 1
	}

	deps := session.DefaultDeps(conn, logger)
	if err := session.Supervise(ctx, deps, h, server, logger); err != nil {
		logger.Error("supervisor failed", "error", err.Error())
		return 1
	}

	logger.Info("shutdown complete")
	return 0
}
