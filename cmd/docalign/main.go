// Command docalign fits document templates to keypoint matches from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"docalign/internal/cli"
	"docalign/internal/config"
	"docalign/internal/logging"
	"docalign/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "docalign:", err)
		os.Exit(1)
	}
	if err := logging.Init(cfg.Logging.Level, cfg.Logging.Development); err != nil {
		fmt.Fprintln(os.Stderr, "docalign:", err)
		os.Exit(1)
	}
	defer logging.Sync()
	log := logging.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := tasks.New(ctx, cfg.Tasks.Workers, log)
	defer pool.Stop()

	root := cli.NewRoot(cfg, log, pool, nil)
	if err := root.Run(ctx, os.Args[1:]); err != nil {
		log.Debug("command failed", zap.Error(err))
		pool.Stop()
		logging.Sync()
		os.Exit(1)
	}
}
