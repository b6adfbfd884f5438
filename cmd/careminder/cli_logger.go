package main

import (
	"log/slog"

	"github.com/phrazzld/careminder/internal/config"
	"github.com/phrazzld/careminder/internal/platform/logger"
	"github.com/spf13/cobra"
)

// commandLogger logs to the command's stderr so that stdout carries only the
// command's output.
func commandLogger(cmd *cobra.Command, cfg config.ServerConfig) *slog.Logger {
	level, _ := logger.ParseLevel(cfg.LogLevel)
	return slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}
