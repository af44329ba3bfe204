// Package main is the entry point for the eln-mcp server.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/benchnote/eln-mcp/cmd/eln-mcp/app"
	"github.com/benchnote/eln-mcp/pkg/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := app.NewRootCmd().ExecuteContext(ctx)
	logger.Sync()
	if err == nil {
		return
	}

	var exitErr *app.ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	os.Exit(app.ExitConfig)
}
