// Package main is the studio operator CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/louisbranch/portfolio.studio/internal/cmd/studioctl"
	"github.com/louisbranch/portfolio.studio/internal/platform/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := studioctl.NewRootCommand().ExecuteContext(ctx); err != nil {
		config.Exitf("studioctl: %v", err)
	}
}
