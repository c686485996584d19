package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/templui/driveindex/cmd/driveindex/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.RootCmd().ExecuteContext(ctx)
	if err != nil {
		stop()
		os.Exit(1)
	}
}
