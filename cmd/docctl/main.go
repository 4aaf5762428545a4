package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"docproc/internal/bootstrap"
	"docproc/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx))
}

func run(ctx context.Context) int {
	app, err := bootstrap.New(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap failed: %v\n", err)
		return 1
	}
	defer func() {
		if err := app.Close(); err != nil {
			app.Logger.Warn("close resources failed", "err", err)
		}
	}()

	cli.SetServices(app.Documents, app.Processing)
	if err := cli.Execute(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
