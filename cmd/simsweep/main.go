package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tigerroll/simsweep/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := app.Execute(ctx, app.NewRootCommand())
	stop()
	os.Exit(code)
}
