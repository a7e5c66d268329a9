// Command xbus relays lines from stdin through a configured xbus engine.
//
//	tail -f app.out | xbus run --config xbus.yaml --tag app --watch
//	xbus validate --config xbus.yaml
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
