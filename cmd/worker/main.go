package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"meridian/internal/app/bootstrap"
)

// Worker process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring.
// 3) Run the scheduler, retry sweeper, queue dispatchers, and the inbound
//    consumer on a poll loop.
func main() {
	log.Println("meridian worker starting")
	app, err := bootstrap.BuildWorker()
	if err != nil {
		log.Fatalf("bootstrap worker failed: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("worker shutdown close failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("meridian worker stopped with error: %v", err)
	}
}
