// Package main implements leadwatch, a terminal viewer for the broadcast
// stream. It connects to a running lead engine over the websocket channel and
// prints every event, reconnecting automatically on transient failures.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/acreleads/realtime-lead-engine/internal/logging"
	"github.com/acreleads/realtime-lead-engine/internal/viewer"
)

func main() {
	url := flag.String("url", "ws://localhost:5000/ws", "Websocket URL of the lead engine")
	development := flag.Bool("dev", true, "Use the development logger")
	flag.Parse()

	logger, err := logging.New(*development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	client := viewer.New(viewer.Config{
		URL:    *url,
		Logger: logger.Named("viewer"),
	})
	client.Connect()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigCh:
			logger.Info("shutting down")
			client.Close()
			return
		case msg, ok := <-client.Messages():
			if !ok {
				state := client.State()
				if state == viewer.StateFailed {
					logger.Error("connection failed permanently, giving up")
					os.Exit(1)
				}
				logger.Info("stream closed", zap.String("state", string(state)))
				return
			}
			fmt.Println(string(msg.Data))
		}
	}
}
