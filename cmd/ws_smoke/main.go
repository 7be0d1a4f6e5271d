// Command ws_smoke connects to a running server's usage feed, records a
// minute of usage for a task and waits for the push that reflects it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"screentime/internal/apiclient"
	"screentime/internal/feed"
	"screentime/internal/logger"
)

func main() {
	_ = godotenv.Load()
	logger.Init("debug", false)

	base := flag.String("base", "http://127.0.0.1:8000", "backend base url")
	taskID := flag.Int64("task", 0, "task id to record usage for; 0 only listens")
	wait := flag.Duration("wait", 15*time.Second, "how long to wait for a push")
	flag.Parse()

	token := os.Getenv("ACCESS_TOKEN")
	if token == "" {
		logger.Fatal("ACCESS_TOKEN not set")
	}

	endpoint, err := feed.EndpointFromBase(*base)
	if err != nil {
		logger.Fatal("bad base url", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *wait)
	defer cancel()

	api := apiclient.New(*base, token)
	c := feed.New(endpoint, feed.Options{Header: api.AuthHeader(), MaxRetries: 3})
	defer c.Close()

	updates, unsubscribe := c.Subscribe()
	defer unsubscribe()

	if err := c.Connect(ctx); err != nil {
		logger.Fatal("connect", "error", err)
	}

	// the join snapshot comes first
	var before map[int64]int64
	select {
	case before = <-updates:
		fmt.Printf("snapshot: %v\n", before)
	case <-ctx.Done():
		logger.Fatal("no snapshot received", "url", endpoint)
	}
	if *taskID == 0 {
		return
	}

	if err := api.RecordUsage(ctx, *taskID, 60); err != nil {
		logger.Fatal("record usage", "task_id", *taskID, "error", err)
	}

	for {
		select {
		case m := <-updates:
			fmt.Printf("push: %v\n", m)
			if m[*taskID] > before[*taskID] {
				fmt.Println("ok")
				return
			}
		case <-ctx.Done():
			logger.Fatal("usage push not observed", "task_id", *taskID)
		}
	}
}
