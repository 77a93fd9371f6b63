package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"eventsync/internal/common/configs"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  configs.ServiceNameCtl,
		Usage: "Operate the ERP event synchronization layer",
		Flags: globalFlags(),
		Commands: []*cli.Command{
			{
				Name:   "create-topics",
				Usage:  "Create every registered topic and its dead-letter topic",
				Flags:  createTopicsFlags(),
				Action: createTopics,
			},
			{
				Name:   "replay-dlq",
				Usage:  "Re-publish dead letters to the topic they came from",
				Flags:  replayFlags(),
				Action: replayDLQ,
			},
			{
				Name:   "forward-outbox",
				Usage:  "Publish pending outbox records once and exit",
				Flags:  forwardFlags(),
				Action: forwardOutbox,
			},
			{
				Name:   "dead-letters",
				Usage:  "List unresolved dead letters",
				Flags:  listFlags(),
				Action: listDeadLetters,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
