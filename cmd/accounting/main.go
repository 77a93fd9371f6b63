package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"eventsync/internal/app"
	"eventsync/internal/application/accounting"
	"eventsync/internal/common/configs"
	"eventsync/internal/infrastructure/eventbus"
	httphandler "eventsync/internal/infrastructure/http"
	"eventsync/internal/infrastructure/outbox"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", configs.ServiceNameAccounting, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
	}()

	rt, err := app.New(ctx, app.Options{
		Name:   configs.ServiceNameAccounting,
		Group:  configs.GroupAccounting,
		Port:   configs.PortAccountingService,
		Topics: accounting.ConsumedTopics,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	journal, pending, err := rt.JournalStore(ctx)
	if err != nil {
		return err
	}

	accountingService := accounting.NewService(journal, rt.Log)

	dispatcher := eventbus.NewDispatcher(rt.Log)
	accountingService.Register(dispatcher)

	forwarder := outbox.NewForwarder(pending, rt.Publisher, rt.Codec, rt.Config.OutboxBatchSize, rt.Log, rt.Metrics)

	return rt.Run(ctx, dispatcher.Dispatch, forwarder, httphandler.NewJournalHandler(accountingService))
}
