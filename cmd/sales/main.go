package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"eventsync/internal/app"
	"eventsync/internal/application/sales"
	"eventsync/internal/common/configs"
	"eventsync/internal/infrastructure/eventbus"
	httphandler "eventsync/internal/infrastructure/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", configs.ServiceNameSales, err)
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
		Name:   configs.ServiceNameSales,
		Group:  configs.GroupSales,
		Port:   configs.PortSalesService,
		Topics: sales.ConsumedTopics,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	// Rows are owned by the service name, so sharing a database with
	// inventory is safe.
	availability, err := rt.StockStore(ctx)
	if err != nil {
		return err
	}

	salesService := sales.NewService(availability, rt.Publisher, rt.Log)

	dispatcher := eventbus.NewDispatcher(rt.Log)
	salesService.Register(dispatcher)

	return rt.Run(ctx, dispatcher.Dispatch, nil, httphandler.NewSalesHandler(salesService))
}
