package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"eventsync/internal/app"
	"eventsync/internal/application/inventory"
	"eventsync/internal/common/configs"
	"eventsync/internal/infrastructure/eventbus"
	httphandler "eventsync/internal/infrastructure/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", configs.ServiceNameInventory, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
	}()

	rt, err := app.New(ctx, app.Options{
		Name:   configs.ServiceNameInventory,
		Group:  configs.GroupInventory,
		Port:   configs.PortInventoryService,
		Topics: inventory.ConsumedTopics,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	store, err := rt.StockStore(ctx)
	if err != nil {
		return err
	}

	inventoryService := inventory.NewService(store, rt.Publisher, rt.Log)

	dispatcher := eventbus.NewDispatcher(rt.Log)
	inventoryService.Register(dispatcher)

	return rt.Run(ctx, dispatcher.Dispatch, nil, httphandler.NewStockHandler(inventoryService))
}
