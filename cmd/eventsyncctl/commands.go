package main

import (
	"fmt"
	"os"

	"eventsync/internal/app"
	"eventsync/internal/common/jsoncodec"
	"eventsync/internal/domain/events"
	"eventsync/internal/domain/topics"
	"eventsync/internal/infrastructure/database"
	"eventsync/internal/infrastructure/dlq"
	"eventsync/internal/infrastructure/eventbus"
	"eventsync/internal/infrastructure/outbox"

	"github.com/urfave/cli/v2"
)

func createTopics(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	partitions, replication := cfg.Partitions, cfg.Replication
	if c.IsSet("partitions") {
		partitions = c.Int("partitions")
	}
	if c.IsSet("replication") {
		replication = c.Int("replication")
	}

	specs := eventbus.TopicSpecs(topics.Default(cfg.TopicPrefix), partitions, replication)
	if err := eventbus.EnsureTopics(c.Context, cfg.Brokers, specs, log); err != nil {
		return err
	}
	fmt.Printf("%d topics ensured\n", len(specs))
	return nil
}

func replayDLQ(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	registry := topics.Default(cfg.TopicPrefix)
	names, err := logicalTopics(registry, c.StringSlice("topics"))
	if err != nil {
		return err
	}

	writer := eventbus.NewWriter(cfg.Brokers, cfg.PublishTimeout, log)
	defer writer.Close()

	replayer, err := app.NewReplayer(cfg, registry, names, writer, log)
	if err != nil {
		return err
	}
	res, err := replayer.Replay(c.Context, c.Int("limit"))
	fmt.Printf("replayed %d, skipped %d\n", res.Replayed, res.Skipped)
	return err
}

func forwardOutbox(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	db, err := database.Open(c.Context, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	registry := topics.Default(cfg.TopicPrefix)
	codec := events.NewCodec(registry)
	store := outbox.NewPostgresStore(db, codec)

	publisher := eventbus.NewPublisherFromConfig(cfg, registry, log, nil)
	defer publisher.Close()

	batchSize := c.Int("batch-size")
	forwarder := outbox.NewForwarder(store, publisher, codec, batchSize, log, nil)

	total := 0
	for {
		n, err := forwarder.ForwardOnce(c.Context)
		total += n
		if err != nil {
			fmt.Printf("forwarded %d record(s)\n", total)
			return err
		}
		if n == 0 || n < batchSize {
			break
		}
	}
	fmt.Printf("forwarded %d record(s)\n", total)
	return nil
}

func listDeadLetters(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	db, err := database.Open(c.Context, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := dlq.NewPostgresLog(db).ListUnresolved(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}

	out, err := jsoncodec.Marshal(entries)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(out, '\n'))
	return err
}
