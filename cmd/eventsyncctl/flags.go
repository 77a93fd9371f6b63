package main

import (
	"fmt"
	"strings"

	"eventsync/internal/common/configs"
	"eventsync/internal/common/logger"
	"eventsync/internal/domain/topics"

	"github.com/urfave/cli/v2"
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"LOG_VERBOSE"},
		},
		&cli.StringSliceFlag{
			Name:    "brokers",
			Aliases: []string{"b"},
			Usage:   "Kafka brokers (comma-separated)",
			EnvVars: []string{"KAFKA_BROKERS"},
		},
		&cli.StringFlag{
			Name:    "topic-prefix",
			Usage:   "Physical topic prefix",
			EnvVars: []string{"TOPIC_PREFIX"},
		},
	}
}

func createTopicsFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "partitions",
			Aliases: []string{"p"},
			Usage:   "Partitions per topic",
			EnvVars: []string{"KAFKA_TOPIC_PARTITIONS"},
		},
		&cli.IntFlag{
			Name:    "replication",
			Aliases: []string{"r"},
			Usage:   "Replication factor per topic",
			EnvVars: []string{"KAFKA_TOPIC_REPLICATION"},
		},
	}
}

func replayFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:     "topics",
			Aliases:  []string{"t"},
			Usage:    "Logical topics whose dead letters are replayed (e.g. SALES_EVENTS)",
			Required: true,
		},
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Maximum number of messages to replay, 0 for all",
		},
	}
}

func forwardFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Postgres connection string of the service owning the outbox",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:  "batch-size",
			Usage: "Records published per batch",
			Value: 100,
		},
	}
}

func listFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Postgres connection string of the service owning the dead-letter log",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Maximum number of entries",
			Value:   50,
		},
	}
}

// loadConfig reads the environment and applies the command-line overrides.
func loadConfig(c *cli.Context) (configs.Config, error) {
	cfg, err := configs.Load()
	if err != nil {
		return configs.Config{}, err
	}
	if brokers := splitList(c.StringSlice("brokers")); len(brokers) > 0 {
		cfg.Brokers = brokers
	}
	if prefix := c.String("topic-prefix"); prefix != "" {
		cfg.TopicPrefix = prefix
	}
	if c.IsSet("verbose") {
		cfg.Verbose = c.Bool("verbose")
	}
	if c.IsSet("database-url") {
		cfg.DatabaseURL = c.String("database-url")
	}
	return cfg, nil
}

func newLogger(cfg configs.Config) (logger.Logger, error) {
	l, err := logger.New(cfg.Verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger.Named(l, configs.ServiceNameCtl), nil
}

// logicalTopics validates names against registry.
func logicalTopics(registry *topics.Registry, raw []string) ([]topics.Name, error) {
	names := make([]topics.Name, 0, len(raw))
	for _, n := range splitList(raw) {
		name := topics.Name(n)
		if _, err := registry.Resolve(name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("at least one topic is required")
	}
	return names, nil
}

// splitList accepts both repeated flags and comma-separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
