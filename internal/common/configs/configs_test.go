package configs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:19092"}, cfg.Brokers)
	assert.Equal(t, time.Second, cfg.PollTimeout)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryInitial)
	assert.Equal(t, 5*time.Second, cfg.PublishTimeout)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Zero(t, cfg.StartupMaxWait, "brokers are awaited until shutdown by default")
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_TOPICS", "SALES_EVENTS, STOCK_EVENTS")
	t.Setenv("KAFKA_MAX_ATTEMPTS", "3")
	t.Setenv("KAFKA_POLL_TIMEOUT", "250ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.Brokers)
	assert.Equal(t, []string{"SALES_EVENTS", "STOCK_EVENTS"}, cfg.Topics)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.PollTimeout)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("KAFKA_POLL_TIMEOUT", "soon")

	_, err := Load()
	assert.Error(t, err)
}

func TestConfig_ForService(t *testing.T) {
	cfg := Config{}.ForService(GroupInventory, []string{"STOCK_EVENTS"}, PortInventoryService)

	assert.Equal(t, GroupInventory, cfg.GroupID)
	assert.Equal(t, []string{"STOCK_EVENTS"}, cfg.Topics)
	assert.Equal(t, ":8081", cfg.HTTPAddr)

	explicit := Config{GroupID: "custom", Topics: []string{"SALES_EVENTS"}, HTTPAddr: ":9000"}.
		ForService(GroupInventory, []string{"STOCK_EVENTS"}, PortInventoryService)
	assert.Equal(t, "custom", explicit.GroupID)
	assert.Equal(t, []string{"SALES_EVENTS"}, explicit.Topics)
	assert.Equal(t, ":9000", explicit.HTTPAddr)
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		Brokers:        []string{"localhost:9092"},
		PollTimeout:    time.Second,
		MaxAttempts:    3,
		RetryInitial:   500 * time.Millisecond,
		RetryMax:       10 * time.Second,
		PublishTimeout: 5 * time.Second,
		Workers:        2,
		Storage:        StoragePostgres,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "no brokers", mutate: func(c *Config) { c.Brokers = nil }},
		{name: "zero poll timeout", mutate: func(c *Config) { c.PollTimeout = 0 }},
		{name: "zero attempts", mutate: func(c *Config) { c.MaxAttempts = 0 }},
		{name: "max below initial", mutate: func(c *Config) { c.RetryMax = time.Millisecond }},
		{name: "zero workers", mutate: func(c *Config) { c.Workers = 0 }},
		{name: "negative commit interval", mutate: func(c *Config) { c.CommitInterval = -time.Second }},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage = "redis" }},
		{name: "negative startup wait", mutate: func(c *Config) { c.StartupMaxWait = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
