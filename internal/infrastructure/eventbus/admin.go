package eventbus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"eventsync/internal/domain/topics"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// TopicSpecs lists every registered topic and its dead-letter topic.
func TopicSpecs(registry *topics.Registry, partitions, replication int) []kafka.TopicConfig {
	physical := registry.Physical()
	specs := make([]kafka.TopicConfig, 0, 2*len(physical))
	for _, name := range physical {
		for _, topic := range []string{name, topics.DeadLetterTopic(name)} {
			specs = append(specs, kafka.TopicConfig{
				Topic:             topic,
				NumPartitions:     partitions,
				ReplicationFactor: replication,
			})
		}
	}
	return specs
}

// EnsureTopics creates the missing topics of specs through the cluster
// controller. Existing topics are left untouched.
func EnsureTopics(ctx context.Context, brokers []string, specs []kafka.TopicConfig, log *zap.SugaredLogger) error {
	if len(brokers) == 0 {
		return errors.New("no brokers configured")
	}

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBrokerUnavailable, err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to find controller: %w", err)
	}
	addr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))

	ctrl, err := kafka.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to dial controller %s: %w", addr, err)
	}
	defer ctrl.Close()

	if err := ctrl.CreateTopics(specs...); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("failed to create topics: %w", err)
	}

	for _, s := range specs {
		log.Infow("topic ensured", "topic", s.Topic, "partitions", s.NumPartitions, "replication", s.ReplicationFactor)
	}
	return nil
}
