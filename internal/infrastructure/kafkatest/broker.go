package kafkatest

import (
	"context"
	"errors"
	"hash/fnv"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// WriteHook runs before a write is stored. Returning an error fails the
// write without storing anything.
type WriteHook func(ctx context.Context, msgs []kafka.Message) error

type topicPartition struct {
	topic     string
	partition int
}

// Broker is an in-memory stand-in for a Kafka cluster. Messages are hashed
// to partitions by key the way kafka.Hash does, each partition is an
// append-only log and committed offsets are tracked per consumer group.
type Broker struct {
	mu         sync.Mutex
	partitions int
	logs       map[topicPartition][]kafka.Message
	committed  map[string]map[topicPartition]int64
	changed    chan struct{}
	hook       WriteHook
	commitErr  error
}

func NewBroker(partitions int) *Broker {
	if partitions < 1 {
		partitions = 1
	}
	return &Broker{
		partitions: partitions,
		logs:       make(map[topicPartition][]kafka.Message),
		committed:  make(map[string]map[topicPartition]int64),
		changed:    make(chan struct{}),
	}
}

// OnWrite installs hook for every subsequent write.
func (b *Broker) OnWrite(hook WriteHook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hook = hook
}

// FailCommits makes every CommitMessages call return err until reset with nil.
func (b *Broker) FailCommits(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commitErr = err
}

// PartitionFor returns the partition a key is stored on.
func (b *Broker) PartitionFor(key []byte) int {
	if len(key) == 0 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write(key)
	return int(h.Sum32() % uint32(b.partitions))
}

func (b *Broker) write(ctx context.Context, defaultTopic string, msgs []kafka.Message) error {
	b.mu.Lock()
	hook := b.hook
	b.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, msgs); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, msg := range msgs {
		topic := msg.Topic
		if topic == "" {
			topic = defaultTopic
		}
		if topic == "" {
			return errors.New("kafkatest: message has no topic")
		}
		tp := topicPartition{topic: topic, partition: b.PartitionFor(msg.Key)}
		stored := msg
		stored.Topic = topic
		stored.Partition = tp.partition
		stored.Offset = int64(len(b.logs[tp]))
		stored.Headers = append([]kafka.Header(nil), msg.Headers...)
		if stored.Time.IsZero() {
			stored.Time = time.Now()
		}
		b.logs[tp] = append(b.logs[tp], stored)
	}

	close(b.changed)
	b.changed = make(chan struct{})
	return nil
}

// Messages returns every message of topic ordered by partition and offset.
func (b *Broker) Messages(topic string) []kafka.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []kafka.Message
	for p := 0; p < b.partitions; p++ {
		out = append(out, b.logs[topicPartition{topic, p}]...)
	}
	return out
}

// Topics returns the names of topics holding at least one message.
func (b *Broker) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]struct{})
	for tp := range b.logs {
		seen[tp.topic] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Committed returns the next offset group will read from, -1 when the group
// never committed on that partition.
func (b *Broker) Committed(group, topic string, partition int) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	offset, ok := b.committed[group][topicPartition{topic, partition}]
	if !ok {
		return -1
	}
	return offset
}

// CommittedTotal sums committed offsets of group over every partition of
// topic, which equals the number of consumed messages when nothing was
// skipped.
func (b *Broker) CommittedTotal(group, topic string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	var total int64
	for tp, offset := range b.committed[group] {
		if tp.topic == topic {
			total += offset
		}
	}
	return total
}

// Writer returns a writer for topic. An empty topic requires every message
// to name its own.
func (b *Broker) Writer(topic string) *Writer {
	return &Writer{broker: b, topic: topic}
}

// Reader returns a group member subscribed to topics that starts at the
// group's committed offsets.
func (b *Broker) Reader(group string, topics ...string) *Reader {
	r := &Reader{
		broker:   b,
		group:    group,
		topics:   topics,
		position: make(map[topicPartition]int64),
	}

	b.mu.Lock()
	for tp, offset := range b.committed[group] {
		r.position[tp] = offset
	}
	b.mu.Unlock()

	return r
}

type Writer struct {
	broker *Broker
	topic  string

	mu     sync.Mutex
	closed bool
}

func (w *Writer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return io.ErrClosedPipe
	}
	return w.broker.write(ctx, w.topic, msgs)
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

type Reader struct {
	broker *Broker
	group  string
	topics []string

	mu       sync.Mutex
	position map[topicPartition]int64
	next     int
	closed   bool
	commits  int
}

// FetchMessage blocks until a message is available, ctx ends or the reader
// is closed. Partitions are served round-robin, each in offset order.
func (r *Reader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	for {
		r.broker.mu.Lock()
		changed := r.broker.changed
		msg, ok := r.poll()
		r.broker.mu.Unlock()

		if r.isClosed() {
			return kafka.Message{}, io.EOF
		}
		if ok {
			return msg, nil
		}

		select {
		case <-ctx.Done():
			return kafka.Message{}, ctx.Err()
		case <-changed:
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// poll must be called with the broker lock held.
func (r *Reader) poll() (kafka.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var tps []topicPartition
	for _, topic := range r.topics {
		for p := 0; p < r.broker.partitions; p++ {
			tps = append(tps, topicPartition{topic, p})
		}
	}

	for i := 0; i < len(tps); i++ {
		tp := tps[(r.next+i)%len(tps)]
		log := r.broker.logs[tp]
		pos := r.position[tp]
		if pos < int64(len(log)) {
			r.position[tp] = pos + 1
			r.next = (r.next + i + 1) % len(tps)
			return log[pos], true
		}
	}
	return kafka.Message{}, false
}

// CommitMessages stores msg.Offset+1 per partition, never moving backwards.
func (r *Reader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.broker.mu.Lock()
	defer r.broker.mu.Unlock()

	if r.broker.commitErr != nil {
		return r.broker.commitErr
	}

	offsets := r.broker.committed[r.group]
	if offsets == nil {
		offsets = make(map[topicPartition]int64)
		r.broker.committed[r.group] = offsets
	}
	for _, msg := range msgs {
		tp := topicPartition{msg.Topic, msg.Partition}
		if next := msg.Offset + 1; next > offsets[tp] {
			offsets[tp] = next
		}
	}

	r.mu.Lock()
	r.commits++
	r.mu.Unlock()
	return nil
}

// Commits counts successful CommitMessages calls.
func (r *Reader) Commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commits
}

func (r *Reader) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
