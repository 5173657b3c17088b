package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/rl1809/order-lifecycle/internal/core/domain"
)

const messageIDHeader = "message-id"

type KafkaSourceConfig struct {
	Brokers   []string
	GroupID   string
	Topic     string
	BatchSize int
}

// KafkaSource consumes one topic as a consumer group with auto-commit
// disabled, starting from the earliest offset when the group has none.
type KafkaSource struct {
	client   *kgo.Client
	maxPoll  int
	buffered []*kgo.Record
}

func NewKafkaSource(cfg KafkaSourceConfig) (*KafkaSource, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	maxPoll := cfg.BatchSize
	if maxPoll <= 0 {
		maxPoll = DefaultBatchSize
	}
	return &KafkaSource{client: client, maxPoll: maxPoll}, nil
}

func (s *KafkaSource) Poll(ctx context.Context, timeout time.Duration) (*Message, error) {
	if len(s.buffered) == 0 {
		pollCtx, cancel := context.WithTimeout(ctx, timeout)
		fetches := s.client.PollRecords(pollCtx, s.maxPoll)
		cancel()

		if fetches.IsClientClosed() {
			return nil, ErrSourceClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var errs []error
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return
			}
			errs = append(errs, fmt.Errorf("fetch %s[%d]: %w", topic, partition, err))
		})

		s.buffered = fetches.Records()
		if len(s.buffered) == 0 {
			return nil, errors.Join(errs...)
		}
		if len(errs) > 0 {
			slog.WarnContext(ctx, "partial fetch", "error", errors.Join(errs...))
		}
	}

	rec := s.buffered[0]
	s.buffered = s.buffered[1:]
	return &Message{
		Topic:       rec.Topic,
		Partition:   rec.Partition,
		Offset:      rec.Offset,
		LeaderEpoch: rec.LeaderEpoch,
		Key:         rec.Key,
		Value:       rec.Value,
		Timestamp:   rec.Timestamp,
	}, nil
}

func (s *KafkaSource) Commit(ctx context.Context, batch []Message) error {
	if err := s.client.CommitRecords(ctx, commitRecords(batch)...); err != nil {
		return fmt.Errorf("commit offsets: %w", err)
	}
	return nil
}

// Rewind also covers records fetched after the batch, because the client's
// fetch position has already moved past them.
func (s *KafkaSource) Rewind(batch []Message) {
	s.client.SetOffsets(rewindOffsets(batch, s.buffered))
	s.buffered = nil
}

func (s *KafkaSource) Close() {
	s.client.Close()
}

type topicPartition struct {
	topic     string
	partition int32
}

// commitRecords returns the last message of every partition in the batch.
func commitRecords(batch []Message) []*kgo.Record {
	latest := make(map[topicPartition]*kgo.Record)
	var order []topicPartition
	for _, msg := range batch {
		tp := topicPartition{msg.Topic, msg.Partition}
		cur, ok := latest[tp]
		if !ok {
			order = append(order, tp)
		}
		if !ok || msg.Offset > cur.Offset {
			latest[tp] = &kgo.Record{
				Topic:       msg.Topic,
				Partition:   msg.Partition,
				Offset:      msg.Offset,
				LeaderEpoch: msg.LeaderEpoch,
			}
		}
	}

	records := make([]*kgo.Record, 0, len(order))
	for _, tp := range order {
		records = append(records, latest[tp])
	}
	return records
}

// rewindOffsets returns the earliest offset per partition across the batch
// and any records still buffered behind it.
func rewindOffsets(batch []Message, buffered []*kgo.Record) map[string]map[int32]kgo.EpochOffset {
	offsets := make(map[string]map[int32]kgo.EpochOffset)
	consider := func(topic string, partition int32, offset int64, epoch int32) {
		partitions, ok := offsets[topic]
		if !ok {
			partitions = make(map[int32]kgo.EpochOffset)
			offsets[topic] = partitions
		}
		if cur, ok := partitions[partition]; !ok || offset < cur.Offset {
			partitions[partition] = kgo.EpochOffset{Epoch: epoch, Offset: offset}
		}
	}

	for _, msg := range batch {
		consider(msg.Topic, msg.Partition, msg.Offset, msg.LeaderEpoch)
	}
	for _, rec := range buffered {
		consider(rec.Topic, rec.Partition, rec.Offset, rec.LeaderEpoch)
	}
	return offsets
}

// KafkaPublisher produces order lifecycle events keyed by order id.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &KafkaPublisher{client: client, topic: topic}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, event domain.OrderCreationEvent) error {
	value, err := EncodeOrderCreationEvent(event)
	if err != nil {
		return err
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   EncodeOrderCreationKey(event.EventOrderID()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: messageIDHeader, Value: []byte(uuid.NewString())},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}
