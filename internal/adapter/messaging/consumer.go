package messaging

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBatchSize    = 10
	DefaultPollInterval = 500 * time.Millisecond
)

// ErrSourceClosed is returned by Poll once the source has been closed.
var ErrSourceClosed = errors.New("message source closed")

type Message struct {
	Topic       string
	Partition   int32
	Offset      int64
	LeaderEpoch int32
	Key         []byte
	Value       []byte
	Timestamp   time.Time
}

type BatchHandler interface {
	HandleBatch(ctx context.Context, batch []Message) error
}

// Source is a manually committed stream of messages.
type Source interface {
	// Poll waits up to timeout for the next message; nil, nil means nothing arrived
	Poll(ctx context.Context, timeout time.Duration) (*Message, error)

	// Commit marks every message of the batch as processed
	Commit(ctx context.Context, batch []Message) error

	// Rewind makes the next polls start again at the first message of the batch
	Rewind(batch []Message)

	Close()
}

// BatchConsumer hands whole batches to a handler and commits only after the
// handler succeeded. A failed batch is rewound and delivered again.
type BatchConsumer struct {
	source       Source
	handler      BatchHandler
	batchSize    int
	pollInterval time.Duration
	tracer       trace.Tracer
}

func NewBatchConsumer(source Source, handler BatchHandler, batchSize int, pollInterval time.Duration) *BatchConsumer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &BatchConsumer{
		source:       source,
		handler:      handler,
		batchSize:    batchSize,
		pollInterval: pollInterval,
		tracer:       otel.Tracer("github.com/rl1809/order-lifecycle/internal/adapter/messaging"),
	}
}

// Run blocks until ctx is cancelled, then closes the source.
func (c *BatchConsumer) Run(ctx context.Context) {
	defer c.source.Close()

	for ctx.Err() == nil {
		batch, err := c.fill(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrSourceClosed) {
				return
			}
			slog.ErrorContext(ctx, "poll failed", "error", err, "buffered", len(batch))
			if len(batch) == 0 {
				c.wait(ctx)
				continue
			}
		}
		if len(batch) == 0 {
			continue
		}

		c.process(ctx, batch)
	}
}

func (c *BatchConsumer) fill(ctx context.Context) ([]Message, error) {
	batch := make([]Message, 0, c.batchSize)
	for len(batch) < c.batchSize {
		msg, err := c.source.Poll(ctx, c.pollInterval)
		if err != nil {
			return batch, err
		}
		if msg == nil {
			break
		}
		batch = append(batch, *msg)
	}
	return batch, nil
}

func (c *BatchConsumer) process(ctx context.Context, batch []Message) {
	last := batch[len(batch)-1]
	ctx, span := c.tracer.Start(ctx, "BatchConsumer.process", trace.WithAttributes(
		attribute.String("messaging.destination", last.Topic),
		attribute.Int("messaging.batch.message_count", len(batch)),
	))
	defer span.End()

	if err := c.handler.HandleBatch(ctx, batch); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handle batch")
		slog.ErrorContext(ctx, "batch handler failed, batch will be redelivered",
			"error", err,
			"topic", last.Topic,
			"first_offset", batch[0].Offset,
			"last_offset", last.Offset,
			"batch_size", len(batch),
		)
		c.source.Rewind(batch)
		c.wait(ctx)
		return
	}

	if err := c.source.Commit(ctx, batch); err != nil {
		slog.ErrorContext(ctx, "commit failed",
			"error", err, "topic", last.Topic, "partition", last.Partition, "offset", last.Offset)
		return
	}
	slog.DebugContext(ctx, "batch committed",
		"topic", last.Topic, "partition", last.Partition, "offset", last.Offset, "batch_size", len(batch))
}

func (c *BatchConsumer) wait(ctx context.Context) {
	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
