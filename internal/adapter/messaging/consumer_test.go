package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource replays a fixed log like a single Kafka partition.
type fakeSource struct {
	mu        sync.Mutex
	log       []Message
	pos       int
	committed []int64
	rewinds   int
	closed    bool
	idle      func(committed int)
}

func newFakeSource(n int) *fakeSource {
	s := &fakeSource{}
	for i := 0; i < n; i++ {
		s.log = append(s.log, Message{Topic: "order-processing", Offset: int64(i)})
	}
	return s
}

func (s *fakeSource) Poll(ctx context.Context, timeout time.Duration) (*Message, error) {
	s.mu.Lock()
	if s.pos < len(s.log) {
		msg := s.log[s.pos]
		s.pos++
		s.mu.Unlock()
		return &msg, nil
	}
	committed := len(s.committed)
	s.mu.Unlock()

	if s.idle != nil {
		s.idle(committed)
	}
	return nil, nil
}

func (s *fakeSource) Commit(ctx context.Context, batch []Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = append(s.committed, batch[len(batch)-1].Offset)
	return nil
}

func (s *fakeSource) Rewind(batch []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rewinds++
	s.pos = int(batch[0].Offset)
}

func (s *fakeSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

type recordingHandler struct {
	mu      sync.Mutex
	batches [][]int64
	fail    func(call int, msg Message) error
}

func (h *recordingHandler) HandleBatch(ctx context.Context, batch []Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	call := len(h.batches)
	var offsets []int64
	for _, msg := range batch {
		offsets = append(offsets, msg.Offset)
	}
	h.batches = append(h.batches, offsets)

	for _, msg := range batch {
		if h.fail != nil {
			if err := h.fail(call, msg); err != nil {
				return err
			}
		}
	}
	return nil
}

func runUntil(t *testing.T, consumer *BatchConsumer, source *fakeSource, commits int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	source.idle = func(committed int) {
		if committed >= commits {
			cancel()
		}
	}

	done := make(chan struct{})
	go func() {
		consumer.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(6 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestBatchConsumer_CommitsLastOffsetPerBatch(t *testing.T) {
	source := newFakeSource(5)
	handler := &recordingHandler{}
	consumer := NewBatchConsumer(source, handler, 2, 10*time.Millisecond)

	runUntil(t, consumer, source, 3)

	assert.Equal(t, [][]int64{{0, 1}, {2, 3}, {4}}, handler.batches)
	assert.Equal(t, []int64{1, 3, 4}, source.committed)
	assert.True(t, source.closed)
}

func TestBatchConsumer_FailedBatchIsRedelivered(t *testing.T) {
	source := newFakeSource(3)
	handler := &recordingHandler{
		fail: func(call int, msg Message) error {
			if call == 0 && msg.Offset == 1 {
				return errors.New("transient failure")
			}
			return nil
		},
	}
	consumer := NewBatchConsumer(source, handler, 10, 10*time.Millisecond)

	runUntil(t, consumer, source, 1)

	require.GreaterOrEqual(t, len(handler.batches), 2)
	assert.Equal(t, []int64{0, 1, 2}, handler.batches[0])
	assert.Equal(t, []int64{0, 1, 2}, handler.batches[1], "whole batch comes back")
	assert.Equal(t, 1, source.rewinds)
	assert.Equal(t, []int64{2}, source.committed, "only the successful attempt commits")
}

func TestBatchConsumer_StopsOnCancel(t *testing.T) {
	source := newFakeSource(0)
	consumer := NewBatchConsumer(source, &recordingHandler{}, 0, 0)
	assert.Equal(t, DefaultBatchSize, consumer.batchSize)
	assert.Equal(t, DefaultPollInterval, consumer.pollInterval)

	runUntil(t, consumer, source, 0)

	assert.True(t, source.closed)
	assert.Empty(t, source.committed)
}

func TestBatchConsumer_FailingBatchRetriesOncePerPollInterval(t *testing.T) {
	source := newFakeSource(1)
	handler := &recordingHandler{
		fail: func(call int, msg Message) error {
			return errors.New("order not in processing")
		},
	}
	consumer := NewBatchConsumer(source, handler, 10, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	consumer.Run(ctx)

	source.mu.Lock()
	rewinds := source.rewinds
	source.mu.Unlock()
	assert.GreaterOrEqual(t, rewinds, 2)
	assert.LessOrEqual(t, rewinds, 8, "retries are paced by the poll interval")
	assert.Empty(t, source.committed)
	assert.True(t, source.closed)
}
