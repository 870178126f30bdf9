package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

// Record is sarama's claim message flattened to the fields the
// Message Extractor's dispatch loop needs, decoupling
// internal/extractor from the sarama wire types directly.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Handler is invoked once per record, in partition order, by
// ConsumeClaim below. ConsumeClaim ignores a returned error and keeps
// consuming — the Extractor handles processor failures itself per
// §4.A's processor-failure-isolation rule.
type Handler func(ctx context.Context, rec Record) error

// ConsumerGroup is the narrow slice of sarama.ConsumerGroup the
// Extractor's poll loop depends on, so tests can supply a fake.
type ConsumerGroup interface {
	Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error
	Errors() <-chan error
	Close() error
}

// groupHandler adapts a Handler into sarama.ConsumerGroupHandler.
// MarkMessage is called only after the handler returns, regardless of
// its error — offsets advance whether a record's processors succeeded
// or failed, matching §4.A (processor failure isolation never blocks
// the partition).
type groupHandler struct {
	onRecord Handler
	ready    chan struct{}
	readyOne sync.Once
}

func newGroupHandler(onRecord Handler) *groupHandler {
	return &groupHandler{onRecord: onRecord, ready: make(chan struct{})}
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.readyOne.Do(func() { close(h.ready) })
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			rec := Record{
				Topic:     msg.Topic,
				Partition: msg.Partition,
				Offset:    msg.Offset,
				Key:       msg.Key,
				Value:     msg.Value,
				Timestamp: msg.Timestamp,
			}
			_ = h.onRecord(session.Context(), rec)
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// Run drives cg.Consume in a loop: Consume returns whenever the group
// rebalances, so it must be called again until ctx is cancelled. A
// non-nil Consume error while ctx is still live is sent on the returned
// channel before it closes; on cancellation the channel closes without
// a value, so the Extractor can tell a clean stop from a fatal broker
// error.
func Run(ctx context.Context, cg ConsumerGroup, topics []string, onRecord Handler) <-chan error {
	errc := make(chan error, 1)
	handler := newGroupHandler(onRecord)

	go func() {
		defer close(errc)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if err := cg.Consume(ctx, topics, handler); err != nil {
				if ctx.Err() != nil {
					return
				}
				select {
				case errc <- err:
				default:
				}
				return
			}
		}
	}()

	return errc
}
