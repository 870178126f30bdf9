// Package processor implements the Processor Pipeline contract (§4.A)
// and the Processor Factory (§4.B): one sink strategy per Processor,
// a registration table mapping type tags to constructors.
package processor

import (
	"context"
	"time"
)

// Record is the unit of work handed to a Processor (§4.A). It never
// carries a reference back to the owning consumer beyond what the
// Extractor injects via context.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Processor is a single sink strategy. Implementations MUST be safe to
// Close after any Process call, and MUST NOT reach back into the
// Extractor or peer Processors.
type Processor interface {
	// ID returns the processor's id from its ProcessorConfig, so the
	// Extractor can name it in the {consumer_id, processor_id, offset}
	// failure log (§4.A, §7) without holding a side table.
	ID() string
	// Process consumes one record. A returned error is logged by the
	// Extractor with {consumer_id, processor_id, offset} and never
	// propagated to peer processors for the same record (§4.A).
	Process(ctx context.Context, rec Record) error
	Close() error
}

// contextKey avoids collisions with other packages' context values.
type contextKey string

const (
	consumerIDKey  contextKey = "consumer_id"
	processorIDKey contextKey = "processor_id"
)

// WithConsumerID attaches the owning consumer's id to ctx, the only
// thing the Extractor injects about itself (§4.A).
func WithConsumerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, consumerIDKey, id)
}

// ConsumerIDFromContext reads back the id set by WithConsumerID.
func ConsumerIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(consumerIDKey).(string)
	return id
}

// WithProcessorID attaches the current processor's id to ctx, used for
// the {consumer_id, processor_id, offset} log line on failure.
func WithProcessorID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, processorIDKey, id)
}

// ProcessorIDFromContext reads back the id set by WithProcessorID.
func ProcessorIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(processorIDKey).(string)
	return id
}
