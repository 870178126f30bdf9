package extractor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/madcok-co/consumerd/internal/kafka"
	"github.com/madcok-co/consumerd/internal/logging"
	"github.com/madcok-co/consumerd/internal/processor"
)

// fakeCG blocks Consume until ctx is cancelled and then returns
// fatalErr. It never delivers a record, so these tests cover the
// start/stop/replace lifecycle only; record dispatch is not exercised.
type fakeCG struct {
	mu       sync.Mutex
	closed   bool
	fatalErr error
}

func (f *fakeCG) Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error {
	<-ctx.Done()
	return f.fatalErr
}

func (f *fakeCG) Errors() <-chan error { return make(chan error) }

func (f *fakeCG) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeCG) wasClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func testConfig() Config {
	return Config{
		Brokers:     []string{"localhost:9092"},
		Topic:       "t",
		GroupID:     "g",
		PollTimeout: 10 * time.Millisecond,
		StopTimeout: time.Second,
	}
}

func TestExtractor_StartIsIdempotent(t *testing.T) {
	fake := &fakeCG{}
	dial := func(kafka.Config) (kafka.ConsumerGroup, error) { return fake, nil }
	e := New("c1", testConfig(), dial, logging.Noop(), nil)

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if got := e.Status().State; got != StateRunning {
		t.Fatalf("expected RUNNING, got %s", got)
	}
}

func TestExtractor_StartFailureTransitionsToFailed(t *testing.T) {
	dial := func(kafka.Config) (kafka.ConsumerGroup, error) { return nil, errors.New("dial failed") }
	e := New("c1", testConfig(), dial, logging.Noop(), nil)

	if err := e.Start(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if got := e.Status().State; got != StateFailed {
		t.Fatalf("expected FAILED, got %s", got)
	}
}

func TestExtractor_StopIsIdempotent(t *testing.T) {
	e := New("c1", testConfig(), nil, logging.Noop(), nil)
	if err := e.Stop(context.Background()); err != nil {
		t.Fatalf("stop on CREATED should be a no-op: %v", err)
	}
}

func TestExtractor_StopClosesClientAndProcessors(t *testing.T) {
	fake := &fakeCG{}
	dial := func(kafka.Config) (kafka.ConsumerGroup, error) { return fake, nil }
	closed := &closeTrackingProcessor{}
	e := New("c1", testConfig(), dial, logging.Noop(), []processor.Processor{closed})

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := e.Status().State; got != StateStopped {
		t.Fatalf("expected STOPPED, got %s", got)
	}
	if !fake.wasClosed() {
		t.Fatal("expected kafka client to be closed")
	}
	if !closed.closed {
		t.Fatal("expected processor to be closed")
	}
}

func TestExtractor_ReplaceProcessorsSwapsAndRestarts(t *testing.T) {
	fake := &fakeCG{}
	dial := func(kafka.Config) (kafka.ConsumerGroup, error) { return fake, nil }
	oldProc := &closeTrackingProcessor{}
	e := New("c1", testConfig(), dial, logging.Noop(), []processor.Processor{oldProc})

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	newProc := &closeTrackingProcessor{}
	if err := e.ReplaceProcessors(context.Background(), []processor.Processor{newProc}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	if !oldProc.closed {
		t.Fatal("expected old processor to be closed")
	}
	if newProc.closed {
		t.Fatal("new processor should not be closed")
	}
	if got := e.Status().State; got != StateRunning {
		t.Fatalf("expected RUNNING after replace, got %s", got)
	}
}

type closeTrackingProcessor struct {
	closed bool
}

func (p *closeTrackingProcessor) ID() string                                              { return "test-proc" }
func (p *closeTrackingProcessor) Process(ctx context.Context, rec processor.Record) error { return nil }
func (p *closeTrackingProcessor) Close() error                                            { p.closed = true; return nil }
