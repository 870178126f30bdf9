package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/madcok-co/consumerd/internal/extractor"
	"github.com/madcok-co/consumerd/internal/kafka"
	"github.com/madcok-co/consumerd/internal/logging"
	"github.com/madcok-co/consumerd/internal/processor"
	"github.com/madcok-co/consumerd/internal/spec"
)

type fakeCG struct {
	mu     sync.Mutex
	closed bool
}

func (f *fakeCG) Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error {
	<-ctx.Done()
	return nil
}
func (f *fakeCG) Errors() <-chan error { return make(chan error) }
func (f *fakeCG) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func okDial(kafka.Config) (kafka.ConsumerGroup, error) { return &fakeCG{}, nil }
func failDial(kafka.Config) (kafka.ConsumerGroup, error) {
	return nil, errors.New("dial failed")
}

func newTestSupervisor(dial extractor.Dialer) *Supervisor {
	store := spec.NewMemoryStore()
	factory := processor.NewFactory()
	cfg := Config{PollTimeout: 10 * time.Millisecond, StopTimeout: time.Second}
	return New(store, factory, logging.Noop(), cfg, dial)
}

func draftSpec() *spec.ConsumerSpec {
	return &spec.ConsumerSpec{
		BrokerHost: "localhost",
		BrokerPort: 9092,
		Topic:      "t",
		GroupID:    "g",
		Processors: nil,
	}
}

func TestSupervisor_CreateWithoutAutoStartIsInactive(t *testing.T) {
	s := newTestSupervisor(okDial)
	draft := draftSpec()
	draft.AutoStart = false

	created, err := s.Create(context.Background(), draft)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != spec.StatusInactive {
		t.Fatalf("expected INACTIVE, got %s", created.Status)
	}
}

func TestSupervisor_CreateWithAutoStartIsActive(t *testing.T) {
	s := newTestSupervisor(okDial)
	draft := draftSpec()
	draft.AutoStart = true

	created, err := s.Create(context.Background(), draft)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != spec.StatusActive {
		t.Fatalf("expected ACTIVE, got %s", created.Status)
	}
}

func TestSupervisor_CreateUnknownProcessorTypeIsAtomic(t *testing.T) {
	s := newTestSupervisor(okDial)
	draft := draftSpec()
	draft.Processors = []spec.ProcessorConfig{{ID: "p1", Type: "nonexistent"}}

	_, err := s.Create(context.Background(), draft)
	if err == nil {
		t.Fatal("expected error for unknown processor type")
	}

	list, _ := s.List(context.Background())
	if len(list) != 0 {
		t.Fatalf("expected no partial spec persisted, got %d", len(list))
	}
}

func TestSupervisor_StartStopRoundtrip(t *testing.T) {
	s := newTestSupervisor(okDial)
	draft := draftSpec()
	created, err := s.Create(context.Background(), draft)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	started, err := s.Start(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != spec.StatusActive {
		t.Fatalf("expected ACTIVE, got %s", started.Status)
	}

	stopped, err := s.Stop(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stopped.Status != spec.StatusInactive {
		t.Fatalf("expected INACTIVE, got %s", stopped.Status)
	}
}

func TestSupervisor_StartTwiceIsNoop(t *testing.T) {
	s := newTestSupervisor(okDial)
	created, _ := s.Create(context.Background(), draftSpec())

	if _, err := s.Start(context.Background(), created.ID); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := s.Start(context.Background(), created.ID); err != nil {
		t.Fatalf("second start: %v", err)
	}

	list, _ := s.List(context.Background())
	activeCount := 0
	for _, cs := range list {
		if cs.Status == spec.StatusActive {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Fatalf("expected exactly one active spec, got %d", activeCount)
	}
}

func TestSupervisor_StopTwiceIsNoop(t *testing.T) {
	s := newTestSupervisor(okDial)
	created, _ := s.Create(context.Background(), draftSpec())
	s.Start(context.Background(), created.ID)

	if _, err := s.Stop(context.Background(), created.ID); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if _, err := s.Stop(context.Background(), created.ID); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestSupervisor_StartWithClientInitFailureSetsError(t *testing.T) {
	s := newTestSupervisor(failDial)
	created, _ := s.Create(context.Background(), draftSpec())

	_, err := s.Start(context.Background(), created.ID)
	if err == nil {
		t.Fatal("expected ClientInit error")
	}

	got, _ := s.Get(context.Background(), created.ID)
	if got.Status != spec.StatusError {
		t.Fatalf("expected ERROR, got %s", got.Status)
	}
}

func TestSupervisor_GetMissingIsNotFound(t *testing.T) {
	s := newTestSupervisor(okDial)
	_, err := s.Get(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected NotFound")
	}
}

func TestSupervisor_DeleteActiveStopsFirst(t *testing.T) {
	s := newTestSupervisor(okDial)
	created, _ := s.Create(context.Background(), draftSpec())
	s.Start(context.Background(), created.ID)

	if err := s.Delete(context.Background(), created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := s.Get(context.Background(), created.ID); err == nil {
		t.Fatal("expected NotFound after delete")
	}
}

func TestSupervisor_UpdateNoopPreservesActive(t *testing.T) {
	s := newTestSupervisor(okDial)
	created, _ := s.Create(context.Background(), draftSpec())
	s.Start(context.Background(), created.ID)

	updated, err := s.Update(context.Background(), created.ID, spec.Patch{})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != spec.StatusActive {
		t.Fatalf("expected still ACTIVE, got %s", updated.Status)
	}
}

func TestSupervisor_UpdateBrokerChangeRestartsExtractor(t *testing.T) {
	s := newTestSupervisor(okDial)
	created, _ := s.Create(context.Background(), draftSpec())
	s.Start(context.Background(), created.ID)

	newHost := "otherhost"
	updated, err := s.Update(context.Background(), created.ID, spec.Patch{BrokerHost: &newHost})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.BrokerHost != "otherhost" {
		t.Fatalf("expected broker host updated, got %s", updated.BrokerHost)
	}
	if updated.Status != spec.StatusActive {
		t.Fatalf("expected still ACTIVE after restart, got %s", updated.Status)
	}
}

func TestSupervisor_ConcurrentStartsOnDistinctIdsProceedInParallel(t *testing.T) {
	s := newTestSupervisor(okDial)
	a, _ := s.Create(context.Background(), draftSpec())
	b, _ := s.Create(context.Background(), draftSpec())

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := s.Start(context.Background(), a.ID)
		errs <- err
	}()
	go func() {
		defer wg.Done()
		_, err := s.Start(context.Background(), b.ID)
		errs <- err
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent start failed: %v", err)
		}
	}
}

type countingProcessor struct {
	id      string
	onClose func()
}

func (p *countingProcessor) ID() string { return p.id }
func (p *countingProcessor) Process(ctx context.Context, rec processor.Record) error {
	return nil
}
func (p *countingProcessor) Close() error {
	p.onClose()
	return nil
}

// TestSupervisor_UpdateProcessorListClosesValidationBuiltSet guards
// against a leaked validation-only processor set on a processor-list
// PUT: the set BuildAll constructs to validate the patch must either
// be handed to ReplaceProcessors or closed, never both built and
// silently dropped.
func TestSupervisor_UpdateProcessorListClosesValidationBuiltSet(t *testing.T) {
	store := spec.NewMemoryStore()
	factory := processor.NewFactory()

	var mu sync.Mutex
	closedIDs := make(map[string]int)
	factory.Register("counting", func(id string, config map[string]any) (processor.Processor, error) {
		return &countingProcessor{id: id, onClose: func() {
			mu.Lock()
			closedIDs[id]++
			mu.Unlock()
		}}, nil
	})

	cfg := Config{PollTimeout: 10 * time.Millisecond, StopTimeout: time.Second}
	s := New(store, factory, logging.Noop(), cfg, okDial)

	draft := draftSpec()
	draft.Processors = []spec.ProcessorConfig{{ID: "p1", Type: "counting"}}
	draft.AutoStart = true
	created, err := s.Create(context.Background(), draft)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := s.Update(context.Background(), created.ID, spec.Patch{
		Processors: []spec.ProcessorConfig{{ID: "p2", Type: "counting"}},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != spec.StatusActive {
		t.Fatalf("expected still ACTIVE after processor replace, got %s", updated.Status)
	}

	// p2 is now the live processor swapped in by ReplaceProcessors: if
	// Update had leaked the validation-built set by rebuilding a second
	// copy instead of reusing it, or closed the live copy immediately,
	// this would already be nonzero.
	mu.Lock()
	p2ClosedAfterUpdate := closedIDs["p2"]
	mu.Unlock()
	if p2ClosedAfterUpdate != 0 {
		t.Fatalf("expected replacement processor p2 still open after update, got %d closes", p2ClosedAfterUpdate)
	}

	if _, err := s.Stop(context.Background(), created.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	// p1's validation-only build (from Create) and its real running
	// instance (closed when ReplaceProcessors swaps it out) account for
	// two closes; neither should be skipped nor double-counted.
	if closedIDs["p1"] != 2 {
		t.Fatalf("expected original processor p1 closed exactly twice (validation + replace), got %d", closedIDs["p1"])
	}
	if closedIDs["p2"] != 1 {
		t.Fatalf("expected replacement processor p2 closed exactly once on stop, got %d", closedIDs["p2"])
	}
}

func TestSupervisor_Shutdown(t *testing.T) {
	s := newTestSupervisor(okDial)
	created, _ := s.Create(context.Background(), draftSpec())
	s.Start(context.Background(), created.ID)

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
