// Package extractor implements the Message Extractor (§4.D): one
// running consumer, owning a Kafka client, a poll task, and an ordered
// Processor list — a goroutine wrapping sarama's consumer-group API,
// narrowed to a single topic/group per Extractor instance and fronted
// by an explicit state machine instead of a bare connected bool.
package extractor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/madcok-co/consumerd/internal/apierr"
	"github.com/madcok-co/consumerd/internal/kafka"
	"github.com/madcok-co/consumerd/internal/logging"
	"github.com/madcok-co/consumerd/internal/processor"
)

// State is the Extractor-internal state machine from §4.D.
type State string

const (
	StateCreated State = "CREATED"
	StateRunning State = "RUNNING"
	StateStopped State = "STOPPED"
	StateFailed  State = "FAILED"
)

// Status is the snapshot returned by Extractor.Status().
type Status struct {
	State  State
	Reason string
}

// Dialer abstracts kafka.NewConsumerGroup so tests can substitute a
// fake ConsumerGroup without a live broker.
type Dialer func(cfg kafka.Config) (kafka.ConsumerGroup, error)

// Config is the per-Extractor Kafka configuration, derived from a
// ConsumerSpec by the Supervisor.
type Config struct {
	Brokers  []string
	Topic    string
	GroupID  string
	ClientID string

	PollTimeout time.Duration
	StopTimeout time.Duration
}

// Extractor owns one Kafka client, one poll task, and the Processor
// list it was built with. Not safe for concurrent Start/Stop/Replace
// calls from multiple goroutines — the Supervisor's per-id lock is
// what makes that safe in practice (§4.E).
type Extractor struct {
	id     string
	cfg    Config
	dial   Dialer
	logger logging.Logger

	mu         sync.Mutex
	state      State
	reason     string
	processors []processor.Processor
	cg         kafka.ConsumerGroup
	cancel     context.CancelFunc
	done       chan struct{}
}

// New builds a CREATED Extractor around procs, which it takes
// ownership of: Stop and ReplaceProcessors will close them.
func New(id string, cfg Config, dial Dialer, logger logging.Logger, procs []processor.Processor) *Extractor {
	if dial == nil {
		dial = func(c kafka.Config) (kafka.ConsumerGroup, error) { return kafka.NewConsumerGroup(c) }
	}
	return &Extractor{
		id:         id,
		cfg:        cfg,
		dial:       dial,
		logger:     logger.Named("extractor").With("consumer_id", id),
		state:      StateCreated,
		processors: procs,
	}
}

// Status returns the current state and, if FAILED, the reason.
func (e *Extractor) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{State: e.state, Reason: e.reason}
}

// Start is idempotent: calling it while already RUNNING is a no-op.
// It fails with ClientInit if the Kafka consumer group cannot be
// opened.
func (e *Extractor) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateRunning {
		return nil
	}

	cg, err := e.dial(e.kafkaConfig())
	if err != nil {
		e.state = StateFailed
		e.reason = err.Error()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.cg = cg
	e.cancel = cancel
	e.done = make(chan struct{})

	errc := kafka.Run(runCtx, cg, []string{e.cfg.Topic}, e.dispatch)
	go e.watch(errc)

	e.state = StateRunning
	e.reason = ""
	e.logger.Info("extractor started", "topic", e.cfg.Topic, "group_id", e.cfg.GroupID)
	return nil
}

// watch waits for the consumer loop to report a fatal error (or a
// clean close) and updates state accordingly. It runs for the
// lifetime of one Start() call.
func (e *Extractor) watch(errc <-chan error) {
	err, ok := <-errc
	e.mu.Lock()
	defer e.mu.Unlock()
	defer close(e.done)

	if e.state != StateRunning {
		// Stop() already transitioned us away; nothing to do.
		return
	}
	if ok && err != nil {
		e.state = StateFailed
		e.reason = err.Error()
		e.logger.Error("extractor failed", "error", err)
		e.closeClientLocked()
		e.closeProcessorsLocked()
	}
}

// dispatch fans a record out to every Processor in declared order,
// isolating each Processor's failure per §4.A: a failing Processor is
// logged with {consumer_id, processor_id, offset} and never blocks its
// peers or the loop.
func (e *Extractor) dispatch(ctx context.Context, rec kafka.Record) error {
	e.mu.Lock()
	procs := e.processors
	e.mu.Unlock()

	for _, p := range procs {
		pctx := processor.WithConsumerID(ctx, e.id)
		pctx = processor.WithProcessorID(pctx, p.ID())
		prec := processor.Record{
			Topic:     rec.Topic,
			Partition: rec.Partition,
			Offset:    rec.Offset,
			Key:       rec.Key,
			Value:     rec.Value,
			Timestamp: rec.Timestamp,
		}
		if err := p.Process(pctx, prec); err != nil {
			e.logger.Warn("processor failed",
				"consumer_id", processor.ConsumerIDFromContext(pctx),
				"processor_id", processor.ProcessorIDFromContext(pctx),
				"offset", rec.Offset,
				"error", err)
		}
	}
	return nil
}

// Stop is idempotent: calling it while STOPPED or CREATED is a no-op.
// It cancels the poll loop and waits up to cfg.StopTimeout for it to
// drain, close the Kafka client, and close every Processor. Exceeding
// the bound leaves the Extractor FAILED with reason "stop_timed_out".
func (e *Extractor) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return nil
	}
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()

	cancel()

	timeout := e.cfg.StopTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	select {
	case <-done:
		e.mu.Lock()
		e.closeClientLocked()
		e.closeProcessorsLocked()
		e.state = StateStopped
		e.reason = ""
		e.mu.Unlock()
		e.logger.Info("extractor stopped")
		return nil
	case <-time.After(timeout):
		e.mu.Lock()
		e.state = StateFailed
		e.reason = "stop_timed_out"
		e.mu.Unlock()
		e.logger.Error("extractor stop timed out", "timeout", timeout)
		return apierr.New(apierr.TimedOut, "extractor stop_timed_out")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReplaceProcessors stops the loop, closes the old Processors,
// installs newProcs, and restarts — atomic from the caller's
// perspective (§4.D).
func (e *Extractor) ReplaceProcessors(ctx context.Context, newProcs []processor.Processor) error {
	e.mu.Lock()
	wasRunning := e.state == StateRunning
	e.mu.Unlock()

	if wasRunning {
		if err := e.Stop(ctx); err != nil {
			return err
		}
	}

	e.mu.Lock()
	e.closeProcessorsLocked()
	e.processors = newProcs
	e.mu.Unlock()

	if wasRunning {
		return e.Start(ctx)
	}
	return nil
}

func (e *Extractor) closeClientLocked() {
	if e.cg != nil {
		_ = e.cg.Close()
		e.cg = nil
	}
}

func (e *Extractor) closeProcessorsLocked() {
	for _, p := range e.processors {
		if err := p.Close(); err != nil {
			e.logger.Warn("processor close failed", "error", err)
		}
	}
	e.processors = nil
}

func (e *Extractor) kafkaConfig() kafka.Config {
	return kafka.Config{
		Brokers:     e.cfg.Brokers,
		GroupID:     e.cfg.GroupID,
		ClientID:    e.cfg.ClientID,
		PollTimeout: e.cfg.PollTimeout,
		AutoCommit:  true,
	}
}

func (e *Extractor) String() string {
	return fmt.Sprintf("extractor{id=%s, state=%s}", e.id, e.Status().State)
}
