// Package supervisor implements the Consumer Supervisor (§4.E): the
// process-wide registry mapping consumer id to running Extractor,
// serializing mutating operations with a per-id lock, and enforcing
// the status/registry invariant from §3. It owns its Extractors the
// way a container owns the services it manages — an explicit instance
// injected into the HTTP layer at startup rather than a package-level
// singleton.
package supervisor

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/madcok-co/consumerd/internal/extractor"
	"github.com/madcok-co/consumerd/internal/logging"
	"github.com/madcok-co/consumerd/internal/processor"
	"github.com/madcok-co/consumerd/internal/spec"
)

// Config carries the process-wide timing knobs from §6.
type Config struct {
	PollTimeout time.Duration
	StopTimeout time.Duration
}

// Supervisor owns the Extractor registry and exclusively mediates
// Store mutations, per §3's ownership rule.
type Supervisor struct {
	store   spec.Store
	factory *processor.Factory
	logger  logging.Logger
	cfg     Config
	dial    extractor.Dialer

	registryMu sync.RWMutex
	registry   map[string]*extractor.Extractor

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New builds a Supervisor around an existing Store and Factory. dial
// may be nil to use the real sarama-backed dialer; tests substitute a
// fake to avoid a live broker.
func New(store spec.Store, factory *processor.Factory, logger logging.Logger, cfg Config, dial extractor.Dialer) *Supervisor {
	return &Supervisor{
		store:    store,
		factory:  factory,
		logger:   logger.Named("supervisor"),
		cfg:      cfg,
		dial:     dial,
		registry: make(map[string]*extractor.Extractor),
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockFor returns the per-id mutex, creating it on first use. Distinct
// ids never block each other (§4.E's serialization rule).
func (s *Supervisor) lockFor(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Create assigns an id, validates the processor types atomically,
// persists via the Store, and — if auto_start — builds and starts an
// Extractor. Unknown processor types are rejected before anything is
// persisted (scenario 3 in §8); if auto_start fails, the persisted spec
// is deleted again.
func (s *Supervisor) Create(ctx context.Context, draft *spec.ConsumerSpec) (*spec.ConsumerSpec, error) {
	draft.ID = spec.NewID()
	lock := s.lockFor(draft.ID)
	lock.Lock()
	defer lock.Unlock()

	draft.Status = spec.StatusInactive
	validated, err := s.factory.BuildAll(draft.Processors)
	if err != nil {
		return nil, err
	}
	for _, p := range validated {
		_ = p.Close()
	}

	if err := s.store.Create(ctx, draft); err != nil {
		return nil, err
	}

	if !draft.AutoStart {
		return s.store.Get(ctx, draft.ID)
	}

	current, err := s.store.Get(ctx, draft.ID)
	if err != nil {
		return nil, err
	}
	if err := s.startLocked(ctx, current); err != nil {
		_ = s.store.Delete(ctx, draft.ID)
		return nil, err
	}
	return s.store.Get(ctx, draft.ID)
}

// Get returns the current spec, including live status.
func (s *Supervisor) Get(ctx context.Context, id string) (*spec.ConsumerSpec, error) {
	return s.store.Get(ctx, id)
}

// List returns every known spec.
func (s *Supervisor) List(ctx context.Context) ([]*spec.ConsumerSpec, error) {
	return s.store.List(ctx)
}

// Start starts an INACTIVE consumer. It is a no-op returning the
// current spec if already ACTIVE (scenario from §8 invariant 2). If
// the existing Extractor is FAILED, it is discarded and rebuilt fresh
// (§4.E's recovery path).
func (s *Supervisor) Start(ctx context.Context, id string) (*spec.ConsumerSpec, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if current.Status == spec.StatusActive {
		if !s.isFailedLocked(id) {
			return current, nil
		}
		s.discardLocked(id)
	}

	if err := s.startLocked(ctx, current); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, id)
}

// startLocked builds Processors and an Extractor for spec s, starts
// it, registers it, and sets the spec ACTIVE. Caller must hold the
// per-id lock.
func (s *Supervisor) startLocked(ctx context.Context, cs *spec.ConsumerSpec) error {
	procs, err := s.factory.BuildAll(cs.Processors)
	if err != nil {
		return err
	}

	cfg := extractor.Config{
		Brokers:     []string{cs.BrokerHost + ":" + strconv.Itoa(cs.BrokerPort)},
		Topic:       cs.Topic,
		GroupID:     cs.GroupID,
		ClientID:    cs.ClientID,
		PollTimeout: s.cfg.PollTimeout,
		StopTimeout: s.cfg.StopTimeout,
	}

	ex := extractor.New(cs.ID, cfg, s.dial, s.logger, procs)
	if err := ex.Start(ctx); err != nil {
		for _, p := range procs {
			_ = p.Close()
		}
		_ = s.store.SetStatus(ctx, cs.ID, spec.StatusError, err.Error())
		return err
	}

	s.registryMu.Lock()
	s.registry[cs.ID] = ex
	s.registryMu.Unlock()

	return s.store.SetStatus(ctx, cs.ID, spec.StatusActive, "")
}

// Stop stops an ACTIVE consumer. It is a no-op returning the current
// spec if already INACTIVE.
func (s *Supervisor) Stop(ctx context.Context, id string) (*spec.ConsumerSpec, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != spec.StatusActive {
		return current, nil
	}

	if err := s.stopLocked(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, id)
}

// stopLocked stops and deregisters the Extractor for id, if any.
// Caller must hold the per-id lock.
func (s *Supervisor) stopLocked(ctx context.Context, id string) error {
	s.registryMu.RLock()
	ex, ok := s.registry[id]
	s.registryMu.RUnlock()
	if !ok {
		return s.store.SetStatus(ctx, id, spec.StatusInactive, "")
	}

	err := ex.Stop(ctx)

	s.registryMu.Lock()
	delete(s.registry, id)
	s.registryMu.Unlock()

	if err != nil {
		_ = s.store.SetStatus(ctx, id, spec.StatusError, err.Error())
		return err
	}
	return s.store.SetStatus(ctx, id, spec.StatusInactive, "")
}

// Update applies patch to the spec. If the processor list changed
// while ACTIVE, it calls replace_processors; if broker/topic/group
// changed while ACTIVE, it stops then starts (§4.E).
func (s *Supervisor) Update(ctx context.Context, id string, patch spec.Patch) (*spec.ConsumerSpec, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	preview := current.Clone()
	patch.Apply(preview)

	// Validate a changed processor list atomically up front, same as
	// Create. The built set is either reused below for
	// ReplaceProcessors or closed here if it turns out unneeded, so it
	// is never leaked.
	var previewProcs []processor.Processor
	if patch.Processors != nil {
		var err error
		previewProcs, err = s.factory.BuildAll(preview.Processors)
		if err != nil {
			return nil, err
		}
	}
	closePreview := func() {
		for _, p := range previewProcs {
			_ = p.Close()
		}
	}

	wasActive := current.Status == spec.StatusActive
	needsRestart := wasActive && patch.BrokerOrTopicOrGroupChanged(current)
	needsReplace := wasActive && !needsRestart && patch.Processors != nil

	updated, err := s.store.Update(ctx, id, patch)
	if err != nil {
		closePreview()
		return nil, err
	}

	switch {
	case needsRestart:
		closePreview()
		if err := s.stopLocked(ctx, id); err != nil {
			return nil, err
		}
		if err := s.startLocked(ctx, updated); err != nil {
			return nil, err
		}
	case needsReplace:
		s.registryMu.RLock()
		ex, ok := s.registry[id]
		s.registryMu.RUnlock()
		if !ok {
			closePreview()
			break
		}
		if err := ex.ReplaceProcessors(ctx, previewProcs); err != nil {
			_ = s.store.SetStatus(ctx, id, spec.StatusError, err.Error())
			return nil, err
		}
	default:
		closePreview()
	}

	return s.store.Get(ctx, id)
}

// Delete stops the consumer if ACTIVE, then removes it from the Store
// and registry. Always succeeds if the spec exists, regardless of
// status (§7).
func (s *Supervisor) Delete(ctx context.Context, id string) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if current.Status == spec.StatusActive {
		_ = s.stopLocked(ctx, id)
	}

	s.registryMu.Lock()
	delete(s.registry, id)
	s.registryMu.Unlock()

	return s.store.Delete(ctx, id)
}

// Shutdown stops every registered Extractor concurrently, each
// bounded by the process's stop timeout, then closes the Store (§9).
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.registryMu.Lock()
	ids := make([]string, 0, len(s.registry))
	for id := range s.registry {
		ids = append(ids, id)
	}
	s.registryMu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			lock := s.lockFor(id)
			lock.Lock()
			defer lock.Unlock()
			_ = s.stopLocked(ctx, id)
		}(id)
	}
	wg.Wait()

	return s.store.Close()
}

// isFailedLocked reports whether the registered Extractor for id has
// reached the FAILED state. An id with no registered Extractor counts
// as failed.
func (s *Supervisor) isFailedLocked(id string) bool {
	s.registryMu.RLock()
	ex, ok := s.registry[id]
	s.registryMu.RUnlock()
	if !ok {
		return true
	}
	return ex.Status().State == extractor.StateFailed
}

// discardLocked removes a FAILED Extractor from the registry without
// attempting a graceful stop (it is already dead).
func (s *Supervisor) discardLocked(id string) {
	s.registryMu.Lock()
	delete(s.registry, id)
	s.registryMu.Unlock()
}

