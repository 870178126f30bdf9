package processor

import (
	"fmt"
	"sync"

	"github.com/madcok-co/consumerd/internal/apierr"
	"github.com/madcok-co/consumerd/internal/spec"
)

// Constructor builds one Processor from its declarative config. It
// returns BadConfig for malformed config, never UnknownType — the
// Factory itself owns the UnknownType decision.
type Constructor func(id string, config map[string]any) (Processor, error)

// Factory is the Processor Factory (§4.B): a registration table keyed
// by type tag, closed to modification once built, open to extension
// only through Register at startup.
type Factory struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewFactory builds a Factory with the built-in sink types registered
// (file_sink, database_sync, streaming_forwarder).
func NewFactory() *Factory {
	f := &Factory{constructors: make(map[string]Constructor)}
	f.Register("file_sink", NewFileSink)
	f.Register("database_sync", NewDatabaseSync)
	f.Register("streaming_forwarder", NewStreamingForwarder)
	return f
}

// Register adds (or replaces) a type→constructor binding. Intended to
// be called at startup before the Factory is handed to the Supervisor;
// callers needing a genuinely immutable factory simply stop calling
// Register after wiring.
func (f *Factory) Register(processorType string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[processorType] = ctor
}

// Build constructs a Processor from a type tag and config, or returns
// UnknownType / BadConfig (§4.B).
func (f *Factory) Build(id, processorType string, config map[string]any) (Processor, error) {
	f.mu.RLock()
	ctor, ok := f.constructors[processorType]
	f.mu.RUnlock()

	if !ok {
		return nil, apierr.New(apierr.UnknownType, fmt.Sprintf("unknown processor type: %q", processorType))
	}

	p, err := ctor(id, config)
	if err != nil {
		if apierr.KindOf(err) == apierr.BadConfig {
			return nil, err
		}
		return nil, apierr.Wrap(apierr.BadConfig, fmt.Sprintf("building processor %q", id), err)
	}
	return p, nil
}

// BuildAll constructs every ProcessorConfig in order, stopping (and
// closing what it already built) at the first error so create/update
// fail atomically (§4.B, scenario 3).
func (f *Factory) BuildAll(configs []spec.ProcessorConfig) ([]Processor, error) {
	built := make([]Processor, 0, len(configs))
	for _, c := range configs {
		p, err := f.Build(c.ID, c.Type, c.Config)
		if err != nil {
			for _, b := range built {
				_ = b.Close()
			}
			return nil, err
		}
		built = append(built, p)
	}
	return built, nil
}
