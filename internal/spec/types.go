// Package spec holds the ConsumerSpec/ProcessorConfig data model
// (spec.md §3) and the Specification Store contract (§4.C).
package spec

import "time"

// Status is the authoritative runtime state of a ConsumerSpec.
type Status string

const (
	StatusInactive Status = "INACTIVE"
	StatusActive   Status = "ACTIVE"
	StatusError    Status = "ERROR"
)

// ProcessorConfig is one sink's declarative parameters (§3).
type ProcessorConfig struct {
	ID     string         `json:"id"`
	Type   string         `json:"type" validate:"required"`
	Config map[string]any `json:"config"`
}

// ConsumerSpec is the persisted configuration of one managed consumer
// (§3). JSON tags match the HTTP surface in §6.
type ConsumerSpec struct {
	ID         string            `json:"id"`
	BrokerHost string            `json:"broker_host" validate:"required"`
	BrokerPort int               `json:"broker_port" validate:"required,gt=0,lte=65535"`
	Topic      string            `json:"topic" validate:"required"`
	GroupID    string            `json:"group_id" validate:"required"`
	ClientID   string            `json:"client_id,omitempty"`
	AutoStart  bool              `json:"auto_start"`
	Processors []ProcessorConfig `json:"processors"`
	Status     Status            `json:"status"`
	LastError  string            `json:"last_error,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Clone returns a deep-enough copy so callers holding a Store-internal
// pointer can't mutate state behind the Supervisor's back.
func (s *ConsumerSpec) Clone() *ConsumerSpec {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Processors = make([]ProcessorConfig, len(s.Processors))
	for i, p := range s.Processors {
		cfgCopy := make(map[string]any, len(p.Config))
		for k, v := range p.Config {
			cfgCopy[k] = v
		}
		clone.Processors[i] = ProcessorConfig{ID: p.ID, Type: p.Type, Config: cfgCopy}
	}
	return &clone
}

// Patch carries the mutable subset of fields an update may change (§4.E).
// A nil pointer field means "leave unchanged"; Processors nil means
// "leave unchanged" too (an explicit empty slice removes all sinks).
type Patch struct {
	BrokerHost *string
	BrokerPort *int
	Topic      *string
	GroupID    *string
	ClientID   *string
	Processors []ProcessorConfig
}

// BrokerOrTopicOrGroupChanged reports whether applying p would change
// any field that forces a stop-then-start per §4.E.
func (p Patch) BrokerOrTopicOrGroupChanged(s *ConsumerSpec) bool {
	if p.BrokerHost != nil && *p.BrokerHost != s.BrokerHost {
		return true
	}
	if p.BrokerPort != nil && *p.BrokerPort != s.BrokerPort {
		return true
	}
	if p.Topic != nil && *p.Topic != s.Topic {
		return true
	}
	if p.GroupID != nil && *p.GroupID != s.GroupID {
		return true
	}
	return false
}

// Apply mutates s in place according to p.
func (p Patch) Apply(s *ConsumerSpec) {
	if p.BrokerHost != nil {
		s.BrokerHost = *p.BrokerHost
	}
	if p.BrokerPort != nil {
		s.BrokerPort = *p.BrokerPort
	}
	if p.Topic != nil {
		s.Topic = *p.Topic
	}
	if p.GroupID != nil {
		s.GroupID = *p.GroupID
	}
	if p.ClientID != nil {
		s.ClientID = *p.ClientID
	}
	if p.Processors != nil {
		s.Processors = p.Processors
	}
}
