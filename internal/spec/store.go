package spec

import "context"

// Store is the Specification Store contract (§4.C). Every operation is
// synchronous and individually atomic; the Store carries no knowledge
// of runtime status beyond the Status field it persists.
type Store interface {
	Create(ctx context.Context, s *ConsumerSpec) error
	Get(ctx context.Context, id string) (*ConsumerSpec, error)
	List(ctx context.Context) ([]*ConsumerSpec, error)
	Update(ctx context.Context, id string, patch Patch) (*ConsumerSpec, error)
	Delete(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id string, status Status, lastError string) error
	Close() error
}
