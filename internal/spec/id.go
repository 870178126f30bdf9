package spec

import (
	"fmt"

	uuid "github.com/hashicorp/go-uuid"
)

// NewID assigns a stable opaque identifier to a new ConsumerSpec or
// ProcessorConfig (§3). hashicorp/go-uuid rides in transitively via the
// Kerberos/SASL dependency chain already; promoting it to a direct
// import avoids adding a second UUID library for the same job.
func NewID() string {
	id, err := uuid.GenerateUUID()
	if err != nil {
		// GenerateUUID only fails if crypto/rand is broken; panicking here
		// surfaces that immediately instead of silently handing out
		// colliding or empty identifiers.
		panic(fmt.Sprintf("spec: failed to generate id: %v", err))
	}
	return id
}
