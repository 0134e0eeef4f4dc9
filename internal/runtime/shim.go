// Package runtime defines the contract between the reconciliation
// controller and the container runtime. The controller issues lifecycle
// intents through the Shim and never assumes success without an explicit
// confirmation; failures are surfaced verbatim on the instance record.
package runtime

import (
	"context"

	"github.com/ozwald-dev/ozwald/models"
)

// Handle is the opaque runtime identifier for a started instance.
type Handle string

// Shim starts and stops service instances. Implementations may be slow
// and may be flaky; every call is bounded by the caller's context.
type Shim interface {
	// Start launches a container for the spec. secretsFile, when
	// non-empty, is an env-format artifact whose variables are injected
	// into the container and destroyed by the caller after handoff.
	Start(ctx context.Context, name string, spec models.LaunchSpec, secretsFile string) (Handle, error)

	// Stop terminates the instance and removes its container. Stop is
	// idempotent: stopping an already-gone handle is not an error.
	Stop(ctx context.Context, handle Handle) error

	// Logs returns the output lines the instance has produced so far.
	// Must be called before Stop removes the container.
	Logs(ctx context.Context, handle Handle) ([]string, error)
}
