// Package statestore provides the shared active-state record: one entry
// per service instance identity, readable by any caller and mutated only
// through compare-and-swap transitions driven by the reconciliation
// controller.
//
// The store is the crash-recovery point. It outlives the API process,
// and on restart the controller re-derives instance ownership by reading
// it rather than assuming a clean slate.
package statestore

import (
	"context"
	"errors"
	"time"

	"github.com/ozwald-dev/ozwald/models"
)

var (
	// ErrNotFound is returned when no record exists for an identity.
	ErrNotFound = errors.New("instance not found")

	// ErrConflict means another actor already moved the instance to a
	// different state. The caller must re-read and re-diff, never
	// blindly overwrite.
	ErrConflict = errors.New("state transition conflict")
)

// Store is the active-state record contract. All implementations must
// provide per-identity sequential transitions via the expected-state
// precondition; transitions across identities carry no ordering
// guarantee.
type Store interface {
	// List returns every instance record in the realm.
	List(ctx context.Context, realm string) ([]models.Instance, error)

	// Get returns the record for an identity, or ErrNotFound.
	Get(ctx context.Context, id models.Identity) (models.Instance, error)

	// Create inserts a new record, failing with ErrConflict if one
	// already exists for the identity.
	Create(ctx context.Context, inst models.Instance) error

	// Transition applies a compare-and-swap update: if the stored state
	// equals expected, apply mutates the record (including its state)
	// and the result is persisted with a fresh transition timestamp.
	// Returns ErrConflict if the stored state differs, ErrNotFound if
	// no record exists.
	Transition(ctx context.Context, id models.Identity, expected models.InstanceState, apply func(*models.Instance)) error

	// Delete removes the record if it is still in the expected state,
	// ErrConflict otherwise.
	Delete(ctx context.Context, id models.Identity, expected models.InstanceState) error

	// PruneTerminal deletes terminal records whose last transition is
	// older than the retention period, returning how many went away.
	PruneTerminal(ctx context.Context, retain time.Duration) (int, error)
}
