package replay

import (
	"context"
	"errors"
	"time"
)

// ErrProofUsed means the proof identifier has already been consumed or is
// claimed by an in-flight upload.
var ErrProofUsed = errors.New("authorization proof already used")

// Guard tracks consumed authorization-proof identifiers.
//
// Reserve is the atomic check-and-claim: for N concurrent callers presenting
// the same proof identifier, at most one Reserve succeeds. A reservation is
// released when the surrounding upload fails, so a failed upload never
// consumes the proof, and committed when it succeeds, which is the durable
// "used" mark.
//
// Entries are retained until the proof's own expiry passes; Sweep removes
// expired entries so the consumed set stays bounded. An expired proof cannot
// verify anyway, so forgetting it cannot re-open a replay window.
type Guard interface {
	// Used reports whether the identifier is consumed or currently reserved.
	Used(ctx context.Context, proofID string) (bool, error)
	// Reserve atomically claims the identifier, recording the proof expiry for
	// retention. Returns ErrProofUsed when the identifier is already taken.
	Reserve(ctx context.Context, proofID string, expiresAt time.Time) error
	// Release returns a reservation after a failed upload. Committed entries
	// are not affected.
	Release(ctx context.Context, proofID string) error
	// Commit turns a reservation into a durable consumed mark.
	Commit(ctx context.Context, proofID string) error
	// Sweep removes entries whose proof expiry has passed and reports how many.
	Sweep(ctx context.Context, now time.Time) (int64, error)
}
