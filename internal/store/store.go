// Package store defines the portfolio persistence port for the simulation
// engine. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/tradelab/sim-engine/internal/model"
)

var (
	// ErrNotFound is returned by LoadPortfolio when the user has no
	// persisted portfolio yet.
	ErrNotFound = errors.New("store: portfolio not found")

	// ErrSchemaMismatch is returned when a persisted blob carries an
	// unsupported schema version or fails validation. Loads fail fast
	// rather than coercing.
	ErrSchemaMismatch = errors.New("store: portfolio schema mismatch")
)

// Store is the persistence port. The in-memory portfolio is always the
// source of truth at runtime; saves are fire-and-forget from the session's
// point of view.
type Store interface {
	// LoadPortfolio retrieves the persisted portfolio for a user.
	// Returns ErrNotFound if none exists.
	LoadPortfolio(ctx context.Context, userID string) (*model.Portfolio, error)

	// SavePortfolio persists the portfolio, replacing any previous state.
	SavePortfolio(ctx context.Context, userID string, p *model.Portfolio) error
}

// Validate checks a decoded portfolio against the current schema.
func Validate(p *model.Portfolio) error {
	if p == nil {
		return fmt.Errorf("%w: empty blob", ErrSchemaMismatch)
	}
	if p.Version != model.SchemaVersion {
		return fmt.Errorf("%w: version %d, want %d", ErrSchemaMismatch, p.Version, model.SchemaVersion)
	}
	for key, pos := range p.Positions {
		if pos == nil || pos.Quantity.IsZero() {
			return fmt.Errorf("%w: degenerate position %s", ErrSchemaMismatch, key)
		}
		if !pos.AveragePrice.IsPositive() {
			return fmt.Errorf("%w: non-positive average price for %s", ErrSchemaMismatch, key)
		}
	}
	return nil
}
