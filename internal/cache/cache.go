package cache

import (
	"context"
	"errors"

	"github.com/cskovec22/test-sarafan/internal/domain"
)

// CartCache holds the line snapshot of a cart keyed by owner. Prices are
// never cached; they are always read from the catalog.
//
// Every owner has a version that Invalidate bumps. A reader takes the
// version before loading lines from the store and hands it back to Set, so
// a snapshot loaded before a mutation committed is never stored after the
// mutation invalidated the entry.
type CartCache interface {
	Get(ctx context.Context, owner string) ([]domain.CartLine, error)
	Version(ctx context.Context, owner string) (int64, error)
	Set(ctx context.Context, owner string, version int64, lines []domain.CartLine) error
	Invalidate(ctx context.Context, owner string) error
}

var (
	ErrCacheMiss = errors.New("cache miss")
	// ErrStale is returned by Set when the owner was invalidated after the
	// version was read.
	ErrStale = errors.New("cache version changed")
)

// Noop is used when no Redis address is configured.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]domain.CartLine, error)      { return nil, ErrCacheMiss }
func (Noop) Version(context.Context, string) (int64, error)              { return 0, nil }
func (Noop) Set(context.Context, string, int64, []domain.CartLine) error { return nil }
func (Noop) Invalidate(context.Context, string) error                    { return nil }
