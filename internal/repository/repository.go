package repository

import (
	"context"
	"errors"

	"github.com/cskovec22/test-sarafan/internal/domain"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrLineNotFound = errors.New("line not found in cart")
	// ErrConflict marks a write that lost a race with a concurrent update of
	// the same cart. The whole transaction has been rolled back.
	ErrConflict = errors.New("concurrent cart update")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// CartRepository persists carts and their lines. Lines are listed ordered by
// product id.
type CartRepository interface {
	GetOrCreateCart(ctx context.Context, owner string) (*domain.Cart, error)
	FindCart(ctx context.Context, owner string) (*domain.Cart, error)
	GetOrCreateLine(ctx context.Context, cartID string, productID int64) (*domain.CartLine, bool, error)
	FindLine(ctx context.Context, cartID string, productID int64) (*domain.CartLine, error)
	SaveLine(ctx context.Context, line *domain.CartLine) error
	DeleteLine(ctx context.Context, line *domain.CartLine) error
	ListLines(ctx context.Context, cartID string) ([]domain.CartLine, error)
	DeleteAllLines(ctx context.Context, cartID string) (int64, error)
	RecordEvent(ctx context.Context, event *domain.CartEvent) error
}

type OutboxRepository interface {
	GetUnpublishedEvents(ctx context.Context, limit int) ([]*domain.CartEvent, error)
	MarkEventPublished(ctx context.Context, id string) error
}

// Store is a CartRepository that can run a unit of work atomically.
// Inside WithinTx the cart resolved by GetOrCreateCart or FindCart is held
// exclusively until the transaction ends, so read-modify-write sequences on
// one cart never interleave.
type Store interface {
	CartRepository
	OutboxRepository
	WithinTx(ctx context.Context, fn func(repo CartRepository) error) error
	Ping(ctx context.Context) error
	Close() error
}
