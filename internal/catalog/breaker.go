package catalog

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cskovec22/test-sarafan/internal/domain"
	"github.com/cskovec22/test-sarafan/pkg/circuitbreaker"
)

// BreakerStore guards catalog reads with a circuit breaker. A product that
// does not exist is an answer, not a failure.
type BreakerStore struct {
	next    Store
	breaker *circuitbreaker.Breaker
}

func NewBreakerStore(next Store, logger *slog.Logger) *BreakerStore {
	return &BreakerStore{
		next: next,
		breaker: circuitbreaker.New(circuitbreaker.Settings{
			Name:   "catalog",
			Logger: logger,
			IsSuccessful: func(err error) bool {
				return err == nil ||
					errors.Is(err, ErrProductNotFound) ||
					errors.Is(err, context.Canceled)
			},
		}),
	}
}

func (b *BreakerStore) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return circuitbreaker.Do(b.breaker, func() (*domain.Product, error) {
		return b.next.GetProduct(ctx, id)
	})
}

func (b *BreakerStore) GetProducts(ctx context.Context, ids []int64) (map[int64]*domain.Product, error) {
	return circuitbreaker.Do(b.breaker, func() (map[int64]*domain.Product, error) {
		return b.next.GetProducts(ctx, ids)
	})
}

func (b *BreakerStore) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	return circuitbreaker.Do(b.breaker, func() ([]*domain.Category, error) {
		return b.next.ListCategories(ctx)
	})
}

func (b *BreakerStore) ListSubcategories(ctx context.Context) ([]*domain.Subcategory, error) {
	return circuitbreaker.Do(b.breaker, func() ([]*domain.Subcategory, error) {
		return b.next.ListSubcategories(ctx)
	})
}

func (b *BreakerStore) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	return circuitbreaker.Do(b.breaker, func() ([]*domain.Product, error) {
		return b.next.ListProducts(ctx)
	})
}
