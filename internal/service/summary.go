package service

import (
	"context"
	"time"

	"github.com/cskovec22/test-sarafan/internal/domain"
	"github.com/shopspring/decimal"
)

const summaryTimeout = 5 * time.Second

// Summarize totals the owner's cart at current catalog prices. A cart that
// does not exist or has no lines fails with ErrCartEmpty. Concurrent calls
// for one owner share a single computation, which is not tied to any one
// caller's cancellation.
func (s *CartService) Summarize(ctx context.Context, owner string) (*domain.Summary, error) {
	ch := s.sfg.DoChan(owner, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), summaryTimeout)
		defer cancel()
		return s.summarize(shared, owner)
	})

	select {
	case <-ctx.Done():
		return nil, transient(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		summary := *res.Val.(*domain.Summary)
		return &summary, nil
	}
}

func (s *CartService) summarize(ctx context.Context, owner string) (*domain.Summary, error) {
	lines, err := s.cartLines(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrCartEmpty
	}

	products, err := s.products(ctx, lines)
	if err != nil {
		return nil, err
	}

	summary := &domain.Summary{TotalPrice: decimal.Zero}
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, missingProduct(line.ProductID)
		}
		summary.TotalAmount += line.Quantity
		summary.TotalPrice = summary.TotalPrice.Add(domain.LineTotal(product.Price, line.Quantity))
	}
	summary.TotalPrice = summary.TotalPrice.Round(domain.PriceScale)

	return summary, nil
}
