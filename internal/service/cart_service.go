package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cskovec22/test-sarafan/internal/cache"
	"github.com/cskovec22/test-sarafan/internal/catalog"
	"github.com/cskovec22/test-sarafan/internal/domain"
	"github.com/cskovec22/test-sarafan/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// ProductCatalog is the part of the catalog the cart needs.
type ProductCatalog interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetProducts(ctx context.Context, ids []int64) (map[int64]*domain.Product, error)
}

type CartService struct {
	store   repository.Store
	catalog ProductCatalog
	cache   cache.CartCache
	logger  *slog.Logger
	sfg     singleflight.Group
}

type AddResult struct {
	ProductName string
	Amount      int
}

// RemoveResult tells whether the line was deleted or only decremented.
type RemoveResult struct {
	ProductName string
	Removed     bool
	Remaining   int
}

type LineView struct {
	ProductID  int64
	Amount     int
	TotalPrice decimal.Decimal
}

func NewCartService(store repository.Store, catalog ProductCatalog, c cache.CartCache, logger *slog.Logger) *CartService {
	if c == nil {
		c = cache.Noop{}
	}
	return &CartService{
		store:   store,
		catalog: catalog,
		cache:   c,
		logger:  logger,
	}
}

func (s *CartService) AddProduct(ctx context.Context, owner string, productID int64, amount int) (*AddResult, error) {
	if !domain.ValidAmount(amount) {
		return nil, &AmountError{Amount: amount}
	}

	product, err := s.product(ctx, productID)
	if err != nil {
		return nil, err
	}

	err = s.store.WithinTx(ctx, func(repo repository.CartRepository) error {
		cart, err := repo.GetOrCreateCart(ctx, owner)
		if err != nil {
			return err
		}

		line, _, err := repo.GetOrCreateLine(ctx, cart.ID, productID)
		if err != nil {
			return err
		}

		quantity := line.Quantity + amount
		if quantity > domain.MaxAmountProduct {
			return &QuantityError{Kind: ErrQuantityExceeded, Requested: amount, InCart: line.Quantity}
		}

		line.Quantity = quantity
		if err := repo.SaveLine(ctx, line); err != nil {
			return err
		}
		return repo.RecordEvent(ctx, newEvent(cart, domain.EventLineAdded, productID, amount, quantity))
	})
	if err != nil {
		return nil, s.failure(ctx, "add product", owner, err)
	}

	s.invalidate(owner)
	s.logger.InfoContext(ctx, "product added to cart",
		slog.String("owner", owner),
		slog.Int64("product_id", productID),
		slog.Int("amount", amount))

	return &AddResult{ProductName: product.Name, Amount: amount}, nil
}

func (s *CartService) RemoveProduct(ctx context.Context, owner string, productID int64, amount int) (*RemoveResult, error) {
	if !domain.ValidAmount(amount) {
		return nil, &AmountError{Amount: amount}
	}

	// resolved before the cart row is locked, reported after the cart check
	product, productErr := s.product(ctx, productID)

	var result RemoveResult
	err := s.store.WithinTx(ctx, func(repo repository.CartRepository) error {
		cart, err := repo.FindCart(ctx, owner)
		if errors.Is(err, repository.ErrCartNotFound) {
			return ErrCartEmpty
		}
		if err != nil {
			return err
		}

		if productErr != nil {
			return productErr
		}
		result.ProductName = product.Name

		line, err := repo.FindLine(ctx, cart.ID, productID)
		if errors.Is(err, repository.ErrLineNotFound) {
			return ErrProductNotInCart
		}
		if err != nil {
			return err
		}

		quantity := line.Quantity - amount
		switch {
		case quantity < 0:
			return &QuantityError{Kind: ErrInsufficientQuantity, Requested: amount, InCart: line.Quantity}
		case quantity == 0:
			if err := repo.DeleteLine(ctx, line); err != nil {
				return err
			}
			result.Removed = true
			return repo.RecordEvent(ctx, newEvent(cart, domain.EventLineRemoved, productID, amount, 0))
		default:
			line.Quantity = quantity
			if err := repo.SaveLine(ctx, line); err != nil {
				return err
			}
			result.Remaining = quantity
			return repo.RecordEvent(ctx, newEvent(cart, domain.EventLineDecremented, productID, amount, quantity))
		}
	})
	if err != nil {
		return nil, s.failure(ctx, "remove product", owner, err)
	}

	s.invalidate(owner)
	s.logger.InfoContext(ctx, "product removed from cart",
		slog.String("owner", owner),
		slog.Int64("product_id", productID),
		slog.Int("amount", amount),
		slog.Bool("line_removed", result.Removed))

	return &result, nil
}

// ClearCart deletes every line of the owner's cart. The cart itself stays.
func (s *CartService) ClearCart(ctx context.Context, owner string) error {
	var cleared int64
	err := s.store.WithinTx(ctx, func(repo repository.CartRepository) error {
		cart, err := repo.FindCart(ctx, owner)
		if errors.Is(err, repository.ErrCartNotFound) {
			return ErrCartEmpty
		}
		if err != nil {
			return err
		}

		lines, err := repo.ListLines(ctx, cart.ID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return ErrCartEmpty
		}

		cleared, err = repo.DeleteAllLines(ctx, cart.ID)
		if err != nil {
			return err
		}
		return repo.RecordEvent(ctx, newEvent(cart, domain.EventCartCleared, 0, int(cleared), 0))
	})
	if err != nil {
		return s.failure(ctx, "clear cart", owner, err)
	}

	s.invalidate(owner)
	s.logger.InfoContext(ctx, "cart cleared",
		slog.String("owner", owner),
		slog.Int64("lines", cleared))
	return nil
}

// ListLines returns the owner's lines priced at the current catalog price.
// An owner without a cart has no lines.
func (s *CartService) ListLines(ctx context.Context, owner string) ([]LineView, error) {
	lines, err := s.cartLines(ctx, owner)
	if err != nil {
		return nil, err
	}

	products, err := s.products(ctx, lines)
	if err != nil {
		return nil, err
	}

	views := make([]LineView, 0, len(lines))
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, missingProduct(line.ProductID)
		}
		views = append(views, LineView{
			ProductID:  line.ProductID,
			Amount:     line.Quantity,
			TotalPrice: domain.LineTotal(product.Price, line.Quantity),
		})
	}
	return views, nil
}

// cartLines reads the owner's lines through the cache. The cache version is
// taken before the store is read; if a mutation invalidates the owner in
// between, the loaded lines are returned but not cached.
func (s *CartService) cartLines(ctx context.Context, owner string) ([]domain.CartLine, error) {
	lines, err := s.cache.Get(ctx, owner)
	if err == nil {
		return lines, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.WarnContext(ctx, "cache get failed", slog.String("owner", owner), slog.Any("error", err))
	}

	version, versionErr := s.cache.Version(ctx, owner)
	if versionErr != nil {
		s.logger.WarnContext(ctx, "cache version failed", slog.String("owner", owner), slog.Any("error", versionErr))
	}

	cart, err := s.store.FindCart(ctx, owner)
	switch {
	case errors.Is(err, repository.ErrCartNotFound):
		lines = []domain.CartLine{}
	case err != nil:
		return nil, transient(err)
	default:
		lines, err = s.store.ListLines(ctx, cart.ID)
		if err != nil {
			return nil, transient(err)
		}
	}

	if versionErr == nil {
		err := s.cache.Set(ctx, owner, version, lines)
		switch {
		case errors.Is(err, cache.ErrStale):
			s.logger.DebugContext(ctx, "cart changed while loading, not cached", slog.String("owner", owner))
		case err != nil:
			s.logger.WarnContext(ctx, "cache set failed", slog.String("owner", owner), slog.Any("error", err))
		}
	}
	return lines, nil
}

func (s *CartService) product(ctx context.Context, id int64) (*domain.Product, error) {
	product, err := s.catalog.GetProduct(ctx, id)
	if errors.Is(err, catalog.ErrProductNotFound) {
		return nil, missingProduct(id)
	}
	if err != nil {
		return nil, transient(err)
	}
	return product, nil
}

func (s *CartService) products(ctx context.Context, lines []domain.CartLine) (map[int64]*domain.Product, error) {
	ids := make([]int64, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}
	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, transient(err)
	}
	return products, nil
}

// failure passes cart failures through and turns everything else into a
// transient error.
func (s *CartService) failure(ctx context.Context, op, owner string, err error) error {
	if IsCartFailure(err) || errors.Is(err, ErrTransient) {
		return err
	}
	s.logger.ErrorContext(ctx, op+" failed",
		slog.String("owner", owner),
		slog.Any("error", err))
	return transient(err)
}

func (s *CartService) invalidate(owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Invalidate(ctx, owner); err != nil {
		s.logger.Warn("cache invalidate failed", slog.String("owner", owner), slog.Any("error", err))
	}
}

func missingProduct(id int64) error {
	return fmt.Errorf("%w: id %d", ErrProductNotFound, id)
}

func newEvent(cart *domain.Cart, typ domain.CartEventType, productID int64, amount, quantity int) *domain.CartEvent {
	return &domain.CartEvent{
		ID:         uuid.NewString(),
		CartID:     cart.ID,
		Owner:      cart.Owner,
		Type:       typ,
		ProductID:  productID,
		Amount:     amount,
		Quantity:   quantity,
		OccurredAt: time.Now().UTC(),
	}
}
