package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/cskovec22/test-sarafan/internal/catalog"
	"github.com/cskovec22/test-sarafan/internal/domain"
	"github.com/cskovec22/test-sarafan/internal/service"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

type EngineMock struct {
	owner     string
	productID int64
	amount    int

	addResult    *service.AddResult
	removeResult *service.RemoveResult
	lines        []service.LineView
	summary      *domain.Summary
	err          error
}

func (e *EngineMock) AddProduct(_ context.Context, owner string, productID int64, amount int) (*service.AddResult, error) {
	e.owner, e.productID, e.amount = owner, productID, amount
	if e.err != nil {
		return nil, e.err
	}
	return e.addResult, nil
}

func (e *EngineMock) RemoveProduct(_ context.Context, owner string, productID int64, amount int) (*service.RemoveResult, error) {
	e.owner, e.productID, e.amount = owner, productID, amount
	if e.err != nil {
		return nil, e.err
	}
	return e.removeResult, nil
}

func (e *EngineMock) ClearCart(_ context.Context, owner string) error {
	e.owner = owner
	return e.err
}

func (e *EngineMock) ListLines(_ context.Context, owner string) ([]service.LineView, error) {
	e.owner = owner
	if e.err != nil {
		return nil, e.err
	}
	return e.lines, nil
}

func (e *EngineMock) Summarize(_ context.Context, owner string) (*domain.Summary, error) {
	e.owner = owner
	if e.err != nil {
		return nil, e.err
	}
	return e.summary, nil
}

type CatalogMock struct {
	categories    []*domain.Category
	subcategories []*domain.Subcategory
	products      []*domain.Product
	err           error
}

func (c *CatalogMock) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	if c.err != nil {
		return nil, c.err
	}
	for _, p := range c.products {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, catalog.ErrProductNotFound
}

func (c *CatalogMock) GetProducts(ctx context.Context, ids []int64) (map[int64]*domain.Product, error) {
	out := make(map[int64]*domain.Product)
	for _, id := range ids {
		if p, err := c.GetProduct(ctx, id); err == nil {
			out[id] = p
		}
	}
	return out, c.err
}

func (c *CatalogMock) ListCategories(context.Context) ([]*domain.Category, error) {
	return c.categories, c.err
}

func (c *CatalogMock) ListSubcategories(context.Context) ([]*domain.Subcategory, error) {
	return c.subcategories, c.err
}

func (c *CatalogMock) ListProducts(context.Context) ([]*domain.Product, error) {
	return c.products, c.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(engine *EngineMock, cat *CatalogMock) http.Handler {
	if cat == nil {
		cat = &CatalogMock{}
	}
	return NewRouter(RouterConfig{
		Cart:           NewCartHandler(engine, 5*time.Second, testLogger()),
		Catalog:        NewCatalogHandler(cat, 5*time.Second, testLogger()),
		JWTSecret:      testSecret,
		RequestTimeout: 5 * time.Second,
		Logger:         testLogger(),
	})
}

func signToken(t *testing.T, claims jwt.MapClaims, secret []byte) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func userToken(t *testing.T, userID string) string {
	return signToken(t, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}, testSecret)
}

func testProduct() *domain.Product {
	return &domain.Product{
		ID:              1,
		Name:            "Orange",
		Slug:            "orange",
		SubcategoryName: "Citrus",
		CategoryName:    "Fruits",
		Price:           decimal.RequireFromString("10"),
		ImageLarge:      "l.png",
		ImageMedium:     "m.png",
		ImageSmall:      "s.png",
	}
}
