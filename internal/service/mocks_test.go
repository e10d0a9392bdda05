package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cskovec22/test-sarafan/internal/cache"
	"github.com/cskovec22/test-sarafan/internal/catalog"
	"github.com/cskovec22/test-sarafan/internal/domain"
	"github.com/cskovec22/test-sarafan/internal/repository"
	"github.com/shopspring/decimal"
)

var errStoreDown = errors.New("store down")

// mockStore keeps carts in memory. WithinTx serializes transactions and
// restores a snapshot when fn fails.
type mockStore struct {
	txMu sync.Mutex
	inTx atomic.Bool

	m      sync.Mutex
	nextID int
	carts  map[string]*domain.Cart
	lines  map[string]map[int64]domain.CartLine
	events []*domain.CartEvent

	saveErr error
	findErr error

	// afterList runs once, after ListLines has read the lines and before it
	// returns them.
	afterList func()
}

func newMockStore() *mockStore {
	return &mockStore{
		carts: make(map[string]*domain.Cart),
		lines: make(map[string]map[int64]domain.CartLine),
	}
}

func (s *mockStore) WithinTx(_ context.Context, fn func(repo repository.CartRepository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.inTx.Store(true)
	defer s.inTx.Store(false)

	snapshot := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

func (s *mockStore) snapshot() *mockStore {
	s.m.Lock()
	defer s.m.Unlock()

	cp := &mockStore{
		nextID: s.nextID,
		carts:  make(map[string]*domain.Cart, len(s.carts)),
		lines:  make(map[string]map[int64]domain.CartLine, len(s.lines)),
		events: append([]*domain.CartEvent(nil), s.events...),
	}
	for k, v := range s.carts {
		c := *v
		cp.carts[k] = &c
	}
	for k, v := range s.lines {
		ls := make(map[int64]domain.CartLine, len(v))
		for pid, l := range v {
			ls[pid] = l
		}
		cp.lines[k] = ls
	}
	return cp
}

func (s *mockStore) restore(cp *mockStore) {
	s.m.Lock()
	defer s.m.Unlock()
	s.nextID = cp.nextID
	s.carts = cp.carts
	s.lines = cp.lines
	s.events = cp.events
}

func (s *mockStore) GetOrCreateCart(_ context.Context, owner string) (*domain.Cart, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if cart, ok := s.carts[owner]; ok {
		c := *cart
		return &c, nil
	}
	s.nextID++
	cart := &domain.Cart{ID: "cart-" + strconv.Itoa(s.nextID), Owner: owner}
	s.carts[owner] = cart
	s.lines[cart.ID] = make(map[int64]domain.CartLine)
	c := *cart
	return &c, nil
}

func (s *mockStore) FindCart(_ context.Context, owner string) (*domain.Cart, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	cart, ok := s.carts[owner]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	c := *cart
	return &c, nil
}

func (s *mockStore) GetOrCreateLine(_ context.Context, cartID string, productID int64) (*domain.CartLine, bool, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if line, ok := s.lines[cartID][productID]; ok {
		return &line, false, nil
	}
	s.nextID++
	line := domain.CartLine{ID: "line-" + strconv.Itoa(s.nextID), CartID: cartID, ProductID: productID}
	s.lines[cartID][productID] = line
	return &line, true, nil
}

func (s *mockStore) FindLine(_ context.Context, cartID string, productID int64) (*domain.CartLine, error) {
	s.m.Lock()
	defer s.m.Unlock()
	line, ok := s.lines[cartID][productID]
	if !ok {
		return nil, repository.ErrLineNotFound
	}
	return &line, nil
}

func (s *mockStore) SaveLine(_ context.Context, line *domain.CartLine) error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if _, ok := s.lines[line.CartID][line.ProductID]; !ok {
		return repository.ErrLineNotFound
	}
	s.lines[line.CartID][line.ProductID] = *line
	return nil
}

func (s *mockStore) DeleteLine(_ context.Context, line *domain.CartLine) error {
	s.m.Lock()
	defer s.m.Unlock()
	if _, ok := s.lines[line.CartID][line.ProductID]; !ok {
		return repository.ErrLineNotFound
	}
	delete(s.lines[line.CartID], line.ProductID)
	return nil
}

func (s *mockStore) ListLines(_ context.Context, cartID string) ([]domain.CartLine, error) {
	s.m.Lock()
	lines := []domain.CartLine{}
	for _, line := range s.lines[cartID] {
		lines = append(lines, line)
	}
	hook := s.afterList
	s.afterList = nil
	s.m.Unlock()

	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	if hook != nil {
		hook()
	}
	return lines, nil
}

func (s *mockStore) setAfterList(fn func()) {
	s.m.Lock()
	defer s.m.Unlock()
	s.afterList = fn
}

func (s *mockStore) DeleteAllLines(_ context.Context, cartID string) (int64, error) {
	s.m.Lock()
	defer s.m.Unlock()
	n := int64(len(s.lines[cartID]))
	s.lines[cartID] = make(map[int64]domain.CartLine)
	return n, nil
}

func (s *mockStore) RecordEvent(_ context.Context, event *domain.CartEvent) error {
	s.m.Lock()
	defer s.m.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *mockStore) GetUnpublishedEvents(context.Context, int) ([]*domain.CartEvent, error) {
	s.m.Lock()
	defer s.m.Unlock()
	return append([]*domain.CartEvent(nil), s.events...), nil
}

func (s *mockStore) MarkEventPublished(context.Context, string) error { return nil }
func (s *mockStore) Ping(context.Context) error                       { return nil }
func (s *mockStore) Close() error                                     { return nil }

func (s *mockStore) lineCount(owner string) int {
	s.m.Lock()
	defer s.m.Unlock()
	cart, ok := s.carts[owner]
	if !ok {
		return 0
	}
	return len(s.lines[cart.ID])
}

func (s *mockStore) eventTypes() []domain.CartEventType {
	s.m.Lock()
	defer s.m.Unlock()
	types := make([]domain.CartEventType, len(s.events))
	for i, e := range s.events {
		types[i] = e.Type
	}
	return types
}

type mockCatalog struct {
	m        sync.RWMutex
	products map[int64]*domain.Product
	err      error

	onGetProduct func()
	// gate runs once, at the start of GetProducts.
	gate func(ctx context.Context)
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{products: map[int64]*domain.Product{
		1: {ID: 1, Name: "Orange", Price: decimal.RequireFromString("10.00")},
		2: {ID: 2, Name: "Lemon", Price: decimal.RequireFromString("5.50")},
		3: {ID: 3, Name: "Strawberry", Price: decimal.RequireFromString("12.35")},
	}}
}

func (c *mockCatalog) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	c.m.RLock()
	defer c.m.RUnlock()
	if c.onGetProduct != nil {
		c.onGetProduct()
	}
	if c.err != nil {
		return nil, c.err
	}
	p, ok := c.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (c *mockCatalog) GetProducts(ctx context.Context, ids []int64) (map[int64]*domain.Product, error) {
	c.m.Lock()
	gate := c.gate
	c.gate = nil
	c.m.Unlock()
	if gate != nil {
		gate(ctx)
	}

	c.m.RLock()
	defer c.m.RUnlock()
	if c.err != nil {
		return nil, c.err
	}
	out := make(map[int64]*domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (c *mockCatalog) setPrice(id int64, price string) {
	c.m.Lock()
	defer c.m.Unlock()
	c.products[id].Price = decimal.RequireFromString(price)
}

func (c *mockCatalog) remove(id int64) {
	c.m.Lock()
	defer c.m.Unlock()
	delete(c.products, id)
}

// mockCache mirrors the versioned behaviour of the Redis cache.
type mockCache struct {
	m        sync.Mutex
	entries  map[string][]domain.CartLine
	versions map[string]int64
	err      error
}

func newMockCache() *mockCache {
	return &mockCache{
		entries:  make(map[string][]domain.CartLine),
		versions: make(map[string]int64),
	}
}

func (c *mockCache) Get(_ context.Context, owner string) ([]domain.CartLine, error) {
	c.m.Lock()
	defer c.m.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	lines, ok := c.entries[owner]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return lines, nil
}

func (c *mockCache) Version(_ context.Context, owner string) (int64, error) {
	c.m.Lock()
	defer c.m.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	return c.versions[owner], nil
}

func (c *mockCache) Set(_ context.Context, owner string, version int64, lines []domain.CartLine) error {
	c.m.Lock()
	defer c.m.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.versions[owner] != version {
		return cache.ErrStale
	}
	c.entries[owner] = lines
	return nil
}

func (c *mockCache) Invalidate(_ context.Context, owner string) error {
	c.m.Lock()
	defer c.m.Unlock()
	if c.err != nil {
		return c.err
	}
	c.versions[owner]++
	delete(c.entries, owner)
	return nil
}

func (c *mockCache) cached(owner string) bool {
	c.m.Lock()
	defer c.m.Unlock()
	_, ok := c.entries[owner]
	return ok
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService() (*CartService, *mockStore, *mockCatalog, *mockCache) {
	store := newMockStore()
	cat := newMockCatalog()
	c := newMockCache()
	return NewCartService(store, cat, c, testLogger()), store, cat, c
}
