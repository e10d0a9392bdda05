package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cskovec22/test-sarafan/internal/catalog"
	"github.com/cskovec22/test-sarafan/internal/domain"
	"github.com/cskovec22/test-sarafan/pkg/circuitbreaker"
	"github.com/go-chi/chi/v5"
)

type CatalogHandler struct {
	store   catalog.Store
	timeout time.Duration
	logger  *slog.Logger
}

func NewCatalogHandler(store catalog.Store, timeout time.Duration, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		store:   store,
		timeout: timeout,
		logger:  logger,
	}
}

type CategoryResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Image string `json:"image"`
}

type SubcategoryResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Image    string `json:"image"`
	Category string `json:"category"`
}

type ProductResponse struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Slug        string   `json:"slug"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	Price       string   `json:"price"`
	Images      []string `json:"images"`
}

func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	categories, err := h.store.ListCategories(ctx)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp := make([]CategoryResponse, len(categories))
	for i, c := range categories {
		resp[i] = CategoryResponse{ID: c.ID, Name: c.Name, Slug: c.Slug, Image: c.Image}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *CatalogHandler) ListSubcategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	subcategories, err := h.store.ListSubcategories(ctx)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp := make([]SubcategoryResponse, len(subcategories))
	for i, s := range subcategories {
		resp[i] = SubcategoryResponse{
			ID:       s.ID,
			Name:     s.Name,
			Slug:     s.Slug,
			Image:    s.Image,
			Category: s.CategoryName,
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.store.ListProducts(ctx)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp := make([]ProductResponse, len(products))
	for i, p := range products {
		resp[i] = toProductResponse(p)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product id must be a positive integer")
		return
	}

	product, err := h.store.GetProduct(ctx, id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *CatalogHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "not_found", "product not found")
	case circuitbreaker.IsOpen(err):
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "catalog temporarily unavailable")
	default:
		h.logger.ErrorContext(r.Context(), "catalog request failed", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func toProductResponse(p *domain.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Slug:        p.Slug,
		Category:    p.CategoryName,
		Subcategory: p.SubcategoryName,
		Price:       p.Price.StringFixed(domain.PriceScale),
		Images:      p.Images(),
	}
}
