package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cskovec22/test-sarafan/internal/domain"
	"github.com/cskovec22/test-sarafan/internal/service"
)

type CartEngine interface {
	AddProduct(ctx context.Context, owner string, productID int64, amount int) (*service.AddResult, error)
	RemoveProduct(ctx context.Context, owner string, productID int64, amount int) (*service.RemoveResult, error)
	ClearCart(ctx context.Context, owner string) error
	ListLines(ctx context.Context, owner string) ([]service.LineView, error)
	Summarize(ctx context.Context, owner string) (*domain.Summary, error)
}

type CartHandler struct {
	cart    CartEngine
	timeout time.Duration
	logger  *slog.Logger
}

func NewCartHandler(cart CartEngine, timeout time.Duration, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		cart:    cart,
		timeout: timeout,
		logger:  logger,
	}
}

type CartProductRequestDTO struct {
	Product int64 `json:"product"`
	Amount  int   `json:"amount"`
}

type CartLineDTO struct {
	Product    int64  `json:"product"`
	Amount     int    `json:"amount"`
	TotalPrice string `json:"total_price"`
}

type AddProductResponseDTO struct {
	Message string `json:"message"`
	Product string `json:"product"`
	Amount  int    `json:"amount"`
}

type RemoveProductResponseDTO struct {
	Message   string `json:"message"`
	Product   string `json:"product"`
	Removed   bool   `json:"removed"`
	Remaining int    `json:"remaining"`
}

type SummaryDTO struct {
	TotalAmount int    `json:"total_amount"`
	TotalPrice  string `json:"total_price"`
}

type MessageDTO struct {
	Message string `json:"message"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	lines, err := h.cart.ListLines(ctx, userID)
	if err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	resp := make([]CartLineDTO, 0, len(lines))
	for _, line := range lines {
		resp = append(resp, CartLineDTO{
			Product:    line.ProductID,
			Amount:     line.Amount,
			TotalPrice: line.TotalPrice.StringFixed(domain.PriceScale),
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *CartHandler) AddProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req CartProductRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	res, err := h.cart.AddProduct(ctx, userID, req.Product, req.Amount)
	if err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	respondJSON(w, http.StatusOK, AddProductResponseDTO{
		Message: fmt.Sprintf("Product %s added to the cart, amount %d.", res.ProductName, res.Amount),
		Product: res.ProductName,
		Amount:  res.Amount,
	})
}

func (h *CartHandler) RemoveProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req CartProductRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	res, err := h.cart.RemoveProduct(ctx, userID, req.Product, req.Amount)
	if err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	msg := fmt.Sprintf("Product %s removed from the cart.", res.ProductName)
	if !res.Removed {
		msg = fmt.Sprintf("Product %s removed from the cart, %d left.", res.ProductName, res.Remaining)
	}
	respondJSON(w, http.StatusOK, RemoveProductResponseDTO{
		Message:   msg,
		Product:   res.ProductName,
		Removed:   res.Removed,
		Remaining: res.Remaining,
	})
}

func (h *CartHandler) ShowTotalInfo(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	summary, err := h.cart.Summarize(ctx, userID)
	if err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	respondJSON(w, http.StatusOK, SummaryDTO{
		TotalAmount: summary.TotalAmount,
		TotalPrice:  summary.TotalPrice.StringFixed(domain.PriceScale),
	})
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	if err := h.cart.ClearCart(ctx, userID); err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	respondJSON(w, http.StatusOK, MessageDTO{Message: "Shopping cart cleared."})
}
