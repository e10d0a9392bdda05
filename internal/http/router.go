package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type RouterConfig struct {
	Cart           *CartHandler
	Catalog        *CatalogHandler
	JWTSecret      []byte
	RequestTimeout time.Duration
	Logger         *slog.Logger

	// nil falls back to the otel globals
	TracerProvider trace.TracerProvider
	Propagator     propagation.TextMapPropagator
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(cfg.Logger))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/categories/", cfg.Catalog.ListCategories)
		r.Get("/subcategories/", cfg.Catalog.ListSubcategories)
		r.Get("/products/", cfg.Catalog.ListProducts)
		r.Get("/products/{id}/", cfg.Catalog.GetProduct)

		r.Route("/shoppingcart", func(r chi.Router) {
			r.Use(AuthMiddleware(cfg.JWTSecret))
			r.Get("/", cfg.Cart.GetCart)
			r.Post("/add_product/", cfg.Cart.AddProduct)
			r.Post("/remove_product/", cfg.Cart.RemoveProduct)
			r.Get("/show_total_info/", cfg.Cart.ShowTotalInfo)
			r.Post("/clear_shopping_cart/", cfg.Cart.ClearCart)
		})
	})

	var opts []otelhttp.Option
	if cfg.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}
	if cfg.Propagator != nil {
		opts = append(opts, otelhttp.WithPropagators(cfg.Propagator))
	}
	return otelhttp.NewHandler(r, "shop-http", opts...)
}
