package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	JWTSecret      []byte
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

func NewRouter(cfg RouterConfig, cart *CartHandler, comments *CommentsHandler) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.Route("/session", func(r chi.Router) {
			r.Post("/login", cart.Login)
			r.Post("/logout", cart.Logout)
		})
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cart.GetCart)
			r.Post("/items", cart.AddItem)
			r.Delete("/items", cart.RemoveItems)
			r.Patch("/items/{product_id}", cart.ChangeQuantity)
			r.Delete("/items/{product_id}", cart.RemoveItem)
			r.Post("/checkout/complete", cart.CompleteCheckout)
			r.Post("/buy-again", cart.BuyAgain)
		})
		r.Get("/products/{product_id}/comments", comments.List)
	})

	return otelhttp.NewHandler(r, "cartsync")
}
