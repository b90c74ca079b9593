package api

import (
	"log/slog"
	"net/http"

	"github.com/example/grocery-delivery/internal/api/middleware"
	"github.com/example/grocery-delivery/internal/auth"
	"github.com/example/grocery-delivery/internal/domain/user"
	"github.com/gorilla/mux"
)

// RouterConfig carries what NewRouter wires together. RateLimiter and
// Idempotency are optional.
type RouterConfig struct {
	Handlers     *Handlers
	AuthHandlers *AuthHandlers
	JWT          *auth.JWTService
	RateLimiter  *middleware.RateLimiter
	Idempotency  middleware.IdempotencyStore
	Log          *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	h := cfg.Handlers
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondMessage(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	// Public
	r.HandleFunc("/", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/register", cfg.AuthHandlers.Register).Methods(http.MethodPost)
	r.HandleFunc("/login", cfg.AuthHandlers.Login).Methods(http.MethodPost)
	r.HandleFunc("/logout", cfg.AuthHandlers.Logout).Methods(http.MethodPost)
	r.HandleFunc("/products", h.GetProducts).Methods(http.MethodGet)
	r.HandleFunc("/products/{id:[0-9]+}", h.GetProduct).Methods(http.MethodGet)

	// Any signed-in user
	authed := r.NewRoute().Subrouter()
	authed.Use(middleware.AuthMiddleware(cfg.JWT))
	authed.HandleFunc("/me", cfg.AuthHandlers.Me).Methods(http.MethodGet)

	// Customers
	customer := r.NewRoute().Subrouter()
	customer.Use(middleware.AuthMiddleware(cfg.JWT), middleware.RequireRole(user.RoleCustomer))
	customer.HandleFunc("/cart", h.AddToCart).Methods(http.MethodPost)
	customer.HandleFunc("/cart", h.GetCart).Methods(http.MethodGet)
	customer.HandleFunc("/cart/{productId:[0-9]+}", h.RemoveFromCart).Methods(http.MethodDelete)
	customer.Handle("/order",
		middleware.Idempotency(cfg.Idempotency, "order", cfg.Log)(http.HandlerFunc(h.PlaceOrder)),
	).Methods(http.MethodPost)
	customer.HandleFunc("/orders", h.GetOrders).Methods(http.MethodGet)
	customer.HandleFunc("/checkout", h.Checkout).Methods(http.MethodPost)

	var handler http.Handler = r
	if cfg.RateLimiter != nil {
		handler = cfg.RateLimiter.Middleware(handler)
	}
	return middleware.Logging(cfg.Log)(handler)
}
