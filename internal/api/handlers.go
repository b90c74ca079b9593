package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/example/grocery-delivery/internal/api/middleware"
	"github.com/example/grocery-delivery/internal/apperr"
	"github.com/example/grocery-delivery/internal/domain/cart"
	"github.com/example/grocery-delivery/internal/domain/order"
	"github.com/example/grocery-delivery/internal/domain/product"
	"github.com/gorilla/mux"
)

type Handlers struct {
	catalog *product.Catalog
	carts   *cart.Service
	orders  *order.Service
	log     *slog.Logger
}

func NewHandlers(catalog *product.Catalog, carts *cart.Service, orders *order.Service, log *slog.Logger) *Handlers {
	return &Handlers{catalog: catalog, carts: carts, orders: orders, log: log}
}

// Health answers GET /.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Grocery delivery API is running",
		"status":  "success",
	})
}

// Product Handlers

func (h *Handlers) GetProducts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.catalog.ListProducts(r.Context()))
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Cart Handlers

type addToCartRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  *int  `json:"quantity"`
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req addToCartRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	quantity := 0
	if req.Quantity != nil {
		quantity = *req.Quantity
		if quantity == 0 {
			respondMessage(w, http.StatusBadRequest, cart.ErrInvalidQuantity.Message)
			return
		}
	}

	created, err := h.carts.AddItem(r.Context(), middleware.Caller(r.Context()), req.ProductID, quantity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if created {
		respondMessage(w, http.StatusCreated, "Product added to cart")
		return
	}
	respondMessage(w, http.StatusOK, "Cart updated")
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	lines, err := h.carts.ListItems(r.Context(), middleware.Caller(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, lines)
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(w, r, "productId")
	if !ok {
		return
	}
	if err := h.carts.RemoveItem(r.Context(), middleware.Caller(r.Context()), productID); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Product removed from cart")
}

// Order Handlers

type placeOrderRequest struct {
	CartItems []order.Item `json:"cart_items"`
}

type placeOrderResponse struct {
	Message  string  `json:"message"`
	OrderIDs []int64 `json:"order_ids"`
}

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	placed, err := h.orders.PlaceOrder(r.Context(), middleware.Caller(r.Context()), req.CartItems)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	ids := make([]int64, len(placed))
	for i, o := range placed {
		ids[i] = o.ID
	}
	respondJSON(w, http.StatusCreated, placeOrderResponse{Message: "Order placed successfully", OrderIDs: ids})
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	views, err := h.orders.ListOrders(r.Context(), middleware.Caller(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, views)
}

type checkoutResponse struct {
	Message string `json:"message"`
	*order.CheckoutResult
}

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	result, err := h.orders.Checkout(r.Context(), middleware.Caller(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, checkoutResponse{Message: "Checkout successful. Delivery has started.", CheckoutResult: result})
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondMessage(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"message": message})
}

// respondError renders err with the status of its kind. Internal failures
// are logged and reported without detail.
func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	respondMessage(w, status, apperr.Message(err))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
			respondMessage(w, http.StatusBadRequest, "Malformed JSON body")
		default:
			respondMessage(w, http.StatusBadRequest, "Invalid request body")
		}
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		respondMessage(w, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}
