package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/grocery-delivery/internal/apperr"
	"github.com/example/grocery-delivery/internal/domain/cart"
	"github.com/example/grocery-delivery/internal/domain/product"
	"github.com/example/grocery-delivery/internal/domain/user"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
)

// DeliveryStatus values. Placement creates deliveries as pending; "on the
// way" is accepted from rows written by older clients.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryOnTheWay  DeliveryStatus = "on the way"
	DeliveryInTransit DeliveryStatus = "in transit"
)

// DeliveryNotAvailable is reported for orders that have no delivery row yet.
const DeliveryNotAvailable = "N/A"

var (
	ErrEmptyCart         = apperr.New(apperr.KindEmptyCart, "Cart is empty")
	ErrInvalidProduct    = apperr.New(apperr.KindInvalidInput, "Invalid product in cart")
	ErrInvalidQuantity   = apperr.New(apperr.KindInvalidInput, "Product ID and a positive quantity are required")
	ErrNothingToCheckout = apperr.New(apperr.KindNothingToCheckout, "No orders to checkout")
)

// Order is one product purchased by one customer. A cart with N lines
// becomes N orders.
type Order struct {
	ID          int64           `json:"id"`
	CustomerID  string          `json:"customer_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Status      Status          `json:"status"`
}

type Delivery struct {
	ID      int64          `json:"id"`
	OrderID int64          `json:"order_id"`
	Status  DeliveryStatus `json:"delivery_status"`
}

// Item is a requested (product, quantity) pair.
type Item struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// View is the customer-facing projection of an order and its delivery.
type View struct {
	ID             int64  `json:"id"`
	Status         Status `json:"status"`
	ProductID      int64  `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	DeliveryStatus string `json:"delivery_status"`
}

type CheckoutResult struct {
	OrderIDs          []int64 `json:"order_ids"`
	DeliveriesCreated int     `json:"deliveries_created"`
}

// Tx is the unit of work placement and checkout run in. Everything done
// through one Tx commits or rolls back together.
type Tx interface {
	GetProduct(ctx context.Context, id int64) (*product.Product, error)
	// TakeCart removes the user's cart lines and returns what it removed,
	// in insertion order. Lines added after it runs stay in the cart.
	TakeCart(ctx context.Context, userID string) ([]cart.Line, error)
	ClearCart(ctx context.Context, userID string) error
	InsertOrder(ctx context.Context, o *Order) error
	InsertDelivery(ctx context.Context, d *Delivery) error
	// CompleteProcessing moves every processing order of the customer to
	// completed in one statement and returns their ids in ascending order.
	CompleteProcessing(ctx context.Context, customerID string) ([]int64, error)
	// MarkInTransit sets the order's delivery to in transit, creating the
	// row if it is missing. It reports whether a row was created.
	MarkInTransit(ctx context.Context, orderID int64) (bool, error)
}

type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	ListViews(ctx context.Context, customerID string) ([]View, error)
}

type Publisher interface {
	Publish(ctx context.Context, key, eventType string, payload any) error
}

type Service struct {
	store     Store
	publisher Publisher
	log       *slog.Logger
	now       func() time.Time
}

// NewService wires the lifecycle. publisher may be nil.
func NewService(store Store, publisher Publisher, log *slog.Logger) *Service {
	return &Service{store: store, publisher: publisher, log: log, now: time.Now}
}

// PlaceOrder turns the snapshot into one processing order plus one pending
// delivery per product, then empties the caller's cart. When items is empty
// the caller's stored cart is the snapshot. Every line is validated before
// any order is written, and the whole placement shares one transaction.
func (s *Service) PlaceOrder(ctx context.Context, caller user.Caller, items []Item) ([]Order, error) {
	if err := caller.RequireCustomer(); err != nil {
		return nil, err
	}
	for _, it := range items {
		if it.ProductID <= 0 || it.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}
	requested, err := mergeItems(items)
	if err != nil {
		return nil, err
	}

	var placed []Order
	err = s.store.InTx(ctx, func(tx Tx) error {
		placed = nil

		lines := requested
		if len(lines) == 0 {
			// Snapshot and clear in one step so a line added concurrently is
			// either ordered here or left in the cart.
			stored, err := tx.TakeCart(ctx, caller.UserID)
			if err != nil {
				return err
			}
			for _, l := range stored {
				lines = append(lines, Item{ProductID: l.ProductID, Quantity: l.Quantity})
			}
			if lines, err = mergeItems(lines); err != nil {
				return err
			}
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		products := make([]*product.Product, len(lines))
		for i, l := range lines {
			p, err := tx.GetProduct(ctx, l.ProductID)
			if err != nil {
				if errors.Is(err, product.ErrProductNotFound) {
					return apperr.Wrap(ErrInvalidProduct, fmt.Errorf("product %d does not exist", l.ProductID))
				}
				return err
			}
			products[i] = p
		}

		for i, l := range lines {
			o := &Order{
				CustomerID:  caller.UserID,
				ProductID:   l.ProductID,
				ProductName: products[i].Name,
				Quantity:    l.Quantity,
				UnitPrice:   products[i].Price,
				Status:      StatusProcessing,
			}
			if err := tx.InsertOrder(ctx, o); err != nil {
				return fmt.Errorf("insert order for product %d: %w", l.ProductID, err)
			}
			if err := tx.InsertDelivery(ctx, &Delivery{OrderID: o.ID, Status: DeliveryPending}); err != nil {
				return fmt.Errorf("insert delivery for order %d: %w", o.ID, err)
			}
			placed = append(placed, *o)
		}

		if len(requested) > 0 {
			return tx.ClearCart(ctx, caller.UserID)
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}

	s.log.Info("orders placed", "user_id", caller.UserID, "count", len(placed))
	s.publish(ctx, caller.UserID, EventOrderPlaced, newOrderPlaced(caller.UserID, placed, s.now()))
	return placed, nil
}

// Checkout completes every processing order of the caller and puts their
// deliveries in transit, all in one transaction.
func (s *Service) Checkout(ctx context.Context, caller user.Caller) (*CheckoutResult, error) {
	if err := caller.RequireCustomer(); err != nil {
		return nil, err
	}

	var result CheckoutResult
	err := s.store.InTx(ctx, func(tx Tx) error {
		result = CheckoutResult{}

		ids, err := tx.CompleteProcessing(ctx, caller.UserID)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return ErrNothingToCheckout
		}

		for _, id := range ids {
			created, err := tx.MarkInTransit(ctx, id)
			if err != nil {
				return fmt.Errorf("update delivery for order %d: %w", id, err)
			}
			if created {
				result.DeliveriesCreated++
			}
		}
		result.OrderIDs = ids
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}

	s.log.Info("checkout completed", "user_id", caller.UserID, "orders", len(result.OrderIDs), "deliveries_created", result.DeliveriesCreated)
	s.publish(ctx, caller.UserID, EventOrdersCheckedOut, OrdersCheckedOut{
		UserID:            caller.UserID,
		OrderIDs:          result.OrderIDs,
		DeliveriesCreated: result.DeliveriesCreated,
		CheckedOutAt:      s.now(),
	})
	return &result, nil
}

// ListOrders returns the caller's orders, oldest first.
func (s *Service) ListOrders(ctx context.Context, caller user.Caller) ([]View, error) {
	if err := caller.RequireCustomer(); err != nil {
		return nil, err
	}
	views, err := s.store.ListViews(ctx, caller.UserID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if views == nil {
		views = []View{}
	}
	for i := range views {
		if views[i].DeliveryStatus == "" {
			views[i].DeliveryStatus = DeliveryNotAvailable
		}
	}
	return views, nil
}

func (s *Service) publish(ctx context.Context, key, eventType string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, key, eventType, payload); err != nil {
		s.log.Warn("failed to publish event", "event_type", eventType, "key", key, "error", err)
	}
}

// mergeItems folds duplicate product ids together, keeping first-seen order.
// A merged quantity above cart.MaxQuantity is rejected.
func mergeItems(items []Item) ([]Item, error) {
	if len(items) == 0 {
		return nil, nil
	}
	index := make(map[int64]int, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Quantity > cart.MaxQuantity {
			return nil, cart.ErrQuantityTooLarge
		}
		if i, ok := index[it.ProductID]; ok {
			if out[i].Quantity > cart.MaxQuantity-it.Quantity {
				return nil, cart.ErrQuantityTooLarge
			}
			out[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out, nil
}

func classify(err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Internal(err)
}
