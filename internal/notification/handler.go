package notification

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/grocery-delivery/internal/domain/order"
	"github.com/example/grocery-delivery/internal/domain/user"
	"github.com/example/grocery-delivery/internal/email"
	"github.com/example/grocery-delivery/internal/infrastructure/kafka"
)

// Mailer is the part of email.Service the handler needs.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, to string, items []email.OrderItem) error
	SendOutForDelivery(ctx context.Context, to string, orderIDs []int64) error
}

// Handler turns order events into customer emails.
type Handler struct {
	mailer Mailer
	users  user.Repository
	log    *slog.Logger
}

func NewHandler(mailer Mailer, users user.Repository, log *slog.Logger) *Handler {
	return &Handler{mailer: mailer, users: users, log: log}
}

// HandleEvent processes one envelope. Unknown event types are ignored.
func (h *Handler) HandleEvent(ctx context.Context, event kafka.Event) error {
	switch event.Type {
	case order.EventOrderPlaced:
		var e order.OrderPlaced
		if err := event.Payload(&e); err != nil {
			return err
		}
		return h.handleOrderPlaced(ctx, e)
	case order.EventOrdersCheckedOut:
		var e order.OrdersCheckedOut
		if err := event.Payload(&e); err != nil {
			return err
		}
		return h.handleCheckedOut(ctx, e)
	default:
		h.log.Debug("ignoring event", "event_type", event.Type)
		return nil
	}
}

func (h *Handler) handleOrderPlaced(ctx context.Context, e order.OrderPlaced) error {
	to, ok, err := h.recipient(ctx, e.UserID)
	if !ok {
		return err
	}

	items := make([]email.OrderItem, len(e.Lines))
	for i, l := range e.Lines {
		items[i] = email.OrderItem{
			OrderID:   l.OrderID,
			ProductID: l.ProductID,
			Name:      l.ProductName,
			Quantity:  l.Quantity,
			Price:     l.UnitPrice,
		}
	}

	if err := h.mailer.SendOrderConfirmation(ctx, to, items); err != nil {
		return err
	}
	h.log.Info("order confirmation sent", "user_id", e.UserID, "lines", len(items))
	return nil
}

func (h *Handler) handleCheckedOut(ctx context.Context, e order.OrdersCheckedOut) error {
	to, ok, err := h.recipient(ctx, e.UserID)
	if !ok {
		return err
	}
	if err := h.mailer.SendOutForDelivery(ctx, to, e.OrderIDs); err != nil {
		return err
	}
	h.log.Info("delivery notice sent", "user_id", e.UserID, "orders", len(e.OrderIDs))
	return nil
}

// recipient looks up the user's address. A user that no longer exists is
// skipped without error.
func (h *Handler) recipient(ctx context.Context, userID string) (string, bool, error) {
	u, err := h.users.GetByID(ctx, userID)
	if errors.Is(err, user.ErrUserNotFound) {
		h.log.Warn("user not found, skipping notification", "user_id", userID)
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return u.Email, true, nil
}
