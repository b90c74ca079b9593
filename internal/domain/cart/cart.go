package cart

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/example/grocery-delivery/internal/apperr"
	"github.com/example/grocery-delivery/internal/domain/product"
	"github.com/example/grocery-delivery/internal/domain/user"
	"github.com/shopspring/decimal"
)

// MaxQuantity is the largest quantity a cart line or order can hold. It
// matches the 32-bit INTEGER quantity columns.
const MaxQuantity = math.MaxInt32

var (
	ErrInvalidQuantity  = apperr.New(apperr.KindInvalidInput, "Quantity must be a positive integer")
	ErrQuantityTooLarge = apperr.New(apperr.KindInvalidInput, "Quantity exceeds the maximum allowed")
	ErrMissingProduct   = apperr.New(apperr.KindInvalidInput, "Product ID and quantity are required")
	ErrNotInCart        = apperr.New(apperr.KindNotFound, "Product not in cart")
)

// Line is one (user, product) entry. Name and price are captured when the
// line is first created.
type Line struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
}

type Repository interface {
	// AddOrIncrement creates the line or adds line.Quantity to the existing
	// one in a single atomic step. It reports whether the line was created.
	// When the sum would exceed MaxQuantity the line is left untouched and
	// ErrQuantityTooLarge is returned.
	AddOrIncrement(ctx context.Context, userID string, line Line) (bool, error)
	List(ctx context.Context, userID string) ([]Line, error)
	// Remove reports false when the user has no line for productID.
	Remove(ctx context.Context, userID string, productID int64) (bool, error)
	Clear(ctx context.Context, userID string) error
}

type ProductLookup interface {
	GetProduct(ctx context.Context, id int64) (*product.Product, error)
}

type Service struct {
	repo    Repository
	catalog ProductLookup
	log     *slog.Logger
}

func NewService(repo Repository, catalog ProductLookup, log *slog.Logger) *Service {
	return &Service{repo: repo, catalog: catalog, log: log}
}

// AddItem merges by product id: adding the same product twice sums the
// quantities. A zero quantity means the caller omitted it and counts as 1.
func (s *Service) AddItem(ctx context.Context, caller user.Caller, productID int64, quantity int) (bool, error) {
	if err := caller.RequireCustomer(); err != nil {
		return false, err
	}
	if productID <= 0 {
		return false, ErrMissingProduct
	}
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return false, ErrInvalidQuantity
	}
	if quantity > MaxQuantity {
		return false, ErrQuantityTooLarge
	}

	p, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return false, err
	}

	created, err := s.repo.AddOrIncrement(ctx, caller.UserID, Line{
		ProductID:   p.ID,
		ProductName: p.Name,
		Price:       p.Price,
		Quantity:    quantity,
	})
	if err != nil {
		if errors.Is(err, ErrQuantityTooLarge) {
			return false, err
		}
		return false, apperr.Internal(err)
	}

	s.log.Debug("cart line saved", "user_id", caller.UserID, "product_id", productID, "quantity", quantity, "created", created)
	return created, nil
}

// ListItems returns the caller's lines in insertion order.
func (s *Service) ListItems(ctx context.Context, caller user.Caller) ([]Line, error) {
	if err := caller.RequireCustomer(); err != nil {
		return nil, err
	}
	lines, err := s.repo.List(ctx, caller.UserID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if lines == nil {
		lines = []Line{}
	}
	return lines, nil
}

func (s *Service) RemoveItem(ctx context.Context, caller user.Caller, productID int64) error {
	if err := caller.RequireCustomer(); err != nil {
		return err
	}
	removed, err := s.repo.Remove(ctx, caller.UserID, productID)
	if err != nil {
		return apperr.Internal(err)
	}
	if !removed {
		return ErrNotInCart
	}
	return nil
}

// Clear empties the user's cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.repo.Clear(ctx, userID); err != nil {
		return apperr.Internal(err)
	}
	return nil
}
