package order

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderPlaced      = "OrderPlaced"
	EventOrdersCheckedOut = "OrdersCheckedOut"
)

type PlacedLine struct {
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type OrderPlaced struct {
	UserID   string          `json:"user_id"`
	Lines    []PlacedLine    `json:"lines"`
	Total    decimal.Decimal `json:"total"`
	PlacedAt time.Time       `json:"placed_at"`
}

type OrdersCheckedOut struct {
	UserID            string    `json:"user_id"`
	OrderIDs          []int64   `json:"order_ids"`
	DeliveriesCreated int       `json:"deliveries_created"`
	CheckedOutAt      time.Time `json:"checked_out_at"`
}

func newOrderPlaced(userID string, orders []Order, at time.Time) OrderPlaced {
	e := OrderPlaced{UserID: userID, Lines: make([]PlacedLine, 0, len(orders)), Total: decimal.Zero, PlacedAt: at}
	for _, o := range orders {
		e.Lines = append(e.Lines, PlacedLine{
			OrderID:     o.ID,
			ProductID:   o.ProductID,
			ProductName: o.ProductName,
			Quantity:    o.Quantity,
			UnitPrice:   o.UnitPrice,
		})
		e.Total = e.Total.Add(o.UnitPrice.Mul(decimal.NewFromInt(int64(o.Quantity))))
	}
	return e
}
