package store

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/example/grocery-delivery/internal/domain/cart"
	"github.com/example/grocery-delivery/internal/domain/order"
	"github.com/example/grocery-delivery/internal/domain/product"
	"github.com/example/grocery-delivery/internal/domain/user"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore is the relational system of record. Each domain gets its own
// adapter so that method names stay short.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	log     *slog.Logger
}

func NewSQLStore(db *sql.DB, dialect Dialect, log *slog.Logger) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, log: log}
}

func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) Products() *ProductRepository { return &ProductRepository{s: s} }
func (s *SQLStore) Users() *UserRepository       { return &UserRepository{s: s} }
func (s *SQLStore) Carts() *CartRepository       { return &CartRepository{s: s} }
func (s *SQLStore) Orders() *OrderRepository     { return &OrderRepository{s: s} }

func (s *SQLStore) q(query string) string { return rebind(s.dialect, query) }

// ============================================
// Products
// ============================================

// ProductRepository implements product.Repository.
type ProductRepository struct{ s *SQLStore }

const productColumns = "id, name, description, price, vendor_id"

func scanProduct(row interface{ Scan(...any) error }) (*product.Product, error) {
	var (
		p      product.Product
		vendor sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &vendor); err != nil {
		return nil, err
	}
	p.VendorID = vendor.String
	return &p, nil
}

func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.s.db.QueryContext(ctx, "SELECT "+productColumns+" FROM products ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var products []product.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (r *ProductRepository) Get(ctx context.Context, id int64) (*product.Product, error) {
	return getProduct(ctx, r.s.db, r.s.dialect, id)
}

func getProduct(ctx context.Context, q querier, dialect Dialect, id int64) (*product.Product, error) {
	row := q.QueryRowContext(ctx, rebind(dialect, "SELECT "+productColumns+" FROM products WHERE id = ?"), id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, product.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	return p, nil
}

func (r *ProductRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&n); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

// Insert stores p and sets its id. A caller-chosen id is kept, and on
// PostgreSQL the id sequence is moved past it.
func (r *ProductRepository) Insert(ctx context.Context, p *product.Product) error {
	vendor := sql.NullString{String: p.VendorID, Valid: p.VendorID != ""}

	if p.ID == 0 {
		err := r.s.db.QueryRowContext(ctx,
			r.s.q("INSERT INTO products (name, description, price, vendor_id) VALUES (?, ?, ?, ?) RETURNING id"),
			p.Name, p.Description, p.Price, vendor,
		).Scan(&p.ID)
		if err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
		return nil
	}

	_, err := r.s.db.ExecContext(ctx,
		r.s.q("INSERT INTO products (id, name, description, price, vendor_id) VALUES (?, ?, ?, ?, ?)"),
		p.ID, p.Name, p.Description, p.Price, vendor,
	)
	if err != nil {
		return fmt.Errorf("insert product %d: %w", p.ID, err)
	}
	if r.s.dialect == Postgres {
		_, err = r.s.db.ExecContext(ctx,
			"SELECT setval(pg_get_serial_sequence('products', 'id'), (SELECT MAX(id) FROM products))")
		if err != nil {
			return fmt.Errorf("advance product sequence: %w", err)
		}
	}
	return nil
}

// ============================================
// Users
// ============================================

// UserRepository implements user.Repository.
type UserRepository struct{ s *SQLStore }

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	_, err := r.s.db.ExecContext(ctx,
		r.s.q("INSERT INTO users (id, email, password_hash, role) VALUES (?, ?, ?, ?)"),
		u.ID, u.Email, u.PasswordHash, string(u.Role),
	)
	if isUniqueViolation(err) {
		return user.ErrEmailExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *UserRepository) getBy(ctx context.Context, column, value string) (*user.User, error) {
	var (
		u    user.User
		role string
	)
	err := r.s.db.QueryRowContext(ctx,
		r.s.q("SELECT id, email, password_hash, role FROM users WHERE "+column+" = ?"), value,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, user.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by %s: %w", column, err)
	}
	u.Role = user.Role(role)
	return &u, nil
}

// ============================================
// Carts
// ============================================

// CartRepository implements cart.Repository.
type CartRepository struct{ s *SQLStore }

// AddOrIncrement is one upsert. The returned quantity equals the requested
// one only when the row was just inserted. Name and price are written on
// insert only, so the line keeps the snapshot taken when it was created.
// The update is skipped when the sum would pass cart.MaxQuantity, which
// leaves RETURNING empty.
func (r *CartRepository) AddOrIncrement(ctx context.Context, userID string, line cart.Line) (bool, error) {
	var quantity int
	err := r.s.db.QueryRowContext(ctx, r.s.q(`
		INSERT INTO cart_items (user_id, product_id, product_name, unit_price, quantity) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + excluded.quantity
		WHERE cart_items.quantity <= ? - excluded.quantity
		RETURNING quantity`),
		userID, line.ProductID, line.ProductName, line.Price, line.Quantity, cart.MaxQuantity,
	).Scan(&quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return false, cart.ErrQuantityTooLarge
	}
	if err != nil {
		return false, fmt.Errorf("upsert cart item: %w", err)
	}
	return quantity == line.Quantity, nil
}

func (r *CartRepository) List(ctx context.Context, userID string) ([]cart.Line, error) {
	return cartLines(ctx, r.s.db, r.s.dialect, userID)
}

func cartLines(ctx context.Context, q querier, dialect Dialect, userID string) ([]cart.Line, error) {
	rows, err := q.QueryContext(ctx, rebind(dialect, `
		SELECT product_id, product_name, unit_price, quantity
		FROM cart_items
		WHERE user_id = ?
		ORDER BY id`), userID)
	if err != nil {
		return nil, fmt.Errorf("list cart: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var lines []cart.Line
	for rows.Next() {
		var l cart.Line
		if err := rows.Scan(&l.ProductID, &l.ProductName, &l.Price, &l.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *CartRepository) Remove(ctx context.Context, userID string, productID int64) (bool, error) {
	res, err := r.s.db.ExecContext(ctx,
		r.s.q("DELETE FROM cart_items WHERE user_id = ? AND product_id = ?"), userID, productID)
	if err != nil {
		return false, fmt.Errorf("remove cart item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove cart item: %w", err)
	}
	return n > 0, nil
}

func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	return clearCart(ctx, r.s.db, r.s.dialect, userID)
}

func clearCart(ctx context.Context, q querier, dialect Dialect, userID string) error {
	if _, err := q.ExecContext(ctx, rebind(dialect, "DELETE FROM cart_items WHERE user_id = ?"), userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// ============================================
// Orders
// ============================================

// OrderRepository implements order.Store.
type OrderRepository struct{ s *SQLStore }

// InTx runs fn in one database transaction, committing only when fn
// succeeds.
func (r *OrderRepository) InTx(ctx context.Context, fn func(tx order.Tx) error) error {
	tx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&sqlTx{tx: tx, dialect: r.s.dialect}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *OrderRepository) ListViews(ctx context.Context, customerID string) ([]order.View, error) {
	rows, err := r.s.db.QueryContext(ctx, r.s.q(`
		SELECT o.id, o.status, o.product_id, COALESCE(p.name, ''), o.quantity, COALESCE(d.status, '')
		FROM orders o
		LEFT JOIN products p ON p.id = o.product_id
		LEFT JOIN deliveries d ON d.order_id = o.id
		WHERE o.customer_id = ?
		ORDER BY o.id`), customerID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var views []order.View
	for rows.Next() {
		var (
			v      order.View
			status string
		)
		if err := rows.Scan(&v.ID, &status, &v.ProductID, &v.ProductName, &v.Quantity, &v.DeliveryStatus); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		v.Status = order.Status(status)
		views = append(views, v)
	}
	return views, rows.Err()
}

// sqlTx implements order.Tx on top of *sql.Tx.
type sqlTx struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *sqlTx) GetProduct(ctx context.Context, id int64) (*product.Product, error) {
	return getProduct(ctx, t.tx, t.dialect, id)
}

// TakeCart deletes and returns in one statement. Under READ COMMITTED a row
// committed after the statement starts is not matched and stays in the cart.
func (t *sqlTx) TakeCart(ctx context.Context, userID string) ([]cart.Line, error) {
	rows, err := t.tx.QueryContext(ctx, rebind(t.dialect, `
		DELETE FROM cart_items WHERE user_id = ?
		RETURNING id, product_id, product_name, unit_price, quantity`), userID)
	if err != nil {
		return nil, fmt.Errorf("take cart: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type taken struct {
		id   int64
		line cart.Line
	}
	var all []taken
	for rows.Next() {
		var tk taken
		if err := rows.Scan(&tk.id, &tk.line.ProductID, &tk.line.ProductName, &tk.line.Price, &tk.line.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		all = append(all, tk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.SortFunc(all, func(a, b taken) int { return cmp.Compare(a.id, b.id) })
	lines := make([]cart.Line, len(all))
	for i, tk := range all {
		lines[i] = tk.line
	}
	return lines, nil
}

func (t *sqlTx) ClearCart(ctx context.Context, userID string) error {
	return clearCart(ctx, t.tx, t.dialect, userID)
}

func (t *sqlTx) InsertOrder(ctx context.Context, o *order.Order) error {
	err := t.tx.QueryRowContext(ctx, rebind(t.dialect,
		"INSERT INTO orders (customer_id, product_id, quantity, unit_price, status) VALUES (?, ?, ?, ?, ?) RETURNING id"),
		o.CustomerID, o.ProductID, o.Quantity, o.UnitPrice, string(o.Status),
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *sqlTx) InsertDelivery(ctx context.Context, d *order.Delivery) error {
	err := t.tx.QueryRowContext(ctx, rebind(t.dialect,
		"INSERT INTO deliveries (order_id, status) VALUES (?, ?) RETURNING id"),
		d.OrderID, string(d.Status),
	).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (t *sqlTx) CompleteProcessing(ctx context.Context, customerID string) ([]int64, error) {
	rows, err := t.tx.QueryContext(ctx, rebind(t.dialect,
		"UPDATE orders SET status = ? WHERE customer_id = ? AND status = ? RETURNING id"),
		string(order.StatusCompleted), customerID, string(order.StatusProcessing),
	)
	if err != nil {
		return nil, fmt.Errorf("complete orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Sort(ids)
	return ids, nil
}

func (t *sqlTx) MarkInTransit(ctx context.Context, orderID int64) (bool, error) {
	res, err := t.tx.ExecContext(ctx, rebind(t.dialect,
		"UPDATE deliveries SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE order_id = ?"),
		string(order.DeliveryInTransit), orderID,
	)
	if err != nil {
		return false, fmt.Errorf("update delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update delivery: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	if err := t.InsertDelivery(ctx, &order.Delivery{OrderID: orderID, Status: order.DeliveryInTransit}); err != nil {
		return false, err
	}
	return true, nil
}
