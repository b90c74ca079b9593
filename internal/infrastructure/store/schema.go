package store

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL CHECK (role IN ('customer', 'vendor')),
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price       NUMERIC(10, 2) NOT NULL,
		vendor_id   TEXT REFERENCES users(id) ON DELETE SET NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cart_items (
		id           BIGSERIAL PRIMARY KEY,
		user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		product_id   BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		product_name TEXT NOT NULL,
		unit_price   NUMERIC(10, 2) NOT NULL,
		quantity     INTEGER NOT NULL CHECK (quantity > 0),
		UNIQUE (user_id, product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id          BIGSERIAL PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES users(id),
		product_id  BIGINT NOT NULL REFERENCES products(id),
		quantity    INTEGER NOT NULL CHECK (quantity > 0),
		unit_price  NUMERIC(10, 2) NOT NULL,
		status      TEXT NOT NULL CHECK (status IN ('processing', 'completed')),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_customer_status ON orders (customer_id, status)`,
	`CREATE TABLE IF NOT EXISTS deliveries (
		id         BIGSERIAL PRIMARY KEY,
		order_id   BIGINT NOT NULL UNIQUE REFERENCES orders(id) ON DELETE CASCADE,
		status     TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL CHECK (role IN ('customer', 'vendor')),
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price       TEXT NOT NULL,
		vendor_id   TEXT REFERENCES users(id) ON DELETE SET NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cart_items (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		product_id   INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		product_name TEXT NOT NULL,
		unit_price   TEXT NOT NULL,
		quantity     INTEGER NOT NULL CHECK (quantity > 0),
		UNIQUE (user_id, product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id TEXT NOT NULL REFERENCES users(id),
		product_id  INTEGER NOT NULL REFERENCES products(id),
		quantity    INTEGER NOT NULL CHECK (quantity > 0),
		unit_price  TEXT NOT NULL,
		status      TEXT NOT NULL CHECK (status IN ('processing', 'completed')),
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_customer_status ON orders (customer_id, status)`,
	`CREATE TABLE IF NOT EXISTS deliveries (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id   INTEGER NOT NULL UNIQUE REFERENCES orders(id) ON DELETE CASCADE,
		status     TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

// Migrate creates the tables when they do not exist yet.
func (s *SQLStore) Migrate(ctx context.Context) error {
	stmts := postgresSchema
	if s.dialect == SQLite {
		stmts = sqliteSchema
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	s.log.Debug("schema ready", "dialect", string(s.dialect), "statements", len(stmts))
	return nil
}
