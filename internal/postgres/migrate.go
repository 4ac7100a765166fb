package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is idempotent; Migrate runs it on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS skus (
		id                  TEXT PRIMARY KEY,
		product_id          TEXT NOT NULL DEFAULT '',
		size                TEXT NOT NULL DEFAULT '',
		color               TEXT NOT NULL DEFAULT '',
		unit_price          BIGINT NOT NULL CHECK (unit_price >= 0),
		discounted_price    BIGINT,
		stock_quantity      INT NOT NULL CHECK (stock_quantity >= 0),
		low_stock_threshold INT NOT NULL DEFAULT 0,
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS stock_reservations (
		id         TEXT PRIMARY KEY,
		sku_id     TEXT NOT NULL REFERENCES skus(id),
		quantity   INT NOT NULL CHECK (quantity > 0),
		attempt_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS stock_reservations_sku ON stock_reservations (sku_id, expires_at)`,
	`CREATE INDEX IF NOT EXISTS stock_reservations_attempt ON stock_reservations (attempt_id)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id              TEXT PRIMARY KEY,
		attempt_id      TEXT NOT NULL UNIQUE,
		user_id         TEXT NOT NULL,
		address         JSONB NOT NULL,
		payment_method  TEXT NOT NULL,
		subtotal        BIGINT NOT NULL,
		tax             BIGINT NOT NULL,
		delivery_charge BIGINT NOT NULL,
		discount        BIGINT NOT NULL,
		total           BIGINT NOT NULL CHECK (total >= 0),
		coupon_code     TEXT NOT NULL DEFAULT '',
		free_shipping   BOOLEAN NOT NULL DEFAULT false,
		status          TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS orders_user ON orders (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		order_id   TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		sku_id     TEXT NOT NULL,
		quantity   INT NOT NULL CHECK (quantity > 0),
		unit_price BIGINT NOT NULL,
		PRIMARY KEY (order_id, sku_id)
	)`,
	`CREATE TABLE IF NOT EXISTS addresses (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		name       TEXT NOT NULL,
		phone      TEXT NOT NULL,
		line1      TEXT NOT NULL,
		line2      TEXT NOT NULL DEFAULT '',
		city       TEXT NOT NULL,
		state      TEXT NOT NULL,
		pincode    TEXT NOT NULL,
		is_default BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS addresses_one_default ON addresses (user_id) WHERE is_default`,
}

func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}
