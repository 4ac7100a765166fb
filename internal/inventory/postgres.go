package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore keeps the ledger in Postgres. Every mutation locks the SKU rows it
// touches with SELECT ... FOR UPDATE inside one transaction.
type PGStore struct {
	DB  *pgxpool.Pool
	TTL time.Duration
	Now func() time.Time
}

const skuColumns = `id, product_id, size, color, unit_price, discounted_price, stock_quantity, low_stock_threshold, updated_at`

func (s *PGStore) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}

func scanSKU(row pgx.Row) (SKU, error) {
	var sku SKU
	err := row.Scan(&sku.ID, &sku.ProductID, &sku.Size, &sku.Color, &sku.UnitPrice,
		&sku.DiscountedPrice, &sku.StockQuantity, &sku.LowStockThreshold, &sku.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SKU{}, ErrSKUNotFound
	}
	return sku, err
}

func (s *PGStore) Get(ctx context.Context, skuID string) (SKU, error) {
	return scanSKU(s.DB.QueryRow(ctx, `SELECT `+skuColumns+` FROM skus WHERE id=$1`, skuID))
}

func (s *PGStore) Upsert(ctx context.Context, sku SKU) error {
	if sku.StockQuantity < 0 {
		return &NegativeStockError{SKUID: sku.ID, Delta: sku.StockQuantity}
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO skus(id, product_id, size, color, unit_price, discounted_price, stock_quantity, low_stock_threshold, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			product_id=EXCLUDED.product_id, size=EXCLUDED.size, color=EXCLUDED.color,
			unit_price=EXCLUDED.unit_price, discounted_price=EXCLUDED.discounted_price,
			stock_quantity=EXCLUDED.stock_quantity, low_stock_threshold=EXCLUDED.low_stock_threshold,
			updated_at=EXCLUDED.updated_at`,
		sku.ID, sku.ProductID, sku.Size, sku.Color, sku.UnitPrice, sku.DiscountedPrice,
		sku.StockQuantity, sku.LowStockThreshold, s.now())
	return err
}

func lockStock(ctx context.Context, tx pgx.Tx, skuID string) (int, error) {
	var stock int
	err := tx.QueryRow(ctx, `SELECT stock_quantity FROM skus WHERE id=$1 FOR UPDATE`, skuID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrSKUNotFound
	}
	return stock, err
}

func (s *PGStore) Reserve(ctx context.Context, skuID string, qty int, attemptID string) (Reservation, error) {
	if qty <= 0 {
		return Reservation{}, ErrInvalidQuantity
	}
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Reservation{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// the row lock on the SKU serializes reservers of the same SKU
	stock, err := lockStock(ctx, tx, skuID)
	if err != nil {
		return Reservation{}, err
	}
	now := s.now()
	var reserved int
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity),0) FROM stock_reservations
		WHERE sku_id=$1 AND expires_at > $2`, skuID, now).Scan(&reserved); err != nil {
		return Reservation{}, err
	}
	if available := stock - reserved; available < qty {
		return Reservation{}, &OutOfStockError{SKUID: skuID, Requested: qty, Available: max(available, 0)}
	}

	r := Reservation{
		ID:        uuid.NewString(),
		SKUID:     skuID,
		Quantity:  qty,
		AttemptID: attemptID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.TTL),
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO stock_reservations(id, sku_id, quantity, attempt_id, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		r.ID, r.SKUID, r.Quantity, r.AttemptID, r.CreatedAt, r.ExpiresAt); err != nil {
		return Reservation{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Reservation{}, err
	}
	return r, nil
}

func (s *PGStore) Commit(ctx context.Context, ids []string) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id, sku_id, quantity, expires_at FROM stock_reservations
		WHERE id = ANY($1) FOR UPDATE`, ids)
	if err != nil {
		return err
	}
	now := s.now()
	need := map[string]int{}
	found := 0
	for rows.Next() {
		var id, skuID string
		var qty int
		var expiresAt time.Time
		if err := rows.Scan(&id, &skuID, &qty, &expiresAt); err != nil {
			rows.Close()
			return err
		}
		if !now.Before(expiresAt) {
			rows.Close()
			return ErrReservationExpired
		}
		need[skuID] += qty
		found++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if found != len(uniq(ids)) {
		return ErrReservationExpired
	}

	// lock in id order so two batches over the same SKUs cannot deadlock
	skuIDs := make([]string, 0, len(need))
	for id := range need {
		skuIDs = append(skuIDs, id)
	}
	sort.Strings(skuIDs)
	for _, skuID := range skuIDs {
		stock, err := lockStock(ctx, tx, skuID)
		if err != nil {
			return err
		}
		if stock < need[skuID] {
			return &OutOfStockError{SKUID: skuID, Requested: need[skuID], Available: stock}
		}
		if _, err := tx.Exec(ctx, `
			UPDATE skus SET stock_quantity = stock_quantity - $2, updated_at=$3 WHERE id=$1`,
			skuID, need[skuID], now); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM stock_reservations WHERE id = ANY($1)`, ids); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) Release(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.DB.Exec(ctx, `DELETE FROM stock_reservations WHERE id = ANY($1)`, ids)
	return err
}

func (s *PGStore) ReleaseAttempt(ctx context.Context, attemptID string) error {
	_, err := s.DB.Exec(ctx, `DELETE FROM stock_reservations WHERE attempt_id=$1`, attemptID)
	return err
}

func (s *PGStore) ReleaseExpired(ctx context.Context, now time.Time) ([]Reservation, error) {
	rows, err := s.DB.Query(ctx, `
		DELETE FROM stock_reservations WHERE expires_at <= $1
		RETURNING id, sku_id, quantity, attempt_id, created_at, expires_at`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		var r Reservation
		if err := rows.Scan(&r.ID, &r.SKUID, &r.Quantity, &r.AttemptID, &r.CreatedAt, &r.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) Adjust(ctx context.Context, skuID string, qty int, mode AdjustMode) (SKU, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return SKU{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stock, err := lockStock(ctx, tx, skuID)
	if err != nil {
		return SKU{}, err
	}
	next, err := applyAdjust(skuID, stock, qty, mode)
	if err != nil {
		return SKU{}, err
	}
	sku, err := scanSKU(tx.QueryRow(ctx, `
		UPDATE skus SET stock_quantity=$2, updated_at=$3 WHERE id=$1
		RETURNING `+skuColumns, skuID, next, s.now()))
	if err != nil {
		return SKU{}, err
	}
	return sku, tx.Commit(ctx)
}

func (s *PGStore) Restock(ctx context.Context, items []StockDelta) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sorted := append([]StockDelta(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SKUID < sorted[j].SKUID })
	now := s.now()
	for _, it := range sorted {
		if it.Quantity <= 0 {
			return ErrInvalidQuantity
		}
		ct, err := tx.Exec(ctx, `
			UPDATE skus SET stock_quantity = stock_quantity + $2, updated_at=$3 WHERE id=$1`,
			it.SKUID, it.Quantity, now)
		if err != nil {
			return fmt.Errorf("restock %s: %w", it.SKUID, err)
		}
		if ct.RowsAffected() != 1 {
			return ErrSKUNotFound
		}
	}
	return tx.Commit(ctx)
}

func (s *PGStore) LowStock(ctx context.Context, threshold int) ([]SKU, error) {
	return s.list(ctx, `
		SELECT `+skuColumns+` FROM skus
		WHERE stock_quantity > 0
		  AND stock_quantity <= CASE WHEN $1::int > 0 THEN $1::int ELSE low_stock_threshold END
		ORDER BY id`, threshold)
}

func (s *PGStore) OutOfStock(ctx context.Context) ([]SKU, error) {
	return s.list(ctx, `SELECT `+skuColumns+` FROM skus WHERE stock_quantity = 0 ORDER BY id`)
}

func (s *PGStore) list(ctx context.Context, q string, args ...any) ([]SKU, error) {
	rows, err := s.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []SKU{}
	for rows.Next() {
		sku, err := scanSKU(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sku)
	}
	return out, rows.Err()
}

func uniq(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
