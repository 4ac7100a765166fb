package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-storefront-checkout/internal/address"
	"github.com/ariefcatur/go-storefront-checkout/internal/pricing"
)

// Repo is the Postgres order store. attempt_id is UNIQUE, which makes Create
// idempotent even across API replicas.
type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, attempt_id, user_id, address, payment_method, subtotal, tax, delivery_charge,
	discount, total, coupon_code, free_shipping, status, created_at, updated_at`

func (r *Repo) Create(ctx context.Context, o Order) (Order, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	o.Status = StatusPending
	o.CreatedAt, o.UpdatedAt = now, now

	addr, err := json.Marshal(o.Address)
	if err != nil {
		return Order{}, err
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		o.ID, o.AttemptID, o.UserID, addr, string(o.PaymentMethod),
		o.Totals.Subtotal, o.Totals.Tax, o.Totals.DeliveryCharge, o.Totals.Discount, o.Totals.Total,
		o.Totals.CouponCode, o.Totals.FreeShipping, string(o.Status), o.CreatedAt, o.UpdatedAt)
	if isUniqueViolation(err) {
		_ = tx.Rollback(ctx)
		existing, gerr := r.GetByAttempt(ctx, o.AttemptID)
		if gerr != nil {
			return Order{}, gerr
		}
		return existing, ErrAlreadyExists
	}
	if err != nil {
		return Order{}, err
	}

	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, sku_id, quantity, unit_price)
			VALUES ($1,$2,$3,$4)`, o.ID, it.SKUID, it.Quantity, it.UnitPrice); err != nil {
			return Order{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *Repo) GetByID(ctx context.Context, id string) (Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
}

func (r *Repo) GetByAttempt(ctx context.Context, attemptID string) (Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE attempt_id=$1`, attemptID)
}

func (r *Repo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Items, err = r.items(ctx, r.DB, out[i].ID); err != nil {
			return nil, err
		}
	}
	if out == nil {
		out = []Order{}
	}
	return out, nil
}

func (r *Repo) Transition(ctx context.Context, id string, to Status, allowedFrom ...Status) (Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var from string
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, id).Scan(&from)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	if err := checkTransition(Status(from), to, allowedFrom); err != nil {
		return Order{}, err
	}
	o, err := scanOrder(tx.QueryRow(ctx, `
		UPDATE orders SET status=$2, updated_at=$3 WHERE id=$1
		RETURNING `+orderColumns, id, string(to), time.Now().UTC()))
	if err != nil {
		return Order{}, err
	}
	if o.Items, err = r.items(ctx, tx, id); err != nil {
		return Order{}, err
	}
	return o, tx.Commit(ctx)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Repo) getOne(ctx context.Context, q string, arg string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, q, arg))
	if err != nil {
		return Order{}, err
	}
	o.Items, err = r.items(ctx, r.DB, o.ID)
	return o, err
}

func (r *Repo) items(ctx context.Context, q querier, orderID string) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT sku_id, quantity, unit_price FROM order_items WHERE order_id=$1 ORDER BY sku_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.SKUID, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o      Order
		addr   []byte
		method string
		status string
	)
	err := row.Scan(&o.ID, &o.AttemptID, &o.UserID, &addr, &method,
		&o.Totals.Subtotal, &o.Totals.Tax, &o.Totals.DeliveryCharge, &o.Totals.Discount, &o.Totals.Total,
		&o.Totals.CouponCode, &o.Totals.FreeShipping, &status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	o.PaymentMethod = pricing.PaymentMethod(method)
	o.Status = Status(status)
	var a address.Address
	if err := json.Unmarshal(addr, &a); err != nil {
		return Order{}, fmt.Errorf("decode address snapshot: %w", err)
	}
	o.Address = a
	return o, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
