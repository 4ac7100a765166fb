package address

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGBook relies on the partial unique index addresses_one_default to keep a
// single default per user; SetDefault flips both rows in one transaction.
type PGBook struct{ DB *pgxpool.Pool }

const addressColumns = `id, user_id, name, phone, line1, line2, city, state, pincode, is_default, created_at`

func scanAddress(row pgx.Row) (Address, error) {
	var a Address
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Phone, &a.Line1, &a.Line2,
		&a.City, &a.State, &a.Pincode, &a.IsDefault, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Address{}, ErrNotFound
	}
	return a, err
}

func (b *PGBook) Add(ctx context.Context, a Address) (Address, error) {
	a = a.Normalize()
	if err := a.Validate(); err != nil {
		return Address{}, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()

	tx, err := b.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Address{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// serialize default changes per user
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, a.UserID); err != nil {
		return Address{}, err
	}
	var n int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM addresses WHERE user_id=$1`, a.UserID).Scan(&n); err != nil {
		return Address{}, err
	}
	if n == 0 {
		a.IsDefault = true
	}
	if a.IsDefault {
		if _, err := tx.Exec(ctx, `UPDATE addresses SET is_default=false WHERE user_id=$1 AND is_default`, a.UserID); err != nil {
			return Address{}, err
		}
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO addresses(`+addressColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		a.ID, a.UserID, a.Name, a.Phone, a.Line1, a.Line2, a.City, a.State, a.Pincode, a.IsDefault, a.CreatedAt); err != nil {
		return Address{}, err
	}
	return a, tx.Commit(ctx)
}

func (b *PGBook) Get(ctx context.Context, userID, id string) (Address, error) {
	return scanAddress(b.DB.QueryRow(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE id=$1 AND user_id=$2`, id, userID))
}

func (b *PGBook) List(ctx context.Context, userID string) ([]Address, error) {
	rows, err := b.DB.Query(ctx, `SELECT `+addressColumns+` FROM addresses
		WHERE user_id=$1 ORDER BY is_default DESC, created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Address{}
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (b *PGBook) SetDefault(ctx context.Context, userID, id string) error {
	tx, err := b.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE addresses SET is_default=false WHERE user_id=$1 AND is_default`, userID); err != nil {
		return err
	}
	ct, err := tx.Exec(ctx, `UPDATE addresses SET is_default=true WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

func (b *PGBook) Delete(ctx context.Context, userID, id string) error {
	tx, err := b.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		return err
	}
	var wasDefault bool
	err = tx.QueryRow(ctx, `DELETE FROM addresses WHERE id=$1 AND user_id=$2 RETURNING is_default`, id, userID).Scan(&wasDefault)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if wasDefault {
		if _, err := tx.Exec(ctx, `
			UPDATE addresses SET is_default=true
			WHERE id = (SELECT id FROM addresses WHERE user_id=$1 ORDER BY created_at LIMIT 1)`, userID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
