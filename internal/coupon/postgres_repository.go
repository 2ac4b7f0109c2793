package coupon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/database"
	"github.com/lib/pq"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByCode(ctx context.Context, code string) (*Coupon, error) {
	query := `SELECT id, code, kind, value, min_order_amount, max_uses, used_count, active, expires_at, created_at
	          FROM coupons WHERE UPPER(code) = UPPER($1)`

	var c Coupon
	var expiresAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&c.ID,
		&c.Code,
		&c.Kind,
		&c.Value,
		&c.MinOrderAmount,
		&c.MaxUses,
		&c.UsedCount,
		&c.Active,
		&expiresAt,
		&c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query coupon by code: %w", err)
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		c.ExpiresAt = &t
	}
	return &c, nil
}

func (r *PostgresRepository) Create(ctx context.Context, c *Coupon) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	query := `INSERT INTO coupons (id, code, kind, value, min_order_amount, max_uses, used_count, active, expires_at, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		c.ID,
		c.Code,
		c.Kind,
		c.Value,
		c.MinOrderAmount,
		c.MaxUses,
		c.UsedCount,
		c.Active,
		c.ExpiresAt,
		c.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("coupon %s already exists: %w", c.Code, err)
		}
		return fmt.Errorf("insert coupon: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Redeem(ctx context.Context, couponID, orderID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO coupon_redemptions (coupon_id, order_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		couponID, orderID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return false, ErrCouponNotFound
		}
		return false, fmt.Errorf("insert redemption: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if inserted == 0 {
		return false, nil
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE coupons SET used_count = used_count + 1
		 WHERE id = $1 AND (max_uses = 0 OR used_count < max_uses)`, couponID)
	if err != nil {
		return false, fmt.Errorf("increment coupon usage: %w", err)
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if updated == 0 {
		// deferred rollback drops the redemption row
		return false, ErrCouponExhausted
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit redemption: %w", err)
	}
	return true, nil
}
