package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/database"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectOrder = `SELECT id, idempotency_key, session_id, status, items, delivery, payment_mode,
	subtotal, tax_amount, delivery_fee, discount, total,
	client_name, client_phone, client_email, coupon_id, created_at
	FROM orders`

func (r *PostgresRepository) Create(ctx context.Context, rec *Record, event *OutboxEvent) error {
	itemsJSON, err := json.Marshal(rec.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}
	deliveryJSON, err := json.Marshal(rec.Delivery)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO orders (id, idempotency_key, session_id, status, items, delivery, payment_mode,
	          subtotal, tax_amount, delivery_fee, discount, total,
	          client_name, client_phone, client_email, coupon_id, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW())
	          RETURNING created_at`

	err = tx.QueryRowContext(ctx, query,
		rec.ID,
		rec.IdempotencyKey,
		rec.SessionID,
		rec.Status,
		itemsJSON,
		deliveryJSON,
		rec.Payment.Mode,
		rec.Totals.Subtotal,
		rec.Totals.TaxAmount,
		rec.Totals.DeliveryFee,
		rec.Totals.Discount,
		rec.Totals.Total,
		rec.Client.Name,
		rec.Client.Phone,
		nullString(rec.Client.Email),
		nullString(rec.CouponID),
	).Scan(&rec.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateIdempotency
		}
		return fmt.Errorf("insert order: %w", err)
	}

	if event != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO outbox_events (aggregate_id, event_type, payload) VALUES ($1, $2, $3)`,
			event.AggregateID, event.EventType, event.Payload)
		if err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return r.getOne(ctx, selectOrder+` WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByIdempotencyKey(ctx context.Context, key string) (*Record, error) {
	return r.getOne(ctx, selectOrder+` WHERE idempotency_key = $1`, key)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*Record, error) {
	var rec Record
	var itemsJSON, deliveryJSON []byte
	var email, couponID sql.NullString

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&rec.ID,
		&rec.IdempotencyKey,
		&rec.SessionID,
		&rec.Status,
		&itemsJSON,
		&deliveryJSON,
		&rec.Payment.Mode,
		&rec.Totals.Subtotal,
		&rec.Totals.TaxAmount,
		&rec.Totals.DeliveryFee,
		&rec.Totals.Discount,
		&rec.Totals.Total,
		&rec.Client.Name,
		&rec.Client.Phone,
		&email,
		&couponID,
		&rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	if err := json.Unmarshal(itemsJSON, &rec.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	if err := json.Unmarshal(deliveryJSON, &rec.Delivery); err != nil {
		return nil, fmt.Errorf("unmarshal delivery: %w", err)
	}
	rec.Client.Email = email.String
	rec.CouponID = couponID.String
	return &rec, nil
}

func (r *PostgresRepository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
	          FROM outbox_events WHERE processed_at IS NULL ORDER BY id LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *PostgresRepository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox_events SET processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event processed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) PurgeProcessedEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM outbox_events WHERE processed_at IS NOT NULL AND processed_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge outbox events: %w", err)
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Repository = (*PostgresRepository)(nil)
