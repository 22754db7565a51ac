package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/replygate/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DeliveryRepository is the spool of channel deliveries awaiting retry.
type DeliveryRepository struct {
	db dbtx
}

func NewDeliveryRepository(pool *pgxpool.Pool) *DeliveryRepository {
	return &DeliveryRepository{db: pool}
}

func NewDeliveryRepositoryWithTx(tx pgx.Tx) *DeliveryRepository {
	return &DeliveryRepository{db: tx}
}

// Enqueue spools a failed delivery.
func (r *DeliveryRepository) Enqueue(ctx context.Context, d *domain.Delivery) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO event_deliveries (id, channel, event_name, payload, status, retries, error, created_at, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.Channel, d.EventName, d.Payload, d.Status, d.Retries, nullableString(d.Error), d.CreatedAt, d.ProcessedAt,
	)
	return err
}

func (r *DeliveryRepository) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	d, err := scanDelivery(r.db.QueryRow(ctx,
		`SELECT id, channel, event_name, payload, status, retries, error, created_at, processed_at
		 FROM event_deliveries WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDeliveryNotFound
		}
		return nil, err
	}
	return d, nil
}

// ClaimPending moves up to limit pending deliveries to processing and returns
// them. Concurrent workers never claim the same row.
func (r *DeliveryRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.Delivery, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`WITH cte AS (
			 SELECT id
			 FROM event_deliveries
			 WHERE status = $1
			 ORDER BY created_at ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT $2
		 )
		 UPDATE event_deliveries
		 SET status = $3,
		     error = NULL,
		     processed_at = NULL
		 FROM cte
		 WHERE event_deliveries.id = cte.id
		 RETURNING event_deliveries.id, event_deliveries.channel, event_deliveries.event_name, event_deliveries.payload,
		           event_deliveries.status, event_deliveries.retries, event_deliveries.error,
		           event_deliveries.created_at, event_deliveries.processed_at`,
		domain.DeliveryStatusPending, limit, domain.DeliveryStatusProcessing,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deliveries := make([]*domain.Delivery, 0)
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

func (r *DeliveryRepository) UpdateStatus(ctx context.Context, id string, status domain.DeliveryStatus, errMsg string) error {
	var processedAt *time.Time
	if status == domain.DeliveryStatusDelivered || status == domain.DeliveryStatusFailed {
		now := time.Now().UTC()
		processedAt = &now
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE event_deliveries SET status = $1, error = $2, processed_at = $3 WHERE id = $4`,
		status, nullableString(errMsg), processedAt, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDeliveryNotFound
	}
	return nil
}

func (r *DeliveryRepository) IncrementRetries(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE event_deliveries SET retries = retries + 1 WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDeliveryNotFound
	}
	return nil
}

func scanDelivery(row pgx.Row) (*domain.Delivery, error) {
	var d domain.Delivery
	var errMsg pgtype.Text
	if err := row.Scan(&d.ID, &d.Channel, &d.EventName, &d.Payload, &d.Status, &d.Retries, &errMsg, &d.CreatedAt, &d.ProcessedAt); err != nil {
		return nil, err
	}
	if errMsg.Valid {
		d.Error = errMsg.String
	}
	return &d, nil
}
