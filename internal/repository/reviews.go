package repository

import (
	"context"

	"github.com/cloo-solutions/replygate/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReviewRepository is the append-only log of applied review decisions.
type ReviewRepository struct {
	db dbtx
}

func NewReviewRepository(pool *pgxpool.Pool) *ReviewRepository {
	return &ReviewRepository{db: pool}
}

func NewReviewRepositoryWithTx(tx pgx.Tx) *ReviewRepository {
	return &ReviewRepository{db: tx}
}

func (r *ReviewRepository) Create(ctx context.Context, d *domain.ReviewDecision) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO response_reviews (id, response_id, action, previous_status, new_status, actor, reason, previous_text, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.ResponseID, d.Action, nullableString(string(d.PreviousStatus)), d.NewStatus, d.Actor,
		nullableString(d.Reason), nullableString(d.PreviousText), d.CreatedAt,
	)
	return err
}

func (r *ReviewRepository) ListByResponse(ctx context.Context, responseID string) ([]*domain.ReviewDecision, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, response_id, action, previous_status, new_status, actor, reason, previous_text, created_at
		 FROM response_reviews WHERE response_id = $1 ORDER BY created_at ASC, id ASC`,
		responseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	decisions := make([]*domain.ReviewDecision, 0)
	for rows.Next() {
		var d domain.ReviewDecision
		var previousStatus, reason, previousText *string
		if err := rows.Scan(&d.ID, &d.ResponseID, &d.Action, &previousStatus, &d.NewStatus, &d.Actor,
			&reason, &previousText, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.PreviousStatus = domain.ResponseStatus(derefString(previousStatus))
		d.Reason = derefString(reason)
		d.PreviousText = derefString(previousText)
		decisions = append(decisions, &d)
	}
	return decisions, rows.Err()
}
