package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/replygate/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SettingsRepository stores the single ai_settings row.
type SettingsRepository struct {
	db dbtx
}

func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{db: pool}
}

func (r *SettingsRepository) Get(ctx context.Context) (*domain.AISettings, error) {
	var s domain.AISettings
	err := r.db.QueryRow(ctx,
		`SELECT model, temperature, max_tokens, auto_send_threshold, require_review_below, brand_voice
		 FROM ai_settings WHERE id = 1`,
	).Scan(&s.Model, &s.Temperature, &s.MaxTokens, &s.AutoSendThreshold, &s.RequireReviewBelow, &s.BrandVoice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSettingsNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *SettingsRepository) Save(ctx context.Context, s *domain.AISettings) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO ai_settings (id, model, temperature, max_tokens, auto_send_threshold, require_review_below, brand_voice, updated_at)
		 VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
			model = EXCLUDED.model,
			temperature = EXCLUDED.temperature,
			max_tokens = EXCLUDED.max_tokens,
			auto_send_threshold = EXCLUDED.auto_send_threshold,
			require_review_below = EXCLUDED.require_review_below,
			brand_voice = EXCLUDED.brand_voice,
			updated_at = EXCLUDED.updated_at`,
		s.Model, s.Temperature, s.MaxTokens, s.AutoSendThreshold, s.RequireReviewBelow, s.BrandVoice, time.Now().UTC(),
	)
	return err
}
