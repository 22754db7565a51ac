package service

import (
	"context"
	"errors"

	"github.com/cloo-solutions/replygate/internal/domain"
)

// SettingsRepository stores the single AISettings row.
type SettingsRepository interface {
	Get(ctx context.Context) (*domain.AISettings, error)
	Save(ctx context.Context, s *domain.AISettings) error
}

// SettingsService serves AISettings, falling back to configured defaults
// until settings are saved.
type SettingsService struct {
	repo     SettingsRepository
	defaults domain.AISettings
}

func NewSettingsService(repo SettingsRepository, defaults domain.AISettings) *SettingsService {
	return &SettingsService{repo: repo, defaults: defaults}
}

// Get returns the current settings. It is called before every generation.
func (s *SettingsService) Get(ctx context.Context) (domain.AISettings, error) {
	if s.repo == nil {
		return s.defaults, nil
	}
	stored, err := s.repo.Get(ctx)
	if errors.Is(err, domain.ErrSettingsNotFound) {
		return s.defaults, nil
	}
	if err != nil {
		return domain.AISettings{}, err
	}
	return *stored, nil
}

// Update validates and stores settings; they apply from the next generation.
func (s *SettingsService) Update(ctx context.Context, settings domain.AISettings) (domain.AISettings, error) {
	if err := settings.Validate(); err != nil {
		return domain.AISettings{}, err
	}
	if s.repo == nil {
		return domain.AISettings{}, domain.NewDomainError(domain.ErrCodeInternalError, "settings store is not configured")
	}
	if err := s.repo.Save(ctx, &settings); err != nil {
		return domain.AISettings{}, err
	}
	return settings, nil
}
