package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/prohmpiriya/botfleet/internal/repository"
)

// KeyDefaultPrice is the system_config key of the global subscription price
const KeyDefaultPrice = "default_price"

// SettingsService reads and writes global settings
type SettingsService interface {
	DefaultPrice(ctx context.Context) (float64, error)
	SetDefaultPrice(ctx context.Context, price float64) error
}

type settingsService struct {
	repo     repository.SettingsRepository
	fallback float64
}

// NewSettingsService creates a SettingsService; fallback applies until an operator sets a price
func NewSettingsService(repo repository.SettingsRepository, fallback float64) SettingsService {
	return &settingsService{repo: repo, fallback: fallback}
}

func (s *settingsService) DefaultPrice(ctx context.Context) (float64, error) {
	raw, ok, err := s.repo.Get(ctx, KeyDefaultPrice)
	if err != nil {
		return 0, fmt.Errorf("failed to read default price: %w", err)
	}
	if !ok {
		return s.fallback, nil
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("stored default price %q is not a number: %w", raw, err)
	}
	return price, nil
}

func (s *settingsService) SetDefaultPrice(ctx context.Context, price float64) error {
	if !validPrice(price) {
		return ErrInvalidPrice
	}
	return s.repo.Set(ctx, KeyDefaultPrice, strconv.FormatFloat(price, 'f', 2, 64))
}
