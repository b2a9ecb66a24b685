package service

import (
	"context"
	"fmt"

	"github.com/mmeshcher/referral-commissions/internal/model"
)

const (
	silverSalesThreshold = 3
	goldSalesThreshold   = 10
)

// TierFor вычисляет уровень по числу продаж за всё время.
func TierFor(salesCount int64) model.Tier {
	switch {
	case salesCount >= goldSalesThreshold:
		return model.TierGold
	case salesCount >= silverSalesThreshold:
		return model.TierSilver
	default:
		return model.TierBronze
	}
}

// RefreshTier пересчитывает уровень апортёра с нуля и сохраняет его.
func (s *Service) RefreshTier(ctx context.Context, referrerID int64) (model.Tier, error) {
	tier, err := s.repo.RecomputeTier(ctx, referrerID, TierFor)
	if err != nil {
		return "", fmt.Errorf("recompute tier: %w", err)
	}
	return tier, nil
}
