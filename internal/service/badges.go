package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/referral-commissions/internal/model"
)

func salesCount(n int64) model.BadgeCondition {
	return model.BadgeCondition{Kind: model.BadgeSalesCount, Threshold: decimal.NewFromInt(n)}
}

func commissionTotal(amount int64) model.BadgeCondition {
	return model.BadgeCondition{Kind: model.BadgeCommissionTotal, Threshold: decimal.NewFromInt(amount)}
}

func recruited(n int64) model.BadgeCondition {
	return model.BadgeCondition{Kind: model.BadgeRecruitedCount, Threshold: decimal.NewFromInt(n)}
}

// badgeCatalog: неизменяемый каталог достижений.
var badgeCatalog = []model.Badge{
	{ID: "premier_client", Name: "Premier client", Icon: "🎯",
		Description: "Signer votre premier client", Condition: salesCount(1)},
	{ID: "cinq_clients", Name: "5 clients signés", Icon: "🖐",
		Description: "Signer 5 clients", Condition: salesCount(5)},
	{ID: "dix_clients", Name: "10 clients signés", Icon: "🔟",
		Description: "Signer 10 clients", Condition: salesCount(10)},
	{ID: "commissions_500", Name: "500 € de commissions", Icon: "💶",
		Description: "Cumuler 500 € de commissions", Condition: commissionTotal(500)},
	{ID: "commissions_2000", Name: "2 000 € de commissions", Icon: "💰",
		Description: "Cumuler 2 000 € de commissions", Condition: commissionTotal(2000)},
	{ID: "statut_or", Name: "Apporteur Or", Icon: "🥇",
		Description: "Atteindre le niveau Or",
		Condition:   model.BadgeCondition{Kind: model.BadgeTier, Tier: model.TierGold}},
	{ID: "expert_corp", Name: "Expert M-CORP", Icon: "🏢",
		Description: "Vendre une offre M-CORP",
		Condition:   model.BadgeCondition{Kind: model.BadgeHasSold, Service: model.ServiceCorp}},
	{ID: "recruteur", Name: "Recruteur", Icon: "🤝",
		Description: "Parrainer un apporteur", Condition: recruited(1)},
	{ID: "chef_equipe", Name: "Chef d'équipe", Icon: "👥",
		Description: "Parrainer 5 apporteurs", Condition: recruited(5)},
}

// Badges возвращает копию каталога достижений.
func Badges() []model.Badge {
	out := make([]model.Badge, len(badgeCatalog))
	copy(out, badgeCatalog)
	return out
}

var one = decimal.NewFromInt(1)

// badgeMeasure возвращает текущее значение показателя и цель для условия.
// Условие выполнено, когда current >= target. Неизвестный тип никогда не выполняется.
func badgeMeasure(cond model.BadgeCondition, stats *model.BadgeStats) (current, target decimal.Decimal) {
	switch cond.Kind {
	case model.BadgeSalesCount:
		return decimal.NewFromInt(stats.SalesCount), cond.Threshold
	case model.BadgeCommissionTotal:
		return stats.CommissionTotal, cond.Threshold
	case model.BadgeTier:
		if stats.Tier == cond.Tier {
			return one, one
		}
		return decimal.Zero, one
	case model.BadgeHasSold:
		if stats.ServicesSold[cond.Service] {
			return one, one
		}
		return decimal.Zero, one
	case model.BadgeRecruitedCount:
		return decimal.NewFromInt(stats.RecruitedCount), cond.Threshold
	default:
		return decimal.Zero, one
	}
}

func badgeSatisfied(cond model.BadgeCondition, stats *model.BadgeStats) bool {
	current, target := badgeMeasure(cond, stats)
	return current.GreaterThanOrEqual(target)
}

// EvaluateBadges выдаёт апортёру бейджи, условия которых теперь выполнены.
// Возвращает только реально вставленные записи: параллельная оценка не даёт дублей,
// а проигравшая гонку вставка не считается новой наградой.
func (s *Service) EvaluateBadges(ctx context.Context, referrerID int64) ([]model.Badge, error) {
	stats, err := s.repo.GetBadgeStats(ctx, referrerID)
	if err != nil {
		return nil, fmt.Errorf("badge stats: %w", err)
	}

	earned, err := s.repo.ListEarnedBadges(ctx, referrerID)
	if err != nil {
		return nil, fmt.Errorf("earned badges: %w", err)
	}
	have := make(map[string]bool, len(earned))
	for _, e := range earned {
		have[e.BadgeID] = true
	}

	var (
		awarded []model.Badge
		errs    []error
	)
	for _, badge := range badgeCatalog {
		if have[badge.ID] || !badgeSatisfied(badge.Condition, stats) {
			continue
		}

		inserted, err := s.repo.AwardBadge(ctx, referrerID, badge.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("award %s: %w", badge.ID, err))
			continue
		}
		if inserted {
			s.metrics.BadgesAwarded.WithLabelValues(badge.ID).Inc()
			awarded = append(awarded, badge)
		}
	}

	return awarded, errors.Join(errs...)
}

// BadgeProgress возвращает состояние всех бейджей каталога для апортёра.
// Для неполученных current ограничен сверху значением target.
func (s *Service) BadgeProgress(ctx context.Context, referrerID int64) ([]model.BadgeProgress, error) {
	stats, err := s.repo.GetBadgeStats(ctx, referrerID)
	if err != nil {
		return nil, err
	}

	earned, err := s.repo.ListEarnedBadges(ctx, referrerID)
	if err != nil {
		return nil, err
	}
	earnedAt := make(map[string]model.EarnedBadge, len(earned))
	for _, e := range earned {
		earnedAt[e.BadgeID] = e
	}

	res := make([]model.BadgeProgress, 0, len(badgeCatalog))
	for _, badge := range badgeCatalog {
		current, target := badgeMeasure(badge.Condition, stats)
		p := model.BadgeProgress{
			Badge:   badge,
			Current: decimal.Min(current, target),
			Target:  target,
		}
		if e, ok := earnedAt[badge.ID]; ok {
			at := e.EarnedAt
			p.Earned = true
			p.EarnedAt = &at
			p.Current = target
		}
		res = append(res, p)
	}

	return res, nil
}
