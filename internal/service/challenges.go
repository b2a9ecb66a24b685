package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/referral-commissions/internal/model"
	"github.com/mmeshcher/referral-commissions/internal/validation"
)

// maxThreshold: граница колонки NUMERIC(14, 2).
var maxThreshold = decimal.New(1, 12)

// challengeMeasure возвращает месячный показатель, который сравнивается с порогом условия.
func challengeMeasure(cond model.ChallengeCondition, stats *model.MonthStats) decimal.Decimal {
	switch cond.Kind {
	case model.ChallengeSalesCount:
		return decimal.NewFromInt(stats.SalesCount)
	case model.ChallengeServiceCount:
		return decimal.NewFromInt(stats.ServiceCounts[cond.Service])
	case model.ChallengeCommissionTotal:
		return stats.CommissionTotal
	default:
		return decimal.Zero
	}
}

// EvaluateChallenges фиксирует челленджи месяца, которые апортёр только что выполнил.
// Записи о выполнении никогда не отзываются; бонус отмечается администратором отдельно.
func (s *Service) EvaluateChallenges(ctx context.Context, referrerID int64, month string) ([]model.Challenge, error) {
	open, err := s.repo.ListOpenChallenges(ctx, referrerID, month)
	if err != nil {
		return nil, fmt.Errorf("open challenges: %w", err)
	}
	if len(open) == 0 {
		return nil, nil
	}

	stats, err := s.repo.GetMonthStats(ctx, referrerID, month)
	if err != nil {
		return nil, fmt.Errorf("month stats: %w", err)
	}

	var (
		completed []model.Challenge
		errs      []error
	)
	for _, c := range open {
		if challengeMeasure(c.Condition, stats).LessThan(c.Condition.Threshold) {
			continue
		}

		inserted, err := s.repo.RecordChallengeCompletion(ctx, c.ID, referrerID)
		if err != nil {
			errs = append(errs, fmt.Errorf("complete challenge %d: %w", c.ID, err))
			continue
		}
		if inserted {
			s.metrics.ChallengesCompleted.Inc()
			completed = append(completed, c)
		}
	}

	return completed, errors.Join(errs...)
}

// ChallengeInput: данные для создания челленджа.
type ChallengeInput struct {
	Title       string
	Description string
	Month       string
	Kind        model.ChallengeConditionKind
	Threshold   decimal.Decimal
	Service     model.Service
	Bonus       decimal.Decimal
}

// CreateChallenge проверяет и сохраняет новый активный челлендж.
func (s *Service) CreateChallenge(ctx context.Context, in ChallengeInput) (*model.Challenge, error) {
	title := validation.NormalizeText(in.Title)
	switch {
	case title == "":
		return nil, invalidInput("title is required")
	case !validation.IsValidMonth(in.Month):
		return nil, invalidInput("month must be YYYY-MM")
	case !in.Kind.Valid():
		return nil, invalidInput("unknown condition type %q", in.Kind)
	case !in.Threshold.IsPositive():
		return nil, invalidInput("threshold must be positive")
	case !in.Threshold.LessThan(maxThreshold) || !in.Threshold.Equal(in.Threshold.Round(2)):
		return nil, invalidInput("threshold %s out of range", in.Threshold)
	case in.Bonus.IsNegative():
		return nil, invalidInput("bonus must not be negative")
	case !in.Bonus.Equal(in.Bonus.Round(2)) || !model.FitsCents(in.Bonus):
		return nil, invalidInput("bonus %s out of range", in.Bonus)
	}

	service := in.Service
	if in.Kind == model.ChallengeServiceCount {
		if !service.Valid() {
			return nil, invalidInput("unknown service %q", service)
		}
	} else {
		service = ""
	}

	c := &model.Challenge{
		Title:       title,
		Description: validation.NormalizeText(in.Description),
		Month:       in.Month,
		Active:      true,
		Condition: model.ChallengeCondition{
			Kind:      in.Kind,
			Threshold: in.Threshold,
			Service:   service,
		},
		Bonus: in.Bonus,
	}
	if err := s.repo.CreateChallenge(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListChallenges возвращает челленджи месяца, либо все при пустом month.
func (s *Service) ListChallenges(ctx context.Context, month string) ([]model.Challenge, error) {
	if month != "" && !validation.IsValidMonth(month) {
		return nil, invalidInput("month must be YYYY-MM")
	}
	return s.repo.ListChallenges(ctx, month)
}

// SetChallengeActive включает или выключает челлендж.
func (s *Service) SetChallengeActive(ctx context.Context, id int64, active bool) error {
	return s.repo.SetChallengeActive(ctx, id, active)
}

// ListChallengeCompletions возвращает выполнения челленджа.
func (s *Service) ListChallengeCompletions(ctx context.Context, challengeID int64) ([]model.ChallengeCompletion, error) {
	return s.repo.ListChallengeCompletions(ctx, challengeID)
}

// MarkChallengeBonusPaid отмечает бонус за челлендж выплаченным.
func (s *Service) MarkChallengeBonusPaid(ctx context.Context, challengeID, referrerID int64) error {
	return s.repo.MarkChallengeBonusPaid(ctx, challengeID, referrerID, s.now().UTC())
}

// ReferrerChallenges возвращает активные челленджи текущего месяца с отметками о выполнении.
func (s *Service) ReferrerChallenges(ctx context.Context, referrerID int64) ([]model.ChallengeStatus, error) {
	month := validation.MonthOf(s.now())

	challenges, err := s.repo.ListChallenges(ctx, month)
	if err != nil {
		return nil, err
	}
	completions, err := s.repo.ListReferrerCompletions(ctx, referrerID)
	if err != nil {
		return nil, err
	}

	done := make(map[int64]model.ChallengeCompletion, len(completions))
	for _, c := range completions {
		done[c.ChallengeID] = c
	}

	res := make([]model.ChallengeStatus, 0, len(challenges))
	for _, c := range challenges {
		if !c.Active {
			continue
		}
		st := model.ChallengeStatus{Challenge: c}
		if comp, ok := done[c.ID]; ok {
			at := comp.CompletedAt
			st.Completed = true
			st.CompletedAt = &at
			st.BonusPaid = comp.BonusPaid
		}
		res = append(res, st)
	}
	return res, nil
}
