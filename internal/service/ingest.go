package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/referral-commissions/internal/model"
	"github.com/mmeshcher/referral-commissions/internal/notify"
	"github.com/mmeshcher/referral-commissions/internal/repository"
	"github.com/mmeshcher/referral-commissions/internal/validation"
)

// SaleInput: входные данные продажи. Amount == nil означает отсутствующее поле.
type SaleInput struct {
	ReferrerCode string
	ClientName   string
	Service      model.Service
	Amount       *decimal.Decimal
	AdminNote    string
}

func validateSale(in *SaleInput) error {
	in.ClientName = validation.NormalizeText(in.ClientName)
	switch {
	case in.ClientName == "":
		return invalidInput("client_name is required")
	case in.Service == "":
		return invalidInput("service is required")
	case !in.Service.Valid():
		return invalidInput("unknown service %q", in.Service)
	case in.Amount == nil:
		return invalidInput("amount is required")
	case !in.Amount.IsPositive():
		return invalidInput("amount must be positive")
	case !model.FitsCents(*in.Amount):
		return invalidInput("amount %s out of range", in.Amount)
	}
	return nil
}

func (s *Service) lookupReferrer(ctx context.Context, code string) (*model.Referrer, error) {
	code = validation.NormalizeText(code)
	if !validation.IsValidReferralCode(code) {
		return nil, ErrReferrerNotEligible
	}

	ref, err := s.repo.GetReferrerByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrReferrerNotFound) {
			return nil, ErrReferrerNotEligible
		}
		return nil, err
	}
	return ref, nil
}

// Ingest принимает продажу из вебхука и запускает полный конвейер начислений.
// Синхронно выполняются только проверки, расчёт комиссии и сохранение продажи;
// уровень, каскад, бейджи, челленджи и уведомления выполняются в фоне,
// а их ошибки логируются и не влияют на результат.
func (s *Service) Ingest(ctx context.Context, in SaleInput) (*model.Sale, error) {
	ref, err := s.lookupReferrer(ctx, in.ReferrerCode)
	if err != nil {
		return nil, err
	}
	if ref.Status != model.ReferrerStatusActive {
		return nil, fmt.Errorf("%w: status %s", ErrReferrerNotEligible, ref.Status)
	}

	in.AdminNote = ""
	if err := validateSale(&in); err != nil {
		return nil, err
	}

	return s.recordSale(ctx, ref, in, model.SaleSourceWebhook, true)
}

// CreateAdminSale сохраняет продажу, введённую администратором. Статус апортёра не проверяется,
// чтобы можно было вносить исправления. enrich == nil означает политику из конфигурации;
// без обогащения пересчитывается только уровень.
func (s *Service) CreateAdminSale(ctx context.Context, in SaleInput, enrich *bool) (*model.Sale, error) {
	ref, err := s.lookupReferrer(ctx, in.ReferrerCode)
	if err != nil {
		return nil, err
	}

	in.AdminNote = validation.NormalizeText(in.AdminNote)
	if err := validateSale(&in); err != nil {
		return nil, err
	}

	full := s.adminEnrich
	if enrich != nil {
		full = *enrich
	}

	return s.recordSale(ctx, ref, in, model.SaleSourceAdmin, full)
}

func (s *Service) recordSale(ctx context.Context, ref *model.Referrer, in SaleInput, source model.SaleSource, full bool) (*model.Sale, error) {
	commission, err := s.ResolveRate(ctx, ref.ID, in.Service)
	if err != nil {
		return nil, fmt.Errorf("resolve rate: %w", err)
	}

	sale := &model.Sale{
		ID:         uuid.New(),
		ReferrerID: ref.ID,
		ClientName: in.ClientName,
		Service:    in.Service,
		Amount:     in.Amount.Round(2),
		Commission: commission,
		AdminNote:  in.AdminNote,
		Source:     source,
	}
	if err := s.repo.CreateSale(ctx, sale); err != nil {
		return nil, fmt.Errorf("create sale: %w", err)
	}

	s.metrics.SalesIngested.WithLabelValues(string(source)).Inc()
	s.logger.Info("sale recorded",
		zap.String("saleID", sale.ID.String()),
		zap.Int64("referrerID", ref.ID),
		zap.String("service", string(sale.Service)),
		zap.String("commission", commission.StringFixed(2)),
		zap.String("source", string(source)),
	)

	snapshot := *sale
	referrer := *ref
	s.detach(ctx, func(ctx context.Context) {
		s.enrich(ctx, &referrer, &snapshot, full)
	})

	return sale, nil
}

// enrich выполняет шаги после сохранения продажи. Каждый шаг независим:
// ошибка логируется, учитывается в метриках, и конвейер продолжается.
func (s *Service) enrich(ctx context.Context, ref *model.Referrer, sale *model.Sale, full bool) {
	logger := s.logger.With(
		zap.String("saleID", sale.ID.String()),
		zap.Int64("referrerID", ref.ID),
	)
	failed := func(step string, err error) {
		s.metrics.EnrichmentFailures.WithLabelValues(step).Inc()
		logger.Error("sale enrichment step failed", zap.String("step", step), zap.Error(err))
	}

	if _, err := s.RefreshTier(ctx, ref.ID); err != nil {
		failed("tier", err)
	}

	if !full {
		return
	}

	if ref.HasRecruiter() {
		if _, err := s.AttributeCascade(ctx, sale, ref); err != nil {
			failed("cascade", err)
		}
	}

	badges, err := s.EvaluateBadges(ctx, ref.ID)
	if err != nil {
		failed("badges", err)
	}
	for _, b := range badges {
		s.send(ctx, ref.ID, notify.Message{
			Kind:  notify.KindBadge,
			Title: fmt.Sprintf("%s %s", b.Icon, b.Name),
			Body:  b.Description,
		})
	}

	challenges, err := s.EvaluateChallenges(ctx, ref.ID, validation.MonthOf(s.now()))
	if err != nil {
		failed("challenges", err)
	}
	for _, c := range challenges {
		s.send(ctx, ref.ID, notify.Message{
			Kind:  notify.KindChallengeComplete,
			Title: c.Title,
			Body:  fmt.Sprintf("Challenge relevé ! Bonus : %s €", c.Bonus.StringFixed(2)),
		})
	}

	s.send(ctx, ref.ID, notify.Message{
		Kind:  notify.KindSale,
		Title: "Nouvelle vente enregistrée",
		Body: fmt.Sprintf("%s (%s) : commission de %s €",
			sale.ClientName, sale.Service, sale.Commission.StringFixed(2)),
	})
}
