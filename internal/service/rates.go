package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/referral-commissions/internal/model"
)

// ResolveRate возвращает комиссию апортёра за продукт: индивидуальная ставка
// (в том числе явный ноль), иначе глобальная, иначе ноль.
// Отсутствие настроек не является ошибкой; ошибку даёт только хранилище.
func (s *Service) ResolveRate(ctx context.Context, referrerID int64, service model.Service) (decimal.Decimal, error) {
	amount, ok, err := s.repo.GetReferrerRate(ctx, referrerID, service)
	if err != nil {
		return decimal.Zero, err
	}
	if ok {
		return amount, nil
	}

	amount, ok, err = s.repo.GetGlobalRate(ctx, service)
	if err != nil {
		return decimal.Zero, err
	}
	if ok {
		return amount, nil
	}

	return decimal.Zero, nil
}

// GetGlobalRates возвращает глобальные ставки по всему каталогу; незаданные равны нулю.
func (s *Service) GetGlobalRates(ctx context.Context) ([]model.RateRow, error) {
	global, err := s.repo.ListGlobalRates(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]model.RateRow, 0, len(model.Services))
	for _, svc := range model.Services {
		rows = append(rows, model.RateRow{Service: svc, Amount: global[svc]})
	}
	return rows, nil
}

// GetReferrerRates возвращает объединённую таблицу ставок апортёра с признаком is_custom.
func (s *Service) GetReferrerRates(ctx context.Context, referrerID int64) ([]model.RateRow, error) {
	if _, err := s.repo.GetReferrer(ctx, referrerID); err != nil {
		return nil, err
	}

	global, err := s.repo.ListGlobalRates(ctx)
	if err != nil {
		return nil, err
	}
	custom, err := s.repo.ListReferrerRates(ctx, referrerID)
	if err != nil {
		return nil, err
	}

	rows := make([]model.RateRow, 0, len(model.Services))
	for _, svc := range model.Services {
		if amount, ok := custom[svc]; ok {
			rows = append(rows, model.RateRow{Service: svc, Amount: amount, IsCustom: true})
			continue
		}
		rows = append(rows, model.RateRow{Service: svc, Amount: global[svc]})
	}
	return rows, nil
}

func validateRates(rates map[model.Service]decimal.Decimal) error {
	for svc, amount := range rates {
		if !svc.Valid() {
			return invalidInput("unknown service %q", svc)
		}
		if amount.IsNegative() {
			return invalidInput("rate for %s must not be negative", svc)
		}
		if !amount.Equal(amount.Round(2)) {
			return invalidInput("rate for %s has more than two decimals", svc)
		}
		if !model.FitsCents(amount) {
			return invalidInput("rate for %s out of range", svc)
		}
	}
	return nil
}

// UpsertGlobalRates перезаписывает глобальные ставки. Изменения видны следующей же продаже.
func (s *Service) UpsertGlobalRates(ctx context.Context, rates map[model.Service]decimal.Decimal) error {
	if err := validateRates(rates); err != nil {
		return err
	}
	if err := s.repo.UpsertGlobalRates(ctx, rates); err != nil {
		return fmt.Errorf("upsert global rates: %w", err)
	}
	return nil
}

// UpsertReferrerRates перезаписывает индивидуальные ставки апортёра.
func (s *Service) UpsertReferrerRates(ctx context.Context, referrerID int64, rates map[model.Service]decimal.Decimal) error {
	if err := validateRates(rates); err != nil {
		return err
	}
	if _, err := s.repo.GetReferrer(ctx, referrerID); err != nil {
		return err
	}
	if err := s.repo.UpsertReferrerRates(ctx, referrerID, rates); err != nil {
		return fmt.Errorf("upsert referrer rates: %w", err)
	}
	return nil
}

// DeleteReferrerRates удаляет все индивидуальные ставки апортёра.
func (s *Service) DeleteReferrerRates(ctx context.Context, referrerID int64) error {
	if _, err := s.repo.GetReferrer(ctx, referrerID); err != nil {
		return err
	}
	return s.repo.DeleteReferrerRates(ctx, referrerID)
}
