package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/referral-commissions/internal/model"
	"github.com/mmeshcher/referral-commissions/internal/notify"
)

var hundred = decimal.NewFromInt(100)

// CascadeAmount вычисляет каскадную комиссию: commission * percent / 100 с округлением до центов.
func CascadeAmount(commission, percent decimal.Decimal) decimal.Decimal {
	return commission.Mul(percent).Div(hundred).Round(2)
}

// AttributeCascade начисляет комиссию пригласившему продавца апортёру. Только один уровень:
// пригласивший пригласившего ничего не получает. Возвращает nil без ошибки, когда
// пригласившего нет, комиссия нулевая, сумма округляется до нуля или запись уже существует.
func (s *Service) AttributeCascade(ctx context.Context, sale *model.Sale, seller *model.Referrer) (*model.CascadeCommission, error) {
	if !seller.HasRecruiter() || !sale.Commission.IsPositive() {
		return nil, nil
	}

	pct, err := s.repo.GetCascadeRate(ctx)
	if err != nil {
		return nil, err
	}

	amount := CascadeAmount(sale.Commission, pct)
	if !amount.IsPositive() {
		return nil, nil
	}

	c := &model.CascadeCommission{
		SaleID:    sale.ID,
		ParrainID: *seller.RecruiterID,
		FilleulID: seller.ID,
		Amount:    amount,
	}

	inserted, err := s.repo.InsertCascadeCommission(ctx, c)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, nil
	}

	s.metrics.CascadeCreated.Inc()
	s.logger.Info("cascade commission recorded",
		zap.String("saleID", sale.ID.String()),
		zap.Int64("parrainID", c.ParrainID),
		zap.String("amount", amount.StringFixed(2)),
	)

	s.send(ctx, c.ParrainID, notify.Message{
		Kind:  notify.KindCascade,
		Title: "Commission cascade",
		Body: fmt.Sprintf("%s %s vous rapporte %s €",
			seller.FirstName, seller.LastName, amount.StringFixed(2)),
	})

	return c, nil
}

// GetCascadeRate возвращает текущий глобальный процент каскада.
func (s *Service) GetCascadeRate(ctx context.Context) (decimal.Decimal, error) {
	return s.repo.GetCascadeRate(ctx)
}

// SetCascadeRate сохраняет глобальный процент каскада. Значения вне [0, 100]
// или с более чем двумя знаками после запятой отклоняются, а не округляются.
func (s *Service) SetCascadeRate(ctx context.Context, pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) || !pct.Equal(pct.Round(2)) {
		return fmt.Errorf("%w: got %s", ErrInvalidCascadeRate, pct.String())
	}
	return s.repo.SetCascadeRate(ctx, pct)
}

// ListCascadeCommissions возвращает каскадные комиссии пригласившего, либо все при parrainID == 0.
func (s *Service) ListCascadeCommissions(ctx context.Context, parrainID int64) ([]model.CascadeCommission, error) {
	return s.repo.ListCascadeCommissions(ctx, parrainID)
}

// MarkCascadePaid отмечает каскадную комиссию выплаченной.
func (s *Service) MarkCascadePaid(ctx context.Context, id int64) error {
	return s.repo.MarkCascadePaid(ctx, id, s.now().UTC())
}

