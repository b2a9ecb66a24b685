package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/mail"

	"github.com/google/uuid"

	"github.com/mmeshcher/referral-commissions/internal/model"
	"github.com/mmeshcher/referral-commissions/internal/repository"
	"github.com/mmeshcher/referral-commissions/internal/validation"
)

const (
	referralCodeDigits   = 7
	referralCodeAttempts = 5
)

// RegistrationInput: данные регистрации апортёра.
type RegistrationInput struct {
	FirstName     string
	LastName      string
	Email         string
	RecruiterCode string
}

// Register создаёт апортёра в статусе pending с новым реферальным кодом.
// Пригласивший, если указан, должен существовать.
func (s *Service) Register(ctx context.Context, in RegistrationInput) (*model.Referrer, error) {
	ref := &model.Referrer{
		FirstName: validation.NormalizeText(in.FirstName),
		LastName:  validation.NormalizeText(in.LastName),
		Email:     validation.NormalizeText(in.Email),
		Status:    model.ReferrerStatusPending,
		Tier:      model.TierBronze,
	}

	switch {
	case ref.FirstName == "":
		return nil, invalidInput("first_name is required")
	case ref.LastName == "":
		return nil, invalidInput("last_name is required")
	case ref.Email == "":
		return nil, invalidInput("email is required")
	}
	if _, err := mail.ParseAddress(ref.Email); err != nil {
		return nil, invalidInput("email is malformed")
	}

	if code := validation.NormalizeText(in.RecruiterCode); code != "" {
		recruiter, err := s.repo.GetReferrerByCode(ctx, code)
		if err != nil {
			if errors.Is(err, repository.ErrReferrerNotFound) {
				return nil, ErrUnknownRecruiter
			}
			return nil, err
		}
		ref.RecruiterID = &recruiter.ID
	}

	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		code, err := newReferralCode()
		if err != nil {
			return nil, err
		}
		ref.Code = code

		err = s.repo.CreateReferrer(ctx, ref)
		if err == nil {
			return ref, nil
		}
		if !errors.Is(err, repository.ErrCodeExists) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("generate referral code: %w", repository.ErrCodeExists)
}

// newReferralCode возвращает случайный числовой код с контрольной цифрой Луна.
func newReferralCode() (string, error) {
	limit := big.NewInt(9_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("random code: %w", err)
	}
	base := fmt.Sprintf("%0*d", referralCodeDigits, n.Int64()+1_000_000)
	return validation.WithCheckDigit(base), nil
}

// GetReferrer возвращает апортёра по идентификатору.
func (s *Service) GetReferrer(ctx context.Context, id int64) (*model.Referrer, error) {
	return s.repo.GetReferrer(ctx, id)
}

// ListReferrers возвращает всех апортёров.
func (s *Service) ListReferrers(ctx context.Context) ([]model.Referrer, error) {
	return s.repo.ListReferrers(ctx)
}

// SetReferrerStatus переводит апортёра в один из статусов pending, active, suspended.
func (s *Service) SetReferrerStatus(ctx context.Context, id int64, status model.ReferrerStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.repo.UpdateReferrerStatus(ctx, id, status)
}

// ListSales возвращает продажи апортёра, либо все при referrerID == 0.
func (s *Service) ListSales(ctx context.Context, referrerID int64) ([]model.Sale, error) {
	return s.repo.ListSales(ctx, referrerID)
}

// MarkSalePaid отмечает комиссию по продаже выплаченной.
func (s *Service) MarkSalePaid(ctx context.Context, id uuid.UUID) error {
	return s.repo.MarkSalePaid(ctx, id, s.now().UTC())
}

// DeleteSale удаляет ошибочную продажу и пересчитывает уровень апортёра.
// Полученные бейджи, выполненные челленджи и каскадные комиссии сохраняются.
func (s *Service) DeleteSale(ctx context.Context, id uuid.UUID) error {
	referrerID, err := s.repo.DeleteSale(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.RefreshTier(ctx, referrerID); err != nil {
		return fmt.Errorf("refresh tier after delete: %w", err)
	}
	return nil
}
