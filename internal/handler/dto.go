package handler

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/referral-commissions/internal/model"
)

// money выводит сумму JSON-числом с двумя знаками после запятой.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

type referrerResponse struct {
	ID          int64  `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Code        string `json:"referral_code"`
	Status      string `json:"status"`
	Tier        string `json:"tier"`
	RecruiterID *int64 `json:"recruiter_id,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func toReferrerResponse(r *model.Referrer) referrerResponse {
	return referrerResponse{
		ID:          r.ID,
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		Email:       r.Email,
		Code:        r.Code,
		Status:      string(r.Status),
		Tier:        string(r.Tier),
		RecruiterID: r.RecruiterID,
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
	}
}

type saleResponse struct {
	ID         string      `json:"id"`
	ReferrerID int64       `json:"referrer_id"`
	ClientName string      `json:"client_name"`
	Service    string      `json:"service"`
	Amount     json.Number `json:"amount"`
	Commission json.Number `json:"commission"`
	Paid       bool        `json:"paid"`
	PaidAt     *string     `json:"paid_at,omitempty"`
	AdminNote  string      `json:"admin_note,omitempty"`
	Source     string      `json:"source"`
	CreatedAt  string      `json:"created_at"`
}

func toSaleResponse(s *model.Sale) saleResponse {
	return saleResponse{
		ID:         s.ID.String(),
		ReferrerID: s.ReferrerID,
		ClientName: s.ClientName,
		Service:    string(s.Service),
		Amount:     money(s.Amount),
		Commission: money(s.Commission),
		Paid:       s.Paid,
		PaidAt:     formatTime(s.PaidAt),
		AdminNote:  s.AdminNote,
		Source:     string(s.Source),
		CreatedAt:  s.CreatedAt.Format(time.RFC3339),
	}
}

type rateResponse struct {
	Service  string      `json:"service"`
	Amount   json.Number `json:"amount"`
	IsCustom bool        `json:"is_custom"`
}

func toRateResponses(rows []model.RateRow) []rateResponse {
	resp := make([]rateResponse, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, rateResponse{
			Service:  string(row.Service),
			Amount:   money(row.Amount),
			IsCustom: row.IsCustom,
		})
	}
	return resp
}

type cascadeResponse struct {
	ID        int64       `json:"id"`
	SaleID    string      `json:"sale_id"`
	ParrainID int64       `json:"parrain_id"`
	FilleulID int64       `json:"filleul_id"`
	Amount    json.Number `json:"amount"`
	Paid      bool        `json:"paid"`
	PaidAt    *string     `json:"paid_at,omitempty"`
	CreatedAt string      `json:"created_at"`
}

func toCascadeResponses(list []model.CascadeCommission) []cascadeResponse {
	resp := make([]cascadeResponse, 0, len(list))
	for _, c := range list {
		resp = append(resp, cascadeResponse{
			ID:        c.ID,
			SaleID:    c.SaleID.String(),
			ParrainID: c.ParrainID,
			FilleulID: c.FilleulID,
			Amount:    money(c.Amount),
			Paid:      c.Paid,
			PaidAt:    formatTime(c.PaidAt),
			CreatedAt: c.CreatedAt.Format(time.RFC3339),
		})
	}
	return resp
}

type badgeResponse struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Icon        string      `json:"icon"`
	Description string      `json:"description"`
	Earned      bool        `json:"earned"`
	EarnedAt    *string     `json:"earned_at,omitempty"`
	Current     json.Number `json:"current"`
	Target      json.Number `json:"target"`
}

func toBadgeResponses(list []model.BadgeProgress) []badgeResponse {
	resp := make([]badgeResponse, 0, len(list))
	for _, p := range list {
		resp = append(resp, badgeResponse{
			ID:          p.Badge.ID,
			Name:        p.Badge.Name,
			Icon:        p.Badge.Icon,
			Description: p.Badge.Description,
			Earned:      p.Earned,
			EarnedAt:    formatTime(p.EarnedAt),
			Current:     json.Number(p.Current.String()),
			Target:      json.Number(p.Target.String()),
		})
	}
	return resp
}

type challengeResponse struct {
	ID            int64       `json:"id"`
	Title         string      `json:"title"`
	Description   string      `json:"description,omitempty"`
	Month         string      `json:"month"`
	Active        bool        `json:"active"`
	ConditionType string      `json:"condition_type"`
	Threshold     json.Number `json:"threshold"`
	Service       string      `json:"service,omitempty"`
	Bonus         json.Number `json:"bonus"`
	CreatedAt     string      `json:"created_at"`
}

func toChallengeResponse(c *model.Challenge) challengeResponse {
	return challengeResponse{
		ID:            c.ID,
		Title:         c.Title,
		Description:   c.Description,
		Month:         c.Month,
		Active:        c.Active,
		ConditionType: string(c.Condition.Kind),
		Threshold:     json.Number(c.Condition.Threshold.String()),
		Service:       string(c.Condition.Service),
		Bonus:         money(c.Bonus),
		CreatedAt:     c.CreatedAt.Format(time.RFC3339),
	}
}

type challengeStatusResponse struct {
	challengeResponse
	Completed   bool    `json:"completed"`
	CompletedAt *string `json:"completed_at,omitempty"`
	BonusPaid   bool    `json:"bonus_paid"`
}

type completionResponse struct {
	ChallengeID int64   `json:"challenge_id"`
	ReferrerID  int64   `json:"referrer_id"`
	CompletedAt string  `json:"completed_at"`
	BonusPaid   bool    `json:"bonus_paid"`
	BonusPaidAt *string `json:"bonus_paid_at,omitempty"`
}
