package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/referral-commissions/internal/model"
	"github.com/mmeshcher/referral-commissions/internal/service"
)

// ratesRequest: карта "код продукта -> сумма комиссии".
type ratesRequest map[model.Service]decimal.Decimal

// GetGlobalRates возвращает глобальные ставки по всему каталогу.
func (h *Handler) GetGlobalRates(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.GetGlobalRates(r.Context())
	if err != nil {
		h.writeError(w, err, "get global rates error")
		return
	}
	writeJSON(w, http.StatusOK, toRateResponses(rows))
}

// PutGlobalRates перезаписывает переданные глобальные ставки.
func (h *Handler) PutGlobalRates(w http.ResponseWriter, r *http.Request) {
	var req ratesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.UpsertGlobalRates(r.Context(), req); err != nil {
		h.writeError(w, err, "upsert global rates error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetReferrerRates возвращает объединённую таблицу ставок апортёра.
func (h *Handler) GetReferrerRates(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	rows, err := h.service.GetReferrerRates(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get referrer rates error", zap.Int64("referrerID", id))
		return
	}
	writeJSON(w, http.StatusOK, toRateResponses(rows))
}

// PutReferrerRates перезаписывает индивидуальные ставки апортёра.
func (h *Handler) PutReferrerRates(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var req ratesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.UpsertReferrerRates(r.Context(), id, req); err != nil {
		h.writeError(w, err, "upsert referrer rates error", zap.Int64("referrerID", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteReferrerRates возвращает апортёра к глобальным ставкам.
func (h *Handler) DeleteReferrerRates(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteReferrerRates(r.Context(), id); err != nil {
		h.writeError(w, err, "delete referrer rates error", zap.Int64("referrerID", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type cascadeRateBody struct {
	Percent *decimal.Decimal `json:"percent"`
}

type cascadeRateResponse struct {
	Percent json.Number `json:"percent"`
}

// GetCascadeRate возвращает процент каскада.
func (h *Handler) GetCascadeRate(w http.ResponseWriter, r *http.Request) {
	pct, err := h.service.GetCascadeRate(r.Context())
	if err != nil {
		h.writeError(w, err, "get cascade rate error")
		return
	}
	writeJSON(w, http.StatusOK, cascadeRateResponse{Percent: money(pct)})
}

// PutCascadeRate задаёт процент каскада в диапазоне [0, 100].
func (h *Handler) PutCascadeRate(w http.ResponseWriter, r *http.Request) {
	var req cascadeRateBody
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Percent == nil {
		http.Error(w, "percent is required", http.StatusBadRequest)
		return
	}

	if err := h.service.SetCascadeRate(r.Context(), *req.Percent); err != nil {
		h.writeError(w, err, "set cascade rate error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCascadeCommissions возвращает все каскадные комиссии.
func (h *Handler) ListCascadeCommissions(w http.ResponseWriter, r *http.Request) {
	h.writeCascade(w, r, 0)
}

// MarkCascadePaid отмечает каскадную комиссию выплаченной.
func (h *Handler) MarkCascadePaid(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.MarkCascadePaid(r.Context(), id); err != nil {
		h.writeError(w, err, "mark cascade paid error", zap.Int64("cascadeID", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type challengeRequest struct {
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Month         string          `json:"month"`
	ConditionType string          `json:"condition_type"`
	Threshold     decimal.Decimal `json:"threshold"`
	Service       string          `json:"service"`
	Bonus         decimal.Decimal `json:"bonus"`
}

// CreateChallenge создаёт челлендж на месяц.
func (h *Handler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.service.CreateChallenge(r.Context(), service.ChallengeInput{
		Title:       req.Title,
		Description: req.Description,
		Month:       req.Month,
		Kind:        model.ChallengeConditionKind(req.ConditionType),
		Threshold:   req.Threshold,
		Service:     model.Service(req.Service),
		Bonus:       req.Bonus,
	})
	if err != nil {
		h.writeError(w, err, "create challenge error")
		return
	}
	writeJSON(w, http.StatusCreated, toChallengeResponse(c))
}

// ListChallenges возвращает челленджи месяца из параметра month или все.
func (h *Handler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")

	list, err := h.service.ListChallenges(r.Context(), month)
	if err != nil {
		h.writeError(w, err, "list challenges error", zap.String("month", month))
		return
	}

	resp := make([]challengeResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toChallengeResponse(&list[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

type activeRequest struct {
	Active *bool `json:"active"`
}

// SetChallengeActive включает или выключает челлендж.
func (h *Handler) SetChallengeActive(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var req activeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Active == nil {
		http.Error(w, "active is required", http.StatusBadRequest)
		return
	}

	if err := h.service.SetChallengeActive(r.Context(), id, *req.Active); err != nil {
		h.writeError(w, err, "set challenge active error", zap.Int64("challengeID", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListChallengeCompletions возвращает выполнения челленджа.
func (h *Handler) ListChallengeCompletions(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	list, err := h.service.ListChallengeCompletions(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "list completions error", zap.Int64("challengeID", id))
		return
	}

	resp := make([]completionResponse, 0, len(list))
	for _, c := range list {
		resp = append(resp, completionResponse{
			ChallengeID: c.ChallengeID,
			ReferrerID:  c.ReferrerID,
			CompletedAt: c.CompletedAt.Format(time.RFC3339),
			BonusPaid:   c.BonusPaid,
			BonusPaidAt: formatTime(c.BonusPaidAt),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// MarkChallengeBonusPaid отмечает бонус за челлендж выплаченным.
func (h *Handler) MarkChallengeBonusPaid(w http.ResponseWriter, r *http.Request) {
	challengeID, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	referrerID, ok := idParam(w, r, "referrerID")
	if !ok {
		return
	}

	if err := h.service.MarkChallengeBonusPaid(r.Context(), challengeID, referrerID); err != nil {
		h.writeError(w, err, "mark challenge bonus paid error",
			zap.Int64("challengeID", challengeID), zap.Int64("referrerID", referrerID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
