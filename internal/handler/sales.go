package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/referral-commissions/internal/model"
	"github.com/mmeshcher/referral-commissions/internal/service"
)

type saleRequest struct {
	ReferrerCode string           `json:"referrer_code"`
	ClientName   string           `json:"client_name"`
	Service      string           `json:"service"`
	Amount       *decimal.Decimal `json:"amount"`
}

func (req saleRequest) input() service.SaleInput {
	return service.SaleInput{
		ReferrerCode: req.ReferrerCode,
		ClientName:   req.ClientName,
		Service:      model.Service(req.Service),
		Amount:       req.Amount,
	}
}

type webhookResponse struct {
	OK         bool        `json:"ok"`
	Commission json.Number `json:"commission"`
	SaleID     string      `json:"sale_id"`
}

// WebhookSale принимает продажу от внешней системы. Начисления после сохранения
// выполняются в фоне и не влияют на ответ.
func (h *Handler) WebhookSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sale, err := h.service.Ingest(r.Context(), req.input())
	if err != nil {
		h.writeError(w, err, "webhook sale error", zap.String("code", req.ReferrerCode))
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{
		OK:         true,
		Commission: money(sale.Commission),
		SaleID:     sale.ID.String(),
	})
}

type adminSaleRequest struct {
	saleRequest
	AdminNote string `json:"admin_note"`
	Enrich    *bool  `json:"enrich"`
}

// CreateAdminSale создаёт продажу вручную.
func (h *Handler) CreateAdminSale(w http.ResponseWriter, r *http.Request) {
	var req adminSaleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := req.input()
	in.AdminNote = req.AdminNote

	sale, err := h.service.CreateAdminSale(r.Context(), in, req.Enrich)
	if err != nil {
		h.writeError(w, err, "admin sale error", zap.String("code", req.ReferrerCode))
		return
	}

	writeJSON(w, http.StatusCreated, toSaleResponse(sale))
}

// ListSales возвращает продажи, опционально отфильтрованные по referrer_id.
func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	var referrerID int64
	if raw := r.URL.Query().Get("referrer_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "invalid referrer_id", http.StatusBadRequest)
			return
		}
		referrerID = id
	}

	h.writeSales(w, r, referrerID)
}

func (h *Handler) writeSales(w http.ResponseWriter, r *http.Request, referrerID int64) {
	sales, err := h.service.ListSales(r.Context(), referrerID)
	if err != nil {
		h.writeError(w, err, "list sales error", zap.Int64("referrerID", referrerID))
		return
	}

	resp := make([]saleResponse, 0, len(sales))
	for i := range sales {
		resp = append(resp, toSaleResponse(&sales[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// MarkSalePaid отмечает комиссию по продаже выплаченной.
func (h *Handler) MarkSalePaid(w http.ResponseWriter, r *http.Request) {
	id, ok := saleIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.MarkSalePaid(r.Context(), id); err != nil {
		h.writeError(w, err, "mark sale paid error", zap.String("saleID", id.String()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteSale удаляет ошибочную продажу.
func (h *Handler) DeleteSale(w http.ResponseWriter, r *http.Request) {
	id, ok := saleIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteSale(r.Context(), id); err != nil {
		h.writeError(w, err, "delete sale error", zap.String("saleID", id.String()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
