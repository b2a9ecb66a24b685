// Package handler содержит HTTP-обработчики API сервиса комиссий.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/referral-commissions/internal/middleware"
	"github.com/mmeshcher/referral-commissions/internal/model"
	"github.com/mmeshcher/referral-commissions/internal/repository"
	"github.com/mmeshcher/referral-commissions/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Ping(ctx context.Context) error

	Ingest(ctx context.Context, in service.SaleInput) (*model.Sale, error)
	CreateAdminSale(ctx context.Context, in service.SaleInput, enrich *bool) (*model.Sale, error)
	ListSales(ctx context.Context, referrerID int64) ([]model.Sale, error)
	MarkSalePaid(ctx context.Context, id uuid.UUID) error
	DeleteSale(ctx context.Context, id uuid.UUID) error

	Register(ctx context.Context, in service.RegistrationInput) (*model.Referrer, error)
	GetReferrer(ctx context.Context, id int64) (*model.Referrer, error)
	ListReferrers(ctx context.Context) ([]model.Referrer, error)
	SetReferrerStatus(ctx context.Context, id int64, status model.ReferrerStatus) error

	GetGlobalRates(ctx context.Context) ([]model.RateRow, error)
	UpsertGlobalRates(ctx context.Context, rates map[model.Service]decimal.Decimal) error
	GetReferrerRates(ctx context.Context, referrerID int64) ([]model.RateRow, error)
	UpsertReferrerRates(ctx context.Context, referrerID int64, rates map[model.Service]decimal.Decimal) error
	DeleteReferrerRates(ctx context.Context, referrerID int64) error

	GetCascadeRate(ctx context.Context) (decimal.Decimal, error)
	SetCascadeRate(ctx context.Context, pct decimal.Decimal) error
	ListCascadeCommissions(ctx context.Context, parrainID int64) ([]model.CascadeCommission, error)
	MarkCascadePaid(ctx context.Context, id int64) error

	BadgeProgress(ctx context.Context, referrerID int64) ([]model.BadgeProgress, error)

	CreateChallenge(ctx context.Context, in service.ChallengeInput) (*model.Challenge, error)
	ListChallenges(ctx context.Context, month string) ([]model.Challenge, error)
	SetChallengeActive(ctx context.Context, id int64, active bool) error
	ListChallengeCompletions(ctx context.Context, challengeID int64) ([]model.ChallengeCompletion, error)
	MarkChallengeBonusPaid(ctx context.Context, challengeID, referrerID int64) error
	ReferrerChallenges(ctx context.Context, referrerID int64) ([]model.ChallengeStatus, error)
}

// Options: параметры HTTP-слоя, не относящиеся к бизнес-логике.
type Options struct {
	WebhookSecret        string
	WebhookRatePerMinute int
	Gatherer             prometheus.Gatherer
}

// Handler реализует HTTP-обработчики API сервиса комиссий.
type Handler struct {
	service Service
	logger  *zap.Logger
	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	opts    Options
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.Authenticator, opts Options) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	burst := opts.WebhookRatePerMinute / 10
	return &Handler{
		service: s,
		logger:  logger,
		auth:    auth,
		limiter: middleware.NewRateLimiter(opts.WebhookRatePerMinute, max(burst, 1)),
		opts:    opts,
	}
}

// Healthz проверяет доступность базы данных.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// writeError переводит ошибку сервиса в HTTP-статус. Неизвестные ошибки логируются как 500.
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidCascadeRate),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, model.ErrAmountOutOfRange):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrReferrerNotEligible),
		errors.Is(err, service.ErrUnknownRecruiter),
		errors.Is(err, repository.ErrReferrerNotFound),
		errors.Is(err, repository.ErrSaleNotFound),
		errors.Is(err, repository.ErrCascadeNotFound),
		errors.Is(err, repository.ErrChallengeNotFound),
		errors.Is(err, repository.ErrCompletionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, repository.ErrEmailExists):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "malformed JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func saleIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid sale id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func referrerFromContext(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok || id.ReferrerID == 0 {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return 0, false
	}
	return id.ReferrerID, true
}
