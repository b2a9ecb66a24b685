package handler

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/referral-commissions/internal/middleware"
	"github.com/mmeshcher/referral-commissions/internal/model"
	"github.com/mmeshcher/referral-commissions/internal/repository"
	"github.com/mmeshcher/referral-commissions/internal/service"
)

const (
	testJWTSecret     = "test-secret"
	testWebhookSecret = "hook-secret"
)

type stubService struct {
	pingErr error

	ingestSale *model.Sale
	ingestErr  error
	ingestIn   service.SaleInput

	adminSale   *model.Sale
	adminErr    error
	adminEnrich *bool
	adminIn     service.SaleInput

	sales      []model.Sale
	salesErr   error
	salesQuery int64

	saleOpErr error

	registered  *model.Referrer
	registerErr error

	referrer    *model.Referrer
	referrerErr error
	referrers   []model.Referrer

	statusErr error

	rates        []model.RateRow
	ratesErr     error
	upsertedWith map[model.Service]decimal.Decimal

	cascadeRate   decimal.Decimal
	setCascadeErr error
	cascade       []model.CascadeCommission
	cascadeQuery  int64

	badges []model.BadgeProgress

	challenge      *model.Challenge
	challengeErr   error
	challenges     []model.Challenge
	statuses       []model.ChallengeStatus
	completions    []model.ChallengeCompletion
	challengeOpErr error
	paidChallenge  [2]int64
}

func (s *stubService) Ping(ctx context.Context) error { return s.pingErr }

func (s *stubService) Ingest(ctx context.Context, in service.SaleInput) (*model.Sale, error) {
	s.ingestIn = in
	return s.ingestSale, s.ingestErr
}

func (s *stubService) CreateAdminSale(ctx context.Context, in service.SaleInput, enrich *bool) (*model.Sale, error) {
	s.adminIn = in
	s.adminEnrich = enrich
	return s.adminSale, s.adminErr
}

func (s *stubService) ListSales(ctx context.Context, referrerID int64) ([]model.Sale, error) {
	s.salesQuery = referrerID
	return s.sales, s.salesErr
}

func (s *stubService) MarkSalePaid(ctx context.Context, id uuid.UUID) error { return s.saleOpErr }

func (s *stubService) DeleteSale(ctx context.Context, id uuid.UUID) error { return s.saleOpErr }

func (s *stubService) Register(ctx context.Context, in service.RegistrationInput) (*model.Referrer, error) {
	return s.registered, s.registerErr
}

func (s *stubService) GetReferrer(ctx context.Context, id int64) (*model.Referrer, error) {
	return s.referrer, s.referrerErr
}

func (s *stubService) ListReferrers(ctx context.Context) ([]model.Referrer, error) {
	return s.referrers, nil
}

func (s *stubService) SetReferrerStatus(ctx context.Context, id int64, status model.ReferrerStatus) error {
	return s.statusErr
}

func (s *stubService) GetGlobalRates(ctx context.Context) ([]model.RateRow, error) {
	return s.rates, s.ratesErr
}

func (s *stubService) UpsertGlobalRates(ctx context.Context, rates map[model.Service]decimal.Decimal) error {
	s.upsertedWith = rates
	return s.ratesErr
}

func (s *stubService) GetReferrerRates(ctx context.Context, referrerID int64) ([]model.RateRow, error) {
	return s.rates, s.ratesErr
}

func (s *stubService) UpsertReferrerRates(ctx context.Context, referrerID int64, rates map[model.Service]decimal.Decimal) error {
	s.upsertedWith = rates
	return s.ratesErr
}

func (s *stubService) DeleteReferrerRates(ctx context.Context, referrerID int64) error {
	return s.ratesErr
}

func (s *stubService) GetCascadeRate(ctx context.Context) (decimal.Decimal, error) {
	return s.cascadeRate, nil
}

func (s *stubService) SetCascadeRate(ctx context.Context, pct decimal.Decimal) error {
	return s.setCascadeErr
}

func (s *stubService) ListCascadeCommissions(ctx context.Context, parrainID int64) ([]model.CascadeCommission, error) {
	s.cascadeQuery = parrainID
	return s.cascade, nil
}

func (s *stubService) MarkCascadePaid(ctx context.Context, id int64) error { return nil }

func (s *stubService) BadgeProgress(ctx context.Context, referrerID int64) ([]model.BadgeProgress, error) {
	return s.badges, nil
}

func (s *stubService) CreateChallenge(ctx context.Context, in service.ChallengeInput) (*model.Challenge, error) {
	return s.challenge, s.challengeErr
}

func (s *stubService) ListChallenges(ctx context.Context, month string) ([]model.Challenge, error) {
	return s.challenges, s.challengeErr
}

func (s *stubService) SetChallengeActive(ctx context.Context, id int64, active bool) error {
	return s.challengeOpErr
}

func (s *stubService) ListChallengeCompletions(ctx context.Context, challengeID int64) ([]model.ChallengeCompletion, error) {
	return s.completions, s.challengeOpErr
}

func (s *stubService) MarkChallengeBonusPaid(ctx context.Context, challengeID, referrerID int64) error {
	s.paidChallenge = [2]int64{challengeID, referrerID}
	return s.challengeOpErr
}

func (s *stubService) ReferrerChallenges(ctx context.Context, referrerID int64) ([]model.ChallengeStatus, error) {
	return s.statuses, nil
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	return NewHandler(svc, zap.NewNop(), middleware.NewAuthenticator(testJWTSecret), Options{
		WebhookSecret:        testWebhookSecret,
		WebhookRatePerMinute: 600,
		Gatherer:             prometheus.NewRegistry(),
	})
}

func token(t *testing.T, role string, referrerID int64) string {
	t.Helper()

	tok, err := middleware.NewAuthenticator(testJWTSecret).Issue(role, referrerID, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func do(t *testing.T, h *Handler, method, path, auth string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if path == "/api/webhook/sales" {
		req.Header.Set(middleware.WebhookSecretHeader, testWebhookSecret)
	}

	rec := httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(rec, req)
	return rec
}

func TestWebhookSale_Success(t *testing.T) {
	saleID := uuid.New()
	svc := &stubService{
		ingestSale: &model.Sale{ID: saleID, Commission: decimal.RequireFromString("50")},
	}
	h := newTestHandler(t, svc)

	rec := do(t, h, http.MethodPost, "/api/webhook/sales", "",
		`{"referrer_code":"79927398713","client_name":"Acme","service":"M-ONE","amount":1200.5}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, fmt.Sprintf(`{"ok":true,"commission":50.00,"sale_id":%q}`, saleID.String()), rec.Body.String())

	assert.Equal(t, model.ServiceOne, svc.ingestIn.Service)
	require.NotNil(t, svc.ingestIn.Amount)
	assert.Equal(t, "1200.5", svc.ingestIn.Amount.String())
}

func TestWebhookSale_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		body string
		want int
	}{
		{"not eligible", service.ErrReferrerNotEligible, `{}`, http.StatusNotFound},
		{"invalid input", fmt.Errorf("%w: amount is required", service.ErrInvalidInput), `{}`, http.StatusBadRequest},
		{"malformed json", nil, `{"amount":`, http.StatusBadRequest},
		{"non numeric amount", nil, `{"amount":"abc"}`, http.StatusBadRequest},
		{"amount past storage range", fmt.Errorf("create sale: %w", model.ErrAmountOutOfRange), `{}`, http.StatusBadRequest},
		{"storage failure", errors.New("db down"), `{}`, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{ingestErr: tt.err})
			rec := do(t, h, http.MethodPost, "/api/webhook/sales", "", tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestWebhookSale_RequiresSecret(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	req := httptest.NewRequest(http.MethodPost, "/api/webhook/sales", bytes.NewBufferString(`{}`))
	req.Header.Set(middleware.WebhookSecretHeader, "wrong")
	rec := httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegister_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"created", nil, http.StatusCreated},
		{"duplicate email", repository.ErrEmailExists, http.StatusConflict},
		{"unknown recruiter", service.ErrUnknownRecruiter, http.StatusNotFound},
		{"invalid", service.ErrInvalidInput, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{
				registered:  &model.Referrer{ID: 3, Code: "79927398713", Status: model.ReferrerStatusPending, Tier: model.TierBronze},
				registerErr: tt.err,
			}
			h := newTestHandler(t, svc)

			rec := do(t, h, http.MethodPost, "/api/referrers", "",
				registerRequest{FirstName: "A", LastName: "B", Email: "a@example.com"})
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestReferrerArea_Auth(t *testing.T) {
	svc := &stubService{
		referrer: &model.Referrer{ID: 7, FirstName: "Claire", Status: model.ReferrerStatusActive, Tier: model.TierSilver},
	}
	h := newTestHandler(t, svc)

	rec := do(t, h, http.MethodGet, "/api/referrer/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/referrer/me", token(t, middleware.RoleAdmin, 0), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/referrer/me", token(t, middleware.RoleReferrer, 7), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp referrerResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(7), resp.ID)
	assert.Equal(t, "silver", resp.Tier)
}

func TestReferrerArea_ScopedToToken(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)
	auth := token(t, middleware.RoleReferrer, 12)

	rec := do(t, h, http.MethodGet, "/api/referrer/sales", auth, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(12), svc.salesQuery)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/referrer/cascade", auth, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(12), svc.cascadeQuery)
}

func TestReferrerBadges_JSON(t *testing.T) {
	svc := &stubService{
		badges: []model.BadgeProgress{{
			Badge:   model.Badge{ID: "cinq_clients", Name: "5 clients signés"},
			Current: decimal.NewFromInt(3),
			Target:  decimal.NewFromInt(5),
		}},
	}
	h := newTestHandler(t, svc)

	rec := do(t, h, http.MethodGet, "/api/referrer/badges", token(t, middleware.RoleReferrer, 1), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "cinq_clients", resp[0]["id"])
	assert.EqualValues(t, 3, resp[0]["current"])
	assert.EqualValues(t, 5, resp[0]["target"])
	assert.Equal(t, false, resp[0]["earned"])
}

func TestAdminSale_EnrichFlag(t *testing.T) {
	svc := &stubService{
		adminSale: &model.Sale{ID: uuid.New(), Source: model.SaleSourceAdmin},
	}
	h := newTestHandler(t, svc)
	admin := token(t, middleware.RoleAdmin, 0)

	rec := do(t, h, http.MethodPost, "/api/admin/sales", admin,
		`{"referrer_code":"79927398713","client_name":"c","service":"M-SEO","amount":"10","admin_note":"oubli","enrich":false}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.adminEnrich)
	assert.False(t, *svc.adminEnrich)
	assert.Equal(t, "oubli", svc.adminIn.AdminNote)

	rec = do(t, h, http.MethodPost, "/api/admin/sales", admin,
		`{"referrer_code":"79927398713","client_name":"c","service":"M-SEO","amount":10}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Nil(t, svc.adminEnrich, "absent enrich defers to configuration")
}

func TestAdminSales_ListAndCorrections(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)
	admin := token(t, middleware.RoleAdmin, 0)

	rec := do(t, h, http.MethodGet, "/api/admin/sales?referrer_id=5", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(5), svc.salesQuery)

	rec = do(t, h, http.MethodGet, "/api/admin/sales?referrer_id=x", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/admin/sales/not-a-uuid/paid", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	id := uuid.New().String()
	rec = do(t, h, http.MethodPost, "/api/admin/sales/"+id+"/paid", admin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	svc.saleOpErr = repository.ErrSaleNotFound
	rec = do(t, h, http.MethodDelete, "/api/admin/sales/"+id, admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRates(t *testing.T) {
	svc := &stubService{
		rates: []model.RateRow{
			{Service: model.ServiceOne, Amount: decimal.RequireFromString("50")},
			{Service: model.ServicePro, Amount: decimal.RequireFromString("100"), IsCustom: true},
		},
	}
	h := newTestHandler(t, svc)
	admin := token(t, middleware.RoleAdmin, 0)

	rec := do(t, h, http.MethodGet, "/api/admin/referrers/4/rates", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`[{"service":"M-ONE","amount":50.00,"is_custom":false},{"service":"M-PRO","amount":100.00,"is_custom":true}]`,
		rec.Body.String())

	rec = do(t, h, http.MethodPut, "/api/admin/rates", admin, `{"M-ONE":55.5,"M-ADS":"0"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "55.5", svc.upsertedWith[model.ServiceOne].String())
	assert.True(t, svc.upsertedWith[model.ServiceAds].IsZero())

	svc.ratesErr = repository.ErrReferrerNotFound
	rec = do(t, h, http.MethodDelete, "/api/admin/referrers/4/rates", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminCascadeRate(t *testing.T) {
	svc := &stubService{cascadeRate: decimal.RequireFromString("12.5")}
	h := newTestHandler(t, svc)
	admin := token(t, middleware.RoleAdmin, 0)

	rec := do(t, h, http.MethodGet, "/api/admin/cascade/rate", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"percent":12.50}`, rec.Body.String())

	rec = do(t, h, http.MethodPut, "/api/admin/cascade/rate", admin, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.setCascadeErr = service.ErrInvalidCascadeRate
	rec = do(t, h, http.MethodPut, "/api/admin/cascade/rate", admin, `{"percent":150}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminReferrerStatus(t *testing.T) {
	svc := &stubService{statusErr: service.ErrInvalidStatus}
	h := newTestHandler(t, svc)
	admin := token(t, middleware.RoleAdmin, 0)

	rec := do(t, h, http.MethodPut, "/api/admin/referrers/3/status", admin, `{"status":"banned"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/admin/referrers/abc/status", admin, `{"status":"active"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.statusErr = nil
	rec = do(t, h, http.MethodPut, "/api/admin/referrers/3/status", admin, `{"status":"active"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAdminChallenges(t *testing.T) {
	svc := &stubService{
		challenge: &model.Challenge{
			ID:     9,
			Title:  "Mars",
			Month:  "2026-03",
			Active: true,
			Condition: model.ChallengeCondition{
				Kind:      model.ChallengeServiceCount,
				Threshold: decimal.NewFromInt(3),
				Service:   model.ServiceSEO,
			},
			Bonus: decimal.NewFromInt(50),
		},
	}
	h := newTestHandler(t, svc)
	admin := token(t, middleware.RoleAdmin, 0)

	rec := do(t, h, http.MethodPost, "/api/admin/challenges", admin,
		`{"title":"Mars","month":"2026-03","condition_type":"service_count","threshold":3,"service":"M-SEO","bonus":50}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "service_count", resp["condition_type"])
	assert.Equal(t, "M-SEO", resp["service"])

	rec = do(t, h, http.MethodPut, "/api/admin/challenges/9/active", admin, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/admin/challenges/9/active", admin, `{"active":false}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/admin/challenges/9/completions/4/paid", admin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, [2]int64{9, 4}, svc.paidChallenge)

	svc.challengeOpErr = repository.ErrCompletionNotFound
	rec = do(t, h, http.MethodPost, "/api/admin/challenges/9/completions/5/paid", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthzAndMetrics(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	rec := do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	svc.pingErr = errors.New("db down")
	rec = do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetrics_GzipOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	service.NewMetrics(reg).SalesIngested.WithLabelValues("webhook").Inc()

	h := NewHandler(&stubService{}, zap.NewNop(), middleware.NewAuthenticator(testJWTSecret), Options{
		WebhookSecret: testWebhookSecret,
		Gatherer:      reg,
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	gr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(gr)
	require.NoError(t, err)

	assert.Contains(t, string(body), `commissions_sales_ingested_total{source="webhook"} 1`)
}
