// Package service реализует бизнес-логику начисления комиссий: ставки, уровни,
// каскад, бейджи, челленджи и конвейер приёма продаж.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/referral-commissions/internal/model"
	"github.com/mmeshcher/referral-commissions/internal/notify"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
// Все записи производных фактов (каскад, бейджи, челленджи) идемпотентны:
// повторная вставка возвращает false без ошибки.
type Repository interface {
	Close() error
	Ping(ctx context.Context) error

	CreateReferrer(ctx context.Context, ref *model.Referrer) error
	GetReferrerByCode(ctx context.Context, code string) (*model.Referrer, error)
	GetReferrer(ctx context.Context, id int64) (*model.Referrer, error)
	ListReferrers(ctx context.Context) ([]model.Referrer, error)
	UpdateReferrerStatus(ctx context.Context, id int64, status model.ReferrerStatus) error
	RecomputeTier(ctx context.Context, id int64, tierFor func(salesCount int64) model.Tier) (model.Tier, error)

	CreateSale(ctx context.Context, sale *model.Sale) error
	ListSales(ctx context.Context, referrerID int64) ([]model.Sale, error)
	MarkSalePaid(ctx context.Context, id uuid.UUID, at time.Time) error
	DeleteSale(ctx context.Context, id uuid.UUID) (int64, error)

	GetReferrerRate(ctx context.Context, referrerID int64, service model.Service) (decimal.Decimal, bool, error)
	GetGlobalRate(ctx context.Context, service model.Service) (decimal.Decimal, bool, error)
	ListGlobalRates(ctx context.Context) (map[model.Service]decimal.Decimal, error)
	ListReferrerRates(ctx context.Context, referrerID int64) (map[model.Service]decimal.Decimal, error)
	UpsertGlobalRates(ctx context.Context, rates map[model.Service]decimal.Decimal) error
	UpsertReferrerRates(ctx context.Context, referrerID int64, rates map[model.Service]decimal.Decimal) error
	DeleteReferrerRates(ctx context.Context, referrerID int64) error

	GetCascadeRate(ctx context.Context) (decimal.Decimal, error)
	SetCascadeRate(ctx context.Context, pct decimal.Decimal) error
	InsertCascadeCommission(ctx context.Context, c *model.CascadeCommission) (bool, error)
	ListCascadeCommissions(ctx context.Context, parrainID int64) ([]model.CascadeCommission, error)
	MarkCascadePaid(ctx context.Context, id int64, at time.Time) error

	GetBadgeStats(ctx context.Context, referrerID int64) (*model.BadgeStats, error)
	ListEarnedBadges(ctx context.Context, referrerID int64) ([]model.EarnedBadge, error)
	AwardBadge(ctx context.Context, referrerID int64, badgeID string) (bool, error)

	CreateChallenge(ctx context.Context, c *model.Challenge) error
	ListChallenges(ctx context.Context, month string) ([]model.Challenge, error)
	SetChallengeActive(ctx context.Context, id int64, active bool) error
	ListOpenChallenges(ctx context.Context, referrerID int64, month string) ([]model.Challenge, error)
	GetMonthStats(ctx context.Context, referrerID int64, month string) (*model.MonthStats, error)
	RecordChallengeCompletion(ctx context.Context, challengeID, referrerID int64) (bool, error)
	ListChallengeCompletions(ctx context.Context, challengeID int64) ([]model.ChallengeCompletion, error)
	ListReferrerCompletions(ctx context.Context, referrerID int64) ([]model.ChallengeCompletion, error)
	MarkChallengeBonusPaid(ctx context.Context, challengeID, referrerID int64, at time.Time) error
}

const defaultEnrichTimeout = 30 * time.Second

// Service содержит бизнес-логику сервиса комиссий.
type Service struct {
	repo     Repository
	notifier notify.Notifier
	logger   *zap.Logger
	metrics  *Metrics

	adminEnrich   bool
	enrichTimeout time.Duration
	now           func() time.Time

	// inflight учитывает фоновые начисления после сохранения продажи.
	inflight sync.WaitGroup
}

// Option настраивает Service.
type Option func(*Service)

// WithMetrics подключает метрики Prometheus.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAdminEnrich задаёт политику по умолчанию для продаж, созданных администратором.
func WithAdminEnrich(enrich bool) Option {
	return func(s *Service) { s.adminEnrich = enrich }
}

// WithEnrichTimeout ограничивает время фоновых начислений одной продажи.
func WithEnrichTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.enrichTimeout = d
		}
	}
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService создаёт новый сервис с указанным репозиторием и уведомителем.
func NewService(repo Repository, notifier notify.Notifier, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}

	s := &Service{
		repo:          repo,
		notifier:      notifier,
		logger:        logger,
		metrics:       NewMetrics(nil),
		adminEnrich:   true,
		enrichTimeout: defaultEnrichTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wait блокируется до завершения всех фоновых начислений.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// Close дожидается фоновых начислений и закрывает ресурсы сервиса.
func (s *Service) Close() error {
	s.Wait()
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// detach запускает fn после ответа вызывающему: контекст запроса не отменяет работу,
// но она ограничена enrichTimeout.
func (s *Service) detach(ctx context.Context, fn func(ctx context.Context)) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.enrichTimeout)
		defer cancel()

		fn(ctx)
	}()
}

// send доставляет уведомление; ошибки только логируются. Если шлюз просит подождать,
// делается один повтор после паузы, если она укладывается в оставшееся время контекста.
func (s *Service) send(ctx context.Context, recipientID int64, msg notify.Message) {
	err := s.notifier.Notify(ctx, recipientID, msg)

	var limited *notify.RateLimitError
	if errors.As(err, &limited) && fitsDeadline(ctx, limited.RetryAfter) {
		timer := time.NewTimer(limited.RetryAfter)
		select {
		case <-ctx.Done():
		case <-timer.C:
			err = s.notifier.Notify(ctx, recipientID, msg)
		}
		timer.Stop()
	}

	if err != nil {
		s.metrics.NotificationFailures.Inc()
		s.logger.Warn("notification failed",
			zap.Error(err),
			zap.Int64("recipientID", recipientID),
			zap.String("kind", string(msg.Kind)),
		)
	}
}

func fitsDeadline(ctx context.Context, wait time.Duration) bool {
	deadline, ok := ctx.Deadline()
	return !ok || time.Until(deadline) > wait
}
