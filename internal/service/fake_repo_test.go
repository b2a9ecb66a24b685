package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/referral-commissions/internal/model"
	"github.com/mmeshcher/referral-commissions/internal/repository"
	"github.com/mmeshcher/referral-commissions/internal/validation"
)

type badgeKey struct {
	referrerID int64
	badgeID    string
}

type completionKey struct {
	challengeID int64
	referrerID  int64
}

type rateKey struct {
	referrerID int64
	service    model.Service
}

// memRepo: репозиторий в памяти с теми же уникальными ключами, что и схема Postgres.
type memRepo struct {
	mu  sync.Mutex
	now func() time.Time

	nextID int64

	referrers   map[int64]*model.Referrer
	sales       map[uuid.UUID]*model.Sale
	globalRates map[model.Service]decimal.Decimal
	customRates map[rateKey]decimal.Decimal
	cascadePct  decimal.Decimal
	cascade     map[uuid.UUID]*model.CascadeCommission
	badges      map[badgeKey]time.Time
	challenges  map[int64]*model.Challenge
	completions map[completionKey]*model.ChallengeCompletion

	awardCalls int
	failStats  error
}

func newMemRepo() *memRepo {
	return &memRepo{
		now:         time.Now,
		referrers:   make(map[int64]*model.Referrer),
		sales:       make(map[uuid.UUID]*model.Sale),
		globalRates: make(map[model.Service]decimal.Decimal),
		customRates: make(map[rateKey]decimal.Decimal),
		cascade:     make(map[uuid.UUID]*model.CascadeCommission),
		badges:      make(map[badgeKey]time.Time),
		challenges:  make(map[int64]*model.Challenge),
		completions: make(map[completionKey]*model.ChallengeCompletion),
	}
}

func (m *memRepo) id() int64 {
	m.nextID++
	return m.nextID
}

// addReferrer добавляет апортёра с валидным кодом и возвращает его копию.
func (m *memRepo) addReferrer(status model.ReferrerStatus, recruiterID *int64) *model.Referrer {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.id()
	ref := &model.Referrer{
		ID:          id,
		FirstName:   "Jean",
		LastName:    "Dupont",
		Email:       fmt.Sprintf("ref%d@example.com", id),
		Code:        validation.WithCheckDigit(fmt.Sprintf("%07d", 1000000+id)),
		Status:      status,
		Tier:        model.TierBronze,
		RecruiterID: recruiterID,
		CreatedAt:   m.now(),
	}
	m.referrers[id] = ref
	cp := *ref
	return &cp
}

// addSale добавляет продажу напрямую, минуя конвейер.
func (m *memRepo) addSale(referrerID int64, service model.Service, commission string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New()
	m.sales[id] = &model.Sale{
		ID:         id,
		ReferrerID: referrerID,
		ClientName: "client",
		Service:    service,
		Amount:     decimal.NewFromInt(100),
		Commission: decimal.RequireFromString(commission),
		Source:     model.SaleSourceAdmin,
		CreatedAt:  m.now(),
	}
}

func (m *memRepo) award(referrerID int64, badgeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.badges[badgeKey{referrerID, badgeID}] = m.now()
}

func (m *memRepo) referrer(id int64) model.Referrer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.referrers[id]
}

func (m *memRepo) badgeCount(referrerID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.badges {
		if k.referrerID == referrerID {
			n++
		}
	}
	return n
}

func (m *memRepo) hasBadge(referrerID int64, badgeID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.badges[badgeKey{referrerID, badgeID}]
	return ok
}

func (m *memRepo) Close() error { return nil }

func (m *memRepo) Ping(ctx context.Context) error { return nil }

func (m *memRepo) CreateReferrer(ctx context.Context, ref *model.Referrer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.referrers {
		if r.Code == ref.Code {
			return repository.ErrCodeExists
		}
		if r.Email == ref.Email {
			return repository.ErrEmailExists
		}
	}
	ref.ID = m.id()
	ref.CreatedAt = m.now()
	cp := *ref
	m.referrers[ref.ID] = &cp
	return nil
}

func (m *memRepo) GetReferrerByCode(ctx context.Context, code string) (*model.Referrer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.referrers {
		if r.Code == code {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrReferrerNotFound
}

func (m *memRepo) GetReferrer(ctx context.Context, id int64) (*model.Referrer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.referrers[id]
	if !ok {
		return nil, repository.ErrReferrerNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRepo) ListReferrers(ctx context.Context) ([]model.Referrer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := make([]model.Referrer, 0, len(m.referrers))
	for _, r := range m.referrers {
		res = append(res, *r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (m *memRepo) UpdateReferrerStatus(ctx context.Context, id int64, status model.ReferrerStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.referrers[id]
	if !ok {
		return repository.ErrReferrerNotFound
	}
	r.Status = status
	return nil
}

func (m *memRepo) RecomputeTier(ctx context.Context, id int64, tierFor func(salesCount int64) model.Tier) (model.Tier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.referrers[id]
	if !ok {
		return "", repository.ErrReferrerNotFound
	}

	var n int64
	for _, s := range m.sales {
		if s.ReferrerID == id {
			n++
		}
	}
	r.Tier = tierFor(n)
	return r.Tier, nil
}

func (m *memRepo) CreateSale(ctx context.Context, sale *model.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sale.CreatedAt = m.now()
	cp := *sale
	m.sales[sale.ID] = &cp
	return nil
}

func (m *memRepo) ListSales(ctx context.Context, referrerID int64) ([]model.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.Sale
	for _, s := range m.sales {
		if referrerID == 0 || s.ReferrerID == referrerID {
			res = append(res, *s)
		}
	}
	return res, nil
}

func (m *memRepo) MarkSalePaid(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sales[id]
	if !ok {
		return repository.ErrSaleNotFound
	}
	s.Paid = true
	s.PaidAt = &at
	return nil
}

func (m *memRepo) DeleteSale(ctx context.Context, id uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sales[id]
	if !ok {
		return 0, repository.ErrSaleNotFound
	}
	delete(m.sales, id)
	return s.ReferrerID, nil
}

func (m *memRepo) GetReferrerRate(ctx context.Context, referrerID int64, service model.Service) (decimal.Decimal, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	amount, ok := m.customRates[rateKey{referrerID, service}]
	return amount, ok, nil
}

func (m *memRepo) GetGlobalRate(ctx context.Context, service model.Service) (decimal.Decimal, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	amount, ok := m.globalRates[service]
	return amount, ok, nil
}

func (m *memRepo) ListGlobalRates(ctx context.Context) (map[model.Service]decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := make(map[model.Service]decimal.Decimal, len(m.globalRates))
	for k, v := range m.globalRates {
		res[k] = v
	}
	return res, nil
}

func (m *memRepo) ListReferrerRates(ctx context.Context, referrerID int64) (map[model.Service]decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := make(map[model.Service]decimal.Decimal)
	for k, v := range m.customRates {
		if k.referrerID == referrerID {
			res[k.service] = v
		}
	}
	return res, nil
}

func (m *memRepo) UpsertGlobalRates(ctx context.Context, rates map[model.Service]decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range rates {
		m.globalRates[k] = v
	}
	return nil
}

func (m *memRepo) UpsertReferrerRates(ctx context.Context, referrerID int64, rates map[model.Service]decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range rates {
		m.customRates[rateKey{referrerID, k}] = v
	}
	return nil
}

func (m *memRepo) DeleteReferrerRates(ctx context.Context, referrerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k := range m.customRates {
		if k.referrerID == referrerID {
			delete(m.customRates, k)
		}
	}
	return nil
}

func (m *memRepo) GetCascadeRate(ctx context.Context) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cascadePct, nil
}

func (m *memRepo) SetCascadeRate(ctx context.Context, pct decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cascadePct = pct
	return nil
}

func (m *memRepo) InsertCascadeCommission(ctx context.Context, c *model.CascadeCommission) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cascade[c.SaleID]; ok {
		return false, nil
	}
	c.ID = m.id()
	c.CreatedAt = m.now()
	cp := *c
	m.cascade[c.SaleID] = &cp
	return true, nil
}

func (m *memRepo) ListCascadeCommissions(ctx context.Context, parrainID int64) ([]model.CascadeCommission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.CascadeCommission
	for _, c := range m.cascade {
		if parrainID == 0 || c.ParrainID == parrainID {
			res = append(res, *c)
		}
	}
	return res, nil
}

func (m *memRepo) MarkCascadePaid(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.cascade {
		if c.ID == id {
			c.Paid = true
			c.PaidAt = &at
			return nil
		}
	}
	return repository.ErrCascadeNotFound
}

func (m *memRepo) GetBadgeStats(ctx context.Context, referrerID int64) (*model.BadgeStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failStats != nil {
		return nil, m.failStats
	}

	ref, ok := m.referrers[referrerID]
	if !ok {
		return nil, repository.ErrReferrerNotFound
	}

	stats := &model.BadgeStats{
		CommissionTotal: decimal.Zero,
		Tier:            ref.Tier,
		ServicesSold:    make(map[model.Service]bool),
	}
	for _, s := range m.sales {
		if s.ReferrerID != referrerID {
			continue
		}
		stats.SalesCount++
		stats.CommissionTotal = stats.CommissionTotal.Add(s.Commission)
		stats.ServicesSold[s.Service] = true
	}
	for _, r := range m.referrers {
		if r.RecruiterID != nil && *r.RecruiterID == referrerID {
			stats.RecruitedCount++
		}
	}
	return stats, nil
}

func (m *memRepo) ListEarnedBadges(ctx context.Context, referrerID int64) ([]model.EarnedBadge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.EarnedBadge
	for k, at := range m.badges {
		if k.referrerID == referrerID {
			res = append(res, model.EarnedBadge{BadgeID: k.badgeID, EarnedAt: at})
		}
	}
	return res, nil
}

func (m *memRepo) AwardBadge(ctx context.Context, referrerID int64, badgeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.awardCalls++
	key := badgeKey{referrerID, badgeID}
	if _, ok := m.badges[key]; ok {
		return false, nil
	}
	m.badges[key] = m.now()
	return true, nil
}

func (m *memRepo) CreateChallenge(ctx context.Context, c *model.Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c.ID = m.id()
	c.CreatedAt = m.now()
	cp := *c
	m.challenges[c.ID] = &cp
	return nil
}

func (m *memRepo) ListChallenges(ctx context.Context, month string) ([]model.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.Challenge
	for _, c := range m.challenges {
		if month == "" || c.Month == month {
			res = append(res, *c)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (m *memRepo) SetChallengeActive(ctx context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.challenges[id]
	if !ok {
		return repository.ErrChallengeNotFound
	}
	c.Active = active
	return nil
}

func (m *memRepo) ListOpenChallenges(ctx context.Context, referrerID int64, month string) ([]model.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.Challenge
	for _, c := range m.challenges {
		if !c.Active || c.Month != month {
			continue
		}
		if _, done := m.completions[completionKey{c.ID, referrerID}]; done {
			continue
		}
		res = append(res, *c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (m *memRepo) GetMonthStats(ctx context.Context, referrerID int64, month string) (*model.MonthStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &model.MonthStats{
		CommissionTotal: decimal.Zero,
		ServiceCounts:   make(map[model.Service]int64),
	}
	for _, s := range m.sales {
		if s.ReferrerID != referrerID || validation.MonthOf(s.CreatedAt) != month {
			continue
		}
		stats.SalesCount++
		stats.CommissionTotal = stats.CommissionTotal.Add(s.Commission)
		stats.ServiceCounts[s.Service]++
	}
	return stats, nil
}

func (m *memRepo) RecordChallengeCompletion(ctx context.Context, challengeID, referrerID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := completionKey{challengeID, referrerID}
	if _, ok := m.completions[key]; ok {
		return false, nil
	}
	m.completions[key] = &model.ChallengeCompletion{
		ChallengeID: challengeID,
		ReferrerID:  referrerID,
		CompletedAt: m.now(),
	}
	return true, nil
}

func (m *memRepo) ListChallengeCompletions(ctx context.Context, challengeID int64) ([]model.ChallengeCompletion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.ChallengeCompletion
	for k, c := range m.completions {
		if k.challengeID == challengeID {
			res = append(res, *c)
		}
	}
	return res, nil
}

func (m *memRepo) ListReferrerCompletions(ctx context.Context, referrerID int64) ([]model.ChallengeCompletion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.ChallengeCompletion
	for k, c := range m.completions {
		if k.referrerID == referrerID {
			res = append(res, *c)
		}
	}
	return res, nil
}

func (m *memRepo) MarkChallengeBonusPaid(ctx context.Context, challengeID, referrerID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.completions[completionKey{challengeID, referrerID}]
	if !ok {
		return repository.ErrCompletionNotFound
	}
	c.BonusPaid = true
	c.BonusPaidAt = &at
	return nil
}
