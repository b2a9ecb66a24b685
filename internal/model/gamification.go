package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BadgeConditionKind задаёт тип условия получения бейджа.
type BadgeConditionKind string

const (
	BadgeSalesCount      BadgeConditionKind = "sales_count"
	BadgeCommissionTotal BadgeConditionKind = "commission_total"
	BadgeTier            BadgeConditionKind = "tier"
	BadgeHasSold         BadgeConditionKind = "has_sold"
	BadgeRecruitedCount  BadgeConditionKind = "recruited_count"
)

// BadgeCondition: условие бейджа. Значимые поля зависят от Kind:
// Threshold для счётчиков и сумм, Tier для BadgeTier, Service для BadgeHasSold.
type BadgeCondition struct {
	Kind      BadgeConditionKind
	Threshold decimal.Decimal
	Tier      Tier
	Service   Service
}

// Badge: элемент статического каталога достижений.
type Badge struct {
	ID          string
	Name        string
	Icon        string
	Description string
	Condition   BadgeCondition
}

// BadgeStats: агрегаты апортёра за всё время, по которым проверяются бейджи.
type BadgeStats struct {
	SalesCount      int64
	CommissionTotal decimal.Decimal
	Tier            Tier
	ServicesSold    map[Service]bool
	RecruitedCount  int64
}

// EarnedBadge: факт получения бейджа.
type EarnedBadge struct {
	BadgeID  string
	EarnedAt time.Time
}

// BadgeProgress описывает прогресс апортёра по одному бейджу каталога.
type BadgeProgress struct {
	Badge    Badge
	Earned   bool
	EarnedAt *time.Time
	Current  decimal.Decimal
	Target   decimal.Decimal
}

// ChallengeConditionKind задаёт тип месячной цели.
type ChallengeConditionKind string

const (
	ChallengeSalesCount      ChallengeConditionKind = "sales_count"
	ChallengeServiceCount    ChallengeConditionKind = "service_count"
	ChallengeCommissionTotal ChallengeConditionKind = "commission_total"
)

// Valid сообщает, поддерживается ли тип условия.
func (k ChallengeConditionKind) Valid() bool {
	switch k {
	case ChallengeSalesCount, ChallengeServiceCount, ChallengeCommissionTotal:
		return true
	}
	return false
}

// ChallengeCondition: условие челленджа; Service используется только для ChallengeServiceCount.
type ChallengeCondition struct {
	Kind      ChallengeConditionKind
	Threshold decimal.Decimal
	Service   Service
}

// Challenge: цель на месяц с разовым бонусом.
type Challenge struct {
	ID          int64
	Title       string
	Description string
	Month       string
	Active      bool
	Condition   ChallengeCondition
	Bonus       decimal.Decimal
	CreatedAt   time.Time
}

// ChallengeCompletion: факт выполнения челленджа апортёром.
type ChallengeCompletion struct {
	ChallengeID int64
	ReferrerID  int64
	CompletedAt time.Time
	BonusPaid   bool
	BonusPaidAt *time.Time
}

// MonthStats: агрегаты апортёра за календарный месяц.
type MonthStats struct {
	SalesCount      int64
	CommissionTotal decimal.Decimal
	ServiceCounts   map[Service]int64
}

// ChallengeStatus: челлендж месяца вместе с отметкой о выполнении для апортёра.
type ChallengeStatus struct {
	Challenge   Challenge
	Completed   bool
	CompletedAt *time.Time
	BonusPaid   bool
}
