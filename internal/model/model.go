// Package model содержит доменные сущности сервиса комиссий апортёров.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReferrerStatus описывает статус апортёра в жизненном цикле.
type ReferrerStatus string

const (
	ReferrerStatusPending   ReferrerStatus = "pending"
	ReferrerStatusActive    ReferrerStatus = "active"
	ReferrerStatusSuspended ReferrerStatus = "suspended"
)

// Valid сообщает, является ли статус одним из допустимых значений.
func (s ReferrerStatus) Valid() bool {
	switch s {
	case ReferrerStatusPending, ReferrerStatusActive, ReferrerStatusSuspended:
		return true
	}
	return false
}

// Tier: уровень апортёра, вычисляемый по числу продаж.
type Tier string

const (
	TierBronze Tier = "bronze"
	TierSilver Tier = "silver"
	TierGold   Tier = "gold"
)

// Referrer представляет участника реферальной программы.
type Referrer struct {
	ID          int64
	FirstName   string
	LastName    string
	Email       string
	Code        string
	Status      ReferrerStatus
	Tier        Tier
	RecruiterID *int64
	CreatedAt   time.Time
}

// HasRecruiter сообщает, был ли апортёр приглашён другим участником.
func (r *Referrer) HasRecruiter() bool {
	return r.RecruiterID != nil
}

// SaleSource описывает канал, через который продажа попала в систему.
type SaleSource string

const (
	SaleSourceWebhook SaleSource = "webhook"
	SaleSourceAdmin   SaleSource = "admin"
)

// Sale описывает зафиксированную продажу. Комиссия: снимок на момент создания.
type Sale struct {
	ID         uuid.UUID
	ReferrerID int64
	ClientName string
	Service    Service
	Amount     decimal.Decimal
	Commission decimal.Decimal
	Paid       bool
	PaidAt     *time.Time
	AdminNote  string
	Source     SaleSource
	CreatedAt  time.Time
}

// RateRow: строка объединённой таблицы ставок апортёра.
type RateRow struct {
	Service  Service         `json:"service"`
	Amount   decimal.Decimal `json:"amount"`
	IsCustom bool            `json:"is_custom"`
}

// CascadeCommission: комиссия пригласившего (parrain) за продажу приглашённого им апортёра (filleul).
type CascadeCommission struct {
	ID        int64
	SaleID    uuid.UUID
	ParrainID int64
	FilleulID int64
	Amount    decimal.Decimal
	Paid      bool
	PaidAt    *time.Time
	CreatedAt time.Time
}
