package model

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrAmountOutOfRange возвращается, если сумма в центах не помещается в BIGINT.
var ErrAmountOutOfRange = errors.New("amount out of range")

// FromCents переводит сумму в центах в десятичное значение.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ToCents округляет сумму до центов и возвращает её целым числом.
func ToCents(d decimal.Decimal) (int64, error) {
	cents := d.Round(2).Shift(2)
	if !cents.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %s", ErrAmountOutOfRange, d.String())
	}
	return cents.IntPart(), nil
}

// FitsCents сообщает, можно ли сохранить сумму в центах без переполнения.
func FitsCents(d decimal.Decimal) bool {
	_, err := ToCents(d)
	return err == nil
}
