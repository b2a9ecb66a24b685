// Package validation содержит функции валидации входных данных.
package validation

import (
	"strings"
	"time"
	"unicode"
)

// MonthLayout: формат месяца челленджа.
const MonthLayout = "2006-01"

// IsValidReferralCode проверяет реферальный код: только цифры и корректная контрольная цифра по алгоритму Луна.
func IsValidReferralCode(code string) bool {
	if len(code) < 2 {
		return false
	}
	return luhnSum(code, false) == 0
}

// WithCheckDigit дописывает к числовой основе контрольную цифру Луна.
// Для основы с нецифровыми символами возвращает пустую строку.
func WithCheckDigit(base string) string {
	if base == "" {
		return ""
	}
	sum := luhnSum(base, true)
	if sum < 0 {
		return ""
	}
	check := (10 - sum) % 10
	return base + string(rune('0'+check))
}

// luhnSum возвращает сумму по модулю 10 или -1 при нецифровом символе.
// doubleFirst задаёт удвоение самой правой цифры, что нужно при вычислении контрольной цифры.
func luhnSum(number string, doubleFirst bool) int {
	sum := 0
	double := doubleFirst

	for i := len(number) - 1; i >= 0; i-- {
		ch := rune(number[i])
		if !unicode.IsDigit(ch) {
			return -1
		}
		digit := int(ch - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}

	return sum % 10
}

// IsValidMonth проверяет строку месяца в формате YYYY-MM.
func IsValidMonth(month string) bool {
	_, err := time.Parse(MonthLayout, month)
	return err == nil
}

// MonthOf возвращает месяц момента времени в формате YYYY-MM (UTC).
func MonthOf(t time.Time) string {
	return t.UTC().Format(MonthLayout)
}

// NormalizeText обрезает пробелы в свободном тексте.
func NormalizeText(s string) string {
	return strings.TrimSpace(s)
}
