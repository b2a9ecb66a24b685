package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput возвращается при отсутствующих или некорректных полях запроса.
	ErrInvalidInput = errors.New("invalid input")
	// ErrReferrerNotEligible возвращается, если апортёр не найден или не активен.
	ErrReferrerNotEligible = errors.New("referrer not found or not active")
	// ErrInvalidCascadeRate возвращается для процента каскада вне диапазона [0, 100].
	ErrInvalidCascadeRate = errors.New("cascade rate must be between 0 and 100")
	// ErrInvalidStatus возвращается для неизвестного статуса апортёра.
	ErrInvalidStatus = errors.New("invalid referrer status")
	// ErrUnknownRecruiter возвращается при регистрации с несуществующим кодом пригласившего.
	ErrUnknownRecruiter = errors.New("unknown recruiter code")
)

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
