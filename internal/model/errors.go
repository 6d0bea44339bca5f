package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound запись с таким кодом отсутствует.
	ErrNotFound = errors.New("link not found")
	// ErrCollision код уже занят другой записью.
	ErrCollision = errors.New("short code already exists")
	// ErrExhaustedRetries исчерпаны попытки подобрать свободный код.
	ErrExhaustedRetries = errors.New("short code attempts exhausted")
	// ErrValidation базовая ошибка некорректного ввода.
	ErrValidation = errors.New("validation failed")
)

// ValidationError некорректный ввод клиента.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is позволяет проверять ошибку через errors.Is(err, ErrValidation).
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError создаёт ошибку валидации поля.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}
