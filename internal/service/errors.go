package service

import (
	"errors"
	"fmt"

	"github.com/temitopeohassan/perpraid/internal/indexer"
	"github.com/temitopeohassan/perpraid/pkg/utils"
)

// Ошибки сервисов
var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrMarketNotFound    = errors.New("market not found")
	ErrAccountNotFound   = errors.New("account not found")
	ErrPositionNotFound  = errors.New("position not found")
	ErrUpstream          = errors.New("market data provider unavailable")
	ErrHistoryDisabled   = errors.New("analysis history is disabled")
	ErrInvalidSignature  = errors.New("invalid wallet signature")
	ErrInvalidToken      = errors.New("invalid or expired token")
	ErrAuthNotConfigured = errors.New("authentication is not configured")
)

// RequestError - ошибки валидации полей запроса.
// errors.Is(err, ErrInvalidRequest) == true.
type RequestError struct {
	Fields utils.ValidationErrors
}

func (e *RequestError) Error() string {
	return ErrInvalidRequest.Error() + ": " + e.Fields.Error()
}

// Is позволяет сопоставлять RequestError с ErrInvalidRequest
func (e *RequestError) Is(target error) bool {
	return target == ErrInvalidRequest
}

func invalidFields(fields utils.ValidationErrors) error {
	return &RequestError{Fields: fields}
}

func invalidRequest(field string, err error) error {
	var fields utils.ValidationErrors
	fields.AddError(field, err)
	return invalidFields(fields)
}

// upstream переводит ошибку индексера в ошибку сервиса.
// notFound возвращается для 404, остальное считается недоступностью источника.
func upstream(err error, op string, notFound error) error {
	if err == nil {
		return nil
	}
	if notFound != nil && errors.Is(err, indexer.ErrNotFound) {
		return notFound
	}
	return fmt.Errorf("%w: %s: %v", ErrUpstream, op, err)
}
