package handlers

import (
	"errors"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/temitopeohassan/perpraid/internal/service"
	"github.com/temitopeohassan/perpraid/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes ограничивает размер тела POST запросов
const maxBodyBytes = 1 << 20

// ErrorResponse стандартный формат ответа об ошибке для всех API endpoints
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details string                 `json:"details,omitempty"`
	Fields  utils.ValidationErrors `json:"fields,omitempty"`
}

// SuccessResponse стандартный формат успешного ответа
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Коды ошибок в поле code
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeNotFound       = "NOT_FOUND"
	CodeUpstream       = "UPSTREAM_UNAVAILABLE"
	CodeUnavailable    = "SERVICE_UNAVAILABLE"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
	CodeInternal       = "INTERNAL_ERROR"
)

// respondWithJSON отправляет JSON ответ
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// respondWithError отправляет JSON ответ с ошибкой
func respondWithError(w http.ResponseWriter, code int, message string, details string) {
	respondWithJSON(w, code, ErrorResponse{
		Error:   message,
		Code:    codeForStatus(code),
		Details: details,
	})
}

// respondWithServiceError переводит ошибку сервиса в HTTP ответ.
// Неизвестные ошибки логируются и отдаются как 500 без подробностей.
func respondWithServiceError(w http.ResponseWriter, logger *utils.Logger, err error) {
	var reqErr *service.RequestError
	switch {
	case errors.As(err, &reqErr):
		respondWithJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "Invalid request",
			Code:   CodeInvalidRequest,
			Fields: reqErr.Fields,
		})
	case errors.Is(err, service.ErrInvalidRequest):
		respondWithError(w, http.StatusBadRequest, "Invalid request", err.Error())
	case errors.Is(err, service.ErrMarketNotFound):
		respondWithError(w, http.StatusNotFound, "Market not found", "")
	case errors.Is(err, service.ErrAccountNotFound):
		respondWithError(w, http.StatusNotFound, "Account not found", "")
	case errors.Is(err, service.ErrPositionNotFound):
		respondWithError(w, http.StatusNotFound, "Position not found", "")
	case errors.Is(err, service.ErrUpstream):
		logger.Warn("upstream request failed", utils.Err(err))
		respondWithError(w, http.StatusBadGateway, "Market data provider unavailable", "")
	case errors.Is(err, service.ErrHistoryDisabled):
		respondWithError(w, http.StatusServiceUnavailable, "Analysis history is disabled", "")
	case errors.Is(err, service.ErrAuthNotConfigured):
		respondWithError(w, http.StatusServiceUnavailable, "Authentication is not configured", "")
	case errors.Is(err, service.ErrInvalidSignature):
		respondWithError(w, http.StatusUnauthorized, "Invalid wallet signature", "")
	case errors.Is(err, service.ErrInvalidToken):
		respondWithError(w, http.StatusForbidden, "Invalid or expired token", "")
	default:
		logger.Error("request failed", utils.Err(err))
		respondWithError(w, http.StatusInternalServerError, "Internal server error", "")
	}
}

// decodeBody читает JSON тело запроса. Неизвестные поля допускаются.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeInvalidRequest
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusBadGateway:
		return CodeUpstream
	case http.StatusServiceUnavailable:
		return CodeUnavailable
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusInternalServerError:
		return CodeInternal
	}
	return ""
}
