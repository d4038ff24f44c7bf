package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

type ErrorCode string

const (
	ErrCodeBadRequest    ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIGURATION"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrCodeUnavailable   ErrorCode = "UNAVAILABLE"
)

// Ответы API: {"data": ...}, {"data": [...], "total": n} или {"error": {...}}.
type (
	DataResponse struct {
		Data any `json:"data"`
	}

	ListResponse struct {
		Data  any `json:"data"`
		Total int `json:"total"`
	}

	ErrorResponse struct {
		Error ErrorDetail `json:"error"`
	}

	ErrorDetail struct {
		Code      ErrorCode `json:"code"`
		Message   string    `json:"message"`
		RequestID string    `json:"request_id,omitempty"`
	}
)

// Problem — ошибка, которую обработчик хочет показать клиенту как есть.
type Problem struct {
	Status  int
	Code    ErrorCode
	Message string
}

func (p *Problem) Error() string { return p.Message }

func badRequest(msg string) error {
	return &Problem{http.StatusBadRequest, ErrCodeBadRequest, msg}
}

func notFound(msg string) error {
	return &Problem{http.StatusNotFound, ErrCodeNotFound, msg}
}

func unavailable(msg string) error {
	return &Problem{http.StatusServiceUnavailable, ErrCodeUnavailable, msg}
}

// handlerFunc — обработчик, который возвращает ошибку вместо записи ответа.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (fn handlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := fn(w, r); err != nil {
		respondError(w, r, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) error {
	return writeJSON(w, status, DataResponse{Data: data})
}

func writeList[T any](w http.ResponseWriter, items []T) error {
	return writeJSON(w, http.StatusOK, ListResponse{Data: items, Total: len(items)})
}

// respondError переводит ошибку в HTTP ответ. Неизвестные ошибки
// логируются и скрываются за 500.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	detail := ErrorDetail{RequestID: w.Header().Get(HeaderRequestID)}
	status := http.StatusInternalServerError

	var problem *Problem
	switch {
	case errors.As(err, &problem):
		status, detail.Code, detail.Message = problem.Status, problem.Code, problem.Message
	case errors.Is(err, repo.ErrNotFound):
		status, detail.Code, detail.Message = http.StatusNotFound, ErrCodeNotFound, "not found"
	case engine.IsConfigurationError(err):
		status, detail.Code, detail.Message = http.StatusUnprocessableEntity, ErrCodeInvalidConfig, err.Error()
	default:
		telemetry.FromContext(r.Context()).Error("request failed", "error", err)
		detail.Code, detail.Message = ErrCodeInternalError, "internal server error"
	}

	writeJSON(w, status, ErrorResponse{Error: detail})
}
