package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/adu4862/banana-api/internal/pool"
	"github.com/adu4862/banana-api/internal/session"
	"github.com/adu4862/banana-api/internal/store"
)

// Error codes returned in API responses
const (
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeBodyTooLarge     = "BODY_TOO_LARGE"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeTaskNotFound     = "TASK_NOT_FOUND"
	ErrCodeSystemBusy       = "SYSTEM_BUSY"
	ErrCodeDisconnected     = "SESSION_DISCONNECTED"
	ErrCodeProvisionTimeout = "PROVISION_TIMEOUT"
	ErrCodeProvisionFailed  = "PROVISION_FAILED"
	ErrCodeRetriesExhausted = "RETRIES_EXHAUSTED"
	ErrCodeTaskFailed       = "TASK_FAILED"
	ErrCodeRequestCancelled = "REQUEST_CANCELLED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// apiError is a classified error ready to be written.
type apiError struct {
	status  int
	code    string
	message string
	data    map[string]any
}

// classify maps an error from the orchestrator onto a status and code.
func classify(err error) apiError {
	e := apiError{status: http.StatusInternalServerError, code: ErrCodeInternalError, message: err.Error()}

	var taskErr *session.TaskError
	var provErr *pool.ProvisionError
	switch {
	case errors.Is(err, session.ErrInvalidRequest):
		e.status, e.code = http.StatusBadRequest, ErrCodeInvalidRequest
	case errors.Is(err, session.ErrTaskNotFound), errors.Is(err, store.ErrNotFound):
		e.status, e.code = http.StatusNotFound, ErrCodeTaskNotFound
	case errors.Is(err, session.ErrBusy):
		e.status, e.code = http.StatusServiceUnavailable, ErrCodeSystemBusy
	case errors.Is(err, session.ErrDisconnected):
		e.code = ErrCodeDisconnected
	case errors.Is(err, pool.ErrProvisionTimeout):
		e.status, e.code = http.StatusGatewayTimeout, ErrCodeProvisionTimeout
	case errors.Is(err, context.Canceled):
		// Checked before ProvisionError: a client that went away is not a
		// provisioning failure.
		e.status, e.code = http.StatusGatewayTimeout, ErrCodeRequestCancelled
	case errors.As(err, &provErr) && errors.Is(err, context.DeadlineExceeded):
		e.status, e.code = http.StatusGatewayTimeout, ErrCodeProvisionTimeout
	case errors.As(err, &provErr):
		e.code = ErrCodeProvisionFailed
	case errors.Is(err, session.ErrRetriesExhausted):
		e.code = ErrCodeRetriesExhausted
	case errors.As(err, &taskErr):
		e.code, e.message, e.data = ErrCodeTaskFailed, taskErr.Message, taskErr.Data
	case errors.Is(err, context.DeadlineExceeded):
		e.status, e.code = http.StatusGatewayTimeout, ErrCodeRequestCancelled
	}
	return e
}

// writeAPIError writes a native error envelope with the status matching err.
func writeAPIError(w http.ResponseWriter, err error) {
	e := classify(err)
	writeEnvelopeError(w, e.status, e.code, e.message, e.data)
}

func writeEnvelopeError(w http.ResponseWriter, status int, code, message string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	writeJSON(w, status, envelope{
		Status:    "error",
		Message:   message,
		Data:      data,
		ErrorCode: code,
	})
}

// writeValidationError writes a 400 Bad Request with validation details
func writeValidationError(w http.ResponseWriter, message string, details map[string]any) {
	writeEnvelopeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, message, details)
}

// writeUnauthorizedError writes a 401 in the envelope the route speaks.
func writeUnauthorizedError(w http.ResponseWriter, r *http.Request, message string) {
	if isOpenAIPath(r.URL.Path) {
		writeOpenAIError(w, http.StatusUnauthorized, "invalid_api_key", "invalid_request_error", message, "")
		return
	}
	writeEnvelopeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message, nil)
}

// writeOpenAIError writes the provider's {"error":{...}} envelope.
func writeOpenAIError(w http.ResponseWriter, status int, code, typ, message, param string) {
	apiErr := &openai.APIError{Code: code, Message: message, Type: typ}
	if param != "" {
		apiErr.Param = &param
	}
	writeJSON(w, status, openai.ErrorResponse{Error: apiErr})
}

// writeOpenAITaskError maps an orchestrator error onto the provider envelope.
func writeOpenAITaskError(w http.ResponseWriter, err error) {
	e := classify(err)
	code, typ := "server_error", "server_error"
	switch e.code {
	case ErrCodeInvalidRequest:
		code, typ = "invalid_parameter", "invalid_request_error"
	case ErrCodeSystemBusy:
		code = "server_busy"
	case ErrCodeTaskFailed:
		code, typ = "generation_failed", "api_error"
	case ErrCodeRetriesExhausted, ErrCodeProvisionTimeout, ErrCodeRequestCancelled:
		code = "timeout"
	}
	writeOpenAIError(w, e.status, code, typ, e.message, "")
}
