package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adu4862/banana-api/internal/pool"
	"github.com/adu4862/banana-api/internal/session"
	"github.com/adu4862/banana-api/internal/store"
)

func TestWriteAPIError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "invalid request",
			err:        fmt.Errorf("%w: prompt is required", session.ErrInvalidRequest),
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeInvalidRequest,
		},
		{
			name:       "task not found",
			err:        session.ErrTaskNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   ErrCodeTaskNotFound,
		},
		{
			name:       "store not found",
			err:        fmt.Errorf("wrap: %w", store.ErrNotFound),
			wantStatus: http.StatusNotFound,
			wantCode:   ErrCodeTaskNotFound,
		},
		{
			name:       "system busy",
			err:        session.ErrBusy,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   ErrCodeSystemBusy,
		},
		{
			name:       "disconnected",
			err:        fmt.Errorf("%w: slot 0", session.ErrDisconnected),
			wantStatus: http.StatusInternalServerError,
			wantCode:   ErrCodeDisconnected,
		},
		{
			name:       "provision timeout",
			err:        pool.ErrProvisionTimeout,
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   ErrCodeProvisionTimeout,
		},
		{
			name:       "provision failed",
			err:        &pool.ProvisionError{Slot: 0, Err: errors.New("register button not found")},
			wantStatus: http.StatusInternalServerError,
			wantCode:   ErrCodeProvisionFailed,
		},
		{
			name:       "retries exhausted",
			err:        session.ErrRetriesExhausted,
			wantStatus: http.StatusInternalServerError,
			wantCode:   ErrCodeRetriesExhausted,
		},
		{
			name:       "client went away",
			err:        context.Canceled,
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   ErrCodeRequestCancelled,
		},
		{
			name:       "client went away during provisioning",
			err:        &pool.ProvisionError{Slot: 0, Err: fmt.Errorf("provisioning slot 0: %w", context.Canceled)},
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   ErrCodeRequestCancelled,
		},
		{
			name:       "provisioner ran out of time",
			err:        &pool.ProvisionError{Slot: 1, Err: fmt.Errorf("navigate: %w", context.DeadlineExceeded)},
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   ErrCodeProvisionTimeout,
		},
		{
			name:       "generic error",
			err:        fmt.Errorf("something went wrong"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   ErrCodeInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeAPIError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var env envelope
			require.NoError(t, decodeBody(rec, &env))
			assert.Equal(t, "error", env.Status)
			assert.Equal(t, tt.wantCode, env.ErrorCode)
			assert.NotEmpty(t, env.Message)
			assert.NotNil(t, env.Data)
		})
	}
}

func TestWriteAPIError_TaskErrorCarriesData(t *testing.T) {
	rec := httptest.NewRecorder()
	writeAPIError(rec, &session.TaskError{
		Message: "no video result captured within 5m0s",
		Data:    map[string]any{"current_url": "https://www.lovart.ai/canvas"},
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var env envelope
	require.NoError(t, decodeBody(rec, &env))
	assert.Equal(t, ErrCodeTaskFailed, env.ErrorCode)
	assert.Equal(t, "no video result captured within 5m0s", env.Message)
	assert.Equal(t, "https://www.lovart.ai/canvas", env.Data["current_url"])
}

func TestWriteValidationError(t *testing.T) {
	rec := httptest.NewRecorder()
	details := map[string]any{"field": "prompt"}
	writeValidationError(rec, "prompt is required", details)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var env envelope
	require.NoError(t, decodeBody(rec, &env))
	assert.Equal(t, ErrCodeInvalidRequest, env.ErrorCode)
	assert.Equal(t, "prompt is required", env.Message)
	assert.Equal(t, "prompt", env.Data["field"])
}

type openAIErrorBody struct {
	Error struct {
		Code    string  `json:"code"`
		Message string  `json:"message"`
		Type    string  `json:"type"`
		Param   *string `json:"param"`
	} `json:"error"`
}

func TestWriteOpenAITaskError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
		wantType   string
	}{
		{session.ErrBusy, http.StatusServiceUnavailable, "server_busy", "server_error"},
		{session.ErrDisconnected, http.StatusInternalServerError, "server_error", "server_error"},
		{&session.TaskError{Message: "boom"}, http.StatusInternalServerError, "generation_failed", "api_error"},
		{session.ErrRetriesExhausted, http.StatusInternalServerError, "timeout", "server_error"},
		{pool.ErrProvisionTimeout, http.StatusGatewayTimeout, "timeout", "server_error"},
	}
	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeOpenAITaskError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body openAIErrorBody
			require.NoError(t, decodeBody(rec, &body))
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.Equal(t, tt.wantType, body.Error.Type)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func decodeBody(rec *httptest.ResponseRecorder, v any) error {
	return json.NewDecoder(rec.Body).Decode(v)
}
