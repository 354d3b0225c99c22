package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		kind   Kind
		code   string
		status int
	}{
		{model.ErrUnauthenticated, KindUnauthenticated, CodeUnauthenticated, http.StatusUnauthorized},
		{model.ErrNotHost, KindUnauthorized, CodeNotHost, http.StatusForbidden},
		{model.ErrRoomNotFound, KindNotFound, CodeRoomNotFound, http.StatusNotFound},
		{model.ErrRoomFull, KindConflict, CodeRoomFull, http.StatusConflict},
		{model.ErrSpawnClaimed, KindConflict, CodeSpawnClaimed, http.StatusConflict},
		{model.ErrInvalidColor, KindValidation, CodeValidation, http.StatusBadRequest},
		{model.ErrRateLimited, KindRateLimited, CodeRateLimited, http.StatusTooManyRequests},
		{fmt.Errorf("get room: %w", storage.ErrUnavailable), KindTransient, CodeUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", model.ErrBanned), KindUnauthorized, CodeBanned, http.StatusForbidden},
		{errors.New("pq: relation does not exist"), KindInternal, CodeInternalError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			e := Classify(tt.err)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, tt.status, e.Kind.Status())
		})
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, errors.New("dial tcp 10.0.0.5:5432: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "10.0.0.5")

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, ErrorResponse{Status: "error", Kind: KindInternal, Code: CodeInternalError, Message: "internal server error"}, body)
}

func TestWriteErrorTransientMessage(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, fmt.Errorf("redis: %w: i/o timeout", storage.ErrUnavailable))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.NotContains(t, rr.Body.String(), "i/o timeout")
}

func TestWriteErrorRateLimited(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, model.ErrRateLimited)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
}

func TestExplicitErrorsPassThrough(t *testing.T) {
	e := Classify(NewInvalidRequestError("bad json"))
	assert.Equal(t, KindValidation, e.Kind)
	assert.Equal(t, CodeInvalidRequest, e.Code)
	assert.Equal(t, "bad json", e.Message)
}
