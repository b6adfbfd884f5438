package shared

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/careminder/internal/platform/logger"
	"github.com/phrazzld/careminder/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetTraceID(context.WithValue(ctx, TraceIDKey, 123)))

	id := NewTraceID()
	assert.Len(t, id, 32)
	_, err := hex.DecodeString(id)
	assert.NoError(t, err)
	assert.NotEqual(t, id, NewTraceID())

	assert.Equal(t, id, GetTraceID(WithTraceID(ctx, id)))
}

func TestClaims(t *testing.T) {
	_, ok := GetClaims(context.Background())
	assert.False(t, ok)

	claims := &auth.Claims{PatientID: uuid.New()}
	got, ok := GetClaims(WithClaims(context.Background(), claims))
	require.True(t, ok)
	assert.Same(t, claims, got)
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name" validate:"required"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr error
		errText string
	}{
		{name: "valid", body: `{"name":"a"}`},
		{name: "empty body", body: "", wantErr: ErrEmptyBody},
		{name: "malformed", body: `{"name":`, errText: "unexpected EOF"},
		{name: "unknown field", body: `{"name":"a","extra":1}`, errText: "unknown field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p payload
			err := DecodeJSON(req, &p)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errText != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errText)
			default:
				require.NoError(t, err)
				assert.Equal(t, "a", p.Name)
			}
		})
	}
}

func TestValidateRequest(t *testing.T) {
	type payload struct {
		Name string `validate:"required"`
	}
	assert.NoError(t, ValidateRequest(&payload{Name: "a"}))
	assert.Error(t, ValidateRequest(&payload{}))
}

func TestRespondWithJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	RespondWithJSON(w, req, http.StatusCreated, map[string]int{"n": 1})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"n":1}`, w.Body.String())
}

func TestRespondWithErrorAndLog(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		opts      []ResponseOption
		wantLevel string
	}{
		{"server error", http.StatusInternalServerError, nil, "ERROR"},
		{"client error", http.StatusNotFound, nil, "DEBUG"},
		{"elevated client error", http.StatusForbidden, []ResponseOption{WithElevatedLogLevel()}, "WARN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := logger.GetTestLogger(t)
			ctx := logger.WithLogger(WithTraceID(context.Background(), "trace-1"), log)
			req := httptest.NewRequest(http.MethodGet, "/api/x", nil).WithContext(ctx)
			w := httptest.NewRecorder()

			err := errors.New("dial postgres://care:s3cret@db:5432 failed")
			RespondWithErrorAndLog(w, req, tt.status, "try again", err, tt.opts...)

			assert.Equal(t, tt.status, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, ErrorResponse{Error: "try again", TraceID: "trace-1"}, resp)
			assert.NotContains(t, w.Body.String(), "s3cret")

			entries, err := buf.GetLogEntries()
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, tt.wantLevel, entries[0]["level"])
			assert.NotContains(t, entries[0]["error"], "s3cret")
		})
	}
}
