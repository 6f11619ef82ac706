package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/maruel/insertd/internal/server/dto"
)

// conflictError carries its own status without being a *dto.APIError.
type conflictError struct{}

func (conflictError) Error() string       { return "Table is busy" }
func (conflictError) StatusCode() int     { return http.StatusConflict }
func (conflictError) Code() dto.ErrorCode { return "busy" }

func TestHandleValidationError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"plain error", errors.New("database is required"), 400, `{"status":400,"error":"database is required"}`},
		{"api error", dto.UpsertRequiresPK(), 400, `{"status":400,"error":"Upsert requires ?pk=","error_code":"upsert_requires_pk"}`},
		{"custom status", conflictError{}, 409, `{"status":409,"error":"Table is busy","error_code":"busy"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handleValidationError(context.Background(), w, tt.err)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Content-Type"); got != "application/json" {
				t.Errorf("Content-Type = %q", got)
			}
			assertJSON(t, w.Body.Bytes(), tt.wantBody)
		})
	}
}
