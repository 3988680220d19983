package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// Validation happens before the store is touched, so a nil store is fine here.
func postTopup(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewHandler(nil, zerolog.Nop())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/topups", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateTopupHandler(rec, req)
	return rec
}

func TestCreateTopupValidation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantMsg  string
	}{
		{
			name:     "malformed json",
			body:     "{not json",
			wantCode: http.StatusBadRequest,
			wantMsg:  "Malformed JSON body",
		},
		{
			name:     "blank phone number",
			body:     `{"phone_number":"  ","amount":"10.00","carrier":"MOVISTAR"}`,
			wantCode: http.StatusUnprocessableEntity,
			wantMsg:  "Phone number cannot be blank",
		},
		{
			name:     "zero amount",
			body:     `{"phone_number":"987654321","amount":"0","carrier":"MOVISTAR"}`,
			wantCode: http.StatusUnprocessableEntity,
			wantMsg:  "Amount must be positive",
		},
		{
			name:     "negative amount",
			body:     `{"phone_number":"987654321","amount":"-5.00","carrier":"MOVISTAR"}`,
			wantCode: http.StatusUnprocessableEntity,
			wantMsg:  "Amount must be positive",
		},
		{
			name:     "missing carrier",
			body:     `{"phone_number":"987654321","amount":"10.00"}`,
			wantCode: http.StatusUnprocessableEntity,
			wantMsg:  "Carrier cannot be blank",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := postTopup(t, tc.body)
			if rec.Code != tc.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tc.wantMsg) {
				t.Errorf("body = %s, want message %q", rec.Body.String(), tc.wantMsg)
			}
		})
	}
}
