package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "data",
			write:      func(w http.ResponseWriter) { JSON(w, http.StatusCreated, map[string]string{"id": "e1"}) },
			wantStatus: http.StatusCreated,
			wantBody:   `{"success":true,"data":{"id":"e1"}}`,
		},
		{
			name: "empty page keeps its total",
			write: func(w http.ResponseWriter) {
				JSONWithMeta(w, http.StatusOK, []string{}, NewMeta(1, 20, 0))
			},
			wantStatus: http.StatusOK,
			wantBody:   `{"success":true,"data":[],"meta":{"page":1,"per_page":20,"total":0,"total_pages":0}}`,
		},
		{
			name:       "partial last page",
			write:      func(w http.ResponseWriter) { JSONWithMeta(w, http.StatusOK, []int{1}, NewMeta(3, 2, 5)) },
			wantStatus: http.StatusOK,
			wantBody:   `{"success":true,"data":[1],"meta":{"page":3,"per_page":2,"total":5,"total_pages":3}}`,
		},
		{
			name:       "inconsistent ledger",
			write:      func(w http.ResponseWriter) { UnprocessableEntity(w, "shares do not add up") },
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   `{"success":false,"error":{"code":"LEDGER_INCONSISTENT","message":"shares do not add up"}}`,
		},
		{
			name:       "not found",
			write:      func(w http.ResponseWriter) { NotFound(w, "expense not found") },
			wantStatus: http.StatusNotFound,
			wantBody:   `{"success":false,"error":{"code":"NOT_FOUND","message":"expense not found"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestUnencodableData(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusOK, map[string]any{"bad": make(chan int)})

	assert.Equal(t, http.StatusOK, rec.Code)
	var body APIResponse
	assert.Error(t, json.Unmarshal(rec.Body.Bytes(), &body), "nothing valid is written for data that cannot be encoded")
	require.NotPanics(t, func() { JSON(httptest.NewRecorder(), http.StatusOK, func() {}) })
}
