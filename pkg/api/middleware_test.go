package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/filekv/pkg/store"
)

func TestAPIKeyMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		apiKey         string
		requestHeader  string
		expectedStatus int
	}{
		{
			name:           "valid API key",
			apiKey:         "test-key",
			requestHeader:  "test-key",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "missing API key header",
			apiKey:         "test-key",
			requestHeader:  "",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "invalid API key",
			apiKey:         "test-key",
			requestHeader:  "wrong-key",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "prefix of the key",
			apiKey:         "test-key",
			requestHeader:  "test",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			handler := apiKeyMiddleware(tt.apiKey)(testHandler)

			req := httptest.NewRequest("GET", "/test", nil)
			if tt.requestHeader != "" {
				req.Header.Set("X-API-Key", tt.requestHeader)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestSendError(t *testing.T) {
	w := httptest.NewRecorder()
	sendError(w, "boom", http.StatusTeapot)

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp APIResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "boom", resp.Error)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: \"k\"", store.ErrKeyNotFound), http.StatusNotFound},
		{store.ErrKeyExists, http.StatusConflict},
		{store.ErrWrongKind, http.StatusConflict},
		{store.ErrInvalidKey, http.StatusBadRequest},
		{store.ErrIndexOutOfRange, http.StatusBadRequest},
		{store.ErrUnencodable, http.StatusBadRequest},
		{store.ErrRecordTooLarge, http.StatusRequestEntityTooLarge},
		{store.ErrReadOnly, http.StatusForbidden},
		{store.ErrLockUnavailable, http.StatusServiceUnavailable},
		{store.ErrStoreClosed, http.StatusServiceUnavailable},
		{&store.CorruptionError{Path: "p", Offset: 40, Err: fmt.Errorf("bad")}, http.StatusInternalServerError},
		{&store.PersistenceError{Op: "write", Path: "p", Err: fmt.Errorf("disk full")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusForError(tt.err))
		})
	}
}

func TestNormalizeNumbers(t *testing.T) {
	in := map[string]interface{}{
		"int":   json.Number("42"),
		"float": json.Number("1.5"),
		"list":  []interface{}{json.Number("7")},
	}
	out := NormalizeNumbers(in).(map[string]interface{})
	assert.Equal(t, int64(42), out["int"])
	assert.Equal(t, 1.5, out["float"])
	assert.Equal(t, []interface{}{int64(7)}, out["list"])
}

func TestJSONSafe(t *testing.T) {
	in := map[interface{}]interface{}{1: "one", "nested": []interface{}{[]byte("raw")}}
	out := JSONSafe(in)
	assert.Equal(t, map[string]interface{}{"1": "one", "nested": []interface{}{"raw"}}, out)
}
