package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/filekv/pkg/codec"
	"github.com/ssargent/filekv/pkg/logging"
	"github.com/ssargent/filekv/pkg/store"
)

func setupTestServer(t *testing.T, c codec.Codec, config ServerConfig) (*httptest.Server, *store.Store) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "filekv_api_test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	kv, err := store.Open(filepath.Join(tmpDir, "api.fkv"), c, store.Options{Logger: logging.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	config.Logger = logging.Discard()
	server := NewServer(kv, config, NewMetrics())
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return ts, kv
}

func do(t *testing.T, ts *httptest.Server, method, path, body string, headers ...string) (int, APIResponse) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out APIResponse
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(bytes.TrimSpace(raw)) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestServer_Health(t *testing.T) {
	ts, _ := setupTestServer(t, codec.NewJSONCodec(), ServerConfig{})

	code, resp := do(t, ts, "GET", "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
	assert.Equal(t, map[string]interface{}{"status": "healthy"}, resp.Data)
}

func TestServer_KVLifecycle(t *testing.T) {
	for _, f := range []codec.Format{codec.FormatJSON, codec.FormatBinary, codec.FormatYAML, codec.FormatCBOR} {
		t.Run(f.String(), func(t *testing.T) {
			c, err := codec.New(f)
			require.NoError(t, err)
			ts, _ := setupTestServer(t, c, ServerConfig{})

			code, _ := do(t, ts, "POST", "/api/v1/kv/rect", `{"width":4,"length":10}`)
			assert.Equal(t, http.StatusCreated, code)

			code, resp := do(t, ts, "POST", "/api/v1/kv/rect", `1`)
			assert.Equal(t, http.StatusConflict, code)
			assert.False(t, resp.Success)

			code, resp = do(t, ts, "GET", "/api/v1/kv/rect", "")
			require.Equal(t, http.StatusOK, code)
			data := resp.Data.(map[string]interface{})
			assert.Equal(t, "rect", data["key"])
			assert.Equal(t, map[string]interface{}{"width": float64(4), "length": float64(10)}, data["value"])

			code, _ = do(t, ts, "PUT", "/api/v1/kv/rect", `"replaced"`)
			assert.Equal(t, http.StatusOK, code)
			_, resp = do(t, ts, "GET", "/api/v1/kv/rect", "")
			assert.Equal(t, "replaced", resp.Data.(map[string]interface{})["value"])

			code, _ = do(t, ts, "DELETE", "/api/v1/kv/rect", "")
			assert.Equal(t, http.StatusOK, code)
			code, _ = do(t, ts, "GET", "/api/v1/kv/rect", "")
			assert.Equal(t, http.StatusNotFound, code)
		})
	}
}

func TestServer_Errors(t *testing.T) {
	ts, _ := setupTestServer(t, codec.NewJSONCodec(), ServerConfig{MaxBodyBytes: 32})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"update missing", "PUT", "/api/v1/kv/missing", `1`, http.StatusNotFound},
		{"delete missing", "DELETE", "/api/v1/kv/missing", "", http.StatusNotFound},
		{"invalid json", "POST", "/api/v1/kv/bad", `{nope`, http.StatusBadRequest},
		{"empty body", "POST", "/api/v1/kv/bad", ``, http.StatusBadRequest},
		{"two values", "POST", "/api/v1/kv/bad", `1 2`, http.StatusBadRequest},
		{"too large", "POST", "/api/v1/kv/big", `"` + strings.Repeat("x", 64) + `"`, http.StatusRequestEntityTooLarge},
		{"missing list", "GET", "/api/v1/lists/none", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := do(t, ts, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, code)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestServer_ListKeys(t *testing.T) {
	ts, kv := setupTestServer(t, codec.NewJSONCodec(), ServerConfig{})
	for _, k := range []string{"user:2", "user:1", "order:1"} {
		require.NoError(t, kv.Create(k, true))
	}

	_, resp := do(t, ts, "GET", "/api/v1/kv", "")
	assert.Equal(t, []interface{}{"order:1", "user:1", "user:2"}, resp.Data)

	_, resp = do(t, ts, "GET", "/api/v1/kv?prefix=user:", "")
	assert.Equal(t, []interface{}{"user:1", "user:2"}, resp.Data)

	_, resp = do(t, ts, "GET", "/api/v1/kv?prefix=zzz", "")
	assert.Equal(t, []interface{}{}, resp.Data)
}

func TestServer_EscapedKey(t *testing.T) {
	ts, kv := setupTestServer(t, codec.NewJSONCodec(), ServerConfig{})

	code, _ := do(t, ts, "POST", "/api/v1/kv/a%20b", `"spaced"`)
	require.Equal(t, http.StatusCreated, code)

	var v string
	require.NoError(t, kv.Read("a b", &v))
	assert.Equal(t, "spaced", v)
}

func TestServer_Lists(t *testing.T) {
	ts, kv := setupTestServer(t, codec.NewJSONCodec(), ServerConfig{})

	code, _ := do(t, ts, "POST", "/api/v1/lists/events", `["a","b"]`)
	require.Equal(t, http.StatusOK, code)
	code, _ = do(t, ts, "POST", "/api/v1/lists/events", `{"n":1}`)
	require.Equal(t, http.StatusOK, code)

	n, err := kv.LLen("events")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, resp := do(t, ts, "GET", "/api/v1/lists/events", "")
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, []interface{}{"a", "b", map[string]interface{}{"n": float64(1)}}, data["items"])

	require.NoError(t, kv.Create("scalar", 1))
	code, _ = do(t, ts, "POST", "/api/v1/lists/scalar", `1`)
	assert.Equal(t, http.StatusConflict, code)

	code, resp = do(t, ts, "DELETE", "/api/v1/lists/events", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3), resp.Data.(map[string]interface{})["removed"])
}

func TestServer_CompactAndStats(t *testing.T) {
	ts, kv := setupTestServer(t, codec.NewJSONCodec(), ServerConfig{})
	require.NoError(t, kv.Create("a", 1))
	for i := 0; i < 5; i++ {
		require.NoError(t, kv.Update("a", i))
	}

	code, resp := do(t, ts, "POST", "/api/v1/compact", "")
	require.Equal(t, http.StatusOK, code)
	res := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(6), res["records_before"])
	assert.Equal(t, float64(1), res["records_after"])

	code, resp = do(t, ts, "GET", "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, code)
	stats := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(1), stats["live_keys"])
	assert.Equal(t, "json", stats["format"])
}

func TestServer_ReadOnlyStore(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "ro.fkv")
	w, err := store.Open(path, codec.NewJSONCodec(), store.Options{Logger: logging.Discard()})
	require.NoError(t, err)
	require.NoError(t, w.Create("a", 1))
	require.NoError(t, w.Close())

	ro, err := store.Open(path, codec.NewJSONCodec(), store.Options{ReadOnly: true, Logger: logging.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ro.Close() })

	ts := httptest.NewServer(NewServer(ro, ServerConfig{Logger: logging.Discard()}, nil).Router())
	t.Cleanup(ts.Close)

	code, _ := do(t, ts, "PUT", "/api/v1/kv/a", `2`)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = do(t, ts, "POST", "/api/v1/compact", "")
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = do(t, ts, "GET", "/api/v1/kv/a", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestServer_APIKey(t *testing.T) {
	ts, _ := setupTestServer(t, codec.NewJSONCodec(), ServerConfig{APIKey: "secret"})

	code, _ := do(t, ts, "GET", "/api/v1/health", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = do(t, ts, "GET", "/api/v1/health", "", "X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = do(t, ts, "GET", "/api/v1/health", "", "X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, code)

	// metrics stay open for scraping
	resp, err := ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "filekv_auth_requests_total")
	assert.Contains(t, string(body), "filekv_http_requests_total")
}
