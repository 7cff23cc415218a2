package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ssargent/filekv/pkg/store"
)

const defaultMaxBodyBytes = 8 << 20

// Server holds the API server state
type Server struct {
	store   IKVStore
	config  ServerConfig
	metrics *Metrics
	logger  *slog.Logger
}

// NewServer creates a new API server
func NewServer(store IKVStore, config ServerConfig, metrics *Metrics) *Server {
	if metrics == nil {
		metrics = NewMetrics()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Server{
		store:   store,
		config:  config,
		metrics: metrics,
		logger:  logger,
	}
}

// observe records a store operation and passes its error through
func (s *Server) observe(op string, start time.Time, err error) error {
	s.metrics.RecordDBOperation(op, err == nil, time.Since(start))
	if err != nil && statusForError(err) >= http.StatusInternalServerError {
		s.logger.Error("store operation failed", "op", op, "error", err)
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordHealthCheck(true)
	sendSuccess(w, map[string]string{"status": "healthy"})
}

// handleCreate stores a new key; POST /kv/{key}
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(w, r, "key")
	if !ok {
		return
	}
	value, ok := s.readJSON(w, r)
	if !ok {
		return
	}
	start := time.Now()
	if err := s.observe("create", start, s.store.Create(key, value)); err != nil {
		sendStoreError(w, err)
		return
	}
	sendStatus(w, map[string]string{"key": key}, http.StatusCreated)
}

// handleGet reads a key; GET /kv/{key}
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(w, r, "key")
	if !ok {
		return
	}
	var value interface{}
	start := time.Now()
	if err := s.observe("read", start, s.store.Read(key, &value)); err != nil {
		sendStoreError(w, err)
		return
	}
	sendSuccess(w, KeyValueResponse{Key: key, Value: JSONSafe(value)})
}

// handleUpdate replaces an existing key; PUT /kv/{key}
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(w, r, "key")
	if !ok {
		return
	}
	value, ok := s.readJSON(w, r)
	if !ok {
		return
	}
	start := time.Now()
	if err := s.observe("update", start, s.store.Update(key, value)); err != nil {
		sendStoreError(w, err)
		return
	}
	sendSuccess(w, map[string]string{"key": key})
}

// handleDelete removes a key; DELETE /kv/{key}
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(w, r, "key")
	if !ok {
		return
	}
	start := time.Now()
	if err := s.observe("delete", start, s.store.Delete(key)); err != nil {
		sendStoreError(w, err)
		return
	}
	sendSuccess(w, map[string]string{"key": key})
}

// handleListKeys lists live keys; GET /kv?prefix=
func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	keys, err := s.store.ListPrefix(r.URL.Query().Get("prefix"))
	if err := s.observe("list", start, err); err != nil {
		sendStoreError(w, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	sendSuccess(w, keys)
}

// handleListGet returns a list's elements; GET /lists/{name}
func (s *Server) handleListGet(w http.ResponseWriter, r *http.Request) {
	name, ok := keyParam(w, r, "name")
	if !ok {
		return
	}
	start := time.Now()
	items, err := s.store.LItems(name)
	if err := s.observe("lget", start, err); err != nil {
		sendStoreError(w, err)
		return
	}
	resp := ListResponse{Name: name, Items: make([]interface{}, 0, len(items))}
	for _, it := range items {
		var v interface{}
		if err := it.Decode(&v); err != nil {
			sendError(w, fmt.Sprintf("decode item %d: %v", it.Position, err), http.StatusInternalServerError)
			return
		}
		resp.Items = append(resp.Items, JSONSafe(v))
	}
	sendSuccess(w, resp)
}

// handleListAppend appends to a list, creating it if needed; POST /lists/{name}.
// A JSON array body appends each element; any other value appends itself.
func (s *Server) handleListAppend(w http.ResponseWriter, r *http.Request) {
	name, ok := keyParam(w, r, "name")
	if !ok {
		return
	}
	body, ok := s.readJSON(w, r)
	if !ok {
		return
	}
	values, isArray := body.([]interface{})
	if !isArray {
		values = []interface{}{body}
	}

	start := time.Now()
	err := s.store.LCreate(name)
	if errors.Is(err, store.ErrKeyExists) {
		err = nil
	}
	if err == nil {
		err = s.store.LExtend(name, values...)
	}
	if err := s.observe("lextend", start, err); err != nil {
		sendStoreError(w, err)
		return
	}
	sendSuccess(w, map[string]interface{}{"name": name, "added": len(values)})
}

// handleListDelete removes a list; DELETE /lists/{name}
func (s *Server) handleListDelete(w http.ResponseWriter, r *http.Request) {
	name, ok := keyParam(w, r, "name")
	if !ok {
		return
	}
	start := time.Now()
	n, err := s.store.LRemList(name)
	if err := s.observe("lremlist", start, err); err != nil {
		sendStoreError(w, err)
		return
	}
	sendSuccess(w, map[string]interface{}{"name": name, "removed": n})
}

// handleCompact rewrites the store file; POST /compact
func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	res, err := s.store.Compact()
	s.metrics.RecordCompaction(err == nil)
	if err := s.observe("compact", start, err); err != nil {
		sendStoreError(w, err)
		return
	}
	s.refreshStats()
	sendSuccess(w, res)
}

// handleStats reports store statistics; GET /stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	stats, err := s.store.Stats()
	if err := s.observe("stats", start, err); err != nil {
		sendStoreError(w, err)
		return
	}
	sendSuccess(w, stats)
}

// keyParam extracts and unescapes a path parameter
func keyParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		sendError(w, "Key is required", http.StatusBadRequest)
		return "", false
	}
	key, err := url.PathUnescape(raw)
	if err != nil {
		sendError(w, "Invalid key encoding", http.StatusBadRequest)
		return "", false
	}
	return key, true
}

// readJSON decodes the request body as a single JSON value
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request) (interface{}, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendError(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return nil, false
		}
		sendError(w, "Failed to read request body", http.StatusBadRequest)
		return nil, false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		sendError(w, "Request body is required", http.StatusBadRequest)
		return nil, false
	}
	var value interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		sendError(w, "Invalid JSON in request body", http.StatusBadRequest)
		return nil, false
	}
	if dec.More() {
		sendError(w, "Request body must hold a single JSON value", http.StatusBadRequest)
		return nil, false
	}
	return NormalizeNumbers(value), true
}

// NormalizeNumbers turns json.Number into int64 or float64 so every codec
// can encode the value
func NormalizeNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case []interface{}:
		for i := range t {
			t[i] = NormalizeNumbers(t[i])
		}
		return t
	case map[string]interface{}:
		for k := range t {
			t[k] = NormalizeNumbers(t[k])
		}
		return t
	default:
		return v
	}
}

// JSONSafe converts decoded values that encoding/json cannot represent,
// such as maps with non-string keys from the binary codec
func JSONSafe(v interface{}) interface{} {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = JSONSafe(val)
		}
		return out
	case map[string]interface{}:
		for k := range t {
			t[k] = JSONSafe(t[k])
		}
		return t
	case []interface{}:
		for i := range t {
			t[i] = JSONSafe(t[i])
		}
		return t
	case []byte:
		return string(t)
	default:
		return v
	}
}

// startMetricsUpdater periodically refreshes store gauges until ctx ends
func (s *Server) startMetricsUpdater(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.refreshStats()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshStats()
		}
	}
}

func (s *Server) refreshStats() {
	stats, err := s.store.Stats()
	if err != nil {
		s.logger.Warn("failed to refresh store metrics", "error", err)
		return
	}
	s.metrics.UpdateDBStats(stats.LiveKeys, stats.Tombstones, stats.DeadRecords, stats.FileSize)
}
