package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/filekv/pkg/codec"
	"github.com/ssargent/filekv/pkg/logging"
	"github.com/ssargent/filekv/pkg/store"
)

func TestServer_ServeAndShutdown(t *testing.T) {
	kv, err := store.Open(filepath.Join(t.TempDir(), "serve.fkv"), codec.NewJSONCodec(), store.Options{Logger: logging.Discard()})
	require.NoError(t, err)
	defer kv.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := NewServer(kv, ServerConfig{Logger: logging.Discard()}, NewMetrics())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, ln) }()

	url := fmt.Sprintf("http://%s/api/v1/health", ln.Addr().String())
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestStartServer_BadAddress(t *testing.T) {
	kv, err := store.Open(filepath.Join(t.TempDir(), "bad.fkv"), codec.NewJSONCodec(), store.Options{Logger: logging.Discard()})
	require.NoError(t, err)
	defer kv.Close()

	err = NewServerFactory().CreateServerStarter().StartServer(context.Background(), kv, ServerConfig{
		Bind:   "256.0.0.1",
		Port:   1,
		Logger: logging.Discard(),
	})
	assert.Error(t, err)
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	// two instances must not panic on duplicate registration
	a := NewMetrics()
	b := NewMetrics()
	a.RecordCompaction(true)
	b.RecordCompaction(false)
	a.UpdateDBStats(3, 1, 2, 1024)

	families, err := a.Registry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["filekv_compactions_total"])
	assert.True(t, names["filekv_store_keys"])
}
