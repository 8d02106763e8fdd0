package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/streamkit/prefetcher/pkg/prefetch"
)

func TestNewServer_Validation(t *testing.T) {
	log := zap.NewNop().Sugar()
	reg := prometheus.NewRegistry()

	_, err := NewServer(nil, ":0", reg)
	require.ErrorContains(t, err, "invalid logger")

	_, err = NewServer(log, "", reg)
	require.ErrorContains(t, err, "invalid address")

	_, err = NewServer(log, ":0", nil)
	require.ErrorContains(t, err, "invalid gatherer")

	server, err := NewServer(log, ":0", reg)
	require.NoError(t, err)
	require.NotNil(t, server)
	require.Equal(t, ":0", server.httpServer.Addr)
}

func httpGet(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return http.DefaultClient.Do(req)
}

func TestServer_StartAndShutdown(t *testing.T) {
	reg := prometheus.NewRegistry()

	// Register some metrics so /metrics has content
	_, err := prefetch.NewMetrics(reg)
	require.NoError(t, err)

	server, err := NewServer(zap.NewNop().Sugar(), "127.0.0.1:19090", reg)
	require.NoError(t, err)

	errCh := server.Start()

	// Give server time to start
	time.Sleep(50 * time.Millisecond)

	resp, err := httpGet(t.Context(), "http://127.0.0.1:19090/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "ok", string(body))

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	err = server.Shutdown(ctx)
	require.NoError(t, err)

	// Verify no error was sent on errCh (normal shutdown)
	select {
	case err := <-errCh:
		require.NoError(t, err)
	default:
		// Channel may be closed without error, that's fine
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := prefetch.NewMetrics(reg)
	require.NoError(t, err)

	server, err := NewServer(zap.NewNop().Sugar(), "127.0.0.1:19091", reg)
	require.NoError(t, err)

	errCh := server.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
		<-errCh
	}()

	// Give server time to start
	time.Sleep(50 * time.Millisecond)

	resp, err := httpGet(t.Context(), "http://127.0.0.1:19091/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	bodyStr := string(body)
	require.Contains(t, bodyStr, "prefetcher_cached_entries")
	require.Contains(t, bodyStr, "prefetcher_cached_bytes")
}
