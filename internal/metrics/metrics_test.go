package metrics

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveQuery(t *testing.T) {
	m := New()

	m.ObserveQuery("random", 5)
	m.ObserveQuery("search", 2)
	m.ObserveQuery("search", 0)

	assert.InDelta(t, 1, testutil.ToFloat64(m.queries.WithLabelValues("random")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.queries.WithLabelValues("search")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.results))
}

func TestAnswerFailedAndQuotations(t *testing.T) {
	m := New()

	m.AnswerFailed()
	m.AnswerFailed()
	m.SetQuotations(42)

	assert.InDelta(t, 2, testutil.ToFloat64(m.failures), 0)
	assert.InDelta(t, 42, testutil.ToFloat64(m.quotations), 0)
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveQuery("search", 3)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `quotebot_inline_queries_total{mode="search"} 1`)
	assert.Contains(t, string(body), "quotebot_inline_results_bucket")
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	m := New()
	m.SetQuotations(7)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.serve(ctx, ln, slog.New(slog.NewTextHandler(io.Discard, nil))) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "quotebot_quotations_loaded 7")

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}

	_, err = http.Get("http://" + ln.Addr().String() + "/metrics")
	assert.Error(t, err)
}

func TestServe_AddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	err = New().Serve(context.Background(), ln.Addr().String(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics listener")
}
