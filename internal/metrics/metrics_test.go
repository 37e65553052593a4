package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code, rec.Body.String()
}

func TestMetricsExposure(t *testing.T) {
	m := New()
	m.ObserveSearch("ok")
	m.ObservePost("acted")
	m.ObserveAction("like", "succeeded", "")
	m.ObserveAction("retweet", "skipped", "duplicate")
	m.IncAPIRetry("search")
	m.ObserveCycle(1500 * time.Millisecond)

	code, body := scrape(t, m.Handler(nil), "/metrics")
	require.Equal(t, http.StatusOK, code)

	for _, line := range []string{
		`amplibot_searches_total{result="ok"} 1`,
		`amplibot_posts_processed_total{decision="acted"} 1`,
		`amplibot_actions_total{kind="like",reason="",status="succeeded"} 1`,
		`amplibot_actions_total{kind="retweet",reason="duplicate",status="skipped"} 1`,
		`amplibot_api_retries_total{endpoint="search"} 1`,
		`amplibot_cycle_duration_seconds_count 1`,
	} {
		assert.Contains(t, body, line)
	}
}

func TestHealthEndpoint(t *testing.T) {
	m := New()

	t.Run("healthy", func(t *testing.T) {
		code, _ := scrape(t, m.Handler(func() bool { return true }), "/health")
		assert.Equal(t, http.StatusOK, code)
	})

	t.Run("unhealthy", func(t *testing.T) {
		code, body := scrape(t, m.Handler(func() bool { return false }), "/health")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unhealthy\n", body)
	})

	t.Run("no checker", func(t *testing.T) {
		code, _ := scrape(t, m.Handler(nil), "/health")
		assert.Equal(t, http.StatusOK, code)
	})
}

func TestStartServer_Disabled(t *testing.T) {
	assert.Nil(t, New().StartServer(t.Context(), "", nil))
}
