package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionsTotal(t *testing.T) {
	before := testutil.ToFloat64(ActionsTotal.WithLabelValues(ResultSuccess))
	ActionsTotal.WithLabelValues(ResultSuccess).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(ActionsTotal.WithLabelValues(ResultSuccess)))
}

func TestGauges(t *testing.T) {
	FrontendConnections.Set(0)
	FrontendConnections.Inc()
	FrontendConnections.Inc()
	FrontendConnections.Dec()
	assert.Equal(t, 1.0, testutil.ToFloat64(FrontendConnections))
}

func TestHandler(t *testing.T) {
	ActionLatency.Observe(0.02)
	ForwardedActions.WithLabelValues("out").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, name := range []string{
		"carta_frontend_connections",
		"carta_action_latency_seconds_bucket",
		`carta_forwarded_actions_total{direction="out"}`,
	} {
		assert.True(t, strings.Contains(body, name), "missing %s", name)
	}
}
