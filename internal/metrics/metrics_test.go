package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors_Count(t *testing.T) {
	c := New()
	c.Login(ResultSuccess)
	c.Login(ResultFailure)
	c.Login(ResultFailure)
	c.Refresh(ResultReused)
	c.Registration(ResultSuccess)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.logins.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.logins.WithLabelValues(ResultFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.refreshes.WithLabelValues(ResultReused)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.registrations.WithLabelValues(ResultSuccess)))
}

func TestCollectors_NilIsNoop(t *testing.T) {
	var c *Collectors
	assert.NotPanics(t, func() {
		c.Login(ResultSuccess)
		c.Refresh(ResultSuccess)
		c.Registration(ResultFailure)
	})
}

func TestCollectors_Handler(t *testing.T) {
	c := New()
	c.Refresh(ResultSuccess)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `userauth_refreshes_total{result="success"} 1`)
}
