package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := New(reg)
	require.NoError(t, err)

	r.Observe(OpPredict, time.Now(), nil)
	r.Observe(OpPredict, time.Now(), nil)
	r.Observe(OpSync, time.Now(), errors.New("disk full"))
	r.Candidates("history", 3)
	r.SetEntries(42)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.operations.WithLabelValues(OpPredict, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.operations.WithLabelValues(OpSync, "error")))
	assert.Equal(t, 42.0, testutil.ToFloat64(r.entries))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "kanaserve_history_entries 42"))
}

func TestRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := New(reg)
	require.NoError(t, err)
	second, err := New(reg)
	require.NoError(t, err)

	second.SetEntries(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(first.entries), "collectors are shared")
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Observe(OpFinish, time.Now(), nil)
		r.Candidates("dictionary", 1)
		r.SetEntries(1)
	})
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}
