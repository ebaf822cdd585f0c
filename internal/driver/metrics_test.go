package driver

import (
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_CountersRegisterPerRun(t *testing.T) {
	t.Parallel()

	// Two runs must not collide on registration.
	a := NewMetrics()
	b := NewMetrics()

	a.UnitsCommitted.Inc()
	a.UnitsCommitted.Inc()
	b.UnitsParked.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.UnitsCommitted))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.UnitsCommitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.UnitsParked))
}

func TestMetrics_CloseWithoutServeIsNoop(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.Close()
	m.Close()
}

func TestMetrics_ServeThenCloseStopsListener(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.Serve("127.0.0.1:0", slog.Default())
	assert.NotNil(t, m.server)

	m.Close()
	assert.Nil(t, m.server)
}
