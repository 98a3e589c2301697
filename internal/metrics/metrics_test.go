package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.FrameReceived("next")
	m.FrameReceived("next")
	m.FrameDropped()
	m.Reconnected()
	m.ReconnectFailed()
	m.ReconnectFailed()
	m.HandlerInvoked()
	m.HandlerPanicked()
	m.SetActive(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesReceived.WithLabelValues("next")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconnects))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReconnectFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HandlerInvocations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HandlerPanics))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ActiveSubscriptions))

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestMetrics_DoubleRegisterFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.FrameReceived("next")
	m.FrameDropped()
	m.Reconnected()
	m.ReconnectFailed()
	m.HandlerInvoked()
	m.HandlerPanicked()
	m.SetActive(1)
}

func TestMetrics_Unregistered(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	m.FrameDropped()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesDropped))
}
