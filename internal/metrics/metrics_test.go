package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.RoomCreated()
	m.FrameSent()
	m.FrameSent()
	m.Utterance("elevenlabs", "marked")
	m.Bootstrap("telephony", "attached")
	m.ObserveRetrieval("query", errors.New("boom"), 10*time.Millisecond)

	require.Equal(t, 1.0, testutil.ToFloat64(m.connectionsActive))
	require.Equal(t, 1.0, testutil.ToFloat64(m.roomsActive))
	require.Equal(t, 2.0, testutil.ToFloat64(m.framesSent))
	require.Equal(t, 1.0, testutil.ToFloat64(m.utterancesTotal.WithLabelValues("elevenlabs", "marked")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.bootstrapTotal.WithLabelValues("telephony", "attached")))
	require.Equal(t, 1, testutil.CollectAndCount(m.retrievalDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ConnectionOpened()
	m.RoomDeleted()
	m.FrameSent()
	m.Utterance("p", "failed")
	m.ObserveSynthesis("p", time.Second)
	m.ObserveRetrieval("ingest", nil, time.Second)
}
