package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusMux_Endpoints(t *testing.T) {
	metrics := NewMetrics()
	metrics.event(eventTypeTurnStarted)
	metrics.setState(StateListening)
	metrics.setDuty(ChannelBlue, 100)

	srv := httptest.NewServer(newStatusMux(metrics, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `voiceglow_events_total{type="conversation_turn_started"} 1`)
	assert.Contains(t, text, `voiceglow_dispatcher_state{state="listening"} 1`)
	assert.Contains(t, text, `voiceglow_dispatcher_state{state="breathing"} 0`)
	assert.Contains(t, text, `voiceglow_channel_duty_percent{channel="blue"} 100`)

	resp, err = http.Get(srv.URL + "/ws/state")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no hub, no state stream")
}

func TestRunHTTPServer_ShutsDownOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runHTTPServer(ctx, addr, newStatusMux(nil, nil), discardLogger()) }()

	waitUntil(t, 2*time.Second, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, "status server did not come up")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("status server did not stop")
	}
}

func TestRunHTTPServer_ListenError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	err = runHTTPServer(context.Background(), l.Addr().String(), http.NotFoundHandler(), discardLogger())
	assert.Error(t, err)
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.event("x")
	m.hardwareFault(ChannelRed)
	m.breatheStep()
	m.setDuty(ChannelRed, 1)
	m.setState(StateIdle)
	m.setQueueDepth(3)
	m.buttonPress()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
