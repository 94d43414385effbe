package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/bridge"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/dispatch"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/domain"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/platform/config"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/presence"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/registry"
)

type testEnv struct {
	server   *Server
	registry *registry.Registry
	bridge   *bridge.Bridge
	httpSrv  *httptest.Server
	wsURL    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		AppEnv:            "test",
		Port:              "0",
		HeartbeatInterval: 30 * time.Second,
		MaxConnections:    100,
		PublicTenantID:    "public",
		WSRatePerSecond:   1000,
		WSBurst:           1000,
	}

	clock := clockwork.NewRealClock()
	reg := registry.New(clock, cfg.MaxConnections)
	t.Cleanup(func() { reg.CloseAll("test teardown") })

	br := bridge.New(nil, reg)
	tracker := presence.New(nil, reg, clock, presence.DefaultTTL)
	dispatcher := dispatch.New(reg, clock)

	srv := NewServer(cfg, reg, br, tracker, dispatcher, HeaderAuthenticator{}, nil, clock)

	httpSrv := httptest.NewServer(srv.echo)
	t.Cleanup(httpSrv.Close)

	return &testEnv{
		server:   srv,
		registry: reg,
		bridge:   br,
		httpSrv:  httpSrv,
		wsURL:    "ws" + strings.TrimPrefix(httpSrv.URL, "http"),
	}
}

func identityHeaders(userID, tenantID, role string) http.Header {
	h := http.Header{}
	h.Set(headerUserID, userID)
	if tenantID != "" {
		h.Set(headerTenantID, tenantID)
	}
	if role != "" {
		h.Set(headerRole, role)
	}
	return h
}

func dial(t *testing.T, url string, header http.Header) *ws.Conn {
	t.Helper()
	conn, resp, err := ws.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *ws.Conn) domain.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var env domain.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestWebSocket_RejectsMissingIdentity(t *testing.T) {
	env := newTestEnv(t)

	_, resp, err := ws.DefaultDialer.Dial(env.wsURL+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocket_SendsSingleConnectedEnvelope(t *testing.T) {
	env := newTestEnv(t)

	conn := dial(t, env.wsURL+"/ws", identityHeaders("u1", "t1", "teacher"))

	first := readEnvelope(t, conn)
	assert.Equal(t, domain.TypeConnected, first.Type)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(first.Payload, &payload))
	assert.NotEmpty(t, payload["connection_id"])
}

func TestWebSocket_SubscribeAndReceive(t *testing.T) {
	env := newTestEnv(t)

	conn := dial(t, env.wsURL+"/ws", identityHeaders("u1", "t1", ""))
	readEnvelope(t, conn) // connected

	frame, _ := json.Marshal(domain.Frame{Type: domain.FrameSubscribe, Channel: "exam-results"})
	require.NoError(t, conn.WriteMessage(ws.TextMessage, frame))

	waitFor(t, 2*time.Second, func() bool {
		return env.registry.DeliverLocal(domain.TargetChannel("exam-results"), mustEnvelope(t, domain.TypeNotification)) == 1
	})

	received := readEnvelope(t, conn)
	assert.Equal(t, domain.TypeNotification, received.Type)
}

func mustEnvelope(t *testing.T, typ string) domain.Envelope {
	t.Helper()
	env, err := domain.NewEnvelope(typ, nil, time.Now())
	require.NoError(t, err)
	return env
}

func TestWebSocket_DisconnectDeregisters(t *testing.T) {
	env := newTestEnv(t)

	conn := dial(t, env.wsURL+"/ws", identityHeaders("u1", "t1", ""))
	readEnvelope(t, conn)
	require.Equal(t, 1, env.registry.ConnectionCount(""))

	conn.Close()

	waitFor(t, 2*time.Second, func() bool {
		return env.registry.ConnectionCount("") == 0
	})
}

func TestWebSocket_OversizedFrameClosesConnection(t *testing.T) {
	env := newTestEnv(t)

	conn := dial(t, env.wsURL+"/ws", identityHeaders("u1", "t1", ""))
	readEnvelope(t, conn)
	require.Equal(t, 1, env.registry.ConnectionCount(""))

	big := make([]byte, maxFrameSize+1)
	require.NoError(t, conn.WriteMessage(ws.TextMessage, big))

	// The server drops the socket instead of buffering the frame.
	waitFor(t, 2*time.Second, func() bool {
		return env.registry.ConnectionCount("") == 0
	})
}

func TestWebSocketPublic_DefaultChannel(t *testing.T) {
	env := newTestEnv(t)

	conn := dial(t, env.wsURL+"/ws/public", nil)
	readEnvelope(t, conn) // connected

	waitFor(t, 2*time.Second, func() bool {
		return env.registry.DeliverLocal(domain.TargetChannel("tenant:public"), mustEnvelope(t, domain.TypeAlert)) == 1
	})
	received := readEnvelope(t, conn)
	assert.Equal(t, domain.TypeAlert, received.Type)
}

func TestWebSocketPublic_RejectsForeignChannel(t *testing.T) {
	env := newTestEnv(t)

	_, resp, err := ws.DefaultDialer.Dial(env.wsURL+"/ws/public?channel=tenant:t1", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketPublic_SubscribeDenied(t *testing.T) {
	env := newTestEnv(t)

	conn := dial(t, env.wsURL+"/ws/public?channel=tenant:public:news", nil)
	readEnvelope(t, conn) // connected

	frame, _ := json.Marshal(domain.Frame{Type: domain.FrameSubscribe, Channel: "tenant:t1"})
	require.NoError(t, conn.WriteMessage(ws.TextMessage, frame))

	errEnv := readEnvelope(t, conn)
	assert.Equal(t, domain.TypeError, errEnv.Type)
}

func TestRateLimiter_Throttles(t *testing.T) {
	limiter := newUpgradeRateLimiter(1, 2)

	assert.True(t, limiter.allow("10.0.0.1"))
	assert.True(t, limiter.allow("10.0.0.1"))
	assert.False(t, limiter.allow("10.0.0.1"), "burst exhausted")
	assert.True(t, limiter.allow("10.0.0.2"), "other sources are unaffected")
}

func TestAPI_Presence(t *testing.T) {
	env := newTestEnv(t)

	conn := dial(t, env.wsURL+"/ws", identityHeaders("u1", "t1", ""))
	readEnvelope(t, conn)

	resp, err := http.Get(env.httpSrv.URL + "/api/presence?tenant=t1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Tenant string   `json:"tenant"`
		Online []string `json:"online"`
		Count  int      `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "t1", body.Tenant)
	assert.Equal(t, []string{"u1"}, body.Online)
	assert.Equal(t, 1, body.Count)
}

func TestAPI_Connections(t *testing.T) {
	env := newTestEnv(t)

	conn := dial(t, env.wsURL+"/ws", identityHeaders("u1", "t1", "teacher"))
	readEnvelope(t, conn)
	conn2 := dial(t, env.wsURL+"/ws", identityHeaders("u2", "t2", ""))
	readEnvelope(t, conn2)

	resp, err := http.Get(env.httpSrv.URL + "/api/connections?tenant=t1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Count       int                       `json:"count"`
		Connections []registry.ConnectionInfo `json:"connections"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "u1", body.Connections[0].UserID)
}

func TestAPI_Broadcast(t *testing.T) {
	env := newTestEnv(t)

	conn := dial(t, env.wsURL+"/ws", identityHeaders("u1", "t1", ""))
	readEnvelope(t, conn)

	body := strings.NewReader(`{"target":"tenant:t1","type":"alert","message":"fire drill"}`)
	resp, err := http.Post(env.httpSrv.URL+"/api/broadcast", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var result struct {
		DeliveredLocal int `json:"delivered_local"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 1, result.DeliveredLocal)

	received := readEnvelope(t, conn)
	assert.Equal(t, domain.TypeAlert, received.Type)
	assert.Equal(t, "fire drill", received.Message)
}

func TestAPI_BroadcastRejectsBadTarget(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.httpSrv.URL+"/api/broadcast", "application/json",
		strings.NewReader(`{"target":"nonsense target","type":"alert"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.httpSrv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReadyz_LocalOnlyMode(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.httpSrv.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status string `json:"status"`
		Mode   string `json:"mode"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ready", body.Status)
	assert.Equal(t, "local-only", body.Mode)
}
