package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Fanhub/internal/adapters/rtc"
	"github.com/dkeye/Fanhub/internal/adapters/signal"
	"github.com/dkeye/Fanhub/internal/app"
	"github.com/dkeye/Fanhub/internal/app/orch"
	"github.com/dkeye/Fanhub/internal/auth"
	"github.com/dkeye/Fanhub/internal/config"
	"github.com/dkeye/Fanhub/internal/domain"
	"github.com/dkeye/Fanhub/internal/store"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serviceToken = "router-test-service-token"

type fixture struct {
	srv       *httptest.Server
	validator *auth.Validator
	hub       *orch.Orchestrator
	signal    *signal.SignalWSController
	cancel    context.CancelFunc
}

func newFixture(t *testing.T, history HistoryReader) *fixture {
	return newFixtureWith(t, history, nil)
}

func newFixtureWith(t *testing.T, history HistoryReader, observer app.CallObserver) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Channels: app.NewChannelManager(),
		Policy:   app.SimplePolicy{},
		Calls:    app.NewCallTracker(app.CallTrackerOptions{Observer: observer}),
	}
	v := auth.NewValidator("router-test-secret")
	cfg := &config.Config{Mode: "test", Secret: "cookie-secret"}
	deps := Deps{
		Orch:         hub,
		Signal:       signal.NewSignalWSController(hub, signal.NewRateLimiter(100, time.Second), signal.Options{SendBuffer: 32, ReadLimit: 1 << 15}),
		Validator:    v,
		History:      history,
		ICEServers:   rtc.DefaultICEServers(),
		ServiceToken: serviceToken,
	}
	srv := httptest.NewServer(SetupRouter(ctx, cfg, deps))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, validator: v, hub: hub, signal: deps.Signal, cancel: cancel}
}

func (f *fixture) token(t *testing.T, uid domain.UserID) string {
	t.Helper()
	tok, err := f.validator.Issue(uid, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *fixture) dial(t *testing.T, uid domain.UserID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/ws/signal?token=" + f.token(t, uid)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	require.NoError(t, ws.WriteJSON(map[string]any{"type": "join-user", "userId": uid}))
	readType(t, ws, "joined")
	return ws
}

func (f *fixture) do(t *testing.T, method, path string, uid domain.UserID, body any) *http.Response {
	t.Helper()
	bearer := ""
	if uid.Valid() {
		bearer = f.token(t, uid)
	}
	return f.doBearer(t, method, path, bearer, body)
}

func (f *fixture) doBearer(t *testing.T, method, path, bearer string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// readType reads frames until one of the given type arrives.
func readType(t *testing.T, ws *websocket.Conn, event string) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var m map[string]any
		require.NoError(t, ws.ReadJSON(&m))
		if m["type"] == event {
			return m
		}
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	f := newFixture(t, nil)
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/ws/signal"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestJoinUserForeignIDIsForbidden(t *testing.T) {
	f := newFixture(t, nil)
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/ws/signal?token=" + f.token(t, 1)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(map[string]any{"type": "join-user", "userId": 2}))
	got := readType(t, ws, "error")
	assert.Equal(t, "forbidden", got["error"])
}

func TestCallOverRESTAndSocket(t *testing.T) {
	f := newFixture(t, nil)
	alice := f.dial(t, 1)
	bob := f.dial(t, 2)

	resp := f.do(t, http.MethodPost, "/api/calls", 1, StartCallRequest{ToUserID: 2, Kind: domain.CallVideo})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var call domain.Call
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&call))
	assert.Equal(t, domain.CallRinging, call.Status)

	incoming := readType(t, bob, "incoming-call")
	assert.EqualValues(t, call.ID, incoming["callId"])
	assert.EqualValues(t, 1, incoming["fromUserId"])

	resp = f.do(t, http.MethodPost, "/api/calls/"+call.ID.String()+"/accept", 1, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/calls/"+call.ID.String()+"/accept", 2, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	readType(t, alice, "call-accepted")

	resp = f.do(t, http.MethodPost, "/api/calls/"+call.ID.String()+"/reject", 2, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/calls/999/end", 2, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/calls", 1, StartCallRequest{ToUserID: 1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/calls", 0, StartCallRequest{ToUserID: 2})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// alice leaves: bob is told the peer is gone.
	require.NoError(t, alice.Close())
	gone := readType(t, bob, "peer-disconnected")
	assert.EqualValues(t, call.ID, gone["callId"])
	assert.EqualValues(t, 1, gone["userId"])
}

func TestNotifyPushesIntoChannels(t *testing.T) {
	f := newFixture(t, nil)
	bob := f.dial(t, 2)

	resp := f.doBearer(t, http.MethodPost, "/api/notify", serviceToken, map[string]any{
		"userId":  2,
		"type":    domain.EventTaskCreated,
		"payload": map[string]any{"taskId": 5, "title": "ship it"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	got := readType(t, bob, domain.EventTaskCreated)
	assert.EqualValues(t, 5, got["taskId"])
	assert.Equal(t, "ship it", got["title"])

	resp = f.doBearer(t, http.MethodPost, "/api/notify", serviceToken, map[string]any{"userId": 2, "type": "incoming-call"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.doBearer(t, http.MethodPost, "/api/notify", serviceToken, map[string]any{"userId": 2, "chatId": 3, "type": domain.EventTaskDeleted})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNotifyRefusesUserTokens(t *testing.T) {
	f := newFixture(t, nil)
	bob := f.dial(t, 2)

	forged := map[string]any{
		"userId":  2,
		"type":    domain.EventReceivePrivateMessage,
		"payload": map[string]any{"fromUserId": 1, "message": "send me your password"},
	}
	resp := f.do(t, http.MethodPost, "/api/notify", 3, forged)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/notify", 0, forged)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// nothing reached bob: the next frame he sees is his own pong.
	require.NoError(t, bob.WriteJSON(map[string]any{"type": "ping"}))
	require.NoError(t, bob.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m map[string]any
	require.NoError(t, bob.ReadJSON(&m))
	assert.Equal(t, "pong", m["type"])
}

func TestInfoEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	f.dial(t, 3)

	resp := f.do(t, http.MethodGet, "/api/health", 0, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/stats", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/stats", 3, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st orch.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, 1, st.Connections)
	require.Len(t, st.Channels, 1)
	assert.Equal(t, domain.ChannelName("user-3"), st.Channels[0].Name)

	resp = f.do(t, http.MethodGet, "/api/ice-servers", 0, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ice struct {
		ICEServers []struct {
			URLs []string `json:"urls"`
		} `json:"iceServers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ice))
	require.NotEmpty(t, ice.ICEServers)

	resp = f.do(t, http.MethodGet, "/metrics", 0, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/calls/history", 3, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHistoryFromStore(t *testing.T) {
	calls, err := store.Open(t.TempDir() + "/calls.db")
	require.NoError(t, err)
	defer calls.Close()
	now := time.Now()
	require.NoError(t, calls.Save(context.Background(), domain.Call{
		ID: 1, CallerID: 1, CalleeID: 2, Kind: domain.CallAudio, Status: domain.CallEnded,
		CreatedAt: now, AcceptedAt: now, EndedAt: now.Add(30 * time.Second),
	}))

	f := newFixture(t, calls)
	resp := f.do(t, http.MethodGet, "/api/calls/history?limit=10", 2, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Calls []store.HistoryEntry `json:"calls"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Calls, 1)
	assert.Equal(t, store.Incoming, body.Calls[0].Direction)
	assert.Equal(t, int64(30), body.Calls[0].Duration)

	resp = f.do(t, http.MethodGet, "/api/calls/history?limit=-1", 2, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestShutdownRecordsCallsEndedByTeardown(t *testing.T) {
	calls, err := store.Open(t.TempDir() + "/calls.db")
	require.NoError(t, err)
	defer calls.Close()

	rec := store.NewRecorder(calls, 16)
	recCtx, stopRecorder := context.WithCancel(context.Background())
	recorderDone := make(chan struct{})
	go func() {
		defer close(recorderDone)
		rec.Run(recCtx)
	}()

	f := newFixtureWith(t, calls, rec)
	f.dial(t, 1)
	bob := f.dial(t, 2)

	resp := f.do(t, http.MethodPost, "/api/calls", 1, StartCallRequest{ToUserID: 2})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var call domain.Call
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&call))
	readType(t, bob, "incoming-call")

	f.cancel()
	waitCtx, cancelWait := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelWait()
	require.NoError(t, f.signal.Wait(waitCtx))
	assert.Equal(t, 0, f.hub.Registry.Count())

	stopRecorder()
	<-recorderDone

	h, err := calls.History(context.Background(), 2, 10)
	require.NoError(t, err)
	require.Len(t, h, 1)
	assert.Equal(t, call.ID, h[0].ID)
	assert.Equal(t, domain.CallEnded, h[0].Status)
	assert.Equal(t, domain.EndDisconnect, h[0].EndReason)
}
