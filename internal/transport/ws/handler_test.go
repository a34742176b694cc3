package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reviewlens/internal/model"
	"reviewlens/internal/service"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDialogue struct {
	mu       sync.Mutex
	hub      *Hub
	messages []string
}

func (d *fakeDialogue) Step(_ context.Context, sessionID, message, _ string) (*model.BotTurn, error) {
	d.mu.Lock()
	d.messages = append(d.messages, message)
	n := len(d.messages)
	d.mu.Unlock()
	if message == "boom" {
		return nil, errors.New("step failed")
	}
	turn := &model.BotTurn{TurnCount: n}
	d.hub.BroadcastToSession(sessionID, string(MsgBotTurn), turn)
	return turn, nil
}

func (d *fakeDialogue) Finalize(_ context.Context, sessionID string) (*model.BotTurn, error) {
	turn := &model.BotTurn{IsFinal: true}
	d.hub.BroadcastToSession(sessionID, string(MsgSessionFinalized), turn)
	return turn, nil
}

func setupServer(t *testing.T) (*httptest.Server, *service.AuthService) {
	t.Helper()
	hub := NewHub(nil)
	auth := service.NewAuthService("ws-secret", "admin", "pw")
	h := NewHandler(hub, auth, &fakeDialogue{hub: hub}, nil)

	r := mux.NewRouter()
	r.HandleFunc("/v1/ws/sessions/{id}", h.SessionWS).Methods("GET")
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		hub.Close()
	})
	return srv, auth
}

func wsURL(srv *httptest.Server, sessionID, token string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws/sessions/" + sessionID + "?token=" + token
}

func readMessage(t *testing.T, c *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, c.ReadJSON(&msg))
	return msg
}

func TestSessionWS_Auth(t *testing.T) {
	srv, auth := setupServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "s1", ""), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "s1", "garbage"), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := auth.GenerateSessionToken("other", "cat")
	require.NoError(t, err)
	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "s1", token), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSessionWS_MessageAndFinalize(t *testing.T) {
	srv, auth := setupServer(t)
	token, err := auth.GenerateSessionToken("s1", "cat")
	require.NoError(t, err)

	c, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "s1", token), nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.WriteJSON(map[string]interface{}{
		"type":    "message",
		"payload": map[string]string{"message": "too loud"},
	}))
	msg := readMessage(t, c)
	assert.Equal(t, MsgBotTurn, msg.Type)
	var turn model.BotTurn
	require.NoError(t, json.Unmarshal(msg.Payload, &turn))
	assert.Equal(t, 1, turn.TurnCount)

	require.NoError(t, c.WriteJSON(map[string]string{"type": "finalize"}))
	msg = readMessage(t, c)
	assert.Equal(t, MsgSessionFinalized, msg.Type)
}

func TestSessionWS_Errors(t *testing.T) {
	srv, auth := setupServer(t)
	token, err := auth.GenerateSessionToken("s1", "cat")
	require.NoError(t, err)

	c, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "s1", token), nil)
	require.NoError(t, err)
	defer c.Close()

	cases := []struct {
		name string
		send string
		want string
	}{
		{"not json", `nope`, "invalid message"},
		{"unknown type", `{"type":"dance"}`, "unknown message type: dance"},
		{"step error", `{"type":"message","payload":{"message":"boom"}}`, "step failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(tc.send)))
			msg := readMessage(t, c)
			assert.Equal(t, MsgError, msg.Type)
			assert.JSONEq(t, `{"error":"`+tc.want+`"}`, string(msg.Payload))
		})
	}
}
