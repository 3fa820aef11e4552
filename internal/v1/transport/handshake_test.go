package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startWSServer serves /ws on a test listener and tears everything down,
// waiting for sessions to drain so the leak detector stays quiet.
func startWSServer(t *testing.T, h *Hub) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", h.ServeWS)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.CloseClientConnections()
		srv.Close()
		require.Eventually(t, func() bool { return h.SessionCount() == 0 }, waitFor, tick)
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

// expectClose reads until the server closes the connection and returns the
// close code and reason.
func expectClose(t *testing.T, conn *websocket.Conn) (int, string) {
	t.Helper()
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			closeErr, ok := err.(*websocket.CloseError)
			require.True(t, ok, "expected close error, got %v", err)
			return closeErr.Code, closeErr.Text
		}
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestServeWS_NoTokenClosesWith4000(t *testing.T) {
	h := newTestHub(t, Options{})
	url := startWSServer(t, h)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	code, reason := expectClose(t, conn)
	assert.Equal(t, CloseAuthMissing, code)
	assert.Equal(t, "Authentication required", reason)
}

func TestServeWS_InvalidTokenClosesWith4001(t *testing.T) {
	h := newTestHub(t, Options{})
	url := startWSServer(t, h)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token=invalid", nil)
	require.NoError(t, err)
	defer conn.Close()

	code, reason := expectClose(t, conn)
	assert.Equal(t, CloseAuthFailed, code)
	assert.Equal(t, "Invalid authentication token", reason)
}

func TestServeWS_ExpiredTokenReason(t *testing.T) {
	h := newTestHub(t, Options{})
	url := startWSServer(t, h)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token=expired", nil)
	require.NoError(t, err)
	defer conn.Close()

	code, reason := expectClose(t, conn)
	assert.Equal(t, CloseAuthFailed, code)
	assert.Equal(t, "Authentication token has expired", reason)
}

func TestServeWS_HappyPath(t *testing.T) {
	h := newTestHub(t, Options{})
	url := startWSServer(t, h)

	header := http.Header{"Authorization": {"Bearer alice"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	// Exactly one connection_success, before anything else.
	frame := readFrame(t, conn)
	assert.Equal(t, KindConnectionSuccess, frame["type"])
	assert.Equal(t, "alice", frame["user_id"])
	assert.Equal(t, 1, h.SessionCount())

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "join_room", "room_id": "R1"}))
	frame = readFrame(t, conn)
	assert.Equal(t, KindJoinRoomSuccess, frame["type"])
	assert.Equal(t, "R1", frame["room_id"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "leave_room"}))
	frame = readFrame(t, conn)
	assert.Equal(t, KindRoomLeft, frame["type"])
}

func TestServeWS_JoinWithoutRoomIDReturnsError(t *testing.T) {
	h := newTestHub(t, Options{})
	url := startWSServer(t, h)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token=alice", nil)
	require.NoError(t, err)
	defer conn.Close()

	readFrame(t, conn) // connection_success

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "join_room"}))
	frame := readFrame(t, conn)
	assert.Equal(t, KindError, frame["type"])
}

func TestServeWS_ReconnectEvictsPreviousSession(t *testing.T) {
	h := newTestHub(t, Options{})
	url := startWSServer(t, h)

	first, _, err := websocket.DefaultDialer.Dial(url+"?token=alice", nil)
	require.NoError(t, err)
	defer first.Close()
	readFrame(t, first)

	second, _, err := websocket.DefaultDialer.Dial(url+"?token=alice", nil)
	require.NoError(t, err)
	defer second.Close()
	readFrame(t, second)

	code, reason := expectClose(t, first)
	assert.Equal(t, websocket.CloseNormalClosure, code)
	assert.Equal(t, "session replaced", reason)
	assert.Equal(t, 1, h.SessionCount())
}

func TestServeWS_DisallowedOriginRejectsUpgrade(t *testing.T) {
	h := newTestHub(t, Options{AllowedOrigins: []string{"https://app.example.com"}})
	url := startWSServer(t, h)

	header := http.Header{"Origin": {"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url+"?token=alice", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestServeWS_AllowedOriginUpgrades(t *testing.T) {
	h := newTestHub(t, Options{AllowedOrigins: []string{"https://app.example.com"}})
	url := startWSServer(t, h)

	header := http.Header{
		"Origin":        {"https://app.example.com"},
		"Authorization": {"Bearer alice"},
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	frame := readFrame(t, conn)
	assert.Equal(t, KindConnectionSuccess, frame["type"])
}

func TestExtractToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{name: "bearer header", header: "Bearer abc", want: "abc"},
		{name: "lowercase scheme", header: "bearer abc", want: "abc"},
		{name: "query fallback", query: "abc", want: "abc"},
		{name: "header wins over query", header: "Bearer fromheader", query: "fromquery", want: "fromheader"},
		{name: "wrong scheme falls back to query", header: "Basic abc", query: "q", want: "q"},
		{name: "nothing", want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.query != "" {
				q := req.URL.Query()
				q.Set("token", tc.query)
				req.URL.RawQuery = q.Encode()
			}
			assert.Equal(t, tc.want, extractToken(req))
		})
	}
}

func TestServeWS_BroadcastReachesConnectedClient(t *testing.T) {
	h := newTestHub(t, Options{})
	url := startWSServer(t, h)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token=alice", nil)
	require.NoError(t, err)
	defer conn.Close()

	readFrame(t, conn) // connection_success
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "join_room", "room_id": "R1"}))
	readFrame(t, conn) // join_room_success

	h.BroadcastSongUpdated("R1", UpdateMeta{SongID: "42", Title: "Hallelujah", CurrentPage: 1, TotalPages: 5})

	frame := readFrame(t, conn)
	require.Equal(t, KindSongUpdated, frame["type"])
	data, err := json.Marshal(frame["data"])
	require.NoError(t, err)
	var meta UpdateMeta
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, "42", meta.SongID)
	assert.Equal(t, 5, meta.TotalPages)
}
