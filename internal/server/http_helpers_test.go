package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/eskrenkovic/challenge-board/internal/modules/broadcast"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func getJSON[TResp any](t *testing.T, url string) (TResp, int) {
	t.Helper()

	var resp TResp

	httpResp, err := http.Get(url)
	require.NoError(t, err)
	defer func() {
		_ = httpResp.Body.Close()
	}()

	payload, err := io.ReadAll(httpResp.Body)
	require.NoError(t, err)

	if httpResp.StatusCode == http.StatusOK {
		require.NoError(t, json.Unmarshal(payload, &resp))
	}

	return resp, httpResp.StatusCode
}

type wsClient struct {
	conn *websocket.Conn
}

func connect(t *testing.T) *wsClient {
	t.Helper()

	url := "ws" + strings.TrimPrefix(fixture.baseURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})

	return &wsClient{conn: conn}
}

func (c *wsClient) send(t *testing.T, event string, data any) {
	t.Helper()

	require.NoError(t, c.conn.WriteJSON(map[string]any{"event": event, "data": data}))
}

// expect reads the next frames and checks their events in order.
func (c *wsClient) expect(t *testing.T, events ...string) []broadcast.Envelope {
	t.Helper()

	envelopes := make([]broadcast.Envelope, 0, len(events))
	for _, event := range events {
		require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))

		var envelope broadcast.Envelope
		require.NoError(t, c.conn.ReadJSON(&envelope))
		require.Equal(t, event, envelope.Event)

		envelopes = append(envelopes, envelope)
	}

	return envelopes
}
