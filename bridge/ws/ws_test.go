package ws_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Darkness4/finch/bridge"
	"github.com/Darkness4/finch/bridge/ws"
	"github.com/Darkness4/finch/finch"
	"github.com/Darkness4/finch/graphql"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDoc = graphql.MustParse(`query foo { bar }`)

func TestWebSocketBridge(t *testing.T) {
	// Arrange
	received := make(chan finch.Envelope, 10)
	handler := finch.HandlerFunc(func(_ context.Context, env finch.Envelope) (*graphql.Response, error) {
		received <- env
		if env.Variables["fail"] == true {
			return nil, errors.New("foo")
		}
		return &graphql.Response{Data: []byte(`{"bar":true}`)}, nil
	})
	server := httptest.NewServer(ws.NewHandler(handler, nil))
	defer server.Close()

	client, err := ws.Dial(
		context.Background(),
		"ws"+strings.TrimPrefix(server.URL, "http"),
		nil,
	)
	require.NoError(t, err)
	defer client.Close()

	t.Run("query", func(t *testing.T) {
		q := finch.UseQuery[map[string]any](
			context.Background(),
			client,
			testDoc,
			map[string]any{"id": "1"},
		)
		res, err := q.Wait(context.Background())

		require.NoError(t, err)
		assert.Equal(t, finch.StatusSuccess, res.Status)
		assert.Equal(t, map[string]any{"bar": true}, res.Data)

		env := <-received
		assert.Equal(t, finch.MessageKeyGeneric, env.Type)
		assert.Equal(t, testDoc.Source, env.Query.Source)
		assert.Equal(t, map[string]any{"id": "1"}, env.Variables)
	})

	t.Run("handler error", func(t *testing.T) {
		_, err := finch.Dispatch(
			context.Background(),
			client,
			finch.NewEnvelope(testDoc, map[string]any{"fail": true}),
		)
		<-received

		assert.EqualError(t, err, "foo")
	})

	t.Run("close", func(t *testing.T) {
		require.NoError(t, client.Close())

		select {
		case <-client.Done():
		case <-time.After(time.Second):
			t.Fatal("client did not stop")
		}

		_, err := finch.Dispatch(context.Background(), client, finch.NewEnvelope(testDoc, nil))
		assert.ErrorIs(t, err, bridge.ErrConnectionClosed)
	})
}

func TestWebSocketBridgeCloseInFlight(t *testing.T) {
	block := make(chan struct{})
	handler := finch.HandlerFunc(func(ctx context.Context, _ finch.Envelope) (*graphql.Response, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil, ctx.Err()
	})
	server := httptest.NewServer(ws.NewHandler(handler, nil))

	client, err := ws.Dial(
		context.Background(),
		"ws"+strings.TrimPrefix(server.URL, "http"),
		nil,
	)
	require.NoError(t, err)

	q := finch.UseQuery[map[string]any](context.Background(), client, testDoc, nil)
	require.NoError(t, client.Close())

	res, err := q.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, finch.StatusError, res.Status)
	assert.ErrorIs(t, res.Err, bridge.ErrConnectionClosed)

	close(block)
	server.Close()
}

func TestWebSocketHandlerInvalidRequest(t *testing.T) {
	// Arrange
	handler := finch.HandlerFunc(func(context.Context, finch.Envelope) (*graphql.Response, error) {
		return &graphql.Response{Data: []byte(`{"bar":true}`)}, nil
	})
	server := httptest.NewServer(ws.NewHandler(handler, nil))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(server.URL, "http"), &websocket.DialOptions{
		Subprotocols: []string{ws.Subprotocol},
	})
	require.NoError(t, err)
	defer conn.CloseNow()

	read := func(t *testing.T) bridge.Response {
		msgType, msg, err := conn.Read(ctx)
		require.NoError(t, err)
		require.Equal(t, websocket.MessageText, msgType)
		var resp bridge.Response
		require.NoError(t, json.Unmarshal(msg, &resp))
		return resp
	}

	t.Run("malformed document is answered", func(t *testing.T) {
		err := conn.Write(ctx, websocket.MessageText, []byte(`{
			"id": "abc",
			"envelope": {"query": "query foo { bar", "variables": {}, "type": "FINCH_GENERIC"}
		}`))
		require.NoError(t, err)

		resp := read(t)

		assert.Equal(t, "abc", resp.ID)
		assert.Contains(t, resp.Error, "failed to parse graphql document")
		assert.Nil(t, resp.Response)
	})

	t.Run("session keeps serving", func(t *testing.T) {
		b, err := json.Marshal(bridge.Request{ID: "def", Envelope: finch.NewEnvelope(testDoc, nil)})
		require.NoError(t, err)
		require.NoError(t, conn.Write(ctx, websocket.MessageText, b))

		resp := read(t)

		assert.Equal(t, "def", resp.ID)
		assert.Empty(t, resp.Error)
		assert.JSONEq(t, `{"bar":true}`, string(resp.Response.Data))
	})
}
