package main

import (
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialLive(t *testing.T, env *testEnv) (*websocket.Conn, context.Context) {
	t.Helper()
	srv := httptest.NewServer(env.server.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/user/websocket?token=" + env.token
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn, ctx
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) string {
	t.Helper()
	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)
	return string(data)
}

func TestLiveChannel_NotifiesOnceThenStale(t *testing.T) {
	env := newTestEnv(t)
	env.connectPage(t, testPageID)
	require.Equal(t, http.StatusOK, env.postWebhook(webhookBody(t, testPageID, "S1", "M1", "hello")).Code)

	threads := decode[threadList](t, env.call(http.MethodPost, "/user/threads", nil))
	require.Len(t, threads.Threads, 1)
	threadID := threads.Threads[0].ID

	conn, ctx := dialLive(t, env)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(hex.EncodeToString([]byte(threadID)))))
	assert.Equal(t, "1", readFrame(t, ctx, conn))
	assert.Equal(t, "0", readFrame(t, ctx, conn))

	// A new inbound message flips the flag again for the next tick.
	require.Equal(t, http.StatusOK, env.postWebhook(webhookBody(t, testPageID, "S1", "M2", "still there?")).Code)
	deadline := time.Now().Add(2 * time.Second)
	for {
		frame := readFrame(t, ctx, conn)
		if frame == "1" {
			break
		}
		require.Equal(t, "0", frame)
		require.True(t, time.Now().Before(deadline), "no fresh frame after new message")
	}
}

func TestLiveChannel_InvalidFrame(t *testing.T) {
	env := newTestEnv(t)
	conn, ctx := dialLive(t, env)

	for _, frame := range []string{"not-hex", hex.EncodeToString([]byte("short")), ""} {
		require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(frame)))
		assert.Equal(t, "Invalid thread id format", readFrame(t, ctx, conn), frame)
	}
}

func TestLiveChannel_OtherUsersThreadStaysStale(t *testing.T) {
	env := newTestEnv(t)
	env.connectPage(t, testPageID)
	require.Equal(t, http.StatusOK, env.postWebhook(webhookBody(t, testPageID, "S1", "M1", "hello")).Code)
	threadID := decode[threadList](t, env.call(http.MethodPost, "/user/threads", nil)).Threads[0].ID

	other, err := issueTestToken("user-2")
	require.NoError(t, err)
	env.token = other

	conn, ctx := dialLive(t, env)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(hex.EncodeToString([]byte(threadID)))))
	assert.Equal(t, "0", readFrame(t, ctx, conn))
}

func TestLiveChannel_RejectsWithoutToken(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.server.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/user/websocket", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
