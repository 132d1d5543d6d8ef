/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\client_test.go
 * @Description: 会话客户端测试（重连耗尽、端到端收发）
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package wsession

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestClientReconnectExhausted 测试重连次数耗尽后进入永久失败
func TestClientReconnectExhausted(t *testing.T) {
	client := NewClient("ws://127.0.0.1:1/unreachable")
	config := NewDefaultConfig()
	config.Reconnect.MaxAttempts = 5
	config.Reconnect.BaseDelay = time.Millisecond
	config.Reconnect.MaxDelay = 5 * time.Millisecond
	client.SetConfig(config)

	var exhausted atomic.Bool
	client.OnExhausted(func() { exhausted.Store(true) })

	var connectErrors atomic.Int64
	client.OnConnectError(func(err error) { connectErrors.Add(1) })

	err := client.Connect()

	t.Run("返回重连耗尽错误", func(t *testing.T) {
		assert.ErrorIs(t, err, ErrReconnectExhausted)
	})

	t.Run("迁移到永久失败状态", func(t *testing.T) {
		assert.Equal(t, SessionStateFailedPermanent, client.State())
		assert.True(t, client.State().IsTerminal())
	})

	t.Run("触发耗尽回调", func(t *testing.T) {
		assert.True(t, exhausted.Load())
	})

	t.Run("每次失败触发连接错误回调", func(t *testing.T) {
		assert.GreaterOrEqual(t, connectErrors.Load(), int64(5))
	})
}

// TestClientStateMachine 测试客户端状态机
func TestClientStateMachine(t *testing.T) {
	client := NewClient("ws://127.0.0.1:1/unreachable")

	t.Run("初始状态为CONNECTING", func(t *testing.T) {
		assert.Equal(t, SessionStateConnecting, client.State())
	})

	t.Run("非法迁移被拒绝", func(t *testing.T) {
		assert.False(t, client.transition(SessionStateReconnecting),
			"CONNECTING不能直接进入RECONNECTING")
	})

	t.Run("合法迁移触发回调", func(t *testing.T) {
		var from, to SessionState
		client.OnStateChange(func(f, t SessionState) { from, to = f, t })

		require.True(t, client.transition(SessionStateConnected))
		assert.Equal(t, SessionStateConnecting, from)
		assert.Equal(t, SessionStateConnected, to)
	})
}

// TestClientEndToEnd 测试客户端与Hub的端到端收发
func TestClientEndToEnd(t *testing.T) {
	config := NewDefaultConfig()
	config.AllowMultiLogin = true
	config.HeartbeatInterval = time.Minute
	config.ClientTimeout = 5 * time.Minute
	config.Outbox.AckTimeout = time.Minute

	hub := NewHub(config)
	go hub.Run()
	require.NoError(t, hub.WaitForStartWithTimeout(2*time.Second))
	defer func() { _ = hub.SafeShutdown() }()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocketUpgrade))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?user_id=e2e-user"

	client := NewClient(wsURL)

	received := make(chan *Frame, 16)
	client.OnFrame(func(frame *Frame) { received <- frame })

	require.NoError(t, client.Connect())
	defer client.Close()

	t.Run("握手后获得会话标识与恢复令牌", func(t *testing.T) {
		require.Eventually(t, func() bool {
			return client.SessionID() != ""
		}, 2*time.Second, 20*time.Millisecond, "应收到CONNECTED帧")

		assert.NotEmpty(t, client.ResumeToken())
		assert.Equal(t, SessionStateConnected, client.State())
	})

	t.Run("订阅主题后收到广播消息", func(t *testing.T) {
		require.NoError(t, client.Subscribe("topic.room.e2e"))
		time.Sleep(200 * time.Millisecond)

		require.NoError(t, hub.PublishToTopic(hub.GetContext(), "room.e2e", "端到端消息"))

		select {
		case frame := <-received:
			assert.Equal(t, FrameTypeMessage, frame.Type)
			assert.Equal(t, "端到端消息", frame.Body)
			assert.Equal(t, int64(1), frame.Seq)
		case <-time.After(2 * time.Second):
			t.Fatal("等待广播消息超时")
		}
	})

	t.Run("客户端自动累计确认", func(t *testing.T) {
		require.Eventually(t, func() bool {
			outbox, exists := hub.GetOutboxWithLock(client.SessionID())
			return exists && outbox.AckedSeq() >= 1
		}, 2*time.Second, 20*time.Millisecond, "服务端应收到ACK")

		assert.Equal(t, int64(1), client.LastAckedSeq())
	})

	t.Run("主动关闭后不再重连", func(t *testing.T) {
		client.Close()
		assert.True(t, client.Closed())
		assert.Equal(t, SessionStateDisconnected, client.State())
	})
}
