/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\hub\http_test.go
 * @Description: 长轮询降级与健康检查端点测试
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package hub

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kamalyes/go-toolbox/pkg/json"
	"github.com/kamalyes/go-wsession/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pollRequest 发起一次长轮询请求并解析返回的帧数组
func pollRequest(t *testing.T, hub *Hub, target string) (int, []*Frame) {
	t.Helper()

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, target, nil)
	hub.HandlePoll(recorder, request)

	var frames []*Frame
	if recorder.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &frames))
	}
	return recorder.Code, frames
}

// TestHandlePollConnect 测试长轮询建连
func TestHandlePollConnect(t *testing.T) {
	hub := newTestHub(t, nil)

	t.Run("缺少用户标识返回400", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/poll", nil)
		hub.HandlePoll(recorder, request)

		assert.Equal(t, http.StatusBadRequest, recorder.Code)

		var frame Frame
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &frame))
		assert.Equal(t, FrameTypeError, frame.Type)
		assert.Equal(t, int(models.ErrTypeMissingField), frame.ErrorCode)
	})

	t.Run("建连返回CONNECTED帧", func(t *testing.T) {
		code, frames := pollRequest(t, hub, "/poll?user_id=poller")
		require.Equal(t, http.StatusOK, code)
		require.Len(t, frames, 1)

		connected := frames[0]
		assert.Equal(t, FrameTypeConnected, connected.Type)
		assert.NotEmpty(t, connected.SessionID)
		assert.NotEmpty(t, connected.Headers["resume_token"])

		require.Eventually(t, func() bool {
			session, exists := hub.GetSessionByIDWithLock(connected.SessionID)
			return exists && session.Transport == TransportLongPoll
		}, 2*time.Second, 20*time.Millisecond, "长轮询会话应完成注册")
	})

	t.Run("未知会话返回404", func(t *testing.T) {
		code, _ := pollRequest(t, hub, "/poll?session_id=no-such-session")
		assert.Equal(t, http.StatusNotFound, code)
	})
}

// TestHandlePollFetch 测试长轮询取帧与累计确认
func TestHandlePollFetch(t *testing.T) {
	hub := newTestHub(t, func(config *Config) {
		config.Poll.Wait = 50 * time.Millisecond
	})

	code, frames := pollRequest(t, hub, "/poll?user_id=poll-fetch")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, frames, 1)
	sessionID := frames[0].SessionID

	require.Eventually(t, func() bool {
		_, exists := hub.GetSessionByIDWithLock(sessionID)
		return exists
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, hub.SendToUser(hub.GetContext(), "poll-fetch", "第一条"))
	require.NoError(t, hub.SendToUser(hub.GetContext(), "poll-fetch", "第二条"))

	require.Eventually(t, func() bool {
		outbox, exists := hub.GetOutboxWithLock(sessionID)
		return exists && outbox.Depth() == 2
	}, 2*time.Second, 20*time.Millisecond, "消息应进入发件箱")

	t.Run("取走待投递帧", func(t *testing.T) {
		code, frames := pollRequest(t, hub, "/poll?session_id="+sessionID)
		require.Equal(t, http.StatusOK, code)
		require.Len(t, frames, 2)

		assert.Equal(t, int64(1), frames[0].Seq)
		assert.Equal(t, "第一条", frames[0].Body)
		assert.Equal(t, int64(2), frames[1].Seq)
		assert.Equal(t, "第二条", frames[1].Body)
	})

	t.Run("since参数完成累计确认", func(t *testing.T) {
		code, frames := pollRequest(t, hub, "/poll?session_id="+sessionID+"&since=2")
		require.Equal(t, http.StatusOK, code)
		assert.Empty(t, frames, "确认后不应再有待投递帧")

		outbox, exists := hub.GetOutboxWithLock(sessionID)
		require.True(t, exists)
		assert.Equal(t, int64(2), outbox.AckedSeq())
		assert.Equal(t, 0, outbox.Depth())
	})

	t.Run("非法since返回400", func(t *testing.T) {
		code, _ := pollRequest(t, hub, "/poll?session_id="+sessionID+"&since=abc")
		assert.Equal(t, http.StatusBadRequest, code)
	})
}

// TestHandleHealth 测试健康检查端点
func TestHandleHealth(t *testing.T) {
	t.Run("运行中返回healthy", func(t *testing.T) {
		hub := newTestHub(t, nil)

		recorder := httptest.NewRecorder()
		hub.HandleHealth(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, recorder.Code)

		var health HealthStatus
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &health))
		assert.Equal(t, "healthy", health.Status)
		assert.NotEmpty(t, health.NodeID)
		require.NotNil(t, health.Stats)
	})

	t.Run("未启动返回503", func(t *testing.T) {
		hub := NewHub(NewDefaultConfig())

		recorder := httptest.NewRecorder()
		hub.HandleHealth(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusServiceUnavailable, recorder.Code)

		var health HealthStatus
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &health))
		assert.Equal(t, "stopped", health.Status)
	})
}
