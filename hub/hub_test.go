/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\hub\hub_test.go
 * @Description: Hub 会话生命周期测试（接管、重放、心跳、分发）
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package hub

import (
	"context"
	"testing"
	"time"

	"github.com/kamalyes/go-wsession/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestHub 创建用于测试的Hub并启动事件循环
func newTestHub(t *testing.T, mutate func(*Config)) *Hub {
	t.Helper()

	config := NewDefaultConfig()
	config.AllowMultiLogin = false
	// 拉长心跳间隔，避免 PING 帧混入断言
	config.HeartbeatInterval = time.Minute
	config.ClientTimeout = 5 * time.Minute
	config.Outbox.AckTimeout = time.Minute
	if mutate != nil {
		mutate(config)
	}

	hub := NewHub(config)
	go hub.Run()
	require.NoError(t, hub.WaitForStartWithTimeout(2*time.Second))

	t.Cleanup(func() {
		_ = hub.SafeShutdown()
	})
	return hub
}

// readFrame 从会话发送通道读取并解码一帧
func readFrame(t *testing.T, hub *Hub, session *Session, timeout time.Duration) *Frame {
	t.Helper()

	select {
	case data, ok := <-session.SendChan:
		require.True(t, ok, "发送通道不应关闭")
		frame, err := hub.GetCodec().Decode(data)
		require.NoError(t, err)
		return frame
	case <-time.After(timeout):
		t.Fatal("等待帧超时")
		return nil
	}
}

// TestSessionConnect 测试会话建立流程
func TestSessionConnect(t *testing.T) {
	hub := newTestHub(t, nil)

	session, err := hub.Connect(context.Background(), "user-connect", TransportWebSocket)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	t.Run("会话进入CONNECTED状态", func(t *testing.T) {
		got, exists := hub.GetSessionByIDWithLock(session.ID)
		require.True(t, exists)
		assert.Equal(t, SessionStateConnected, got.State)
	})

	t.Run("下发携带恢复令牌的CONNECTED帧", func(t *testing.T) {
		frame := readFrame(t, hub, session, time.Second)
		assert.Equal(t, FrameTypeConnected, frame.Type)
		assert.Equal(t, session.ID, frame.SessionID)
		assert.NotEmpty(t, frame.Headers["resume_token"])
	})

	t.Run("用户在线状态为online", func(t *testing.T) {
		record, exists := hub.GetPresence().GetPresence("user-connect")
		require.True(t, exists)
		assert.Equal(t, PresenceStatusOnline, record.Status)
	})
}

// TestSessionTakeover 测试单会话模式下新连接接管旧连接
func TestSessionTakeover(t *testing.T) {
	hub := newTestHub(t, nil)

	oldSession, err := hub.Connect(context.Background(), "user-takeover", TransportWebSocket)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	// 消费旧会话的 CONNECTED 帧
	frame := readFrame(t, hub, oldSession, time.Second)
	require.Equal(t, FrameTypeConnected, frame.Type)

	newSession, err := hub.Connect(context.Background(), "user-takeover", TransportWebSocket)
	require.NoError(t, err)
	time.Sleep(300 * time.Millisecond)

	t.Run("旧会话收到接管通知帧", func(t *testing.T) {
		frame := readFrame(t, hub, oldSession, time.Second)
		assert.Equal(t, FrameTypeSessionTakenOver, frame.Type)
		assert.Equal(t, oldSession.ID, frame.SessionID)
		assert.Equal(t, newSession.ID, frame.Headers["new_session_id"])
	})

	t.Run("旧会话被移除且仅保留新会话", func(t *testing.T) {
		_, exists := hub.GetSessionByIDWithLock(oldSession.ID)
		assert.False(t, exists, "旧会话应已被移除")

		sessions := hub.GetSessionsByUserID("user-takeover")
		require.Len(t, sessions, 1)
		assert.Equal(t, newSession.ID, sessions[0].ID)
	})

	t.Run("接管计数递增", func(t *testing.T) {
		stats := hub.Stats()
		assert.Equal(t, int64(1), stats.Takeovers)
	})
}

// TestTakeoverKeepsEventLoopResponsive 测试接管期间事件循环不被阻塞
func TestTakeoverKeepsEventLoopResponsive(t *testing.T) {
	hub := newTestHub(t, nil)

	oldSession, err := hub.Connect(context.Background(), "user-takeover-grace", TransportWebSocket)
	require.NoError(t, err)
	frame := readFrame(t, hub, oldSession, time.Second)
	require.Equal(t, FrameTypeConnected, frame.Type)

	start := time.Now()
	newSession, err := hub.Connect(context.Background(), "user-takeover-grace", TransportWebSocket)
	require.NoError(t, err)

	t.Run("新会话无需等待宽限期即获得确认", func(t *testing.T) {
		frame := readFrame(t, hub, newSession, time.Second)
		assert.Equal(t, FrameTypeConnected, frame.Type)
		assert.Less(t, time.Since(start), takenOverCloseGrace,
			"注册不应被接管宽限期拖住")
	})

	t.Run("旧会话先收到通知再关闭传输", func(t *testing.T) {
		frame := readFrame(t, hub, oldSession, time.Second)
		assert.Equal(t, FrameTypeSessionTakenOver, frame.Type)
		assert.False(t, oldSession.IsClosed(), "宽限期内旧传输应保持可写")

		require.Eventually(t, func() bool {
			return oldSession.IsClosed()
		}, 2*time.Second, 20*time.Millisecond, "宽限期结束后旧传输应关闭")
	})
}

// TestMultiLoginLimit 测试多端登录的连接数上限
func TestMultiLoginLimit(t *testing.T) {
	hub := newTestHub(t, func(c *Config) {
		c.AllowMultiLogin = true
		c.MaxConnectionsPerUser = 2
	})

	first, err := hub.Connect(context.Background(), "user-multi", TransportWebSocket)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	_, err = hub.Connect(context.Background(), "user-multi", TransportWebSocket)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	_, err = hub.Connect(context.Background(), "user-multi", TransportWebSocket)
	require.NoError(t, err)
	time.Sleep(300 * time.Millisecond)

	t.Run("超限后接管最早的会话", func(t *testing.T) {
		sessions := hub.GetSessionsByUserID("user-multi")
		assert.Len(t, sessions, 2)

		_, exists := hub.GetSessionByIDWithLock(first.ID)
		assert.False(t, exists, "最早的会话应已被接管")
	})
}

// TestSendAndAck 测试发件箱投递与累计确认
func TestSendAndAck(t *testing.T) {
	hub := newTestHub(t, nil)

	session, err := hub.Connect(context.Background(), "user-ack", TransportWebSocket)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)
	readFrame(t, hub, session, time.Second) // CONNECTED

	for i := 0; i < 3; i++ {
		frame := NewFrame(FrameTypeMessage).
			SetDestination("topic.room.ack").
			SetBody("消息")
		require.NoError(t, hub.Send(context.Background(), session.ID, frame))
	}

	t.Run("序列号从1开始严格递增", func(t *testing.T) {
		for seq := int64(1); seq <= 3; seq++ {
			frame := readFrame(t, hub, session, time.Second)
			assert.Equal(t, FrameTypeMessage, frame.Type)
			assert.Equal(t, seq, frame.Seq)
		}
	})

	t.Run("累计确认释放发件箱空间", func(t *testing.T) {
		acked := hub.HandleAck(session.ID, 2)
		assert.Equal(t, 2, acked)

		outbox, exists := hub.GetOutboxWithLock(session.ID)
		require.True(t, exists)
		assert.Equal(t, int64(2), outbox.AckedSeq())
		assert.Equal(t, 1, outbox.Depth())
	})

	t.Run("重复确认不产生副作用", func(t *testing.T) {
		assert.Equal(t, 0, hub.HandleAck(session.ID, 2))
	})
}

// TestResumeReplay 测试断线恢复后按序重放未确认消息
func TestResumeReplay(t *testing.T) {
	hub := newTestHub(t, nil)

	session, err := hub.Connect(context.Background(), "user-resume", TransportWebSocket)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)
	readFrame(t, hub, session, time.Second) // CONNECTED

	resumeToken := session.ResumeToken
	require.NotEmpty(t, resumeToken)

	for i := 0; i < 5; i++ {
		frame := NewFrame(FrameTypeMessage).
			SetDestination("topic.room.resume").
			SetBody("消息")
		require.NoError(t, hub.Send(context.Background(), session.ID, frame))
	}
	for i := 0; i < 5; i++ {
		readFrame(t, hub, session, time.Second)
	}

	// 客户端确认到2后发生可恢复断开
	hub.HandleAck(session.ID, 2)
	require.NoError(t, hub.Disconnect(context.Background(), session.ID, DisconnectReasonTransport))
	time.Sleep(100 * time.Millisecond)

	t.Run("可恢复断开保留发件箱", func(t *testing.T) {
		outbox, exists := hub.GetOutboxWithLock(session.ID)
		require.True(t, exists, "可恢复断开后发件箱应保留")
		assert.Equal(t, 3, outbox.Depth())
	})

	// 新连接携带恢复令牌
	newSession, err := hub.Connect(context.Background(), "user-resume", TransportWebSocket)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)
	readFrame(t, hub, newSession, time.Second) // CONNECTED

	require.NoError(t, hub.ResumeSession(newSession, resumeToken, 2))

	t.Run("按序重放游标之后的未确认消息", func(t *testing.T) {
		for seq := int64(3); seq <= 5; seq++ {
			frame := readFrame(t, hub, newSession, time.Second)
			assert.Equal(t, seq, frame.Seq, "重放顺序应与原序列一致")
		}
	})

	t.Run("重放计数递增", func(t *testing.T) {
		assert.Equal(t, int64(1), hub.Stats().Replays)
	})

	t.Run("游标超前时返回冲突错误", func(t *testing.T) {
		err := hub.ResumeSession(newSession, resumeToken, 100)
		require.Error(t, err)
		assert.True(t, models.IsProtocolError(err))
	})
}

// TestResumeInvalidToken 测试无效恢复令牌
func TestResumeInvalidToken(t *testing.T) {
	hub := newTestHub(t, nil)

	session, err := hub.Connect(context.Background(), "user-badtoken", TransportWebSocket)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	err = hub.ResumeSession(session, "no-such-token", 0)
	assert.ErrorIs(t, err, models.ErrInvalidResumeToken)
}

// TestNonRecoverableDisconnect 测试不可恢复断开释放发件箱
func TestNonRecoverableDisconnect(t *testing.T) {
	hub := newTestHub(t, nil)

	session, err := hub.Connect(context.Background(), "user-final", TransportWebSocket)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, hub.Disconnect(context.Background(), session.ID, DisconnectReasonExhausted))
	time.Sleep(100 * time.Millisecond)

	t.Run("发件箱与恢复令牌被释放", func(t *testing.T) {
		_, exists := hub.GetOutboxWithLock(session.ID)
		assert.False(t, exists)

		err := hub.ResumeSession(session, session.ResumeToken, 0)
		assert.ErrorIs(t, err, models.ErrInvalidResumeToken)
	})

	t.Run("会话进入终止状态", func(t *testing.T) {
		assert.Equal(t, SessionStateFailedPermanent, session.State)
		assert.True(t, session.State.IsTerminal())
	})
}

// TestTopicFanout 测试主题广播分发给全部订阅会话
func TestTopicFanout(t *testing.T) {
	hub := newTestHub(t, func(c *Config) {
		c.AllowMultiLogin = true
	})

	sessionA, err := hub.Connect(context.Background(), "user-a", TransportWebSocket)
	require.NoError(t, err)
	sessionB, err := hub.Connect(context.Background(), "user-b", TransportWebSocket)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)
	readFrame(t, hub, sessionA, time.Second)
	readFrame(t, hub, sessionB, time.Second)

	require.NoError(t, hub.Subscribe(context.Background(), sessionA.ID, "topic.room.42"))
	require.NoError(t, hub.Subscribe(context.Background(), sessionB.ID, "topic.room.42"))

	require.NoError(t, hub.PublishToTopic(context.Background(), "room.42", "大家好"))
	time.Sleep(200 * time.Millisecond)

	t.Run("全部订阅者收到消息", func(t *testing.T) {
		frameA := readFrame(t, hub, sessionA, time.Second)
		frameB := readFrame(t, hub, sessionB, time.Second)
		assert.Equal(t, "大家好", frameA.Body)
		assert.Equal(t, "大家好", frameB.Body)
		assert.Equal(t, "topic.room.42", frameA.Destination)
	})

	t.Run("非法目的地返回协议错误", func(t *testing.T) {
		err := hub.Subscribe(context.Background(), sessionA.ID, "invalid-destination")
		require.Error(t, err)
		assert.True(t, models.IsProtocolError(err))
	})
}

// TestQueueSingleConsumer 测试队列消息只投递给单个消费者
func TestQueueSingleConsumer(t *testing.T) {
	hub := newTestHub(t, func(c *Config) {
		c.AllowMultiLogin = true
	})

	sessionA, err := hub.Connect(context.Background(), "worker-a", TransportWebSocket)
	require.NoError(t, err)
	sessionB, err := hub.Connect(context.Background(), "worker-b", TransportWebSocket)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)
	readFrame(t, hub, sessionA, time.Second)
	readFrame(t, hub, sessionB, time.Second)

	require.NoError(t, hub.Subscribe(context.Background(), sessionA.ID, "queue.jobs"))
	require.NoError(t, hub.Subscribe(context.Background(), sessionB.ID, "queue.jobs"))

	require.NoError(t, hub.SendToQueue(context.Background(), "jobs", "任务1"))
	time.Sleep(200 * time.Millisecond)

	t.Run("恰好一个消费者收到消息", func(t *testing.T) {
		received := 0
		for _, session := range []*Session{sessionA, sessionB} {
			select {
			case data := <-session.SendChan:
				frame, err := hub.GetCodec().Decode(data)
				require.NoError(t, err)
				assert.Equal(t, "任务1", frame.Body)
				received++
			default:
			}
		}
		assert.Equal(t, 1, received, "队列消息应只投递给一个消费者")
	})
}

// TestSendToUser 测试用户定向投递到全部会话
func TestSendToUser(t *testing.T) {
	hub := newTestHub(t, func(c *Config) {
		c.AllowMultiLogin = true
	})

	sessionA, err := hub.Connect(context.Background(), "user-direct", TransportWebSocket)
	require.NoError(t, err)
	sessionB, err := hub.Connect(context.Background(), "user-direct", TransportWebSocket)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)
	readFrame(t, hub, sessionA, time.Second)
	readFrame(t, hub, sessionB, time.Second)

	require.NoError(t, hub.SendToUser(context.Background(), "user-direct", "私信"))
	time.Sleep(200 * time.Millisecond)

	t.Run("用户的全部会话都收到消息", func(t *testing.T) {
		frameA := readFrame(t, hub, sessionA, time.Second)
		frameB := readFrame(t, hub, sessionB, time.Second)
		assert.Equal(t, "私信", frameA.Body)
		assert.Equal(t, "私信", frameB.Body)
	})
}

// TestSendToUserWithRetry 测试带重试的用户投递
func TestSendToUserWithRetry(t *testing.T) {
	hub := newTestHub(t, func(c *Config) {
		c.RetryPolicy.MaxRetries = 2
		c.RetryPolicy.BaseDelay = 10 * time.Millisecond
		c.RetryPolicy.MaxDelay = 50 * time.Millisecond
	})

	t.Run("用户离线时重试后仍失败", func(t *testing.T) {
		result := hub.SendToUserWithRetry(context.Background(), "user-nobody", "无人接收")
		assert.False(t, result.Success)
		assert.Equal(t, 3, len(result.Attempts), "1次初始 + 2次重试")
		assert.NotEmpty(t, result.Error)
	})

	t.Run("用户在线时一次成功", func(t *testing.T) {
		session, err := hub.Connect(context.Background(), "user-retry", TransportWebSocket)
		require.NoError(t, err)
		time.Sleep(100 * time.Millisecond)
		readFrame(t, hub, session, time.Second)

		result := hub.SendToUserWithRetry(context.Background(), "user-retry", "你好")
		assert.True(t, result.Success)
		assert.Len(t, result.Attempts, 1)
	})
}

// TestHeartbeatTimeout 测试心跳超时后清理会话
func TestHeartbeatTimeout(t *testing.T) {
	hub := newTestHub(t, func(c *Config) {
		c.HeartbeatInterval = 50 * time.Millisecond
		c.ClientTimeout = 150 * time.Millisecond
	})

	session, err := hub.Connect(context.Background(), "user-heartbeat", TransportWebSocket)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	// 将最后应答时间拨回过去，模拟客户端失联
	require.True(t, hub.SetSessionLastPongForTest(session.ID, time.Now().Add(-time.Second)))
	time.Sleep(300 * time.Millisecond)

	t.Run("超时会话被注销", func(t *testing.T) {
		_, exists := hub.GetSessionByIDWithLock(session.ID)
		assert.False(t, exists, "心跳超时的会话应被移除")
	})

	t.Run("心跳断开可恢复", func(t *testing.T) {
		_, exists := hub.GetOutboxWithLock(session.ID)
		assert.True(t, exists, "心跳断开应保留发件箱等待重连")
	})
}

// TestDestinationRegistry 测试目的地处理器注册表
func TestDestinationRegistry(t *testing.T) {
	hub := newTestHub(t, nil)

	t.Run("内置三类处理器已注册", func(t *testing.T) {
		assert.Contains(t, hub.handlers, DestinationTopic)
		assert.Contains(t, hub.handlers, DestinationQueue)
		assert.Contains(t, hub.handlers, DestinationUser)
	})

	t.Run("自定义处理器覆盖内置处理器", func(t *testing.T) {
		invoked := make(chan string, 1)
		hub.RegisterHandler(DestinationTopic, func(ctx context.Context, dest *Destination, frame *Frame) (int, error) {
			invoked <- dest.Raw
			return 0, nil
		})

		require.NoError(t, hub.PublishToTopic(context.Background(), "custom", "测试"))

		select {
		case raw := <-invoked:
			assert.Equal(t, "topic.custom", raw)
		case <-time.After(time.Second):
			t.Fatal("自定义处理器未被调用")
		}
	})
}

// TestHubStats 测试运行统计快照
func TestHubStats(t *testing.T) {
	hub := newTestHub(t, nil)

	_, err := hub.Connect(context.Background(), "user-stats", TransportWebSocket)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	stats := hub.Stats()
	assert.Equal(t, hub.GetNodeID(), stats.NodeID)
	assert.Equal(t, int64(1), stats.SessionCount)
	assert.Equal(t, int64(1), stats.UserCount)
	assert.Equal(t, int64(0), stats.OutboxDepth)
	assert.GreaterOrEqual(t, stats.Uptime, int64(0), "运行时长以秒计数")
	assert.False(t, stats.StartedAt.IsZero())
	assert.Contains(t, stats.BreakerStates, BreakerRedis)
	assert.Contains(t, stats.BreakerStates, BreakerDatabase)
	assert.Equal(t, models.BreakerStateClosed, stats.BreakerStates[BreakerRedis])
}

// TestHubShutdown 测试安全关闭
func TestHubShutdown(t *testing.T) {
	config := NewDefaultConfig()
	config.HeartbeatInterval = time.Second
	config.ClientTimeout = 5 * time.Second
	hub := NewHub(config)

	go hub.Run()
	require.NoError(t, hub.WaitForStartWithTimeout(2*time.Second))

	session, err := hub.Connect(context.Background(), "user-shutdown", TransportWebSocket)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, hub.SafeShutdown())

	t.Run("关闭后拒绝新连接", func(t *testing.T) {
		_, err := hub.Connect(context.Background(), "user-late", TransportWebSocket)
		assert.ErrorIs(t, err, ErrHubNotRunning)
	})

	t.Run("已有会话被标记关闭", func(t *testing.T) {
		assert.True(t, session.IsClosed())
	})

	t.Run("重复关闭幂等", func(t *testing.T) {
		assert.NoError(t, hub.SafeShutdown())
	})
}
