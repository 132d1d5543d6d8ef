/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\hub\presence_test.go
 * @Description: 在线状态追踪器测试（版本保护、专注时段、房间增量）
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package hub

import (
	"context"
	"testing"
	"time"

	"github.com/kamalyes/go-toolbox/pkg/json"
	"github.com/kamalyes/go-wsession/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestTracker 创建未启动事件循环的追踪器（直接方法调用测试）
func newTestTracker(t *testing.T) *PresenceTracker {
	t.Helper()

	config := NewDefaultConfig()
	config.HeartbeatInterval = time.Second
	hub := NewHub(config)
	return hub.GetPresence()
}

// TestPresenceLifecycle 测试在线状态生命周期
func TestPresenceLifecycle(t *testing.T) {
	tracker := newTestTracker(t)

	t.Run("首次上线创建版本1的记录", func(t *testing.T) {
		tracker.markOnline("user-1", nil)

		record, exists := tracker.GetPresence("user-1")
		require.True(t, exists)
		assert.Equal(t, PresenceStatusOnline, record.Status)
		assert.Equal(t, int64(1), record.Version)
		assert.Equal(t, 1, record.SessionCount)
	})

	t.Run("再次上线递增版本与会话数", func(t *testing.T) {
		tracker.markOnline("user-1", map[string]interface{}{"activity": "编辑文档"})

		record, exists := tracker.GetPresence("user-1")
		require.True(t, exists)
		assert.Equal(t, int64(2), record.Version)
		assert.Equal(t, 2, record.SessionCount)
		assert.Equal(t, "编辑文档", record.Activity)
	})

	t.Run("下线后记录被移除", func(t *testing.T) {
		tracker.markOffline("user-1")

		_, exists := tracker.GetPresence("user-1")
		assert.False(t, exists)
	})

	t.Run("未知用户下线为空操作", func(t *testing.T) {
		tracker.markOffline("user-ghost")
	})
}

// TestPresenceVersionGuard 测试过期写保护
func TestPresenceVersionGuard(t *testing.T) {
	tracker := newTestTracker(t)
	tracker.markOnline("user-ver", nil)
	require.NoError(t, tracker.UpdateStatus("user-ver", PresenceStatusFocused, "写代码", 0))

	record, _ := tracker.GetPresence("user-ver")
	currentVersion := record.Version

	t.Run("过期版本的写入被静默丢弃", func(t *testing.T) {
		require.NoError(t, tracker.UpdateStatus("user-ver", PresenceStatusBreak, "喝咖啡", currentVersion-1))

		record, _ := tracker.GetPresence("user-ver")
		assert.Equal(t, PresenceStatusFocused, record.Status, "过期写入不应覆盖当前状态")
		assert.Equal(t, currentVersion, record.Version)
	})

	t.Run("更高版本的写入被接受", func(t *testing.T) {
		require.NoError(t, tracker.UpdateStatus("user-ver", PresenceStatusBreak, "喝咖啡", currentVersion+1))

		record, _ := tracker.GetPresence("user-ver")
		assert.Equal(t, PresenceStatusBreak, record.Status)
		assert.Greater(t, record.Version, currentVersion)
	})

	t.Run("零版本写入总是接受", func(t *testing.T) {
		require.NoError(t, tracker.UpdateStatus("user-ver", PresenceStatusOnline, "", 0))

		record, _ := tracker.GetPresence("user-ver")
		assert.Equal(t, PresenceStatusOnline, record.Status)
	})

	t.Run("离线用户更新返回错误", func(t *testing.T) {
		err := tracker.UpdateStatus("user-missing", PresenceStatusOnline, "", 0)
		assert.Error(t, err)
	})

	t.Run("非法状态值被拒绝", func(t *testing.T) {
		err := tracker.UpdateStatus("user-ver", PresenceStatus("sleeping"), "", 0)
		assert.Error(t, err)
	})
}

// TestFocusAndBreakExpiry 测试专注/休息时段到期回退
func TestFocusAndBreakExpiry(t *testing.T) {
	tracker := newTestTracker(t)
	tracker.markOnline("user-focus", nil)

	t.Run("进入专注状态并设置截止时间", func(t *testing.T) {
		require.NoError(t, tracker.StartFocusSession("user-focus", 50*time.Millisecond))

		record, _ := tracker.GetPresence("user-focus")
		assert.Equal(t, PresenceStatusFocused, record.Status)
		assert.False(t, record.FocusUntil.IsZero())
	})

	t.Run("截止时间未到不回退", func(t *testing.T) {
		tracker.expireFocusSessions()

		record, _ := tracker.GetPresence("user-focus")
		assert.Equal(t, PresenceStatusFocused, record.Status)
	})

	t.Run("到期后自动回到在线状态", func(t *testing.T) {
		time.Sleep(100 * time.Millisecond)
		tracker.expireFocusSessions()

		record, _ := tracker.GetPresence("user-focus")
		assert.Equal(t, PresenceStatusOnline, record.Status)
		assert.True(t, record.FocusUntil.IsZero())
	})

	t.Run("休息状态同样到期回退", func(t *testing.T) {
		require.NoError(t, tracker.StartBreak("user-focus", 30*time.Millisecond))

		record, _ := tracker.GetPresence("user-focus")
		assert.Equal(t, PresenceStatusBreak, record.Status)

		time.Sleep(60 * time.Millisecond)
		tracker.expireFocusSessions()

		record, _ = tracker.GetPresence("user-focus")
		assert.Equal(t, PresenceStatusOnline, record.Status)
	})

	t.Run("离线用户开启专注返回错误", func(t *testing.T) {
		err := tracker.StartFocusSession("user-missing", time.Minute)
		assert.Error(t, err)
	})
}

// TestRoomMembership 测试房间成员管理与快照
func TestRoomMembership(t *testing.T) {
	tracker := newTestTracker(t)
	tracker.markOnline("alice", nil)
	tracker.markOnline("bob", nil)

	tracker.joinRoom("alice", "design")
	tracker.joinRoom("bob", "design")

	t.Run("快照包含全部房间成员", func(t *testing.T) {
		snapshot := tracker.GetRoomSnapshot("design")
		assert.Equal(t, "design", snapshot.RoomID)
		assert.Len(t, snapshot.Members, 2)
	})

	t.Run("重复加入不产生重复成员", func(t *testing.T) {
		tracker.joinRoom("alice", "design")

		snapshot := tracker.GetRoomSnapshot("design")
		assert.Len(t, snapshot.Members, 2)
	})

	t.Run("离开后从快照移除", func(t *testing.T) {
		tracker.leaveRoom("bob", "design")

		snapshot := tracker.GetRoomSnapshot("design")
		require.Len(t, snapshot.Members, 1)
		assert.Equal(t, "alice", snapshot.Members[0].UserID)
	})

	t.Run("空房间返回空快照", func(t *testing.T) {
		snapshot := tracker.GetRoomSnapshot("nowhere")
		assert.Empty(t, snapshot.Members)
	})
}

// TestPresenceSweep 测试沉默用户的离线清扫
func TestPresenceSweep(t *testing.T) {
	tracker := newTestTracker(t)
	tracker.markOnline("user-active", nil)
	tracker.markOnline("user-silent", nil)

	// 将沉默用户的最后活跃时间拨回到阈值之外
	tracker.mu.Lock()
	tracker.records["user-silent"].LastSeen = time.Now().Add(-time.Hour)
	tracker.mu.Unlock()

	tracker.sweep()

	t.Run("沉默用户被转为离线", func(t *testing.T) {
		_, exists := tracker.GetPresence("user-silent")
		assert.False(t, exists)
	})

	t.Run("活跃用户不受影响", func(t *testing.T) {
		record, exists := tracker.GetPresence("user-active")
		require.True(t, exists)
		assert.Equal(t, PresenceStatusOnline, record.Status)
	})
}

// TestPresenceDeltaBroadcast 测试房间增量合并与广播
func TestPresenceDeltaBroadcast(t *testing.T) {
	hub := newTestHub(t, func(c *Config) {
		c.AllowMultiLogin = true
		// 手动触发刷新，避免定时器干扰断言
		c.Presence.FlushInterval = time.Hour
	})

	sessionA, err := hub.Connect(context.Background(), "alice", TransportWebSocket)
	require.NoError(t, err)
	sessionB, err := hub.Connect(context.Background(), "bob", TransportWebSocket)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)
	readFrame(t, hub, sessionA, time.Second)
	readFrame(t, hub, sessionB, time.Second)

	require.NoError(t, hub.Subscribe(context.Background(), sessionA.ID, "topic.room.standup"))
	require.NoError(t, hub.Subscribe(context.Background(), sessionB.ID, "topic.room.standup"))

	hub.GetPresence().flushDeltas()
	time.Sleep(100 * time.Millisecond)

	t.Run("订阅者收到合并后的房间增量", func(t *testing.T) {
		frame := readFrame(t, hub, sessionA, time.Second)
		assert.Equal(t, "presence_delta", frame.Headers["kind"])
		assert.Equal(t, "topic.room.standup", frame.Destination)

		var delta models.PresenceDelta
		require.NoError(t, json.Unmarshal([]byte(frame.Body), &delta))
		assert.Equal(t, "standup", delta.RoomID)
		assert.Len(t, delta.Joined, 2, "同一周期内两次加入应合并为一条增量")
	})

	t.Run("刷新后不再重复广播", func(t *testing.T) {
		hub.GetPresence().flushDeltas()
		time.Sleep(100 * time.Millisecond)

		select {
		case <-sessionB.SendChan:
			// sessionB 还有第一条增量未读，读掉后不应再有新帧
			select {
			case <-sessionB.SendChan:
				t.Fatal("空增量不应触发广播")
			case <-time.After(200 * time.Millisecond):
			}
		case <-time.After(time.Second):
			t.Fatal("应收到第一条增量")
		}
	})

	t.Run("状态变化记入所在房间的增量", func(t *testing.T) {
		require.NoError(t, hub.GetPresence().UpdateStatus("alice", PresenceStatusFocused, "评审", 0))
		hub.GetPresence().flushDeltas()
		time.Sleep(100 * time.Millisecond)

		frame := readFrame(t, hub, sessionA, time.Second)
		var delta models.PresenceDelta
		require.NoError(t, json.Unmarshal([]byte(frame.Body), &delta))
		require.Len(t, delta.Changed, 1)
		assert.Equal(t, "alice", delta.Changed[0].UserID)
		assert.Equal(t, PresenceStatusFocused, delta.Changed[0].Status)
	})
}
