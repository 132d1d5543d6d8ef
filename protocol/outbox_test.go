/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\protocol\outbox_test.go
 * @Description: 发件箱测试
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package protocol

import (
	"testing"
	"time"

	"github.com/kamalyes/go-wsession/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOutbox(capacity int) *Outbox {
	return NewOutbox("sess-1", models.OutboxConfig{
		Capacity:    capacity,
		AckTimeout:  50 * time.Millisecond,
		MaxAttempts: 2,
	})
}

// TestOutboxSequence 测试序列号分配
func TestOutboxSequence(t *testing.T) {
	t.Run("序列号从1开始严格递增无空洞", func(t *testing.T) {
		ob := newTestOutbox(100)
		for i := 1; i <= 10; i++ {
			seq, err := ob.Enqueue(models.NewFrame(models.FrameTypeMessage).SetDestination("topic.a"))
			require.NoError(t, err)
			assert.Equal(t, int64(i), seq)
		}
		assert.Equal(t, int64(10), ob.TailSeq())
	})

	t.Run("容量满时返回容量错误", func(t *testing.T) {
		ob := newTestOutbox(2)
		_, err := ob.Enqueue(models.NewFrame(models.FrameTypeMessage))
		require.NoError(t, err)
		_, err = ob.Enqueue(models.NewFrame(models.FrameTypeMessage))
		require.NoError(t, err)

		_, err = ob.Enqueue(models.NewFrame(models.FrameTypeMessage))
		assert.ErrorIs(t, err, models.ErrOutboxFull)
		assert.True(t, models.IsCapacityError(err) || err == models.ErrOutboxFull)
	})
}

// TestOutboxAck 测试累计确认
func TestOutboxAck(t *testing.T) {
	t.Run("累计确认移除前缀", func(t *testing.T) {
		ob := newTestOutbox(100)
		for i := 0; i < 5; i++ {
			_, err := ob.Enqueue(models.NewFrame(models.FrameTypeMessage))
			require.NoError(t, err)
		}

		acked := ob.Ack(3)
		assert.Equal(t, 3, acked)
		assert.Equal(t, int64(3), ob.AckedSeq())
		assert.Equal(t, 2, ob.Depth())
	})

	t.Run("重复确认不生效", func(t *testing.T) {
		ob := newTestOutbox(100)
		_, _ = ob.Enqueue(models.NewFrame(models.FrameTypeMessage))
		_, _ = ob.Enqueue(models.NewFrame(models.FrameTypeMessage))

		assert.Equal(t, 2, ob.Ack(2))
		assert.Equal(t, 0, ob.Ack(2))
		assert.Equal(t, 0, ob.Ack(1))
	})

	t.Run("确认号超过尾部时截断", func(t *testing.T) {
		ob := newTestOutbox(100)
		_, _ = ob.Enqueue(models.NewFrame(models.FrameTypeMessage))
		ob.Ack(99)
		assert.Equal(t, int64(1), ob.AckedSeq())
	})
}

// TestOutboxRedelivery 测试至少一次投递
func TestOutboxRedelivery(t *testing.T) {
	t.Run("投递超时重置为待投递", func(t *testing.T) {
		ob := newTestOutbox(100)
		_, _ = ob.Enqueue(models.NewFrame(models.FrameTypeMessage))

		collected := ob.CollectPending(0)
		require.Len(t, collected, 1)
		assert.Equal(t, models.OutboxStateInFlight, collected[0].State)

		// 未确认，等待超时后扫描
		time.Sleep(60 * time.Millisecond)
		requeued := ob.CheckTimeouts(time.Now())
		assert.Equal(t, 1, requeued)
		assert.Equal(t, models.OutboxStatePending, collected[0].State)
	})

	t.Run("超过最大投递次数标记失败并淘汰", func(t *testing.T) {
		ob := newTestOutbox(100)
		_, _ = ob.Enqueue(models.NewFrame(models.FrameTypeMessage))

		// 第一次投递 + 超时重置
		ob.CollectPending(0)
		time.Sleep(60 * time.Millisecond)
		ob.CheckTimeouts(time.Now())

		// 第二次投递（达到MaxAttempts=2）+ 超时
		ob.CollectPending(0)
		time.Sleep(60 * time.Millisecond)
		requeued := ob.CheckTimeouts(time.Now())

		assert.Equal(t, 0, requeued)
		assert.Equal(t, 0, ob.Depth())
	})

	t.Run("消息只能经确认离开窗口", func(t *testing.T) {
		ob := newTestOutbox(100)
		seq, _ := ob.Enqueue(models.NewFrame(models.FrameTypeMessage))
		ob.CollectPending(0)

		assert.Equal(t, 1, ob.Depth())
		ob.Ack(seq)
		assert.Equal(t, 0, ob.Depth())
	})
}

// TestOutboxReplay 测试重放
func TestOutboxReplay(t *testing.T) {
	t.Run("从游标起按序重放", func(t *testing.T) {
		ob := newTestOutbox(100)
		for i := 0; i < 5; i++ {
			_, _ = ob.Enqueue(models.NewFrame(models.FrameTypeMessage))
		}
		ob.CollectPending(0)
		ob.Ack(2)

		replay, err := ob.ReplayFrom(3)
		require.NoError(t, err)
		require.Len(t, replay, 3)
		for i, msg := range replay {
			assert.Equal(t, int64(3+i), msg.Seq)
			assert.Equal(t, models.OutboxStatePending, msg.State)
		}
	})

	t.Run("窗口不再覆盖游标时返回淘汰错误", func(t *testing.T) {
		ob := newTestOutbox(100)
		for i := 0; i < 3; i++ {
			_, _ = ob.Enqueue(models.NewFrame(models.FrameTypeMessage))
		}
		ob.Ack(3)

		_, err := ob.ReplayFrom(2)
		assert.Error(t, err)
		assert.True(t, models.IsCapacityError(err))
	})
}

// evictRecorder 测试用淘汰处理器
type evictRecorder struct {
	evicted []*models.QueuedMessage
}

func (r *evictRecorder) HandleEvicted(msg *models.QueuedMessage) error {
	r.evicted = append(r.evicted, msg)
	return nil
}

// TestOutboxEvictHandler 测试淘汰回调
func TestOutboxEvictHandler(t *testing.T) {
	t.Run("确认淘汰触发回调", func(t *testing.T) {
		recorder := &evictRecorder{}
		ob := newTestOutbox(100)
		ob.WithEvictHandler(recorder)

		_, _ = ob.Enqueue(models.NewFrame(models.FrameTypeMessage))
		_, _ = ob.Enqueue(models.NewFrame(models.FrameTypeMessage))
		ob.Ack(2)

		require.Len(t, recorder.evicted, 2)
		assert.Equal(t, models.OutboxStateAcked, recorder.evicted[0].State)
	})
}
