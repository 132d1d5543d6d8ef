/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\protocol\outbox.go
 * @Description: 会话发件箱（至少一次投递 + 累计确认 + 重放窗口）
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package protocol

import (
	"sync"
	"time"

	"github.com/kamalyes/go-toolbox/pkg/errorx"
	"github.com/kamalyes/go-toolbox/pkg/mathx"
	"github.com/kamalyes/go-wsession/models"
)

// EvictHandler 发件箱淘汰处理器接口
// 已确认或投递失败的消息离开窗口时回调（例如归档落库）
type EvictHandler interface {
	// HandleEvicted 处理离开重放窗口的消息
	HandleEvicted(msg *models.QueuedMessage) error
}

// Outbox 会话发件箱
// 序列号从1开始在会话内严格递增且无空洞；
// 消息只能经由累计确认离开窗口，投递超时会重置为待投递
type Outbox struct {
	mu          sync.Mutex
	sessionID   string                  // 所属会话ID
	capacity    int                     // 窗口容量上限
	ackTimeout  time.Duration           // 投递确认超时
	maxAttempts int                     // 单条消息最大投递次数
	nextSeq     int64                   // 下一个待分配的序列号
	ackedSeq    int64                   // 已累计确认的最大序列号
	baseSeq     int64                   // 窗口首条消息的序列号
	floorSeq    int64                   // 可重放下界（失败消息淘汰后抬升）
	window      []*models.QueuedMessage // 未确认消息窗口（按序列号升序）
	evictHandler EvictHandler           // 淘汰处理器（可选）
}

// NewOutbox 创建发件箱
func NewOutbox(sessionID string, config models.OutboxConfig) *Outbox {
	return &Outbox{
		sessionID:   sessionID,
		capacity:    mathx.IfNotZero(config.Capacity, 1000),
		ackTimeout:  mathx.IfNotZero(config.AckTimeout, 5*time.Second),
		maxAttempts: mathx.IfNotZero(config.MaxAttempts, 3),
		nextSeq:     1,
		baseSeq:     1,
		floorSeq:    1,
		window:      make([]*models.QueuedMessage, 0, 64),
	}
}

// WithEvictHandler 设置淘汰处理器
func (o *Outbox) WithEvictHandler(handler EvictHandler) *Outbox {
	o.mu.Lock()
	o.evictHandler = handler
	o.mu.Unlock()
	return o
}

// Enqueue 入队一个帧并分配序列号
// 窗口已满时返回容量错误，不阻塞也不静默丢弃
func (o *Outbox) Enqueue(frame *models.Frame) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.window) >= o.capacity {
		return 0, models.ErrOutboxFull
	}

	seq := o.nextSeq
	o.nextSeq++

	frame.Seq = seq
	frame.SessionID = o.sessionID

	o.window = append(o.window, &models.QueuedMessage{
		Seq:        seq,
		SessionID:  o.sessionID,
		Frame:      frame,
		State:      models.OutboxStatePending,
		EnqueuedAt: time.Now(),
	})

	return seq, nil
}

// CollectPending 收集待投递消息并标记为已投递
// limit <= 0 时返回全部待投递消息
func (o *Outbox) CollectPending(limit int) []*models.QueuedMessage {
	o.mu.Lock()
	defer o.mu.Unlock()

	collected := make([]*models.QueuedMessage, 0)
	for _, msg := range o.window {
		if msg.State != models.OutboxStatePending {
			continue
		}
		msg.MarkInFlight()
		collected = append(collected, msg)
		if limit > 0 && len(collected) >= limit {
			break
		}
	}
	return collected
}

// MarkInFlight 将指定序列号的消息标记为已投递待确认
func (o *Outbox) MarkInFlight(seq int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	msg := o.findUnsafe(seq)
	if msg == nil {
		return errorx.NewError(models.ErrTypeReplayWindowEvicted, seq)
	}
	msg.MarkInFlight()
	return nil
}

// Ack 累计确认：确认 seq 及之前的全部消息并移出窗口
// 返回本次实际确认的消息数
func (o *Outbox) Ack(seq int64) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	if seq <= o.ackedSeq {
		return 0
	}

	acked := 0
	for len(o.window) > 0 && o.window[0].Seq <= seq {
		msg := o.window[0]
		msg.MarkAcked()
		o.evictUnsafe(msg)
		o.window = o.window[1:]
		acked++
	}

	// 确认号不能超过已分配的最大序列号
	capped := seq
	if capped > o.nextSeq-1 {
		capped = o.nextSeq - 1
	}
	o.ackedSeq = capped
	o.baseSeq = o.ackedSeq + 1

	return acked
}

// MarkFailed 将指定序列号的消息标记为投递失败
func (o *Outbox) MarkFailed(seq int64, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	msg := o.findUnsafe(seq)
	if msg == nil {
		return errorx.NewError(models.ErrTypeReplayWindowEvicted, seq)
	}
	msg.MarkFailed(reason)
	return nil
}

// ReplayFrom 从指定序列号起按序返回全部未确认消息，并重置为待投递
// 窗口不再覆盖该序列号或范围内存在失败消息时返回容量错误（调用方应改走全量快照）
func (o *Outbox) ReplayFrom(seq int64) ([]*models.QueuedMessage, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if seq < o.baseSeq || seq < o.floorSeq {
		return nil, errorx.NewError(models.ErrTypeReplayWindowEvicted, seq)
	}

	replay := make([]*models.QueuedMessage, 0)
	for _, msg := range o.window {
		if msg.Seq < seq {
			continue
		}
		if msg.State == models.OutboxStateFailed {
			return nil, errorx.NewError(models.ErrTypeReplayWindowEvicted, msg.Seq)
		}
		msg.MarkPending()
		replay = append(replay, msg)
	}
	return replay, nil
}

// PendingAfter 返回序列号大于 since 的未确认消息（长轮询用，不改变状态标记为已投递）
func (o *Outbox) PendingAfter(since int64, limit int) []*models.QueuedMessage {
	o.mu.Lock()
	defer o.mu.Unlock()

	result := make([]*models.QueuedMessage, 0)
	for _, msg := range o.window {
		if msg.Seq <= since || msg.State == models.OutboxStateFailed {
			continue
		}
		msg.MarkInFlight()
		result = append(result, msg)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result
}

// CheckTimeouts 扫描投递超时的消息
// 未超过最大投递次数的重置为待投递，超过的标记失败并移出窗口
// 返回重新入队的消息数
func (o *Outbox) CheckTimeouts(now time.Time) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	requeued := 0
	kept := o.window[:0]
	for _, msg := range o.window {
		if msg.State == models.OutboxStateInFlight && now.Sub(msg.LastSentAt) > o.ackTimeout {
			if msg.Attempts >= o.maxAttempts {
				msg.MarkFailed("ack timeout after max attempts")
				o.evictUnsafe(msg)
				// 失败消息之前的序列段不再可重放
				if msg.Seq >= o.floorSeq {
					o.floorSeq = msg.Seq + 1
				}
				continue
			}
			msg.MarkPending()
			requeued++
		}
		kept = append(kept, msg)
	}
	o.window = kept
	if len(o.window) > 0 {
		o.baseSeq = o.window[0].Seq
	} else {
		o.baseSeq = o.nextSeq
	}
	return requeued
}

// Rebind 将发件箱移交给新会话（断线恢复时调用）
// 窗口内消息与后续入箱帧全部改挂到新会话ID下
func (o *Outbox) Rebind(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.sessionID = sessionID
	for _, msg := range o.window {
		msg.SessionID = sessionID
		if msg.Frame != nil {
			msg.Frame.SessionID = sessionID
		}
	}
}

// AckedSeq 返回已累计确认的最大序列号
func (o *Outbox) AckedSeq() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ackedSeq
}

// TailSeq 返回已分配的最大序列号
func (o *Outbox) TailSeq() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.nextSeq - 1
}

// Depth 返回窗口内未确认消息数
func (o *Outbox) Depth() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.window)
}

// Stats 返回发件箱统计信息
func (o *Outbox) Stats() map[string]interface{} {
	o.mu.Lock()
	defer o.mu.Unlock()

	pending, inFlight, failed := 0, 0, 0
	for _, msg := range o.window {
		switch msg.State {
		case models.OutboxStatePending:
			pending++
		case models.OutboxStateInFlight:
			inFlight++
		case models.OutboxStateFailed:
			failed++
		}
	}

	return map[string]interface{}{
		"session_id": o.sessionID,
		"depth":      len(o.window),
		"pending":    pending,
		"in_flight":  inFlight,
		"failed":     failed,
		"acked_seq":  o.ackedSeq,
		"tail_seq":   o.nextSeq - 1,
		"capacity":   o.capacity,
	}
}

// findUnsafe 在窗口内查找指定序列号的消息（须持锁调用）
func (o *Outbox) findUnsafe(seq int64) *models.QueuedMessage {
	if seq < o.baseSeq || seq >= o.nextSeq || len(o.window) == 0 {
		return nil
	}
	// 窗口按序列号升序，二分定位
	lo, hi := 0, len(o.window)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		switch {
		case o.window[mid].Seq == seq:
			return o.window[mid]
		case o.window[mid].Seq < seq:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return nil
}

// evictUnsafe 调用淘汰处理器（须持锁调用）
func (o *Outbox) evictUnsafe(msg *models.QueuedMessage) {
	if o.evictHandler != nil {
		_ = o.evictHandler.HandleEvicted(msg)
	}
}
