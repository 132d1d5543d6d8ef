/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\hub\send.go
 * @Description: Hub 会话操作与帧投递（目的地注册表分发）
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package hub

import (
	"context"
	"strings"
	"time"

	"github.com/kamalyes/go-toolbox/pkg/errorx"
	"github.com/kamalyes/go-toolbox/pkg/mathx"
	"github.com/kamalyes/go-toolbox/pkg/retry"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
	"github.com/kamalyes/go-wsession/models"
)

// ContextKey 上下文键类型
type ContextKey string

const (
	ContextKeyUserID   ContextKey = "user_id"
	ContextKeySenderID ContextKey = "sender_id"
)

// ============================================================================
// 会话管理操作
// ============================================================================

// Connect 建立新会话并注册到Hub
func (h *Hub) Connect(ctx context.Context, userID string, transport TransportType) (*Session, error) {
	if h.shutdown.Load() {
		return nil, ErrHubNotRunning
	}

	session := NewSession(h.idGenerator.GenerateRequestID(), userID).
		WithNodeID(h.nodeID).
		WithResumeToken(h.idGenerator.GenerateCorrelationID()).
		WithContext(ctx)
	session.Transport = transport

	switch transport {
	case TransportWebSocket:
		session.WithSendChan(make(chan []byte, h.config.MessageBufferSize))
	case TransportLongPoll:
		session.WithLongPoll(make(chan struct{}, 1), make(chan struct{}))
	default:
		return nil, errorx.NewError(models.ErrTypeTransportUnavailable)
	}

	h.Register(session)
	return session, nil
}

// Send 向指定会话投递一帧（经发件箱分配序列号）
func (h *Hub) Send(ctx context.Context, sessionID string, frame *Frame) error {
	session, exists := h.GetSessionByIDWithLock(sessionID)
	if !exists {
		return errorx.NewError(ErrTypeSessionNotFound, sessionID)
	}
	return h.enqueueToSession(session, frame)
}

// Disconnect 断开指定会话
func (h *Hub) Disconnect(ctx context.Context, sessionID string, reason DisconnectReason) error {
	session, exists := h.GetSessionByIDWithLock(sessionID)
	if !exists {
		return errorx.NewError(ErrTypeSessionNotFound, sessionID)
	}
	h.Unregister(session, reason)
	return nil
}

// Subscribe 会话订阅目的地
func (h *Hub) Subscribe(ctx context.Context, sessionID string, destination string) error {
	dest, ok := ParseDestination(destination)
	if !ok {
		return errorx.NewError(ErrTypeInvalidDestination, destination)
	}

	session, exists := h.GetSessionByIDWithLock(sessionID)
	if !exists {
		return errorx.NewError(ErrTypeSessionNotFound, sessionID)
	}

	h.mutex.Lock()
	session.Subscriptions[dest.Raw] = struct{}{}
	if _, ok := h.topicSessions[dest.Raw]; !ok {
		h.topicSessions[dest.Raw] = make(map[string]*Session)
	}
	h.topicSessions[dest.Raw][session.ID] = session
	h.mutex.Unlock()

	h.logger.DebugKV("会话订阅目的地",
		"session_id", sessionID,
		"destination", destination,
	)

	// 房间订阅联动在线状态（topic.room.* 视为加入房间）
	if roomID, ok := roomIDFromDestination(dest); ok {
		h.presence.joinRoom(session.UserID, roomID)
	}
	return nil
}

// roomIDFromDestination 从 topic.room.<id> 目的地解析房间ID
func roomIDFromDestination(dest *Destination) (string, bool) {
	if dest.Kind != DestinationTopic {
		return "", false
	}
	return strings.CutPrefix(dest.Name, "room.")
}

// Unsubscribe 会话退订目的地
func (h *Hub) Unsubscribe(ctx context.Context, sessionID string, destination string) error {
	dest, ok := ParseDestination(destination)
	if !ok {
		return errorx.NewError(ErrTypeInvalidDestination, destination)
	}

	session, exists := h.GetSessionByIDWithLock(sessionID)
	if !exists {
		return errorx.NewError(ErrTypeSessionNotFound, sessionID)
	}

	h.mutex.Lock()
	delete(session.Subscriptions, dest.Raw)
	if sessions, ok := h.topicSessions[dest.Raw]; ok {
		delete(sessions, session.ID)
		if len(sessions) == 0 {
			delete(h.topicSessions, dest.Raw)
		}
	}
	h.mutex.Unlock()

	if roomID, ok := roomIDFromDestination(dest); ok {
		h.presence.leaveRoom(session.UserID, roomID)
	}
	return nil
}

// ============================================================================
// 目的地处理器注册表
// ============================================================================

// RegisterHandler 注册目的地处理器（覆盖同类别的已有处理器）
// 注册表是启动时填充的普通映射，分发时直接按类别查表
func (h *Hub) RegisterHandler(kind DestinationKind, handler DestinationHandler) {
	h.handlers[kind] = handler
	h.logger.InfoKV("目的地处理器已注册", "kind", kind)
}

// registerDefaultHandlers 注册内置目的地处理器
func (h *Hub) registerDefaultHandlers() {
	h.handlers[DestinationTopic] = h.handleTopicFrame
	h.handlers[DestinationQueue] = h.handleQueueFrame
	h.handlers[DestinationUser] = h.handleUserFrame
}

// handleOutbound 处理出站帧（内部方法，仅事件循环调用）
func (h *Hub) handleOutbound(frame *Frame) {
	dest, ok := ParseDestination(frame.Destination)
	if !ok {
		h.logger.WarnKV("出站帧目的地非法", "destination", frame.Destination, "frame_id", frame.ID)
		return
	}

	handler, exists := h.handlers[dest.Kind]
	if !exists {
		h.logger.WarnKV("目的地处理器未注册", "kind", dest.Kind)
		if h.errorCallback != nil {
			_ = h.errorCallback(h.ctx, errorx.NewError(ErrTypeHandlerNotFound, string(dest.Kind)))
		}
		return
	}

	delivered, err := handler(h.ctx, dest, frame)
	if err != nil {
		h.logger.WarnKV("出站帧分发失败",
			"destination", frame.Destination,
			"frame_id", frame.ID,
			"error", err,
		)
		return
	}

	h.logger.DebugKV("出站帧已分发",
		"destination", frame.Destination,
		"kind", dest.Kind,
		"delivered", delivered,
	)
}

// handleTopicFrame 主题帧处理器：扇出给全部订阅会话
func (h *Hub) handleTopicFrame(ctx context.Context, dest *Destination, frame *Frame) (int, error) {
	subscribers := syncx.WithRLockReturnValue(&h.mutex, func() []*Session {
		return CopySessionsFromMap(h.topicSessions[dest.Raw])
	})

	delivered := 0
	for _, session := range subscribers {
		if err := h.enqueueToSession(session, frame.Clone()); err == nil {
			delivered++
		}
	}

	// 🌐 跨节点扇出（本地回环由 relay 头过滤）
	h.relayFrameToNodes(ctx, frame)
	return delivered, nil
}

// handleQueueFrame 队列帧处理器：单消费者投递
// 从订阅者中选择发件箱积压最少的一个
func (h *Hub) handleQueueFrame(ctx context.Context, dest *Destination, frame *Frame) (int, error) {
	subscribers := syncx.WithRLockReturnValue(&h.mutex, func() []*Session {
		return CopySessionsFromMap(h.topicSessions[dest.Raw])
	})

	if len(subscribers) == 0 {
		h.relayFrameToNodes(ctx, frame)
		return 0, nil
	}

	var target *Session
	minDepth := -1
	for _, session := range subscribers {
		depth := 0
		if outbox, ok := h.GetOutboxWithLock(session.ID); ok {
			depth = outbox.Depth()
		}
		if minDepth < 0 || depth < minDepth {
			minDepth = depth
			target = session
		}
	}

	if err := h.enqueueToSession(target, frame.Clone()); err != nil {
		return 0, err
	}
	return 1, nil
}

// handleUserFrame 用户帧处理器：投递给该用户的全部会话
func (h *Hub) handleUserFrame(ctx context.Context, dest *Destination, frame *Frame) (int, error) {
	sessions := h.GetSessionsByUserID(dest.Name)

	if len(sessions) == 0 {
		// 用户不在本节点，尝试跨节点路由
		if relayed := h.relayFrameToNodes(ctx, frame); relayed {
			return 0, nil
		}
		return 0, errorx.NewError(ErrTypeUserOffline)
	}

	delivered := 0
	for _, session := range sessions {
		if err := h.enqueueToSession(session, frame.Clone()); err == nil {
			delivered++
		}
	}
	return delivered, nil
}

// ============================================================================
// 发布操作
// ============================================================================

// PublishToTopic 向主题发布消息
func (h *Hub) PublishToTopic(ctx context.Context, topic string, body string) error {
	return h.publish(ctx, string(DestinationTopic)+"."+topic, body)
}

// SendToQueue 向队列投递消息（单消费者）
func (h *Hub) SendToQueue(ctx context.Context, queue string, body string) error {
	return h.publish(ctx, string(DestinationQueue)+"."+queue, body)
}

// SendToUser 向用户全部会话投递消息
func (h *Hub) SendToUser(ctx context.Context, userID string, body string) error {
	return h.publish(ctx, string(DestinationUser)+"."+userID, body)
}

// publish 构造 MESSAGE 帧并提交到出站通道
// 序列号由各目标会话的发件箱在投递时分配
func (h *Hub) publish(ctx context.Context, destination string, body string) error {
	if !h.started.Load() || h.shutdown.Load() {
		return ErrHubNotRunning
	}

	if _, ok := ParseDestination(destination); !ok {
		return errorx.NewError(ErrTypeInvalidDestination, destination)
	}

	frame := NewFrame(FrameTypeMessage).
		SetID(h.idGenerator.GenerateRequestID()).
		SetDestination(destination).
		SetBody(body)

	select {
	case h.outbound <- frame:
		return nil
	case <-ctx.Done():
		return errorx.NewError(models.ErrTypeContextCancelled, int64(0))
	default:
		h.logger.WarnKV("出站通道已满", "destination", destination, "frame_id", frame.ID)
		return ErrSendBufferFull
	}
}

// deliverToUser 同步投递给用户的全部会话
// 不经过出站通道，投递错误实时返回给调用方（供重试器判断）
func (h *Hub) deliverToUser(ctx context.Context, userID string, body string) error {
	if !h.started.Load() || h.shutdown.Load() {
		return ErrHubNotRunning
	}

	destination := string(DestinationUser) + "." + userID
	dest, ok := ParseDestination(destination)
	if !ok {
		return errorx.NewError(ErrTypeInvalidDestination, destination)
	}

	frame := NewFrame(FrameTypeMessage).
		SetID(h.idGenerator.GenerateRequestID()).
		SetDestination(destination).
		SetBody(body)

	_, err := h.handleUserFrame(ctx, dest, frame)
	return err
}

// SendToUserWithRetry 带重试机制的用户投递
func (h *Hub) SendToUserWithRetry(ctx context.Context, userID string, body string) *SendResult {
	result := &SendResult{}
	startTime := time.Now()

	// 创建 go-toolbox retry 实例用于延迟计算和条件判断
	retryInstance := retry.NewRetryWithCtx(ctx).
		SetAttemptCount(h.config.RetryPolicy.MaxRetries + 1).     // +1 因为第一次不是重试
		SetInterval(h.config.RetryPolicy.BaseDelay).              // 基础延迟
		SetMaxInterval(h.config.RetryPolicy.MaxDelay).            // 最大延迟
		SetBackoffMultiplier(h.config.RetryPolicy.BackoffFactor). // 退避倍数
		SetJitter(h.config.RetryPolicy.Jitter).                   // 是否启用抖动
		SetJitterPercent(h.config.RetryPolicy.JitterPercent).     // 抖动百分比
		SetConditionFunc(h.isRetryableError)                      // 重试条件判断

	finalErr := retryInstance.Do(func() error {
		attemptStart := time.Now()
		err := h.deliverToUser(ctx, userID, body)

		attempt := SendAttempt{
			Attempt:   len(result.Attempts) + 1,
			Timestamp: attemptStart,
			Duration:  time.Since(attemptStart),
			Success:   err == nil,
		}
		if err != nil {
			attempt.Error = err.Error()
		}
		result.Attempts = append(result.Attempts, attempt)
		return err
	})

	result.Success = finalErr == nil
	if finalErr != nil {
		result.Error = finalErr.Error()
	}

	h.logger.DebugKV("用户投递完成",
		"user_id", userID,
		"success", result.Success,
		"attempts", len(result.Attempts),
		"duration", time.Since(startTime),
	)
	return result
}

// isRetryableError 判断错误是否可以重试 - 完全基于错误类型
func (h *Hub) isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	return IsRetryableError(err)
}

// ============================================================================
// 发件箱投递
// ============================================================================

// enqueueToSession 帧入箱并触发投递
// 序列号由发件箱分配，保证会话内严格递增无空洞
func (h *Hub) enqueueToSession(session *Session, frame *Frame) error {
	outbox, exists := h.GetOutboxWithLock(session.ID)
	if !exists {
		return errorx.NewError(ErrTypeSessionNotFound, session.ID)
	}

	if _, err := outbox.Enqueue(frame); err != nil {
		h.logger.WarnKV("发件箱入箱失败",
			"session_id", session.ID,
			"frame_id", frame.ID,
			"error", err,
		)
		return err
	}

	h.deliverPending(session, outbox)
	return nil
}

// deliverPending 将发件箱中待投递的消息推给会话
// WebSocket 直接写入发送通道；长轮询只做到达通知，帧由 HandlePoll 拉取
func (h *Hub) deliverPending(session *Session, outbox *Outbox) {
	if session.Transport == TransportLongPoll {
		session.TryNotifyPoll()
		return
	}

	batch := outbox.CollectPending(mathx.IfEmpty(h.config.Poll.BatchSize, 100))
	for _, msg := range batch {
		if !h.sendFrameToSession(session, msg.Frame) {
			// 发送失败的留在在途状态，由超时扫描重新标记待投递
			h.logger.DebugKV("帧投递失败，等待超时重投",
				"session_id", session.ID,
				"seq", msg.Seq,
			)
			return
		}
	}
}

// sendFrameToSession 编码并发送单帧
func (h *Hub) sendFrameToSession(session *Session, frame *Frame) bool {
	if session.IsClosed() {
		return false
	}

	data, err := h.codec.Encode(frame)
	if err != nil {
		h.logger.ErrorKV("帧编码失败", "error", err, "frame_id", frame.ID)
		return false
	}

	if session.Transport == TransportLongPoll {
		return session.TryNotifyPoll()
	}

	if session.TrySend(data) {
		h.framesSent.Add(1)
		return true
	}

	h.logger.WarnKV("会话发送通道已满或已关闭", "session_id", session.ID)
	return false
}

// HandleAck 处理会话的累计确认
// 确认 seq 及之前的全部消息，释放发件箱空间
func (h *Hub) HandleAck(sessionID string, seq int64) int {
	outbox, exists := h.GetOutboxWithLock(sessionID)
	if !exists {
		return 0
	}

	acked := outbox.Ack(seq)
	if acked > 0 {
		h.framesAcked.Add(int64(acked))
	}

	if session, ok := h.GetSessionByIDWithLock(sessionID); ok {
		h.mutex.Lock()
		if seq > session.LastAckedSeq {
			session.LastAckedSeq = mathx.IF(seq > outbox.TailSeq(), outbox.TailSeq(), seq)
		}
		h.mutex.Unlock()
	}

	return acked
}

// ============================================================================
// 发件箱淘汰归档
// ============================================================================

// HandleEvicted 发件箱淘汰回调：失败淘汰的消息异步写入归档库
// 归档走 database 熔断器，数据库持续故障时快速失败
func (h *Hub) HandleEvicted(msg *QueuedMessage) error {
	if h.archiveRepo == nil {
		return nil
	}

	record := models.NewOutboxArchive(msg)

	syncx.Go(h.ctx).
		WithTimeout(3 * time.Second).
		OnError(func(err error) {
			h.logger.WarnKV("归档淘汰消息失败",
				"session_id", msg.SessionID,
				"seq", msg.Seq,
				"error", err,
			)
		}).
		ExecWithContext(func(ctx context.Context) error {
			return h.breakers[BreakerDatabase].Do(func() error {
				return h.archiveRepo.Save(ctx, record)
			})
		})
	return nil
}

// archiveOutboxUnsafe 会话终止时归档发件箱中未确认的消息（不加锁，需要外部加锁）
func (h *Hub) archiveOutboxUnsafe(sessionID string) {
	outbox, exists := h.outboxes[sessionID]
	if !exists || h.archiveRepo == nil {
		return
	}

	pending := outbox.PendingAfter(outbox.AckedSeq(), 0)
	if len(pending) == 0 {
		return
	}

	records := make([]*models.OutboxArchive, 0, len(pending))
	for _, msg := range pending {
		records = append(records, models.NewOutboxArchive(msg))
	}

	syncx.Go(h.ctx).
		WithTimeout(5 * time.Second).
		OnError(func(err error) {
			h.logger.WarnKV("归档会话发件箱失败",
				"session_id", sessionID,
				"count", len(records),
				"error", err,
			)
		}).
		ExecWithContext(func(ctx context.Context) error {
			return h.breakers[BreakerDatabase].Do(func() error {
				return h.archiveRepo.BatchSave(ctx, records)
			})
		})
}
