/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\hub\utils.go
 * @Description: Hub 会话读写协程、入站帧分发与心跳检查
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package hub

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/kamalyes/go-wsession/models"
)

// ============================================================================
// 会话读写处理
// ============================================================================

// handleSessionWrite 处理会话消息写入
func (h *Hub) handleSessionWrite(session *Session) {
	h.wg.Add(1)
	defer h.wg.Done()
	defer func() {
		h.logger.InfoKV("会话写入协程结束",
			"session_id", session.ID,
			"user_id", session.UserID,
		)
	}()

	h.logger.InfoKV("会话写入协程启动",
		"session_id", session.ID,
		"user_id", session.UserID,
	)

	for {
		select {
		case data, ok := <-session.SendChan:
			if !ok {
				h.logger.InfoKV("会话发送通道关闭", "session_id", session.ID)
				return
			}

			if session.Conn != nil {
				session.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := session.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
					h.logger.ErrorKV("会话帧写入失败",
						"session_id", session.ID,
						"error", err,
					)
					return
				}
			}
		case <-h.ctx.Done():
			h.logger.InfoKV("会话写入协程因Hub关闭而结束", "session_id", session.ID)
			return
		}
	}
}

// handleSessionRead 处理会话消息读取
func (h *Hub) handleSessionRead(session *Session) {
	h.wg.Add(1)
	defer h.wg.Done()

	// 读取结束时按关闭码归类断开原因：
	// 正常关闭可恢复性低于网络中断，后者保留发件箱等待重连
	reason := DisconnectReasonTransport
	defer func() {
		h.logger.InfoKV("会话读取协程结束", "session_id", session.ID, "reason", reason)
		if !h.shutdown.Load() {
			h.Unregister(session, reason)
		}
	}()

	h.logger.InfoKV("会话读取协程启动", "session_id", session.ID)

	for {
		messageType, data, err := session.Conn.ReadMessage()
		if err != nil {
			if closeErr, ok := err.(*websocket.CloseError); ok {
				if info, known := models.WsCloseCodeMap[closeErr.Code]; known && info.IsNormal {
					reason = DisconnectReasonClient
				}
			}
			h.logger.InfoKV("会话连接读取错误",
				"session_id", session.ID,
				"error", err,
			)
			return
		}

		h.touchSession(session)

		switch messageType {
		case websocket.TextMessage:
			if !h.handleInboundData(session, data) {
				reason = DisconnectReasonProtocol
				return
			}
		case websocket.CloseMessage:
			reason = DisconnectReasonClient
			return
		case websocket.PingMessage:
			_ = session.Conn.WriteMessage(websocket.PongMessage, nil)
		}
	}
}

// handleInboundData 解码并分发一条入站数据
// 协议错误回发 ERROR 帧并返回 false（调用方断开连接）
func (h *Hub) handleInboundData(session *Session, data []byte) bool {
	frame, err := h.codec.Decode(data)
	if err != nil {
		h.logger.WarnKV("入站帧解码失败",
			"session_id", session.ID,
			"size", len(data),
			"error", err,
		)
		h.sendFrameToSession(session, NewErrorFrame(session.ID, int(models.ErrTypeInvalidFrame), err.Error()))
		return false
	}

	return h.handleInboundFrame(session, frame)
}

// handleInboundFrame 按帧类型分发入站帧
func (h *Hub) handleInboundFrame(session *Session, frame *Frame) bool {
	switch frame.Type {
	case FrameTypeConnect:
		// 携带恢复令牌的 CONNECT 走断线恢复，重放未确认消息
		if token := frame.Headers["resume_token"]; token != "" {
			if err := h.ResumeSession(session, token, frame.Seq); err != nil {
				h.logger.WarnKV("会话恢复失败",
					"session_id", session.ID,
					"error", err,
				)
				h.sendFrameToSession(session, NewErrorFrame(session.ID, int(models.ErrTypeInvalidResumeToken), err.Error()))
			}
		}

	case FrameTypeSubscribe:
		if err := h.Subscribe(session.Context, session.ID, frame.Destination); err != nil {
			h.sendFrameToSession(session, NewErrorFrame(session.ID, int(models.ErrTypeInvalidDestination), err.Error()))
		}

	case FrameTypeSend:
		h.handleInboundSend(session, frame)

	case FrameTypeAck:
		h.HandleAck(session.ID, frame.Seq)

	case FrameTypePing:
		h.sendFrameToSession(session, NewPongFrame(session.ID))

	case FrameTypePong:
		h.handlePongFrame(session)

	default:
		h.logger.WarnKV("入站帧类型不受支持",
			"session_id", session.ID,
			"type", frame.Type,
		)
		h.sendFrameToSession(session, NewErrorFrame(session.ID, int(models.ErrTypeUnknownFrameType), string(frame.Type)))
		return false
	}
	return true
}

// handleInboundSend 处理客户端上行业务消息
// 标记发送者后投入出站通道，由目的地注册表分发
func (h *Hub) handleInboundSend(session *Session, frame *Frame) {
	if h.frameReceivedCallback != nil {
		if err := h.frameReceivedCallback(session.Context, session, frame); err != nil {
			h.logger.WarnKV("帧接收回调执行失败",
				"session_id", session.ID,
				"error", err,
			)
		}
	}

	outFrame := NewFrame(FrameTypeMessage).
		SetID(h.idGenerator.GenerateRequestID()).
		SetDestination(frame.Destination).
		SetBody(frame.Body).
		SetHeader("sender", session.UserID)

	select {
	case h.outbound <- outFrame:
	default:
		h.logger.WarnKV("出站通道已满，上行消息被丢弃",
			"session_id", session.ID,
			"destination", frame.Destination,
		)
		h.sendFrameToSession(session, NewErrorFrame(session.ID, int(models.ErrTypeSendBufferFull), "outbound channel full"))
	}
}

// handlePongFrame 处理心跳应答
func (h *Hub) handlePongFrame(session *Session) {
	h.mutex.Lock()
	session.LastPong = time.Now()
	session.HeartbeatMiss = 0
	h.mutex.Unlock()

	h.presence.touch(session.UserID)
}

// touchSession 刷新会话活跃时间
func (h *Hub) touchSession(session *Session) {
	h.mutex.Lock()
	session.LastSeen = time.Now()
	h.mutex.Unlock()
}

// ============================================================================
// 心跳检查
// ============================================================================

// checkHeartbeat 向全部会话下发PING，清理心跳超时会话
// 一次间隔未应答标记可疑并累计丢失次数，超过 ClientTimeout 判定断开
func (h *Hub) checkHeartbeat() {
	sessions := h.GetSessionsCopy()
	now := time.Now()

	timeoutSessions := 0
	for _, session := range sessions {
		h.mutex.RLock()
		lastPong := session.LastPong
		h.mutex.RUnlock()

		elapsed := now.Sub(lastPong)
		if elapsed > h.config.ClientTimeout {
			h.Unregister(session, DisconnectReasonHeartbeat)
			timeoutSessions++
			continue
		}

		if elapsed > h.config.HeartbeatInterval {
			h.mutex.Lock()
			session.HeartbeatMiss++
			h.mutex.Unlock()
		}

		h.sendFrameToSession(session, NewPingFrame(session.ID))
	}

	if timeoutSessions > 0 {
		h.logger.InfoKV("心跳检查完成",
			"timeout_sessions", timeoutSessions,
			"node_id", h.nodeID,
		)
	}
}

// ============================================================================
// Hub 状态查询
// ============================================================================

// Stats 获取Hub运行统计快照
func (h *Hub) Stats() *HubStats {
	h.mutex.RLock()
	sessionCount := len(h.sessions)
	userCount := len(h.userSessions)
	outboxDepth := 0
	for _, outbox := range h.outboxes {
		outboxDepth += outbox.Depth()
	}
	h.mutex.RUnlock()

	breakerStates := make(map[string]BreakerState, len(h.breakers))
	for name, breaker := range h.breakers {
		breakerStates[name] = breaker.State()
	}

	return &HubStats{
		NodeID:        h.nodeID,
		SessionCount:  int64(sessionCount),
		UserCount:     int64(userCount),
		OutboxDepth:   int64(outboxDepth),
		FramesSent:    h.framesSent.Load(),
		FramesAcked:   h.framesAcked.Load(),
		Takeovers:     h.takeovers.Load(),
		Replays:       h.replays.Load(),
		BreakerStates: breakerStates,
		StartedAt:     h.startTime,
		Uptime:        int64(time.Since(h.startTime).Seconds()),
	}
}

// GetHubHealth 获取Hub健康状态
// 任一熔断器打开时降级为 degraded，未启动为 stopped
func (h *Hub) GetHubHealth() *HealthStatus {
	status := "healthy"
	if !h.IsStarted() || h.shutdown.Load() {
		status = "stopped"
	} else {
		for _, breaker := range h.breakers {
			if breaker.State() == models.BreakerStateOpen {
				status = "degraded"
				break
			}
		}
	}

	return &HealthStatus{
		Status:    status,
		NodeID:    h.nodeID,
		Stats:     h.Stats(),
		CheckedAt: time.Now(),
	}
}

// checkUserOnline 检查用户是否在本节点在线
func (h *Hub) checkUserOnline(userID string) bool {
	h.mutex.RLock()
	_, exists := h.userSessions[userID]
	h.mutex.RUnlock()
	return exists
}

// ============================================================================
// 测试辅助方法 - 提供安全的写操作
// ============================================================================

// SetSessionLastPongForTest 设置会话最后心跳应答时间（用于测试，线程安全）
func (h *Hub) SetSessionLastPongForTest(sessionID string, lastPong time.Time) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if session, exists := h.sessions[sessionID]; exists {
		session.LastPong = lastPong
		return true
	}
	return false
}
