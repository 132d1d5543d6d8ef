/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\hub\registry.go
 * @Description: Hub 会话注册/注销与同用户会话接管
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package hub

import (
	"context"
	"time"

	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// ============================================================================
// 会话注册/注销
// ============================================================================

// Register 注册会话
func (h *Hub) Register(session *Session) {
	h.logger.DebugKV("会话注册请求", "session_id", session.ID, "user_id", session.UserID)
	h.register <- session
}

// Unregister 注销会话
func (h *Hub) Unregister(session *Session, reason DisconnectReason) {
	h.logger.DebugKV("会话注销请求", "session_id", session.ID, "user_id", session.UserID, "reason", reason)
	h.unregister <- &sessionDeparture{Session: session, Reason: reason}
}

// handleRegister 处理会话注册（内部方法，仅事件循环调用）
func (h *Hub) handleRegister(session *Session) {
	defer syncx.RecoverWithHandler(func(r interface{}) {
		h.logger.ErrorKV("handleRegister panic",
			"session_id", session.ID,
			"user_id", session.UserID,
			"panic", r,
		)
	})

	h.logger.InfoKV("handleRegister开始",
		"session_id", session.ID,
		"user_id", session.UserID)

	h.mutex.Lock()

	// 初始化会话时间戳（如果未设置）
	now := time.Now()
	if session.ConnectedAt.IsZero() {
		session.ConnectedAt = now
	}
	if session.LastSeen.IsZero() {
		session.LastSeen = now
	}
	if session.LastPong.IsZero() {
		session.LastPong = now
	}
	if session.ResumeToken == "" {
		session.ResumeToken = h.idGenerator.GenerateCorrelationID()
	}
	session.NodeID = h.nodeID

	// 统一处理同用户多会话策略（默认单会话：新连接接管旧连接）
	h.handleMultiSessionPolicy(session)

	// CONNECTING -> CONNECTED
	if !session.TransitionTo(SessionStateConnected) {
		h.logger.WarnKV("会话状态迁移失败",
			"session_id", session.ID,
			"state", session.State,
		)
	}

	// 绑定发件箱与恢复令牌（重连恢复时已在 ResumeSession 中移交，不重复创建）
	if _, exists := h.outboxes[session.ID]; !exists {
		h.outboxes[session.ID] = NewOutbox(session.ID, h.config.Outbox).
			WithEvictHandler(h)
	}
	h.resumeTokens[session.ResumeToken] = session.ID

	sessionCount := len(h.sessions)
	h.mutex.Unlock()

	h.logSessionConnection(session, sessionCount)

	// 同步在线状态（presence tracker 内部带版本号去重）
	h.presence.markOnline(session.UserID, session.Metadata)

	// 调用会话建立回调
	if h.sessionConnectCallback != nil {
		ctx := context.Background()
		if err := h.sessionConnectCallback(ctx, session); err != nil {
			h.logger.ErrorKV("会话建立回调执行失败",
				"session_id", session.ID,
				"user_id", session.UserID,
				"error", err,
			)
			if h.errorCallback != nil {
				_ = h.errorCallback(ctx, err)
			}
		}
	}

	// 下发 CONNECTED 确认帧（携带恢复令牌）
	h.sendFrameToSession(session, NewConnectedFrame(session.ID, session.ResumeToken))

	if session.Conn != nil {
		go h.handleSessionWrite(session)
		go h.handleSessionRead(session)
	}
}

// handleUnregister 处理会话注销（内部方法，仅事件循环调用）
func (h *Hub) handleUnregister(departure *sessionDeparture) {
	h.mutex.Lock()
	h.removeSessionUnsafe(departure.Session, departure.Reason)
	h.mutex.Unlock()

	// 用户最后一个会话断开后才转为离线
	if !h.userHasSessions(departure.Session.UserID) {
		h.presence.markOffline(departure.Session.UserID)
	}
}

// ============================================================================
// 同用户多会话策略
// ============================================================================

// handleMultiSessionPolicy 统一处理同用户多会话策略（内部方法，需要外部加锁）
// 默认单会话：同一用户的新连接接管所有旧会话；
// 开启多端登录后按连接数上限接管最早的会话
func (h *Hub) handleMultiSessionPolicy(newSession *Session) {
	userID := newSession.UserID
	existing, exists := h.userSessions[userID]

	h.logger.DebugKV("处理同用户会话策略",
		"user_id", userID,
		"new_session_id", newSession.ID,
		"existing_sessions", len(existing),
		"allow_multi_login", h.config.AllowMultiLogin,
		"max_connections_per_user", h.config.MaxConnectionsPerUser)

	// 如果用户没有旧会话，直接添加
	if !exists || len(existing) == 0 {
		h.addNewSessionUnsafe(newSession)
		return
	}

	// 单会话模式：接管所有旧会话
	if !h.config.AllowMultiLogin {
		h.logger.InfoKV("单会话模式，接管旧会话",
			"user_id", userID,
			"old_sessions", len(existing))

		h.takeOverSessionsUnsafe(newSession, existing)
		h.addNewSessionUnsafe(newSession)
		return
	}

	// 允许多会话，但有连接数限制
	if h.config.MaxConnectionsPerUser > 0 && len(existing) >= h.config.MaxConnectionsPerUser {
		h.logger.InfoKV("达到会话数上限，接管最早的会话",
			"user_id", userID,
			"current_count", len(existing),
			"max_allowed", h.config.MaxConnectionsPerUser)

		h.takeOverOldestSessionUnsafe(newSession, existing)
	}

	h.addNewSessionUnsafe(newSession)
}

// takenOverCloseGrace 接管通知入队后到关闭旧传输的宽限期
const takenOverCloseGrace = 100 * time.Millisecond

// takeOverSessionsUnsafe 接管指定会话集合（不加锁，需要外部加锁）
// 先向旧会话下发 SESSION_TAKEN_OVER 帧并摘除登记，
// 传输层在宽限期后异步关闭，写协程有机会先取走通知帧，事件循环不等待
func (h *Hub) takeOverSessionsUnsafe(newSession *Session, sessions map[string]*Session) {
	for _, old := range sessions {
		h.sendFrameToSession(old, NewTakenOverFrame(old.ID, newSession.ID))

		h.logger.InfoKV("会话被接管",
			"user_id", old.UserID,
			"old_session_id", old.ID,
			"new_session_id", newSession.ID,
		)

		h.takeovers.Add(1)
		if h.takeoverCallback != nil {
			h.takeoverCallback(old, newSession)
		}

		h.detachSessionUnsafe(old, DisconnectReasonTakenOver)

		taken := old
		time.AfterFunc(takenOverCloseGrace, func() {
			h.closeSessionTransport(taken)
		})
	}
}

// takeOverOldestSessionUnsafe 接管最早活跃的会话（不加锁）
func (h *Hub) takeOverOldestSessionUnsafe(newSession *Session, sessions map[string]*Session) {
	var oldest *Session
	for _, session := range sessions {
		if oldest == nil || session.LastSeen.Before(oldest.LastSeen) {
			oldest = session
		}
	}

	if oldest != nil {
		h.takeOverSessionsUnsafe(newSession, map[string]*Session{oldest.ID: oldest})
	}
}

// ============================================================================
// 内部辅助方法
// ============================================================================

// addNewSessionUnsafe 添加新会话（不加锁，需要外部加锁）
func (h *Hub) addNewSessionUnsafe(session *Session) {
	h.sessions[session.ID] = session
	h.activeSessionsCount.Add(1)

	if _, exists := h.userSessions[session.UserID]; !exists {
		h.userSessions[session.UserID] = make(map[string]*Session)
	}
	h.userSessions[session.UserID][session.ID] = session
}

// removeSessionUnsafe 移除会话并关闭传输（不加锁，需要外部加锁）
// 可恢复的断开保留发件箱与恢复令牌，供重连窗口内的 ResumeSession 使用
func (h *Hub) removeSessionUnsafe(session *Session, reason DisconnectReason) {
	if !h.detachSessionUnsafe(session, reason) {
		return
	}
	h.closeSessionTransport(session)
}

// detachSessionUnsafe 从注册表摘除会话（不加锁，需要外部加锁）
// 只做登记状态清理，不触碰传输层；返回会话此前是否在册
func (h *Hub) detachSessionUnsafe(session *Session, reason DisconnectReason) bool {
	if _, exists := h.sessions[session.ID]; !exists {
		return false
	}

	h.logger.InfoKV("会话断开",
		"session_id", session.ID,
		"user_id", session.UserID,
		"reason", reason,
		"remaining_sessions", len(h.sessions)-1,
	)

	delete(h.sessions, session.ID)
	h.activeSessionsCount.Add(-1)

	if sessionMap, exists := h.userSessions[session.UserID]; exists {
		delete(sessionMap, session.ID)
		if len(sessionMap) == 0 {
			delete(h.userSessions, session.UserID)
		}
	}

	// 清理目的地订阅索引
	for raw := range session.Subscriptions {
		if subscribers, exists := h.topicSessions[raw]; exists {
			delete(subscribers, session.ID)
			if len(subscribers) == 0 {
				delete(h.topicSessions, raw)
			}
		}
	}

	// 状态迁移：可恢复的断开进入 DISCONNECTED（等待重连），
	// 不可恢复的直接置为 FAILED_PERMANENT
	if reason.IsRecoverable() {
		session.TransitionTo(SessionStateDisconnected)
	} else {
		session.TransitionTo(SessionStateDisconnected)
		session.TransitionTo(SessionStateFailedPermanent)
	}

	// 不可恢复的断开释放发件箱与恢复令牌；
	// 可恢复的保留，未确认消息经 ResumeSession 重放
	if !reason.IsRecoverable() {
		h.archiveOutboxUnsafe(session.ID)
		delete(h.outboxes, session.ID)
		delete(h.resumeTokens, session.ResumeToken)
	}

	// 调用会话断开回调
	if h.sessionDisconnectCallback != nil {
		syncx.Go().
			OnError(func(err error) {
				h.logger.ErrorKV("会话断开回调执行失败",
					"session_id", session.ID,
					"user_id", session.UserID,
					"error", err,
				)
				if h.errorCallback != nil {
					_ = h.errorCallback(context.Background(), err)
				}
			}).
			ExecWithContext(func(execCtx context.Context) error {
				return h.sessionDisconnectCallback(execCtx, session, reason)
			})
	}
	return true
}

// closeSessionTransport 关闭会话发送通道与底层连接
// 只依赖会话自身的关闭锁，可在 Hub 锁外调用
func (h *Hub) closeSessionTransport(session *Session) {
	h.closeSessionChannel(session)
	if session.Conn != nil {
		session.Conn.Close()
	}
}

// closeSessionChannel 关闭会话发送通道
func (h *Hub) closeSessionChannel(session *Session) {
	session.CloseMu.Lock()
	defer session.CloseMu.Unlock()

	// 标记为已关闭，防止其他goroutine继续发送
	if session.IsClosed() {
		return
	}
	session.MarkClosed()

	if session.SendChan != nil {
		close(session.SendChan)
	}

	// 长轮询会话需要关闭专用通道
	if session.Transport == TransportLongPoll {
		if session.PollNotifyCh != nil {
			close(session.PollNotifyCh)
		}
		if session.PollCloseCh != nil {
			close(session.PollCloseCh)
		}
	}
}

// userHasSessions 检查用户是否还有在线会话
func (h *Hub) userHasSessions(userID string) bool {
	return syncx.WithRLockReturnValue(&h.mutex, func() bool {
		sessionMap, exists := h.userSessions[userID]
		return exists && len(sessionMap) > 0
	})
}

// logSessionConnection 记录会话建立日志
func (h *Hub) logSessionConnection(session *Session, sessionCount int) {
	cg := h.logger.NewConsoleGroup()
	cg.Group("👤 会话建立成功 [%s]", session.UserID)

	sessionInfo := map[string]interface{}{
		"会话ID":   session.ID,
		"用户ID":   session.UserID,
		"传输类型":   session.Transport,
		"客户端IP":  session.GetClientIP(),
		"活跃会话数":  sessionCount,
	}
	cg.Table(sessionInfo)
	cg.GroupEnd()
}

// ============================================================================
// 会话查询
// ============================================================================

// GetSessionByIDWithLock 获取会话(带锁,返回是否存在)
func (h *Hub) GetSessionByIDWithLock(sessionID string) (*Session, bool) {
	return syncx.WithRLockReturnWithE(&h.mutex, func() (*Session, bool) {
		session, exists := h.sessions[sessionID]
		return session, exists
	})
}

// GetSessionsCopy 获取所有会话的副本
func (h *Hub) GetSessionsCopy() []*Session {
	return syncx.WithRLockReturnValue(&h.mutex, func() []*Session {
		return CopySessionsFromMap(h.sessions)
	})
}

// GetSessionsByUserID 获取用户的所有会话副本
func (h *Hub) GetSessionsByUserID(userID string) []*Session {
	return syncx.WithRLockReturnValue(&h.mutex, func() []*Session {
		sessionMap, exists := h.userSessions[userID]
		if !exists {
			return nil
		}
		return CopySessionsFromMap(sessionMap)
	})
}

// GetOutboxWithLock 获取会话发件箱(带锁,返回是否存在)
func (h *Hub) GetOutboxWithLock(sessionID string) (*Outbox, bool) {
	return syncx.WithRLockReturnWithE(&h.mutex, func() (*Outbox, bool) {
		outbox, exists := h.outboxes[sessionID]
		return outbox, exists
	})
}

// CopySessionsFromMap 从会话映射中复制会话列表
// 用于避免在遍历时map被修改导致的数据竞争
func CopySessionsFromMap(sessionMap map[string]*Session) []*Session {
	sessions := make([]*Session, 0, len(sessionMap))
	for _, session := range sessionMap {
		sessions = append(sessions, session)
	}
	return sessions
}
