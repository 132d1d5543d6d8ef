/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\hub\http.go
 * @Description: HTTP WebSocket 升级、长轮询降级与健康检查
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package hub

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	wscconfig "github.com/kamalyes/go-config/pkg/wsc"
	"github.com/kamalyes/go-toolbox/pkg/json"
	"github.com/kamalyes/go-toolbox/pkg/mathx"
	"github.com/kamalyes/go-toolbox/pkg/metadata"
	"github.com/kamalyes/go-wsession/models"
)

// ============================================================================
// WebSocket 升级器配置
// ============================================================================

// ConfigureUpgrader 配置 WebSocket 升级器
// 根据 Hub 配置创建升级器，支持自定义缓冲区大小和 Origin 检查
func (h *Hub) ConfigureUpgrader() *websocket.Upgrader {
	upgrader := &websocket.Upgrader{
		ReadBufferSize:  h.config.MessageBufferSize,
		WriteBufferSize: h.config.MessageBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return true // 默认允许所有来源
		},
	}

	// 自定义 Origin 检查
	if len(h.config.WebSocketOrigins) > 0 {
		upgrader.CheckOrigin = h.createOriginChecker()
	}

	return upgrader
}

// createOriginChecker 创建 Origin 检查器
// 根据配置的允许来源列表检查请求的 Origin
func (h *Hub) createOriginChecker() func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		for _, allowedOrigin := range h.config.WebSocketOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				return true
			}
		}
		return false
	}
}

// ============================================================================
// 会话创建
// ============================================================================

// CreateSessionFromRequest 从 HTTP 请求创建 WebSocket 会话
// 提取请求元数据并创建 Session 实例
func (h *Hub) CreateSessionFromRequest(r *http.Request, conn *websocket.Conn) *Session {
	sessionID, userID := h.extractSessionAttributes(r)
	// 若终端未传入则自动生成一个
	sessionID = mathx.IfEmpty(sessionID, h.idGenerator.GenerateRequestID())

	// 使用 metadata 提取所有请求元数据
	requestMeta := metadata.ExtractRequestMetadata(r)
	metaMap := requestMeta.ToMap()

	session := NewSession(sessionID, userID).
		WithWebSocketConn(conn).
		WithClientIP(requestMeta.ClientIP).
		WithNodeID(h.nodeID).
		WithSendChan(make(chan []byte, h.config.MessageBufferSize)).
		WithContext(context.WithValue(r.Context(), ContextKeyUserID, userID))
	session.Metadata = metaMap

	// 升级请求可携带恢复令牌，注册后由 CONNECT 帧完成恢复
	if token := r.URL.Query().Get("resume_token"); token != "" {
		session.WithResumeToken(token)
	}
	return session
}

// extractSessionAttributes 从请求中提取会话属性
// 根据配置的来源列表按优先级提取属性
//
// 返回: sessionID, userID
func (h *Hub) extractSessionAttributes(r *http.Request) (string, string) {
	sessionID := h.extractAttribute(r, h.config.ClientAttributes.ClientIDSources)
	userID := h.extractAttribute(r, h.config.ClientAttributes.UserIDSources)
	return sessionID, userID
}

// extractAttribute 从请求中提取单个属性
// 按配置的来源列表顺序查找，返回第一个非空值
func (h *Hub) extractAttribute(r *http.Request, sources []wscconfig.AttributeSource) string {
	for _, source := range sources {
		value := h.extractFromSource(r, source)
		if value != "" {
			return value
		}
	}
	return ""
}

// extractFromSource 从指定来源提取值
func (h *Hub) extractFromSource(r *http.Request, source wscconfig.AttributeSource) string {
	switch source.Type {
	case wscconfig.AttributeSourceQuery:
		return r.URL.Query().Get(source.Key)
	case wscconfig.AttributeSourceHeader:
		return r.Header.Get(source.Key)
	case wscconfig.AttributeSourceCookie:
		if cookie, err := r.Cookie(source.Key); err == nil {
			return cookie.Value
		}
		return ""
	case wscconfig.AttributeSourcePath:
		// 从 URL 路径中提取（需要路由支持，这里暂时返回空）
		// 实际使用时可以配合 gorilla/mux 等路由库的 Vars 功能
		return ""
	default:
		return ""
	}
}

// ============================================================================
// HTTP WebSocket 升级处理
// ============================================================================

// HandleWebSocketUpgrade 处理 WebSocket 升级请求
// 此函数负责：升级连接 -> 创建会话 -> 注册到 Hub
// 后续帧的读写由 Hub 的会话协程接管
func (h *Hub) HandleWebSocketUpgrade(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	sessionID, userID := h.extractSessionAttributes(r)

	h.logger.InfoContextKV(ctx, "[WebSocket] 升级请求",
		"method", r.Method,
		"path", r.URL.Path,
		"query", r.URL.RawQuery,
		"session_id", sessionID,
		"user_id", userID,
		"remote_addr", r.RemoteAddr,
		"user_agent", r.Header.Get("User-Agent"),
		"origin", r.Header.Get("Origin"),
	)

	// 配置并升级 WebSocket 连接
	upgrader := h.ConfigureUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).ErrorContextKV(ctx, "[WebSocket] 升级失败",
			"session_id", sessionID,
			"user_id", userID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}

	h.logger.InfoContextKV(ctx, "[WebSocket] 升级成功",
		"session_id", sessionID,
		"user_id", userID,
		"remote_addr", conn.RemoteAddr().String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	session := h.CreateSessionFromRequest(r, conn)
	h.Register(session)
}

// ============================================================================
// 长轮询降级
// ============================================================================

// HandlePoll 处理长轮询请求
// 无 session_id 时建立新的长轮询会话并返回 CONNECTED 帧；
// 携带 session_id 时先按 since 参数累计确认，再取走待投递帧，
// 无新帧则挂起至新消息到达或超过 Poll.Wait
func (h *Hub) HandlePoll(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")

	if sessionID == "" {
		h.handlePollConnect(w, r)
		return
	}

	session, exists := h.GetSessionByIDWithLock(sessionID)
	if !exists || session.Transport != TransportLongPoll {
		h.writePollError(w, http.StatusNotFound, models.ErrTypeSessionNotFound, "unknown poll session")
		return
	}

	h.touchSession(session)
	h.presence.touch(session.UserID)

	// since 参数承载客户端的累计确认游标
	since := int64(0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			h.writePollError(w, http.StatusBadRequest, models.ErrTypeMissingField, "since must be a non-negative integer")
			return
		}
		since = parsed
	}
	if since > 0 {
		h.HandleAck(session.ID, since)
	}

	frames := h.collectPollFrames(session, since)
	if len(frames) == 0 {
		frames = h.waitForPollFrames(r.Context(), session, since)
	}

	h.writePollFrames(w, frames)
}

// handlePollConnect 建立新的长轮询会话
func (h *Hub) handlePollConnect(w http.ResponseWriter, r *http.Request) {
	_, userID := h.extractSessionAttributes(r)
	if userID == "" {
		h.writePollError(w, http.StatusBadRequest, models.ErrTypeMissingField, "user_id is required")
		return
	}

	session, err := h.Connect(r.Context(), userID, TransportLongPoll)
	if err != nil {
		h.writePollError(w, http.StatusServiceUnavailable, models.ErrTypeHubNotRunning, err.Error())
		return
	}

	// 等待事件循环完成注册后 CONNECTED 帧已入通知通道，
	// 这里直接返回会话标识即可
	h.writePollFrames(w, []*Frame{
		NewConnectedFrame(session.ID, session.ResumeToken),
	})
}

// collectPollFrames 取走会话发件箱中 since 之后的待投递帧
func (h *Hub) collectPollFrames(session *Session, since int64) []*Frame {
	outbox, exists := h.GetOutboxWithLock(session.ID)
	if !exists {
		return nil
	}

	batch := outbox.PendingAfter(since, mathx.IfEmpty(h.config.Poll.BatchSize, 100))
	frames := make([]*Frame, 0, len(batch))
	for _, msg := range batch {
		frames = append(frames, msg.Frame)
	}

	h.framesSent.Add(int64(len(frames)))
	return frames
}

// waitForPollFrames 挂起等待新消息到达
func (h *Hub) waitForPollFrames(ctx context.Context, session *Session, since int64) []*Frame {
	wait := mathx.IfNotZero(h.config.Poll.Wait, 25*time.Second)
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case _, ok := <-session.PollNotifyCh:
		if !ok {
			return nil
		}
		return h.collectPollFrames(session, since)
	case <-session.PollCloseCh:
		return nil
	case <-ctx.Done():
		return nil
	case <-h.ctx.Done():
		return nil
	case <-timer.C:
		return nil
	}
}

// writePollFrames 将帧数组序列化为 JSON 响应
func (h *Hub) writePollFrames(w http.ResponseWriter, frames []*Frame) {
	if frames == nil {
		frames = []*Frame{}
	}

	data, err := json.Marshal(frames)
	if err != nil {
		h.writePollError(w, http.StatusInternalServerError, models.ErrTypeInvalidFrame, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// writePollError 写入错误响应（统一使用 ERROR 帧结构）
func (h *Hub) writePollError(w http.ResponseWriter, statusCode int, errType ErrorType, detail string) {
	frame := NewErrorFrame("", int(errType), detail)
	data, _ := json.Marshal(frame)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(data)
}

// ============================================================================
// 健康检查
// ============================================================================

// HandleHealth 处理健康检查请求
// 熔断器打开时返回 degraded（仍为 200），未运行返回 503
func (h *Hub) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := h.GetHubHealth()

	statusCode := http.StatusOK
	if health.Status == "stopped" {
		statusCode = http.StatusServiceUnavailable
	}

	data, err := json.Marshal(health)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(data)
}
