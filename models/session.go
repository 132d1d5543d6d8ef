/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\models\session.go
 * @Description: 会话连接模型（统一管理 WebSocket 和长轮询连接）
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package models

import (
	"context"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Session 会话连接
// 状态字段只允许由持有该会话的 actor goroutine 修改，
// 其他 goroutine 通过 Hub 的邮箱通道提交变更请求
type Session struct {
	ID             string                 `json:"id"`              // 会话ID
	UserID         string                 `json:"user_id"`         // 用户ID
	State          SessionState           `json:"state"`           // 会话状态
	Transport      TransportType          `json:"transport"`       // 传输类型
	ResumeToken    string                 `json:"resume_token"`    // 断线恢复令牌
	ClientIP       string                 `json:"client_ip"`       // 客户端IP
	Conn           *websocket.Conn        `json:"-"`               // WebSocket连接（不序列化，仅WS使用）
	ConnectedAt    time.Time              `json:"connected_at"`    // 连接时间
	LastSeen       time.Time              `json:"last_seen"`       // 最后活跃时间
	LastPong       time.Time              `json:"last_pong"`       // 最后心跳应答时间
	HeartbeatMiss  int                    `json:"heartbeat_miss"`  // 连续心跳丢失次数
	ReconnectCount int                    `json:"reconnect_count"` // 已重连次数
	LastAckedSeq   int64                  `json:"last_acked_seq"`  // 客户端已确认的最大序列号
	NodeID         string                 `json:"node_id"`         // 所在节点ID
	Subscriptions  map[string]struct{}    `json:"-"`               // 已订阅目的地集合（仅 actor 访问）
	Metadata       map[string]interface{} `json:"metadata"`        // 元数据
	SendChan       chan []byte            `json:"-"`               // 发送通道（不序列化，仅WS使用）
	Context        context.Context        `json:"-"`               // 上下文（不序列化）
	closed         atomic.Bool            `json:"-"`               // channel关闭标志（不序列化）
	CloseMu        sync.Mutex             `json:"-"`               // 保护channel关闭的互斥锁（不序列化）

	// 长轮询专用字段（仅当 Transport 为 TransportLongPoll 时使用）
	PollNotifyCh chan struct{} `json:"-"` // 新消息到达通知通道（不序列化）
	PollCloseCh  chan struct{} `json:"-"` // 长轮询关闭通道（不序列化）
}

// NewSession 创建新的会话实例
func NewSession(id, userID string) *Session {
	now := time.Now()
	return &Session{
		ID:            id,
		UserID:        userID,
		State:         SessionStateConnecting,
		Transport:     TransportWebSocket,
		ConnectedAt:   now,
		LastSeen:      now,
		LastPong:      now,
		Subscriptions: make(map[string]struct{}),
		Metadata:      make(map[string]interface{}),
		Context:       context.Background(),
	}
}

// WithResumeToken 设置断线恢复令牌
func (s *Session) WithResumeToken(token string) *Session {
	s.ResumeToken = token
	return s
}

// WithClientIP 设置客户端IP
func (s *Session) WithClientIP(ip string) *Session {
	s.ClientIP = ip
	return s
}

// WithWebSocketConn 设置WebSocket连接
func (s *Session) WithWebSocketConn(conn *websocket.Conn) *Session {
	s.Conn = conn
	s.Transport = TransportWebSocket
	return s
}

// WithLongPoll 切换为长轮询传输
func (s *Session) WithLongPoll(notifyCh chan struct{}, closeCh chan struct{}) *Session {
	s.PollNotifyCh = notifyCh
	s.PollCloseCh = closeCh
	s.Transport = TransportLongPoll
	return s
}

// WithNodeID 设置节点ID
func (s *Session) WithNodeID(nodeID string) *Session {
	s.NodeID = nodeID
	return s
}

// WithMetadata 设置元数据
func (s *Session) WithMetadata(key string, value interface{}) *Session {
	if s.Metadata == nil {
		s.Metadata = make(map[string]interface{})
	}
	s.Metadata[key] = value
	return s
}

// WithSendChan 设置发送通道
func (s *Session) WithSendChan(ch chan []byte) *Session {
	s.SendChan = ch
	return s
}

// WithContext 设置上下文
func (s *Session) WithContext(ctx context.Context) *Session {
	s.Context = ctx
	return s
}

// TransitionTo 尝试迁移会话状态，非法迁移返回false
func (s *Session) TransitionTo(next SessionState) bool {
	if !s.State.CanTransitionTo(next) {
		return false
	}
	s.State = next
	return true
}

// GetClientIP 获取客户端IP地址
func (s *Session) GetClientIP() string {
	// 1. 优先从ClientIP字段获取
	if s.ClientIP != "" {
		return s.ClientIP
	}

	// 2. 从WebSocket连接直接获取
	if s.Conn != nil {
		if remoteAddr := s.Conn.RemoteAddr(); remoteAddr != nil {
			if host, _, err := net.SplitHostPort(remoteAddr.String()); err == nil {
				return host
			}
			return remoteAddr.String()
		}
	}

	// 3. 从Metadata中获取
	if s.Metadata != nil {
		if ip, ok := s.Metadata["client_ip"].(string); ok && ip != "" {
			return ip
		}
		if ip, ok := s.Metadata["x-forwarded-for"].(string); ok && ip != "" {
			// X-Forwarded-For 可能包含多个IP，取第一个
			if parts := strings.Split(ip, ","); len(parts) > 0 {
				return strings.TrimSpace(parts[0])
			}
		}
	}

	return "unknown"
}

// IsClosed 检查会话channel是否已关闭
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// MarkClosed 标记会话channel为已关闭
func (s *Session) MarkClosed() {
	s.closed.Store(true)
}

// TrySend 尝试向会话发送数据（WebSocket），如果已关闭或失败则返回false
func (s *Session) TrySend(data []byte) bool {
	s.CloseMu.Lock()
	defer s.CloseMu.Unlock()

	if s.IsClosed() || s.SendChan == nil {
		return false
	}

	select {
	case s.SendChan <- data:
		return true
	default:
		return false
	}
}

// TryNotifyPoll 通知长轮询等待者有新消息，如果已关闭则返回false
func (s *Session) TryNotifyPoll() bool {
	s.CloseMu.Lock()
	defer s.CloseMu.Unlock()

	if s.IsClosed() || s.PollNotifyCh == nil {
		return false
	}

	select {
	case s.PollNotifyCh <- struct{}{}:
		return true
	default:
		// 已有未消费的通知，无需重复投递
		return true
	}
}

// ============================================================================
// WebSocket Close Code 配置
// ============================================================================

// WsCloseCodeMap WebSocket 关闭码映射表 (RFC 6455, section 11.7)
var WsCloseCodeMap = map[int]struct {
	IsNormal bool   // 是否正常关闭
	Desc     string // 描述
}{
	// 正常关闭
	websocket.CloseNormalClosure: {IsNormal: true, Desc: "正常关闭"},
	websocket.CloseGoingAway:     {IsNormal: true, Desc: "客户端离开（关闭标签页/浏览器）"},

	// 协议/数据错误
	websocket.CloseProtocolError:           {IsNormal: false, Desc: "协议错误"},
	websocket.CloseUnsupportedData:         {IsNormal: false, Desc: "不支持的数据类型"},
	websocket.CloseNoStatusReceived:        {IsNormal: false, Desc: "未收到状态码"},
	websocket.CloseInvalidFramePayloadData: {IsNormal: false, Desc: "无效的帧数据"},

	// 策略/配置错误
	websocket.ClosePolicyViolation:    {IsNormal: false, Desc: "策略违规"},
	websocket.CloseMessageTooBig:      {IsNormal: false, Desc: "消息过大"},
	websocket.CloseMandatoryExtension: {IsNormal: false, Desc: "强制扩展未协商"},

	// 服务器错误
	websocket.CloseInternalServerErr: {IsNormal: false, Desc: "服务器内部错误"},
	websocket.CloseServiceRestart:    {IsNormal: false, Desc: "服务重启"},
	websocket.CloseTryAgainLater:     {IsNormal: false, Desc: "稍后重试"},

	// 连接/网络错误
	websocket.CloseAbnormalClosure: {IsNormal: false, Desc: "异常关闭（网络中断/连接丢失）"},
	websocket.CloseTLSHandshake:    {IsNormal: false, Desc: "TLS握手失败"},
}
