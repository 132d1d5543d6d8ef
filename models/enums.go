/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-02 00:00:00
 * @FilePath: \go-wsession\models\enums.go
 * @Description: 枚举类型定义
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package models

// SessionState 会话状态
// 状态机: connecting -> connected -> (disconnected <-> reconnecting) -> connected | failed_permanent
type SessionState string

const (
	SessionStateConnecting      SessionState = "connecting"       // 连接中
	SessionStateConnected       SessionState = "connected"        // 已连接
	SessionStateDisconnected    SessionState = "disconnected"     // 已断开（可恢复）
	SessionStateReconnecting    SessionState = "reconnecting"     // 重连中
	SessionStateFailedPermanent SessionState = "failed_permanent" // 永久失败（重试耗尽）
)

// String 实现Stringer接口
func (s SessionState) String() string {
	return string(s)
}

// IsValid 检查会话状态是否有效
func (s SessionState) IsValid() bool {
	return SessionStateValidator.IsValid(s)
}

// CanTransitionTo 检查状态迁移是否合法
func (s SessionState) CanTransitionTo(next SessionState) bool {
	switch s {
	case SessionStateConnecting:
		return next == SessionStateConnected || next == SessionStateFailedPermanent
	case SessionStateConnected:
		return next == SessionStateDisconnected
	case SessionStateDisconnected:
		return next == SessionStateReconnecting || next == SessionStateFailedPermanent
	case SessionStateReconnecting:
		return next == SessionStateConnected || next == SessionStateDisconnected ||
			next == SessionStateFailedPermanent
	default:
		return false
	}
}

// IsTerminal 检查是否为终止状态
func (s SessionState) IsTerminal() bool {
	return s == SessionStateFailedPermanent
}

// PresenceStatus 用户在线状态
type PresenceStatus string

const (
	PresenceStatusOnline  PresenceStatus = "online"  // 在线
	PresenceStatusFocused PresenceStatus = "focused" // 专注中
	PresenceStatusBreak   PresenceStatus = "break"   // 休息中
	PresenceStatusOffline PresenceStatus = "offline" // 离线
)

// String 实现Stringer接口
func (p PresenceStatus) String() string {
	return string(p)
}

// IsValid 检查在线状态是否有效
func (p PresenceStatus) IsValid() bool {
	return PresenceStatusValidator.IsValid(p)
}

// IsActive 检查是否为活跃状态（非离线）
func (p PresenceStatus) IsActive() bool {
	return p != PresenceStatusOffline
}

// OutboxState 发件箱消息状态
type OutboxState string

const (
	OutboxStatePending  OutboxState = "pending"   // 等待投递
	OutboxStateInFlight OutboxState = "in_flight" // 已投递待确认
	OutboxStateAcked    OutboxState = "acked"     // 已确认
	OutboxStateFailed   OutboxState = "failed"    // 投递失败
)

// String 实现Stringer接口
func (s OutboxState) String() string {
	return string(s)
}

// IsValid 检查发件箱状态是否有效
func (s OutboxState) IsValid() bool {
	return OutboxStateValidator.IsValid(s)
}

// BreakerState 熔断器状态
type BreakerState string

const (
	BreakerStateClosed   BreakerState = "closed"    // 关闭（正常放行）
	BreakerStateOpen     BreakerState = "open"      // 打开（快速失败）
	BreakerStateHalfOpen BreakerState = "half_open" // 半开（试探放行）
)

// String 实现Stringer接口
func (s BreakerState) String() string {
	return string(s)
}

// IsValid 检查熔断器状态是否有效
func (s BreakerState) IsValid() bool {
	return BreakerStateValidator.IsValid(s)
}

// TransportType 传输类型
type TransportType string

const (
	TransportWebSocket TransportType = "websocket" // WebSocket 连接
	TransportLongPoll  TransportType = "longpoll"  // 长轮询降级
)

// String 实现Stringer接口
func (t TransportType) String() string {
	return string(t)
}

// IsValid 检查传输类型是否有效
func (t TransportType) IsValid() bool {
	return TransportTypeValidator.IsValid(t)
}

// DisconnectReason 断开原因
type DisconnectReason string

const (
	DisconnectReasonClient    DisconnectReason = "client_close"    // 客户端主动关闭
	DisconnectReasonHeartbeat DisconnectReason = "heartbeat_lost"  // 心跳超时
	DisconnectReasonTakenOver DisconnectReason = "taken_over"      // 被新会话接管
	DisconnectReasonProtocol  DisconnectReason = "protocol_error"  // 协议错误
	DisconnectReasonShutdown  DisconnectReason = "server_shutdown" // 服务端关闭
	DisconnectReasonExhausted DisconnectReason = "retry_exhausted" // 重连次数耗尽
	DisconnectReasonTransport DisconnectReason = "transport_error" // 传输层错误
)

// String 实现Stringer接口
func (r DisconnectReason) String() string {
	return string(r)
}

// IsValid 检查断开原因是否有效
func (r DisconnectReason) IsValid() bool {
	return DisconnectReasonValidator.IsValid(r)
}

// IsRecoverable 检查断开后是否允许重连
func (r DisconnectReason) IsRecoverable() bool {
	switch r {
	case DisconnectReasonHeartbeat, DisconnectReasonTransport:
		return true
	default:
		return false
	}
}
