/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\exports_models.go
 * @Description: Models模块类型导出 - 保持向后兼容
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package wsession

import (
	"github.com/kamalyes/go-wsession/models"
)

// ==================== 基础类型 ====================
type (
	IDGenerator   = models.IDGenerator
	HubStats      = models.HubStats
	HealthStatus  = models.HealthStatus
	SendAttempt   = models.SendAttempt
	SendResult    = models.SendResult
	SyncConflict  = models.SyncConflict
	Config        = models.Config
	BreakerConfig = models.BreakerConfig
	OutboxConfig  = models.OutboxConfig
	ReconnectConfig = models.ReconnectConfig
	PresenceConfig  = models.PresenceConfig
	PollConfig      = models.PollConfig
)

// ==================== 协议与会话类型 ====================
type (
	Frame            = models.Frame
	FrameType        = models.FrameType
	Destination      = models.Destination
	DestinationKind  = models.DestinationKind
	Session          = models.Session
	SessionState     = models.SessionState
	QueuedMessage    = models.QueuedMessage
	OutboxArchive    = models.OutboxArchive
	OutboxState      = models.OutboxState
	PresenceRecord   = models.PresenceRecord
	PresenceChange   = models.PresenceChange
	PresenceDelta    = models.PresenceDelta
	PresenceSnapshot = models.PresenceSnapshot
	PresenceStatus   = models.PresenceStatus
	DisconnectReason = models.DisconnectReason
	TransportType    = models.TransportType
	BreakerState     = models.BreakerState
	ErrorType        = models.ErrorType
)

// ==================== 枚举常量 - FrameType ====================
const (
	FrameTypeConnect          = models.FrameTypeConnect
	FrameTypeConnected        = models.FrameTypeConnected
	FrameTypeSubscribe        = models.FrameTypeSubscribe
	FrameTypeSend             = models.FrameTypeSend
	FrameTypeAck              = models.FrameTypeAck
	FrameTypeMessage          = models.FrameTypeMessage
	FrameTypePing             = models.FrameTypePing
	FrameTypePong             = models.FrameTypePong
	FrameTypeError            = models.FrameTypeError
	FrameTypeSessionTakenOver = models.FrameTypeSessionTakenOver
)

// ==================== 枚举常量 - DestinationKind ====================
const (
	DestinationTopic = models.DestinationTopic
	DestinationQueue = models.DestinationQueue
	DestinationUser  = models.DestinationUser
)

// ==================== 枚举常量 - SessionState ====================
const (
	SessionStateConnecting      = models.SessionStateConnecting
	SessionStateConnected       = models.SessionStateConnected
	SessionStateDisconnected    = models.SessionStateDisconnected
	SessionStateReconnecting    = models.SessionStateReconnecting
	SessionStateFailedPermanent = models.SessionStateFailedPermanent
)

// ==================== 枚举常量 - PresenceStatus ====================
const (
	PresenceStatusOnline  = models.PresenceStatusOnline
	PresenceStatusFocused = models.PresenceStatusFocused
	PresenceStatusBreak   = models.PresenceStatusBreak
	PresenceStatusOffline = models.PresenceStatusOffline
)

// ==================== 枚举常量 - OutboxState ====================
const (
	OutboxStatePending  = models.OutboxStatePending
	OutboxStateInFlight = models.OutboxStateInFlight
	OutboxStateAcked    = models.OutboxStateAcked
	OutboxStateFailed   = models.OutboxStateFailed
)

// ==================== 枚举常量 - BreakerState ====================
const (
	BreakerStateClosed   = models.BreakerStateClosed
	BreakerStateOpen     = models.BreakerStateOpen
	BreakerStateHalfOpen = models.BreakerStateHalfOpen
)

// ==================== 枚举常量 - TransportType ====================
const (
	TransportWebSocket = models.TransportWebSocket
	TransportLongPoll  = models.TransportLongPoll
)

// ==================== 枚举常量 - DisconnectReason ====================
const (
	DisconnectReasonClient    = models.DisconnectReasonClient
	DisconnectReasonHeartbeat = models.DisconnectReasonHeartbeat
	DisconnectReasonTakenOver = models.DisconnectReasonTakenOver
	DisconnectReasonProtocol  = models.DisconnectReasonProtocol
	DisconnectReasonShutdown  = models.DisconnectReasonShutdown
	DisconnectReasonExhausted = models.DisconnectReasonExhausted
	DisconnectReasonTransport = models.DisconnectReasonTransport
)

// ==================== 构造函数 ====================
var (
	NewFrame         = models.NewFrame
	NewSession       = models.NewSession
	NewDefaultConfig = models.NewDefaultConfig
	ParseDestination = models.ParseDestination
	NewOutboxArchive = models.NewOutboxArchive
)

// ==================== 错误变量 ====================
var (
	ErrAuthenticationFailed = models.ErrAuthenticationFailed
	ErrInvalidResumeToken   = models.ErrInvalidResumeToken
	ErrConnectionClosed     = models.ErrConnectionClosed
	ErrHeartbeatLost        = models.ErrHeartbeatLost
	ErrReconnectExhausted   = models.ErrReconnectExhausted
	ErrInvalidFrame         = models.ErrInvalidFrame
	ErrFrameTooLarge        = models.ErrFrameTooLarge
	ErrIllegalTransition    = models.ErrIllegalTransition
	ErrOutboxFull           = models.ErrOutboxFull
	ErrSendBufferFull       = models.ErrSendBufferFull
	ErrCircuitBreakerOpen   = models.ErrCircuitBreakerOpen
	ErrPresenceRepoNotSet   = models.ErrPresenceRepoNotSet
	ErrArchiveRepoNotSet    = models.ErrArchiveRepoNotSet
	ErrHubStartupTimeout    = models.ErrHubStartupTimeout
	ErrHubShutdownTimeout   = models.ErrHubShutdownTimeout
	ErrHubNotRunning        = models.ErrHubNotRunning
	ErrUserOffline          = models.ErrUserOffline
	ErrAckTimeout           = models.ErrAckTimeout
	ErrPubSubNotSet         = models.ErrPubSubNotSet
)

// ==================== 错误分类函数 ====================
var (
	IsRetryableError     = models.IsRetryableError
	IsRetryableErrorType = models.IsRetryableErrorType
	IsAuthError          = models.IsAuthError
	IsTransportError     = models.IsTransportError
	IsProtocolError      = models.IsProtocolError
	IsCapacityError      = models.IsCapacityError
	IsDependencyError    = models.IsDependencyError
	IsAckTimeoutError    = models.IsAckTimeoutError
)
