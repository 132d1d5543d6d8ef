/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\models\errors.go
 * @Description: 会话通信错误定义 - 基于errorx.BaseError模式
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package models

import (
	"github.com/kamalyes/go-toolbox/pkg/errorx"
)

// 错误类型定义，基于errorx.ErrorType
type ErrorType = errorx.ErrorType

// 会话通信错误码常量定义
// 使用 81xxx-85xxx 区间，按错误分类分段
const (
	// 认证错误 (81000-81099) - 不可重试
	ErrTypeAuthenticationFailed ErrorType = 81001 // 认证失败
	ErrTypeInvalidResumeToken   ErrorType = 81002 // 恢复令牌无效
	ErrTypeSessionExpired       ErrorType = 81003 // 会话已过期
	ErrTypePermissionDenied     ErrorType = 81004 // 权限被拒绝

	// 传输错误 (82000-82099) - 可重试
	ErrTypeConnectionClosed    ErrorType = 82001 // 连接已关闭
	ErrTypeConnectionReset     ErrorType = 82002 // 连接重置
	ErrTypeConnectionTimeout   ErrorType = 82003 // 连接超时
	ErrTypeWriteFailed         ErrorType = 82004 // 写入失败
	ErrTypeHeartbeatLost       ErrorType = 82005 // 心跳丢失
	ErrTypeReconnectExhausted  ErrorType = 82006 // 重连次数耗尽 - 不可重试（终止哨兵）
	ErrTypeTransportUnavailable ErrorType = 82007 // 无可用传输

	// 协议错误 (83000-83099) - 不可重试
	ErrTypeInvalidFrame        ErrorType = 83001 // 无效的帧格式
	ErrTypeUnknownFrameType    ErrorType = 83002 // 未知帧类型
	ErrTypeInvalidDestination  ErrorType = 83003 // 无效的目的地
	ErrTypeFrameTooLarge       ErrorType = 83004 // 帧过大
	ErrTypeMissingField        ErrorType = 83005 // 缺少必填字段
	ErrTypeIllegalTransition   ErrorType = 83006 // 非法状态迁移
	ErrTypeSequenceConflict    ErrorType = 83007 // 序列号冲突（客户端游标超前）
	ErrTypeHandlerNotFound     ErrorType = 83008 // 目的地处理器未注册
	ErrTypeConfigInvalid       ErrorType = 83009 // 配置非法

	// 容量错误 (84000-84099) - 退避后可重试
	ErrTypeOutboxFull          ErrorType = 84001 // 发件箱已满
	ErrTypeSendBufferFull      ErrorType = 84002 // 发送缓冲区已满
	ErrTypeTooManySessions     ErrorType = 84003 // 会话数超限
	ErrTypeReplayWindowEvicted ErrorType = 84004 // 重放窗口已淘汰（需要全量快照）

	// 依赖错误 (85000-85099) - 熔断打开时不可重试
	ErrTypeCircuitBreakerOpen  ErrorType = 85001 // 熔断器已打开
	ErrTypeRedisUnavailable    ErrorType = 85002 // Redis不可用
	ErrTypeDatabaseUnavailable ErrorType = 85003 // 数据库不可用
	ErrTypePresenceRepoNotSet  ErrorType = 85004 // 在线状态仓库未设置
	ErrTypeArchiveRepoNotSet   ErrorType = 85005 // 归档仓库未设置
	ErrTypeHubStartupTimeout   ErrorType = 85006 // Hub启动超时
	ErrTypeHubShutdownTimeout  ErrorType = 85007 // Hub关闭超时
	ErrTypeHubNotRunning       ErrorType = 85008 // Hub未运行
	ErrTypeSessionNotFound     ErrorType = 85009 // 会话未找到
	ErrTypeUserOffline         ErrorType = 85010 // 用户离线
	ErrTypeAckTimeout          ErrorType = 85011 // 投递确认超时
	ErrTypeAckTimeoutRetries   ErrorType = 85012 // 投递确认经重试后超时
	ErrTypeContextCancelled    ErrorType = 85013 // 上下文取消
	ErrTypePubSubNotSet        ErrorType = 85014 // PubSub未设置（单机模式）
)

// init 初始化所有错误类型注册
// 注意：在运行多个测试包时，可能会看到 "ErrorType XXX is already registered" 的警告信息
// 这是正常现象，errorx包内部会忽略重复注册
func init() {
	// 注册认证错误
	errorx.RegisterError(ErrTypeAuthenticationFailed, "authentication failed")
	errorx.RegisterError(ErrTypeInvalidResumeToken, "invalid resume token")
	errorx.RegisterError(ErrTypeSessionExpired, "session expired: %s")
	errorx.RegisterError(ErrTypePermissionDenied, "permission denied")

	// 注册传输错误
	errorx.RegisterError(ErrTypeConnectionClosed, "connection closed")
	errorx.RegisterError(ErrTypeConnectionReset, "connection reset")
	errorx.RegisterError(ErrTypeConnectionTimeout, "connection timeout")
	errorx.RegisterError(ErrTypeWriteFailed, "write failed")
	errorx.RegisterError(ErrTypeHeartbeatLost, "heartbeat lost")
	errorx.RegisterError(ErrTypeReconnectExhausted, "reconnect attempts exhausted")
	errorx.RegisterError(ErrTypeTransportUnavailable, "no transport available")

	// 注册协议错误
	errorx.RegisterError(ErrTypeInvalidFrame, "invalid frame")
	errorx.RegisterError(ErrTypeUnknownFrameType, "unknown frame type: %s")
	errorx.RegisterError(ErrTypeInvalidDestination, "invalid destination: %s")
	errorx.RegisterError(ErrTypeFrameTooLarge, "frame too large")
	errorx.RegisterError(ErrTypeMissingField, "missing required field: %s")
	errorx.RegisterError(ErrTypeIllegalTransition, "illegal session state transition: %s -> %s")
	errorx.RegisterError(ErrTypeSequenceConflict, "sequence conflict: client cursor %d ahead of server tail %d")
	errorx.RegisterError(ErrTypeHandlerNotFound, "no handler registered for destination kind: %s")
	errorx.RegisterError(ErrTypeConfigInvalid, "invalid config: %s")

	// 注册容量错误
	errorx.RegisterError(ErrTypeOutboxFull, "outbox is full")
	errorx.RegisterError(ErrTypeSendBufferFull, "send buffer is full")
	errorx.RegisterError(ErrTypeTooManySessions, "too many sessions for user: %s")
	errorx.RegisterError(ErrTypeReplayWindowEvicted, "replay window no longer covers seq %d")

	// 注册依赖错误
	errorx.RegisterError(ErrTypeCircuitBreakerOpen, "circuit breaker is open")
	errorx.RegisterError(ErrTypeRedisUnavailable, "redis unavailable")
	errorx.RegisterError(ErrTypeDatabaseUnavailable, "database unavailable")
	errorx.RegisterError(ErrTypePresenceRepoNotSet, "presence repository is not set")
	errorx.RegisterError(ErrTypeArchiveRepoNotSet, "outbox archive repository is not set")
	errorx.RegisterError(ErrTypeHubStartupTimeout, "hub startup timeout")
	errorx.RegisterError(ErrTypeHubShutdownTimeout, "hub shutdown timeout")
	errorx.RegisterError(ErrTypeHubNotRunning, "hub is not running")
	errorx.RegisterError(ErrTypeSessionNotFound, "session not found: %s")
	errorx.RegisterError(ErrTypeUserOffline, "user is offline")
	errorx.RegisterError(ErrTypeAckTimeout, "ack timeout")
	errorx.RegisterError(ErrTypeAckTimeoutRetries, "ack timeout after %d retries for seq %d")
	errorx.RegisterError(ErrTypeContextCancelled, "context cancelled for seq %d")
	errorx.RegisterError(ErrTypePubSubNotSet, "pubsub is not set")
}

// ============================================================================
// 错误变量定义
// ============================================================================

// 认证与传输错误变量
var (
	ErrAuthenticationFailed = errorx.NewError(ErrTypeAuthenticationFailed)
	ErrInvalidResumeToken   = errorx.NewError(ErrTypeInvalidResumeToken)
	ErrConnectionClosed     = errorx.NewError(ErrTypeConnectionClosed)
	ErrHeartbeatLost        = errorx.NewError(ErrTypeHeartbeatLost)
	ErrReconnectExhausted   = errorx.NewError(ErrTypeReconnectExhausted)
)

// 协议错误变量
var (
	ErrInvalidFrame      = errorx.NewError(ErrTypeInvalidFrame)
	ErrFrameTooLarge     = errorx.NewError(ErrTypeFrameTooLarge)
	ErrIllegalTransition = errorx.NewError(ErrTypeIllegalTransition)
)

// 容量错误变量
var (
	ErrOutboxFull     = errorx.NewError(ErrTypeOutboxFull)
	ErrSendBufferFull = errorx.NewError(ErrTypeSendBufferFull)
)

// 依赖错误变量
var (
	ErrCircuitBreakerOpen = errorx.NewError(ErrTypeCircuitBreakerOpen)
	ErrPresenceRepoNotSet = errorx.NewError(ErrTypePresenceRepoNotSet)
	ErrArchiveRepoNotSet  = errorx.NewError(ErrTypeArchiveRepoNotSet)
	ErrHubStartupTimeout  = errorx.NewError(ErrTypeHubStartupTimeout)
	ErrHubShutdownTimeout = errorx.NewError(ErrTypeHubShutdownTimeout)
	ErrHubNotRunning      = errorx.NewError(ErrTypeHubNotRunning)
	ErrUserOffline        = errorx.NewError(ErrTypeUserOffline)
	ErrAckTimeout         = errorx.NewError(ErrTypeAckTimeout)
	ErrPubSubNotSet       = errorx.NewError(ErrTypePubSubNotSet)
)

// IsRetryableError 判断错误是否可以重试
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// 如果是 errorx.Error 类型，检查其错误类型
	if errxErr, ok := err.(interface{ Type() ErrorType }); ok {
		return IsRetryableErrorType(errxErr.Type())
	}

	// 对于定义的错误变量，直接检查可重试性
	switch err {
	case ErrConnectionClosed, ErrHeartbeatLost, ErrOutboxFull,
		ErrSendBufferFull, ErrAckTimeout, ErrHubStartupTimeout,
		ErrHubShutdownTimeout:
		return true
	default:
		return false
	}
}

// IsRetryableErrorType 判断错误类型是否可以重试
// 认证与协议错误不可重试；传输与容量错误可重试；
// 依赖错误中熔断打开视为可重试（退避后熔断器会进入半开）
func IsRetryableErrorType(errType ErrorType) bool {
	switch errType {
	case ErrTypeConnectionClosed, ErrTypeConnectionReset, ErrTypeConnectionTimeout,
		ErrTypeWriteFailed, ErrTypeHeartbeatLost, ErrTypeTransportUnavailable,
		ErrTypeOutboxFull, ErrTypeSendBufferFull, ErrTypeTooManySessions,
		ErrTypeCircuitBreakerOpen, ErrTypeRedisUnavailable, ErrTypeDatabaseUnavailable,
		ErrTypeAckTimeout, ErrTypeHubStartupTimeout, ErrTypeHubShutdownTimeout,
		ErrTypeUserOffline:
		return true
	default:
		return false
	}
}

// ============================================================================
// 错误分类判断辅助函数
// ============================================================================

// errTypeOf 提取errorx错误类型，非errorx错误返回0
func errTypeOf(err error) ErrorType {
	if err == nil {
		return 0
	}
	if errxErr, ok := err.(interface{ Type() ErrorType }); ok {
		return errxErr.Type()
	}
	return 0
}

// IsAuthError 判断是否为认证错误
func IsAuthError(err error) bool {
	t := errTypeOf(err)
	return t >= 81000 && t < 82000
}

// IsTransportError 判断是否为传输错误
func IsTransportError(err error) bool {
	t := errTypeOf(err)
	return t >= 82000 && t < 83000
}

// IsProtocolError 判断是否为协议错误
func IsProtocolError(err error) bool {
	t := errTypeOf(err)
	return t >= 83000 && t < 84000
}

// IsCapacityError 判断是否为容量错误
func IsCapacityError(err error) bool {
	t := errTypeOf(err)
	return t >= 84000 && t < 85000
}

// IsDependencyError 判断是否为依赖错误
func IsDependencyError(err error) bool {
	t := errTypeOf(err)
	return t >= 85000 && t < 86000
}

// IsAckTimeoutError 判断是否为投递确认超时错误
func IsAckTimeoutError(err error) bool {
	t := errTypeOf(err)
	if t == ErrTypeAckTimeout || t == ErrTypeAckTimeoutRetries {
		return true
	}
	return err == ErrAckTimeout
}
