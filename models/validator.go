/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-02-10 00:00:00
 * @FilePath: \go-wsession\models\validator.go
 * @Description: 枚举验证器集中管理
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package models

import (
	"github.com/kamalyes/go-toolbox/pkg/types"
)

// 全局枚举验证器实例
var (
	// SessionStateValidator 会话状态验证器
	SessionStateValidator = types.NewEnumValidator(
		SessionStateConnecting,
		SessionStateConnected,
		SessionStateDisconnected,
		SessionStateReconnecting,
		SessionStateFailedPermanent,
	)

	// PresenceStatusValidator 在线状态验证器
	PresenceStatusValidator = types.NewEnumValidator(
		PresenceStatusOnline,
		PresenceStatusFocused,
		PresenceStatusBreak,
		PresenceStatusOffline,
	)

	// OutboxStateValidator 发件箱状态验证器
	OutboxStateValidator = types.NewEnumValidator(
		OutboxStatePending,
		OutboxStateInFlight,
		OutboxStateAcked,
		OutboxStateFailed,
	)

	// BreakerStateValidator 熔断器状态验证器
	BreakerStateValidator = types.NewEnumValidator(
		BreakerStateClosed,
		BreakerStateOpen,
		BreakerStateHalfOpen,
	)

	// TransportTypeValidator 传输类型验证器
	TransportTypeValidator = types.NewEnumValidator(
		TransportWebSocket,
		TransportLongPoll,
	)

	// DisconnectReasonValidator 断开原因验证器
	DisconnectReasonValidator = types.NewEnumValidator(
		DisconnectReasonClient,
		DisconnectReasonHeartbeat,
		DisconnectReasonTakenOver,
		DisconnectReasonProtocol,
		DisconnectReasonShutdown,
		DisconnectReasonExhausted,
		DisconnectReasonTransport,
	)

	// FrameTypeValidator 帧类型验证器
	FrameTypeValidator = types.NewEnumValidator(
		FrameTypeConnect,
		FrameTypeConnected,
		FrameTypeSubscribe,
		FrameTypeSend,
		FrameTypeAck,
		FrameTypeMessage,
		FrameTypePing,
		FrameTypePong,
		FrameTypeError,
		FrameTypeSessionTakenOver,
	)
)
