/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\exports_protocol.go
 * @Description: Protocol模块类型导出 - 保持向后兼容
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package wsession

import (
	"github.com/kamalyes/go-wsession/protocol"
)

// ============================================
// 编解码器与发件箱
// ============================================

type (
	Codec           = protocol.Codec
	Outbox          = protocol.Outbox
	EvictHandler    = protocol.EvictHandler
	CircuitBreaker  = protocol.CircuitBreaker
	ReconnectPolicy = protocol.ReconnectPolicy
)

var (
	NewCodec           = protocol.NewCodec
	NewOutbox          = protocol.NewOutbox
	NewCircuitBreaker  = protocol.NewCircuitBreaker
	NewReconnectPolicy = protocol.NewReconnectPolicy
)

// ============================================
// 帧构造函数
// ============================================

var (
	NewConnectedFrame = protocol.NewConnectedFrame
	NewMessageFrame   = protocol.NewMessageFrame
	NewAckFrame       = protocol.NewAckFrame
	NewErrorFrame     = protocol.NewErrorFrame
	NewTakenOverFrame = protocol.NewTakenOverFrame
	NewPingFrame      = protocol.NewPingFrame
	NewPongFrame      = protocol.NewPongFrame
)

// ============================================================================
// Outbox 方法导出 - 这些方法通过 Outbox 实例调用
// ============================================================================

// 注意：以下是 Outbox 类型的方法列表，通过 Outbox 实例调用
// 例如：outbox := wsession.NewOutbox(sessionID, config)

// 入箱与投递方法：
// - Enqueue(frame *Frame) (int64, error): 帧入箱并分配序列号
// - CollectPending(limit int) []*QueuedMessage: 取走待投递消息并标记在途
// - Ack(seq int64) int: 累计确认到 seq，返回释放条数
// - ReplayFrom(seq int64) ([]*QueuedMessage, error): 从 seq 起按序重放
// - CheckTimeouts(now time.Time) int: 在途超时重投/淘汰扫描
// - Rebind(sessionID string): 断线恢复时移交给新会话

// ============================================================================
// CircuitBreaker 方法导出 - 这些方法通过 CircuitBreaker 实例调用
// ============================================================================

// 熔断方法：
// - Allow() error: 检查当前状态是否放行调用
// - Do(fn func() error) error: 经熔断器执行依赖调用
// - RecordSuccess() / RecordFailure(): 上报调用结果
// - State() BreakerState: 当前状态（closed/open/half_open）
