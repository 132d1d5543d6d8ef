/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\models\types.go
 * @Description: 统计与投递结果类型定义
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package models

import (
	"time"
)

// IDGenerator ID生成器接口
// 用于生成会话ID、帧ID等唯一标识符
type IDGenerator interface {
	GenerateTraceID() string
	GenerateSpanID() string
	GenerateRequestID() string
	GenerateCorrelationID() string
}

// HubStats Hub运行统计
type HubStats struct {
	NodeID        string                  `json:"node_id"`        // 节点ID
	SessionCount  int64                   `json:"session_count"`  // 活跃会话数
	UserCount     int64                   `json:"user_count"`     // 在线用户数
	OutboxDepth   int64                   `json:"outbox_depth"`   // 全部发件箱待投递总深度
	FramesSent    int64                   `json:"frames_sent"`    // 已下发帧数
	FramesAcked   int64                   `json:"frames_acked"`   // 已确认帧数
	Takeovers     int64                   `json:"takeovers"`      // 会话接管次数
	Replays       int64                   `json:"replays"`        // 重放次数
	BreakerStates map[string]BreakerState `json:"breaker_states"` // 各依赖熔断器状态
	StartedAt     time.Time               `json:"started_at"`     // 启动时间
	Uptime        int64                   `json:"uptime"`         // 运行时长（秒）
}

// SendAttempt 单次投递尝试记录
type SendAttempt struct {
	Attempt   int           `json:"attempt"`         // 第几次尝试（从1开始）
	Timestamp time.Time     `json:"timestamp"`       // 尝试时间
	Duration  time.Duration `json:"duration"`        // 耗时
	Error     string        `json:"error,omitempty"` // 失败原因
	Success   bool          `json:"success"`         // 是否成功
}

// SendResult 投递结果（含全部尝试轨迹）
type SendResult struct {
	Seq       int64         `json:"seq"`             // 分配的序列号
	SessionID string        `json:"session_id"`      // 目标会话ID
	Success   bool          `json:"success"`         // 最终是否成功
	Attempts  []SendAttempt `json:"attempts"`        // 尝试轨迹
	Error     string        `json:"error,omitempty"` // 最终失败原因
}

// SyncConflict 状态同步冲突
// 客户端上报的游标与服务端发件箱状态不一致时生成，服务端视图为准
type SyncConflict struct {
	SessionID   string    `json:"session_id"`   // 会话ID
	ClientSeq   int64     `json:"client_seq"`   // 客户端上报的已确认序列号
	ServerTail  int64     `json:"server_tail"`  // 服务端已分配的最大序列号
	ServerAcked int64     `json:"server_acked"` // 服务端记录的已确认序列号
	DetectedAt  time.Time `json:"detected_at"`  // 检测时间
}

// HealthStatus /health 端点响应
type HealthStatus struct {
	Status    string    `json:"status"`     // healthy / degraded / stopped
	NodeID    string    `json:"node_id"`    // 节点ID
	Stats     *HubStats `json:"stats"`      // 运行统计
	CheckedAt time.Time `json:"checked_at"` // 检查时间
}
