/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\models\config.go
 * @Description: 会话核心配置（在 go-config WSC 基础上扩展生命周期配置段）
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package models

import (
	"time"

	wscconfig "github.com/kamalyes/go-config/pkg/wsc"
	"github.com/kamalyes/go-toolbox/pkg/errorx"
	"github.com/kamalyes/go-toolbox/pkg/safe"
)

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	WindowSize     int           `json:"window_size" yaml:"window-size"`           // 滑动窗口大小（按调用计数）
	MinCalls       int           `json:"min_calls" yaml:"min-calls"`               // 评估失败率前的最小调用数
	FailureRate    float64       `json:"failure_rate" yaml:"failure-rate"`         // 触发熔断的失败率阈值 [0,1]
	OpenTimeout    time.Duration `json:"open_timeout" yaml:"open-timeout"`         // OPEN -> HALF_OPEN 的等待时间
	HalfOpenProbes int           `json:"half_open_probes" yaml:"half-open-probes"` // 半开状态允许的试探调用数（默认1）
}

// OutboxConfig 发件箱配置
type OutboxConfig struct {
	Capacity    int           `json:"capacity" yaml:"capacity"`         // 发件箱容量上限
	AckTimeout  time.Duration `json:"ack_timeout" yaml:"ack-timeout"`   // 投递确认超时
	MaxAttempts int           `json:"max_attempts" yaml:"max-attempts"` // 单条消息最大投递次数
	SweepTick   time.Duration `json:"sweep_tick" yaml:"sweep-tick"`     // 超时重投扫描间隔
}

// ReconnectConfig 重连策略配置
type ReconnectConfig struct {
	BaseDelay     time.Duration `json:"base_delay" yaml:"base-delay"`         // 初始退避
	MaxDelay      time.Duration `json:"max_delay" yaml:"max-delay"`           // 退避上限
	MaxAttempts   int           `json:"max_attempts" yaml:"max-attempts"`     // 最大重连次数（合法区间 5-8）
	JitterPercent float64       `json:"jitter_percent" yaml:"jitter-percent"` // 抖动比例 [0,1]
}

// PresenceConfig 在线状态配置
type PresenceConfig struct {
	SweepInterval   time.Duration `json:"sweep_interval" yaml:"sweep-interval"`     // 离线清扫间隔（默认 2x 心跳间隔）
	FlushInterval   time.Duration `json:"flush_interval" yaml:"flush-interval"`     // 房间增量刷新间隔
	FocusDefault    time.Duration `json:"focus_default" yaml:"focus-default"`       // 默认专注时长
	BreakDefault    time.Duration `json:"break_default" yaml:"break-default"`       // 默认休息时长
	RecordTTLFactor int           `json:"record_ttl_factor" yaml:"record-ttl-factor"` // Redis记录TTL = 因子 x 心跳超时
}

// PollConfig 长轮询降级配置
type PollConfig struct {
	Wait      time.Duration `json:"wait" yaml:"wait"`             // 无消息时的最长挂起时间
	BatchSize int           `json:"batch_size" yaml:"batch-size"` // 单次返回的最大帧数
}

// Config 会话核心配置
// 嵌入 go-config 的 WSC 配置（节点、心跳、缓冲、重试、日志、安全等通用段），
// 并扩展连接生命周期专用配置段
type Config struct {
	*wscconfig.WSC `json:",inline" yaml:",inline"`

	MaxFrameSize int64 `json:"max_frame_size" yaml:"max-frame-size"` // 单帧字节数上限

	Breaker   BreakerConfig   `json:"breaker" yaml:"breaker"`     // 熔断器
	Outbox    OutboxConfig    `json:"outbox" yaml:"outbox"`       // 发件箱
	Reconnect ReconnectConfig `json:"reconnect" yaml:"reconnect"` // 重连策略
	Presence  PresenceConfig  `json:"presence" yaml:"presence"`   // 在线状态
	Poll      PollConfig      `json:"poll" yaml:"poll"`           // 长轮询降级
}

// NewDefaultConfig 创建默认配置
func NewDefaultConfig() *Config {
	return &Config{
		WSC:          safe.MergeWithDefaults[wscconfig.WSC](nil, wscconfig.Default()),
		MaxFrameSize: 64 * 1024,
		Breaker: BreakerConfig{
			WindowSize:     10,
			MinCalls:       5,
			FailureRate:    0.5,
			OpenTimeout:    30 * time.Second,
			HalfOpenProbes: 1,
		},
		Outbox: OutboxConfig{
			Capacity:    1000,
			AckTimeout:  5 * time.Second,
			MaxAttempts: 3,
			SweepTick:   time.Second,
		},
		Reconnect: ReconnectConfig{
			BaseDelay:     500 * time.Millisecond,
			MaxDelay:      30 * time.Second,
			MaxAttempts:   6,
			JitterPercent: 0.2,
		},
		Presence: PresenceConfig{
			SweepInterval:   0, // 0 表示运行时取 2x 心跳间隔
			FlushInterval:   500 * time.Millisecond,
			FocusDefault:    25 * time.Minute,
			BreakDefault:    5 * time.Minute,
			RecordTTLFactor: 2,
		},
		Poll: PollConfig{
			Wait:      25 * time.Second,
			BatchSize: 100,
		},
	}
}

// WithMaxFrameSize 设置单帧字节数上限并返回当前配置对象
func (c *Config) WithMaxFrameSize(size int64) *Config {
	c.MaxFrameSize = size
	return c
}

// WithBreaker 设置熔断器配置并返回当前配置对象
func (c *Config) WithBreaker(breaker BreakerConfig) *Config {
	c.Breaker = breaker
	return c
}

// WithOutbox 设置发件箱配置并返回当前配置对象
func (c *Config) WithOutbox(outbox OutboxConfig) *Config {
	c.Outbox = outbox
	return c
}

// WithReconnect 设置重连策略配置并返回当前配置对象
func (c *Config) WithReconnect(reconnect ReconnectConfig) *Config {
	c.Reconnect = reconnect
	return c
}

// WithPresence 设置在线状态配置并返回当前配置对象
func (c *Config) WithPresence(presence PresenceConfig) *Config {
	c.Presence = presence
	return c
}

// WithPoll 设置长轮询配置并返回当前配置对象
func (c *Config) WithPoll(poll PollConfig) *Config {
	c.Poll = poll
	return c
}

// Validate 验证配置合法性，非法配置返回错误
func (c *Config) Validate() error {
	if c.Breaker.WindowSize < 10 {
		return errorx.NewError(ErrTypeConfigInvalid, "breaker.window_size must be >= 10")
	}
	if c.Breaker.FailureRate <= 0 || c.Breaker.FailureRate > 1 {
		return errorx.NewError(ErrTypeConfigInvalid, "breaker.failure_rate must be in (0,1]")
	}
	if c.Reconnect.MaxAttempts < 5 || c.Reconnect.MaxAttempts > 8 {
		return errorx.NewError(ErrTypeConfigInvalid, "reconnect.max_attempts must be in [5,8]")
	}
	if c.Reconnect.BaseDelay <= 0 || c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		return errorx.NewError(ErrTypeConfigInvalid, "reconnect delays misconfigured")
	}
	if c.Reconnect.JitterPercent < 0 || c.Reconnect.JitterPercent > 1 {
		return errorx.NewError(ErrTypeConfigInvalid, "reconnect.jitter_percent must be in [0,1]")
	}
	if c.Outbox.Capacity <= 0 {
		return errorx.NewError(ErrTypeConfigInvalid, "outbox.capacity must be positive")
	}
	if c.MaxFrameSize <= 0 {
		return errorx.NewError(ErrTypeConfigInvalid, "max_frame_size must be positive")
	}
	return nil
}

// PresenceSweepInterval 在线状态清扫间隔（0 时取 2x 心跳间隔）
func (c *Config) PresenceSweepInterval() time.Duration {
	if c.Presence.SweepInterval > 0 {
		return c.Presence.SweepInterval
	}
	return 2 * c.HeartbeatInterval
}
