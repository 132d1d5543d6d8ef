/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\protocol\breaker.go
 * @Description: 熔断器（显式三态状态机 + 计数滑动窗口）
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package protocol

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kamalyes/go-toolbox/pkg/mathx"
	"github.com/kamalyes/go-wsession/models"
)

// CircuitBreaker 熔断器
// 状态机: closed -> open -> half_open -> closed | open
// closed: 按计数滑动窗口统计失败率，调用数达到下限且失败率达到阈值时熔断
// open: 直接拒绝，等待 OpenTimeout 后进入半开
// half_open: 放行有限次试探调用（默认一次），全部成功则闭合（窗口清零），任一失败则重新打开
type CircuitBreaker struct {
	name   string
	config models.BreakerConfig

	mu               sync.Mutex
	window           []bool // 最近N次调用结果环形缓冲，true=失败
	windowIdx        int    // 环形缓冲写指针
	windowCount      int    // 已记录的调用数（<= len(window)）
	failures         int    // 窗口内失败数
	openedAt         time.Time
	halfOpenInFlight int // 半开状态下进行中的试探数
	halfOpenSuccess  int // 半开状态下已成功的试探数

	// 状态字用原子量单独维护，读状态不竞争窗口锁
	state atomic.Value // models.BreakerState
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(name string, config models.BreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		name: name,
		config: models.BreakerConfig{
			WindowSize:     mathx.IfNotZero(config.WindowSize, 10),
			MinCalls:       mathx.IfNotZero(config.MinCalls, 5),
			FailureRate:    mathx.IfNotZero(config.FailureRate, 0.5),
			OpenTimeout:    mathx.IfNotZero(config.OpenTimeout, 30*time.Second),
			HalfOpenProbes: mathx.IfNotZero(config.HalfOpenProbes, 1),
		},
	}
	cb.window = make([]bool, cb.config.WindowSize)
	cb.state.Store(models.BreakerStateClosed)
	return cb
}

// Name 返回熔断器名称
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State 返回当前状态（无锁读取）
func (cb *CircuitBreaker) State() models.BreakerState {
	return cb.state.Load().(models.BreakerState)
}

// Allow 申请一次调用放行
// open 状态直接返回熔断错误；half_open 状态超出试探配额时同样拒绝
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.State() {
	case models.BreakerStateClosed:
		return nil

	case models.BreakerStateOpen:
		if time.Since(cb.openedAt) < cb.config.OpenTimeout {
			return models.ErrCircuitBreakerOpen
		}
		// 等待期结束，进入半开试探
		cb.transitionUnsafe(models.BreakerStateHalfOpen)
		cb.halfOpenInFlight = 1
		cb.halfOpenSuccess = 0
		return nil

	default: // half_open
		if cb.halfOpenInFlight+cb.halfOpenSuccess >= cb.config.HalfOpenProbes {
			return models.ErrCircuitBreakerOpen
		}
		cb.halfOpenInFlight++
		return nil
	}
}

// RecordSuccess 记录一次成功调用
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.State() {
	case models.BreakerStateHalfOpen:
		cb.halfOpenInFlight--
		cb.halfOpenSuccess++
		if cb.halfOpenSuccess >= cb.config.HalfOpenProbes {
			// 试探全部成功，闭合并清空窗口
			cb.resetWindowUnsafe()
			cb.transitionUnsafe(models.BreakerStateClosed)
		}
	case models.BreakerStateClosed:
		cb.recordUnsafe(false)
	}
}

// RecordFailure 记录一次失败调用
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.State() {
	case models.BreakerStateHalfOpen:
		// 任一试探失败立即重新打开
		cb.halfOpenInFlight = 0
		cb.halfOpenSuccess = 0
		cb.openedAt = time.Now()
		cb.transitionUnsafe(models.BreakerStateOpen)

	case models.BreakerStateClosed:
		cb.recordUnsafe(true)
		if cb.windowCount >= cb.config.MinCalls {
			rate := float64(cb.failures) / float64(cb.windowCount)
			if rate >= cb.config.FailureRate {
				cb.openedAt = time.Now()
				cb.transitionUnsafe(models.BreakerStateOpen)
			}
		}
	}
}

// Do 在熔断器保护下执行一次调用
func (cb *CircuitBreaker) Do(fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// Stats 返回熔断器统计信息
func (cb *CircuitBreaker) Stats() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	rate := float64(0)
	if cb.windowCount > 0 {
		rate = float64(cb.failures) / float64(cb.windowCount)
	}

	return map[string]interface{}{
		"name":         cb.name,
		"state":        cb.State().String(),
		"window_count": cb.windowCount,
		"failures":     cb.failures,
		"failure_rate": rate,
	}
}

// recordUnsafe 写入滑动窗口（须持锁调用）
func (cb *CircuitBreaker) recordUnsafe(failed bool) {
	if cb.windowCount == len(cb.window) {
		// 窗口已满，淘汰最旧记录
		if cb.window[cb.windowIdx] {
			cb.failures--
		}
	} else {
		cb.windowCount++
	}
	cb.window[cb.windowIdx] = failed
	if failed {
		cb.failures++
	}
	cb.windowIdx = (cb.windowIdx + 1) % len(cb.window)
}

// resetWindowUnsafe 清空滑动窗口（须持锁调用）
func (cb *CircuitBreaker) resetWindowUnsafe() {
	for i := range cb.window {
		cb.window[i] = false
	}
	cb.windowIdx = 0
	cb.windowCount = 0
	cb.failures = 0
	cb.halfOpenInFlight = 0
	cb.halfOpenSuccess = 0
}

// transitionUnsafe 切换状态（须持锁调用）
func (cb *CircuitBreaker) transitionUnsafe(next models.BreakerState) {
	cb.state.Store(next)
}
