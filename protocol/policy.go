/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\protocol\policy.go
 * @Description: 重连退避策略（指数退避 + 对称抖动 + 次数上限）
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package protocol

import (
	"math/rand"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/kamalyes/go-toolbox/pkg/mathx"
	"github.com/kamalyes/go-wsession/models"
)

// ReconnectPolicy 重连退避策略
// 第n次重连延迟 = min(base * 2^n, max) 上下浮动 JitterPercent；
// 超过 MaxAttempts 后返回 ErrReconnectExhausted，会话应迁移至永久失败
type ReconnectPolicy struct {
	mu            sync.Mutex
	backoff       *backoff.Backoff
	maxAttempts   int
	jitterPercent float64
	attempt       int
	rng           *rand.Rand
}

// NewReconnectPolicy 创建重连策略
func NewReconnectPolicy(config models.ReconnectConfig) *ReconnectPolicy {
	return &ReconnectPolicy{
		backoff: &backoff.Backoff{
			Min:    mathx.IfNotZero(config.BaseDelay, 500*time.Millisecond),
			Max:    mathx.IfNotZero(config.MaxDelay, 30*time.Second),
			Factor: 2,
			Jitter: false, // 抖动由本策略对称施加
		},
		maxAttempts:   mathx.IfNotZero(config.MaxAttempts, 6),
		jitterPercent: config.JitterPercent,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NextDelay 计算下一次重连延迟
// 次数耗尽时返回 ErrReconnectExhausted
func (p *ReconnectPolicy) NextDelay() (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.attempt >= p.maxAttempts {
		return 0, models.ErrReconnectExhausted
	}

	base := p.backoff.ForAttempt(float64(p.attempt))
	p.attempt++

	return p.applyJitterUnsafe(base), nil
}

// DelayForAttempt 计算指定次数的重连延迟（不推进内部计数）
func (p *ReconnectPolicy) DelayForAttempt(attempt int) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if attempt >= p.maxAttempts {
		return 0, models.ErrReconnectExhausted
	}
	return p.applyJitterUnsafe(p.backoff.ForAttempt(float64(attempt))), nil
}

// Attempt 返回已消耗的重连次数
func (p *ReconnectPolicy) Attempt() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempt
}

// MaxAttempts 返回重连次数上限
func (p *ReconnectPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// Exhausted 检查重连次数是否已耗尽
func (p *ReconnectPolicy) Exhausted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempt >= p.maxAttempts
}

// Reset 重连成功后重置计数
func (p *ReconnectPolicy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempt = 0
	p.backoff.Reset()
}

// applyJitterUnsafe 对延迟施加对称抖动 [d*(1-j), d*(1+j)]（须持锁调用）
func (p *ReconnectPolicy) applyJitterUnsafe(d time.Duration) time.Duration {
	if p.jitterPercent <= 0 {
		return d
	}
	span := float64(d) * p.jitterPercent
	jittered := float64(d) - span + p.rng.Float64()*2*span
	if jittered < 0 {
		return 0
	}
	return time.Duration(jittered)
}
