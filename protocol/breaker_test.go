/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\protocol\breaker_test.go
 * @Description: 熔断器状态机测试
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package protocol

import (
	"errors"
	"testing"
	"time"

	"github.com/kamalyes/go-wsession/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(openTimeout time.Duration) *CircuitBreaker {
	return NewCircuitBreaker("test", models.BreakerConfig{
		WindowSize:     10,
		MinCalls:       5,
		FailureRate:    0.5,
		OpenTimeout:    openTimeout,
		HalfOpenProbes: 3,
	})
}

// TestBreakerTrip 测试熔断触发
func TestBreakerTrip(t *testing.T) {
	t.Run("失败率达到阈值时熔断", func(t *testing.T) {
		cb := newTestBreaker(100 * time.Millisecond)

		// 3成功+3失败 = 50%失败率，调用数已超过下限
		for i := 0; i < 3; i++ {
			require.NoError(t, cb.Allow())
			cb.RecordSuccess()
		}
		for i := 0; i < 3; i++ {
			require.NoError(t, cb.Allow())
			cb.RecordFailure()
		}

		assert.Equal(t, models.BreakerStateOpen, cb.State())
		assert.ErrorIs(t, cb.Allow(), models.ErrCircuitBreakerOpen)
	})

	t.Run("调用数不足下限时不评估", func(t *testing.T) {
		cb := newTestBreaker(100 * time.Millisecond)

		// 全部失败但只有4次调用（< MinCalls=5）
		for i := 0; i < 4; i++ {
			require.NoError(t, cb.Allow())
			cb.RecordFailure()
		}
		assert.Equal(t, models.BreakerStateClosed, cb.State())
	})
}

// TestBreakerHalfOpen 测试半开试探
func TestBreakerHalfOpen(t *testing.T) {
	tripBreaker := func(cb *CircuitBreaker) {
		for i := 0; i < 5; i++ {
			_ = cb.Allow()
			cb.RecordFailure()
		}
	}

	t.Run("等待期结束后进入半开", func(t *testing.T) {
		cb := newTestBreaker(50 * time.Millisecond)
		tripBreaker(cb)
		require.Equal(t, models.BreakerStateOpen, cb.State())

		time.Sleep(60 * time.Millisecond)
		assert.NoError(t, cb.Allow())
		assert.Equal(t, models.BreakerStateHalfOpen, cb.State())
	})

	t.Run("默认单次试探成功即闭合", func(t *testing.T) {
		cb := NewCircuitBreaker("default-probe", models.BreakerConfig{
			WindowSize:  10,
			MinCalls:    5,
			FailureRate: 0.5,
			OpenTimeout: 50 * time.Millisecond,
		})
		tripBreaker(cb)
		require.Equal(t, models.BreakerStateOpen, cb.State())

		time.Sleep(60 * time.Millisecond)
		require.NoError(t, cb.Allow())
		cb.RecordSuccess()

		assert.Equal(t, models.BreakerStateClosed, cb.State(), "一次试探成功后应立即闭合")
		assert.NoError(t, cb.Allow(), "闭合后放行不受试探配额限制")
	})

	t.Run("配置多次试探需全部成功后闭合", func(t *testing.T) {
		cb := newTestBreaker(50 * time.Millisecond)
		tripBreaker(cb)
		time.Sleep(60 * time.Millisecond)

		for i := 0; i < 3; i++ {
			require.NoError(t, cb.Allow())
			cb.RecordSuccess()
		}
		assert.Equal(t, models.BreakerStateClosed, cb.State())
	})

	t.Run("试探失败立即重新打开", func(t *testing.T) {
		cb := newTestBreaker(50 * time.Millisecond)
		tripBreaker(cb)
		time.Sleep(60 * time.Millisecond)

		require.NoError(t, cb.Allow())
		cb.RecordFailure()
		assert.Equal(t, models.BreakerStateOpen, cb.State())
		assert.ErrorIs(t, cb.Allow(), models.ErrCircuitBreakerOpen)
	})

	t.Run("半开状态限制试探配额", func(t *testing.T) {
		cb := newTestBreaker(50 * time.Millisecond)
		tripBreaker(cb)
		time.Sleep(60 * time.Millisecond)

		for i := 0; i < 3; i++ {
			require.NoError(t, cb.Allow())
		}
		// 第4次试探超出配额
		assert.ErrorIs(t, cb.Allow(), models.ErrCircuitBreakerOpen)
	})
}

// TestBreakerDo 测试包裹执行
func TestBreakerDo(t *testing.T) {
	t.Run("Do透传业务错误并计入窗口", func(t *testing.T) {
		cb := newTestBreaker(100 * time.Millisecond)
		bizErr := errors.New("boom")

		for i := 0; i < 5; i++ {
			err := cb.Do(func() error { return bizErr })
			assert.ErrorIs(t, err, bizErr)
		}
		// 5次全失败，熔断打开后Do直接拒绝
		err := cb.Do(func() error { return nil })
		assert.ErrorIs(t, err, models.ErrCircuitBreakerOpen)
		assert.True(t, models.IsDependencyError(err))
	})
}
