/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\protocol\policy_test.go
 * @Description: 重连退避策略测试
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package protocol

import (
	"testing"
	"time"

	"github.com/kamalyes/go-wsession/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPolicy(maxAttempts int, jitter float64) *ReconnectPolicy {
	return NewReconnectPolicy(models.ReconnectConfig{
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		MaxAttempts:   maxAttempts,
		JitterPercent: jitter,
	})
}

// TestPolicyBackoffCurve 测试退避曲线
func TestPolicyBackoffCurve(t *testing.T) {
	t.Run("无抖动时指数递增并封顶", func(t *testing.T) {
		p := newTestPolicy(8, 0)
		expected := []time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			400 * time.Millisecond,
			800 * time.Millisecond,
			1600 * time.Millisecond,
			2 * time.Second, // 封顶
			2 * time.Second,
			2 * time.Second,
		}
		for i, want := range expected {
			d, err := p.NextDelay()
			require.NoError(t, err, "attempt %d", i)
			assert.Equal(t, want, d, "attempt %d", i)
		}
	})

	t.Run("抖动落在正负20%区间", func(t *testing.T) {
		p := newTestPolicy(8, 0.2)
		for i := 0; i < 8; i++ {
			d, err := p.DelayForAttempt(i)
			require.NoError(t, err)

			base, err := newTestPolicy(8, 0).DelayForAttempt(i)
			require.NoError(t, err)

			lower := time.Duration(float64(base) * 0.8)
			upper := time.Duration(float64(base) * 1.2)
			assert.GreaterOrEqual(t, d, lower, "attempt %d", i)
			assert.LessOrEqual(t, d, upper, "attempt %d", i)
		}
	})
}

// TestPolicyExhaustion 测试次数上限
func TestPolicyExhaustion(t *testing.T) {
	t.Run("超过上限返回耗尽哨兵", func(t *testing.T) {
		p := newTestPolicy(5, 0)
		for i := 0; i < 5; i++ {
			_, err := p.NextDelay()
			require.NoError(t, err)
		}

		_, err := p.NextDelay()
		assert.ErrorIs(t, err, models.ErrReconnectExhausted)
		assert.True(t, p.Exhausted())
	})

	t.Run("耗尽错误不可重试", func(t *testing.T) {
		assert.False(t, models.IsRetryableError(models.ErrReconnectExhausted))
	})

	t.Run("Reset后重新计数", func(t *testing.T) {
		p := newTestPolicy(5, 0)
		for i := 0; i < 5; i++ {
			_, _ = p.NextDelay()
		}
		require.True(t, p.Exhausted())

		p.Reset()
		assert.False(t, p.Exhausted())
		d, err := p.NextDelay()
		require.NoError(t, err)
		assert.Equal(t, 100*time.Millisecond, d)
	})
}
