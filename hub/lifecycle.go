/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\hub\lifecycle.go
 * @Description: Hub 生命周期管理
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package hub

import (
	"time"

	"github.com/kamalyes/go-toolbox/pkg/mathx"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// Run 启动Hub
func (h *Hub) Run() {
	h.wg.Add(1)
	defer h.wg.Done()

	// 使用 Console 分组记录 Hub 启动日志
	cg := h.logger.NewConsoleGroup()
	cg.Group("🚀 Session Hub 启动")

	startTimer := cg.Time("Hub 启动耗时")

	// 显示启动配置
	config := map[string]interface{}{
		"节点ID":    h.nodeID,
		"节点IP":    h.config.NodeIP,
		"节点端口":    h.config.NodePort,
		"消息缓冲大小":  h.config.MessageBufferSize,
		"心跳间隔":    h.config.HeartbeatInterval,
		"发件箱容量":   h.config.Outbox.Capacity,
		"重连次数上限":  h.config.Reconnect.MaxAttempts,
		"熔断窗口大小":  h.config.Breaker.WindowSize,
	}
	cg.Table(config)

	// 设置已启动标志并通知等待的goroutine
	if h.started.CompareAndSwap(false, true) {
		startTimer.End()
		cg.Info("✅ Hub 启动成功")
		cg.GroupEnd()

		close(h.startCh)
	}

	// 🌐 启动分布式服务（如果启用了 PubSub）
	if h.pubsub != nil {
		go func() {
			if err := h.SubscribeNodeChannel(h.ctx); err != nil {
				h.logger.ErrorKV("订阅节点通道失败", "error", err)
			}
		}()

		go func() {
			if err := h.SubscribePresenceChannel(h.ctx); err != nil {
				h.logger.ErrorKV("订阅在线状态通道失败", "error", err)
			}
		}()

		h.logger.InfoKV("🌐 分布式服务已启动", "node_id", h.nodeID)
	}

	// 使用 EventLoop 管理事件循环
	// 会话映射只在这条 goroutine 中修改（注册/注销经由邮箱通道）
	syncx.NewEventLoop(h.ctx).
		// 会话注册事件：处理新会话接入（含同用户会话接管）
		OnChannel(h.register, h.handleRegister).
		// 会话注销事件：处理会话断开
		OnChannel(h.unregister, h.handleUnregister).
		// 出站帧事件：按目的地注册表分发
		OnChannel(h.outbound, h.handleOutbound).
		// 心跳定时器：下发PING并清理超时会话
		OnTicker(h.config.HeartbeatInterval, h.checkHeartbeat).
		// 发件箱扫描定时器：超时的在途消息重新标记待投递
		OnTicker(mathx.IfNotZero(h.config.Outbox.SweepTick, time.Second), h.sweepOutboxTimeouts).
		// 在线状态清扫定时器：沉默用户转为离线
		OnTicker(h.config.PresenceSweepInterval(), h.presence.sweep).
		// 房间增量刷新定时器：合并广播在线状态变化
		OnTicker(mathx.IfNotZero(h.config.Presence.FlushInterval, 500*time.Millisecond), h.presence.flushDeltas).
		// 专注/休息到期检查：到期后回到在线状态
		OnTicker(time.Minute, h.presence.expireFocusSessions).
		// Panic处理：捕获事件处理过程中的panic，防止整个Hub崩溃
		OnPanic(func(r interface{}) {
			h.logger.ErrorKV("Hub事件循环panic", "panic", r, "node_id", h.nodeID)
		}).
		// 优雅关闭：事件循环停止时记录日志
		OnShutdown(func() {
			h.logger.InfoKV("Hub事件循环已停止", "node_id", h.nodeID)
		}).
		// 运行事件循环（阻塞），直到context被取消
		Run()
}

// WaitForStart 等待Hub启动完成
// 确保Hub完全启动后再进行注册/发送操作
func (h *Hub) WaitForStart() {
	<-h.startCh
}

// WaitForStartWithTimeout 带超时的等待Hub启动
func (h *Hub) WaitForStartWithTimeout(timeout time.Duration) error {
	select {
	case <-h.startCh:
		return nil
	case <-time.After(timeout):
		return ErrHubStartupTimeout
	}
}

// SafeShutdown 安全关闭Hub，确保所有操作完成
func (h *Hub) SafeShutdown() error {
	// 检查是否已经关闭
	if h.shutdown.Load() {
		h.logger.Debug("Hub已经关闭，跳过重复关闭操作")
		return nil
	}

	// 设置关闭标志（先标记避免新操作进入）
	if !h.shutdown.CompareAndSwap(false, true) {
		return nil // 已经在关闭中
	}

	// 使用 Console 分组记录关闭流程
	cg := h.logger.NewConsoleGroup()
	cg.Group("🛑 Session Hub 安全关闭流程")
	shutdownTimer := cg.Time("Hub 关闭耗时")

	cg.Info("开始安全关闭 Hub [节点: %s]", h.nodeID)

	// 关闭所有会话连接
	cg.Info("→ 关闭所有会话...")
	h.mutex.Lock()
	for _, session := range h.sessions {
		h.removeSessionUnsafe(session, DisconnectReasonShutdown)
	}
	h.mutex.Unlock()

	// 取消context（通知所有 goroutine 停止）
	cg.Info("→ 取消所有上下文...")
	h.cancel()

	// 等待一小段时间让goroutine有机会响应取消信号
	time.Sleep(10 * time.Millisecond)

	// 动态计算关闭超时：基础超时 + (会话数 * 10ms)，但不超过最大超时
	baseTimeout := mathx.IfNotZero(h.config.ShutdownBaseTimeout, 5*time.Second)
	maxTimeout := mathx.IfNotZero(h.config.ShutdownMaxTimeout, 60*time.Second)

	totalSessions := h.activeSessionsCount.Load()

	calculatedTimeout := baseTimeout + time.Duration(totalSessions)*10*time.Millisecond
	if calculatedTimeout > maxTimeout {
		calculatedTimeout = maxTimeout
	}

	// 等待所有goroutine完成，带超时保护
	cg.Info("→ 等待所有协程完成...")
	done := make(chan struct{})
	syncx.Go(h.ctx).
		OnPanic(func(r any) {
			h.logger.ErrorKV("WaitGroup等待崩溃", "panic", r)
		}).
		Exec(func() {
			h.wg.Wait()
			close(done)
		})

	select {
	case <-done:
		finalStats := map[string]any{
			"frames_sent":  h.framesSent.Load(),
			"frames_acked": h.framesAcked.Load(),
			"takeovers":    h.takeovers.Load(),
			"replays":      h.replays.Load(),
		}

		shutdownTimer.End()
		cg.Info("→ 显示最终统计...")
		cg.Table(finalStats)
		cg.Info("✅ Hub 安全关闭成功")
		cg.GroupEnd()
		return nil

	case <-time.After(calculatedTimeout):
		shutdownTimer.End()
		cg.Info("⚠️ Hub 关闭超时（超时时间: %v）", calculatedTimeout)
		cg.GroupEnd()
		return ErrHubShutdownTimeout
	}
}

// Shutdown 关闭Hub（兼容性方法）
func (h *Hub) Shutdown() {
	_ = h.SafeShutdown()
}

// sweepOutboxTimeouts 扫描全部发件箱，超时的在途消息重新标记待投递
// 重标记后的消息由下一轮投递协程带走，失败淘汰的写入归档
func (h *Hub) sweepOutboxTimeouts() {
	now := time.Now()

	h.mutex.RLock()
	outboxes := make([]*Outbox, 0, len(h.outboxes))
	sessions := make([]*Session, 0, len(h.outboxes))
	for sessionID, outbox := range h.outboxes {
		if session, ok := h.sessions[sessionID]; ok {
			outboxes = append(outboxes, outbox)
			sessions = append(sessions, session)
		}
	}
	h.mutex.RUnlock()

	requeued := 0
	for i, outbox := range outboxes {
		n := outbox.CheckTimeouts(now)
		if n > 0 {
			requeued += n
			h.deliverPending(sessions[i], outbox)
		}
	}

	if requeued > 0 {
		h.logger.InfoKV("发件箱超时重投",
			"requeued", requeued,
			"node_id", h.nodeID,
		)
	}
}
