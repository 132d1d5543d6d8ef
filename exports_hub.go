/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\exports_hub.go
 * @Description: Hub 包的类型和函数导出
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package wsession

import (
	"github.com/kamalyes/go-wsession/hub"
)

// ============================================================================
// Hub 类型导出
// ============================================================================

type (
	Hub                       = hub.Hub
	PresenceTracker           = hub.PresenceTracker
	DestinationHandler        = hub.DestinationHandler
	SessionConnectCallback    = hub.SessionConnectCallback
	SessionDisconnectCallback = hub.SessionDisconnectCallback
	TakeoverCallback          = hub.TakeoverCallback
	FrameReceivedCallback     = hub.FrameReceivedCallback
	ErrorCallback             = hub.ErrorCallback
	ContextKey                = hub.ContextKey
)

// 常量导出
const (
	ContextKeyUserID   = hub.ContextKeyUserID
	ContextKeySenderID = hub.ContextKeySenderID

	BreakerRedis    = hub.BreakerRedis
	BreakerDatabase = hub.BreakerDatabase
)

// ============================================================================
// Hub 函数导出
// ============================================================================

var (
	NewHub = hub.NewHub
)

// ============================================================================
// Hub 方法导出 - 这些方法通过 Hub 实例调用
// ============================================================================

// 注意：以下是 Hub 类型的方法列表，通过 Hub 实例调用
// 例如：hub := wsession.NewHub(config); hub.Register(session)

// HTTP 接入方法：
// - ConfigureUpgrader() *websocket.Upgrader: 配置 WebSocket 升级器
// - CreateSessionFromRequest(r *http.Request, conn *websocket.Conn) *Session: 从 HTTP 请求创建会话
// - HandleWebSocketUpgrade(w http.ResponseWriter, r *http.Request): 处理 WebSocket 升级请求
// - HandlePoll(w http.ResponseWriter, r *http.Request): 长轮询降级端点
// - HandleHealth(w http.ResponseWriter, r *http.Request): 健康检查端点

// 仓库初始化方法：
// - InitializeRepositories(redisClient *redis.Client, db *gorm.DB) error: 初始化所有仓库

// 会话注册与管理方法：
// - Connect(ctx, userID, transport) (*Session, error): 建立新会话
// - Register(session *Session): 注册会话
// - Unregister(session *Session, reason DisconnectReason): 注销会话
// - Disconnect(ctx, sessionID, reason) error: 按会话ID断开
// - ResumeSession(session *Session, resumeToken string, lastAckedSeq int64) error: 断线恢复

// 订阅与投递方法：
// - Subscribe(ctx, sessionID, destination) error / Unsubscribe(...): 目的地订阅
// - RegisterHandler(kind DestinationKind, handler DestinationHandler): 注册目的地处理器
// - PublishToTopic(ctx, topic, body) error: 主题广播
// - SendToQueue(ctx, queue, body) error: 队列投递（单消费者）
// - SendToUser(ctx, userID, body) error: 用户定向投递
// - SendToUserWithRetry(ctx, userID, body) *SendResult: 带重试的用户投递
// - HandleAck(sessionID string, seq int64) int: 处理累计确认

// 生命周期方法：
// - Run(): 启动事件循环（阻塞）
// - WaitForStart() / WaitForStartWithTimeout(timeout) error: 等待启动完成
// - SafeShutdown() error: 安全关闭
// - Stats() *HubStats / GetHubHealth() *HealthStatus: 运行统计与健康状态
