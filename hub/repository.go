/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\hub\repository.go
 * @Description: Hub 仓库初始化
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package hub

import (
	"context"
	"time"

	"github.com/kamalyes/go-cachex"
	"github.com/kamalyes/go-toolbox/pkg/errorx"
	"github.com/kamalyes/go-wsession/repository"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// InitializeRepositories 初始化所有仓库
// 一次性完成在线状态仓库（Redis）、发件箱归档仓库（MySQL GORM）
// 和分布式 PubSub 的初始化
//
// 参数:
//   - redisClient: Redis 客户端（必需）
//   - db: GORM 数据库实例（可选，nil 时不启用归档与快照回退）
func (h *Hub) InitializeRepositories(redisClient *redis.Client, db *gorm.DB) error {
	if redisClient == nil {
		return errorx.NewError(ErrTypePresenceRepoNotSet)
	}

	// 验证 Redis 连接
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		h.logger.ErrorKV("❌ Redis 连接测试失败", "error", err)
		return err
	}

	// 1. 在线状态仓库 (记录TTL = 因子 x 心跳超时)
	presenceTTL := h.config.ClientTimeout * time.Duration(h.config.Presence.RecordTTLFactor)
	presenceRepo := repository.NewRedisPresenceRepository(
		redisClient,
		repository.DefaultPresenceKeyPrefix,
		presenceTTL,
	)
	h.SetPresenceRepo(presenceRepo)

	// 2. 发件箱归档仓库 (MySQL GORM)
	if db != nil {
		archiveRepo := repository.NewGormOutboxArchiveRepository(
			db,
			repository.DefaultArchiveRetentionDays,
			h.GetLogger(),
		)
		h.SetArchiveRepo(archiveRepo)
	}

	// 3. 分布式 PubSub（跨节点帧中继与在线状态扇出）
	if h.config.RedisRepository.PubSub.GetEnabled() {
		pubsubCfg := cachex.PubSubConfig{
			Namespace:          h.config.RedisRepository.PubSub.GetNamespace(),
			MaxRetries:         h.config.RedisRepository.PubSub.GetMaxRetries(),
			RetryDelay:         h.config.RedisRepository.PubSub.GetRetryDelay(),
			BufferSize:         h.config.RedisRepository.PubSub.GetBufferSize(),
			Logger:             h.GetLogger(),
			PingInterval:       h.config.RedisRepository.PubSub.GetPingInterval(),
			EnableCompression:  h.config.RedisRepository.PubSub.GetEnableCompression(),
			CompressionMinSize: h.config.RedisRepository.PubSub.GetCompressionMinSize(),
		}
		h.SetPubSub(cachex.NewPubSub(redisClient, pubsubCfg))
	}

	h.logRepositoryInitialization(db != nil)
	return nil
}

// logRepositoryInitialization 记录仓库初始化信息
func (h *Hub) logRepositoryInitialization(archiveEnabled bool) {
	cg := h.logger.NewConsoleGroup()
	cg.Group("✅ Session Hub 仓库初始化")

	redisConfig := []map[string]interface{}{
		{
			"仓库类型":   "在线状态",
			"Key前缀":  repository.DefaultPresenceKeyPrefix,
			"TTL因子": h.config.Presence.RecordTTLFactor,
		},
	}
	cg.Table(redisConfig)

	if archiveEnabled {
		cg.Info("✅ MySQL 发件箱归档仓库已初始化 (保留 %d 天)", repository.DefaultArchiveRetentionDays)
	} else {
		cg.Warn("⚠️  归档仓库未启用，窗口淘汰的消息将被丢弃")
	}

	if h.pubsub != nil {
		cg.Info("✅ 分布式 PubSub 已初始化 (Namespace: %s)", h.config.RedisRepository.PubSub.GetNamespace())
	} else {
		cg.Warn("⚠️  分布式 PubSub 未启用，运行在单机模式")
	}

	cg.Info("✅ ShortFlake ID 生成器已初始化 (Hub NodeID: %s, WorkerID: %d)", h.GetNodeID(), h.GetWorkerID())
	cg.GroupEnd()
}
