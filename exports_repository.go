/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\exports_repository.go
 * @Description: Repository模块类型导出 - 保持向后兼容
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package wsession

import (
	"github.com/kamalyes/go-wsession/repository"
)

// ============================================
// 仓库接口与实现
// ============================================

type (
	PresenceRepository      = repository.PresenceRepository
	OutboxArchiveRepository = repository.OutboxArchiveRepository
	ArchiveFilter           = repository.ArchiveFilter
)

var (
	NewRedisPresenceRepository     = repository.NewRedisPresenceRepository
	NewGormOutboxArchiveRepository = repository.NewGormOutboxArchiveRepository
	OpenMySQL                      = repository.OpenMySQL
	OpenRedis                      = repository.OpenRedis
)

// ============================================
// Redis Key 前缀与默认参数
// ============================================

const (
	DefaultPresenceKeyPrefix    = repository.DefaultPresenceKeyPrefix
	DefaultStatsKeyPrefix       = repository.DefaultStatsKeyPrefix
	DefaultArchiveRetentionDays = repository.DefaultArchiveRetentionDays
	DefaultArchiveBatchSize     = repository.DefaultArchiveBatchSize
)
