/**
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\repository\constants.go
 * @Description: Repository 层常量定义 - 统一管理 Redis key 前缀
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package repository

const (
	// ============================================================================
	// Redis Key 前缀常量 - 各模块默认前缀
	// ============================================================================

	// DefaultPresenceKeyPrefix 在线状态默认 key 前缀
	DefaultPresenceKeyPrefix = "wsession:presence:"

	// DefaultStatsKeyPrefix 统计信息默认 key 前缀
	DefaultStatsKeyPrefix = "wsession:stats:"

	// ============================================================================
	// 归档清理默认参数
	// ============================================================================

	// DefaultArchiveRetentionDays 归档记录默认保留天数
	DefaultArchiveRetentionDays = 7

	// DefaultArchiveBatchSize 归档查询默认批大小
	DefaultArchiveBatchSize = 100
)
