/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\repository\outbox_archive_repository.go
 * @Description: 发件箱归档存储 - GORM + go-sqlbuilder 实现
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package repository

import (
	"context"
	"time"

	sqlbuilder "github.com/kamalyes/go-sqlbuilder/repository"
	"github.com/kamalyes/go-logger"
	"github.com/kamalyes/go-toolbox/pkg/mathx"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
	"github.com/kamalyes/go-wsession/models"
	"gorm.io/gorm"
)

// ArchiveFilter 归档查询过滤条件
type ArchiveFilter struct {
	// SessionID 会话ID，为空则不过滤
	SessionID string

	// UserID 用户ID，为空则不过滤
	UserID string

	// SinceSeq 序列号下界（不含），0 则不过滤
	SinceSeq int64

	// States 状态列表，为空则不过滤
	States []models.OutboxState

	// Limit 返回条数上限
	Limit int
}

// OutboxArchiveRepository 发件箱归档仓库接口
type OutboxArchiveRepository interface {
	// Save 保存一条归档记录
	Save(ctx context.Context, record *models.OutboxArchive) error

	// BatchSave 批量保存归档记录
	BatchSave(ctx context.Context, records []*models.OutboxArchive) error

	// Query 查询归档记录（按序列号升序）
	Query(ctx context.Context, filter *ArchiveFilter) ([]*models.OutboxArchive, error)

	// CountBySession 统计会话的归档记录数
	CountBySession(ctx context.Context, sessionID string) (int64, error)

	// CleanupOld 删除指定时间之前的归档记录
	CleanupOld(ctx context.Context, before time.Time) (int64, error)

	// Close 停止后台清理任务
	Close() error
}

// GormOutboxArchiveRepository GORM实现
type GormOutboxArchiveRepository struct {
	db         *gorm.DB
	logger     logger.ILogger
	cancelFunc context.CancelFunc
}

// NewGormOutboxArchiveRepository 创建GORM发件箱归档仓库
// 参数:
//   - db: GORM 数据库实例
//   - retentionDays: 归档保留天数，>0 时启动定时清理任务
//   - log: 日志记录器
func NewGormOutboxArchiveRepository(db *gorm.DB, retentionDays int, log logger.ILogger) OutboxArchiveRepository {
	ctx, cancel := context.WithCancel(context.Background())

	repo := &GormOutboxArchiveRepository{
		db:         db,
		logger:     log,
		cancelFunc: cancel,
	}

	// 启动定时清理任务
	if retentionDays > 0 {
		go repo.startCleanupScheduler(ctx, retentionDays)
	}

	return repo
}

// Save 保存一条归档记录
func (r *GormOutboxArchiveRepository) Save(ctx context.Context, record *models.OutboxArchive) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// BatchSave 批量保存归档记录
// 使用 CreateInBatches 提高批量插入性能
func (r *GormOutboxArchiveRepository) BatchSave(ctx context.Context, records []*models.OutboxArchive) error {
	if len(records) == 0 {
		return nil
	}
	// 每批插入 1000 条
	return r.db.WithContext(ctx).CreateInBatches(records, 1000).Error
}

// Query 查询归档记录（支持按会话/用户、序列号游标、状态过滤）
// 按 seq 升序排列，保证时序一致性
func (r *GormOutboxArchiveRepository) Query(ctx context.Context, filter *ArchiveFilter) ([]*models.OutboxArchive, error) {
	var records []*models.OutboxArchive

	// 使用 go-sqlbuilder 构建查询
	query := sqlbuilder.NewQuery()
	query.AddFilterIfNotEmpty("session_id", filter.SessionID)
	query.AddFilterIfNotEmpty("user_id", filter.UserID)

	if filter.SinceSeq > 0 {
		query.AddFilter(sqlbuilder.NewGtFilter("seq", filter.SinceSeq))
	}

	if len(filter.States) > 0 {
		statesInterface := make([]interface{}, len(filter.States))
		for i, state := range filter.States {
			statesInterface[i] = state.String()
		}
		query.AddInFilterIfNotEmpty("state", statesInterface)
	}

	// 排序 + 条数限制
	query.AddOrder("seq", "ASC")
	limit := mathx.IF(filter.Limit <= 0, DefaultArchiveBatchSize, filter.Limit)
	query.Limit(limit)

	// 应用到 GORM
	gormDB := r.db.WithContext(ctx)
	gormDB = sqlbuilder.ApplyFilters(gormDB, query.Filters)
	gormDB = sqlbuilder.ApplyOrders(gormDB, query.Orders)
	if query.LimitValue != nil {
		gormDB = gormDB.Limit(*query.LimitValue)
	}

	err := gormDB.Find(&records).Error
	return records, err
}

// CountBySession 统计会话的归档记录数
func (r *GormOutboxArchiveRepository) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OutboxArchive{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}

// CleanupOld 删除指定时间之前的归档记录
func (r *GormOutboxArchiveRepository) CleanupOld(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("archived_at < ?", before).
		Delete(&models.OutboxArchive{})
	return result.RowsAffected, result.Error
}

// startCleanupScheduler 启动定时清理任务（每天一次）
func (r *GormOutboxArchiveRepository) startCleanupScheduler(ctx context.Context, retentionDays int) {
	syncx.NewEventLoop(ctx).
		OnTicker(24*time.Hour, func() {
			r.cleanupOldData(ctx, retentionDays)
		}).
		OnPanic(func(rec interface{}) {
			if r.logger != nil {
				r.logger.ErrorKV("归档清理任务panic", "panic", rec)
			}
		}).
		OnShutdown(func() {
			if r.logger != nil {
				r.logger.Info("归档清理任务已停止")
			}
		}).
		Run()
}

// cleanupOldData 执行一次过期归档清理
func (r *GormOutboxArchiveRepository) cleanupOldData(ctx context.Context, retentionDays int) {
	before := time.Now().AddDate(0, 0, -retentionDays)

	cleanCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	deleted, err := r.CleanupOld(cleanCtx, before)
	if err != nil {
		if r.logger != nil {
			r.logger.WarnKV("清理过期归档失败", "error", err, "before", before)
		}
		return
	}

	if deleted > 0 && r.logger != nil {
		r.logger.InfoKV("清理过期归档", "count", deleted, "before", before)
	}
}

// Close 停止后台清理任务
func (r *GormOutboxArchiveRepository) Close() error {
	if r.cancelFunc != nil {
		r.cancelFunc()
	}
	return nil
}
