/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\repository\presence_repository.go
 * @Description: 用户在线状态存储 - 支持 Redis 分布式存储
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/kamalyes/go-toolbox/pkg/errorx"
	"github.com/kamalyes/go-toolbox/pkg/json"
	"github.com/kamalyes/go-toolbox/pkg/mathx"
	"github.com/kamalyes/go-wsession/models"
	"github.com/redis/go-redis/v9"
)

// PresenceRepository 在线状态仓库接口
type PresenceRepository interface {
	// Upsert 写入/更新用户在线状态记录（刷新TTL）
	Upsert(ctx context.Context, record *models.PresenceRecord) error

	// Get 获取用户在线状态记录，不存在返回 nil
	Get(ctx context.Context, userID string) (*models.PresenceRecord, error)

	// SetOffline 移除用户在线状态
	SetOffline(ctx context.Context, userID string) error

	// Touch 刷新用户最后活跃时间（心跳续期）
	Touch(ctx context.Context, userID string) error

	// JoinRoom 将用户加入房间集合
	JoinRoom(ctx context.Context, roomID, userID string) error

	// LeaveRoom 将用户移出房间集合
	LeaveRoom(ctx context.Context, roomID, userID string) error

	// GetRoomMembers 获取房间内全部用户ID
	GetRoomMembers(ctx context.Context, roomID string) ([]string, error)

	// GetAllOnlineUsers 获取所有在线用户ID列表
	GetAllOnlineUsers(ctx context.Context) ([]string, error)

	// GetOnlineCount 获取在线用户总数
	GetOnlineCount(ctx context.Context) (int64, error)

	// GetNodeUsers 获取指定节点的在线用户
	GetNodeUsers(ctx context.Context, nodeID string) ([]string, error)

	// BatchUpsert 批量写入在线状态记录
	BatchUpsert(ctx context.Context, records map[string]*models.PresenceRecord) error

	// CleanupExpired 清理集合中记录已过期的成员
	CleanupExpired(ctx context.Context) (int64, error)
}

// RedisPresenceRepository Redis 实现
type RedisPresenceRepository struct {
	client    *redis.Client
	keyPrefix string        // key 前缀
	ttl       time.Duration // 记录过期时间（建议 2x 心跳超时）
}

// NewRedisPresenceRepository 创建 Redis 在线状态仓库
// 参数:
//   - client: Redis 客户端 (github.com/redis/go-redis/v9)
//   - keyPrefix: key 前缀，空则使用默认值
//   - ttl: 记录过期时间，0 则使用 5 分钟
func NewRedisPresenceRepository(client *redis.Client, keyPrefix string, ttl time.Duration) PresenceRepository {
	return &RedisPresenceRepository{
		client:    client,
		keyPrefix: mathx.IF(keyPrefix == "", DefaultPresenceKeyPrefix, keyPrefix),
		ttl:       mathx.IF(ttl == 0, 5*time.Minute, ttl),
	}
}

// GetUserKey 获取用户在线状态的 key
func (r *RedisPresenceRepository) GetUserKey(userID string) string {
	return fmt.Sprintf("%suser:%s", r.keyPrefix, userID)
}

// GetRoomSetKey 获取房间成员集合的 key
func (r *RedisPresenceRepository) GetRoomSetKey(roomID string) string {
	return fmt.Sprintf("%sroom:%s", r.keyPrefix, roomID)
}

// GetNodeSetKey 获取节点在线用户集合的 key
func (r *RedisPresenceRepository) GetNodeSetKey(nodeID string) string {
	return fmt.Sprintf("%snode:%s", r.keyPrefix, nodeID)
}

// GetAllUsersSetKey 获取所有在线用户集合的 key
func (r *RedisPresenceRepository) GetAllUsersSetKey() string {
	return fmt.Sprintf("%sall", r.keyPrefix)
}

// Upsert 写入/更新用户在线状态记录
func (r *RedisPresenceRepository) Upsert(ctx context.Context, record *models.PresenceRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errorx.WrapError("failed to marshal presence record", err)
	}

	// 使用 pipeline 批量执行
	pipe := r.client.Pipeline()

	// 1. 设置用户在线记录
	pipe.Set(ctx, r.GetUserKey(record.UserID), data, r.ttl)

	// 2. 添加到全局在线用户集合
	pipe.SAdd(ctx, r.GetAllUsersSetKey(), record.UserID)

	// 3. 添加到节点在线用户集合
	if record.NodeID != "" {
		pipe.SAdd(ctx, r.GetNodeSetKey(record.NodeID), record.UserID)
	}

	// 4. 添加到房间成员集合
	if record.RoomID != "" {
		pipe.SAdd(ctx, r.GetRoomSetKey(record.RoomID), record.UserID)
	}

	_, err = pipe.Exec(ctx)
	return err
}

// Get 获取用户在线状态记录
func (r *RedisPresenceRepository) Get(ctx context.Context, userID string) (*models.PresenceRecord, error) {
	data, err := r.client.Get(ctx, r.GetUserKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var record models.PresenceRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, errorx.WrapError("failed to unmarshal presence record", err)
	}

	return &record, nil
}

// SetOffline 移除用户在线状态
func (r *RedisPresenceRepository) SetOffline(ctx context.Context, userID string) error {
	// 先读取记录，以便从相关集合中移除
	record, _ := r.Get(ctx, userID)

	pipe := r.client.Pipeline()

	// 1. 删除用户在线记录
	pipe.Del(ctx, r.GetUserKey(userID))

	// 2. 从全局在线用户集合中移除
	pipe.SRem(ctx, r.GetAllUsersSetKey(), userID)

	// 3. 从节点/房间集合中移除
	if record != nil {
		if record.NodeID != "" {
			pipe.SRem(ctx, r.GetNodeSetKey(record.NodeID), userID)
		}
		if record.RoomID != "" {
			pipe.SRem(ctx, r.GetRoomSetKey(record.RoomID), userID)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Touch 刷新用户最后活跃时间
func (r *RedisPresenceRepository) Touch(ctx context.Context, userID string) error {
	record, err := r.Get(ctx, userID)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}

	record.Touch(time.Now())

	// 重新写入（会刷新 TTL）
	return r.Upsert(ctx, record)
}

// JoinRoom 将用户加入房间集合
func (r *RedisPresenceRepository) JoinRoom(ctx context.Context, roomID, userID string) error {
	return r.client.SAdd(ctx, r.GetRoomSetKey(roomID), userID).Err()
}

// LeaveRoom 将用户移出房间集合
func (r *RedisPresenceRepository) LeaveRoom(ctx context.Context, roomID, userID string) error {
	return r.client.SRem(ctx, r.GetRoomSetKey(roomID), userID).Err()
}

// GetRoomMembers 获取房间内全部用户ID
func (r *RedisPresenceRepository) GetRoomMembers(ctx context.Context, roomID string) ([]string, error) {
	return r.client.SMembers(ctx, r.GetRoomSetKey(roomID)).Result()
}

// GetAllOnlineUsers 获取所有在线用户ID列表
func (r *RedisPresenceRepository) GetAllOnlineUsers(ctx context.Context) ([]string, error) {
	return r.client.SMembers(ctx, r.GetAllUsersSetKey()).Result()
}

// GetOnlineCount 获取在线用户总数
func (r *RedisPresenceRepository) GetOnlineCount(ctx context.Context) (int64, error) {
	return r.client.SCard(ctx, r.GetAllUsersSetKey()).Result()
}

// GetNodeUsers 获取指定节点的在线用户
func (r *RedisPresenceRepository) GetNodeUsers(ctx context.Context, nodeID string) ([]string, error) {
	return r.client.SMembers(ctx, r.GetNodeSetKey(nodeID)).Result()
}

// BatchUpsert 批量写入在线状态记录
func (r *RedisPresenceRepository) BatchUpsert(ctx context.Context, records map[string]*models.PresenceRecord) error {
	pipe := r.client.Pipeline()

	for userID, record := range records {
		data, err := json.Marshal(record)
		if err != nil {
			return errorx.WrapError(fmt.Sprintf("failed to marshal presence record for user %s", userID), err)
		}

		pipe.Set(ctx, r.GetUserKey(userID), data, r.ttl)
		pipe.SAdd(ctx, r.GetAllUsersSetKey(), userID)

		if record.NodeID != "" {
			pipe.SAdd(ctx, r.GetNodeSetKey(record.NodeID), userID)
		}
		if record.RoomID != "" {
			pipe.SAdd(ctx, r.GetRoomSetKey(record.RoomID), userID)
		}
	}

	// 注意：不对共享集合设置过期时间，集合成员通过定期清理维护

	_, err := pipe.Exec(ctx)
	return err
}

// CleanupExpired 清理集合中记录已过期的成员
// Redis 会自动清理过期的 key，此方法主要用于清理集合中的无效成员
func (r *RedisPresenceRepository) CleanupExpired(ctx context.Context) (int64, error) {
	allUsers, err := r.GetAllOnlineUsers(ctx)
	if err != nil {
		return 0, err
	}

	pipe := r.client.Pipeline()
	var toRemove []string

	for _, userID := range allUsers {
		exists, err := r.client.Exists(ctx, r.GetUserKey(userID)).Result()
		if err != nil {
			continue
		}
		if exists == 0 {
			// 记录已过期，但还留在集合中
			toRemove = append(toRemove, userID)
			pipe.SRem(ctx, r.GetAllUsersSetKey(), userID)
		}
	}

	if len(toRemove) == 0 {
		return 0, nil
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int64(len(toRemove)), nil
}
