/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\hub\presence.go
 * @Description: 在线状态追踪器（版本号去重 + 房间增量合并广播）
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package hub

import (
	"context"
	"sync"
	"time"

	"github.com/kamalyes/go-toolbox/pkg/errorx"
	"github.com/kamalyes/go-toolbox/pkg/json"
	"github.com/kamalyes/go-toolbox/pkg/mathx"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
	"github.com/kamalyes/go-wsession/models"
)

// PresenceTracker 在线状态追踪器
// 每条记录携带单调递增版本号，低于当前版本的写入视为过期写并被丢弃；
// 房间内的状态变化在刷新周期内合并为一条增量广播
type PresenceTracker struct {
	hub *Hub

	mu        sync.RWMutex
	records   map[string]*PresenceRecord       // userID -> 在线状态记录
	rooms     map[string]map[string]struct{}   // roomID -> 成员userID集合
	userRooms map[string]map[string]struct{}   // userID -> 所在房间集合
	pending   map[string]*PresenceDelta        // roomID -> 待刷新的增量
	dirty     map[string]*PresenceRecord       // 待批量落库的记录
}

// newPresenceTracker 创建在线状态追踪器
func newPresenceTracker(hub *Hub) *PresenceTracker {
	return &PresenceTracker{
		hub:       hub,
		records:   make(map[string]*PresenceRecord),
		rooms:     make(map[string]map[string]struct{}),
		userRooms: make(map[string]map[string]struct{}),
		pending:   make(map[string]*PresenceDelta),
		dirty:     make(map[string]*PresenceRecord),
	}
}

// ============================================================================
// 状态变更
// ============================================================================

// markOnline 标记用户在线（会话建立时调用）
func (p *PresenceTracker) markOnline(userID string, metadata map[string]interface{}) {
	p.mu.Lock()

	record, exists := p.records[userID]
	if !exists {
		record = &PresenceRecord{
			UserID:  userID,
			Status:  models.PresenceStatusOnline,
			Version: 1,
			NodeID:  p.hub.nodeID,
		}
		p.records[userID] = record
	} else {
		record.Status = models.PresenceStatusOnline
		record.Version++
	}
	record.LastSeen = time.Now()
	record.SessionCount++

	if metadata != nil {
		if activity, ok := metadata["activity"].(string); ok {
			record.Activity = activity
		}
	}

	p.recordChangeUnsafe(userID, record)
	p.dirty[userID] = record
	p.mu.Unlock()
}

// markOffline 标记用户离线（最后一个会话断开时调用）
func (p *PresenceTracker) markOffline(userID string) {
	p.mu.Lock()

	record, exists := p.records[userID]
	if !exists {
		p.mu.Unlock()
		return
	}

	record.Status = models.PresenceStatusOffline
	record.Version++
	record.SessionCount = 0

	// 离开的用户记入所有所在房间的增量
	for roomID := range p.userRooms[userID] {
		delta := p.pendingDeltaUnsafe(roomID)
		delta.Left = append(delta.Left, userID)
	}

	delete(p.records, userID)
	delete(p.dirty, userID)
	p.mu.Unlock()

	p.syncOffline(userID)
}

// touch 刷新用户活跃时间（心跳应答时调用）
func (p *PresenceTracker) touch(userID string) {
	p.mu.Lock()
	if record, exists := p.records[userID]; exists {
		record.Touch(time.Now())
		p.dirty[userID] = record
	}
	p.mu.Unlock()
}

// UpdateStatus 更新用户状态与活动描述
// version 低于或等于当前版本时丢弃（过期写保护）
func (p *PresenceTracker) UpdateStatus(userID string, status models.PresenceStatus, activity string, version int64) error {
	if !status.IsValid() {
		return errorx.NewError(models.ErrTypeMissingField, "status")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	record, exists := p.records[userID]
	if !exists {
		return errorx.NewError(models.ErrTypeUserOffline)
	}

	if version > 0 && version <= record.Version {
		p.hub.logger.DebugKV("丢弃过期的状态写入",
			"user_id", userID,
			"stale_version", version,
			"current_version", record.Version,
		)
		return nil
	}

	record.Status = status
	record.Activity = activity
	record.Version++
	record.LastSeen = time.Now()

	p.recordChangeUnsafe(userID, record)
	p.dirty[userID] = record
	return nil
}

// StartFocusSession 开启专注时段，到期自动回到在线状态
func (p *PresenceTracker) StartFocusSession(userID string, duration time.Duration) error {
	return p.startTimedStatus(userID, models.PresenceStatusFocused,
		mathx.IfNotZero(duration, p.hub.config.Presence.FocusDefault))
}

// StartBreak 开启休息时段，到期自动回到在线状态
func (p *PresenceTracker) StartBreak(userID string, duration time.Duration) error {
	return p.startTimedStatus(userID, models.PresenceStatusBreak,
		mathx.IfNotZero(duration, p.hub.config.Presence.BreakDefault))
}

// startTimedStatus 进入带截止时间的状态
func (p *PresenceTracker) startTimedStatus(userID string, status models.PresenceStatus, duration time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	record, exists := p.records[userID]
	if !exists {
		return errorx.NewError(models.ErrTypeUserOffline)
	}

	record.Status = status
	record.Version++
	record.LastSeen = time.Now()
	record.FocusUntil = time.Now().Add(duration)

	p.recordChangeUnsafe(userID, record)
	p.dirty[userID] = record
	return nil
}

// ============================================================================
// 房间成员管理
// ============================================================================

// joinRoom 用户加入房间（订阅房间主题时联动）
func (p *PresenceTracker) joinRoom(userID, roomID string) {
	p.mu.Lock()

	if _, exists := p.rooms[roomID]; !exists {
		p.rooms[roomID] = make(map[string]struct{})
	}
	if _, member := p.rooms[roomID][userID]; member {
		p.mu.Unlock()
		return
	}
	p.rooms[roomID][userID] = struct{}{}

	if _, exists := p.userRooms[userID]; !exists {
		p.userRooms[userID] = make(map[string]struct{})
	}
	p.userRooms[userID][roomID] = struct{}{}

	if record, exists := p.records[userID]; exists {
		record.RoomID = roomID
		delta := p.pendingDeltaUnsafe(roomID)
		delta.Joined = append(delta.Joined, models.PresenceChange{
			UserID:   userID,
			Status:   record.Status,
			Activity: record.Activity,
			Version:  record.Version,
		})
		p.dirty[userID] = record
	}
	p.mu.Unlock()

	p.syncRoomMembership(userID, roomID, true)
}

// leaveRoom 用户离开房间
func (p *PresenceTracker) leaveRoom(userID, roomID string) {
	p.mu.Lock()

	if members, exists := p.rooms[roomID]; exists {
		delete(members, userID)
		if len(members) == 0 {
			delete(p.rooms, roomID)
		}
	}
	if userRooms, exists := p.userRooms[userID]; exists {
		delete(userRooms, roomID)
		if len(userRooms) == 0 {
			delete(p.userRooms, userID)
		}
	}

	delta := p.pendingDeltaUnsafe(roomID)
	delta.Left = append(delta.Left, userID)
	p.mu.Unlock()

	p.syncRoomMembership(userID, roomID, false)
}

// GetRoomSnapshot 获取房间在线状态全量快照（新成员加入时使用）
func (p *PresenceTracker) GetRoomSnapshot(roomID string) *models.PresenceSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	members := make([]*PresenceRecord, 0, len(p.rooms[roomID]))
	for userID := range p.rooms[roomID] {
		if record, exists := p.records[userID]; exists {
			clone := *record
			members = append(members, &clone)
		}
	}

	return &models.PresenceSnapshot{
		RoomID:  roomID,
		Members: members,
		TakenAt: time.Now(),
	}
}

// GetPresence 获取用户当前在线状态记录的副本
func (p *PresenceTracker) GetPresence(userID string) (*PresenceRecord, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	record, exists := p.records[userID]
	if !exists {
		return nil, false
	}
	clone := *record
	return &clone, true
}

// ============================================================================
// 定时任务（事件循环调用）
// ============================================================================

// sweep 将超过清扫阈值未活跃的用户转为离线
func (p *PresenceTracker) sweep() {
	threshold := p.hub.config.PresenceSweepInterval()
	now := time.Now()

	p.mu.RLock()
	stale := make([]string, 0)
	for userID, record := range p.records {
		if record.Status.IsActive() && record.IsStale(threshold, now) {
			stale = append(stale, userID)
		}
	}
	p.mu.RUnlock()

	for _, userID := range stale {
		p.markOffline(userID)
	}

	if len(stale) > 0 {
		p.hub.logger.InfoKV("在线状态清扫完成",
			"swept", len(stale),
			"node_id", p.hub.nodeID,
		)
	}
}

// expireFocusSessions 将超过截止时间的专注/休息状态回退到在线
func (p *PresenceTracker) expireFocusSessions() {
	now := time.Now()

	p.mu.Lock()
	for userID, record := range p.records {
		if record.Status != models.PresenceStatusFocused && record.Status != models.PresenceStatusBreak {
			continue
		}
		if record.FocusUntil.IsZero() || record.FocusUntil.After(now) {
			continue
		}

		record.Status = models.PresenceStatusOnline
		record.FocusUntil = time.Time{}
		record.Version++

		p.recordChangeUnsafe(userID, record)
		p.dirty[userID] = record
	}
	p.mu.Unlock()
}

// flushDeltas 刷新待广播的房间增量并批量落库
// 同一房间一个周期内的全部变化合并为一条增量
func (p *PresenceTracker) flushDeltas() {
	p.mu.Lock()
	deltas := p.pending
	dirtyRecords := p.dirty
	p.pending = make(map[string]*PresenceDelta)
	p.dirty = make(map[string]*PresenceRecord)
	p.mu.Unlock()

	for roomID, delta := range deltas {
		if delta.IsEmpty() {
			continue
		}
		delta.FlushedAt = time.Now()
		p.broadcastDelta(roomID, delta)
		p.hub.publishPresenceDelta(delta)
	}

	p.flushDirtyRecords(dirtyRecords)
}

// broadcastDelta 向房间主题的全部本地订阅者广播增量
func (p *PresenceTracker) broadcastDelta(roomID string, delta *PresenceDelta) {
	body, err := json.Marshal(delta)
	if err != nil {
		p.hub.logger.ErrorKV("房间增量序列化失败", "room_id", roomID, "error", err)
		return
	}

	destination := string(models.DestinationTopic) + ".room." + roomID
	frame := NewFrame(FrameTypeMessage).
		SetID(p.hub.idGenerator.GenerateRequestID()).
		SetDestination(destination).
		SetBody(string(body)).
		SetHeader("kind", "presence_delta")

	subscribers := syncx.WithRLockReturnValue(&p.hub.mutex, func() []*Session {
		return CopySessionsFromMap(p.hub.topicSessions[destination])
	})

	for _, session := range subscribers {
		_ = p.hub.enqueueToSession(session, frame.Clone())
	}
}

// ============================================================================
// Redis 同步
// ============================================================================

// flushDirtyRecords 批量写入变更记录（经 redis 熔断器）
func (p *PresenceTracker) flushDirtyRecords(records map[string]*PresenceRecord) {
	if p.hub.presenceRepo == nil || len(records) == 0 {
		return
	}

	syncx.Go(p.hub.ctx).
		WithTimeout(3 * time.Second).
		OnError(func(err error) {
			p.hub.logger.WarnKV("批量同步在线状态失败",
				"count", len(records),
				"error", err,
			)
		}).
		ExecWithContext(func(ctx context.Context) error {
			return p.hub.breakers[BreakerRedis].Do(func() error {
				return p.hub.presenceRepo.BatchUpsert(ctx, records)
			})
		})
}

// syncOffline 同步离线状态到 Redis
func (p *PresenceTracker) syncOffline(userID string) {
	if p.hub.presenceRepo == nil {
		return
	}

	syncx.Go(p.hub.ctx).
		WithTimeout(3 * time.Second).
		OnError(func(err error) {
			p.hub.logger.WarnKV("同步离线状态失败", "user_id", userID, "error", err)
		}).
		ExecWithContext(func(ctx context.Context) error {
			return p.hub.breakers[BreakerRedis].Do(func() error {
				return p.hub.presenceRepo.SetOffline(ctx, userID)
			})
		})
}

// syncRoomMembership 同步房间成员变化到 Redis
func (p *PresenceTracker) syncRoomMembership(userID, roomID string, joined bool) {
	if p.hub.presenceRepo == nil {
		return
	}

	syncx.Go(p.hub.ctx).
		WithTimeout(3 * time.Second).
		OnError(func(err error) {
			p.hub.logger.WarnKV("同步房间成员变化失败",
				"user_id", userID,
				"room_id", roomID,
				"joined", joined,
				"error", err,
			)
		}).
		ExecWithContext(func(ctx context.Context) error {
			return p.hub.breakers[BreakerRedis].Do(func() error {
				if joined {
					return p.hub.presenceRepo.JoinRoom(ctx, roomID, userID)
				}
				return p.hub.presenceRepo.LeaveRoom(ctx, roomID, userID)
			})
		})
}

// ============================================================================
// 内部辅助方法
// ============================================================================

// pendingDeltaUnsafe 获取或创建房间的待刷新增量（须持锁调用）
func (p *PresenceTracker) pendingDeltaUnsafe(roomID string) *PresenceDelta {
	delta, exists := p.pending[roomID]
	if !exists {
		delta = &PresenceDelta{RoomID: roomID}
		p.pending[roomID] = delta
	}
	return delta
}

// recordChangeUnsafe 将状态变化记入用户所在全部房间的增量（须持锁调用）
func (p *PresenceTracker) recordChangeUnsafe(userID string, record *PresenceRecord) {
	change := models.PresenceChange{
		UserID:   userID,
		Status:   record.Status,
		Activity: record.Activity,
		Version:  record.Version,
	}

	for roomID := range p.userRooms[userID] {
		delta := p.pendingDeltaUnsafe(roomID)
		delta.Changed = append(delta.Changed, change)
	}
}
