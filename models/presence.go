/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\models\presence.go
 * @Description: 在线状态与房间增量模型
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package models

import (
	"time"
)

// PresenceRecord 用户在线状态记录
// Version 单调递增，低于或等于当前版本的写入视为过期写并被丢弃
type PresenceRecord struct {
	UserID       string         `json:"user_id"`                 // 用户ID
	Status       PresenceStatus `json:"status"`                  // 在线状态
	Activity     string         `json:"activity,omitempty"`      // 当前活动描述
	RoomID       string         `json:"room_id,omitempty"`       // 所在房间ID
	Version      int64          `json:"version"`                 // 版本号
	LastSeen     time.Time      `json:"last_seen"`               // 最后活跃时间
	FocusUntil   time.Time      `json:"focus_until,omitempty"`   // 专注/休息截止时间
	NodeID       string         `json:"node_id,omitempty"`       // 所在节点ID
	SessionCount int            `json:"session_count,omitempty"` // 活跃会话数
}

// IsStale 检查记录在给定阈值内是否已沉默
func (p *PresenceRecord) IsStale(threshold time.Duration, now time.Time) bool {
	return now.Sub(p.LastSeen) > threshold
}

// Touch 刷新最后活跃时间并递增版本
func (p *PresenceRecord) Touch(now time.Time) {
	p.LastSeen = now
	p.Version++
}

// PresenceChange 单个用户的状态变化
type PresenceChange struct {
	UserID   string         `json:"user_id"`            // 用户ID
	Status   PresenceStatus `json:"status"`             // 变化后的状态
	Activity string         `json:"activity,omitempty"` // 变化后的活动描述
	Version  int64          `json:"version"`            // 变化后的版本号
}

// PresenceDelta 房间在线状态增量
// 一个刷新周期内同一房间的全部变化合并为一条增量广播
type PresenceDelta struct {
	RoomID    string           `json:"room_id"`           // 房间ID
	Joined    []PresenceChange `json:"joined,omitempty"`  // 加入的用户
	Left      []string         `json:"left,omitempty"`    // 离开的用户ID
	Changed   []PresenceChange `json:"changed,omitempty"` // 状态变化的用户
	FlushedAt time.Time        `json:"flushed_at"`        // 刷新时间
}

// IsEmpty 检查增量是否为空
func (d *PresenceDelta) IsEmpty() bool {
	return len(d.Joined) == 0 && len(d.Left) == 0 && len(d.Changed) == 0
}

// PresenceSnapshot 房间在线状态全量快照
type PresenceSnapshot struct {
	RoomID  string            `json:"room_id"` // 房间ID
	Members []*PresenceRecord `json:"members"` // 房间内全部成员状态
	TakenAt time.Time         `json:"taken_at"` // 快照时间
}
