/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\models\queued.go
 * @Description: 发件箱消息模型
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package models

import (
	"time"

	"github.com/kamalyes/go-toolbox/pkg/json"
)

// QueuedMessage 发件箱中的一条消息
// Seq 在会话内严格递增且无空洞，从1开始
type QueuedMessage struct {
	Seq        int64       `json:"seq"`                   // 会话内序列号
	SessionID  string      `json:"session_id"`            // 所属会话ID
	Frame      *Frame      `json:"frame"`                 // 待投递帧
	State      OutboxState `json:"state"`                 // 消息状态
	Attempts   int         `json:"attempts"`              // 已投递次数
	EnqueuedAt time.Time   `json:"enqueued_at"`           // 入队时间
	LastSentAt time.Time   `json:"last_sent_at"`          // 最后投递时间
	FailReason string      `json:"fail_reason,omitempty"` // 失败原因
}

// MarkInFlight 标记为已投递待确认
func (m *QueuedMessage) MarkInFlight() {
	m.State = OutboxStateInFlight
	m.Attempts++
	m.LastSentAt = time.Now()
}

// MarkPending 重置为待投递（投递超时后重新入队）
func (m *QueuedMessage) MarkPending() {
	m.State = OutboxStatePending
}

// MarkAcked 标记为已确认
func (m *QueuedMessage) MarkAcked() {
	m.State = OutboxStateAcked
}

// MarkFailed 标记为投递失败
func (m *QueuedMessage) MarkFailed(reason string) {
	m.State = OutboxStateFailed
	m.FailReason = reason
}

// OutboxArchive 发件箱归档记录（数据库持久化）
// 重放窗口之外被淘汰的消息与投递失败的消息落库，供快照重建与审计
type OutboxArchive struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`                 // 自增主键
	SessionID  string    `json:"session_id" gorm:"type:varchar(64);index:idx_session_seq"` // 会话ID
	UserID     string    `json:"user_id" gorm:"type:varchar(64);index"`              // 用户ID
	Seq        int64     `json:"seq" gorm:"index:idx_session_seq"`                   // 会话内序列号
	FrameType  string    `json:"frame_type" gorm:"type:varchar(32)"`                 // 帧类型
	Payload    string    `json:"payload" gorm:"type:text"`                           // 序列化后的帧
	State      string    `json:"state" gorm:"type:varchar(16);index"`                // 归档时的状态
	Attempts   int       `json:"attempts"`                                           // 已投递次数
	FailReason string    `json:"fail_reason" gorm:"type:varchar(255)"`               // 失败原因
	EnqueuedAt time.Time `json:"enqueued_at"`                                        // 原入队时间
	ArchivedAt time.Time `json:"archived_at" gorm:"index"`                           // 归档时间
}

// TableName 指定归档表名
func (OutboxArchive) TableName() string {
	return "wsession_outbox_archive"
}

// NewOutboxArchive 由发件箱消息构造归档记录
func NewOutboxArchive(msg *QueuedMessage) *OutboxArchive {
	record := &OutboxArchive{
		SessionID:  msg.SessionID,
		Seq:        msg.Seq,
		State:      string(msg.State),
		Attempts:   msg.Attempts,
		FailReason: msg.FailReason,
		EnqueuedAt: msg.EnqueuedAt,
		ArchivedAt: time.Now(),
	}
	if msg.Frame != nil {
		record.FrameType = string(msg.Frame.Type)
		if payload, err := json.Marshal(msg.Frame); err == nil {
			record.Payload = string(payload)
		}
	}
	return record
}
