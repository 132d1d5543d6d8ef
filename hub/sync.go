/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\hub\sync.go
 * @Description: 断线恢复与消息重放（冲突检测 + 快照降级）
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package hub

import (
	"context"
	"strconv"
	"time"

	"github.com/kamalyes/go-toolbox/pkg/errorx"
	"github.com/kamalyes/go-toolbox/pkg/json"
	"github.com/kamalyes/go-wsession/models"
)

// ResumeSession 恢复断线会话
// 按恢复令牌定位原发件箱，确认客户端游标之前的消息，按序重放之后的未确认消息；
// 重放窗口已淘汰时降级为归档库全量快照
func (h *Hub) ResumeSession(newSession *Session, resumeToken string, lastAckedSeq int64) error {
	h.mutex.Lock()

	oldSessionID, exists := h.resumeTokens[resumeToken]
	if !exists {
		h.mutex.Unlock()
		return models.ErrInvalidResumeToken
	}

	outbox, exists := h.outboxes[oldSessionID]
	if !exists {
		delete(h.resumeTokens, resumeToken)
		h.mutex.Unlock()
		return models.ErrInvalidResumeToken
	}

	// 冲突检测：客户端游标超前于服务端已分配的最大序列号
	serverTail := outbox.TailSeq()
	if lastAckedSeq > serverTail {
		conflict := &SyncConflict{
			SessionID:   newSession.ID,
			ClientSeq:   lastAckedSeq,
			ServerTail:  serverTail,
			ServerAcked: outbox.AckedSeq(),
			DetectedAt:  time.Now(),
		}
		h.mutex.Unlock()

		h.logger.WarnKV("恢复游标冲突",
			"session_id", newSession.ID,
			"client_seq", conflict.ClientSeq,
			"server_tail", conflict.ServerTail,
		)
		return errorx.NewError(models.ErrTypeSequenceConflict, lastAckedSeq, serverTail)
	}

	// 发件箱移交给新会话
	if oldSessionID != newSession.ID {
		// 新会话注册时已创建的空发件箱被原发件箱取代
		delete(h.outboxes, oldSessionID)
		outbox.Rebind(newSession.ID)
		h.outboxes[newSession.ID] = outbox
	}
	newSession.ResumeToken = resumeToken
	newSession.LastAckedSeq = lastAckedSeq
	h.resumeTokens[resumeToken] = newSession.ID
	h.mutex.Unlock()

	// 确认客户端游标之前的全部消息
	if lastAckedSeq > 0 {
		if acked := outbox.Ack(lastAckedSeq); acked > 0 {
			h.framesAcked.Add(int64(acked))
		}
	}

	// 按序重放未确认消息
	replay, err := outbox.ReplayFrom(lastAckedSeq + 1)
	if err != nil {
		if models.IsCapacityError(err) {
			// 重放窗口不再覆盖客户端游标，降级为归档库全量快照
			return h.sendSnapshotFallback(newSession, lastAckedSeq)
		}
		return err
	}

	for _, msg := range replay {
		msg.MarkInFlight()
		if !h.sendFrameToSession(newSession, msg.Frame) {
			break
		}
	}

	h.replays.Add(1)
	h.logger.InfoKV("会话恢复完成",
		"session_id", newSession.ID,
		"resume_token", resumeToken,
		"last_acked_seq", lastAckedSeq,
		"replayed", len(replay),
	)
	return nil
}

// sendSnapshotFallback 重放窗口淘汰后的快照降级
// 从归档库取出客户端游标之后的帧，合并为一条快照帧下发
func (h *Hub) sendSnapshotFallback(session *Session, sinceSeq int64) error {
	if h.archiveRepo == nil {
		return models.ErrArchiveRepoNotSet
	}

	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	defer cancel()

	var records []*models.OutboxArchive
	err := h.breakers[BreakerDatabase].Do(func() error {
		var queryErr error
		records, queryErr = h.archiveRepo.Query(ctx, &ArchiveFilter{
			SessionID: session.ID,
			SinceSeq:  sinceSeq,
		})
		return queryErr
	})
	if err != nil {
		h.logger.ErrorKV("归档快照查询失败",
			"session_id", session.ID,
			"since_seq", sinceSeq,
			"error", err,
		)
		return err
	}

	payloads := make([]string, 0, len(records))
	for _, record := range records {
		payloads = append(payloads, record.Payload)
	}

	body, err := json.Marshal(payloads)
	if err != nil {
		return errorx.NewError(models.ErrTypeInvalidFrame)
	}

	frame := NewFrame(FrameTypeMessage).
		SetID(h.idGenerator.GenerateRequestID()).
		SetSessionID(session.ID).
		SetBody(string(body)).
		SetHeader("kind", "snapshot").
		SetHeader("since_seq", strconv.FormatInt(sinceSeq, 10))

	h.sendFrameToSession(session, frame)

	h.replays.Add(1)
	h.logger.InfoKV("快照降级下发完成",
		"session_id", session.ID,
		"since_seq", sinceSeq,
		"frames", len(records),
	)
	return nil
}
