/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\hub\distributed.go
 * @Description: Hub 分布式功能 - 跨节点帧中继与在线状态扇出
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package hub

import (
	"context"
	"fmt"
	"time"

	"github.com/kamalyes/go-toolbox/pkg/json"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
	"github.com/kamalyes/go-wsession/models"
)

// 跨节点频道
const (
	frameChannelName    = "wsession:frames"   // 帧中继频道（topic/queue/user 跨节点分发）
	presenceChannelName = "wsession:presence" // 在线状态增量扇出频道
)

// frameEnvelope 跨节点帧信封
type frameEnvelope struct {
	NodeID    string    `json:"node_id"`   // 来源节点
	Frame     *Frame    `json:"frame"`     // 中继的帧
	Timestamp time.Time `json:"timestamp"` // 发出时间
}

// presenceEnvelope 跨节点在线状态增量信封
type presenceEnvelope struct {
	NodeID    string          `json:"node_id"`   // 来源节点
	Delta     *PresenceDelta  `json:"delta"`     // 房间增量
	Timestamp time.Time       `json:"timestamp"` // 发出时间
}

// ============================================================================
// 跨节点帧中继
// ============================================================================

// relayFrameToNodes 将帧中继到其他节点
// 返回是否已发布；单机模式或帧本身来自中继时不再转发（防止回环）
func (h *Hub) relayFrameToNodes(ctx context.Context, frame *Frame) bool {
	if h.pubsub == nil {
		return false
	}
	if frame.Headers["relay_node"] != "" {
		return false
	}

	envelope := &frameEnvelope{
		NodeID:    h.nodeID,
		Frame:     frame,
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		h.logger.ErrorKV("跨节点帧信封序列化失败", "error", err, "frame_id", frame.ID)
		return false
	}

	if err := h.pubsub.Publish(ctx, frameChannelName, string(data)); err != nil {
		h.logger.ErrorKV("跨节点帧发布失败",
			"error", err,
			"frame_id", frame.ID,
			"destination", frame.Destination,
		)
		return false
	}

	h.logger.DebugKV("帧已中继到其他节点",
		"frame_id", frame.ID,
		"destination", frame.Destination,
	)
	return true
}

// SubscribeNodeChannel 订阅跨节点帧中继频道
func (h *Hub) SubscribeNodeChannel(ctx context.Context) error {
	if h.pubsub == nil {
		return models.ErrPubSubNotSet
	}

	h.logger.InfoKV("订阅帧中继频道", "channel", frameChannelName)

	// 使用 EventLoop 包装订阅过程，提供 panic 恢复和优雅关闭
	syncx.Go(ctx).
		OnPanic(func(r any) {
			h.logger.ErrorKV("帧中继订阅 panic", "panic", r, "channel", frameChannelName)
		}).
		Exec(func() {
			_, err := h.pubsub.Subscribe([]string{frameChannelName}, func(subCtx context.Context, ch string, msg string) error {
				var envelope frameEnvelope
				if err := json.Unmarshal([]byte(msg), &envelope); err != nil {
					h.logger.ErrorKV("解析跨节点帧信封失败", "error", err)
					return err
				}

				// 使用订阅回调提供的 subCtx，而不是外层的 ctx
				return h.handleRelayedFrame(subCtx, &envelope)
			})

			if err != nil {
				h.logger.ErrorKV("订阅帧中继频道失败", "error", err, "channel", frameChannelName)
			}

			// 使用 EventLoop 保持订阅活跃，直到 context 取消
			syncx.NewEventLoop(ctx).
				OnShutdown(func() {
					h.logger.InfoKV("帧中继订阅已停止", "channel", frameChannelName)
				}).
				Run()
		})

	return nil
}

// handleRelayedFrame 处理从其他节点中继来的帧
// 标记中继来源后仅做本地分发，不再二次转发
func (h *Hub) handleRelayedFrame(ctx context.Context, envelope *frameEnvelope) error {
	if envelope == nil || envelope.Frame == nil {
		return fmt.Errorf("relayed frame is nil")
	}

	// 忽略自己发出的中继
	if envelope.NodeID == h.nodeID {
		return nil
	}

	frame := envelope.Frame
	frame.SetHeader("relay_node", envelope.NodeID)

	dest, ok := ParseDestination(frame.Destination)
	if !ok {
		h.logger.WarnKV("中继帧目的地非法",
			"destination", frame.Destination,
			"from_node", envelope.NodeID,
		)
		return fmt.Errorf("invalid relayed destination: %s", frame.Destination)
	}

	handler, exists := h.handlers[dest.Kind]
	if !exists {
		return fmt.Errorf("no handler for relayed destination kind: %s", dest.Kind)
	}

	delivered, err := handler(ctx, dest, frame)
	if err != nil {
		return err
	}

	h.logger.DebugKV("中继帧已本地分发",
		"frame_id", frame.ID,
		"from_node", envelope.NodeID,
		"delivered", delivered,
	)
	return nil
}

// ============================================================================
// 跨节点在线状态扇出
// ============================================================================

// publishPresenceDelta 将房间增量发布到其他节点
func (h *Hub) publishPresenceDelta(delta *PresenceDelta) {
	if h.pubsub == nil || delta == nil || delta.IsEmpty() {
		return
	}

	envelope := &presenceEnvelope{
		NodeID:    h.nodeID,
		Delta:     delta,
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		h.logger.ErrorKV("在线状态信封序列化失败", "error", err, "room_id", delta.RoomID)
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, 2*time.Second)
	defer cancel()

	if err := h.pubsub.Publish(ctx, presenceChannelName, string(data)); err != nil {
		h.logger.WarnKV("在线状态增量发布失败",
			"error", err,
			"room_id", delta.RoomID,
		)
	}
}

// SubscribePresenceChannel 订阅跨节点在线状态频道
func (h *Hub) SubscribePresenceChannel(ctx context.Context) error {
	if h.pubsub == nil {
		return models.ErrPubSubNotSet
	}

	h.logger.InfoKV("订阅在线状态频道", "channel", presenceChannelName)

	syncx.Go(ctx).
		OnPanic(func(r any) {
			h.logger.ErrorKV("在线状态订阅 panic", "panic", r, "channel", presenceChannelName)
		}).
		Exec(func() {
			_, err := h.pubsub.Subscribe([]string{presenceChannelName}, func(subCtx context.Context, ch string, msg string) error {
				var envelope presenceEnvelope
				if err := json.Unmarshal([]byte(msg), &envelope); err != nil {
					h.logger.ErrorKV("解析在线状态信封失败", "error", err)
					return err
				}

				// 忽略自己发出的增量
				if envelope.NodeID == h.nodeID || envelope.Delta == nil {
					return nil
				}

				// 其他节点的房间变化广播给本地订阅者
				h.presence.broadcastDelta(envelope.Delta.RoomID, envelope.Delta)
				return nil
			})

			if err != nil {
				h.logger.ErrorKV("订阅在线状态频道失败", "error", err, "channel", presenceChannelName)
			}

			syncx.NewEventLoop(ctx).
				OnShutdown(func() {
					h.logger.InfoKV("在线状态订阅已停止", "channel", presenceChannelName)
				}).
				Run()
		})

	return nil
}
