/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\protocol\codec.go
 * @Description: 协议帧编解码与校验
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package protocol

import (
	"github.com/kamalyes/go-toolbox/pkg/errorx"
	"github.com/kamalyes/go-toolbox/pkg/json"
	"github.com/kamalyes/go-wsession/models"
)

// Codec 协议帧编解码器
// maxFrameSize <= 0 时不限制帧大小
type Codec struct {
	maxFrameSize int64 // 单帧最大字节数
}

// NewCodec 创建编解码器
func NewCodec(maxFrameSize int64) *Codec {
	return &Codec{maxFrameSize: maxFrameSize}
}

// Encode 将帧编码为JSON字节流
// 合法帧的编码永远成功
func (c *Codec) Encode(frame *models.Frame) ([]byte, error) {
	if frame == nil {
		return nil, models.ErrInvalidFrame
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, errorx.NewError(models.ErrTypeInvalidFrame)
	}
	return data, nil
}

// Decode 解码并校验一个帧
// 超限、非法JSON、未知帧类型、缺失字段、非法目的地均返回协议错误
func (c *Codec) Decode(data []byte) (*models.Frame, error) {
	if c.maxFrameSize > 0 && int64(len(data)) > c.maxFrameSize {
		return nil, models.ErrFrameTooLarge
	}

	var frame models.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, models.ErrInvalidFrame
	}

	if err := c.Validate(&frame); err != nil {
		return nil, err
	}
	return &frame, nil
}

// Validate 校验帧的类型与必填字段
func (c *Codec) Validate(frame *models.Frame) error {
	if !frame.Type.IsValid() {
		return errorx.NewError(models.ErrTypeUnknownFrameType, frame.Type.String())
	}

	if frame.Type.RequiresDestination() {
		if frame.Destination == "" {
			return errorx.NewError(models.ErrTypeMissingField, "destination")
		}
		if _, ok := models.ParseDestination(frame.Destination); !ok {
			return errorx.NewError(models.ErrTypeInvalidDestination, frame.Destination)
		}
	}

	if frame.Type.RequiresSeq() && frame.Seq <= 0 {
		return errorx.NewError(models.ErrTypeMissingField, "seq")
	}

	return nil
}

// ============================================================================
// 常用帧构造
// ============================================================================

// NewConnectedFrame 构造连接确认帧
func NewConnectedFrame(sessionID, resumeToken string) *models.Frame {
	return models.NewFrame(models.FrameTypeConnected).
		SetSessionID(sessionID).
		SetHeader("resume_token", resumeToken)
}

// NewMessageFrame 构造下行业务消息帧
func NewMessageFrame(sessionID, destination, body string, seq int64) *models.Frame {
	return models.NewFrame(models.FrameTypeMessage).
		SetSessionID(sessionID).
		SetDestination(destination).
		SetBody(body).
		SetSeq(seq)
}

// NewAckFrame 构造累计确认帧
func NewAckFrame(sessionID string, seq int64) *models.Frame {
	return models.NewFrame(models.FrameTypeAck).
		SetSessionID(sessionID).
		SetSeq(seq)
}

// NewErrorFrame 构造错误帧
func NewErrorFrame(sessionID string, code int, detail string) *models.Frame {
	return models.NewFrame(models.FrameTypeError).
		SetSessionID(sessionID).
		SetError(code, detail)
}

// NewTakenOverFrame 构造会话接管通知帧
func NewTakenOverFrame(sessionID, newSessionID string) *models.Frame {
	return models.NewFrame(models.FrameTypeSessionTakenOver).
		SetSessionID(sessionID).
		SetHeader("new_session_id", newSessionID)
}

// NewPingFrame 构造心跳探测帧
func NewPingFrame(sessionID string) *models.Frame {
	return models.NewFrame(models.FrameTypePing).SetSessionID(sessionID)
}

// NewPongFrame 构造心跳应答帧
func NewPongFrame(sessionID string) *models.Frame {
	return models.NewFrame(models.FrameTypePong).SetSessionID(sessionID)
}
