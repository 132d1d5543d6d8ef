/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\models\frame.go
 * @Description: 协议帧与目的地定义
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package models

import (
	"strings"
	"time"

	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// FrameType 协议帧类型
type FrameType string

const (
	FrameTypeConnect          FrameType = "CONNECT"            // 客户端发起连接（可携带恢复令牌）
	FrameTypeConnected        FrameType = "CONNECTED"          // 服务端确认连接
	FrameTypeSubscribe        FrameType = "SUBSCRIBE"          // 订阅目的地
	FrameTypeSend             FrameType = "SEND"               // 客户端发送业务消息
	FrameTypeAck              FrameType = "ACK"                // 累计确认（确认 seq 及之前全部）
	FrameTypeMessage          FrameType = "MESSAGE"            // 服务端下发业务消息
	FrameTypePing             FrameType = "PING"               // 心跳探测
	FrameTypePong             FrameType = "PONG"               // 心跳应答
	FrameTypeError            FrameType = "ERROR"              // 错误通知
	FrameTypeSessionTakenOver FrameType = "SESSION_TAKEN_OVER" // 会话被新连接接管
)

// String 实现Stringer接口
func (t FrameType) String() string {
	return string(t)
}

// IsValid 检查帧类型是否有效
func (t FrameType) IsValid() bool {
	return FrameTypeValidator.IsValid(t)
}

// RequiresDestination 检查该帧类型是否必须携带目的地
func (t FrameType) RequiresDestination() bool {
	switch t {
	case FrameTypeSubscribe, FrameTypeSend, FrameTypeMessage:
		return true
	default:
		return false
	}
}

// RequiresSeq 检查该帧类型是否必须携带序列号
func (t FrameType) RequiresSeq() bool {
	switch t {
	case FrameTypeAck, FrameTypeMessage:
		return true
	default:
		return false
	}
}

// DestinationKind 目的地类别
type DestinationKind string

const (
	DestinationTopic DestinationKind = "topic" // 主题广播（所有订阅者）
	DestinationQueue DestinationKind = "queue" // 队列（单消费者）
	DestinationUser  DestinationKind = "user"  // 用户定向（该用户全部会话）
)

// Destination 已解析的目的地
type Destination struct {
	Kind DestinationKind `json:"kind"` // 目的地类别
	Name string          `json:"name"` // 类别后的标识，如 topic.room.42 中的 room.42
	Raw  string          `json:"raw"`  // 原始字符串
}

// ParseDestination 解析目的地字符串
// 合法形式: topic.<name> / queue.<name> / user.<name>
func ParseDestination(raw string) (*Destination, bool) {
	idx := strings.IndexByte(raw, '.')
	if idx <= 0 || idx == len(raw)-1 {
		return nil, false
	}

	kind := DestinationKind(raw[:idx])
	switch kind {
	case DestinationTopic, DestinationQueue, DestinationUser:
		return &Destination{Kind: kind, Name: raw[idx+1:], Raw: raw}, true
	default:
		return nil, false
	}
}

// Frame 协议帧
// 所有传输（WebSocket / 长轮询）共用同一帧结构
type Frame struct {
	Type        FrameType         `json:"type"`                   // 帧类型
	ID          string            `json:"id,omitempty"`           // 帧唯一ID
	SessionID   string            `json:"session_id,omitempty"`   // 所属会话ID
	Destination string            `json:"destination,omitempty"`  // 目的地
	Seq         int64             `json:"seq,omitempty"`          // 会话内序列号（MESSAGE/ACK）
	Body        string            `json:"body,omitempty"`         // 业务负载
	Headers     map[string]string `json:"headers,omitempty"`      // 扩展头
	ErrorCode   int               `json:"error_code,omitempty"`   // 错误码（ERROR帧）
	ErrorDetail string            `json:"error_detail,omitempty"` // 错误描述（ERROR帧）
	Timestamp   time.Time         `json:"timestamp,omitempty"`    // 帧生成时间
}

// NewFrame 创建指定类型的帧，自动填充时间戳
func NewFrame(frameType FrameType) *Frame {
	return &Frame{
		Type:      frameType,
		Timestamp: time.Now(),
	}
}

// SetID 设置帧ID
func (f *Frame) SetID(id string) *Frame {
	f.ID = id
	return f
}

// SetSessionID 设置会话ID
func (f *Frame) SetSessionID(sessionID string) *Frame {
	f.SessionID = sessionID
	return f
}

// SetDestination 设置目的地
func (f *Frame) SetDestination(destination string) *Frame {
	f.Destination = destination
	return f
}

// SetSeq 设置序列号
func (f *Frame) SetSeq(seq int64) *Frame {
	f.Seq = seq
	return f
}

// SetBody 设置业务负载
func (f *Frame) SetBody(body string) *Frame {
	f.Body = body
	return f
}

// SetHeader 设置单个扩展头
func (f *Frame) SetHeader(key, value string) *Frame {
	if f.Headers == nil {
		f.Headers = make(map[string]string)
	}
	f.Headers[key] = value
	return f
}

// SetError 设置错误信息（ERROR帧专用）
func (f *Frame) SetError(code int, detail string) *Frame {
	f.ErrorCode = code
	f.ErrorDetail = detail
	return f
}

// Clone 深拷贝帧
func (f *Frame) Clone() *Frame {
	var frame Frame
	syncx.DeepCopy(&frame, f)
	return &frame
}
