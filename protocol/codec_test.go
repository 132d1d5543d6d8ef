/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\protocol\codec_test.go
 * @Description: 协议帧编解码测试
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package protocol

import (
	"strings"
	"testing"

	"github.com/kamalyes/go-wsession/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCodecRoundTrip 测试帧编解码
func TestCodecRoundTrip(t *testing.T) {
	codec := NewCodec(0)

	t.Run("业务消息帧往返", func(t *testing.T) {
		frame := NewMessageFrame("sess-1", "topic.room.42", "hello", 7)
		data, err := codec.Encode(frame)
		require.NoError(t, err)

		decoded, err := codec.Decode(data)
		require.NoError(t, err)
		assert.Equal(t, models.FrameTypeMessage, decoded.Type)
		assert.Equal(t, "topic.room.42", decoded.Destination)
		assert.Equal(t, int64(7), decoded.Seq)
		assert.Equal(t, "hello", decoded.Body)
	})

	t.Run("接管通知帧携带新会话ID", func(t *testing.T) {
		frame := NewTakenOverFrame("sess-old", "sess-new")
		data, err := codec.Encode(frame)
		require.NoError(t, err)

		decoded, err := codec.Decode(data)
		require.NoError(t, err)
		assert.Equal(t, models.FrameTypeSessionTakenOver, decoded.Type)
		assert.Equal(t, "sess-new", decoded.Headers["new_session_id"])
	})
}

// TestCodecValidation 测试帧校验
func TestCodecValidation(t *testing.T) {
	codec := NewCodec(0)

	t.Run("未知帧类型", func(t *testing.T) {
		_, err := codec.Decode([]byte(`{"type":"BOGUS"}`))
		assert.Error(t, err)
		assert.True(t, models.IsProtocolError(err))
	})

	t.Run("非法JSON", func(t *testing.T) {
		_, err := codec.Decode([]byte(`{not json`))
		assert.Error(t, err)
	})

	t.Run("SEND帧缺少目的地", func(t *testing.T) {
		_, err := codec.Decode([]byte(`{"type":"SEND"}`))
		assert.Error(t, err)
		assert.True(t, models.IsProtocolError(err))
	})

	t.Run("非法目的地前缀", func(t *testing.T) {
		_, err := codec.Decode([]byte(`{"type":"SEND","destination":"broadcast.all"}`))
		assert.Error(t, err)
	})

	t.Run("ACK帧缺少序列号", func(t *testing.T) {
		_, err := codec.Decode([]byte(`{"type":"ACK"}`))
		assert.Error(t, err)
	})

	t.Run("超限帧", func(t *testing.T) {
		small := NewCodec(16)
		payload := `{"type":"SEND","destination":"topic.a","body":"` + strings.Repeat("x", 64) + `"}`
		_, err := small.Decode([]byte(payload))
		assert.ErrorIs(t, err, models.ErrFrameTooLarge)
	})
}

// TestParseDestination 测试目的地解析
func TestParseDestination(t *testing.T) {
	t.Run("三类合法目的地", func(t *testing.T) {
		cases := map[string]models.DestinationKind{
			"topic.room.42": models.DestinationTopic,
			"queue.jobs":    models.DestinationQueue,
			"user.alice":    models.DestinationUser,
		}
		for raw, kind := range cases {
			dest, ok := models.ParseDestination(raw)
			require.True(t, ok, raw)
			assert.Equal(t, kind, dest.Kind)
		}
	})

	t.Run("topic内的名称保留点号", func(t *testing.T) {
		dest, ok := models.ParseDestination("topic.room.42")
		require.True(t, ok)
		assert.Equal(t, "room.42", dest.Name)
	})

	t.Run("非法目的地", func(t *testing.T) {
		for _, raw := range []string{"", "topic", "topic.", ".name", "stream.x"} {
			_, ok := models.ParseDestination(raw)
			assert.False(t, ok, raw)
		}
	})
}
