/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\client.go
 * @Description: 带断线重连的会话客户端
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package wsession

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kamalyes/go-toolbox/pkg/mathx"
)

// ClientTransport 底层 WebSocket 连接
type ClientTransport struct {
	Url           string            // 连接 URL
	Conn          *websocket.Conn   // WebSocket 连接
	Dialer        *websocket.Dialer // WebSocket 拨号器
	RequestHeader http.Header       // 请求头
	HttpResponse  *http.Response    // 响应体
	isConnected   bool              // 是否已连接
	connMu        sync.RWMutex      // 连接状态锁
	sendMu        sync.Mutex        // 发送锁
}

// NewClientTransport 创建底层连接
func NewClientTransport(url string) *ClientTransport {
	return &ClientTransport{
		Url:           url,
		Dialer:        websocket.DefaultDialer,
		RequestHeader: http.Header{},
	}
}

// WithDialer 设置自定义拨号器
func (t *ClientTransport) WithDialer(dialer *websocket.Dialer) *ClientTransport {
	t.Dialer = dialer
	return t
}

// WithRequestHeader 设置请求头
func (t *ClientTransport) WithRequestHeader(header http.Header) *ClientTransport {
	t.RequestHeader = header
	return t
}

// Client 会话客户端
// 断线后按重连策略指数退避重试，次数耗尽进入永久失败；
// 重连成功时携带恢复令牌与确认游标，由服务端按序重放未确认消息
type Client struct {
	mu        sync.Mutex
	Config    *Config
	Transport *ClientTransport

	codec   *Codec
	policy  *ReconnectPolicy
	breaker *CircuitBreaker

	// 会话状态机（客户端视角）
	state   SessionState
	stateMu sync.RWMutex

	// 服务端下发的会话标识与恢复令牌
	sessionID    string
	resumeToken  string
	lastAckedSeq atomic.Int64

	manualClose atomic.Bool

	// 连接相关的回调函数
	onConnected    atomic.Value // 连接成功回调 func(resumed bool)
	onConnectError atomic.Value // 连接错误回调 func(error)
	onDisconnected atomic.Value // 连接断开回调 func(error)
	onExhausted    atomic.Value // 重连次数耗尽回调 func()
	onStateChange  atomic.Value // 状态迁移回调 func(from, to SessionState)

	// 帧相关的回调函数
	onFrame     atomic.Value // 收到业务帧回调 func(*Frame)
	onTakenOver atomic.Value // 会话被接管回调 func(newSessionID string)
	onError     atomic.Value // 收到 ERROR 帧回调 func(code int, detail string)
}

// NewClient 创建会话客户端
// 参数 url: 服务端 WebSocket 地址
func NewClient(url string) *Client {
	config := NewDefaultConfig()
	return &Client{
		Config:    config,
		Transport: NewClientTransport(url),
		codec:     NewCodec(config.MaxFrameSize),
		policy:    NewReconnectPolicy(config.Reconnect),
		breaker:   NewCircuitBreaker("client-dial", config.Breaker),
		state:     SessionStateConnecting,
	}
}

// SetConfig 设置客户端配置（重建重连策略与熔断器）
func (c *Client) SetConfig(config *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Config = config
	c.codec = NewCodec(config.MaxFrameSize)
	c.policy = NewReconnectPolicy(config.Reconnect)
	c.breaker = NewCircuitBreaker("client-dial", config.Breaker)
}

// ============================================================================
// 回调设置
// ============================================================================

// OnConnected 设置连接成功的回调（resumed 表示本次为断线恢复）
func (c *Client) OnConnected(f func(resumed bool)) { c.onConnected.Store(f) }

// OnConnectError 设置连接出错的回调
func (c *Client) OnConnectError(f func(err error)) { c.onConnectError.Store(f) }

// OnDisconnected 设置连接断开的回调
func (c *Client) OnDisconnected(f func(err error)) { c.onDisconnected.Store(f) }

// OnExhausted 设置重连次数耗尽的回调
func (c *Client) OnExhausted(f func()) { c.onExhausted.Store(f) }

// OnStateChange 设置状态迁移回调
func (c *Client) OnStateChange(f func(from, to SessionState)) { c.onStateChange.Store(f) }

// OnFrame 设置收到业务帧的回调
func (c *Client) OnFrame(f func(frame *Frame)) { c.onFrame.Store(f) }

// OnTakenOver 设置会话被接管的回调
func (c *Client) OnTakenOver(f func(newSessionID string)) { c.onTakenOver.Store(f) }

// OnError 设置收到 ERROR 帧的回调
func (c *Client) OnError(f func(code int, detail string)) { c.onError.Store(f) }

// ============================================================================
// 状态访问
// ============================================================================

// State 返回当前会话状态
func (c *Client) State() SessionState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// SessionID 返回服务端分配的会话ID
func (c *Client) SessionID() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.sessionID
}

// ResumeToken 返回当前持有的恢复令牌
func (c *Client) ResumeToken() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.resumeToken
}

// LastAckedSeq 返回已确认的序列号游标
func (c *Client) LastAckedSeq() int64 {
	return c.lastAckedSeq.Load()
}

// Closed 返回连接是否断开
func (c *Client) Closed() bool {
	c.Transport.connMu.RLock()
	defer c.Transport.connMu.RUnlock()
	return !c.Transport.isConnected
}

// transition 执行状态迁移（非法迁移被拒绝）
func (c *Client) transition(to SessionState) bool {
	c.stateMu.Lock()
	from := c.state
	if !from.CanTransitionTo(to) {
		c.stateMu.Unlock()
		return false
	}
	c.state = to
	c.stateMu.Unlock()

	if f := c.onStateChange.Load(); f != nil {
		f.(func(SessionState, SessionState))(from, to)
	}
	return true
}

// ============================================================================
// 连接管理
// ============================================================================

// Connect 发起连接
// 按重连策略退避重试，次数耗尽返回 ErrReconnectExhausted
func (c *Client) Connect() error {
	c.manualClose.Store(false)
	return c.connectLoop(false)
}

// connectLoop 拨号循环
// resumed 表示本次为断线重连（成功后携带恢复令牌握手）
func (c *Client) connectLoop(resumed bool) error {
	for {
		if c.manualClose.Load() {
			return ErrConnectionClosed
		}

		// 经熔断器拨号：熔断打开时该次尝试立即失败并计入退避
		err := c.breaker.Do(func() error {
			conn, resp, dialErr := c.Transport.Dialer.Dial(c.Transport.Url, c.Transport.RequestHeader)
			if dialErr != nil {
				return dialErr
			}
			c.Transport.connMu.Lock()
			c.Transport.Conn = conn
			c.Transport.HttpResponse = resp
			c.Transport.isConnected = true
			c.Transport.connMu.Unlock()
			return nil
		})

		if err == nil {
			break
		}

		if f := c.onConnectError.Load(); f != nil {
			f.(func(error))(err)
		}

		delay, policyErr := c.policy.NextDelay()
		if policyErr != nil {
			// 次数耗尽，迁移到永久失败
			c.transition(SessionStateFailedPermanent)
			if f := c.onExhausted.Load(); f != nil {
				f.(func())()
			}
			return ErrReconnectExhausted
		}
		time.Sleep(delay)
	}

	// 连接成功：重置退避计数，迁移到已连接
	c.policy.Reset()
	c.transition(SessionStateConnected)

	c.Transport.Conn.SetReadLimit(mathx.IfEmpty(c.Config.MaxFrameSize, 65536))

	// 重连时携带恢复令牌握手，服务端按序重放未确认消息
	if resumed && c.ResumeToken() != "" {
		c.sendResumeHandshake()
	}

	if f := c.onConnected.Load(); f != nil {
		f.(func(bool))(resumed)
	}

	go c.readFrames()
	return nil
}

// sendResumeHandshake 发送携带恢复令牌的 CONNECT 帧
func (c *Client) sendResumeHandshake() {
	frame := NewFrame(FrameTypeConnect).
		SetSessionID(c.SessionID()).
		SetSeq(c.lastAckedSeq.Load()).
		SetHeader("resume_token", c.ResumeToken()).
		SetHeader("last_acked_seq", strconv.FormatInt(c.lastAckedSeq.Load(), 10))
	_ = c.SendFrame(frame)
}

// readFrames 读帧循环
func (c *Client) readFrames() {
	for {
		_, data, err := c.Transport.Conn.ReadMessage()
		if err != nil {
			if f := c.onDisconnected.Load(); f != nil {
				f.(func(error))(err)
			}
			c.closeAndReconnect()
			return
		}

		frame, err := c.codec.Decode(data)
		if err != nil {
			continue
		}
		c.handleFrame(frame)
	}
}

// handleFrame 处理服务端下发的帧
func (c *Client) handleFrame(frame *Frame) {
	switch frame.Type {
	case FrameTypeConnected:
		// 记录会话标识与恢复令牌，后续断线恢复使用
		c.stateMu.Lock()
		c.sessionID = frame.SessionID
		if token := frame.Headers["resume_token"]; token != "" {
			c.resumeToken = token
		}
		c.stateMu.Unlock()

	case FrameTypeMessage:
		// 自动累计确认
		if frame.Seq > c.lastAckedSeq.Load() {
			c.lastAckedSeq.Store(frame.Seq)
			_ = c.SendFrame(NewAckFrame(c.SessionID(), frame.Seq))
		}
		if f := c.onFrame.Load(); f != nil {
			f.(func(*Frame))(frame)
		}

	case FrameTypePing:
		_ = c.SendFrame(NewPongFrame(c.SessionID()))

	case FrameTypeSessionTakenOver:
		// 新连接已接管本会话，不再重连
		c.manualClose.Store(true)
		if f := c.onTakenOver.Load(); f != nil {
			f.(func(string))(frame.Headers["new_session_id"])
		}

	case FrameTypeError:
		if f := c.onError.Load(); f != nil {
			f.(func(int, string))(frame.ErrorCode, frame.ErrorDetail)
		}

	default:
		if f := c.onFrame.Load(); f != nil {
			f.(func(*Frame))(frame)
		}
	}
}

// closeAndReconnect 处理断线重连
func (c *Client) closeAndReconnect() {
	if c.Closed() {
		return
	}
	c.clean()

	if c.manualClose.Load() {
		return
	}

	// DISCONNECTED -> RECONNECTING 后进入退避拨号
	c.transition(SessionStateDisconnected)
	if !c.transition(SessionStateReconnecting) {
		return
	}
	go func() {
		_ = c.connectLoop(true)
	}()
}

// ============================================================================
// 发送操作
// ============================================================================

// SendFrame 编码并发送单帧
func (c *Client) SendFrame(frame *Frame) error {
	if c.Closed() {
		return ErrConnectionClosed
	}

	data, err := c.codec.Encode(frame)
	if err != nil {
		return err
	}

	c.Transport.sendMu.Lock()
	defer c.Transport.sendMu.Unlock()
	return c.Transport.Conn.WriteMessage(websocket.TextMessage, data)
}

// SendTo 向目的地发送业务帧
func (c *Client) SendTo(destination, body string) error {
	frame := NewFrame(FrameTypeSend).
		SetSessionID(c.SessionID()).
		SetDestination(destination).
		SetBody(body)
	return c.SendFrame(frame)
}

// Subscribe 订阅目的地
func (c *Client) Subscribe(destination string) error {
	frame := NewFrame(FrameTypeSubscribe).
		SetSessionID(c.SessionID()).
		SetDestination(destination)
	return c.SendFrame(frame)
}

// ============================================================================
// 关闭
// ============================================================================

// Close 主动关闭连接（不触发重连）
func (c *Client) Close() {
	c.CloseWithMsg("")
}

// CloseWithMsg 主动关闭连接并附带消息
func (c *Client) CloseWithMsg(msg string) {
	c.manualClose.Store(true)
	if c.Closed() {
		return
	}

	c.Transport.sendMu.Lock()
	_ = c.Transport.Conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, msg))
	c.Transport.sendMu.Unlock()

	c.clean()
	c.transition(SessionStateDisconnected)
}

// clean 清理连接资源
func (c *Client) clean() {
	c.Transport.connMu.Lock()
	defer c.Transport.connMu.Unlock()
	if !c.Transport.isConnected {
		return
	}
	c.Transport.isConnected = false
	_ = c.Transport.Conn.Close()
}

// IsNormalClose 检查WebSocket关闭是否为正常关闭
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
