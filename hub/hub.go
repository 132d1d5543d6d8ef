/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\hub\hub.go
 * @Description: Hub 核心结构和类型定义
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package hub

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kamalyes/go-cachex"
	"github.com/kamalyes/go-toolbox/pkg/errorx"
	"github.com/kamalyes/go-toolbox/pkg/idgen"
	"github.com/kamalyes/go-toolbox/pkg/mathx"
	"github.com/kamalyes/go-toolbox/pkg/osx"
	"github.com/kamalyes/go-toolbox/pkg/safe"

	"github.com/kamalyes/go-wsession/middleware"
	"github.com/kamalyes/go-wsession/models"
	"github.com/kamalyes/go-wsession/protocol"
	"github.com/kamalyes/go-wsession/repository"
)

// ============================================================================
// 类型别名 - 从 models protocol repository middleware 包导入
// ============================================================================

type (
	Frame                   = models.Frame
	FrameType               = models.FrameType
	Destination             = models.Destination
	DestinationKind         = models.DestinationKind
	Session                 = models.Session
	SessionState            = models.SessionState
	QueuedMessage           = models.QueuedMessage
	OutboxArchive           = models.OutboxArchive
	PresenceRecord          = models.PresenceRecord
	PresenceChange          = models.PresenceChange
	PresenceDelta           = models.PresenceDelta
	PresenceSnapshot        = models.PresenceSnapshot
	PresenceStatus          = models.PresenceStatus
	DisconnectReason        = models.DisconnectReason
	TransportType           = models.TransportType
	BreakerState            = models.BreakerState
	HubStats                = models.HubStats
	HealthStatus            = models.HealthStatus
	SendResult              = models.SendResult
	SendAttempt             = models.SendAttempt
	SyncConflict            = models.SyncConflict
	IDGenerator             = models.IDGenerator
	Config                  = models.Config
	Codec                   = protocol.Codec
	Outbox                  = protocol.Outbox
	CircuitBreaker          = protocol.CircuitBreaker
	ReconnectPolicy         = protocol.ReconnectPolicy
	PresenceRepository      = repository.PresenceRepository
	OutboxArchiveRepository = repository.OutboxArchiveRepository
	ArchiveFilter           = repository.ArchiveFilter
	WSLogger                = middleware.WSLogger
	ErrorType               = errorx.ErrorType
)

// 函数导入
var (
	NewCodec           = protocol.NewCodec
	NewOutbox          = protocol.NewOutbox
	NewCircuitBreaker  = protocol.NewCircuitBreaker
	NewReconnectPolicy = protocol.NewReconnectPolicy
	NewConnectedFrame  = protocol.NewConnectedFrame
	NewMessageFrame    = protocol.NewMessageFrame
	NewAckFrame        = protocol.NewAckFrame
	NewErrorFrame      = protocol.NewErrorFrame
	NewTakenOverFrame  = protocol.NewTakenOverFrame
	NewPingFrame       = protocol.NewPingFrame
	NewPongFrame       = protocol.NewPongFrame
	NewFrame           = models.NewFrame
	NewSession         = models.NewSession
	NewDefaultConfig   = models.NewDefaultConfig
	ParseDestination   = models.ParseDestination
	InitLogger         = middleware.InitLogger
	IsRetryableError   = models.IsRetryableError
	IsCapacityError    = models.IsCapacityError
	IsProtocolError    = models.IsProtocolError
	IsDependencyError  = models.IsDependencyError
	IsAckTimeoutError  = models.IsAckTimeoutError
)

// 常量
const (
	FrameTypeConnect          = models.FrameTypeConnect
	FrameTypeConnected        = models.FrameTypeConnected
	FrameTypeSubscribe        = models.FrameTypeSubscribe
	FrameTypeSend             = models.FrameTypeSend
	FrameTypeAck              = models.FrameTypeAck
	FrameTypeMessage          = models.FrameTypeMessage
	FrameTypePing             = models.FrameTypePing
	FrameTypePong             = models.FrameTypePong
	FrameTypeError            = models.FrameTypeError
	FrameTypeSessionTakenOver = models.FrameTypeSessionTakenOver

	DestinationTopic = models.DestinationTopic
	DestinationQueue = models.DestinationQueue
	DestinationUser  = models.DestinationUser

	SessionStateConnecting      = models.SessionStateConnecting
	SessionStateConnected       = models.SessionStateConnected
	SessionStateDisconnected    = models.SessionStateDisconnected
	SessionStateReconnecting    = models.SessionStateReconnecting
	SessionStateFailedPermanent = models.SessionStateFailedPermanent

	PresenceStatusOnline  = models.PresenceStatusOnline
	PresenceStatusFocused = models.PresenceStatusFocused
	PresenceStatusBreak   = models.PresenceStatusBreak
	PresenceStatusOffline = models.PresenceStatusOffline

	TransportWebSocket = models.TransportWebSocket
	TransportLongPoll  = models.TransportLongPoll

	DisconnectReasonClient    = models.DisconnectReasonClient
	DisconnectReasonHeartbeat = models.DisconnectReasonHeartbeat
	DisconnectReasonTakenOver = models.DisconnectReasonTakenOver
	DisconnectReasonProtocol  = models.DisconnectReasonProtocol
	DisconnectReasonShutdown  = models.DisconnectReasonShutdown
	DisconnectReasonExhausted = models.DisconnectReasonExhausted
	DisconnectReasonTransport = models.DisconnectReasonTransport
)

// 错误常量
var (
	ErrHubStartupTimeout  = models.ErrHubStartupTimeout
	ErrHubShutdownTimeout = models.ErrHubShutdownTimeout
	ErrHubNotRunning      = models.ErrHubNotRunning
	ErrUserOffline        = models.ErrUserOffline
	ErrOutboxFull         = models.ErrOutboxFull
	ErrSendBufferFull     = models.ErrSendBufferFull
	ErrCircuitBreakerOpen = models.ErrCircuitBreakerOpen
	ErrReconnectExhausted = models.ErrReconnectExhausted

	ErrTypeSessionNotFound     = models.ErrTypeSessionNotFound
	ErrTypeUserOffline         = models.ErrTypeUserOffline
	ErrTypeHandlerNotFound     = models.ErrTypeHandlerNotFound
	ErrTypeInvalidDestination  = models.ErrTypeInvalidDestination
	ErrTypeSequenceConflict    = models.ErrTypeSequenceConflict
	ErrTypeReplayWindowEvicted = models.ErrTypeReplayWindowEvicted
	ErrTypeArchiveRepoNotSet   = models.ErrTypeArchiveRepoNotSet
	ErrTypePresenceRepoNotSet  = models.ErrTypePresenceRepoNotSet
)

// ============================================================================
// Hub 独有类型定义
// ============================================================================

// DestinationHandler 目的地处理器
// 返回成功投递的会话数
type DestinationHandler func(ctx context.Context, dest *Destination, frame *Frame) (int, error)

// 回调函数类型
type (
	// SessionConnectCallback 会话建立回调
	SessionConnectCallback func(ctx context.Context, session *Session) error
	// SessionDisconnectCallback 会话断开回调
	SessionDisconnectCallback func(ctx context.Context, session *Session, reason DisconnectReason) error
	// TakeoverCallback 会话接管回调（旧会话被新连接踢下线时触发）
	TakeoverCallback func(oldSession *Session, newSession *Session)
	// FrameReceivedCallback 帧接收回调
	FrameReceivedCallback func(ctx context.Context, session *Session, frame *Frame) error
	// ErrorCallback 错误处理回调
	ErrorCallback func(ctx context.Context, err error) error
)

// sessionDeparture 会话注销请求（会话 + 断开原因）
type sessionDeparture struct {
	Session *Session
	Reason  DisconnectReason
}

// ============================================================================
// Hub 核心结构
// ============================================================================

// Hub 会话生命周期管理中心
// 会话映射只由 Run 的事件循环 goroutine 修改，注册/注销经由邮箱通道提交；
// 其他 goroutine 通过带读锁的副本访问
type Hub struct {
	nodeID    string
	startTime time.Time

	sessions     map[string]*Session
	userSessions map[string]map[string]*Session

	// 原子计数器：用于快速获取统计值，避免加锁
	activeSessionsCount atomic.Int64
	framesSent          atomic.Int64
	framesAcked         atomic.Int64
	takeovers           atomic.Int64
	replays             atomic.Int64

	register   chan *Session
	unregister chan *sessionDeparture
	outbound   chan *Frame

	// 每会话发件箱（mutex 保护；断线后保留到重连窗口结束）
	outboxes map[string]*Outbox

	// 恢复令牌 -> 会话ID（断线重连时定位原发件箱）
	resumeTokens map[string]string

	// 目的地订阅索引：destination raw -> sessionID -> session
	topicSessions map[string]map[string]*Session

	// 目的地处理器注册表：启动时显式填充的普通映射，不做反射分发
	handlers map[DestinationKind]DestinationHandler

	// 依赖熔断器（redis / database 等外部依赖各一只）
	breakers map[string]*CircuitBreaker

	presence *PresenceTracker

	presenceRepo PresenceRepository
	archiveRepo  OutboxArchiveRepository
	idGenerator  IDGenerator
	workerID     int64

	// 📡 跨节点事件发布订阅
	pubsub *cachex.PubSub

	codec *Codec

	sessionConnectCallback    SessionConnectCallback
	sessionDisconnectCallback SessionDisconnectCallback
	takeoverCallback          TakeoverCallback
	frameReceivedCallback     FrameReceivedCallback
	errorCallback             ErrorCallback

	wg       sync.WaitGroup
	shutdown atomic.Bool
	started  atomic.Bool
	startCh  chan struct{}

	logger WSLogger
	mutex  sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	config *Config

	framePool sync.Pool
}

// NewHub 创建新的Hub
func NewHub(config *Config) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	if config == nil {
		config = NewDefaultConfig()
	}

	// 生成节点ID（支持K8s环境），统一使用短哈希格式
	nodeID := safe.ShortHash(generateNodeID(config))

	workerID := osx.GetWorkerIdForSnowflake()
	idGenerator := idgen.NewShortFlakeGenerator(workerID)
	// 设置默认值
	config.MessageBufferSize = mathx.IfEmpty(config.MessageBufferSize, 1024)

	hub := &Hub{
		nodeID:       nodeID,
		workerID:     workerID,
		idGenerator:  idGenerator,
		startTime:    time.Now(),
		sessions:     make(map[string]*Session),
		userSessions: make(map[string]map[string]*Session),
		outboxes:     make(map[string]*Outbox),
		resumeTokens:  make(map[string]string),
		topicSessions: make(map[string]map[string]*Session),
		handlers:     make(map[DestinationKind]DestinationHandler),
		breakers:     make(map[string]*CircuitBreaker),
		register:     make(chan *Session, config.MessageBufferSize),
		unregister:   make(chan *sessionDeparture, config.MessageBufferSize),
		outbound:     make(chan *Frame, config.MessageBufferSize*4),
		codec:        NewCodec(config.MaxFrameSize),
		ctx:          ctx,
		cancel:       cancel,
		startCh:      make(chan struct{}),
		config:       config,
		logger:       InitLogger(config.WSC),
		framePool: sync.Pool{
			New: func() interface{} {
				b := make([]byte, 0, 1024)
				return &b
			},
		},
	}

	hub.presence = newPresenceTracker(hub)
	hub.registerDefaultHandlers()
	hub.initBreakers()
	return hub
}

// initBreakers 初始化各外部依赖的熔断器
func (h *Hub) initBreakers() {
	for _, name := range []string{BreakerRedis, BreakerDatabase} {
		h.breakers[name] = NewCircuitBreaker(name, h.config.Breaker)
	}
}

// 依赖熔断器名称
const (
	BreakerRedis    = "redis"
	BreakerDatabase = "database"
)

// ============================================================================
// 基础 Getter/Setter 方法
// ============================================================================

func (h *Hub) GetNodeID() string             { return h.nodeID }
func (h *Hub) GetWorkerID() int64            { return h.workerID }
func (h *Hub) GetIDGenerator() IDGenerator   { return h.idGenerator }
func (h *Hub) GetLogger() WSLogger           { return h.logger }
func (h *Hub) GetContext() context.Context   { return h.ctx }
func (h *Hub) IsStarted() bool               { return h.started.Load() }
func (h *Hub) IsShutdown() bool              { return h.shutdown.Load() }
func (h *Hub) GetConfig() *Config            { return h.config }
func (h *Hub) GetCodec() *Codec              { return h.codec }
func (h *Hub) GetPresence() *PresenceTracker { return h.presence }
func (h *Hub) Context() context.Context      { return h.ctx }

func (h *Hub) SetIDGenerator(generator IDGenerator) {
	h.idGenerator = generator
	h.logger.InfoKV("ID生成器已设置", "generator_type", "idgen")
}

func (h *Hub) SetPresenceRepo(repo PresenceRepository) {
	h.presenceRepo = repo
}

func (h *Hub) GetPresenceRepo() PresenceRepository {
	return h.presenceRepo
}

func (h *Hub) SetArchiveRepo(repo OutboxArchiveRepository) {
	h.archiveRepo = repo
}

func (h *Hub) GetArchiveRepo() OutboxArchiveRepository {
	return h.archiveRepo
}

func (h *Hub) SetPubSub(pubsub *cachex.PubSub) {
	h.pubsub = pubsub
	h.logger.InfoKV("PubSub已设置", "enabled", true)
}

func (h *Hub) GetPubSub() *cachex.PubSub {
	return h.pubsub
}

// GetBreaker 获取指定依赖的熔断器，未注册返回nil
func (h *Hub) GetBreaker(name string) *CircuitBreaker {
	return h.breakers[name]
}

// ============================================================================
// 回调设置
// ============================================================================

func (h *Hub) SetSessionConnectCallback(cb SessionConnectCallback) {
	h.sessionConnectCallback = cb
}

func (h *Hub) SetSessionDisconnectCallback(cb SessionDisconnectCallback) {
	h.sessionDisconnectCallback = cb
}

func (h *Hub) SetTakeoverCallback(cb TakeoverCallback) {
	h.takeoverCallback = cb
}

func (h *Hub) SetFrameReceivedCallback(cb FrameReceivedCallback) {
	h.frameReceivedCallback = cb
}

func (h *Hub) SetErrorCallback(cb ErrorCallback) {
	h.errorCallback = cb
}

// ============================================================================
// K8s 兼容的节点ID生成
// ============================================================================

// generateNodeID 生成节点ID（支持K8s环境）
// 优先级：
// 1. 环境变量 POD_NAME（K8s推荐）
// 2. 环境变量 HOSTNAME（容器环境）
// 3. 环境变量 NODE_ID（自定义）
// 4. IP:Port（传统方式）
func generateNodeID(config *Config) string {
	// 1. 优先使用 K8s Pod Name
	if podName := osx.Getenv("POD_NAME", ""); podName != "" {
		return podName
	}

	// 2. 使用 Hostname（容器环境）
	if hostname := osx.Getenv("HOSTNAME", ""); hostname != "" {
		return hostname
	}

	// 3. 使用自定义 NODE_ID
	if nodeID := osx.Getenv("NODE_ID", ""); nodeID != "" {
		return nodeID
	}

	// 4. 回退到 IP:Port（传统方式）
	return fmt.Sprintf("%s-%d", config.NodeIP, config.NodePort)
}
