/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\exports_middleware.go
 * @Description: Middleware模块类型导出 - 保持向后兼容
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package wsession

import (
	"github.com/kamalyes/go-logger"
	"github.com/kamalyes/go-wsession/middleware"
)

// ============================================
// Logger - 日志中间件
// ============================================

// WSLogger 日志器类型（直接使用 go-logger.ILogger）
type WSLogger = logger.ILogger

// NewWSLogger 创建新的会话日志器
var NewWSLogger = middleware.NewWSLogger

// NewDefaultWSLogger 创建默认配置的会话日志器
var NewDefaultWSLogger = middleware.NewDefaultWSLogger

// NewNoOpLogger 创建空日志实例
var NewNoOpLogger = middleware.NewNoOpLogger

// SetDefaultLogger 设置默认日志器
var SetDefaultLogger = middleware.SetDefaultLogger

// InitLogger 根据配置初始化日志器
var InitLogger = middleware.InitLogger
