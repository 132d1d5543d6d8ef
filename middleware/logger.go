/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-03-05 00:00:00
 * @FilePath: \go-wsession\middleware\logger.go
 * @Description: go-wsession 日志接口，直接复用 go-logger
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package middleware

import (
	"time"

	wscconfig "github.com/kamalyes/go-config/pkg/wsc"
	"github.com/kamalyes/go-logger"
)

// WSLogger 直接使用 go-logger.ILogger
type WSLogger = logger.ILogger

// NewWSLogger 创建新的会话日志器，基于 go-logger
func NewWSLogger(config *logger.LogConfig) WSLogger {
	return logger.NewLogger(config)
}

// NewDefaultWSLogger 创建默认配置的会话日志器
func NewDefaultWSLogger() WSLogger {
	config := logger.DefaultConfig().
		WithLevel(logger.DEBUG).
		WithPrefix("[WSESSION] ").
		WithShowCaller(false).
		WithColorful(true).
		WithTimeFormat(time.RFC3339Nano)

	return logger.NewLogger(config)
}

// NewNoOpLogger 创建空日志实例
func NewNoOpLogger() WSLogger {
	return logger.NewEmptyLogger()
}

// 全局日志器
var (
	// DefaultLogger 默认日志器实例
	DefaultLogger WSLogger = NewDefaultWSLogger()

	// NoOpLoggerInstance 空日志器实例
	NoOpLoggerInstance WSLogger = NewNoOpLogger()
)

// SetDefaultLogger 设置默认日志器
func SetDefaultLogger(l WSLogger) {
	DefaultLogger = l
}

// InitLogger 根据配置初始化日志器
func InitLogger(config *wscconfig.WSC) WSLogger {
	if config.Logging == nil || !config.Logging.Enabled {
		return NewDefaultWSLogger()
	}

	loggerConfig := config.Logging.ToLoggerConfig()
	return logger.NewLogger(loggerConfig)
}
