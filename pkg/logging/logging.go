// Package logging 安装进程级的 slog 默认 logger
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config 描述日志输出
type Config struct {
	Level string // debug | info | warn | error
	File  string // 为空时只写 console

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ParseLevel 解析日志级别，空串为 warn
func ParseLevel(s string) (slog.Level, error) {
	if strings.TrimSpace(s) == "" {
		return slog.LevelWarn, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// New 构造 logger：console 用文本格式，日志文件用 JSON 并按大小轮转
// 返回的 io.Closer 关闭日志文件，没有文件时为 nil。
func New(console io.Writer, cfg Config) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	handler := slog.Handler(slog.NewTextHandler(console, opts))
	if cfg.File == "" {
		return slog.New(handler), nil, nil
	}

	file := newRotator(cfg)
	// 文件总是记录到 Info，便于事后排查
	fileLevel := min(level, slog.LevelInfo)
	handler = &multiHandler{handlers: []slog.Handler{
		handler,
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: fileLevel}),
	}}
	return slog.New(handler), file, nil
}

// Setup 与 New 相同，并把结果设为 slog 默认 logger
func Setup(console io.Writer, cfg Config) (io.Closer, error) {
	logger, closer, err := New(console, cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return closer, nil
}

func newRotator(cfg Config) *lumberjack.Logger {
	l := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     30,
	}
	if cfg.MaxSizeMB > 0 {
		l.MaxSize = cfg.MaxSizeMB
	}
	if cfg.MaxBackups > 0 {
		l.MaxBackups = cfg.MaxBackups
	}
	if cfg.MaxAgeDays > 0 {
		l.MaxAge = cfg.MaxAgeDays
	}
	return l
}

// multiHandler 把记录分发给多个 handler
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}
