// Package logger 提供结算守护进程的两条日志通道：常规运行日志与
// 财政审计轨迹。审计轨迹记录每一笔结算、纯度违规与逐出事件，
// 独立轮转并长期保留。
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config 描述运行日志的级别、格式与输出目标。
type Config struct {
	Level       string
	Format      string
	OutputPaths []string
	Audit       AuditConfig
}

// AuditConfig 控制审计轨迹。税务记录有留存义务，轮转参数
// 的缺省值因此偏向长期保留而不是节省磁盘。
type AuditConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	runtimeLogger *slog.Logger
	auditLogger   *slog.Logger
	setupOnce     sync.Once
	sinks         []io.Closer
	setupErr      error
)

// Init 初始化全局日志通道。只有首次调用生效。
func Init(cfg Config) error {
	setupOnce.Do(func() {
		handler, err := runtimeHandler(cfg)
		if err != nil {
			setupErr = err
			return
		}
		runtimeLogger = slog.New(handler)

		// 未开启独立审计轨迹时，审计事件落入运行日志。
		auditLogger = runtimeLogger
		if cfg.Audit.Enabled {
			trail, err := auditHandler(cfg.Audit)
			if err != nil {
				setupErr = err
				return
			}
			auditLogger = slog.New(trail).With(slog.String("channel", "audit"))
		}
	})
	return setupErr
}

func runtimeHandler(cfg Config) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: levelFrom(cfg.Level), AddSource: true}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	writers := make([]io.Writer, 0, len(outputs))
	for _, target := range outputs {
		writer, err := openSink(target)
		if err != nil {
			return nil, err
		}
		writers = append(writers, writer)
	}

	sink := writers[0]
	if len(writers) > 1 {
		sink = io.MultiWriter(writers...)
	}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(sink, opts), nil
	}
	return slog.NewJSONHandler(sink, opts), nil
}

func auditHandler(cfg AuditConfig) (slog.Handler, error) {
	if cfg.Path == "" {
		return nil, errors.New("audit trail path cannot be empty when enabled")
	}
	trail, err := newAuditTrailWriter(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	if err != nil {
		return nil, err
	}
	sinks = append(sinks, trail)
	// 审计轨迹总是结构化 JSON，且不过滤级别。
	return slog.NewJSONHandler(trail, &slog.HandlerOptions{Level: slog.LevelInfo}), nil
}

func openSink(target string) (io.Writer, error) {
	switch strings.ToLower(target) {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", target, err)
	}
	sinks = append(sinks, file)
	return file, nil
}

func levelFrom(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// L 返回运行日志。未初始化时退化为 stdout JSON 日志。
func L() *slog.Logger {
	if runtimeLogger == nil {
		_ = Init(Config{})
	}
	return runtimeLogger
}

// Audit 返回审计轨迹通道。
func Audit() *slog.Logger {
	if auditLogger == nil {
		return L()
	}
	return auditLogger
}

// Sync 关闭所有文件输出。进程退出前调用。
func Sync() error {
	var err error
	for _, sink := range sinks {
		err = errors.Join(err, sink.Close())
	}
	sinks = nil
	return err
}
