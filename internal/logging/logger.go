package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Zacy-Sokach/RoboDash/internal/config"
	"github.com/Zacy-Sokach/RoboDash/internal/events"
	"github.com/Zacy-Sokach/RoboDash/internal/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultLogFile = "robodash.log"

// New 按配置创建 JSON 日志，写入文件（终端留给 TUI）
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("无效的日志级别 %q: %w", cfg.Level, err)
	}

	path := cfg.File
	if path == "" {
		path, err = utils.GetDataPath(defaultLogFile)
		if err != nil {
			return nil, fmt.Errorf("获取日志路径失败: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("创建日志目录失败: %w", err)
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{path}
	zc.ErrorOutputPaths = []string{path}
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("创建日志失败: %w", err)
	}
	return logger, nil
}

// EventHandler 把事件总线上的事件写入日志
type EventHandler struct {
	logger *zap.Logger
}

func NewEventHandler(logger *zap.Logger) *EventHandler {
	return &EventHandler{logger: logger}
}

// Handle 流式分块事件太频繁，只在 debug 级别记录
func (h *EventHandler) Handle(e events.Event) {
	fields := make([]zap.Field, 0, len(e.Data)+2)
	fields = append(fields, zap.String("run_id", e.RunID), zap.Time("at", e.Timestamp))
	for k, v := range e.Data {
		fields = append(fields, zap.Any(k, v))
	}

	switch e.Type {
	case events.TypeStreamChunk:
		h.logger.Debug(e.Type, fields...)
	case events.TypeStreamError:
		h.logger.Warn(e.Type, fields...)
	default:
		h.logger.Info(e.Type, fields...)
	}
}

// Priority 日志最后执行
func (h *EventHandler) Priority() int {
	return 100
}
