package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 对 zap.Logger 的封装
type Logger struct {
	*zap.Logger
}

// New 根据配置创建日志实例
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logger configuration: %w", err)
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	var sinks []zapcore.WriteSyncer
	if cfg.Output == "console" || cfg.Output == "both" {
		sinks = append(sinks, zapcore.AddSync(os.Stdout))
	}
	if cfg.Output == "file" || cfg.Output == "both" {
		sinks = append(sinks, zapcore.AddSync(rotatingFile(&cfg.File)))
	}

	core := zapcore.NewCore(newEncoder(cfg.Format), zapcore.NewMultiWriteSyncer(sinks...), level)

	opts := []zap.Option{zap.AddCaller()}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return &Logger{Logger: zap.New(core, opts...)}, nil
}

// NewFromCore 用已有的 zapcore.Core 构造，测试中配合 observer 使用
func NewFromCore(core zapcore.Core) *Logger {
	return &Logger{Logger: zap.New(core)}
}

// NewNop 不输出任何内容的日志
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

func newEncoder(format string) zapcore.Encoder {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if format == "json" {
		return zapcore.NewJSONEncoder(encCfg)
	}
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(encCfg)
}

// rotatingFile 按大小轮转的日志文件
func rotatingFile(cfg *FileConfig) *lumberjack.Logger {
	if err := os.MkdirAll(filepath.Dir(cfg.Filename), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
	}
	return &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}
}

// With 附加字段后返回子日志
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// Named 返回带名字的子日志
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}

var global *Logger

// SetGlobal 替换全局日志
func SetGlobal(l *Logger) {
	global = l
}

// L 返回全局日志，未初始化时使用默认配置
func L() *Logger {
	if global == nil {
		l, _ := New(DefaultConfig())
		global = l
	}
	return global
}
