package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 封装zap日志器，附带做市相关的结构化日志方法
type Logger struct {
	*zap.Logger
	config Config
}

// Config 日志配置
type Config struct {
	Level      string   `yaml:"level"`       // debug, info, warn, error
	Outputs    []string `yaml:"outputs"`     // stdout, file
	OutputFile string   `yaml:"output_file"` // 日志文件路径
	ErrorFile  string   `yaml:"error_file"`  // 错误日志单独文件
	Format     string   `yaml:"format"`      // json 或 console
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Outputs: []string{"stdout"},
		Format:  "json",
	}
}

// New 创建新的Logger实例
func New(cfg Config) (*Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	if cfg.Format == "console" {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	for _, out := range cfg.Outputs {
		switch out {
		case "stdout":
			cores = append(cores, zapcore.NewCore(newEncoder(cfg.Format, encCfg), zapcore.AddSync(os.Stdout), level))
		case "file":
			if cfg.OutputFile == "" {
				continue
			}
			w, err := openAppend(cfg.OutputFile)
			if err != nil {
				return nil, err
			}
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), w, level))
		default:
			return nil, fmt.Errorf("unknown log output %q", out)
		}
	}
	// 错误日志单独文件，只记录error及以上级别
	if cfg.ErrorFile != "" {
		w, err := openAppend(cfg.ErrorFile)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), w, zapcore.ErrorLevel))
	}

	z := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{Logger: z, config: cfg}, nil
}

// NewNop 返回丢弃全部输出的Logger，测试用
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Wrap 包装已有的zap日志器
func Wrap(z *zap.Logger) *Logger {
	return &Logger{Logger: z}
}

func newEncoder(format string, cfg zapcore.EncoderConfig) zapcore.Encoder {
	if format == "console" {
		return zapcore.NewConsoleEncoder(cfg)
	}
	return zapcore.NewJSONEncoder(cfg)
}

func openAppend(path string) (zapcore.WriteSyncer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s failed: %w", path, err)
	}
	return zapcore.AddSync(f), nil
}

// With 添加字段返回新的logger
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...), config: l.config}
}

// Named 返回带子模块名的logger
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name), config: l.config}
}

// LogOrder 记录订单相关事件
func (l *Logger) LogOrder(event string, clientID int64, fields ...zap.Field) {
	l.Info("order_event", append([]zap.Field{zap.String("event", event), zap.Int64("cid", clientID)}, fields...)...)
}

// LogFill 记录成交事件
func (l *Logger) LogFill(event string, fields ...zap.Field) {
	l.Info("fill_event", append([]zap.Field{zap.String("event", event)}, fields...)...)
}

// LogReserve 记录储备变化
func (l *Logger) LogReserve(event string, base, quote, invariant fmt.Stringer) {
	l.Info("reserve_event",
		zap.String("event", event),
		zap.Stringer("base", base),
		zap.Stringer("quote", quote),
		zap.Stringer("k", invariant),
	)
}

// LogRisk 记录风控事件
func (l *Logger) LogRisk(event string, fields ...zap.Field) {
	l.Warn("risk_event", append([]zap.Field{zap.String("event", event)}, fields...)...)
}

// LogError 记录错误并附带上下文
func (l *Logger) LogError(err error, fields ...zap.Field) {
	l.Error("error_event", append([]zap.Field{zap.Error(err)}, fields...)...)
}

// Close 刷新缓冲
func (l *Logger) Close() error {
	return l.Sync()
}
