package logger

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 进程级日志器。各组件通过 Component 拿到 *zap.Logger，只依赖 zap。
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
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	if contains(cfg.Outputs, "stdout") {
		encoder := zapcore.NewJSONEncoder(encoderConfig)
		if cfg.Format == "console" {
			encoder = zapcore.NewConsoleEncoder(encoderConfig)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}

	// 文件一律 JSON，便于按 asset_pair / ladder_level 检索
	if contains(cfg.Outputs, "file") && cfg.OutputFile != "" {
		core, err := fileCore(cfg.OutputFile, encoderConfig, level)
		if err != nil {
			return nil, fmt.Errorf("open log file failed: %w", err)
		}
		cores = append(cores, core)
	}
	if cfg.ErrorFile != "" {
		core, err := fileCore(cfg.ErrorFile, encoderConfig, zapcore.ErrorLevel)
		if err != nil {
			return nil, fmt.Errorf("open error log file failed: %w", err)
		}
		cores = append(cores, core)
	}

	zapLogger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{Logger: zapLogger, config: cfg}, nil
}

func fileCore(path string, encoderConfig zapcore.EncoderConfig, enabler zapcore.LevelEnabler) (zapcore.Core, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(f), enabler), nil
}

// ForWallet 所有日志带上运行环境与钱包
func (l *Logger) ForWallet(env, walletID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(zap.String("env", env), Wallet(walletID)),
		config: l.config,
	}
}

// Component 返回带组件名的 zap.Logger
func (l *Logger) Component(name string) *zap.Logger {
	return l.Logger.Named(name).With(zap.String("component", name))
}

// LogError 记录进程级错误，context 为附加字段
func (l *Logger) LogError(err error, context map[string]interface{}) {
	fields := make([]zap.Field, 0, len(context)+2)
	fields = append(fields, zap.Error(err), zap.String("ts", time.Now().UTC().Format(time.RFC3339Nano)))
	for k, v := range context {
		fields = append(fields, zap.Any(k, v))
	}
	l.Error("error_event", fields...)
}

// NewNop 不输出任何日志，测试用
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop(), config: DefaultConfig()}
}

// Close 关闭日志器
func (l *Logger) Close() error {
	return l.Sync()
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
