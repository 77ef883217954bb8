package logger

import (
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ChenBigdata421/jxt-replay/sdk/config"
)

/*
回放进程的请求量很大，各组件统一使用 zap.Logger 记录结构化字段，
组件 logger 由全局 Logger.Named 派生。
*/

// Setup 按配置初始化全局日志记录器，放在程序运行前执行
func Setup(cfg *config.Logger) {
	Logger = New(cfg)
}

// New 按配置构造 zap.Logger：info/error 分文件滚动，可选输出到控制台
func New(cfg *config.Logger) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	// 解析日志级别
	var logLevel zapcore.Level
	if err := logLevel.UnmarshalText([]byte(cfg.Level)); err != nil {
		// 默认使用info级别
		logLevel = zapcore.InfoLevel
	}

	var cores []zapcore.Core

	if cfg.FileOutput {
		if logLevel < zapcore.ErrorLevel {
			cores = append(cores, zapcore.NewCore(
				zapcore.NewJSONEncoder(encoderConfig),
				rollingWriter(cfg, "info.log", cfg.InfoMaxAge),
				zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
					return lvl >= logLevel && lvl < zapcore.ErrorLevel
				}),
			))
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			rollingWriter(cfg, "error.log", cfg.ErrorMaxAge),
			zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
				return lvl >= zapcore.ErrorLevel
			}),
		))
	}

	if cfg.Stdout {
		consoleEncoderConfig := encoderConfig
		consoleEncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleEncoderConfig),
			zapcore.AddSync(os.Stdout),
			zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
				return lvl >= logLevel
			}),
		))
	}

	// 如果没有任何core，添加一个空core防止panic
	if len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(io.Discard),
			zap.LevelEnablerFunc(func(zapcore.Level) bool { return false }),
		))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

func rollingWriter(cfg *config.Logger, name string, maxAge int) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(cfg.Path, name),
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     maxAge,
		Compress:   true,
	})
}
