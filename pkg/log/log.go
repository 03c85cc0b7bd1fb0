// Package log 是对 zap SugaredLogger 的一层薄封装，供整个应用统一使用。
package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 未调用 Init 之前（例如单元测试中）使用 no-op logger，避免空指针。
var sugar = zap.NewNop().Sugar()

// Init 初始化 zap logger
func Init(level, format, outputPath string) {
	var zapConfig zap.Config

	// 根据配置设置日志级别
	logLevel := zap.NewAtomicLevel()
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		logLevel.SetLevel(zap.InfoLevel)
	}

	if format == "console" {
		// 开发环境配置
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapConfig.Encoding = "console"
	} else {
		// 生产环境配置
		zapConfig = zap.NewProductionConfig()
		zapConfig.Encoding = "json"
	}

	zapConfig.Level = logLevel
	zapConfig.OutputPaths = []string{"stdout"}
	if outputPath != "" {
		// 同时输出到文件和 stdout
		_ = os.MkdirAll(outputPath, os.ModePerm)
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, outputPath+"/app.log")
	}

	logger, err := zapConfig.Build()
	if err != nil {
		panic(err)
	}
	sugar = logger.Sugar()
}

// Info 记录一条 info 级别的日志
func Info(msg string) {
	sugar.Info(msg)
}

// Infof 使用格式化字符串记录一条 info 级别的日志
func Infof(template string, args ...interface{}) {
	sugar.Infof(template, args...)
}

// Infow 使用键值对记录一条 info 级别的结构化日志。
func Infow(msg string, keysAndValues ...interface{}) {
	sugar.Infow(msg, keysAndValues...)
}

// Warnf 使用格式化字符串记录一条 warn 级别的日志
func Warnf(template string, args ...interface{}) {
	sugar.Warnf(template, args...)
}

// Error 记录一条 error 级别的日志，并附带 error 信息
func Error(msg string, err error) {
	sugar.Errorw(msg, "error", err)
}

func Errorf(template string, args ...interface{}) {
	sugar.Errorf(template, args...)
}

// Fatal 记录一条 fatal 级别的日志，并附带 error 信息，然后退出程序
func Fatal(msg string, err error) {
	sugar.Fatalw(msg, "error", err)
}

func Fatalf(template string, args ...interface{}) {
	sugar.Fatalf(template, args...)
}

// Sync 将缓冲区中的日志刷新到底层 Writer。
func Sync() {
	_ = sugar.Sync()
}
