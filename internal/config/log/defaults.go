package log

import (
	"go.uber.org/zap/zapcore"
)

// 日志配置默认值
const (
	// === 基础日志配置 ===

	// defaultLogLevel 默认日志级别设为"info"
	// 原因：统计上报与限流告警都在info级别，debug级别会输出每条被拒绝的消息
	defaultLogLevel = "info"

	// defaultToConsole 默认启用控制台输出
	// 原因：网关多以容器方式部署，由容器运行时采集标准输出
	defaultToConsole = true

	// defaultFilePath 默认不写文件
	// 原因：需要落盘时由部署方显式指定路径，避免在只读目录下启动失败
	defaultFilePath = ""

	// === 日志轮转配置 ===

	// defaultMaxSize 单个日志文件最大大小设为100MB
	// 原因：适中的文件大小便于日志分析工具处理和传输
	defaultMaxSize = 100

	// defaultMaxBackups 最大备份文件数设为10
	// 原因：保留10个备份文件提供足够的历史记录用于问题排查
	defaultMaxBackups = 10

	// defaultMaxAge 日志文件最大保留天数设为30天
	// 原因：30天覆盖了大多数问题排查的时间窗口
	defaultMaxAge = 30

	// defaultCompress 默认启用历史日志压缩
	// 原因：统计日志周期性输出，压缩比高
	defaultCompress = true

	// === 调试配置 ===

	// defaultEnableCaller 默认启用调用者信息
	// 原因：调用者信息对于定位问题非常重要
	defaultEnableCaller = true

	// defaultEnableStacktrace 默认对Error级别启用堆栈跟踪
	// 原因：只在Error级别启用，避免限流拒绝等高频警告产生过多输出
	defaultEnableStacktrace = true
)

// 日志级别映射
var levelMap = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
	"panic": zapcore.PanicLevel,
	"fatal": zapcore.FatalLevel,
}
