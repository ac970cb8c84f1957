package metrics

// 指标配置默认值
const (
	// defaultEnabled 默认暴露 /metrics
	// 原因：限流统计的主要消费方是 Prometheus，关闭后只剩周期日志
	defaultEnabled = true

	// defaultAddr 默认只监听本机
	// 原因：指标端口不做鉴权，对外暴露需要部署方显式配置
	defaultAddr = "127.0.0.1:9100"

	// defaultPath 默认抓取路径
	defaultPath = "/metrics"
)
