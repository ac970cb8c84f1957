package stat

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// 流量控制 Prometheus 指标
//
// - 计数器在每轮上报时按 Last* 增量累加，上报后统计被 Flush；
// - key 作为标签，基数受连接数、group 数和 module 数约束。

const (
	metricsNamespace = "wes"
	metricsSubsystem = "flowcontrol"

	directionIncoming = "incoming"
	directionOutgoing = "outgoing"
)

type metrics struct {
	bytes    *prometheus.CounterVec
	messages *prometheus.CounterVec
	failed   *prometheus.CounterVec
	bypassed *prometheus.CounterVec
	keys     prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &metrics{
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "bytes_total",
			Help:      "Bytes observed by the gateway flow control, by direction and key.",
		}, []string{"direction", "key"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "messages_total",
			Help:      "Messages observed by the gateway flow control, by direction and key.",
		}, []string{"direction", "key"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "rejected_total",
			Help:      "Requests rejected by rate limiters, by direction and key.",
		}, []string{"direction", "key"}),
		bypassed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "bypassed_total",
			Help:      "Requests admitted without rate limiting (allow-listed module or unconfigured group).",
		}, []string{"key"}),
		keys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "stat_keys",
			Help:      "Number of keys tracked by the flow control statistics.",
		}),
	}

	var err error
	m.bytes, err = registerOrReuse(reg, m.bytes)
	if err != nil {
		return nil, err
	}
	m.messages, err = registerOrReuse(reg, m.messages)
	if err != nil {
		return nil, err
	}
	m.failed, err = registerOrReuse(reg, m.failed)
	if err != nil {
		return nil, err
	}
	m.bypassed, err = registerOrReuse(reg, m.bypassed)
	if err != nil {
		return nil, err
	}
	m.keys, err = registerOrReuse(reg, m.keys)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// registerOrReuse 同一 Registerer 上重复注册时复用已有的采集器
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}
