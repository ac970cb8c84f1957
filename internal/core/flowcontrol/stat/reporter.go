package stat

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/weisyn/flowcontrol/pkg/interfaces/flowcontrol"
)

// defaultReportInterval 默认上报周期
const defaultReportInterval = time.Minute

// ReporterConfig 上报参数
type ReporterConfig struct {
	// Interval 上报周期，<= 0 时为 1 分钟
	Interval time.Duration
	// EnableConnectDebugInfo 是否输出连接维度（endpoint:*）的统计
	EnableConnectDebugInfo bool
	// Registerer 指标注册器，nil 时使用默认注册器
	Registerer prometheus.Registerer
}

// Reporter 周期性输出统计：取走本轮增量，写日志并累加 Prometheus 指标
type Reporter struct {
	collector *Collector
	logger    *zap.Logger
	cfg       ReporterConfig
	metrics   *metrics

	reportMu sync.Mutex
	// 上一轮看到的 Bypassed 累计值，用于计算增量
	bypassedSeen map[string]int64

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func NewReporter(collector *Collector, logger *zap.Logger, cfg ReporterConfig) (*Reporter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultReportInterval
	}
	m, err := newMetrics(cfg.Registerer)
	if err != nil {
		return nil, err
	}
	return &Reporter{
		collector:    collector,
		logger:       logger,
		cfg:          cfg,
		metrics:      m,
		bypassedSeen: make(map[string]int64),
	}, nil
}

// Interval 上报周期
func (r *Reporter) Interval() time.Duration { return r.cfg.Interval }

// Start 启动后台上报，重复调用无效果
func (r *Reporter) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	go r.loop(ctx, r.done)
	r.logger.Info("flow control stat reporter started", zap.Duration("interval", r.cfg.Interval))
}

// Stop 停止上报并输出最后一轮统计
func (r *Reporter) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.cancel()
	done := r.done
	r.running = false
	r.mu.Unlock()

	<-done
	r.Report()
	r.logger.Info("flow control stat reporter stopped")
}

func (r *Reporter) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Report()
		}
	}
}

// Report 执行一轮上报
func (r *Reporter) Report() {
	r.reportMu.Lock()
	defer r.reportMu.Unlock()

	snapshot := r.collector.SnapshotAndFlush()
	r.metrics.keys.Set(float64(len(snapshot)))
	r.prune(snapshot)

	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var inBytes, outBytes, outFailed int64
	for _, k := range keys {
		s := snapshot[k]
		r.export(k, s)

		// 只有连接维度的 key 计入整体流量，避免与 group / module 维度重复计数
		if strings.HasPrefix(k, "endpoint:") && !strings.Contains(k, "|packet:") {
			inBytes += s.Incoming.LastBytes
			outBytes += s.Outgoing.LastBytes
			outFailed += s.Outgoing.LastFailed
		}

		if isIdle(s) {
			continue
		}
		if strings.HasPrefix(k, "endpoint:") && !r.cfg.EnableConnectDebugInfo {
			continue
		}
		r.logger.Info("flow control stat",
			zap.String("key", k),
			zap.Int64("in_bytes", s.Incoming.LastBytes),
			zap.Int64("in_count", s.Incoming.LastCount),
			zap.Int64("in_rejected", s.Incoming.LastFailed),
			zap.Int64("out_bytes", s.Outgoing.LastBytes),
			zap.Int64("out_count", s.Outgoing.LastCount),
			zap.Int64("out_rejected", s.Outgoing.LastFailed),
			zap.Int64("bypassed_total", s.Bypassed),
		)
	}

	interval := r.cfg.Interval.Seconds()
	r.logger.Info("flow control summary",
		zap.Int("keys", len(keys)),
		zap.Int64("in_bytes", inBytes),
		zap.Int64("out_bytes", outBytes),
		zap.Int64("out_rejected", outFailed),
		zap.Float64("in_rate_bps", float64(inBytes*8)/interval),
		zap.Float64("out_rate_bps", float64(outBytes*8)/interval),
	)
}

// prune 清理已从统计中移除的 key（如断开的连接）对应的指标序列
func (r *Reporter) prune(snapshot map[string]flowcontrol.Stat) {
	for key := range r.bypassedSeen {
		if _, ok := snapshot[key]; ok {
			continue
		}
		delete(r.bypassedSeen, key)
		for _, dir := range []string{directionIncoming, directionOutgoing} {
			r.metrics.bytes.DeleteLabelValues(dir, key)
			r.metrics.messages.DeleteLabelValues(dir, key)
			r.metrics.failed.DeleteLabelValues(dir, key)
		}
		r.metrics.bypassed.DeleteLabelValues(key)
	}
}

func (r *Reporter) export(key string, s flowcontrol.Stat) {
	addCounter(r.metrics.bytes.WithLabelValues(directionIncoming, key), s.Incoming.LastBytes)
	addCounter(r.metrics.bytes.WithLabelValues(directionOutgoing, key), s.Outgoing.LastBytes)
	addCounter(r.metrics.messages.WithLabelValues(directionIncoming, key), s.Incoming.LastCount)
	addCounter(r.metrics.messages.WithLabelValues(directionOutgoing, key), s.Outgoing.LastCount)
	addCounter(r.metrics.failed.WithLabelValues(directionIncoming, key), s.Incoming.LastFailed)
	addCounter(r.metrics.failed.WithLabelValues(directionOutgoing, key), s.Outgoing.LastFailed)

	if delta := s.Bypassed - r.bypassedSeen[key]; delta > 0 {
		r.metrics.bypassed.WithLabelValues(key).Add(float64(delta))
	}
	r.bypassedSeen[key] = s.Bypassed
}

func addCounter(c prometheus.Counter, v int64) {
	if v > 0 {
		c.Add(float64(v))
	}
}

func isIdle(s flowcontrol.Stat) bool {
	return s.Incoming.LastCount == 0 && s.Incoming.LastFailed == 0 &&
		s.Outgoing.LastCount == 0 && s.Outgoing.LastFailed == 0
}
