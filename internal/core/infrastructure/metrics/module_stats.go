package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	metricsInterface "github.com/weisyn/flowcontrol/pkg/interfaces/infrastructure/metrics"
)

// moduleStatsCollector 抓取时向各模块收集 ModuleStats
type moduleStatsCollector struct {
	reporters  []metricsInterface.StatsReporter
	objects    *prometheus.Desc
	cacheItems *prometheus.Desc
}

func newModuleStatsCollector(reporters []metricsInterface.StatsReporter) *moduleStatsCollector {
	return &moduleStatsCollector{
		reporters: reporters,
		objects: prometheus.NewDesc("module_objects", "模块持有的主要对象数",
			[]string{"module"}, nil),
		cacheItems: prometheus.NewDesc("module_cache_items", "模块缓存条目数",
			[]string{"module"}, nil),
	}
}

func (c *moduleStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.objects
	ch <- c.cacheItems
}

func (c *moduleStatsCollector) Collect(ch chan<- prometheus.Metric) {
	for _, r := range c.reporters {
		if r == nil {
			continue
		}
		s := r.CollectStats()
		if s.Module == "" {
			s.Module = r.ModuleName()
		}
		ch <- prometheus.MustNewConstMetric(c.objects, prometheus.GaugeValue, float64(s.Objects), s.Module)
		ch <- prometheus.MustNewConstMetric(c.cacheItems, prometheus.GaugeValue, float64(s.CacheItems), s.Module)
	}
}

// RegisterStatsReporters 把模块状态注册到指标服务
func (s *Server) RegisterStatsReporters(reporters ...metricsInterface.StatsReporter) error {
	if len(reporters) == 0 {
		return nil
	}
	return s.registry.Register(newModuleStatsCollector(reporters))
}
