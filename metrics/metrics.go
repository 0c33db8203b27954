package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 是服务模式导出的监控指标集合
// 命令行单次运行不导出指标，只有 HTTP 服务模式会注册它们
type Metrics struct {
	// PagesRecovered 所有任务累计恢复的页面数
	PagesRecovered prometheus.Counter

	// PagesZeroFilled 所有任务累计补零的页面数
	PagesZeroFilled prometheus.Counter

	// ShortReads 所有任务累计的短读次数
	ShortReads prometheus.Counter

	// JobsTotal 按最终状态统计的任务数
	JobsTotal *prometheus.CounterVec

	// JobDuration 任务端到端耗时分布（秒）
	JobDuration prometheus.Histogram
}

// New 创建并注册指标集合
// 参数：
//   - reg: 指标注册表
//
// 返回：
//   - *Metrics: 指标集合指针
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		PagesRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dumpmixer",
			Name:      "pages_recovered_total",
			Help:      "Total number of pages recovered from dumps.",
		}),
		PagesZeroFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dumpmixer",
			Name:      "pages_zero_filled_total",
			Help:      "Total number of pages written as zeros.",
		}),
		ShortReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dumpmixer",
			Name:      "short_reads_total",
			Help:      "Total number of short page reads.",
		}),
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dumpmixer",
			Name:      "jobs_total",
			Help:      "Total number of mix jobs by final status.",
		}, []string{"status"}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dumpmixer",
			Name:      "job_duration_seconds",
			Help:      "End-to-end mix job duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}

	reg.MustRegister(
		m.PagesRecovered,
		m.PagesZeroFilled,
		m.ShortReads,
		m.JobsTotal,
		m.JobDuration,
	)
	return m
}

// ObserveJob 记录一次任务的结果
// 参数：
//   - status: 任务最终状态（done / failed）
//   - seconds: 任务耗时（秒）
//   - recovered: 恢复的页面数
//   - zeroFilled: 补零的页面数
//   - shortReads: 短读次数
func (m *Metrics) ObserveJob(status string, seconds float64, recovered, zeroFilled, shortReads int64) {
	m.JobsTotal.WithLabelValues(status).Inc()
	m.JobDuration.Observe(seconds)
	m.PagesRecovered.Add(float64(recovered))
	m.PagesZeroFilled.Add(float64(zeroFilled))
	m.ShortReads.Add(float64(shortReads))
}
