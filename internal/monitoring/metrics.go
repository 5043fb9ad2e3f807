package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 二元佣金与 HTTP 指标（nil 接收者上的方法均为空操作）
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
	PairsMatched        *prometheus.CounterVec
	PairCommission      *prometheus.CounterVec
	MatchDuration       prometheus.Histogram
	CarryForwardMembers *prometheus.CounterVec
	DirectCommissions   *prometheus.CounterVec
	Activations         prometheus.Counter
	ConflictRetries     *prometheus.CounterVec
}

// NewMetrics 创建独立注册表上的指标集合
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		PairsMatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "binary_pairs_matched_total",
			Help: "Binary pairs created, by commission outcome",
		}, []string{"outcome"}),
		PairCommission: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "binary_pair_commission_amount_total",
			Help: "Pair commission amounts, by component",
		}, []string{"component"}),
		MatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "binary_match_duration_seconds",
			Help:    "Duration of one ancestor matching run",
			Buckets: prometheus.DefBuckets,
		}),
		CarryForwardMembers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "binary_carry_forward_members_total",
			Help: "Members moved into carry-forward, by side",
		}, []string{"side"}),
		DirectCommissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "binary_direct_commissions_total",
			Help: "Direct commission decisions per ancestor, by result",
		}, []string{"result"}),
		Activations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "binary_activations_total",
			Help: "Nodes transitioned to activated",
		}),
		ConflictRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "binary_conflict_retries_total",
			Help: "Transaction retries caused by lock or slot conflicts",
		}, []string{"operation"}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.PairsMatched,
		m.PairCommission,
		m.MatchDuration,
		m.CarryForwardMembers,
		m.DirectCommissions,
		m.Activations,
		m.ConflictRetries,
	)
	return m
}

// Registry 返回指标注册表
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP 记录一次 HTTP 请求
func (m *Metrics) ObserveHTTP(method, path, status string, elapsed time.Duration) {
	if m == nil || m.HTTPRequests == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, status).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// ObservePair 记录一条配对及其金额拆分
func (m *Metrics) ObservePair(blocked bool, gross, tax, extra, net float64) {
	if m == nil || m.PairsMatched == nil {
		return
	}
	outcome := "paid"
	if blocked {
		outcome = "blocked"
	}
	m.PairsMatched.WithLabelValues(outcome).Inc()
	m.PairCommission.WithLabelValues("gross").Add(gross)
	m.PairCommission.WithLabelValues("tds").Add(tax)
	m.PairCommission.WithLabelValues("extra").Add(extra)
	m.PairCommission.WithLabelValues("net").Add(net)
}

// ObserveMatchDuration 记录配对耗时
func (m *Metrics) ObserveMatchDuration(elapsed time.Duration) {
	if m == nil || m.MatchDuration == nil {
		return
	}
	m.MatchDuration.Observe(elapsed.Seconds())
}

// AddCarryForward 记录结转人数
func (m *Metrics) AddCarryForward(side string, count int) {
	if m == nil || m.CarryForwardMembers == nil || count <= 0 {
		return
	}
	m.CarryForwardMembers.WithLabelValues(side).Add(float64(count))
}

// IncDirectCommission 记录直推佣金处理结果（paid / skipped / already_processed）
func (m *Metrics) IncDirectCommission(result string) {
	if m == nil || m.DirectCommissions == nil {
		return
	}
	m.DirectCommissions.WithLabelValues(result).Inc()
}

// IncActivation 记录一次激活
func (m *Metrics) IncActivation() {
	if m == nil || m.Activations == nil {
		return
	}
	m.Activations.Inc()
}

// IncConflictRetry 记录一次冲突重试
func (m *Metrics) IncConflictRetry(operation string) {
	if m == nil || m.ConflictRetries == nil {
		return
	}
	m.ConflictRetries.WithLabelValues(operation).Inc()
}
