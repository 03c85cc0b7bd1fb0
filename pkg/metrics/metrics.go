// Package metrics 基于 Prometheus 暴露服务运行指标。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pdfchat"

// Metrics 持有所有收集器。使用独立的 Registry，方便在测试中重复创建。
// 所有方法对 nil 接收者安全，未启用指标时可直接传 nil。
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	documents       prometheus.Gauge
	mergedSegments  prometheus.Gauge
	rebuildDuration *prometheus.HistogramVec

	generationTotal    *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec

	embeddingCacheHits   prometheus.Counter
	embeddingCacheMisses prometheus.Counter
}

// New 创建并注册全部指标。
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		documents: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_documents",
			Help:      "Number of documents currently registered",
		}),
		mergedSegments: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "merged_index_segments",
			Help:      "Number of segments in the merged index",
		}),
		rebuildDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "merged_index_rebuild_seconds",
			Help:      "Merged index recomputation duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"mode"}),
		generationTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Total number of generation backend calls",
		}, []string{"provider", "outcome"}),
		generationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Generation backend call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),
		embeddingCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_hits_total",
			Help:      "Embedding cache hits",
		}),
		embeddingCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_misses_total",
			Help:      "Embedding cache misses",
		}),
	}
}

// Handler 返回 /metrics 端点的处理器。
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTP 记录一次 HTTP 请求。
func (m *Metrics) ObserveHTTP(method, path, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// SetRegistrySize 更新已注册文档数与合并索引中的分块数。
func (m *Metrics) SetRegistrySize(documents, segments int) {
	if m == nil {
		return
	}
	m.documents.Set(float64(documents))
	m.mergedSegments.Set(float64(segments))
}

// ObserveRebuild 记录一次合并索引重算，mode 为 empty、alias 或 rebuild。
func (m *Metrics) ObserveRebuild(mode string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.rebuildDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// ObserveGeneration 记录一次生成调用的结果。
func (m *Metrics) ObserveGeneration(provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.generationTotal.WithLabelValues(provider, outcome).Inc()
	m.generationDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// EmbeddingCacheHit 记录一次向量缓存命中。
func (m *Metrics) EmbeddingCacheHit() {
	if m == nil {
		return
	}
	m.embeddingCacheHits.Inc()
}

// EmbeddingCacheMiss 记录一次向量缓存未命中。
func (m *Metrics) EmbeddingCacheMiss() {
	if m == nil {
		return
	}
	m.embeddingCacheMisses.Inc()
}
