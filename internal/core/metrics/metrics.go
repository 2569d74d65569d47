// Package metrics 提供 Prometheus 指标
//
// 每个节点持有独立的 Registry，测试和同进程多节点互不干扰。
// 所有记录方法对 nil *Metrics 安全，未启用指标时直接传 nil。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kadnode"

// Metrics 节点指标
type Metrics struct {
	Registry *prometheus.Registry

	RoutingTablePeers prometheus.Gauge
	Connections       prometheus.Gauge
	Queries           *prometheus.CounterVec
	QueryDuration     *prometheus.HistogramVec
	Dials             *prometheus.CounterVec
	InboundRequests   *prometheus.CounterVec
	PingRTT           prometheus.Histogram
	RoutingChanges    *prometheus.CounterVec
}

// New 创建指标并注册到新的 Registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		RoutingTablePeers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "routing_table_peers",
			Help:      "Number of peers in the routing table",
		}),
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of open connections",
		}),
		Queries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "DHT queries by kind and result",
		}, []string{"kind", "result"}),
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "DHT query duration by kind",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
		Dials: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dials_total",
			Help:      "Outbound dial attempts by result",
		}, []string{"result"}),
		InboundRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_requests_total",
			Help:      "Inbound DHT requests by message type and result",
		}, []string{"type", "result"}),
		PingRTT: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ping_rtt_seconds",
			Help:      "Ping round-trip time",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		RoutingChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_changes_total",
			Help:      "Routing table changes by outcome",
		}, []string{"outcome"}),
	}
}

// Handler 返回 /metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// SetRoutingTableSize 记录路由表大小
func (m *Metrics) SetRoutingTableSize(n int) {
	if m == nil {
		return
	}
	m.RoutingTablePeers.Set(float64(n))
}

// ConnOpened 连接建立
func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.Connections.Inc()
}

// ConnClosed 连接关闭
func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.Connections.Dec()
}

// RecordDial 记录拨号结果
func (m *Metrics) RecordDial(err error) {
	if m == nil {
		return
	}
	m.Dials.WithLabelValues(result(err)).Inc()
}

// RecordQuery 记录查询结果
func (m *Metrics) RecordQuery(kind string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(kind, result(err)).Inc()
	m.QueryDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordInbound 记录入站请求
func (m *Metrics) RecordInbound(msgType string, err error) {
	if m == nil {
		return
	}
	m.InboundRequests.WithLabelValues(msgType, result(err)).Inc()
}

// RecordPing 记录成功的 ping
func (m *Metrics) RecordPing(rtt time.Duration) {
	if m == nil {
		return
	}
	m.PingRTT.Observe(rtt.Seconds())
}

// RecordRoutingChange 记录路由表变更
func (m *Metrics) RecordRoutingChange(outcome string) {
	if m == nil {
		return
	}
	m.RoutingChanges.WithLabelValues(outcome).Inc()
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
