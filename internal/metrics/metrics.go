// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカー層から利用する。
type MetricsCollector interface {
	RecordCycleSuccess(seller string)
	RecordCycleFailure(seller string, reason string)
	RecordFetchRetry(seller string)
	RecordEvents(kind string, count int)
	RecordCycleDuration(duration time.Duration)
	RecordListingsUpserted(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	cycleSuccess     prometheus.Counter
	cycleFail        *prometheus.CounterVec
	fetchRetry       prometheus.Counter
	events           *prometheus.CounterVec
	cycleDuration    prometheus.Histogram
	listingsUpserted prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cycleSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sellerwatch_cycle_success_total",
			Help: "監視サイクル成功の合計数",
		}),
		cycleFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sellerwatch_cycle_fail_total",
			Help: "監視サイクル失敗の合計数（失敗要因別）",
		}, []string{"reason"}),
		fetchRetry: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sellerwatch_fetch_retry_total",
			Help: "カタログ取得の再試行回数の合計",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sellerwatch_change_events_total",
			Help: "検出された変更イベントの合計数（種別別）",
		}, []string{"kind"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sellerwatch_cycle_duration_seconds",
			Help:    "監視サイクルの所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		listingsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sellerwatch_listings_upserted_total",
			Help: "アップサートされた出品の合計数",
		}),
	}

	reg.MustRegister(
		c.cycleSuccess,
		c.cycleFail,
		c.fetchRetry,
		c.events,
		c.cycleDuration,
		c.listingsUpserted,
	)

	return c
}

// RecordCycleSuccess は監視サイクルの成功を記録する。
func (c *Collector) RecordCycleSuccess(seller string) {
	c.cycleSuccess.Inc()
}

// RecordCycleFailure は監視サイクルの失敗を要因別に記録する。
func (c *Collector) RecordCycleFailure(seller string, reason string) {
	c.cycleFail.WithLabelValues(reason).Inc()
}

// RecordFetchRetry はカタログ取得の再試行を記録する。
func (c *Collector) RecordFetchRetry(seller string) {
	c.fetchRetry.Inc()
}

// RecordEvents は検出された変更イベント数を種別別に記録する。
func (c *Collector) RecordEvents(kind string, count int) {
	c.events.WithLabelValues(kind).Add(float64(count))
}

// RecordCycleDuration は監視サイクルの所要時間を記録する。
func (c *Collector) RecordCycleDuration(duration time.Duration) {
	c.cycleDuration.Observe(duration.Seconds())
}

// RecordListingsUpserted はアップサートされた出品数を記録する。
func (c *Collector) RecordListingsUpserted(count int) {
	c.listingsUpserted.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
