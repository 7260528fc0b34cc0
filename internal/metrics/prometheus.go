package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type prometheusObserver struct {
	days         prometheus.Counter
	published    *prometheus.CounterVec
	acked        *prometheus.CounterVec
	deferred     *prometheus.CounterVec
	replayed     prometheus.Counter
	droppedStale prometheus.Counter
	balance      prometheus.Gauge
}

var (
	dayCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fabrika_days_advanced_total",
		Help: "Total number of simulated days advanced",
	})
	publishedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fabrika_retry_jobs_published_total",
		Help: "Retry jobs published to the durable queue",
	}, []string{"tag"})
	ackedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fabrika_retry_jobs_acked_total",
		Help: "Retry jobs handled successfully and acknowledged",
	}, []string{"tag"})
	deferredCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fabrika_retry_jobs_deferred_total",
		Help: "Retry jobs left on the queue for redelivery",
	}, []string{"tag"})
	replayedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fabrika_payments_replayed_total",
		Help: "Deferred payments successfully replayed",
	})
	staleCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fabrika_payments_dropped_stale_total",
		Help: "Payment retry messages dropped as stale or already resolved",
	})
	balanceGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fabrika_bank_balance",
		Help: "Last known bank balance",
	})
)

func NewPrometheusObserver() Observer {
	return &prometheusObserver{
		days:         dayCounter,
		published:    publishedCounter,
		acked:        ackedCounter,
		deferred:     deferredCounter,
		replayed:     replayedCounter,
		droppedStale: staleCounter,
		balance:      balanceGauge,
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func (p *prometheusObserver) DayAdvanced(_ int) {
	p.days.Inc()
}

func (p *prometheusObserver) JobPublished(tag string) {
	p.published.WithLabelValues(tag).Inc()
}

func (p *prometheusObserver) JobAcked(tag string) {
	p.acked.WithLabelValues(tag).Inc()
}

func (p *prometheusObserver) JobDeferred(tag string) {
	p.deferred.WithLabelValues(tag).Inc()
}

func (p *prometheusObserver) PaymentReplayed() {
	p.replayed.Inc()
}

func (p *prometheusObserver) PaymentDroppedStale() {
	p.droppedStale.Inc()
}

func (p *prometheusObserver) ObserveBalance(balance int64) {
	p.balance.Set(float64(balance))
}
