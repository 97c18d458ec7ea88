package ddns

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "ddns"

var reconcileCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: metricsNamespace,
	Name:      "reconcile_total",
	Help:      "Counter of reconciliation attempts by outcome.",
}, []string{"outcome"})

var lastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: metricsNamespace,
	Name:      "last_success_timestamp_seconds",
	Help:      "Unix time of the last attempt that finished without error.",
})

var recordUpdates = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: metricsNamespace,
	Name:      "record_updates_total",
	Help:      "Counter of A record values written to the provider.",
})

var pingCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: metricsNamespace,
	Name:      "ping_total",
	Help:      "Counter of keepalive datagrams by result.",
}, []string{"result"})

func observeReconcile(o Outcome) {
	reconcileCount.WithLabelValues(o.String()).Inc()
	if o == Updated {
		recordUpdates.Inc()
	}
	if o != Failed {
		lastSuccess.Set(float64(time.Now().Unix()))
	}
}

func observePing(err error) {
	if err != nil {
		pingCount.WithLabelValues("error").Inc()
		return
	}
	pingCount.WithLabelValues("sent").Inc()
}

// MetricsHandler serves the counters of this package in the Prometheus text format.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
