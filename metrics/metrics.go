// Package metrics exposes prometheus collectors for the credit engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Settlements = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "creditengine", Name: "settlements_total",
		Help: "Purchase settlements by result (settled, noop, error)",
	}, []string{"result"})

	CheckIns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "creditengine", Name: "checkins_total",
		Help: "Attendance check-ins by result (ok, insufficient_credit, error)",
	}, []string{"result"})

	Cancellations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "creditengine", Name: "cancellations_total",
		Help: "Attendance cancellations by result (ok, already_cancelled, error)",
	}, []string{"result"})

	DebitRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "creditengine", Name: "debit_retries_total",
		Help: "Grant mutations retried after a concurrency conflict",
	})

	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "creditengine", Name: "db_ping_seconds",
		Help: "DB ping latency", Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(Settlements, CheckIns, Cancellations, DebitRetries, DBPing)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }
