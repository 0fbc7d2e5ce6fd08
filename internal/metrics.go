package internal

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zcommit_requests_total",
		Help: "HTTP requests by endpoint and method.",
	}, []string{"endpoint", "method"})
	rejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zcommit_rejected_requests_total",
		Help: "Requests rejected before dispatch, by reason.",
	}, []string{"reason"})
	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zcommit_notifications_total",
		Help: "Per-commit outcomes by status (sent, failed, malformed).",
	}, []string{"status"})
	publishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zcommit_mirror_publish_errors_total",
		Help: "Mirror publish failures by driver.",
	}, []string{"driver"})
	dispatchSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "zcommit_zsend_duration_seconds",
		Help:    "Duration of zsend invocations.",
		Buckets: prometheus.DefBuckets,
	})
)

// IncRequest counts a request. Methods the service does not serve share the
// "other" label.
func IncRequest(endpoint, method string) {
	requestsTotal.WithLabelValues(endpoint, methodLabel(method)).Inc()
}

func methodLabel(method string) string {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodHead:
		return method
	default:
		return "other"
	}
}

func IncRejected(reason string) {
	rejectedTotal.WithLabelValues(reason).Inc()
}

func IncNotification(status string) {
	notificationsTotal.WithLabelValues(status).Inc()
}

func IncPublishError(driver string) {
	publishErrors.WithLabelValues(driver).Inc()
}

// ObserveDispatch records one zsend invocation.
func ObserveDispatch(elapsed time.Duration, _ error) {
	dispatchSeconds.Observe(elapsed.Seconds())
}
