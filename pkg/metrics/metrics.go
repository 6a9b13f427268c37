package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gin-gonic/gin"
)

var (
	// HTTPRequestsTotal HTTP请求计数
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "haven_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration HTTP请求耗时
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "haven_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	// SessionsStarted 紧急会话启动计数
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "haven_emergency_sessions_started_total",
		Help: "Total number of emergency sessions started",
	})

	// SessionsResolved 紧急会话取消/解除计数
	SessionsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "haven_emergency_sessions_resolved_total",
		Help: "Total number of emergency sessions resolved via PIN cancellation",
	})

	// SMSAttempts 短信发送计数，按结果区分
	SMSAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "haven_sms_attempts_total",
		Help: "Total number of SMS delivery attempts",
	}, []string{"outcome"})

	// EscalationsFired 二级升级触发计数
	EscalationsFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "haven_escalations_fired_total",
		Help: "Total number of tier-2 escalations fired",
	})

	// ContactAcks 联系人确认计数
	ContactAcks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "haven_contact_acks_total",
		Help: "Total number of trusted contact acknowledgements",
	})

	// LocationPings 位置上报计数
	LocationPings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "haven_location_pings_total",
		Help: "Total number of accepted location pings",
	})

	// LiveConnections 实时观察者连接数
	LiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "haven_live_connections",
		Help: "Current number of live websocket observers",
	})
)

// Handler 暴露 /metrics
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
