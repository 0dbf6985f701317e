package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tkersh/echobase-sub003/internal/order"
	"github.com/tkersh/echobase-sub003/pkg/logger"
	"github.com/tkersh/echobase-sub003/pkg/telemetry"
)

// Headers set by the authenticating gateway in front of the API.
const (
	HeaderUserID        = "X-User-ID"
	HeaderUserName      = "X-User-Name"
	HeaderCorrelationID = "X-Correlation-ID"
)

const principalKey = "echobase.principal"

type httpMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	f := promauto.With(reg)
	return &httpMetrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "echobase",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "echobase",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// Metrics records request counts and latencies by matched route.
func (m *httpMetrics) Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.latency.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// Tracing continues the caller's trace from the traceparent/tracestate headers
// and stores the correlation id for the logger.
func Tracing(tracer telemetry.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		carrier := make(map[string]string, 2)
		for _, h := range []string{"traceparent", "tracestate"} {
			if v := c.GetHeader(h); v != "" {
				carrier[h] = v
			}
		}
		ctx := tracer.Extract(c.Request.Context(), carrier)
		ctx, end := tracer.Start(ctx, c.Request.Method+" "+c.FullPath())
		defer end()

		if id := c.GetHeader(HeaderCorrelationID); id != "" {
			ctx = logger.WithTraceID(ctx, id)
		}
		c.Request = c.Request.WithContext(logger.WithComponent(ctx, "api"))
		c.Next()
	}
}

// AccessLog writes one line per request.
func AccessLog(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		line := "[HTTP] %s %s status=%d latency=%s client=%s"
		args := []interface{}{c.Request.Method, c.Request.URL.Path, status, time.Since(start), c.ClientIP()}
		switch {
		case status >= http.StatusInternalServerError:
			log.Errorf(c.Request.Context(), line, args...)
		case status >= http.StatusBadRequest:
			log.Warnf(c.Request.Context(), line, args...)
		default:
			log.Debugf(c.Request.Context(), line, args...)
		}
	}
}

// RequirePrincipal reads the caller identity from the gateway headers and
// rejects requests without one.
func RequirePrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		id, err := strconv.ParseInt(raw, 10, 64)
		if raw == "" || err != nil || id <= 0 {
			Error(c, http.StatusUnauthorized, "missing or invalid caller identity")
			return
		}
		c.Set(principalKey, order.Principal{
			UserID:      id,
			DisplayName: strings.TrimSpace(c.GetHeader(HeaderUserName)),
		})
		c.Next()
	}
}

func principalFrom(c *gin.Context) order.Principal {
	v, _ := c.Get(principalKey)
	p, _ := v.(order.Principal)
	return p
}
