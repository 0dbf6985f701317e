package server

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/tkersh/echobase-sub003/pkg/logger"
	"github.com/tkersh/echobase-sub003/pkg/telemetry"
)

// Deps are the collaborators of the HTTP host.
type Deps struct {
	Submitter Submitter
	Orders    OrderLister
	Readiness StatusReporter
	// Breaker is reported on /health/live when the process consumes.
	Breaker BreakerState
	Tracer    telemetry.Tracer
	Logger    logger.Logger
	// Registry receives the HTTP metrics and backs /metrics. Nil disables both.
	Registry *prometheus.Registry
}

var registerValidatorOnce sync.Once

// registerValidators makes the gin validator report json field names and
// compare decimals numerically.
func registerValidators() {
	registerValidatorOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				f, _ := d.Float64()
				return f
			}
			return nil
		}, decimal.Decimal{})
	})
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(d Deps) *gin.Engine {
	registerValidators()
	if d.Tracer == nil {
		d.Tracer = telemetry.NoopTracer()
	}
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if d.Registry != nil {
		r.Use(newHTTPMetrics(d.Registry).Metrics())
	}
	r.Use(Tracing(d.Tracer), AccessLog(d.Logger))

	health := NewHealthHandler(d.Readiness, d.Breaker)
	r.GET("/health/live", health.Live)
	r.GET("/health/ready", health.Ready)
	if d.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))
	}

	// The consumer process serves only probes and metrics.
	if d.Submitter == nil {
		return r
	}
	orders := NewOrderHandler(d.Submitter, d.Orders, d.Logger)
	v1 := r.Group("/api/v1", RequirePrincipal())
	{
		v1.POST("/orders", orders.Create)
		v1.GET("/orders", orders.List)
	}
	return r
}
