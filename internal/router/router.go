package router

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/praxisboard/board-api/internal/handler"
	accounthandler "github.com/praxisboard/board-api/internal/handler/account"
	assetshandler "github.com/praxisboard/board-api/internal/handler/assets"
	authhandler "github.com/praxisboard/board-api/internal/handler/auth"
	confighandler "github.com/praxisboard/board-api/internal/handler/configuration"
	intakehandler "github.com/praxisboard/board-api/internal/handler/intake"
	patienthandler "github.com/praxisboard/board-api/internal/handler/patient"
	"github.com/praxisboard/board-api/internal/middleware"
)

type Config struct {
	RateLimit     rate.Limit
	RateBurst     int
	CORSConfig    middleware.CORSConfig
	MetricsPrefix string
}

type Router struct {
	engine        *gin.Engine
	auth          *middleware.AuthMiddleware
	intakeLimiter *middleware.IntakeLimiter
	authH         *authhandler.Handler
	patientH      *patienthandler.Handler
	configH       *confighandler.Handler
	accountH      *accounthandler.Handler
	assetsH       *assetshandler.Handler
	intakeH       *intakehandler.Handler
	health        *handler.Health
	metrics       *routerMetrics
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
}

func New(
	auth *middleware.AuthMiddleware,
	intakeLimiter *middleware.IntakeLimiter,
	authH *authhandler.Handler,
	patientH *patienthandler.Handler,
	configH *confighandler.Handler,
	accountH *accounthandler.Handler,
	assetsH *assetshandler.Handler,
	intakeH *intakehandler.Handler,
	health *handler.Health,
	config Config,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	r := &Router{
		engine:        engine,
		auth:          auth,
		intakeLimiter: intakeLimiter,
		authH:         authH,
		patientH:      patientH,
		configH:       configH,
		accountH:      accountH,
		assetsH:       assetsH,
		intakeH:       intakeH,
		health:        health,
		metrics:       newRouterMetrics(config.MetricsPrefix),
	}

	engine.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.ErrorHandler(),
		r.metricsMiddleware(),
		middleware.CORS(config.CORSConfig),
	)

	apiLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  config.RateLimit,
		Burst: config.RateBurst,
	})

	api := engine.Group("/api/v1")

	healthGroup := api.Group("/health")
	{
		healthGroup.GET("/live", r.health.LivenessCheck)
		healthGroup.GET("/ready", r.health.ReadinessCheck)
	}
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// The intake endpoint authenticates with its own bearer token and has a
	// stricter per-caller window; it stays outside the session-auth group.
	r.intakeH.RegisterRoutes(engine, r.intakeLimiter.RateLimit())

	r.authH.RegisterRoutes(api)

	protected := api.Group("")
	protected.Use(apiLimiter.RateLimit(), r.auth.Authenticate())
	r.patientH.RegisterRoutes(protected)
	r.configH.RegisterRoutes(protected)

	admin := protected.Group("")
	admin.Use(r.auth.RequireAdmin())
	r.accountH.RegisterRoutes(admin)
	r.assetsH.RegisterRoutes(admin)

	return r
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func newRouterMetrics(prefix string) *routerMetrics {
	return &routerMetrics{
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: prefix + "_request_duration_seconds",
				Help: "Duration of HTTP requests in seconds",
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
	}
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		r.metrics.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		r.metrics.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
