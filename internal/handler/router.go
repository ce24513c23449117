package handler

import (
	"lapor-service/internal/auth"
	"lapor-service/internal/logging"
	"lapor-service/internal/metrics"

	charmLog "github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	Reports      *ReportHandler
	Health       *HealthHandler
	Tokens       *auth.TokenService
	TrustGateway bool
	Metrics      *metrics.Recorder
	Logger       *charmLog.Logger
}

// NewRouter wires middleware and routes. The report API lives under /api/reports.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	r := gin.New()
	r.Use(logging.GinLogger(logger), gin.Recovery(), cfg.Metrics.Middleware())

	r.GET("/health", cfg.Health.Health)
	r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))

	reports := r.Group("/api/reports", Authenticate(cfg.Tokens, cfg.TrustGateway))
	cfg.Reports.RegisterRoutes(reports)

	return r
}
