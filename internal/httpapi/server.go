package httpapi

import (
	"context"
	"net/http"
	"time"

	"movedesk/internal/contracts"
	"movedesk/internal/metrics"
	"movedesk/internal/pricing"
	"movedesk/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SettingsService interface {
	Get() pricing.RateSettings
	Update(ctx context.Context, patch pricing.SettingsPatch) (pricing.RateSettings, error)
}

type ContractService interface {
	Create(ctx context.Context, in contracts.CreateInput) (*storage.Contract, error)
	Get(ctx context.Context, id int64) (*storage.Contract, error)
	List(ctx context.Context, f contracts.ListFilter) ([]storage.Contract, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	Export(ctx context.Context, id int64) ([]byte, string, error)
}

// Counter backs the per-client quote rate limit.
type Counter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type RateLimit struct {
	Counter Counter
	Limit   int64
	Window  time.Duration
}

type Deps struct {
	Engine    *pricing.Engine
	Settings  SettingsService
	Contracts ContractService
	Strict    bool
	RateLimit RateLimit
	Health    []HealthCheck
	Logger    *zap.Logger
}

type Server struct {
	engine    *pricing.Engine
	settings  SettingsService
	contracts ContractService
	strict    bool
	rateLimit RateLimit
	health    []HealthCheck
	logger    *zap.Logger
}

func NewServer(deps Deps) *Server {
	return &Server{
		engine:    deps.Engine,
		settings:  deps.Settings,
		contracts: deps.Contracts,
		strict:    deps.Strict,
		rateLimit: deps.RateLimit,
		health:    deps.Health,
		logger:    deps.Logger,
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(
		recovery(s.logger),
		requestID(),
		accessLog(s.logger),
		metrics.Middleware(),
	)

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	api.POST("/quotes", rateLimit(s.rateLimit, "quotes", s.logger), s.handleQuote)

	api.GET("/settings/pricing", s.handleGetSettings)
	api.PUT("/settings/pricing", s.handleUpdateSettings)

	api.GET("/catalog", s.handleCatalog)
	api.GET("/catalog/:name", s.handleCatalogEntry)

	api.POST("/contracts", s.handleCreateContract)
	api.GET("/contracts", s.handleListContracts)
	api.GET("/contracts/:id", s.handleGetContract)
	api.PATCH("/contracts/:id/status", s.handleUpdateContractStatus)
	api.GET("/contracts/:id/export", s.handleExportContract)

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	status := http.StatusOK
	for _, h := range s.health {
		if err := h.Check(ctx); err != nil {
			s.logger.Warn("Health check failed", zap.String("check", h.Name), zap.Error(err))
			checks[h.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[h.Name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}
