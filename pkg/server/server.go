// Package server is the HTTP presentation adapter: a gin front-end that
// builds a pipeline RequestContext for every request, runs the pre/post
// stages around the core operation, and renders error kinds as HTTP status
// codes.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	kairos "github.com/kairosgraph/kairos"
	"github.com/kairosgraph/kairos/pkg/config"
	"github.com/kairosgraph/kairos/pkg/llm"
	"github.com/kairosgraph/kairos/pkg/metrics"
	"github.com/kairosgraph/kairos/pkg/pipeline"
	"github.com/kairosgraph/kairos/pkg/types"
)

// Server is the HTTP front-end over a Core.
type Server struct {
	config *config.Config
	core   *kairos.Core
	router *gin.Engine
	server *http.Server
}

// New creates a server instance.
func New(cfg *config.Config, core *kairos.Core) *Server {
	return &Server{config: cfg, core: core}
}

// Setup builds routes and middleware.
func (s *Server) Setup() {
	gin.SetMode(s.config.Server.Mode)

	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(metricsMiddleware())

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{Addr: addr, Handler: s.router}
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		tenants := v1.Group("/tenants")
		{
			tenants.POST("", s.handleCreateTenant)
			tenants.GET("", s.handleListTenants)
			tenants.GET("/:id", s.handleDescribeTenant)
			tenants.DELETE("/:id", s.handleDeleteTenant)
		}

		graph := v1.Group("/graph/:tenant")
		{
			graph.PUT("/nodes", s.handleUpsertNode)
			graph.GET("/nodes/:id", s.handleGetNode)
			graph.DELETE("/nodes/:id", s.handleDeleteNode)
			graph.GET("/nodes/alias/:alias", s.handleGetNodeByAlias)
			graph.PUT("/edges", s.handleUpsertEdge)
			graph.DELETE("/edges/:id", s.handleDeleteEdge)
			graph.POST("/query", s.handleQuery)
		}

		llmGroup := v1.Group("/llm/:tenant")
		{
			llmGroup.POST("/extract", s.handleExtract)
			llmGroup.POST("/extract-and-merge", s.handleExtractAndMerge)
		}
	}
}

// Start runs the server until shutdown.
func (s *Server) Start() error {
	s.core.Logger().Info("http server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.core.Logger().Info("http server stopping")
	return s.server.Shutdown(ctx)
}

// runPipeline executes the pipeline around op and renders the result. The
// op writes its response into rc.FinalResponse and may pick a status code
// by setting the "http_status" attribute to an int; default is 200.
func (s *Server) runPipeline(c *gin.Context, tenantID types.TenantID, op func(ctx context.Context, rc *pipeline.RequestContext) error) {
	rc := pipeline.NewRequestContext(c.Request.Method, c.FullPath())
	rc.TenantID = tenantID
	for k, v := range c.Request.Header {
		if len(v) > 0 {
			rc.Headers[k] = v[0]
		}
	}

	s.core.Pipeline().Execute(c.Request.Context(), rc, op)

	if rc.Err != nil {
		status, body := renderError(rc.Err)
		c.JSON(status, body)
		return
	}
	status := http.StatusOK
	if v, ok := rc.GetAttribute("http_status"); ok {
		if code, ok := v.(int); ok {
			status = code
		}
	}
	if rc.FinalResponse == nil {
		c.Status(status)
		return
	}
	c.JSON(status, rc.FinalResponse)
}

// renderError maps kind-tagged errors onto HTTP statuses.
func renderError(err error) (int, errorResponse) {
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		status := http.StatusBadGateway
		switch llmErr.Kind {
		case llm.ConfigError, llm.BudgetExceeded:
			status = http.StatusServiceUnavailable
		case llm.Timeout:
			status = http.StatusGatewayTimeout
		case llm.ResponseParseError, llm.SchemaValidationError:
			status = http.StatusUnprocessableEntity
		case llm.APIError:
			if llmErr.Status == http.StatusTooManyRequests {
				status = http.StatusTooManyRequests
			}
		}
		return status, errorResponse{Kind: string(llmErr.Kind), Message: llmErr.Message}
	}

	var coreErr *types.Error
	if errors.As(err, &coreErr) {
		status := http.StatusInternalServerError
		switch coreErr.Kind {
		case types.KindValidation:
			status = http.StatusBadRequest
		case types.KindNotFound:
			status = http.StatusNotFound
		case types.KindAlreadyExists:
			status = http.StatusConflict
		case types.KindTenantIsolation:
			status = http.StatusForbidden
		case types.KindBackend:
			status = http.StatusBadGateway
		case types.KindPartialCommit, types.KindPartialDelete:
			status = http.StatusConflict
		}
		return status, errorResponse{Kind: string(coreErr.Kind), Message: coreErr.Message, Token: coreErr.Token}
	}

	return http.StatusInternalServerError, errorResponse{Kind: string(types.KindInternal), Message: err.Error()}
}

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(started).Seconds())
	}
}
