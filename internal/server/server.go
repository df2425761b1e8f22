// Package server exposes prediction, run inspection and offline rescoring
// over HTTP.
package server

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/selfcheck-mqag/internal/config"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/orchestrator"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/store"
)

// Predictor is satisfied by *orchestrator.Orchestrator.
type Predictor interface {
	Run(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error)
}

// Server holds the handler dependencies.
type Server struct {
	predictor Predictor
	store     *store.Store
	defaults  config.ScoringConfig
	gatherer  prometheus.Gatherer
	logger    *zap.Logger
}

// New builds a Server. st may be nil, in which case persistence and the
// /v1/runs endpoints answer 503. gatherer may be nil to use the default
// registry.
func New(p Predictor, st *store.Store, defaults config.ScoringConfig, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{predictor: p, store: st, defaults: defaults, gatherer: gatherer, logger: logger}
}

// Router registers every route on a fresh gin engine.
//
//	POST /v1/predict
//	GET  /v1/runs
//	GET  /v1/runs/:id
//	POST /v1/runs/:id/rescore
//	GET  /healthz
//	GET  /metrics
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := r.Group("/v1")
	v1.POST("/predict", s.handlePredict)
	v1.GET("/runs", s.handleListRuns)
	v1.GET("/runs/:id", s.handleGetRun)
	v1.POST("/runs/:id/rescore", s.handleRescore)
	return r
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
