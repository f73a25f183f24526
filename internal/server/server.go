package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bazaarhq/paygate/internal/config"
	paymentdomain "github.com/bazaarhq/paygate/internal/payment/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	orchestrator paymentdomain.Orchestrator
	ingestor     paymentdomain.Ingestor
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	Orchestrator paymentdomain.Orchestrator
	Ingestor     paymentdomain.Ingestor
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.server"),
		orchestrator: p.Orchestrator,
		ingestor:     p.Ingestor,
	}
}

func (s *Server) RegisterRoutes() {
	s.engine.POST("/payments", s.CreatePayment)
	s.engine.GET("/payments/:id", s.GetPayment)
	s.engine.POST("/payments/:id/refunds", s.CreateRefund)

	// Gateways redirect the payer here after payment; some providers use
	// GET on the redirect, some POST server-to-server.
	s.engine.GET("/callbacks/:gateway", s.HandleGatewayCallback)
	s.engine.POST("/callbacks/:gateway", s.HandleGatewayCallback)

	s.engine.POST("/webhooks/:source", s.HandleWebhook)
}
