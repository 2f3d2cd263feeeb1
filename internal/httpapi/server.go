// Package httpapi exposes the token ledger and marketplace flows over HTTP.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/influmatch/tokenledger/internal/marketplace"
	"github.com/influmatch/tokenledger/internal/payments"
	"github.com/influmatch/tokenledger/pkg/tokens"
	"go.uber.org/zap"
)

// Server wires the HTTP routes over the domain services.
type Server struct {
	cfg       Config
	logger    *zap.Logger
	ledger    *tokens.Service
	market    *marketplace.Service
	processor *payments.Processor
	router    *gin.Engine
}

// NewServer builds the router.
func NewServer(cfg Config, logger *zap.Logger, ledger *tokens.Service, market *marketplace.Service, processor *payments.Processor) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	server := &Server{
		cfg:       cfg,
		logger:    logger,
		ledger:    ledger,
		market:    market,
		processor: processor,
	}
	server.router = server.setupRouter()
	return server, nil
}

// Handler returns the http.Handler for the API.
func (server *Server) Handler() http.Handler {
	return server.router
}

func (server *Server) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     server.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// The processor authenticates with its signature header, not a session.
	router.POST("/api/webhooks/payments", server.handlePaymentWebhook)

	api := router.Group("/api")
	api.Use(sessionMiddleware(server.cfg))
	api.GET("/wallet", server.handleWallet)
	api.POST("/contacts", server.handleContact)
	api.POST("/boosts", server.handleBoost)
	api.GET("/pricing/contact", server.handleContactPricing)

	return router
}
