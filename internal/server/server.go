package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spooky-styles/orders-service/internal/config"
	"github.com/spooky-styles/orders-service/internal/handlers"
)

// Server wraps the gin router and the underlying HTTP server.
type Server struct {
	router *gin.Engine
	srv    *http.Server
}

// New builds the router and HTTP server.
func New(h *handlers.Handlers, cfg *config.Config) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router: router,
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	s.setupRoutes(h)
	return s
}

func (s *Server) setupRoutes(h *handlers.Handlers) {
	s.router.GET("/health", h.Health)
	s.router.GET("/ready", h.Ready)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider webhook lives outside the API group: the provider calls it
	// directly and authenticates via signature, not session.
	s.router.POST("/payments/webhook", h.PaymentWebhook)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/payments/intent", h.CreatePaymentIntent)
		v1.POST("/payments/confirm", h.ConfirmPayment)
		v1.POST("/payments/complete", h.CompletePayment)

		v1.GET("/orders", h.ListOrders)
		v1.GET("/orders/:id", h.GetOrder)
		v1.POST("/orders/:id/status", h.UpdateOrderStatus)
	}
}

// Start begins serving. Blocks until shutdown or failure.
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
