package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/chatrelay/pkg/models"
)

// InboundSink receives every message accepted off the webhook. The sink must
// not block; delivery acknowledgment happens before any reply is produced.
type InboundSink interface {
	HandleInbound(msg models.InboundMessage)
}

// Config carries the webhook-facing settings.
type Config struct {
	Port        int
	VerifyToken string
	AppSecret   string
}

// Server terminates the WhatsApp Cloud API webhook.
type Server struct {
	echo *echo.Echo
	cfg  Config
	sink InboundSink
}

// NewServer creates the HTTP server with all routes registered.
func NewServer(cfg Config, sink InboundSink) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	server := &Server{
		echo: e,
		cfg:  cfg,
		sink: sink,
	}

	server.setupRoutes()

	return server
}

// setupRoutes configures all endpoints
func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	s.echo.GET("/webhook", s.VerifyWebhook)
	s.echo.POST("/webhook", s.ReceiveWebhook)
}

// Start begins serving and blocks until an interrupt arrives, then shuts
// down gracefully.
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.cfg.Port)); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server stopped unexpectedly")
		}
	}()

	log.Info().Int("port", s.cfg.Port).Msg("Webhook server listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	log.Info().Msg("Shutting down webhook server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}
