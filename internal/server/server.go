// Package server exposes the NSFW, OCR and ID card services over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"aiservices/internal/apperr"
	"aiservices/internal/app"
	"aiservices/internal/config"
	"aiservices/internal/logger"
)

// ServiceName is reported by /health.
const ServiceName = "AI Services API"

var (
	nsfwEndpoints   = []string{"/nsfw/detect", "/nsfw/detect-base64", "/nsfw/batch-detect", "/nsfw/info"}
	ocrEndpoints    = []string{"/ocr/extract-text", "/ocr/extract-text-base64", "/ocr/batch-extract-text", "/ocr/info"}
	idCardEndpoints = []string{"/id-card/detect-and-extract", "/id-card/detect-and-extract-base64", "/id-card/detect-only", "/id-card/batch-process", "/id-card/info"}

	// legacyRoutes maps pre-versioned paths to their replacements.
	legacyRoutes = map[string]string{
		"/detect-nsfw":         "/nsfw/detect",
		"/detect-nsfw-base64":  "/nsfw/detect-base64",
		"/batch-detect-nsfw":   "/nsfw/batch-detect",
		"/extract-text":        "/ocr/extract-text",
		"/extract-text-base64": "/ocr/extract-text-base64",
		"/batch-extract-text":  "/ocr/batch-extract-text",
	}
)

// Server owns the router and the HTTP listener.
type Server struct {
	app    *app.App
	config *config.Config
	router *gin.Engine
	log    zerolog.Logger
}

// New builds the router over the services in a.
func New(a *app.App) *Server {
	if a.Config.GinMode != "" {
		gin.SetMode(a.Config.GinMode)
	}

	s := &Server{
		app:    a,
		config: a.Config,
		router: gin.New(),
		log:    logger.WithComponent("server"),
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.HandleMethodNotAllowed = true
	r.Use(requestID(), accessLog(), recovery(), cors(), bodyLimit(s.config.MaxRequestBytes))

	r.NoRoute(func(c *gin.Context) {
		respondError(c, apperr.New("route", apperr.ErrNotFound, "Endpoint not found"))
	})
	r.NoMethod(func(c *gin.Context) {
		respondError(c, apperr.New("route", apperr.ErrMethodNotAllowed, "Method not allowed"))
	})

	r.GET("/", s.handleIndex)
	r.GET("/health", s.handleHealth)
	r.GET("/model-info", s.handleModelInfo)

	nsfwPipe := s.nsfwPipeline()
	nsfw := r.Group("/nsfw")
	nsfw.POST("/detect", s.handleUpload(nsfwPipe))
	nsfw.POST("/detect-base64", s.handleBase64(nsfwPipe))
	nsfw.POST("/batch-detect", s.handleBatch(nsfwPipe))
	nsfw.GET("/info", s.handleNSFWInfo)

	ocrPipe := s.ocrPipeline()
	ocr := r.Group("/ocr")
	ocr.POST("/extract-text", s.handleUpload(ocrPipe))
	ocr.POST("/extract-text-base64", s.handleBase64(ocrPipe))
	ocr.POST("/batch-extract-text", s.handleBatch(ocrPipe))
	ocr.GET("/info", s.handleOCRInfo)

	cardPipe := s.idCardPipeline()
	card := r.Group("/id-card")
	card.POST("/detect-and-extract", s.handleUpload(cardPipe))
	card.POST("/detect-and-extract-base64", s.handleBase64(cardPipe))
	card.POST("/detect-only", s.handleUpload(s.idCardDetectPipeline()))
	card.POST("/batch-process", s.handleBatch(cardPipe))
	card.GET("/info", s.handleIDCardInfo)

	for from, to := range legacyRoutes {
		r.POST(from, handleMoved(to))
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Dur("timeout", s.config.ShutdownTimeout).Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
