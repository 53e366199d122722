package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"aiservices/internal/app"
	"aiservices/internal/idcard"
	"aiservices/internal/nsfw"
	"aiservices/internal/ocr"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusDegraded  = "degraded"
)

// ServiceHealth is the load state of one service.
type ServiceHealth struct {
	Loaded bool   `json:"loaded"`
	Status string `json:"status"`
}

// HealthResponse answers /health. It is always served with 200.
type HealthResponse struct {
	Status   string                   `json:"status"`
	Service  string                   `json:"service"`
	Version  string                   `json:"version"`
	Services map[string]ServiceHealth `json:"services"`
}

func serviceHealth(loaded bool) ServiceHealth {
	if loaded {
		return ServiceHealth{Loaded: true, Status: statusHealthy}
	}
	return ServiceHealth{Loaded: false, Status: statusUnhealthy}
}

func (s *Server) handleHealth(c *gin.Context) {
	services := map[string]ServiceHealth{
		"nsfw_detection":     serviceHealth(s.app.NSFW.Available()),
		"image_to_text":      serviceHealth(s.app.OCR.Available()),
		"id_card_processing": serviceHealth(s.app.IDCard.Available()),
	}

	status := statusHealthy
	for _, h := range services {
		if !h.Loaded {
			status = statusDegraded
		}
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:   status,
		Service:  ServiceName,
		Version:  app.Version,
		Services: services,
	})
}

type indexService struct {
	Available bool     `json:"available"`
	Endpoints []string `json:"endpoints"`
}

type indexResponse struct {
	Message          string                  `json:"message"`
	Version          string                  `json:"version"`
	Services         map[string]indexService `json:"services"`
	GeneralEndpoints []string                `json:"general_endpoints"`
}

func (s *Server) handleIndex(c *gin.Context) {
	c.JSON(http.StatusOK, indexResponse{
		Message: ServiceName,
		Version: app.Version,
		Services: map[string]indexService{
			"nsfw_detection":     {Available: s.app.NSFW.Available(), Endpoints: nsfwEndpoints},
			"image_to_text":      {Available: s.app.OCR.Available(), Endpoints: ocrEndpoints},
			"id_card_processing": {Available: s.app.IDCard.Available(), Endpoints: idCardEndpoints},
		},
		GeneralEndpoints: []string{"/health", "/model-info"},
	})
}

type nsfwModelInfo struct {
	nsfw.Info
	Endpoints []string `json:"endpoints"`
}

type ocrModelInfo struct {
	ocr.Info
	Endpoints []string `json:"endpoints"`
}

type idCardModelInfo struct {
	idcard.Info
	Endpoints []string `json:"endpoints"`
}

type modelInfoResponse struct {
	Success bool   `json:"success"`
	Version string `json:"version"`
	Models  struct {
		NSFW   nsfwModelInfo   `json:"nsfw_service"`
		OCR    ocrModelInfo    `json:"ocr_service"`
		IDCard idCardModelInfo `json:"id_card_service"`
	} `json:"models"`
}

func (s *Server) handleModelInfo(c *gin.Context) {
	resp := modelInfoResponse{Success: true, Version: app.Version}
	resp.Models.NSFW = nsfwModelInfo{Info: s.app.NSFW.Info(), Endpoints: nsfwEndpoints}
	resp.Models.OCR = ocrModelInfo{Info: s.app.OCR.Info(), Endpoints: ocrEndpoints}
	resp.Models.IDCard = idCardModelInfo{Info: s.app.IDCard.Info(), Endpoints: idCardEndpoints}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleNSFWInfo(c *gin.Context) {
	c.JSON(http.StatusOK, InfoResponse{Success: true, Service: "NSFW Detection", Info: s.app.NSFW.Info()})
}

func (s *Server) handleOCRInfo(c *gin.Context) {
	c.JSON(http.StatusOK, InfoResponse{Success: true, Service: "Image to Text (OCR)", Info: s.app.OCR.Info()})
}

func (s *Server) handleIDCardInfo(c *gin.Context) {
	c.JSON(http.StatusOK, InfoResponse{Success: true, Service: "ID Card Detection and Extraction", Info: s.app.IDCard.Info()})
}
