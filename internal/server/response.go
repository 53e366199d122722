package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"aiservices/internal/apperr"
	"aiservices/internal/logger"
)

// Envelope is the body of every single-item response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BatchItem is the outcome for one file of a batch request.
type BatchItem struct {
	Index    int    `json:"index"`
	Filename string `json:"filename"`
	Success  bool   `json:"success"`
	Data     any    `json:"data,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BatchResponse is the body of a batch request. It is returned with 200
// whenever the request itself was well formed.
type BatchResponse struct {
	Success         bool        `json:"success"`
	TotalFiles      int         `json:"total_files"`
	SuccessfulFiles int         `json:"successful_files"`
	Results         []BatchItem `json:"results"`
}

// MovedResponse answers legacy endpoints.
type MovedResponse struct {
	Success  bool   `json:"success"`
	Error    string `json:"error"`
	Redirect string `json:"redirect"`
	Message  string `json:"message"`
}

// InfoResponse answers the per-service info endpoints.
type InfoResponse struct {
	Success bool   `json:"success"`
	Service string `json:"service"`
	Info    any    `json:"info"`
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// respondError writes err through the taxonomy and aborts the chain.
func respondError(c *gin.Context, err error) {
	status := apperr.Status(err)
	log := logger.WithContext(c.Request.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Str("path", c.Request.URL.Path).Msg("Request failed")
	} else {
		log.Debug().Err(err).Int("status", status).Str("path", c.Request.URL.Path).Msg("Request rejected")
	}
	c.AbortWithStatusJSON(status, Envelope{Success: false, Error: apperr.Message(err)})
}

func respondBatch(c *gin.Context, items []BatchItem) {
	resp := BatchResponse{
		Success:    true,
		TotalFiles: len(items),
		Results:    items,
	}
	for _, item := range items {
		if item.Success {
			resp.SuccessfulFiles++
		}
	}
	c.JSON(http.StatusOK, resp)
}
