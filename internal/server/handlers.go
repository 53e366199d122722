package server

import (
	"context"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"aiservices/internal/apperr"
	"aiservices/internal/idcard"
	"aiservices/internal/ingest"
	"aiservices/internal/logger"
)

// options are the per-request knobs accepted by the image routes.
type options struct {
	maxLength   int
	extractData bool
}

// pipeline is one service operation applied to a single image.
type pipeline struct {
	unavailable string
	available   func() bool
	run         func(ctx context.Context, img *ingest.Image, opts options) (any, error)
}

func (p pipeline) check() error {
	if p.available() {
		return nil
	}
	return apperr.New("check", apperr.ErrServiceUnavailable, p.unavailable)
}

func (s *Server) nsfwPipeline() pipeline {
	return pipeline{
		unavailable: "NSFW Detection Service not available",
		available:   s.app.NSFW.Available,
		run: func(ctx context.Context, img *ingest.Image, _ options) (any, error) {
			return s.app.NSFW.Detect(ctx, img)
		},
	}
}

func (s *Server) ocrPipeline() pipeline {
	return pipeline{
		unavailable: "Image to Text Service not available",
		available:   s.app.OCR.Available,
		run: func(ctx context.Context, img *ingest.Image, opts options) (any, error) {
			return s.app.OCR.Extract(ctx, img, opts.maxLength)
		},
	}
}

func (s *Server) idCardPipeline() pipeline {
	return pipeline{
		unavailable: "ID Card Service not available",
		available:   s.app.IDCard.DetectorAvailable,
		run: func(ctx context.Context, img *ingest.Image, opts options) (any, error) {
			return s.app.IDCard.Process(ctx, img, idcard.Options{ExtractData: opts.extractData})
		},
	}
}

func (s *Server) idCardDetectPipeline() pipeline {
	return pipeline{
		unavailable: "ID Card Service not available",
		available:   s.app.IDCard.DetectorAvailable,
		run: func(ctx context.Context, img *ingest.Image, _ options) (any, error) {
			return s.app.IDCard.Detect(ctx, img)
		},
	}
}

// formOptions reads options from a multipart form. Unparseable values fall
// back to the configured defaults.
func (s *Server) formOptions(c *gin.Context) options {
	opts := options{extractData: s.config.IDCardExtractData}
	if n, err := strconv.Atoi(strings.TrimSpace(c.PostForm("max_length"))); err == nil {
		opts.maxLength = n
	}
	if b, err := strconv.ParseBool(strings.TrimSpace(c.PostForm("extract_data"))); err == nil {
		opts.extractData = b
	}
	return opts
}

type base64Request struct {
	ImageBase64 string `json:"image_base64"`
	MaxLength   any    `json:"max_length"`
	ExtractData any    `json:"extract_data"`
}

func (s *Server) jsonOptions(req base64Request) options {
	opts := options{extractData: s.config.IDCardExtractData}
	switch v := req.MaxLength.(type) {
	case float64:
		opts.maxLength = int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			opts.maxLength = n
		}
	}
	switch v := req.ExtractData.(type) {
	case bool:
		opts.extractData = v
	case float64:
		opts.extractData = v != 0
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			opts.extractData = b
		}
	}
	return opts
}

func (s *Server) workspace(c *gin.Context) (*ingest.Workspace, func(), error) {
	ws, err := ingest.NewWorkspace(s.config.UploadFolder)
	if err != nil {
		return nil, nil, apperr.Wrap("workspace", err, "Failed to prepare upload folder")
	}
	release := func() {
		if err := ws.Release(); err != nil {
			logger.WithContext(c.Request.Context()).Warn().Err(err).Msg("Failed to remove uploaded files")
		}
	}
	return ws, release, nil
}

func uploadError(op string, err error, missing string) error {
	if tooLarge := requestTooLarge(op, err); tooLarge != nil {
		return tooLarge
	}
	return apperr.New(op, apperr.ErrMissingField, missing)
}

func (s *Server) handleUpload(p pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		const op = "handleUpload"

		if err := p.check(); err != nil {
			respondError(c, err)
			return
		}

		fh, err := c.FormFile("image")
		if err != nil {
			respondError(c, uploadError(op, err, "No image file provided"))
			return
		}

		ws, release, err := s.workspace(c)
		if err != nil {
			respondError(c, err)
			return
		}
		defer release()

		img, err := ingest.FromUpload(ws, fh, s.config.MaxUploadBytes)
		if err != nil {
			respondError(c, err)
			return
		}

		data, err := p.run(c.Request.Context(), img, s.formOptions(c))
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, data)
	}
}

func (s *Server) handleBase64(p pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		const op = "handleBase64"

		if err := p.check(); err != nil {
			respondError(c, err)
			return
		}

		var req base64Request
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, uploadError(op, err, "No base64 image data provided"))
			return
		}

		img, err := ingest.FromBase64(req.ImageBase64, s.config.MaxUploadBytes)
		if err != nil {
			respondError(c, err)
			return
		}

		data, err := p.run(c.Request.Context(), img, s.jsonOptions(req))
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, data)
	}
}

// handleBatch runs p on every file in the "images" field, one after another.
// A failing file is reported in its own result and never fails the batch.
func (s *Server) handleBatch(p pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		const op = "handleBatch"

		if err := p.check(); err != nil {
			respondError(c, err)
			return
		}

		form, err := c.MultipartForm()
		if err != nil {
			respondError(c, uploadError(op, err, "No image files provided"))
			return
		}
		files := form.File["images"]
		if len(files) == 0 {
			respondError(c, apperr.New(op, apperr.ErrMissingField, "No image files provided"))
			return
		}

		ws, release, err := s.workspace(c)
		if err != nil {
			respondError(c, err)
			return
		}
		defer release()

		ctx := c.Request.Context()
		log := logger.WithContext(ctx)
		opts := s.formOptions(c)

		items := make([]BatchItem, 0, len(files))
		for i, fh := range files {
			item := BatchItem{Index: i, Filename: fh.Filename}

			data, err := s.processUpload(ctx, ws, fh, p, opts)
			if err != nil {
				item.Error = apperr.Message(err)
				log.Warn().Err(err).Int("index", i).Str("filename", fh.Filename).Msg("Batch item failed")
			} else {
				item.Success = true
				item.Data = data
			}
			items = append(items, item)
		}

		respondBatch(c, items)
	}
}

func (s *Server) processUpload(ctx context.Context, ws *ingest.Workspace, fh *multipart.FileHeader, p pipeline, opts options) (any, error) {
	img, err := ingest.FromUpload(ws, fh, s.config.MaxUploadBytes)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, img, opts)
}

func handleMoved(to string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Location", to)
		c.JSON(http.StatusMovedPermanently, MovedResponse{
			Success:  false,
			Error:    "This endpoint has moved to " + to,
			Redirect: to,
			Message:  "Please update your API calls to use the new endpoint structure",
		})
	}
}
