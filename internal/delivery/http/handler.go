package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/macrolens/productcheck/internal/domain"
	"github.com/macrolens/productcheck/internal/usecase"
)

// Version is reported by the health check
const Version = "1.0.0"

// Handler holds dependencies for HTTP handlers
type Handler struct {
	sessions *usecase.SessionRegistry
	sources  []domain.SourceDescriptor
	logger   zerolog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(sessions *usecase.SessionRegistry, sources []domain.SourceDescriptor, logger zerolog.Logger) *Handler {
	return &Handler{sessions: sessions, sources: sources, logger: logger}
}

type verifyRequest struct {
	Query   string               `json:"query" binding:"required_without=Barcode,max=200"`
	Barcode string               `json:"barcode" binding:"omitempty,gtin"`
	Mode    string               `json:"mode" binding:"omitempty,oneof=internal external combined"`
	UserID  string               `json:"user_id" binding:"omitempty,max=64"`
	Filters domain.SearchFilters `json:"filters"`
}

type selectRequest struct {
	Name            string                  `json:"name" binding:"max=200"`
	ExternalProduct *domain.ExternalProduct `json:"external_product"`
	// Index addresses an item of the session's latest suggestion list
	Index *int `json:"index" binding:"omitempty,min=0"`
}

type inputRequest struct {
	Text string `json:"text" binding:"max=200"`
}

type scanRequest struct {
	Barcode string `json:"barcode" binding:"required,gtin"`
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	ids := make([]string, 0, len(h.sources))
	for _, s := range h.sources {
		ids = append(ids, s.ID)
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"service":  "productcheck",
		"version":  Version,
		"sessions": h.sessions.Len(),
		"sources":  ids,
	})
}

// GetSuggestions answers GET /api/v1/suggestions?q=
func (h *Handler) GetSuggestions(c *gin.Context) {
	var filters domain.SearchFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return
	}

	s := sessionFrom(c)
	s.SetFilters(filters)

	set, err := s.GetSuggestions(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, set)
}

// VerifyProduct answers POST /api/v1/verify
func (h *Handler) VerifyProduct(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return
	}
	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}

	result, err := sessionFrom(c).VerifyProduct(c.Request.Context(), usecase.VerificationRequest{
		Query:   req.Query,
		Barcode: req.Barcode,
		UserID:  req.UserID,
		Filters: req.Filters,
	}, mode)
	if err != nil {
		h.writeError(c, err, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SelectSuggestion answers POST /api/v1/select
func (h *Handler) SelectSuggestion(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return
	}

	s := sessionFrom(c)
	var item usecase.Suggestion
	switch {
	case req.Index != nil:
		picked, ok := s.Latest().Suggestions.At(*req.Index)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "index is out of range of the current suggestions"})
			return
		}
		item = picked
	case req.ExternalProduct != nil:
		if strings.TrimSpace(req.ExternalProduct.Name) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "external_product.name is required"})
			return
		}
		p := *req.ExternalProduct
		item = usecase.Suggestion{Name: p.Name, External: &p}
	case strings.TrimSpace(req.Name) != "":
		item = usecase.Suggestion{Name: strings.TrimSpace(req.Name)}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "one of name, external_product or index is required"})
		return
	}

	result, err := s.SelectSuggestion(c.Request.Context(), item)
	if err != nil {
		h.writeError(c, err, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// TypeInput answers POST /api/v1/input. The text is debounced; the resulting
// suggestions are delivered on the session's event stream.
func (h *Handler) TypeInput(c *gin.Context) {
	var req inputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return
	}
	s := sessionFrom(c)
	s.Type(req.Text)
	c.JSON(http.StatusAccepted, gin.H{"sessionId": s.ID()})
}

// ScanBarcode answers POST /api/v1/scan. Scans are debounced with the long
// window and verified in combined mode; the result arrives on the event stream.
func (h *Handler) ScanBarcode(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return
	}
	s := sessionFrom(c)
	s.Scan(req.Barcode)
	c.JSON(http.StatusAccepted, gin.H{"sessionId": s.ID()})
}

// SessionEvents streams the session's state as server-sent events, starting
// with the current state
func (h *Handler) SessionEvents(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		h.writeError(c, err, nil)
		return
	}

	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("state", s.Latest())
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case st, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("state", st)
			return true
		}
	})
}

// writeError maps core errors onto HTTP statuses. A FAILED verification
// still carries its result in the body.
func (h *Handler) writeError(c *gin.Context, err error, result *domain.VerificationResult) {
	switch {
	case errors.Is(err, domain.ErrSuperseded):
		c.Status(http.StatusNoContent)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Client went away; nobody reads the response
		c.Abort()
	case errors.Is(err, domain.ErrQueryTooShort),
		errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrInvalidBarcode):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrVerificationFailed):
		if result != nil {
			c.JSON(http.StatusBadGateway, result)
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		h.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
