package analytics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// Handler handles analytics HTTP requests.
type Handler struct {
	store   *Store
	limiter *rateLimiter
	known   func(slug string) bool
}

// NewHandler creates a new analytics handler. known reports whether a slug
// belongs to a published post; reads of other slugs are dropped.
// The read endpoint is rate-limited to 60 requests per IP per minute.
func NewHandler(store *Store, known func(slug string) bool) *Handler {
	return &Handler{
		store:   store,
		limiter: newRateLimiter(60, time.Minute),
		known:   known,
	}
}

// Close stops the rate limiter's background cleanup.
func (h *Handler) Close() {
	h.limiter.close()
}

// ReadRequest is the expected request body for the read endpoint.
type ReadRequest struct {
	Slug string `json:"slug"`
}

const maxSlugLen = 200

// Record counts a read of a post. It always answers 204 so clients cannot
// probe which reads were counted.
func (h *Handler) Record(c echo.Context) error {
	if !h.limiter.allow(c.RealIP()) {
		return c.NoContent(http.StatusTooManyRequests)
	}
	if c.Request().Header.Get("DNT") == "1" {
		return c.NoContent(http.StatusNoContent)
	}

	var req ReadRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.Slug == "" || len(req.Slug) > maxSlugLen {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid slug"})
	}

	if IsBot(c.Request().UserAgent()) {
		return c.NoContent(http.StatusNoContent)
	}
	if h.known != nil && !h.known(req.Slug) {
		return c.NoContent(http.StatusNoContent)
	}

	if _, err := h.store.RecordRead(req.Slug, HashIP(c.RealIP())); err != nil {
		c.Logger().Errorf("Failed to record read: %v", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetStats returns read statistics as JSON. Query: period=today|week|month|year, top=N.
func (h *Handler) GetStats(c echo.Context) error {
	top := 10
	if v, err := strconv.Atoi(c.QueryParam("top")); err == nil && v > 0 && v <= 100 {
		top = v
	}
	stats, err := h.store.GetStats(c.QueryParam("period"), top)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// RegisterRoutes registers analytics routes with the Echo router.
func (h *Handler) RegisterRoutes(e *echo.Echo, adminMiddleware ...echo.MiddlewareFunc) {
	e.POST("/api/analytics/read", h.Record)
	e.GET("/api/admin/analytics", h.GetStats, adminMiddleware...)
}
