package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"campusevents/internal/activity"
	"campusevents/internal/campus"
	"campusevents/internal/metrics"
	"campusevents/internal/reportcache"
)

type Handler struct {
	service     *campus.Service
	logger      *slog.Logger
	validator   *validator.Validate
	metrics     *metrics.Metrics
	publisher   *activity.Publisher
	cache       *reportcache.Cache
	redisHealth func(ctx context.Context) bool
}

// Option customises a Handler.
type Option func(*Handler)

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func WithPublisher(p *activity.Publisher) Option {
	return func(h *Handler) { h.publisher = p }
}

func WithReportCache(c *reportcache.Cache) Option {
	return func(h *Handler) { h.cache = c }
}

// WithRedisHealth adds a redis check to /healthz.
func WithRedisHealth(fn func(ctx context.Context) bool) Option {
	return func(h *Handler) { h.redisHealth = fn }
}

func New(service *campus.Service, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		service:   service,
		logger:    logger,
		validator: newValidator(),
		metrics:   metrics.NewMock(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts the JSON api under /api plus /healthz.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")

	api.GET("/colleges", h.ListColleges)
	api.POST("/colleges", h.CreateCollege)

	api.GET("/events", h.ListEvents)
	api.POST("/events", h.CreateEvent)
	api.POST("/events/:id/cancel", h.CancelEvent)
	api.GET("/events/:id/attendance", h.ListEventAttendance)
	api.GET("/events/:id/feedback", h.ListEventFeedback)

	api.GET("/students", h.ListStudents)
	api.POST("/students", h.CreateStudent)

	api.POST("/register", h.Register)
	api.POST("/attendance", h.MarkAttendance)
	api.POST("/feedback", h.SubmitFeedback)

	reports := api.Group("/reports")
	reports.GET("/event-popularity", h.EventPopularity)
	reports.GET("/attendance-percent", h.AttendancePercent)
	reports.GET("/avg-feedback", h.AverageFeedback)
	reports.GET("/student-participation", h.StudentParticipation)
	reports.GET("/top-students", h.TopStudents)
}

// handleServiceError writes the error response for err. Domain errors carry their
// message and metadata; anything else is logged and hidden behind a 500.
func (h *Handler) handleServiceError(c *gin.Context, op string, err error) {
	var de *campus.Error
	if !errors.As(err, &de) {
		h.logger.ErrorContext(c.Request.Context(), "request failed", "operation", op, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	body := gin.H{"error": de.Message}
	for k, v := range de.Metadata {
		body[k] = v
	}
	status := http.StatusBadRequest
	if de.Kind == campus.KindNotFound {
		status = http.StatusNotFound
	}
	h.logger.DebugContext(c.Request.Context(), "request rejected", "operation", op, "kind", de.Kind, "error", de.Message)
	c.JSON(status, body)
}

// fail records and writes the failure of an engine operation.
func (h *Handler) fail(c *gin.Context, op string, err error) {
	h.metrics.RecordOperation(op, err)
	h.handleServiceError(c, op, err)
}

// committed records a successful write and drops cached reports before the
// response goes out, so the caller's next report read sees the write. The
// activity consumer still invalidates for writes made by other replicas.
func (h *Handler) committed(c *gin.Context, op string) {
	h.metrics.RecordOperation(op, nil)
	if _, err := h.cache.InvalidateAll(c.Request.Context()); err != nil {
		h.logger.WarnContext(c.Request.Context(), "report cache invalidation failed", "operation", op, "error", err)
	}
}

// pathID parses :id. A malformed id cannot name an existing event.
func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, campus.NewError(campus.KindNotFound, campus.MsgEventNotFound)
	}
	return id, nil
}
