package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"campusevents/internal/campus"
	"campusevents/internal/reportcache"
)

func (h *Handler) EventPopularity(c *gin.Context) {
	collegeID, err := queryInt(c, "college_id")
	if err != nil {
		h.handleServiceError(c, "event_popularity", err)
		return
	}
	filter := campus.PopularityFilter{CollegeID: collegeID, Type: strings.TrimSpace(c.Query("type"))}

	rows, err := reportcache.GetOrCompute(c.Request.Context(), h.cache,
		reportcache.Key("event-popularity", filter.CollegeID, filter.Type),
		func(ctx context.Context) ([]campus.EventPopularity, error) {
			return h.service.EventPopularity(ctx, filter)
		})
	if err != nil {
		h.handleServiceError(c, "event_popularity", err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handler) AttendancePercent(c *gin.Context) {
	eventID, err := queryInt(c, "event_id")
	if err != nil {
		h.handleServiceError(c, "attendance_percent", err)
		return
	}
	if eventID <= 0 {
		// Rejected before the cache so a missing id is never cached.
		h.handleServiceError(c, "attendance_percent", campus.NewError(campus.KindValidation, "event_id required"))
		return
	}

	report, err := reportcache.GetOrCompute(c.Request.Context(), h.cache,
		reportcache.Key("attendance-percent", eventID),
		func(ctx context.Context) (campus.AttendanceReport, error) {
			return h.service.AttendancePercent(ctx, eventID)
		})
	if err != nil {
		h.handleServiceError(c, "attendance_percent", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) AverageFeedback(c *gin.Context) {
	eventID, err := queryInt(c, "event_id")
	if err != nil {
		h.handleServiceError(c, "avg_feedback", err)
		return
	}
	if eventID <= 0 {
		h.handleServiceError(c, "avg_feedback", campus.NewError(campus.KindValidation, "event_id required"))
		return
	}

	report, err := reportcache.GetOrCompute(c.Request.Context(), h.cache,
		reportcache.Key("avg-feedback", eventID),
		func(ctx context.Context) (campus.FeedbackReport, error) {
			return h.service.AverageFeedback(ctx, eventID)
		})
	if err != nil {
		h.handleServiceError(c, "avg_feedback", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) StudentParticipation(c *gin.Context) {
	rows, err := reportcache.GetOrCompute(c.Request.Context(), h.cache,
		reportcache.Key("student-participation"),
		h.service.StudentParticipation)
	if err != nil {
		h.handleServiceError(c, "student_participation", err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// TopStudents returns at most three students, optionally within ?college_id=.
func (h *Handler) TopStudents(c *gin.Context) {
	collegeID, err := queryInt(c, "college_id")
	if err != nil {
		h.handleServiceError(c, "top_students", err)
		return
	}

	rows, err := reportcache.GetOrCompute(c.Request.Context(), h.cache,
		reportcache.Key("top-students", collegeID),
		func(ctx context.Context) ([]campus.Participation, error) {
			return h.service.TopStudents(ctx, collegeID)
		})
	if err != nil {
		h.handleServiceError(c, "top_students", err)
		return
	}
	c.JSON(http.StatusOK, rows)
}
