package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"campusevents/internal/campus"
	"campusevents/internal/queue"
)

func (h *Handler) ListColleges(c *gin.Context) {
	colleges, err := h.service.ListColleges(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, "list_colleges", err)
		return
	}
	c.JSON(http.StatusOK, colleges)
}

func (h *Handler) CreateCollege(c *gin.Context) {
	const op = "create_college"
	var req collegeRequest
	if err := h.bind(c, &req); err != nil {
		h.fail(c, op, err)
		return
	}
	id, err := h.service.CreateCollege(c.Request.Context(), req.Name, req.Code)
	if err != nil {
		h.fail(c, op, err)
		return
	}
	h.committed(c, op)
	h.publisher.Publish(c.Request.Context(), queue.TypeCollegeCreated, 0, 0)
	c.JSON(http.StatusCreated, gin.H{"status": "ok", "college_id": id})
}

// ListEvents returns every event ordered by date.
func (h *Handler) ListEvents(c *gin.Context) {
	events, err := h.service.ListEvents(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, "list_events", err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func (h *Handler) CreateEvent(c *gin.Context) {
	const op = "create_event"
	var req eventRequest
	if err := h.bind(c, &req); err != nil {
		h.fail(c, op, err)
		return
	}
	in, err := req.input()
	if err != nil {
		h.fail(c, op, err)
		return
	}
	id, err := h.service.CreateEvent(c.Request.Context(), in)
	if err != nil {
		h.fail(c, op, err)
		return
	}
	h.committed(c, op)
	h.logger.InfoContext(c.Request.Context(), "event created", "event_id", id, "college_id", in.CollegeID)
	h.publisher.Publish(c.Request.Context(), queue.TypeEventCreated, id, 0)
	c.JSON(http.StatusCreated, gin.H{"status": "ok", "event_id": id})
}

func (h *Handler) CancelEvent(c *gin.Context) {
	const op = "cancel_event"
	id, err := pathID(c)
	if err != nil {
		h.fail(c, op, err)
		return
	}
	if err := h.service.CancelEvent(c.Request.Context(), id); err != nil {
		h.fail(c, op, err)
		return
	}
	h.committed(c, op)
	h.logger.InfoContext(c.Request.Context(), "event cancelled", "event_id", id)
	h.publisher.Publish(c.Request.Context(), queue.TypeEventCancelled, id, 0)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "msg": "event cancelled"})
}

func (h *Handler) ListEventAttendance(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.handleServiceError(c, "list_attendance", err)
		return
	}
	rows, err := h.service.ListEventAttendance(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, "list_attendance", err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handler) ListEventFeedback(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.handleServiceError(c, "list_feedback", err)
		return
	}
	rows, err := h.service.ListEventFeedback(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, "list_feedback", err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// ListStudents supports ?roll= and ?college_id= filters.
func (h *Handler) ListStudents(c *gin.Context) {
	collegeID, err := queryInt(c, "college_id")
	if err != nil {
		h.handleServiceError(c, "list_students", err)
		return
	}
	students, err := h.service.ListStudents(c.Request.Context(), campus.StudentFilter{
		Roll:      strings.TrimSpace(c.Query("roll")),
		CollegeID: collegeID,
	})
	if err != nil {
		h.handleServiceError(c, "list_students", err)
		return
	}
	c.JSON(http.StatusOK, students)
}

func (h *Handler) CreateStudent(c *gin.Context) {
	const op = "create_student"
	var req studentRequest
	if err := h.bind(c, &req); err != nil {
		h.fail(c, op, err)
		return
	}
	in, err := req.input()
	if err != nil {
		h.fail(c, op, err)
		return
	}
	id, err := h.service.CreateStudent(c.Request.Context(), in)
	if err != nil {
		h.fail(c, op, err)
		return
	}
	h.committed(c, op)
	h.publisher.Publish(c.Request.Context(), queue.TypeStudentCreated, 0, id)
	c.JSON(http.StatusCreated, gin.H{"status": "ok", "student_id": id})
}
