package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campusevents/internal/queue"
)

// Register signs a student up for an event, creating the student from name and
// roll when no student_id is given.
func (h *Handler) Register(c *gin.Context) {
	const op = "register"
	var req registerRequest
	if err := h.bind(c, &req); err != nil {
		h.fail(c, op, err)
		return
	}
	in, err := req.input()
	if err != nil {
		h.fail(c, op, err)
		return
	}

	res, err := h.service.Register(c.Request.Context(), in)
	if err != nil {
		h.fail(c, op, err)
		return
	}
	h.committed(c, op)
	h.logger.InfoContext(c.Request.Context(), "student registered",
		"event_id", in.EventID, "student_id", res.StudentID, "registration_id", res.RegistrationID)
	h.publisher.Publish(c.Request.Context(), queue.TypeRegistrationCreated, in.EventID, res.StudentID)

	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"registration_id": res.RegistrationID,
		"student_id":      res.StudentID,
	})
}

func (h *Handler) MarkAttendance(c *gin.Context) {
	const op = "mark_attendance"
	var req attendanceRequest
	if err := h.bind(c, &req); err != nil {
		h.fail(c, op, err)
		return
	}
	in, err := req.input()
	if err != nil {
		h.fail(c, op, err)
		return
	}

	if err := h.service.MarkAttendance(c.Request.Context(), in); err != nil {
		h.fail(c, op, err)
		return
	}
	h.committed(c, op)
	h.publisher.Publish(c.Request.Context(), queue.TypeAttendanceMarked, in.EventID, in.StudentID)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) SubmitFeedback(c *gin.Context) {
	const op = "submit_feedback"
	var req feedbackRequest
	if err := h.bind(c, &req); err != nil {
		h.fail(c, op, err)
		return
	}
	in, err := req.input()
	if err != nil {
		h.fail(c, op, err)
		return
	}

	if err := h.service.SubmitFeedback(c.Request.Context(), in); err != nil {
		h.fail(c, op, err)
		return
	}
	h.committed(c, op)
	h.publisher.Publish(c.Request.Context(), queue.TypeFeedbackSubmitted, in.EventID, in.StudentID)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
