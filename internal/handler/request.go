package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"campusevents/internal/campus"
)

// flexInt decodes a JSON number or a numeric string, since browser forms post
// every value as a string. null and "" leave it unset; anything else that is not
// an integer marks it invalid instead of failing the whole body.
type flexInt struct {
	value   int64
	set     bool
	invalid bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	*f = flexInt{}
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		s = strings.TrimSpace(str)
		if s == "" {
			return nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		f.value, f.set = n, true
		return nil
	}
	// 3.0 is still an integer.
	if fl, err := strconv.ParseFloat(s, 64); err == nil && fl == math.Trunc(fl) && math.Abs(fl) < 1<<53 {
		f.value, f.set = int64(fl), true
		return nil
	}
	f.invalid = true
	return nil
}

// int returns the decoded value, or a validation error naming the field.
func (f flexInt) int(field string) (int64, error) {
	if f.invalid {
		return 0, campus.NewError(campus.KindValidation, field+" must be an integer")
	}
	return f.value, nil
}

func (f flexInt) ptr() *int {
	if !f.set {
		return nil
	}
	v := int(f.value)
	return &v
}

type registerRequest struct {
	EventID   flexInt `json:"event_id"`
	StudentID flexInt `json:"student_id"`
	Name      string  `json:"name" validate:"max=200"`
	Roll      string  `json:"roll" validate:"max=64"`
	CollegeID flexInt `json:"college_id"`
	Email     *string `json:"email" validate:"omitempty,email,max=254"`
}

func (r registerRequest) input() (campus.RegisterInput, error) {
	eventID, err := r.EventID.int("event_id")
	if err != nil {
		return campus.RegisterInput{}, err
	}
	studentID, err := r.StudentID.int("student_id")
	if err != nil {
		return campus.RegisterInput{}, err
	}
	collegeID, err := r.CollegeID.int("college_id")
	if err != nil {
		return campus.RegisterInput{}, err
	}
	in := campus.RegisterInput{
		EventID:   eventID,
		Name:      r.Name,
		Roll:      r.Roll,
		CollegeID: collegeID,
		Email:     r.Email,
	}
	if r.StudentID.set {
		in.StudentID = &studentID
	}
	return in, nil
}

type attendanceRequest struct {
	StudentID flexInt `json:"student_id"`
	EventID   flexInt `json:"event_id"`
	Status    string  `json:"status"`
}

func (r attendanceRequest) input() (campus.AttendanceInput, error) {
	studentID, err := r.StudentID.int("student_id")
	if err != nil {
		return campus.AttendanceInput{}, err
	}
	eventID, err := r.EventID.int("event_id")
	if err != nil {
		return campus.AttendanceInput{}, err
	}
	return campus.AttendanceInput{StudentID: studentID, EventID: eventID, Status: r.Status}, nil
}

type feedbackRequest struct {
	StudentID flexInt `json:"student_id"`
	EventID   flexInt `json:"event_id"`
	Rating    flexInt `json:"rating"`
	Comment   string  `json:"comment" validate:"max=2000"`
}

func (r feedbackRequest) input() (campus.FeedbackInput, error) {
	studentID, err := r.StudentID.int("student_id")
	if err != nil {
		return campus.FeedbackInput{}, err
	}
	eventID, err := r.EventID.int("event_id")
	if err != nil {
		return campus.FeedbackInput{}, err
	}
	if r.Rating.invalid {
		return campus.FeedbackInput{}, campus.NewError(campus.KindValidation, campus.MsgBadRating)
	}
	rating := r.Rating.value
	if rating > math.MaxInt32 || rating < math.MinInt32 {
		return campus.FeedbackInput{}, campus.NewError(campus.KindValidation, campus.MsgBadRating)
	}
	return campus.FeedbackInput{StudentID: studentID, EventID: eventID, Rating: int(rating), Comment: r.Comment}, nil
}

type eventRequest struct {
	CollegeID flexInt `json:"college_id"`
	Name      string  `json:"name" validate:"max=200"`
	Type      string  `json:"type" validate:"max=100"`
	Date      string  `json:"date" validate:"max=32"`
	Capacity  flexInt `json:"capacity"`
	Status    string  `json:"status"`
}

func (r eventRequest) input() (campus.EventInput, error) {
	collegeID, err := r.CollegeID.int("college_id")
	if err != nil {
		return campus.EventInput{}, err
	}
	if r.Capacity.invalid || (r.Capacity.set && r.Capacity.value > math.MaxInt32) {
		return campus.EventInput{}, campus.NewError(campus.KindValidation, campus.MsgBadCapacity)
	}
	return campus.EventInput{
		CollegeID: collegeID,
		Name:      r.Name,
		Type:      r.Type,
		Date:      r.Date,
		Capacity:  r.Capacity.ptr(),
		Status:    r.Status,
	}, nil
}

type studentRequest struct {
	CollegeID flexInt `json:"college_id"`
	Roll      string  `json:"roll" validate:"max=64"`
	Name      string  `json:"name" validate:"max=200"`
	Email     *string `json:"email" validate:"omitempty,email,max=254"`
}

func (r studentRequest) input() (campus.StudentInput, error) {
	collegeID, err := r.CollegeID.int("college_id")
	if err != nil {
		return campus.StudentInput{}, err
	}
	return campus.StudentInput{CollegeID: collegeID, Roll: r.Roll, Name: r.Name, Email: r.Email}, nil
}

type collegeRequest struct {
	Name string `json:"name" validate:"max=200"`
	Code string `json:"code" validate:"max=32"`
}

var errBadBody = campus.NewError(campus.KindValidation, "invalid JSON body")

// bind decodes the JSON body into req and runs struct validation. An empty body
// decodes as an empty object so the engine reports the missing fields.
func (h *Handler) bind(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		return errBadBody
	}
	if err := h.validator.Struct(req); err != nil {
		return campus.NewError(campus.KindValidation, validationMessage(err))
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "email":
		return fe.Field() + " must be a valid email address"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fe.Field() + " is invalid"
	}
}

// queryInt parses an optional numeric query parameter; absent or empty yields 0.
func queryInt(c *gin.Context, name string) (int64, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, campus.NewError(campus.KindValidation, name+" must be an integer")
	}
	return v, nil
}
