// Package handler exposes rosters, people and enrollments over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/normalize"
	"rollcall/internal/queue"
	"rollcall/internal/roster"
)

// Rosters runs reconciliation passes and person lookups.
type Rosters interface {
	Run(ctx context.Context, courseID string, date time.Time) (*roster.Roster, error)
	Entity(ctx context.Context, role normalize.Role, id normalize.ID, refresh bool) (*normalize.Entity, error)
	Tables() *normalize.Tables
}

// Backend is the part of the school backend the API proxies.
type Backend interface {
	Courses(ctx context.Context) ([]map[string]any, error)
	Subjects(ctx context.Context) ([]map[string]any, error)
	CourseRoster(ctx context.Context, courseID string) ([]map[string]any, error)
	EnrollmentsForEntity(ctx context.Context, studentID string) ([]map[string]any, error)
	CreateEnrollments(ctx context.Context, studentID normalize.ID, courseIDs []normalize.ID) ([]map[string]any, error)
	DeleteEnrollment(ctx context.Context, enrollmentID string) (bool, error)
}

// History reads stored roster snapshots.
type History interface {
	History(ctx context.Context, courseID string, limit, offset int) ([]attendance.Snapshot, error)
}

type Handler struct {
	rosters Rosters
	backend Backend
	history History
	queue   queue.Queue
	logger  *slog.Logger
	now     func() time.Time
}

// New builds the handler. history and q may be nil when Postgres or the job
// queue are not available; their routes then answer 503.
func New(rosters Rosters, be Backend, history History, q queue.Queue, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{rosters: rosters, backend: be, history: history, queue: q, logger: logger, now: time.Now}
}

// RegisterRoutes mounts the API on r, which must already run auth.Bearer.
func RegisterRoutes(r gin.IRoutes, h *Handler) {
	staff := auth.RequireRole(auth.RoleAdmin, auth.RoleTeacher)
	admin := auth.RequireRole(auth.RoleAdmin)

	r.GET("/courses", h.ListCourses)
	r.GET("/subjects", h.ListSubjects)
	r.GET("/courses/:id/students", staff, h.CourseStudents)
	r.GET("/courses/:id/roster", staff, h.CourseRoster)
	r.POST("/courses/:id/roster/refresh", staff, h.RefreshRoster)
	r.GET("/courses/:id/roster/history", staff, h.RosterHistory)

	r.GET("/students/:id", auth.SelfOrRole("id", auth.RoleAdmin, auth.RoleTeacher), h.entity(normalize.RoleStudent))
	r.GET("/teachers/:id", auth.SelfOrRole("id", auth.RoleAdmin, auth.RoleTeacher), h.entity(normalize.RoleTeacher))

	r.GET("/students/:id/enrollments", auth.SelfOrRole("id", auth.RoleAdmin, auth.RoleTeacher), h.ListEnrollments)
	r.POST("/students/:id/enrollments", admin, h.CreateEnrollments)
	r.DELETE("/enrollments/:id", admin, h.DeleteEnrollment)
}

// GET /courses
func (h *Handler) ListCourses(c *gin.Context) {
	rows, err := h.backend.Courses(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	tables := h.rosters.Tables()
	out := make([]*normalize.Course, 0, len(rows))
	for _, row := range rows {
		if course, ok := tables.Course(row); ok {
			out = append(out, course)
		}
	}
	c.JSON(http.StatusOK, gin.H{"courses": out})
}

// GET /subjects
func (h *Handler) ListSubjects(c *gin.Context) {
	rows, err := h.backend.Subjects(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	tables := h.rosters.Tables()
	out := make([]*normalize.Subject, 0, len(rows))
	for _, row := range rows {
		if subject, ok := tables.Subject(row); ok {
			out = append(out, subject)
		}
	}
	c.JSON(http.StatusOK, gin.H{"subjects": out})
}

// GET /courses/:id/students
func (h *Handler) CourseStudents(c *gin.Context) {
	rows, err := h.backend.CourseRoster(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	tables := h.rosters.Tables()
	out := make([]*normalize.Entity, 0, len(rows))
	for _, row := range rows {
		e, ok := tables.Entity(row, normalize.RoleStudent)
		if !ok || e.ID.IsZero() {
			continue
		}
		out = append(out, e)
	}
	c.JSON(http.StatusOK, gin.H{"students": out})
}

func (h *Handler) date(c *gin.Context) (time.Time, bool) {
	v := c.Query("date")
	if v == "" {
		now := h.now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), true
	}
	d, err := time.Parse(normalize.DateLayout, v)
	if err != nil {
		h.fail(c, errInvalid("date must be yyyy-MM-dd"))
		return time.Time{}, false
	}
	return d, true
}

// GET /courses/:id/roster?date=yyyy-MM-dd
func (h *Handler) CourseRoster(c *gin.Context) {
	date, ok := h.date(c)
	if !ok {
		return
	}
	rs, err := h.rosters.Run(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rs)
}

// POST /courses/:id/roster/refresh?date=yyyy-MM-dd
func (h *Handler) RefreshRoster(c *gin.Context) {
	if h.queue == nil {
		h.fail(c, errUnavailable("job queue not configured"))
		return
	}
	date, ok := h.date(c)
	if !ok {
		return
	}
	msg := queue.RosterRefresh(c.Param("id"), date.Format(normalize.DateLayout))
	if err := h.queue.Publish(c.Request.Context(), msg); err != nil {
		h.logger.Error("queue publish failed", "course_id", msg.CourseID, "err", err)
		h.fail(c, errUnavailable("could not queue refresh"))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": true, "course_id": msg.CourseID, "date": msg.Date})
}

// GET /courses/:id/roster/history?limit=&offset=
func (h *Handler) RosterHistory(c *gin.Context) {
	if h.history == nil {
		h.fail(c, errUnavailable("snapshot store not configured"))
		return
	}
	limit, offset := 50, 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	snaps, err := h.history.History(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snaps})
}

// GET /students/:id and /teachers/:id; ?refresh=true bypasses the cache
func (h *Handler) entity(role normalize.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := normalize.ParseID(c.Param("id"))
		if !ok {
			h.fail(c, errInvalid("id required"))
			return
		}
		refresh, _ := strconv.ParseBool(c.Query("refresh"))
		e, err := h.rosters.Entity(c.Request.Context(), role, id, refresh)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

// GET /students/:id/enrollments
func (h *Handler) ListEnrollments(c *gin.Context) {
	rows, err := h.backend.EnrollmentsForEntity(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enrollments": h.enrollments(rows)})
}

func (h *Handler) enrollments(rows []map[string]any) []*normalize.Enrollment {
	tables := h.rosters.Tables()
	out := make([]*normalize.Enrollment, 0, len(rows))
	for _, row := range rows {
		if e, ok := tables.Enrollment(row); ok {
			out = append(out, e)
		}
	}
	return out
}

type createEnrollmentsRequest struct {
	CourseIDs []normalize.ID `json:"course_ids"`
}

// POST /students/:id/enrollments
func (h *Handler) CreateEnrollments(c *gin.Context) {
	studentID, ok := normalize.ParseID(c.Param("id"))
	if !ok {
		h.fail(c, errInvalid("student id required"))
		return
	}
	var req createEnrollmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errInvalid("invalid json"))
		return
	}
	ids := req.CourseIDs[:0]
	for _, id := range req.CourseIDs {
		if !id.IsZero() {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		h.fail(c, errInvalid("course_ids must name at least one course"))
		return
	}
	rows, err := h.backend.CreateEnrollments(c.Request.Context(), studentID, ids)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"enrollments": h.enrollments(rows)})
}

// DELETE /enrollments/:id
func (h *Handler) DeleteEnrollment(c *gin.Context) {
	deleted, err := h.backend.DeleteEnrollment(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !deleted {
		h.fail(c, errNotFound("enrollment not found"))
		return
	}
	c.Status(http.StatusNoContent)
}
