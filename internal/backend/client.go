// Package backend calls the school REST backend and hands back raw records
// for the normalizer.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"rollcall/internal/metrics"
	"rollcall/internal/normalize"
)

// ErrNotFound is returned when the backend answers 404.
var ErrNotFound = errors.New("backend: not found")

// StatusError carries a non-2xx backend answer.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend error %s %s: %d %s", e.Method, e.Path, e.Code, e.Body)
}

// Is lets errors.Is match a 404 against ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == http.StatusNotFound
}

// Client calls the school backend.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Token   string
	// TokenFunc, when set, supplies the bearer token per request and wins over Token.
	TokenFunc func() (string, error)
}

// New creates a client with the given timeout.
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	target := c.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token := c.Token
	if c.TokenFunc != nil {
		if token, err = c.TokenFunc(); err != nil {
			return nil, fmt.Errorf("backend token: %w", err)
		}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		metrics.BackendRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("backend request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()
	metrics.BackendRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode/100)+"xx").Inc()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read backend response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return data, nil
}

func (c *Client) list(ctx context.Context, endpoint, path string, query url.Values) ([]map[string]any, error) {
	data, err := c.do(ctx, endpoint, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	items, err := normalize.UnwrapList(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}

func entityPath(role normalize.Role) string {
	if role == normalize.RoleTeacher {
		return "/api/teachers/"
	}
	return "/api/students/"
}

// EntityByID fetches one student or teacher record.
func (c *Client) EntityByID(ctx context.Context, role normalize.Role, id normalize.ID) (map[string]any, error) {
	if id.IsZero() {
		return nil, errors.New("entity id required")
	}
	path := entityPath(role) + url.PathEscape(id.Key())
	data, err := c.do(ctx, "entity", http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	raw, err := normalize.DecodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	return raw, nil
}

// CourseRoster lists the students enrolled in a course.
func (c *Client) CourseRoster(ctx context.Context, courseID string) ([]map[string]any, error) {
	return c.list(ctx, "course_roster", "/api/courses/"+url.PathEscape(courseID)+"/students", nil)
}

// CourseAttendance lists the attendance records of a course on date.
func (c *Client) CourseAttendance(ctx context.Context, courseID string, date time.Time) ([]map[string]any, error) {
	q := url.Values{"date": {date.Format(normalize.DateLayout)}}
	return c.list(ctx, "course_attendance", "/api/attendance/course/"+url.PathEscape(courseID), q)
}

// EnrollmentsForEntity lists the enrollments of a student.
func (c *Client) EnrollmentsForEntity(ctx context.Context, studentID string) ([]map[string]any, error) {
	return c.list(ctx, "enrollments", "/api/enrollments/student/"+url.PathEscape(studentID), nil)
}

// CreateEnrollments enrolls a student in each course and returns whatever
// records the backend echoes back.
func (c *Client) CreateEnrollments(ctx context.Context, studentID normalize.ID, courseIDs []normalize.ID) ([]map[string]any, error) {
	ids := make([]any, 0, len(courseIDs))
	for _, id := range courseIDs {
		ids = append(ids, id.Value())
	}
	payload := map[string]any{"StudentID": studentID.Value(), "CourseIDs": ids}
	data, err := c.do(ctx, "create_enrollments", http.MethodPost, "/api/enrollments", nil, payload)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	items, err := normalize.UnwrapList(data)
	if err == nil {
		return items, nil
	}
	if !errors.Is(err, normalize.ErrUnexpectedPayload) {
		return nil, err
	}
	obj, err := normalize.DecodeObject(data)
	if err != nil || obj == nil {
		return nil, err
	}
	return []map[string]any{obj}, nil
}

// DeleteEnrollment removes one enrollment. It reports false when the
// enrollment did not exist.
func (c *Client) DeleteEnrollment(ctx context.Context, enrollmentID string) (bool, error) {
	_, err := c.do(ctx, "delete_enrollment", http.MethodDelete, "/api/enrollments/"+url.PathEscape(enrollmentID), nil, nil)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Courses lists every course.
func (c *Client) Courses(ctx context.Context) ([]map[string]any, error) {
	return c.list(ctx, "courses", "/api/courses", nil)
}

// Subjects lists every subject.
func (c *Client) Subjects(ctx context.Context) ([]map[string]any, error) {
	return c.list(ctx, "subjects", "/api/subjects", nil)
}

// Health checks if the backend is reachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("backend unavailable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("backend unhealthy: %s", resp.Status)
	}
	return nil
}
