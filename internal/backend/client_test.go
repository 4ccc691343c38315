package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/normalize"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", "tok", time.Second)
}

func TestEntityByID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/students/7":
			_, _ = w.Write([]byte(`{"data": {"StudentID": 7, "FirstName": "Ana"}}`))
		case "/api/teachers/3":
			_, _ = w.Write([]byte(`{"TeacherID": 3}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	raw, err := c.EntityByID(ctx, normalize.RoleStudent, normalize.StringID("7"))
	require.NoError(t, err)
	assert.Equal(t, "Ana", raw["FirstName"])

	raw, err = c.EntityByID(ctx, normalize.RoleTeacher, normalize.NumericID(3))
	require.NoError(t, err)
	assert.Equal(t, json.Number("3"), raw["TeacherID"])

	_, err = c.EntityByID(ctx, normalize.RoleStudent, normalize.NumericID(99))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.EntityByID(ctx, normalize.RoleStudent, normalize.ID{})
	assert.Error(t, err)
}

func TestCourseRosterAndAttendance(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/courses/10/students":
			_, _ = w.Write([]byte(`{"$values": [{"StudentID": 1}, {"studentId": "2"}]}`))
		case "/api/attendance/course/10":
			assert.Equal(t, "2024-01-01", r.URL.Query().Get("date"))
			_, _ = w.Write([]byte(`[{"StudentID": 2, "ScanTime": "2024-01-01 09:00:00"}]`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	roster, err := c.CourseRoster(ctx, "10")
	require.NoError(t, err)
	assert.Len(t, roster, 2)

	att, err := c.CourseAttendance(ctx, "10", time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, att, 1)
}

func TestServerErrorIsWrapped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "db down", http.StatusInternalServerError)
	})

	_, err := c.CourseRoster(context.Background(), "10")
	require.Error(t, err)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Equal(t, "db down", se.Body)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestUnexpectedListPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message": "hello"}`))
	})

	_, err := c.Courses(context.Background())
	assert.ErrorIs(t, err, normalize.ErrUnexpectedPayload)
}

func TestCreateEnrollments(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/enrollments", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(7), body["StudentID"])
		assert.Equal(t, []any{float64(10), "art-1"}, body["CourseIDs"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"EnrollmentID": 1, "StudentID": 7, "CourseID": 10}`))
	})

	out, err := c.CreateEnrollments(context.Background(), normalize.NumericID(7), []normalize.ID{normalize.StringID("10"), normalize.StringID("art-1")})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, json.Number("1"), out[0]["EnrollmentID"])
}

func TestDeleteEnrollment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		if r.URL.Path == "/api/enrollments/5" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.NotFound(w, r)
	})
	ctx := context.Background()

	ok, err := c.DeleteEnrollment(ctx, "5")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.DeleteEnrollment(ctx, "6")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	assert.NoError(t, c.Health(context.Background()))

	c.BaseURL += "/nope"
	assert.Error(t, c.Health(context.Background()))
}

func TestTokenFunc(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "static", time.Second)
	c.TokenFunc = func() (string, error) { return "minted", nil }
	_, err := c.Courses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer minted", got)

	c.TokenFunc = func() (string, error) { return "", errors.New("no key") }
	_, err = c.Courses(context.Background())
	assert.Error(t, err)
}
