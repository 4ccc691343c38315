package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/auth"
	"rollcall/internal/normalize"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	cmd.SetContext(context.Background())
	err := cmd.Execute()
	return out.String(), err
}

func TestNormalizePayload(t *testing.T) {
	tables := normalize.DefaultTables()

	v, err := normalizePayload(tables, "student", []byte(`{"StudentID": "7", "FirstName": "Ana", "LastName": "Li"}`), false)
	require.NoError(t, err)
	e, ok := v.(*normalize.Entity)
	require.True(t, ok)
	assert.True(t, e.ID.Equal(normalize.NumericID(7)))
	assert.Equal(t, "Ana Li", e.DisplayName)

	v, err = normalizePayload(tables, "course", []byte(`{"$values": [{"CourseID": 1, "CourseName": "5A"}, 3]}`), true)
	require.NoError(t, err)
	assert.Len(t, v, 1)

	v, err = normalizePayload(tables, "attendance", []byte(`[{"studentId": 2, "ScanTime": "2024-01-01 09:00:00"}]`), false)
	require.NoError(t, err)
	require.Len(t, v, 1)
	assert.Equal(t, "2024-01-01T09:00:00Z", v.([]any)[0].(*normalize.Event).Time.String())

	_, err = normalizePayload(tables, "janitor", []byte(`{}`), false)
	assert.Error(t, err)
	_, err = normalizePayload(tables, "course", []byte(`[1,`), false)
	assert.Error(t, err)
}

func TestNormalizeCommand(t *testing.T) {
	out, err := execute(t, `[{"teacherId": 4, "name": "Mr Park", "email": "park@school.test"}]`, "normalize", "teacher")
	require.NoError(t, err)

	var got []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, float64(4), got[0]["TeacherID"])
	assert.Equal(t, "Mr Park", got[0]["name"])

	_, err = execute(t, `{}`, "normalize", "janitor")
	assert.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", "cli-test-key")
	t.Setenv("JWT_ISSUER", "cli-test")

	out, err := execute(t, "", "token", "12", "--role", auth.RoleAdmin)
	require.NoError(t, err)
	claims, err := auth.Parse(strings.TrimSpace(out), "cli-test-key", "cli-test")
	require.NoError(t, err)
	assert.Equal(t, "12", claims.Subject)
	assert.Equal(t, auth.RoleAdmin, claims.Role)

	_, err = execute(t, "", "token", "12", "--role", "janitor")
	assert.Error(t, err)
}
