package attendance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/normalize"
	"rollcall/internal/roster"
)

// ErrNoSnapshot is returned when no snapshot matches.
var ErrNoSnapshot = errors.New("no roster snapshot")

// Snapshot is a stored reconciliation result.
type Snapshot struct {
	ID              string         `json:"id"`
	CourseID        string         `json:"course_id"`
	Date            string         `json:"date"`
	PresentCount    int            `json:"present_count"`
	AbsentCount     int            `json:"absent_count"`
	RawPresentCount int            `json:"raw_present_count"`
	NoAttendance    bool           `json:"no_attendance_recorded"`
	Roster          *roster.Roster `json:"roster,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS roster_snapshots (
	id                UUID PRIMARY KEY,
	course_id         TEXT NOT NULL,
	roster_date       DATE NOT NULL,
	present_count     INT NOT NULL,
	absent_count      INT NOT NULL,
	raw_present_count INT NOT NULL,
	no_attendance     BOOLEAN NOT NULL DEFAULT FALSE,
	roster            JSONB NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS roster_snapshots_course_date
	ON roster_snapshots (course_id, roster_date, created_at DESC);
`

const snapshotColumns = `id, course_id, roster_date, present_count, absent_count, raw_present_count, no_attendance, roster, created_at`

// Repository persists roster snapshots in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the snapshot table when missing.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate roster_snapshots: %w", err)
	}
	return nil
}

// SaveSnapshot stores one reconciled roster.
func (r *Repository) SaveSnapshot(ctx context.Context, rs *roster.Roster) (Snapshot, error) {
	if rs == nil || rs.CourseID == "" {
		return Snapshot{}, errors.New("roster with course id required")
	}
	day, err := time.Parse(normalize.DateLayout, rs.Date)
	if err != nil {
		return Snapshot{}, fmt.Errorf("roster date: %w", err)
	}
	body, err := json.Marshal(rs)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode roster: %w", err)
	}
	snap := Snapshot{
		ID:              uuid.NewString(),
		CourseID:        rs.CourseID,
		Date:            rs.Date,
		PresentCount:    rs.PresentCount,
		AbsentCount:     rs.AbsentCount,
		RawPresentCount: rs.RawPresentCount,
		NoAttendance:    rs.NoAttendanceRecorded,
		Roster:          rs,
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO roster_snapshots (id, course_id, roster_date, present_count, absent_count, raw_present_count, no_attendance, roster)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at
	`, snap.ID, snap.CourseID, day, snap.PresentCount, snap.AbsentCount, snap.RawPresentCount, snap.NoAttendance, string(body))
	if err := row.Scan(&snap.CreatedAt); err != nil {
		return Snapshot{}, fmt.Errorf("insert snapshot: %w", err)
	}
	return snap, nil
}

// LatestSnapshot returns the newest snapshot of courseID on date.
func (r *Repository) LatestSnapshot(ctx context.Context, courseID, date string) (Snapshot, error) {
	day, err := time.Parse(normalize.DateLayout, date)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot date: %w", err)
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM roster_snapshots
		WHERE course_id = $1 AND roster_date = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, courseID, day)
	snap, err := scanSnapshot(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNoSnapshot
	}
	return snap, err
}

// ListSnapshots returns snapshot summaries, newest first. Empty filters
// match everything.
func (r *Repository) ListSnapshots(ctx context.Context, courseID, date string, limit, offset int) ([]Snapshot, error) {
	query, args := listQuery(courseID, date, limit, offset)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()
	res := []Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows, false)
		if err != nil {
			return nil, err
		}
		res = append(res, snap)
	}
	return res, rows.Err()
}

func listQuery(courseID, date string, limit, offset int) (string, []any) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + snapshotColumns + ` FROM roster_snapshots`
	args := []any{}
	clauses := []string{}
	if courseID != "" {
		args = append(args, courseID)
		clauses = append(clauses, "course_id = $"+strconv.Itoa(len(args)))
	}
	if date != "" {
		args = append(args, date)
		clauses = append(clauses, "roster_date = $"+strconv.Itoa(len(args))+"::date")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)
	return query, args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(s scanner, withRoster bool) (Snapshot, error) {
	var (
		snap Snapshot
		day  time.Time
		body []byte
	)
	if err := s.Scan(&snap.ID, &snap.CourseID, &day, &snap.PresentCount, &snap.AbsentCount, &snap.RawPresentCount, &snap.NoAttendance, &body, &snap.CreatedAt); err != nil {
		return Snapshot{}, err
	}
	snap.Date = day.Format(normalize.DateLayout)
	if withRoster {
		var rs roster.Roster
		if err := json.Unmarshal(body, &rs); err != nil {
			return Snapshot{}, fmt.Errorf("decode snapshot %s: %w", snap.ID, err)
		}
		snap.Roster = &rs
	}
	return snap, nil
}
