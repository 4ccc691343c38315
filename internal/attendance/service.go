// Package attendance stores the rosters produced by reconciliation passes so
// a course's attendance history can be read back without the backend.
package attendance

import (
	"context"
	"log/slog"

	"rollcall/internal/roster"
)

// Service records and reads roster snapshots.
type Service struct {
	repo   *Repository
	logger *slog.Logger
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// RecordPass stores the roster of a finished pass.
func (s *Service) RecordPass(ctx context.Context, rs *roster.Roster) (Snapshot, error) {
	snap, err := s.repo.SaveSnapshot(ctx, rs)
	if err != nil {
		return Snapshot{}, err
	}
	s.logger.Info("roster snapshot stored",
		"snapshot_id", snap.ID, "course_id", snap.CourseID, "date", snap.Date,
		"present", snap.PresentCount, "absent", snap.AbsentCount)
	return snap, nil
}

// History lists the snapshots of a course, newest first.
func (s *Service) History(ctx context.Context, courseID string, limit, offset int) ([]Snapshot, error) {
	return s.repo.ListSnapshots(ctx, courseID, "", limit, offset)
}

// Latest returns the newest stored roster of courseID on date.
func (s *Service) Latest(ctx context.Context, courseID, date string) (Snapshot, error) {
	return s.repo.LatestSnapshot(ctx, courseID, date)
}
