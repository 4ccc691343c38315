package roster

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"rollcall/internal/lookupcache"
	"rollcall/internal/metrics"
	"rollcall/internal/normalize"
)

// Service wraps the reconciler with the lookup cache lifecycle: load before a
// pass, persist once after it.
type Service struct {
	src        Source
	cache      *lookupcache.Cache
	reconciler *Reconciler
	tables     *normalize.Tables
	logger     *slog.Logger
}

// NewService wires a reconciler that enriches through cache.
func NewService(src Source, cache *lookupcache.Cache, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cache == nil {
		cache = lookupcache.New(nil, logger)
	}
	rec := NewReconciler(src, cache, opts, logger)
	return &Service{src: src, cache: cache, reconciler: rec, tables: rec.tables, logger: logger}
}

// Run performs one reconciliation pass. Cache load and persist failures are
// logged and do not fail the pass.
func (s *Service) Run(ctx context.Context, courseID string, date time.Time) (*Roster, error) {
	if err := s.cache.Load(ctx); err != nil {
		s.logger.Warn("lookup cache unavailable, continuing cold", "err", err)
	}
	out, err := s.reconciler.Reconcile(ctx, courseID, date)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Persist(ctx); err != nil {
		s.logger.Warn("lookup cache not persisted", "err", err)
	}
	return out, nil
}

// Entity returns one person record, from the cache unless refresh is set.
// A cached record of another role counts as a miss. A backend read always
// overwrites the cached copy.
func (s *Service) Entity(ctx context.Context, role normalize.Role, id normalize.ID, refresh bool) (*normalize.Entity, error) {
	if !refresh {
		if err := s.cache.Load(ctx); err != nil {
			s.logger.Warn("lookup cache unavailable, continuing cold", "err", err)
		}
		if e, ok := s.cache.Get(id); ok && e.Role == role {
			metrics.Enrichments.WithLabelValues(metrics.SourceCache).Inc()
			return &e, nil
		}
	}
	raw, err := s.src.EntityByID(ctx, role, id)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", role, id, err)
	}
	e, ok := s.tables.Entity(raw, role)
	if !ok {
		return nil, fmt.Errorf("fetch %s %s: %w", role, id, errEmptyRecord)
	}
	if e.ID.IsZero() {
		if e.DisplayName == normalize.PlaceholderName(e.ID) {
			e.DisplayName = normalize.PlaceholderName(id)
		}
		e.ID = id
	}
	metrics.Enrichments.WithLabelValues(metrics.SourceBackend).Inc()
	s.cache.Put(id, *e)
	if err := s.cache.Persist(ctx); err != nil {
		s.logger.Warn("lookup cache not persisted", "err", err)
	}
	return e, nil
}

// Tables returns the alias tables the service normalizes with.
func (s *Service) Tables() *normalize.Tables { return s.tables }
