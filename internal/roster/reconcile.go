package roster

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"rollcall/internal/fanout"
	"rollcall/internal/metrics"
	"rollcall/internal/normalize"
)

// Source is the slice of the school backend a pass needs.
type Source interface {
	CourseRoster(ctx context.Context, courseID string) ([]map[string]any, error)
	CourseAttendance(ctx context.Context, courseID string, date time.Time) ([]map[string]any, error)
	EntityByID(ctx context.Context, role normalize.Role, id normalize.ID) (map[string]any, error)
}

// Cache is the entity lookup cache consulted before the backend.
type Cache interface {
	Get(id normalize.ID) (normalize.Entity, bool)
	Put(id normalize.ID, e normalize.Entity)
}

// Options tune a Reconciler. Zero values pick the defaults.
type Options struct {
	Role        normalize.Role
	Concurrency int
	Locale      string
	Tables      *normalize.Tables
	Now         func() time.Time
}

const defaultConcurrency = 8

// Reconciler runs reconciliation passes.
type Reconciler struct {
	src         Source
	cache       Cache
	tables      *normalize.Tables
	role        normalize.Role
	concurrency int
	tag         language.Tag
	now         func() time.Time
	logger      *slog.Logger
}

// NewReconciler builds a reconciler reading from src and enriching through cache.
func NewReconciler(src Source, cache Cache, opts Options, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		src:         src,
		cache:       cache,
		tables:      opts.Tables,
		role:        opts.Role,
		concurrency: opts.Concurrency,
		tag:         language.Und,
		now:         opts.Now,
		logger:      logger,
	}
	if r.cache == nil {
		r.cache = nopCache{}
	}
	if r.tables == nil {
		r.tables = normalize.DefaultTables()
	}
	if r.role == "" {
		r.role = normalize.RoleStudent
	}
	if r.concurrency <= 0 {
		r.concurrency = defaultConcurrency
	}
	if r.now == nil {
		r.now = time.Now
	}
	if opts.Locale != "" {
		tag, err := language.Parse(opts.Locale)
		if err != nil {
			logger.Warn("invalid collation locale, using root order", "locale", opts.Locale, "err", err)
		} else {
			r.tag = tag
		}
	}
	return r
}

// Reconcile produces the present/absent roster of courseID on date.
func (r *Reconciler) Reconcile(ctx context.Context, courseID string, date time.Time) (*Roster, error) {
	start := time.Now()
	out, err := r.reconcile(ctx, courseID, date)
	metrics.RosterPassDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RosterPasses.WithLabelValues("transport_error").Inc()
		return nil, err
	}
	metrics.RosterPasses.WithLabelValues("ok").Inc()
	return out, nil
}

func (r *Reconciler) reconcile(ctx context.Context, courseID string, date time.Time) (*Roster, error) {
	rows, err := r.src.CourseRoster(ctx, courseID)
	if err != nil {
		return nil, &TransportError{Op: "fetch roster", CourseID: courseID, Err: err}
	}
	members := r.members(courseID, rows)

	records, err := r.src.CourseAttendance(ctx, courseID, date)
	if err != nil {
		return nil, &TransportError{Op: "fetch attendance", CourseID: courseID, Err: err}
	}
	attended := r.firstSeen(courseID, records)

	out := &Roster{
		CourseID:             courseID,
		Date:                 date.Format(normalize.DateLayout),
		NoAttendanceRecorded: len(records) == 0,
		RawPresentCount:      len(attended),
		Unmatched:            []normalize.ID{},
		Generated:            r.now().UTC(),
	}

	index := make(map[string]int, len(members))
	for i, m := range members {
		index[m.ID.Key()] = i
	}
	present := make(map[string]bool, len(attended))
	for _, ev := range attended {
		if _, ok := index[ev.EntityID.Key()]; !ok {
			out.Unmatched = append(out.Unmatched, ev.EntityID)
			continue
		}
		present[ev.EntityID.Key()] = true
	}

	details := r.enrich(ctx, members)

	entries := make([]Entry, 0, len(members))
	for _, ev := range attended {
		i, ok := index[ev.EntityID.Key()]
		if !ok {
			continue
		}
		e := entryFor(members[i].ID, details[i], StatusPresent, ev.Source)
		if !ev.Time.IsZero() {
			ts := ev.Time
			e.StatusTime = &ts
		}
		entries = append(entries, e)
	}
	out.PresentCount = len(entries)

	absent := make([]Entry, 0, len(members)-len(entries))
	for i, m := range members {
		if present[m.ID.Key()] {
			continue
		}
		absent = append(absent, entryFor(m.ID, details[i], StatusAbsent, SourceRoster))
	}
	r.sortAbsent(absent)
	out.AbsentCount = len(absent)
	out.Entries = append(entries, absent...)

	r.logger.Info("roster reconciled",
		"course_id", courseID, "date", out.Date,
		"present", out.PresentCount, "absent", out.AbsentCount, "unmatched", len(out.Unmatched))
	return out, nil
}

func entryFor(id normalize.ID, e normalize.Entity, status Status, source string) Entry {
	return Entry{EntityID: id, DisplayName: e.DisplayName, Email: e.Email, Status: status, Source: source}
}

// members normalizes the roster rows, dropping rows without an id and
// collapsing repeated ids onto the first row.
func (r *Reconciler) members(courseID string, rows []map[string]any) []*normalize.Entity {
	out := make([]*normalize.Entity, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for i, row := range rows {
		e, ok := r.tables.Entity(row, r.role)
		if !ok || e.ID.IsZero() {
			r.logger.Warn("roster row without identifier dropped", "course_id", courseID, "row", i)
			metrics.DroppedRecords.WithLabelValues("roster").Inc()
			continue
		}
		if seen[e.ID.Key()] {
			continue
		}
		seen[e.ID.Key()] = true
		out = append(out, e)
	}
	return out
}

// firstSeen normalizes attendance records and keeps the first event per id.
func (r *Reconciler) firstSeen(courseID string, records []map[string]any) []*normalize.Event {
	out := make([]*normalize.Event, 0, len(records))
	seen := make(map[string]bool, len(records))
	for i, rec := range records {
		ev, ok := r.tables.Attendance(rec)
		if !ok || ev.EntityID.IsZero() {
			r.logger.Warn("attendance record without identifier dropped", "course_id", courseID, "record", i)
			metrics.DroppedRecords.WithLabelValues("attendance").Inc()
			continue
		}
		if seen[ev.EntityID.Key()] {
			continue
		}
		seen[ev.EntityID.Key()] = true
		out = append(out, ev)
	}
	return out
}

type enriched struct {
	entity  normalize.Entity
	fetched bool
}

// enrich resolves display details for every member concurrently. Members
// fetched from the backend are written to the cache after the join.
func (r *Reconciler) enrich(ctx context.Context, members []*normalize.Entity) []normalize.Entity {
	results := fanout.Map(ctx, members, r.concurrency, r.lookup, func(m *normalize.Entity, err error) enriched {
		r.logger.Warn("entity enrichment failed", "entity_id", m.ID.String(), "err", err)
		metrics.Enrichments.WithLabelValues(metrics.SourceFallback).Inc()
		fallback := *m
		fallback.Email = ""
		return enriched{entity: fallback}
	})

	out := make([]normalize.Entity, len(results))
	for i, res := range results {
		out[i] = res.entity
		if res.fetched {
			r.cache.Put(members[i].ID, res.entity)
		}
	}
	return out
}

var errEmptyRecord = errors.New("empty entity record")

func (r *Reconciler) lookup(ctx context.Context, m *normalize.Entity) (enriched, error) {
	if m.HasDetails() {
		return enriched{entity: *m}, nil
	}
	if cached, ok := r.cache.Get(m.ID); ok && cached.Role == r.role {
		metrics.Enrichments.WithLabelValues(metrics.SourceCache).Inc()
		return enriched{entity: cached}, nil
	}
	raw, err := r.src.EntityByID(ctx, r.role, m.ID)
	if err != nil {
		return enriched{}, err
	}
	e, ok := r.tables.Entity(raw, r.role)
	if !ok {
		return enriched{}, errEmptyRecord
	}
	if !e.ID.Equal(m.ID) {
		if e.DisplayName == normalize.PlaceholderName(e.ID) {
			e.DisplayName = normalize.PlaceholderName(m.ID)
		}
		e.ID = m.ID
	}
	metrics.Enrichments.WithLabelValues(metrics.SourceBackend).Inc()
	return enriched{entity: *e, fetched: true}, nil
}

// sortAbsent orders absent entries by display name under the configured
// locale, then by id.
func (r *Reconciler) sortAbsent(entries []Entry) {
	col := collate.New(r.tag)
	sort.SliceStable(entries, func(i, j int) bool {
		if c := col.CompareString(entries[i].DisplayName, entries[j].DisplayName); c != 0 {
			return c < 0
		}
		return idLess(entries[i].EntityID, entries[j].EntityID)
	})
}

// idLess puts numeric ids first in numeric order, then string ids.
func idLess(a, b normalize.ID) bool {
	an, aNum := a.Int()
	bn, bNum := b.Int()
	switch {
	case aNum && bNum:
		return an < bn
	case aNum != bNum:
		return aNum
	}
	return a.Key() < b.Key()
}

type nopCache struct{}

func (nopCache) Get(normalize.ID) (normalize.Entity, bool) { return normalize.Entity{}, false }
func (nopCache) Put(normalize.ID, normalize.Entity)        {}
