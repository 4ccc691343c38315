package roster

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/lookupcache"
	"rollcall/internal/normalize"
)

type fakeSource struct {
	mu         sync.Mutex
	roster     []map[string]any
	rosterErr  error
	attendance []map[string]any
	attErr     error
	entities   map[string]map[string]any
	teachers   map[string]map[string]any // answers teacher lookups when set
	lookups    map[string]int
}

func (f *fakeSource) CourseRoster(context.Context, string) ([]map[string]any, error) {
	return f.roster, f.rosterErr
}

func (f *fakeSource) CourseAttendance(context.Context, string, time.Time) ([]map[string]any, error) {
	return f.attendance, f.attErr
}

func (f *fakeSource) EntityByID(_ context.Context, role normalize.Role, id normalize.ID) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookups == nil {
		f.lookups = map[string]int{}
	}
	f.lookups[id.Key()]++
	records := f.entities
	if role == normalize.RoleTeacher && f.teachers != nil {
		records = f.teachers
	}
	raw, ok := records[id.Key()]
	if !ok {
		return nil, errors.New("not found")
	}
	return raw, nil
}

func (f *fakeSource) lookupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.lookups {
		n += c
	}
	return n
}

var (
	day       = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fixedNow  = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	discarded = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func newReconciler(src Source, cache Cache) *Reconciler {
	return NewReconciler(src, cache, Options{Now: fixedNow, Locale: "en"}, discarded)
}

func ids(vals ...int64) []normalize.ID {
	out := make([]normalize.ID, 0, len(vals))
	for _, v := range vals {
		out = append(out, normalize.NumericID(v))
	}
	return out
}

func TestReconcile_PresentFirstThenAbsentByName(t *testing.T) {
	src := &fakeSource{
		roster:     []map[string]any{{"id": 1}, {"id": 2}, {"id": 3}},
		attendance: []map[string]any{{"studentId": 2, "ScanTime": "2024-01-01 09:00:00"}},
		entities: map[string]map[string]any{
			"1": {"StudentID": 1, "FirstName": "Cara", "LastName": "Diaz", "Email": "cara@school.test"},
			"2": {"StudentID": 2, "FirstName": "Ana", "LastName": "Li", "Email": "ana@school.test"},
			"3": {"StudentID": 3, "FirstName": "Ben", "LastName": "Adams", "Email": "ben@school.test"},
		},
	}

	got, err := newReconciler(src, nil).Reconcile(context.Background(), "10", day)
	require.NoError(t, err)

	assert.Equal(t, ids(2, 3, 1), got.IDs())
	assert.Equal(t, "2024-01-01", got.Date)
	assert.False(t, got.NoAttendanceRecorded)
	assert.Equal(t, 1, got.PresentCount)
	assert.Equal(t, 2, got.AbsentCount)

	present := got.Entries[0]
	assert.Equal(t, StatusPresent, present.Status)
	assert.Equal(t, "Ana Li", present.DisplayName)
	assert.Equal(t, normalize.DefaultEventSource, present.Source)
	require.NotNil(t, present.StatusTime)
	assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), present.StatusTime.Time)

	for _, e := range got.Entries[1:] {
		assert.Equal(t, StatusAbsent, e.Status)
		assert.Nil(t, e.StatusTime)
		assert.Equal(t, SourceRoster, e.Source)
	}
	assert.Equal(t, "Ben Adams", got.Entries[1].DisplayName)
}

func TestReconcile_RosterIsTheUniverse(t *testing.T) {
	src := &fakeSource{
		roster: []map[string]any{{"StudentID": "1"}, {"studentId": 2}, {"id": "3"}, {"name": "no id"}, {"StudentID": 1}},
		attendance: []map[string]any{
			{"StudentID": 99, "ScanTime": "2024-01-01T08:00:00"},
			{"StudentID": 3, "ScanTime": "2024-01-01T08:05:00"},
			{"ScanTime": "2024-01-01T08:10:00"},
		},
	}

	got, err := newReconciler(src, nil).Reconcile(context.Background(), "10", day)
	require.NoError(t, err)

	assert.ElementsMatch(t, ids(1, 2, 3), got.IDs())
	assert.Equal(t, []normalize.ID{normalize.NumericID(99)}, got.Unmatched)
	assert.Equal(t, 2, got.RawPresentCount)
	assert.Equal(t, 1, got.PresentCount)
}

func TestReconcile_NoAttendanceRecorded(t *testing.T) {
	src := &fakeSource{roster: []map[string]any{{"id": 1}, {"id": 2}}}

	got, err := newReconciler(src, nil).Reconcile(context.Background(), "10", day)
	require.NoError(t, err)

	assert.True(t, got.NoAttendanceRecorded)
	assert.Len(t, got.Entries, 2)
	for _, e := range got.Entries {
		assert.Equal(t, StatusAbsent, e.Status)
	}
}

func TestReconcile_RecordedButNobodyMatched(t *testing.T) {
	src := &fakeSource{
		roster:     []map[string]any{{"id": 1}},
		attendance: []map[string]any{{"studentId": 5}},
	}

	got, err := newReconciler(src, nil).Reconcile(context.Background(), "10", day)
	require.NoError(t, err)

	assert.False(t, got.NoAttendanceRecorded)
	assert.Equal(t, 0, got.PresentCount)
	assert.Equal(t, 1, got.AbsentCount)
}

func TestReconcile_FirstEventWins(t *testing.T) {
	src := &fakeSource{
		roster: []map[string]any{{"id": 1}, {"id": 2}},
		attendance: []map[string]any{
			{"studentId": 2, "ScanTime": "2024-01-01 08:00:00", "Source": "gate"},
			{"studentId": 1, "ScanTime": "2024-01-01 08:30:00"},
			{"studentId": "2", "ScanTime": "2024-01-01 07:00:00", "Source": "manual"},
		},
	}

	got, err := newReconciler(src, nil).Reconcile(context.Background(), "10", day)
	require.NoError(t, err)

	assert.Equal(t, ids(2, 1), got.IDs(), "present entries keep attendance order")
	require.NotNil(t, got.Entries[0].StatusTime)
	assert.Equal(t, 8, got.Entries[0].StatusTime.Time.Hour())
	assert.Equal(t, "gate", got.Entries[0].Source)
}

func TestReconcile_UnparseableTimestampKeepsRaw(t *testing.T) {
	src := &fakeSource{
		roster:     []map[string]any{{"id": 1}},
		attendance: []map[string]any{{"studentId": 1, "ScanTime": "first period"}},
	}

	got, err := newReconciler(src, nil).Reconcile(context.Background(), "10", day)
	require.NoError(t, err)

	require.NotNil(t, got.Entries[0].StatusTime)
	assert.False(t, got.Entries[0].StatusTime.Valid)
	assert.Equal(t, "first period", got.Entries[0].StatusTime.String())
}

func TestReconcile_EnrichmentFailureIsIsolated(t *testing.T) {
	src := &fakeSource{
		roster: []map[string]any{{"id": 1}, {"id": 2}, {"id": 3}},
		entities: map[string]map[string]any{
			"1": {"StudentID": 1, "FirstName": "Ana", "Email": "ana@school.test"},
			"3": {"StudentID": 3, "FirstName": "Ben", "Email": "ben@school.test"},
		},
	}

	got, err := newReconciler(src, nil).Reconcile(context.Background(), "10", day)
	require.NoError(t, err)
	require.Len(t, got.Entries, 3)

	byID := map[string]Entry{}
	for _, e := range got.Entries {
		byID[e.EntityID.Key()] = e
	}
	assert.Equal(t, "Ana", byID["1"].DisplayName)
	assert.Equal(t, "Ben", byID["3"].DisplayName)
	assert.Equal(t, "Entity 2", byID["2"].DisplayName)
	assert.Equal(t, "", byID["2"].Email)
}

func TestReconcile_FailedEnrichmentBlanksEmail(t *testing.T) {
	src := &fakeSource{roster: []map[string]any{{"StudentID": 9, "Email": "row@school.test"}}}

	got, err := newReconciler(src, nil).Reconcile(context.Background(), "10", day)
	require.NoError(t, err)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "Entity 9", got.Entries[0].DisplayName)
	assert.Equal(t, "", got.Entries[0].Email)
}

func TestReconcile_CachedEntityOfOtherRoleIsAMiss(t *testing.T) {
	cache := lookupcache.New(nil, discarded)
	student, _ := normalize.NormalizeEntity(map[string]any{"StudentID": 7, "name": "Ana Li"}, normalize.RoleStudent)
	cache.Put(normalize.NumericID(7), *student)

	src := &fakeSource{
		roster:   []map[string]any{{"TeacherID": 7}},
		teachers: map[string]map[string]any{"7": {"TeacherID": 7, "name": "Mr Park"}},
	}
	rec := NewReconciler(src, cache, Options{Role: normalize.RoleTeacher, Now: fixedNow, Locale: "en"}, discarded)

	got, err := rec.Reconcile(context.Background(), "10", day)
	require.NoError(t, err)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "Mr Park", got.Entries[0].DisplayName)
	assert.Equal(t, 1, src.lookupCount())

	e, ok := cache.Get(normalize.NumericID(7))
	require.True(t, ok)
	assert.Equal(t, normalize.RoleTeacher, e.Role, "backend read overwrites the other role's entry")
}

func TestReconcile_DetailedRowsSkipLookup(t *testing.T) {
	src := &fakeSource{
		roster: []map[string]any{{"StudentID": 1, "FirstName": "Ana", "Email": "ana@school.test"}},
	}

	got, err := newReconciler(src, nil).Reconcile(context.Background(), "10", day)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.Entries[0].DisplayName)
	assert.Zero(t, src.lookupCount())
}

func TestReconcile_CacheBeforeBackend(t *testing.T) {
	cache := lookupcache.New(nil, discarded)
	cached, _ := normalize.NormalizeEntity(map[string]any{"StudentID": 1, "name": "Cached Name"}, normalize.RoleStudent)
	cache.Put(normalize.NumericID(1), *cached)

	src := &fakeSource{
		roster: []map[string]any{{"id": 1}, {"id": 2}},
		entities: map[string]map[string]any{
			"1": {"StudentID": 1, "name": "Backend Name"},
			"2": {"StudentID": 2, "name": "Fetched"},
		},
	}

	got, err := newReconciler(src, cache).Reconcile(context.Background(), "10", day)
	require.NoError(t, err)

	assert.Equal(t, "Cached Name", got.Entries[0].DisplayName)
	assert.Equal(t, 1, src.lookupCount())

	e, ok := cache.Get(normalize.NumericID(2))
	require.True(t, ok, "fetched entity is cached after the pass")
	assert.Equal(t, "Fetched", e.DisplayName)
}

func TestReconcile_LocaleAwareOrder(t *testing.T) {
	src := &fakeSource{
		roster: []map[string]any{
			{"id": 1, "name": "Zoe", "email": "z@school.test"},
			{"id": 2, "name": "Émile", "email": "e@school.test"},
			{"id": 3, "name": "adam", "email": "a@school.test"},
			{"id": 4, "name": "Émile", "email": "e2@school.test"},
		},
	}

	got, err := newReconciler(src, nil).Reconcile(context.Background(), "10", day)
	require.NoError(t, err)
	assert.Equal(t, ids(3, 2, 4, 1), got.IDs())
}

func TestReconcile_TransportErrors(t *testing.T) {
	boom := errors.New("connection refused")
	tests := []struct {
		name string
		src  *fakeSource
		op   string
	}{
		{name: "roster", src: &fakeSource{rosterErr: boom}, op: "fetch roster"},
		{name: "attendance", src: &fakeSource{roster: []map[string]any{{"id": 1}}, attErr: boom}, op: "fetch attendance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := newReconciler(tt.src, nil).Reconcile(context.Background(), "10", day)
			assert.Nil(t, got)

			var te *TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.op, te.Op)
			assert.Equal(t, "10", te.CourseID)
			assert.ErrorIs(t, err, boom)
		})
	}
}

func TestService_IdempotentWithWarmCache(t *testing.T) {
	src := &fakeSource{
		roster:     []map[string]any{{"id": 1}, {"id": 2}, {"id": 3}},
		attendance: []map[string]any{{"studentId": 3, "ScanTime": "2024-01-01 09:00:00"}, {"studentId": 1}},
		entities: map[string]map[string]any{
			"1": {"StudentID": 1, "name": "One"},
			"2": {"StudentID": 2, "name": "Two"},
			"3": {"StudentID": 3, "name": "Three"},
		},
	}
	store := &lookupcache.MemoryStore{}
	svc := NewService(src, lookupcache.New(store, discarded), Options{Now: fixedNow}, discarded)
	ctx := context.Background()

	first, err := svc.Run(ctx, "10", day)
	require.NoError(t, err)
	assert.Equal(t, 3, src.lookupCount())

	persisted, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, persisted, 3)

	// a fresh process reading the same store
	again := NewService(src, lookupcache.New(store, discarded), Options{Now: fixedNow}, discarded)
	second, err := again.Run(ctx, "10", day)
	require.NoError(t, err)
	assert.Equal(t, 3, src.lookupCount(), "warm cache needs no lookups")
	assert.Equal(t, first, second)
}

func TestService_Entity(t *testing.T) {
	src := &fakeSource{entities: map[string]map[string]any{
		"7": {"TeacherID": 7, "name": "Ms. Park"},
	}}
	svc := NewService(src, lookupcache.New(&lookupcache.MemoryStore{}, discarded), Options{}, discarded)
	ctx := context.Background()

	e, err := svc.Entity(ctx, normalize.RoleTeacher, normalize.NumericID(7), false)
	require.NoError(t, err)
	assert.Equal(t, "Ms. Park", e.DisplayName)

	src.entities["7"] = map[string]any{"TeacherID": 7, "name": "Dr. Park"}
	e, err = svc.Entity(ctx, normalize.RoleTeacher, normalize.NumericID(7), false)
	require.NoError(t, err)
	assert.Equal(t, "Ms. Park", e.DisplayName, "cached copy never refreshes on its own")

	e, err = svc.Entity(ctx, normalize.RoleTeacher, normalize.NumericID(7), true)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Park", e.DisplayName)

	_, err = svc.Entity(ctx, normalize.RoleTeacher, normalize.NumericID(8), false)
	assert.Error(t, err)
}

func TestService_EntityKeepsRolesApart(t *testing.T) {
	src := &fakeSource{
		entities: map[string]map[string]any{"7": {"StudentID": 7, "FirstName": "Ana", "LastName": "Li"}},
		teachers: map[string]map[string]any{"7": {"TeacherID": 7, "name": "Mr Park"}},
	}
	svc := NewService(src, lookupcache.New(&lookupcache.MemoryStore{}, discarded), Options{}, discarded)
	ctx := context.Background()

	stu, err := svc.Entity(ctx, normalize.RoleStudent, normalize.NumericID(7), false)
	require.NoError(t, err)
	assert.Equal(t, "Ana Li", stu.DisplayName)
	assert.Equal(t, normalize.RoleStudent, stu.Role)

	tch, err := svc.Entity(ctx, normalize.RoleTeacher, normalize.NumericID(7), false)
	require.NoError(t, err)
	assert.Equal(t, "Mr Park", tch.DisplayName)
	assert.Equal(t, normalize.RoleTeacher, tch.Role)
	assert.Equal(t, 2, src.lookupCount())
}
