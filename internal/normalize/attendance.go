package normalize

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar-date format the backend uses for query strings.
const DateLayout = "2006-01-02"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	DateLayout,
}

// Timestamp is a parsed backend time that remembers its raw form.
// When the raw value could not be parsed, Valid is false and String returns
// the raw text unchanged.
type Timestamp struct {
	Time  time.Time
	Raw   string
	Valid bool
}

// ParseTimestamp accepts ISO-8601 with or without zone, "yyyy-MM-dd HH:mm:ss"
// and a bare date. A space between date and time is treated like 'T'.
func ParseTimestamp(raw string) Timestamp {
	s := strings.TrimSpace(raw)
	ts := Timestamp{Raw: raw}
	if s == "" {
		return ts
	}
	if len(s) > 10 && s[10] == ' ' {
		s = s[:10] + "T" + strings.TrimSpace(s[11:])
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			ts.Time, ts.Valid = t, true
			return ts
		}
	}
	return ts
}

// timestampFrom reads a decoded JSON value: strings are parsed, numbers are
// read as Unix seconds or, when large enough, milliseconds.
func timestampFrom(v any) Timestamp {
	switch t := v.(type) {
	case nil:
		return Timestamp{}
	case string:
		return ParseTimestamp(t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return fromUnix(n, t.String())
		}
		return ParseTimestamp(t.String())
	case float64:
		return fromUnix(int64(t), strconv.FormatFloat(t, 'f', -1, 64))
	case int64:
		return fromUnix(t, strconv.FormatInt(t, 10))
	}
	return Timestamp{Raw: textOf(v)}
}

func fromUnix(n int64, raw string) Timestamp {
	if n > 1e12 {
		return Timestamp{Time: time.UnixMilli(n).UTC(), Raw: raw, Valid: true}
	}
	return Timestamp{Time: time.Unix(n, 0).UTC(), Raw: raw, Valid: true}
}

// IsZero reports whether no timestamp was present at all.
func (t Timestamp) IsZero() bool { return !t.Valid && t.Raw == "" }

func (t Timestamp) String() string {
	if t.Valid {
		return t.Time.Format(time.RFC3339)
	}
	return t.Raw
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.String())
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil {
		*t = Timestamp{}
		return nil
	}
	*t = ParseTimestamp(*s)
	return nil
}

// DefaultEventSource labels attendance events that carry no source of their own.
const DefaultEventSource = "attendance"

// Event is one observed presence signal.
type Event struct {
	EntityID ID             `json:"entity_id"`
	Time     Timestamp      `json:"time"`
	Source   string         `json:"source"`
	Raw      map[string]any `json:"-"`
}

// NormalizeAttendance normalizes raw with the default alias tables.
func NormalizeAttendance(raw map[string]any) (*Event, bool) {
	return defaultTables.Attendance(raw)
}

// Attendance converts one raw attendance record. The event's EntityID is zero
// when no identifier could be resolved.
func (t *Tables) Attendance(raw map[string]any) (*Event, bool) {
	if raw == nil {
		return nil, false
	}
	e := &Event{Raw: raw, Source: t.Events.String(raw, FieldSource)}
	e.EntityID, _ = t.Events.ID(raw, FieldID)
	if v, ok := t.Events.Lookup(raw, FieldTimestamp); ok {
		e.Time = timestampFrom(v)
	}
	if e.Source == "" {
		e.Source = DefaultEventSource
	}
	return e, true
}
