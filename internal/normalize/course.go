package normalize

import (
	"encoding/json"
	"strings"
)

// Ref is a lightweight pointer to a related record (a subject inside a course,
// a course inside a subject).
type Ref struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

func (r Ref) key() string {
	if !r.ID.IsZero() {
		return "id:" + r.ID.Key()
	}
	return "name:" + strings.ToLower(r.Name)
}

// Course is the canonical course/class record.
type Course struct {
	ID          ID
	Code        string
	Name        string
	Description string
	TeacherID   ID
	Subjects    []Ref
}

// Subject is the canonical subject record.
type Subject struct {
	ID          ID
	Code        string
	Name        string
	Description string
	Courses     []Ref
}

// NormalizeCourse normalizes raw with the default alias tables.
func NormalizeCourse(raw map[string]any) (*Course, bool) {
	return defaultTables.Course(raw)
}

// NormalizeSubject normalizes raw with the default alias tables.
func NormalizeSubject(raw map[string]any) (*Subject, bool) {
	return defaultTables.Subject(raw)
}

// Course converts one raw course record.
func (t *Tables) Course(raw map[string]any) (*Course, bool) {
	if raw == nil {
		return nil, false
	}
	c := &Course{
		Code:        t.Courses.String(raw, FieldCode),
		Name:        t.Courses.String(raw, FieldName),
		Description: t.Courses.String(raw, FieldDescription),
	}
	c.ID, _ = t.Courses.ID(raw, FieldID)
	c.TeacherID, _ = t.Courses.ID(raw, FieldTeacherID)
	c.Subjects = t.collect(raw, t.SubjectCollections, t.Subjects)
	return c, true
}

// Subject converts one raw subject record.
func (t *Tables) Subject(raw map[string]any) (*Subject, bool) {
	if raw == nil {
		return nil, false
	}
	s := &Subject{
		Code:        t.Subjects.String(raw, FieldCode),
		Name:        t.Subjects.String(raw, FieldName),
		Description: t.Subjects.String(raw, FieldDescription),
	}
	s.ID, _ = t.Subjects.ID(raw, FieldID)
	s.Courses = t.collect(raw, t.CourseCollections, t.Courses)
	return s, true
}

// collect scans every collection field in fields, flattens nested arrays and
// returns the related refs deduplicated by id, then by name.
func (t *Tables) collect(raw map[string]any, fields []string, tbl Table) []Ref {
	var refs []Ref
	index := map[string]int{}
	add := func(r Ref) {
		if r.ID.IsZero() && r.Name == "" {
			return
		}
		k := r.key()
		if i, ok := index[k]; ok {
			if refs[i].Name == "" {
				refs[i].Name = r.Name
			}
			return
		}
		// a named ref seen before its id showed up
		if !r.ID.IsZero() && r.Name != "" {
			if i, ok := index["name:"+strings.ToLower(r.Name)]; ok && refs[i].ID.IsZero() {
				refs[i].ID = r.ID
				index[k] = i
				return
			}
		}
		index[k] = len(refs)
		refs = append(refs, r)
	}
	for _, f := range fields {
		v, ok := lookupPath(raw, f)
		if !ok {
			continue
		}
		for _, item := range flatten(v) {
			add(refFrom(item, tbl))
		}
	}
	return refs
}

func flatten(v any) []any {
	list, ok := v.([]any)
	if !ok {
		if v == nil {
			return nil
		}
		return []any{v}
	}
	var out []any
	for _, it := range list {
		out = append(out, flatten(it)...)
	}
	return out
}

func refFrom(item any, tbl Table) Ref {
	m, ok := asMap(item)
	if !ok {
		if s, isStr := item.(string); isStr {
			if id, ok := ParseID(s); ok && id.IsNumeric() {
				return Ref{ID: id}
			}
			return Ref{Name: strings.TrimSpace(s)}
		}
		id, _ := ParseID(item)
		return Ref{ID: id}
	}
	r := Ref{Name: tbl.String(m, FieldName)}
	r.ID, _ = tbl.ID(m, FieldID)
	return r
}

func refsField(refs []Ref) []any {
	out := make([]any, 0, len(refs))
	for _, r := range refs {
		out = append(out, map[string]any{"id": r.ID.Value(), "name": r.Name})
	}
	return out
}

// Fields returns the legacy view of the course.
func (c *Course) Fields() map[string]any {
	id := c.ID.Value()
	m := map[string]any{
		"id": id, "course_id": id, "CourseID": id, "courseID": id, "courseId": id,
		"name": c.Name, "Name": c.Name, "CourseName": c.Name, "courseName": c.Name,
		"code": c.Code, "Code": c.Code, "CourseCode": c.Code, "courseCode": c.Code,
		"description": c.Description, "Description": c.Description,
		"subjects": refsField(c.Subjects),
	}
	if !c.TeacherID.IsZero() {
		tid := c.TeacherID.Value()
		m["teacher_id"], m["TeacherID"], m["teacherId"] = tid, tid, tid
	}
	return m
}

func (c *Course) MarshalJSON() ([]byte, error) { return json.Marshal(c.Fields()) }

// Fields returns the legacy view of the subject.
func (s *Subject) Fields() map[string]any {
	id := s.ID.Value()
	return map[string]any{
		"id": id, "subject_id": id, "SubjectID": id, "subjectID": id, "subjectId": id,
		"name": s.Name, "Name": s.Name, "SubjectName": s.Name, "subjectName": s.Name,
		"code": s.Code, "Code": s.Code, "SubjectCode": s.Code, "subjectCode": s.Code,
		"description": s.Description, "Description": s.Description,
		"courses": refsField(s.Courses),
	}
}

func (s *Subject) MarshalJSON() ([]byte, error) { return json.Marshal(s.Fields()) }
