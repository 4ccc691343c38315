package normalize

import "encoding/json"

// Enrollment relates a student to a course and the course's subjects.
type Enrollment struct {
	ID         ID
	StudentID  ID
	CourseID   ID
	CourseName string
	Subjects   []Ref
	EnrolledAt Timestamp
}

// NormalizeEnrollment normalizes raw with the default alias tables.
func NormalizeEnrollment(raw map[string]any) (*Enrollment, bool) {
	return defaultTables.Enrollment(raw)
}

// Enrollment converts one raw enrollment record. The course may be flat
// (CourseID, CourseName) or nested under Course/course.
func (t *Tables) Enrollment(raw map[string]any) (*Enrollment, bool) {
	if raw == nil {
		return nil, false
	}
	e := &Enrollment{CourseName: t.Enrollments.String(raw, FieldCourseName)}
	e.ID, _ = t.Enrollments.ID(raw, FieldID)
	e.StudentID, _ = t.Enrollments.ID(raw, FieldStudentID)
	e.CourseID, _ = t.Enrollments.ID(raw, FieldCourseID)
	if v, ok := t.Enrollments.Lookup(raw, FieldTimestamp); ok {
		e.EnrolledAt = timestampFrom(v)
	}
	e.Subjects = t.collect(raw, t.SubjectCollections, t.Subjects)
	return e, true
}

// Fields returns the legacy view of the enrollment.
func (e *Enrollment) Fields() map[string]any {
	id, sid, cid := e.ID.Value(), e.StudentID.Value(), e.CourseID.Value()
	m := map[string]any{
		"id": id, "enrollment_id": id, "EnrollmentID": id, "enrollmentId": id,
		"student_id": sid, "StudentID": sid, "studentID": sid, "studentId": sid,
		"course_id": cid, "CourseID": cid, "courseID": cid, "courseId": cid,
		"course_name": e.CourseName, "CourseName": e.CourseName, "courseName": e.CourseName,
		"subjects": refsField(e.Subjects),
	}
	if !e.EnrolledAt.IsZero() {
		at := e.EnrolledAt.String()
		m["enrolled_at"], m["EnrolledAt"], m["enrolledAt"] = at, at, at
	}
	return m
}

func (e *Enrollment) MarshalJSON() ([]byte, error) { return json.Marshal(e.Fields()) }
