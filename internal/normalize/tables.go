package normalize

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Canonical field names shared by the alias tables.
const (
	FieldID            = "id"
	FieldUserID        = "user_id"
	FieldFirstName     = "first_name"
	FieldLastName      = "last_name"
	FieldName          = "name"
	FieldEmail         = "email"
	FieldPhone         = "phone"
	FieldRollNumber    = "roll_number"
	FieldParentContact = "parent_contact"
	FieldDepartment    = "department"
	FieldActive        = "active"
	FieldCode          = "code"
	FieldDescription   = "description"
	FieldTeacherID     = "teacher_id"
	FieldStudentID     = "student_id"
	FieldCourseID      = "course_id"
	FieldCourseName    = "course_name"
	FieldTimestamp     = "timestamp"
	FieldSource        = "source"
)

// nested user wrappers, in lookup priority order
var userWrappers = []string{"UserDetails", "User", "user"}

func nested(keys ...string) []string {
	out := make([]string, 0, len(keys)*len(userWrappers))
	for _, w := range userWrappers {
		for _, k := range keys {
			out = append(out, w+"."+k)
		}
	}
	return out
}

func paths(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = appendUnique(out, g...)
	}
	return out
}

var (
	studentIDKeys = []string{"StudentID", "studentID", "studentId", "student_id", "Student.StudentID", "student.studentId", "Student.ID", "student.id"}
	teacherIDKeys = []string{"TeacherID", "teacherID", "teacherId", "teacher_id", "Teacher.TeacherID", "teacher.teacherId", "Teacher.ID", "teacher.id"}
	genericIDKeys = []string{"ID", "Id", "id"}
	userIDKeys    = paths([]string{"UserID", "userID", "userId", "user_id"}, nested("UserID", "userID", "userId", "ID", "id"))

	personFields = []Alias{
		{FieldUserID, userIDKeys},
		{FieldFirstName, paths([]string{"FirstName", "firstName", "first_name"}, nested("FirstName", "firstName", "first_name"))},
		{FieldLastName, paths([]string{"LastName", "lastName", "last_name"}, nested("LastName", "lastName", "last_name"))},
		{FieldName, paths([]string{"Name", "name", "FullName", "fullName", "full_name", "DisplayName", "displayName"}, nested("Name", "name", "FullName", "fullName"))},
		{FieldEmail, paths([]string{"Email", "email", "EmailAddress", "emailAddress", "email_address"}, nested("Email", "email"))},
		{FieldPhone, paths([]string{"Phone", "phone", "PhoneNumber", "phoneNumber", "phone_number"}, nested("Phone", "phone", "PhoneNumber", "phoneNumber"))},
		{FieldDepartment, []string{"Department", "department", "DepartmentName", "departmentName", "department_name"}},
		{FieldActive, paths([]string{"IsActive", "isActive", "is_active", "Active", "active"}, nested("IsActive", "isActive"))},
	}
)

func personTable(name string, idKeys []string, extra ...Alias) Table {
	t := Table{Name: name}
	t.Aliases = append(t.Aliases, Alias{FieldID, paths(idKeys, genericIDKeys, userIDKeys)})
	for _, a := range personFields {
		t.Aliases = append(t.Aliases, Alias{a.Field, append([]string(nil), a.Paths...)})
	}
	t.Aliases = append(t.Aliases, extra...)
	return t
}

// Tables bundles the alias table of every record kind.
type Tables struct {
	Students    Table
	Teachers    Table
	Users       Table
	Courses     Table
	Subjects    Table
	Enrollments Table
	Events      Table

	// collection field names scanned when gathering related records
	SubjectCollections []string
	CourseCollections  []string
}

// DefaultTables returns a fresh copy of the built-in alias tables.
func DefaultTables() *Tables {
	return &Tables{
		Students: personTable("students", studentIDKeys,
			Alias{FieldRollNumber, []string{"RollNumber", "rollNumber", "roll_number", "RollNo", "rollNo", "roll_no"}},
			Alias{FieldParentContact, []string{"ParentContact", "parentContact", "parent_contact", "ParentPhone", "parentPhone", "parent_phone", "GuardianContact", "guardianContact"}},
		),
		Teachers: personTable("teachers", teacherIDKeys),
		Users:    personTable("users", nil),
		Courses: Table{Name: "courses", Aliases: []Alias{
			{FieldID, []string{"CourseID", "courseID", "courseId", "course_id", "ClassID", "classID", "classId", "class_id", "Course.CourseID", "Course.ID", "course.courseId", "course.id", "ID", "Id", "id"}},
			{FieldName, []string{"CourseName", "courseName", "course_name", "ClassName", "className", "class_name", "Course.CourseName", "Course.Name", "course.courseName", "course.name", "Name", "name", "Title", "title"}},
			{FieldCode, []string{"CourseCode", "courseCode", "course_code", "Code", "code"}},
			{FieldDescription, []string{"Description", "description"}},
			{FieldTeacherID, []string{"TeacherID", "teacherID", "teacherId", "teacher_id", "Teacher.TeacherID", "Teacher.ID", "teacher.id"}},
		}},
		Subjects: Table{Name: "subjects", Aliases: []Alias{
			{FieldID, []string{"SubjectID", "subjectID", "subjectId", "subject_id", "Subject.SubjectID", "subject.subjectId", "Subject.ID", "subject.id", "ID", "Id", "id"}},
			{FieldName, []string{"SubjectName", "subjectName", "subject_name", "Subject.SubjectName", "Subject.Name", "subject.name", "Name", "name", "Title", "title"}},
			{FieldCode, []string{"SubjectCode", "subjectCode", "subject_code", "Code", "code"}},
			{FieldDescription, []string{"Description", "description"}},
		}},
		Enrollments: Table{Name: "enrollments", Aliases: []Alias{
			{FieldID, []string{"EnrollmentID", "enrollmentID", "enrollmentId", "enrollment_id", "ID", "Id", "id"}},
			{FieldStudentID, paths(studentIDKeys, userIDKeys)},
			{FieldCourseID, []string{"CourseID", "courseID", "courseId", "course_id", "Course.CourseID", "Course.ID", "course.courseId", "course.id", "ClassID", "classId"}},
			{FieldCourseName, []string{"CourseName", "courseName", "course_name", "Course.CourseName", "Course.Name", "course.courseName", "course.name", "ClassName", "className"}},
			{FieldTimestamp, []string{"EnrolledAt", "enrolledAt", "enrolled_at", "EnrollmentDate", "enrollmentDate", "CreatedAt", "createdAt", "created_at"}},
		}},
		Events: Table{Name: "attendance", Aliases: []Alias{
			{FieldID, paths(studentIDKeys, teacherIDKeys, []string{"EntityID", "entityId", "entity_id"}, genericIDKeys, userIDKeys)},
			{FieldTimestamp, []string{"ScanTime", "scanTime", "scan_time", "Timestamp", "timestamp", "CheckInTime", "checkInTime", "check_in_time", "Time", "time", "CreatedAt", "createdAt", "created_at", "Date", "date"}},
			{FieldSource, []string{"Source", "source", "Method", "method", "DeviceName", "deviceName", "device_name", "Title", "title", "Label", "label"}},
		}},
		SubjectCollections: []string{
			"Subjects", "subjects", "SubjectList", "subjectList", "subject_list",
			"CourseSubjects", "courseSubjects", "course_subjects",
			"Course.Subjects", "course.subjects",
		},
		CourseCollections: []string{
			"Courses", "courses", "CourseList", "courseList", "course_list",
			"CourseSubjects", "courseSubjects", "course_subjects",
			"Classes", "classes",
		},
	}
}

// Overrides extends the built-in tables: table name -> field -> extra paths.
// Extra paths are consulted after the built-in ones.
type Overrides map[string]map[string][]string

// LoadOverrides reads alias overrides from a YAML file.
//
//	students:
//	  email: [ContactEmail, contact.email]
func LoadOverrides(path string) (Overrides, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alias overrides: %w", err)
	}
	var o Overrides
	if err := yaml.Unmarshal(buf, &o); err != nil {
		return nil, fmt.Errorf("parse alias overrides: %w", err)
	}
	return o, nil
}

// With returns a copy of t extended by o. Unknown table names are an error.
func (t *Tables) With(o Overrides) (*Tables, error) {
	out := &Tables{
		Students:           t.Students.clone(),
		Teachers:           t.Teachers.clone(),
		Users:              t.Users.clone(),
		Courses:            t.Courses.clone(),
		Subjects:           t.Subjects.clone(),
		Enrollments:        t.Enrollments.clone(),
		Events:             t.Events.clone(),
		SubjectCollections: append([]string(nil), t.SubjectCollections...),
		CourseCollections:  append([]string(nil), t.CourseCollections...),
	}
	byName := map[string]*Table{
		out.Students.Name:    &out.Students,
		out.Teachers.Name:    &out.Teachers,
		out.Users.Name:       &out.Users,
		out.Courses.Name:     &out.Courses,
		out.Subjects.Name:    &out.Subjects,
		out.Enrollments.Name: &out.Enrollments,
		out.Events.Name:      &out.Events,
	}
	for name, fields := range o {
		tbl, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown alias table %q", name)
		}
		for field, ps := range fields {
			tbl.extend(field, ps)
		}
	}
	return out, nil
}

// ForRole returns the person table matching role.
func (t *Tables) ForRole(role Role) Table {
	switch role {
	case RoleStudent:
		return t.Students
	case RoleTeacher:
		return t.Teachers
	}
	return t.Users
}

var defaultTables = DefaultTables()
