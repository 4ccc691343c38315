package normalize

import (
	"encoding/json"
	"strings"
)

// Role is the kind of person an Entity describes.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Entity is the canonical person record.
type Entity struct {
	ID            ID
	UserID        ID
	Role          Role
	FirstName     string
	LastName      string
	DisplayName   string
	Email         string
	Phone         string
	RollNumber    string
	ParentContact string
	Department    string
	Active        bool
}

// PlaceholderName is the display name used when no name can be resolved.
func PlaceholderName(id ID) string {
	return strings.TrimSpace("Entity " + id.Key())
}

// NormalizeEntity normalizes raw with the default alias tables.
func NormalizeEntity(raw map[string]any, role Role) (*Entity, bool) {
	return defaultTables.Entity(raw, role)
}

// Entity converts one raw person record. It returns false only when raw is nil.
// A record without a resolvable identifier still normalizes; callers decide
// whether a zero ID is acceptable.
func (t *Tables) Entity(raw map[string]any, role Role) (*Entity, bool) {
	if raw == nil {
		return nil, false
	}
	tbl := t.ForRole(role)

	e := &Entity{Role: role}
	e.ID, _ = tbl.ID(raw, FieldID)
	e.UserID, _ = tbl.ID(raw, FieldUserID)
	e.FirstName = tbl.String(raw, FieldFirstName)
	e.LastName = tbl.String(raw, FieldLastName)
	e.Email = tbl.String(raw, FieldEmail)
	e.Phone = tbl.String(raw, FieldPhone)
	e.RollNumber = tbl.String(raw, FieldRollNumber)
	e.ParentContact = tbl.String(raw, FieldParentContact)
	e.Department = tbl.String(raw, FieldDepartment)
	e.Active = tbl.Bool(raw, FieldActive, true)
	e.DisplayName = composeName(e.FirstName, e.LastName, tbl.String(raw, FieldName), e.ID)
	return e, true
}

func composeName(first, last, name string, id ID) string {
	if full := strings.TrimSpace(strings.Join(strings.Fields(first+" "+last), " ")); full != "" {
		return full
	}
	if name != "" {
		return name
	}
	return PlaceholderName(id)
}

// HasDetails reports whether the record already carries a real name and email,
// so it needs no lookup.
func (e *Entity) HasDetails() bool {
	return e.DisplayName != "" && e.DisplayName != PlaceholderName(e.ID) && e.Email != ""
}

// Fields returns the legacy view of the entity: canonical snake_case keys plus
// PascalCase and camelCase aliases, all holding the same value.
func (e *Entity) Fields() map[string]any {
	m := make(map[string]any, 48)
	set := func(v any, keys ...string) {
		for _, k := range keys {
			m[k] = v
		}
	}

	id := e.ID.Value()
	set(id, "id", "Id", "ID")
	switch e.Role {
	case RoleStudent:
		set(id, "student_id", "StudentID", "studentID", "studentId")
	case RoleTeacher:
		set(id, "teacher_id", "TeacherID", "teacherID", "teacherId")
	}
	if !e.UserID.IsZero() {
		set(e.UserID.Value(), "user_id", "UserID", "userID", "userId")
	}
	set(string(e.Role), "role", "Role")
	set(e.FirstName, "first_name", "FirstName", "firstName")
	set(e.LastName, "last_name", "LastName", "lastName")
	set(e.DisplayName, "name", "Name", "displayName", "DisplayName")
	set(e.Email, "email", "Email")
	set(e.Phone, "phone", "Phone", "phoneNumber", "PhoneNumber")
	set(e.Department, "department", "Department")
	set(e.Active, "active", "IsActive", "isActive")
	if e.Role == RoleStudent {
		set(e.RollNumber, "roll_number", "RollNumber", "rollNumber")
		set(e.ParentContact, "parent_contact", "ParentContact", "parentContact")
	}
	return m
}

func (e *Entity) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Fields())
}

// UnmarshalJSON accepts any record shape, including the legacy view written by
// MarshalJSON. The role is read from the record and defaults to student.
func (e *Entity) UnmarshalJSON(data []byte) error {
	raw, err := DecodeObject(data)
	if err != nil {
		return err
	}
	role := Role(textOf(raw["role"]))
	if role == "" {
		role = RoleStudent
	}
	out, ok := defaultTables.Entity(raw, role)
	if !ok {
		*e = Entity{}
		return nil
	}
	*e = *out
	return nil
}
