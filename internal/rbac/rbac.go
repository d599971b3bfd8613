package rbac

import (
	"context"
	"database/sql"
)

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
)

// Identity is the authenticated caller, as carried by the JWT claims.
type Identity struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"` // "student", "teacher", or "" for bare staff accounts
	Staff bool   `json:"is_staff"`
}

// EffectiveRole treats staff accounts without an explicit role as teachers,
// so they can be assigned to courses like any other teacher.
func (id Identity) EffectiveRole() string {
	if id.Role == "" && id.Staff {
		return RoleTeacher
	}
	return id.Role
}

func IsAdmin(id Identity) bool { return id.Staff }

func IsStudent(id Identity) bool { return id.Role == RoleStudent }

func IsTeacherOrAdmin(id Identity) bool {
	return id.Staff || id.Role == RoleTeacher
}

// CanModifyCourse reports whether the caller may author content under the
// course: staff always, teachers only when they created the course or are in
// its assigned set. A missing course yields false, never an error leak.
func CanModifyCourse(ctx context.Context, db *sql.DB, id Identity, courseID int64) bool {
	if id.Staff {
		return true
	}
	if id.Role != RoleTeacher {
		return false
	}
	var ok bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM courses WHERE id=$1 AND created_by=$2
			UNION
			SELECT 1 FROM course_teachers WHERE course_id=$1 AND teacher_id=$2
		)`, courseID, id.ID).Scan(&ok)
	if err != nil {
		return false
	}
	return ok
}

// ---- identity in context ----

type ctxKey struct{}

var ctxKeyIdentity = ctxKey{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(ctxKeyIdentity).(Identity)
	return v, ok
}
