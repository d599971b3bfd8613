// Package entitlement decides whether a student may reach a course's paid
// content. Access derives from package purchases, never from the student or
// course rows themselves, so revoking a purchase takes effect on the next
// evaluation.
package entitlement

import (
	"context"
	"database/sql"
)

type Checker struct{ db *sql.DB }

func NewChecker(db *sql.DB) *Checker { return &Checker{db: db} }

// HasAccess reports whether studentID may view courseID's content: either a
// published free package contains the course (no purchase record needed), or
// the student holds an active purchase of a published package containing it.
// Pure read; unknown courses simply yield false.
func (c *Checker) HasAccess(ctx context.Context, studentID, courseID int64) (bool, error) {
	var ok bool
	err := c.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1
			  FROM package_courses pc
			  JOIN packages p ON p.id = pc.package_id
			  LEFT JOIN package_purchases pp
			    ON pp.package_id = p.id AND pp.student_id = $1 AND pp.status = 'active'
			 WHERE pc.course_id = $2
			   AND p.is_published
			   AND (p.is_free OR pp.id IS NOT NULL)
		)`, studentID, courseID).Scan(&ok)
	if err != nil {
		return false, err
	}
	return ok, nil
}
