package entitlement

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/prepverse/prepverse-lms/internal/db"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := "file:" + name + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	dbh.SetMaxOpenConns(1)
	t.Cleanup(func() { dbh.Close() })
	return dbh
}

type fixture struct {
	dbh     *sql.DB
	student int64
	course  int64
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dbh := testDB(t)
	now := time.Now().Unix()
	var student, course int64
	if err := dbh.QueryRow(`
		INSERT INTO users (email, password_hash, role, is_staff, created_at)
		VALUES ('s@x.dev','x','student',FALSE,$1) RETURNING id`, now).Scan(&student); err != nil {
		t.Fatalf("seed student: %v", err)
	}
	if err := dbh.QueryRow(`
		INSERT INTO courses (title, description, exam_target, student_class, is_published, created_at, updated_at)
		VALUES ('Physics','','jee','11',TRUE,$1,$1) RETURNING id`, now).Scan(&course); err != nil {
		t.Fatalf("seed course: %v", err)
	}
	return fixture{dbh: dbh, student: student, course: course}
}

func (f fixture) addPackage(t *testing.T, published, free bool) int64 {
	t.Helper()
	var id int64
	err := f.dbh.QueryRow(`
		INSERT INTO packages (title, description, is_published, featured, is_free, price_cents, created_at, updated_at)
		VALUES ('p','',$1,FALSE,$2,100,$3,$3) RETURNING id`,
		published, free, time.Now().Unix()).Scan(&id)
	if err != nil {
		t.Fatalf("seed package: %v", err)
	}
	if _, err := f.dbh.Exec(`INSERT INTO package_courses (package_id, course_id) VALUES ($1,$2)`, id, f.course); err != nil {
		t.Fatalf("link course: %v", err)
	}
	return id
}

func (f fixture) purchase(t *testing.T, pkgID int64, status string) int64 {
	t.Helper()
	var id int64
	err := f.dbh.QueryRow(`
		INSERT INTO package_purchases (student_id, package_id, status, reference, created_at)
		VALUES ($1,$2,$3,'ref',$4) RETURNING id`,
		f.student, pkgID, status, time.Now().Unix()).Scan(&id)
	if err != nil {
		t.Fatalf("seed purchase: %v", err)
	}
	return id
}

func (f fixture) hasAccess(t *testing.T) bool {
	t.Helper()
	ok, err := NewChecker(f.dbh).HasAccess(context.Background(), f.student, f.course)
	if err != nil {
		t.Fatalf("HasAccess: %v", err)
	}
	return ok
}

func TestFreePublishedPackageGrants(t *testing.T) {
	f := newFixture(t)
	f.addPackage(t, true, true)
	if !f.hasAccess(t) {
		t.Fatal("free published package should grant access")
	}
}

func TestUnpublishedPackageGrantsNothing(t *testing.T) {
	f := newFixture(t)
	pkg := f.addPackage(t, false, true)
	if f.hasAccess(t) {
		t.Fatal("unpublished free package should not grant access")
	}
	// Even a purchase of it does not help.
	f.purchase(t, pkg, "active")
	if f.hasAccess(t) {
		t.Fatal("purchase of an unpublished package should not grant access")
	}
}

func TestActivePurchaseGrants(t *testing.T) {
	f := newFixture(t)
	pkg := f.addPackage(t, true, false)
	if f.hasAccess(t) {
		t.Fatal("paid package without purchase should deny")
	}
	id := f.purchase(t, pkg, "active")
	if !f.hasAccess(t) {
		t.Fatal("active purchase should grant access")
	}

	// Revocation cuts access on the next evaluation.
	if _, err := f.dbh.Exec(`UPDATE package_purchases SET status='inactive' WHERE id=$1`, id); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if f.hasAccess(t) {
		t.Fatal("inactive purchase should deny")
	}
}

func TestUnrelatedCourseDenied(t *testing.T) {
	f := newFixture(t)
	pkg := f.addPackage(t, true, false)
	f.purchase(t, pkg, "active")

	var other int64
	if err := f.dbh.QueryRow(`
		INSERT INTO courses (title, description, exam_target, student_class, is_published, created_at, updated_at)
		VALUES ('Chem','','neet','12',TRUE,$1,$1) RETURNING id`, time.Now().Unix()).Scan(&other); err != nil {
		t.Fatalf("seed course: %v", err)
	}
	ok, err := NewChecker(f.dbh).HasAccess(context.Background(), f.student, other)
	if err != nil {
		t.Fatalf("HasAccess: %v", err)
	}
	if ok {
		t.Fatal("purchase must not leak to courses outside the package")
	}
}
