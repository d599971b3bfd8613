package catalog

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prepverse/prepverse-lms/internal/apperr"
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

func seedUser(t *testing.T, dbh *sql.DB, email, role string, staff bool) int64 {
	t.Helper()
	var roleArg any
	if role != "" {
		roleArg = role
	}
	var id int64
	err := dbh.QueryRow(`
		INSERT INTO users (email, password_hash, role, is_staff, created_at)
		VALUES ($1,'x',$2,$3,$4) RETURNING id`,
		email, roleArg, staff, time.Now().Unix()).Scan(&id)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id
}

func mustCreateCourse(t *testing.T, store *SQLStore, in CourseInput, by int64) Course {
	t.Helper()
	c, err := store.CreateCourse(context.Background(), in, by)
	if err != nil {
		t.Fatalf("create course: %v", err)
	}
	return c
}

func courseInput(published bool) CourseInput {
	return CourseInput{Title: "Mechanics", ExamTarget: "jee", StudentClass: "11", IsPublished: published}
}

func TestCreateCourseChecksTeachers(t *testing.T) {
	dbh := testDB(t)
	store := NewSQLStore(dbh)
	ctx := context.Background()
	teacher := seedUser(t, dbh, "t@x.dev", "teacher", false)
	student := seedUser(t, dbh, "s@x.dev", "student", false)
	bareStaff := seedUser(t, dbh, "admin@x.dev", "", true)

	in := courseInput(true)
	in.TeacherIDs = []int64{teacher, bareStaff}
	c := mustCreateCourse(t, store, in, teacher)
	if len(c.TeacherIDs) != 2 {
		t.Fatalf("teacher ids = %v", c.TeacherIDs)
	}

	in.TeacherIDs = []int64{teacher, student}
	_, err := store.CreateCourse(ctx, in, teacher)
	var fe apperr.FieldErrors
	if !errors.As(err, &fe) {
		t.Fatalf("got %v, want field errors", err)
	}
	if _, ok := fe["assigned_teacher_ids"]; !ok {
		t.Fatalf("wrong field: %v", fe)
	}
}

func TestPublishedFilter(t *testing.T) {
	dbh := testDB(t)
	store := NewSQLStore(dbh)
	ctx := context.Background()
	teacher := seedUser(t, dbh, "t@x.dev", "teacher", false)

	pub := mustCreateCourse(t, store, courseInput(true), teacher)
	draft := mustCreateCourse(t, store, courseInput(false), teacher)

	if _, err := store.GetCourse(ctx, draft.ID, false); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("draft visible to students: %v", err)
	}
	if _, err := store.GetCourse(ctx, draft.ID, true); err != nil {
		t.Fatalf("draft hidden from staff: %v", err)
	}

	list, err := store.ListCourses(ctx, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != pub.ID {
		t.Fatalf("student list = %+v", list)
	}
	all, err := store.ListCourses(ctx, false)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("staff list = %d rows, want 2", len(all))
	}
}

func TestSectionOrderAppends(t *testing.T) {
	dbh := testDB(t)
	store := NewSQLStore(dbh)
	ctx := context.Background()
	teacher := seedUser(t, dbh, "t@x.dev", "teacher", false)
	c := mustCreateCourse(t, store, courseInput(true), teacher)

	s1, err := store.CreateSection(ctx, c.ID, "Units")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	s2, err := store.CreateSection(ctx, c.ID, "Vectors")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s1.Position != 1 || s2.Position != 2 {
		t.Fatalf("positions %d, %d; want 1, 2", s1.Position, s2.Position)
	}

	// Deleting the first leaves a gap; the next append still goes after max.
	if err := store.DeleteSection(ctx, s1.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	s3, err := store.CreateSection(ctx, c.ID, "Kinematics")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s3.Position != 3 {
		t.Fatalf("position after gap = %d, want 3", s3.Position)
	}

	if _, err := store.CreateSection(ctx, 999, "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing course: %v", err)
	}
}

func TestSubsectionValidation(t *testing.T) {
	dbh := testDB(t)
	store := NewSQLStore(dbh)
	ctx := context.Background()
	teacher := seedUser(t, dbh, "t@x.dev", "teacher", false)
	c := mustCreateCourse(t, store, courseInput(true), teacher)
	sec, err := store.CreateSection(ctx, c.ID, "Units")
	if err != nil {
		t.Fatalf("section: %v", err)
	}

	url := "https://cdn.x.dev/v1.mp4"
	key := "subsections/a.pdf"

	good := []SubsectionInput{
		{SectionID: sec.ID, Title: "Intro", ContentType: ContentVideo, VideoURL: &url},
		{SectionID: sec.ID, Title: "Notes", ContentType: ContentPDF, PDFKey: &key},
	}
	for _, in := range good {
		if _, err := store.CreateSubsection(ctx, in); err != nil {
			t.Fatalf("valid input rejected: %v", err)
		}
	}

	bad := []SubsectionInput{
		{SectionID: sec.ID, Title: "x", ContentType: ContentVideo},                                  // video without url
		{SectionID: sec.ID, Title: "x", ContentType: ContentPDF},                                    // pdf without file
		{SectionID: sec.ID, Title: "x", ContentType: ContentVideo, VideoURL: &url, PDFKey: &key},    // both
		{SectionID: sec.ID, Title: "x", ContentType: "audio", VideoURL: &url},                       // bad type
		{SectionID: sec.ID, Title: " ", ContentType: ContentVideo, VideoURL: &url},                  // blank title
	}
	for i, in := range bad {
		var fe apperr.FieldErrors
		if _, err := store.CreateSubsection(ctx, in); !errors.As(err, &fe) {
			t.Errorf("case %d: got %v, want field errors", i, err)
		}
	}
}

func TestPackagePricingValidation(t *testing.T) {
	dbh := testDB(t)
	store := NewSQLStore(dbh)
	ctx := context.Background()
	admin := seedUser(t, dbh, "admin@x.dev", "", true)

	disc := func(v int64) *int64 { return &v }

	bad := []PackageInput{
		{Title: "p", IsFree: true, PriceCents: 100},                                       // free with price
		{Title: "p", IsFree: true, DiscountedCents: disc(50)},                             // free with discount
		{Title: "p", IsFree: false, PriceCents: 0},                                        // paid without price
		{Title: "p", IsFree: false, PriceCents: 100, DiscountedCents: disc(100)},          // discount not below price
		{Title: "p", IsFree: false, PriceCents: 100, DiscountedCents: disc(0)},            // zero discount
		{Title: " ", IsFree: true},                                                        // blank title
	}
	for i, in := range bad {
		var fe apperr.FieldErrors
		if _, err := store.CreatePackage(ctx, in, admin); !errors.As(err, &fe) {
			t.Errorf("case %d: got %v, want field errors", i, err)
		}
	}

	p, err := store.CreatePackage(ctx, PackageInput{
		Title: "JEE Full", IsPublished: true, PriceCents: 10000, DiscountedCents: disc(7500),
	}, admin)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := p.DiscountPercent(); got == nil || *got != 25.0 {
		t.Fatalf("discount percent = %v, want 25.0", got)
	}
}

func TestPublishedPackageDropsDraftCourses(t *testing.T) {
	dbh := testDB(t)
	store := NewSQLStore(dbh)
	ctx := context.Background()
	teacher := seedUser(t, dbh, "t@x.dev", "teacher", false)
	admin := seedUser(t, dbh, "admin@x.dev", "", true)
	pub := mustCreateCourse(t, store, courseInput(true), teacher)
	draft := mustCreateCourse(t, store, courseInput(false), teacher)

	p, err := store.CreatePackage(ctx, PackageInput{
		Title: "Starter", IsPublished: true, IsFree: true,
		CourseIDs: []int64{pub.ID, draft.ID},
	}, admin)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(p.CourseIDs) != 1 || p.CourseIDs[0] != pub.ID {
		t.Fatalf("course ids = %v, want only the published one", p.CourseIDs)
	}

	// A draft package may bundle draft courses.
	p2, err := store.CreatePackage(ctx, PackageInput{
		Title: "Upcoming", IsFree: true, CourseIDs: []int64{draft.ID},
	}, admin)
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	if len(p2.CourseIDs) != 1 {
		t.Fatalf("draft package course ids = %v", p2.CourseIDs)
	}
}

func TestPurchaseGetOrCreate(t *testing.T) {
	dbh := testDB(t)
	store := NewSQLStore(dbh)
	ctx := context.Background()
	admin := seedUser(t, dbh, "admin@x.dev", "", true)
	student := seedUser(t, dbh, "s@x.dev", "student", false)

	p, err := store.CreatePackage(ctx, PackageInput{Title: "JEE Full", IsPublished: true, PriceCents: 10000}, admin)
	if err != nil {
		t.Fatalf("create package: %v", err)
	}

	first, owned, err := store.PurchasePackage(ctx, student, p.ID)
	if err != nil || owned {
		t.Fatalf("first purchase: %v owned=%v", err, owned)
	}
	if first.Status != PurchaseActive || first.Reference == "" {
		t.Fatalf("purchase row wrong: %+v", first)
	}

	second, owned, err := store.PurchasePackage(ctx, student, p.ID)
	if err != nil || !owned {
		t.Fatalf("repeat purchase: %v owned=%v", err, owned)
	}
	if second.ID != first.ID || second.Reference != first.Reference {
		t.Fatalf("repeat created a new row: %+v vs %+v", second, first)
	}

	// Revoked purchases come back on repurchase.
	if err := store.SetPurchaseStatus(ctx, first.ID, "inactive"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	third, owned, err := store.PurchasePackage(ctx, student, p.ID)
	if err != nil || !owned {
		t.Fatalf("repurchase: %v owned=%v", err, owned)
	}
	if third.ID != first.ID || third.Status != PurchaseActive {
		t.Fatalf("reactivation failed: %+v", third)
	}
}

func TestPurchaseRequiresPublishedPackage(t *testing.T) {
	dbh := testDB(t)
	store := NewSQLStore(dbh)
	ctx := context.Background()
	admin := seedUser(t, dbh, "admin@x.dev", "", true)
	student := seedUser(t, dbh, "s@x.dev", "student", false)

	draft, err := store.CreatePackage(ctx, PackageInput{Title: "Soon", PriceCents: 100}, admin)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := store.PurchasePackage(ctx, student, draft.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("draft purchasable: %v", err)
	}
	if _, _, err := store.PurchasePackage(ctx, student, 999); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing package purchasable: %v", err)
	}
}

func TestListPurchasesPreloadsPackage(t *testing.T) {
	dbh := testDB(t)
	store := NewSQLStore(dbh)
	ctx := context.Background()
	admin := seedUser(t, dbh, "admin@x.dev", "", true)
	student := seedUser(t, dbh, "s@x.dev", "student", false)

	p, err := store.CreatePackage(ctx, PackageInput{Title: "JEE Full", IsPublished: true, PriceCents: 10000}, admin)
	if err != nil {
		t.Fatalf("create package: %v", err)
	}
	if _, _, err := store.PurchasePackage(ctx, student, p.ID); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	got, err := store.ListPurchases(ctx, student)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Package == nil || got[0].Package.Title != "JEE Full" {
		t.Fatalf("purchases = %+v", got)
	}
}
