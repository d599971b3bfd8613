package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prepverse/prepverse-lms/internal/apperr"
	"github.com/prepverse/prepverse-lms/internal/db"
)

// orderRetries bounds the append-order race loop: concurrent creates under
// the same parent can compute the same position, the unique constraint
// rejects one, and we recompute.
const orderRetries = 3

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(dbh *sql.DB) *SQLStore { return &SQLStore{db: dbh} }

type CourseInput struct {
	Title             string
	Description       string
	ExamTarget        string
	StudentClass      string
	IsPublished       bool
	EstimatedDuration string
	TeacherIDs        []int64
}

// ---------- courses ----------

func (s *SQLStore) CreateCourse(ctx context.Context, in CourseInput, createdBy int64) (Course, error) {
	if err := s.checkTeacherIDs(ctx, in.TeacherIDs); err != nil {
		return Course{}, err
	}
	now := time.Now().Unix()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Course{}, err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO courses (created_by, title, description, exam_target, student_class, is_published, estimated_duration, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
		RETURNING id`,
		createdBy, in.Title, in.Description, in.ExamTarget, in.StudentClass, in.IsPublished, in.EstimatedDuration, now,
	).Scan(&id)
	if err != nil {
		return Course{}, err
	}
	for _, tid := range in.TeacherIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO course_teachers (course_id, teacher_id) VALUES ($1,$2)`, id, tid); err != nil {
			return Course{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Course{}, err
	}
	return s.GetCourse(ctx, id, true)
}

func (s *SQLStore) UpdateCourse(ctx context.Context, id int64, in CourseInput) (Course, error) {
	if err := s.checkTeacherIDs(ctx, in.TeacherIDs); err != nil {
		return Course{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Course{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE courses SET title=$1, description=$2, exam_target=$3, student_class=$4,
		       is_published=$5, estimated_duration=$6, updated_at=$7
		 WHERE id=$8`,
		in.Title, in.Description, in.ExamTarget, in.StudentClass, in.IsPublished,
		in.EstimatedDuration, time.Now().Unix(), id)
	if err != nil {
		return Course{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Course{}, apperr.ErrNotFound
	}
	if in.TeacherIDs != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM course_teachers WHERE course_id=$1`, id); err != nil {
			return Course{}, err
		}
		for _, tid := range in.TeacherIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO course_teachers (course_id, teacher_id) VALUES ($1,$2)`, id, tid); err != nil {
				return Course{}, err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return Course{}, err
	}
	return s.GetCourse(ctx, id, true)
}

// GetCourse loads a course with its section tree. With includeUnpublished
// false, an unpublished course is indistinguishable from a missing one.
func (s *SQLStore) GetCourse(ctx context.Context, id int64, includeUnpublished bool) (Course, error) {
	q := `SELECT id, created_by, title, description, exam_target, student_class, is_published, estimated_duration, created_at, updated_at
	        FROM courses WHERE id=$1`
	if !includeUnpublished {
		q += ` AND is_published`
	}
	var c Course
	var createdBy sql.NullInt64
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&c.ID, &createdBy, &c.Title, &c.Description, &c.ExamTarget, &c.StudentClass,
		&c.IsPublished, &c.EstimatedDuration, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Course{}, apperr.ErrNotFound
	}
	if err != nil {
		return Course{}, err
	}
	if createdBy.Valid {
		c.CreatedBy = &createdBy.Int64
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT teacher_id FROM course_teachers WHERE course_id=$1 ORDER BY teacher_id`, id)
	if err != nil {
		return Course{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var tid int64
		if err := rows.Scan(&tid); err != nil {
			return Course{}, err
		}
		c.TeacherIDs = append(c.TeacherIDs, tid)
	}
	if err := rows.Err(); err != nil {
		return Course{}, err
	}

	c.Sections, err = s.sectionsOfCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	return c, nil
}

func (s *SQLStore) ListCourses(ctx context.Context, publishedOnly bool) ([]Course, error) {
	q := `SELECT id, created_by, title, description, exam_target, student_class, is_published, estimated_duration, created_at, updated_at
	        FROM courses`
	if publishedOnly {
		q += ` WHERE is_published`
	}
	q += ` ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Course{}
	for rows.Next() {
		var c Course
		var createdBy sql.NullInt64
		if err := rows.Scan(&c.ID, &createdBy, &c.Title, &c.Description, &c.ExamTarget,
			&c.StudentClass, &c.IsPublished, &c.EstimatedDuration, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if createdBy.Valid {
			c.CreatedBy = &createdBy.Int64
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteCourse(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM courses WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// checkTeacherIDs rejects ids that are not teachers. Staff accounts with an
// unset role count as teachers for assignment.
func (s *SQLStore) checkTeacherIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = "$" + strconv.Itoa(i+1)
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM users WHERE id IN (`+strings.Join(ph, ",")+`) AND (role='teacher' OR (is_staff AND role IS NULL))`,
		args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	found := map[int64]bool{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	var invalid []string
	for _, id := range ids {
		if !found[id] {
			invalid = append(invalid, strconv.FormatInt(id, 10))
		}
	}
	if len(invalid) > 0 {
		return apperr.FieldErrors{"assigned_teacher_ids": "invalid teacher ids: " + strings.Join(invalid, ", ")}
	}
	return nil
}

// ---------- sections ----------

// CreateSection appends the section after the course's current max order.
// Clients never supply the position.
func (s *SQLStore) CreateSection(ctx context.Context, courseID int64, title string) (Section, error) {
	if err := s.requireCourse(ctx, courseID); err != nil {
		return Section{}, err
	}
	for i := 0; i < orderRetries; i++ {
		var next int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position),0)+1 FROM sections WHERE course_id=$1`, courseID).Scan(&next); err != nil {
			return Section{}, err
		}
		var id int64
		err := s.db.QueryRowContext(ctx,
			`INSERT INTO sections (course_id, title, position) VALUES ($1,$2,$3) RETURNING id`,
			courseID, title, next).Scan(&id)
		if db.IsUniqueViolation(err) {
			continue // lost the race, recompute
		}
		if err != nil {
			return Section{}, err
		}
		return Section{ID: id, CourseID: courseID, Title: title, Position: next}, nil
	}
	return Section{}, apperr.ErrConflict
}

func (s *SQLStore) GetSection(ctx context.Context, id int64) (Section, error) {
	var sec Section
	err := s.db.QueryRowContext(ctx,
		`SELECT id, course_id, title, position FROM sections WHERE id=$1`, id).
		Scan(&sec.ID, &sec.CourseID, &sec.Title, &sec.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return Section{}, apperr.ErrNotFound
	}
	if err != nil {
		return Section{}, err
	}
	sec.Subsections, err = s.subsectionsOfSection(ctx, id)
	return sec, err
}

func (s *SQLStore) ListSections(ctx context.Context) ([]Section, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, course_id, title, position FROM sections ORDER BY course_id, position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Section{}
	for rows.Next() {
		var sec Section
		if err := rows.Scan(&sec.ID, &sec.CourseID, &sec.Title, &sec.Position); err != nil {
			return nil, err
		}
		out = append(out, sec)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateSectionTitle(ctx context.Context, id int64, title string) (Section, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE sections SET title=$1 WHERE id=$2`, title, id)
	if err != nil {
		return Section{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Section{}, apperr.ErrNotFound
	}
	return s.GetSection(ctx, id)
}

func (s *SQLStore) DeleteSection(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sections WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *SQLStore) sectionsOfCourse(ctx context.Context, courseID int64) ([]Section, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, course_id, title, position FROM sections WHERE course_id=$1 ORDER BY position`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	secs := []Section{}
	for rows.Next() {
		var sec Section
		if err := rows.Scan(&sec.ID, &sec.CourseID, &sec.Title, &sec.Position); err != nil {
			return nil, err
		}
		secs = append(secs, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range secs {
		secs[i].Subsections, err = s.subsectionsOfSection(ctx, secs[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return secs, nil
}

// ---------- sub-sections ----------

type SubsectionInput struct {
	SectionID   int64
	Title       string
	ContentType string // video|pdf
	VideoURL    *string
	PDFKey      *string
}

func validateSubsectionInput(in SubsectionInput) error {
	fe := apperr.FieldErrors{}
	if strings.TrimSpace(in.Title) == "" {
		fe["title"] = "required"
	}
	switch in.ContentType {
	case ContentVideo:
		if in.VideoURL == nil || strings.TrimSpace(*in.VideoURL) == "" {
			fe["video_url"] = "required for video content"
		}
		if in.PDFKey != nil {
			fe["pdf_file"] = "must be empty for video content"
		}
	case ContentPDF:
		if in.PDFKey == nil || strings.TrimSpace(*in.PDFKey) == "" {
			fe["pdf_file"] = "required for pdf content"
		}
		if in.VideoURL != nil {
			fe["video_url"] = "must be empty for pdf content"
		}
	default:
		fe["content_type"] = "must be video or pdf"
	}
	if len(fe) > 0 {
		return fe
	}
	return nil
}

func (s *SQLStore) CreateSubsection(ctx context.Context, in SubsectionInput) (Subsection, error) {
	if err := validateSubsectionInput(in); err != nil {
		return Subsection{}, err
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM sections WHERE id=$1)`, in.SectionID).Scan(&exists); err != nil {
		return Subsection{}, err
	}
	if !exists {
		return Subsection{}, apperr.ErrNotFound
	}
	now := time.Now().Unix()
	for i := 0; i < orderRetries; i++ {
		var next int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position),0)+1 FROM subsections WHERE section_id=$1`, in.SectionID).Scan(&next); err != nil {
			return Subsection{}, err
		}
		var id int64
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO subsections (section_id, title, position, content_type, video_url, pdf_key, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
			in.SectionID, in.Title, next, in.ContentType, in.VideoURL, in.PDFKey, now).Scan(&id)
		if db.IsUniqueViolation(err) {
			continue
		}
		if err != nil {
			return Subsection{}, err
		}
		return Subsection{
			ID: id, SectionID: in.SectionID, Title: in.Title, Position: next,
			ContentType: in.ContentType, VideoURL: in.VideoURL, PDFKey: in.PDFKey, CreatedAt: now,
		}, nil
	}
	return Subsection{}, apperr.ErrConflict
}

func (s *SQLStore) GetSubsection(ctx context.Context, id int64) (Subsection, error) {
	var sub Subsection
	var vu, pk sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, section_id, title, position, content_type, video_url, pdf_key, created_at
		   FROM subsections WHERE id=$1`, id).
		Scan(&sub.ID, &sub.SectionID, &sub.Title, &sub.Position, &sub.ContentType, &vu, &pk, &sub.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Subsection{}, apperr.ErrNotFound
	}
	if err != nil {
		return Subsection{}, err
	}
	if vu.Valid {
		sub.VideoURL = &vu.String
	}
	if pk.Valid {
		sub.PDFKey = &pk.String
	}
	return sub, nil
}

func (s *SQLStore) ListSubsections(ctx context.Context) ([]Subsection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, section_id, title, position, content_type, video_url, pdf_key, created_at
		   FROM subsections ORDER BY section_id, position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubsections(rows)
}

// UpdateSubsection replaces the content payload; position is never client-set.
func (s *SQLStore) UpdateSubsection(ctx context.Context, id int64, in SubsectionInput) (Subsection, error) {
	if err := validateSubsectionInput(in); err != nil {
		return Subsection{}, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE subsections SET title=$1, content_type=$2, video_url=$3, pdf_key=$4 WHERE id=$5`,
		in.Title, in.ContentType, in.VideoURL, in.PDFKey, id)
	if err != nil {
		return Subsection{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Subsection{}, apperr.ErrNotFound
	}
	return s.GetSubsection(ctx, id)
}

func (s *SQLStore) DeleteSubsection(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subsections WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// CourseOfSubsection resolves the owning course id, for entitlement checks.
func (s *SQLStore) CourseOfSubsection(ctx context.Context, subsectionID int64) (int64, error) {
	var courseID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT sec.course_id FROM subsections sub
		  JOIN sections sec ON sec.id = sub.section_id
		 WHERE sub.id=$1`, subsectionID).Scan(&courseID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.ErrNotFound
	}
	return courseID, err
}

func (s *SQLStore) subsectionsOfSection(ctx context.Context, sectionID int64) ([]Subsection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, section_id, title, position, content_type, video_url, pdf_key, created_at
		   FROM subsections WHERE section_id=$1 ORDER BY position`, sectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubsections(rows)
}

func scanSubsections(rows *sql.Rows) ([]Subsection, error) {
	out := []Subsection{}
	for rows.Next() {
		var sub Subsection
		var vu, pk sql.NullString
		if err := rows.Scan(&sub.ID, &sub.SectionID, &sub.Title, &sub.Position,
			&sub.ContentType, &vu, &pk, &sub.CreatedAt); err != nil {
			return nil, err
		}
		if vu.Valid {
			sub.VideoURL = &vu.String
		}
		if pk.Valid {
			sub.PDFKey = &pk.String
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *SQLStore) requireCourse(ctx context.Context, id int64) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM courses WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return apperr.ErrNotFound
	}
	return nil
}

// ---------- packages ----------

type PackageInput struct {
	Title           string
	Description     string
	IsPublished     bool
	Featured        bool
	IsFree          bool
	PriceCents      int64
	DiscountedCents *int64
	CourseIDs       []int64 // nil means "leave unchanged" on update
}

func validatePackageInput(in PackageInput) error {
	fe := apperr.FieldErrors{}
	if strings.TrimSpace(in.Title) == "" {
		fe["title"] = "required"
	}
	if in.IsFree {
		if in.PriceCents > 0 {
			fe["price"] = "must be 0 for free packages"
		}
		if in.DiscountedCents != nil && *in.DiscountedCents > 0 {
			fe["discounted_price"] = "must be 0 for free packages"
		}
	} else {
		if in.PriceCents <= 0 {
			fe["price"] = "required and must be greater than 0 for paid packages"
		}
		if in.DiscountedCents != nil {
			if *in.DiscountedCents <= 0 {
				fe["discounted_price"] = "must be greater than 0"
			} else if *in.DiscountedCents >= in.PriceCents {
				fe["discounted_price"] = "must be less than original price"
			}
		}
	}
	if len(fe) > 0 {
		return fe
	}
	return nil
}

func (s *SQLStore) CreatePackage(ctx context.Context, in PackageInput, createdBy int64) (Package, error) {
	if err := validatePackageInput(in); err != nil {
		return Package{}, err
	}
	now := time.Now().Unix()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Package{}, err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO packages (created_by, title, description, is_published, featured, is_free, price_cents, discounted_cents, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
		RETURNING id`,
		createdBy, in.Title, in.Description, in.IsPublished, in.Featured, in.IsFree,
		in.PriceCents, in.DiscountedCents, now).Scan(&id)
	if err != nil {
		return Package{}, err
	}
	if err := setPackageCourses(ctx, tx, id, in.CourseIDs, in.IsPublished); err != nil {
		return Package{}, err
	}
	if err := tx.Commit(); err != nil {
		return Package{}, err
	}
	return s.GetPackage(ctx, id, true)
}

func (s *SQLStore) UpdatePackage(ctx context.Context, id int64, in PackageInput) (Package, error) {
	if err := validatePackageInput(in); err != nil {
		return Package{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Package{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE packages SET title=$1, description=$2, is_published=$3, featured=$4, is_free=$5,
		       price_cents=$6, discounted_cents=$7, updated_at=$8
		 WHERE id=$9`,
		in.Title, in.Description, in.IsPublished, in.Featured, in.IsFree,
		in.PriceCents, in.DiscountedCents, time.Now().Unix(), id)
	if err != nil {
		return Package{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Package{}, apperr.ErrNotFound
	}
	if in.CourseIDs != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM package_courses WHERE package_id=$1`, id); err != nil {
			return Package{}, err
		}
		if err := setPackageCourses(ctx, tx, id, in.CourseIDs, in.IsPublished); err != nil {
			return Package{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Package{}, err
	}
	return s.GetPackage(ctx, id, true)
}

// setPackageCourses inserts the course set. A published package silently
// drops unpublished courses; a draft may bundle anything that exists.
func setPackageCourses(ctx context.Context, tx *sql.Tx, packageID int64, courseIDs []int64, published bool) error {
	if len(courseIDs) == 0 {
		return nil
	}
	ph := make([]string, len(courseIDs))
	args := make([]any, len(courseIDs))
	for i, cid := range courseIDs {
		ph[i] = "$" + strconv.Itoa(i+1)
		args[i] = cid
	}
	q := `SELECT id FROM courses WHERE id IN (` + strings.Join(ph, ",") + `)`
	if published {
		q += ` AND is_published`
	}
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	var keep []int64
	for rows.Next() {
		var cid int64
		if err := rows.Scan(&cid); err != nil {
			return err
		}
		keep = append(keep, cid)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, cid := range keep {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO package_courses (package_id, course_id) VALUES ($1,$2)`, packageID, cid); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) GetPackage(ctx context.Context, id int64, includeUnpublished bool) (Package, error) {
	q := `SELECT id, created_by, title, description, is_published, featured, is_free, price_cents, discounted_cents, created_at, updated_at
	        FROM packages WHERE id=$1`
	if !includeUnpublished {
		q += ` AND is_published`
	}
	var p Package
	var createdBy, disc sql.NullInt64
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&p.ID, &createdBy, &p.Title, &p.Description, &p.IsPublished, &p.Featured,
		&p.IsFree, &p.PriceCents, &disc, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Package{}, apperr.ErrNotFound
	}
	if err != nil {
		return Package{}, err
	}
	if createdBy.Valid {
		p.CreatedBy = &createdBy.Int64
	}
	if disc.Valid {
		p.DiscountedCents = &disc.Int64
	}
	p.CourseIDs, err = s.coursesOfPackage(ctx, id)
	return p, err
}

func (s *SQLStore) ListPackages(ctx context.Context, publishedOnly bool) ([]Package, error) {
	q := `SELECT id, created_by, title, description, is_published, featured, is_free, price_cents, discounted_cents, created_at, updated_at
	        FROM packages`
	if publishedOnly {
		q += ` WHERE is_published`
	}
	q += ` ORDER BY featured DESC, created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Package{}
	for rows.Next() {
		var p Package
		var createdBy, disc sql.NullInt64
		if err := rows.Scan(&p.ID, &createdBy, &p.Title, &p.Description, &p.IsPublished,
			&p.Featured, &p.IsFree, &p.PriceCents, &disc, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if createdBy.Valid {
			p.CreatedBy = &createdBy.Int64
		}
		if disc.Valid {
			p.DiscountedCents = &disc.Int64
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].CourseIDs, err = s.coursesOfPackage(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLStore) DeletePackage(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM packages WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *SQLStore) coursesOfPackage(ctx context.Context, packageID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT course_id FROM package_courses WHERE package_id=$1 ORDER BY course_id`, packageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []int64{}
	for rows.Next() {
		var cid int64
		if err := rows.Scan(&cid); err != nil {
			return nil, err
		}
		out = append(out, cid)
	}
	return out, rows.Err()
}

// ---------- purchases ----------

// PurchasePackage is an atomic get-or-create on the (student, package) pair.
// Concurrent attempts resolve to exactly one row; the loser observes
// alreadyOwned=true. A purchase whose status was moved off "active" is
// reactivated rather than duplicated (the unique pair forces row reuse).
func (s *SQLStore) PurchasePackage(ctx context.Context, studentID, packageID int64) (Purchase, bool, error) {
	var published bool
	err := s.db.QueryRowContext(ctx,
		`SELECT is_published FROM packages WHERE id=$1`, packageID).Scan(&published)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !published) {
		return Purchase{}, false, apperr.ErrNotFound
	}
	if err != nil {
		return Purchase{}, false, err
	}

	now := time.Now().Unix()
	ref := uuid.NewString()
	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO package_purchases (student_id, package_id, status, reference, created_at)
		VALUES ($1,$2,'active',$3,$4)
		ON CONFLICT (student_id, package_id) DO NOTHING
		RETURNING id`,
		studentID, packageID, ref, now).Scan(&id)
	if err == nil {
		p, err := s.getPurchase(ctx, id)
		return p, false, err
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Purchase{}, false, err
	}

	// Conflict path: the pair already exists. Reactivate if needed.
	if _, err := s.db.ExecContext(ctx, `
		UPDATE package_purchases SET status='active'
		 WHERE student_id=$1 AND package_id=$2 AND status <> 'active'`,
		studentID, packageID); err != nil {
		return Purchase{}, false, err
	}
	var existing int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT id FROM package_purchases WHERE student_id=$1 AND package_id=$2`,
		studentID, packageID).Scan(&existing); err != nil {
		return Purchase{}, false, err
	}
	p, err := s.getPurchase(ctx, existing)
	return p, true, err
}

func (s *SQLStore) getPurchase(ctx context.Context, id int64) (Purchase, error) {
	var p Purchase
	err := s.db.QueryRowContext(ctx,
		`SELECT id, student_id, package_id, status, reference, created_at
		   FROM package_purchases WHERE id=$1`, id).
		Scan(&p.ID, &p.StudentID, &p.PackageID, &p.Status, &p.Reference, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Purchase{}, apperr.ErrNotFound
	}
	return p, err
}

// SetPurchaseStatus is the admin-side revocation hook.
func (s *SQLStore) SetPurchaseStatus(ctx context.Context, id int64, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE package_purchases SET status=$1 WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *SQLStore) ListPurchases(ctx context.Context, studentID int64) ([]Purchase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, student_id, package_id, status, reference, created_at
		   FROM package_purchases WHERE student_id=$1 ORDER BY created_at DESC, id DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Purchase{}
	for rows.Next() {
		var p Purchase
		if err := rows.Scan(&p.ID, &p.StudentID, &p.PackageID, &p.Status, &p.Reference, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		pkg, err := s.GetPackage(ctx, out[i].PackageID, true)
		if err != nil {
			return nil, fmt.Errorf("load package %d: %w", out[i].PackageID, err)
		}
		out[i].Package = &pkg
	}
	return out, nil
}
