package http

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	nethttp "net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"

	"github.com/prepverse/prepverse-lms/internal/audit"
	"github.com/prepverse/prepverse-lms/internal/auth"
	"github.com/prepverse/prepverse-lms/internal/catalog"
	"github.com/prepverse/prepverse-lms/internal/db"
	"github.com/prepverse/prepverse-lms/internal/entitlement"
	"github.com/prepverse/prepverse-lms/internal/quiz"
	"github.com/prepverse/prepverse-lms/internal/rbac"
	"github.com/prepverse/prepverse-lms/internal/storage"
)

type testEnv struct {
	dbh    *sql.DB
	srv    *httptest.Server
	client *nethttp.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := "file:" + name + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	dbh.SetMaxOpenConns(1)
	t.Cleanup(func() { dbh.Close() })

	ent := entitlement.NewChecker(dbh)
	catalogStore := catalog.NewSQLStore(dbh)
	quizStore := quiz.NewSQLStore(dbh, ent)
	recorder := audit.NewRecorder(dbh)
	authSvc := auth.NewAuthService("test-secret", time.Hour)
	bs, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}

	r := chi.NewRouter()
	r.Post("/api/auth/register", RegisterHandler(dbh, authSvc))
	r.Post("/api/auth/login", LoginHandler(dbh, authSvc))
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc, dbh))
		pr.Get("/api/courses", ListCoursesHandler(catalogStore))
		pr.Get("/api/courses/{courseID}", GetCourseHandler(catalogStore, ent, dbh))
		pr.Get("/api/courses/{courseID}/quizzes", ListCourseQuizzesHandler(quizStore, catalogStore, ent, dbh))
		pr.Get("/api/packages", ListPackagesHandler(catalogStore))
		pr.With(rbac.RequireStudent()).
			Post("/api/packages/{packageID}/purchase", PurchasePackageHandler(catalogStore, recorder))
		pr.Get("/api/quizzes/{quizID}", GetQuizHandler(quizStore, ent, dbh))
		pr.With(rbac.RequireTeacherOrAdmin()).
			Post("/api/courses/{courseID}/quizzes", CreateQuizHandler(quizStore, dbh))
		pr.With(rbac.RequireTeacherOrAdmin()).
			Post("/api/quizzes/{quizID}/questions", AddQuestionHandler(quizStore, dbh))
		pr.With(rbac.RequireStudent()).
			Post("/api/quizzes/{quizID}/submissions", SubmitQuizHandler(quizStore, recorder))
		pr.With(rbac.RequireStudent()).
			Get("/api/me/submissions", ListMySubmissionsHandler(quizStore))
		pr.With(rbac.RequireTeacherOrAdmin()).
			Post("/api/admin/courses", CreateCourseHandler(catalogStore))
		pr.With(rbac.RequireTeacherOrAdmin()).
			Post("/api/admin/courses/{courseID}/sections", CreateSectionHandler(catalogStore, dbh))
		pr.With(rbac.RequireTeacherOrAdmin()).
			Post("/api/admin/sections/{sectionID}/subsections", CreateSubsectionHandler(catalogStore, dbh, bs))
		pr.With(rbac.RequireAdmin()).
			Post("/api/admin/packages", CreatePackageHandler(catalogStore))
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testEnv{dbh: dbh, srv: srv, client: srv.Client()}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*nethttp.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := nethttp.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	var out map[string]any
	_ = json.Unmarshal(data, &out)
	if out == nil {
		out = map[string]any{"_raw": string(data)}
	}
	return resp, out
}

func (e *testEnv) register(t *testing.T, email, role string) string {
	t.Helper()
	resp, body := e.do(t, "POST", "/api/auth/register", "", map[string]any{
		"email":     email,
		"password":  "correct-horse",
		"role":      role,
		"full_name": "Test " + role,
	})
	if resp.StatusCode != nethttp.StatusCreated {
		t.Fatalf("register %s: status %d body %v", email, resp.StatusCode, body)
	}
	tok, _ := body["access_token"].(string)
	if tok == "" {
		t.Fatalf("register %s: no token in %v", email, body)
	}
	return tok
}

// makeStaff flips the flag directly; staff accounts never come from the
// public endpoint.
func (e *testEnv) makeStaff(t *testing.T, email string) {
	t.Helper()
	if _, err := e.dbh.Exec(`UPDATE users SET is_staff=TRUE WHERE email=$1`, email); err != nil {
		t.Fatalf("make staff: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	e := newTestEnv(t)

	cases := []map[string]any{
		{"email": "bad", "password": "correct-horse", "role": "student", "full_name": "x"},
		{"email": "a@x.dev", "password": "short", "role": "student", "full_name": "x"},
		{"email": "a@x.dev", "password": "correct-horse", "role": "admin", "full_name": "x"},
		{"email": "a@x.dev", "password": "correct-horse", "role": "student"},
	}
	for i, c := range cases {
		resp, body := e.do(t, "POST", "/api/auth/register", "", c)
		if resp.StatusCode != nethttp.StatusBadRequest {
			t.Errorf("case %d: status %d body %v", i, resp.StatusCode, body)
		}
		if _, ok := body["errors"]; !ok {
			t.Errorf("case %d: no errors object in %v", i, body)
		}
	}

	e.register(t, "dupe@x.dev", "student")
	resp, body := e.do(t, "POST", "/api/auth/register", "", map[string]any{
		"email": "dupe@x.dev", "password": "correct-horse", "role": "student", "full_name": "x",
	})
	if resp.StatusCode != nethttp.StatusBadRequest {
		t.Fatalf("duplicate email: status %d body %v", resp.StatusCode, body)
	}
}

func TestLogin(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, "s@x.dev", "student")

	resp, body := e.do(t, "POST", "/api/auth/login", "", map[string]any{
		"email": "s@x.dev", "password": "correct-horse",
	})
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("login: status %d body %v", resp.StatusCode, body)
	}
	if body["access_token"] == "" {
		t.Fatalf("no token: %v", body)
	}

	resp, _ = e.do(t, "POST", "/api/auth/login", "", map[string]any{
		"email": "s@x.dev", "password": "wrong",
	})
	if resp.StatusCode != nethttp.StatusUnauthorized {
		t.Fatalf("bad password: status %d", resp.StatusCode)
	}
	resp, _ = e.do(t, "POST", "/api/auth/login", "", map[string]any{
		"email": "nobody@x.dev", "password": "correct-horse",
	})
	if resp.StatusCode != nethttp.StatusUnauthorized {
		t.Fatalf("unknown email: status %d", resp.StatusCode)
	}
}

func TestRoleGates(t *testing.T) {
	e := newTestEnv(t)
	student := e.register(t, "s@x.dev", "student")
	teacher := e.register(t, "t@x.dev", "teacher")

	courseBody := map[string]any{"title": "Physics", "exam_target": "jee", "student_class": "11"}
	if resp, _ := e.do(t, "POST", "/api/admin/courses", student, courseBody); resp.StatusCode != nethttp.StatusForbidden {
		t.Fatalf("student created a course: %d", resp.StatusCode)
	}
	if resp, _ := e.do(t, "POST", "/api/admin/courses", "", courseBody); resp.StatusCode != nethttp.StatusUnauthorized {
		t.Fatalf("anonymous got past auth: %d", resp.StatusCode)
	}
	if resp, _ := e.do(t, "POST", "/api/admin/packages", teacher, map[string]any{"title": "p", "is_free": true}); resp.StatusCode != nethttp.StatusForbidden {
		t.Fatalf("plain teacher created a package: %d", resp.StatusCode)
	}
}

func TestQuizLifecycle(t *testing.T) {
	e := newTestEnv(t)
	studentTok := e.register(t, "s@x.dev", "student")
	teacherTok := e.register(t, "t@x.dev", "teacher")
	adminTok := e.register(t, "a@x.dev", "teacher")
	e.makeStaff(t, "a@x.dev")

	// Teacher authors a published course.
	resp, course := e.do(t, "POST", "/api/admin/courses", teacherTok, map[string]any{
		"title": "Physics", "exam_target": "jee", "student_class": "11", "is_published": true,
	})
	if resp.StatusCode != nethttp.StatusCreated {
		t.Fatalf("create course: %d %v", resp.StatusCode, course)
	}
	courseID := int64(course["id"].(float64))

	// Admin bundles it into a paid published package.
	resp, pkg := e.do(t, "POST", "/api/admin/packages", adminTok, map[string]any{
		"title": "JEE Full", "is_published": true, "price_cents": 10000,
		"course_ids": []int64{courseID},
	})
	if resp.StatusCode != nethttp.StatusCreated {
		t.Fatalf("create package: %d %v", resp.StatusCode, pkg)
	}
	pkgID := int64(pkg["id"].(float64))

	// Teacher publishes a quiz with one question.
	resp, qz := e.do(t, "POST", fmt.Sprintf("/api/courses/%d/quizzes", courseID), teacherTok, map[string]any{
		"title": "Kinematics check", "is_published": true,
	})
	if resp.StatusCode != nethttp.StatusCreated {
		t.Fatalf("create quiz: %d %v", resp.StatusCode, qz)
	}
	quizID := int64(qz["id"].(float64))

	resp, question := e.do(t, "POST", fmt.Sprintf("/api/quizzes/%d/questions", quizID), teacherTok, map[string]any{
		"prompt": "v = ?", "order": 1,
		"choices": []map[string]any{
			{"text": "u + at", "is_correct": true},
			{"text": "u - at"},
		},
	})
	if resp.StatusCode != nethttp.StatusCreated {
		t.Fatalf("add question: %d %v", resp.StatusCode, question)
	}
	choices := question["choices"].([]any)
	correctID := int64(choices[0].(map[string]any)["id"].(float64))
	questionID := int64(question["id"].(float64))

	// Without a purchase the quiz is behind the paywall.
	resp, body := e.do(t, "GET", fmt.Sprintf("/api/quizzes/%d", quizID), studentTok, nil)
	if resp.StatusCode != nethttp.StatusForbidden {
		t.Fatalf("paywall missing: %d %v", resp.StatusCode, body)
	}
	submitBody := map[string]any{"answers": map[string]any{fmt.Sprint(questionID): correctID}}
	resp, body = e.do(t, "POST", fmt.Sprintf("/api/quizzes/%d/submissions", quizID), studentTok, submitBody)
	if resp.StatusCode != nethttp.StatusForbidden {
		t.Fatalf("submit past paywall: %d %v", resp.StatusCode, body)
	}

	// Purchase, then take the quiz.
	resp, body = e.do(t, "POST", fmt.Sprintf("/api/packages/%d/purchase", pkgID), studentTok, nil)
	if resp.StatusCode != nethttp.StatusCreated {
		t.Fatalf("purchase: %d %v", resp.StatusCode, body)
	}
	if body["already_owned"] != false {
		t.Fatalf("first purchase flagged owned: %v", body)
	}

	// The student view must not leak the key.
	resp, body = e.do(t, "GET", fmt.Sprintf("/api/quizzes/%d", quizID), studentTok, nil)
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("quiz view: %d %v", resp.StatusCode, body)
	}
	qjson, _ := json.Marshal(body)
	if strings.Contains(string(qjson), "is_correct") {
		t.Fatalf("answer key leaked: %s", qjson)
	}

	resp, result := e.do(t, "POST", fmt.Sprintf("/api/quizzes/%d/submissions", quizID), studentTok, submitBody)
	if resp.StatusCode != nethttp.StatusCreated {
		t.Fatalf("submit: %d %v", resp.StatusCode, result)
	}
	if result["score"].(float64) != 1 || result["total"].(float64) != 1 || result["percent"].(float64) != 100 {
		t.Fatalf("result = %v", result)
	}

	// Repeat purchase stays 201 and idempotent.
	resp, body = e.do(t, "POST", fmt.Sprintf("/api/packages/%d/purchase", pkgID), studentTok, nil)
	if resp.StatusCode != nethttp.StatusCreated || body["already_owned"] != true {
		t.Fatalf("repeat purchase: %d %v", resp.StatusCode, body)
	}

	// History shows the attempt.
	resp, _ = e.do(t, "GET", "/api/me/submissions", studentTok, nil)
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("history: %d", resp.StatusCode)
	}

	// Malformed sheet is rejected up front.
	resp, body = e.do(t, "POST", fmt.Sprintf("/api/quizzes/%d/submissions", quizID), studentTok,
		map[string]any{"answers": []int{1, 2}})
	if resp.StatusCode != nethttp.StatusBadRequest {
		t.Fatalf("bad sheet: %d %v", resp.StatusCode, body)
	}
}

func TestDraftCourseHiddenFromStudents(t *testing.T) {
	e := newTestEnv(t)
	studentTok := e.register(t, "s@x.dev", "student")
	teacherTok := e.register(t, "t@x.dev", "teacher")

	resp, course := e.do(t, "POST", "/api/admin/courses", teacherTok, map[string]any{
		"title": "Draft", "exam_target": "jee", "student_class": "11",
	})
	if resp.StatusCode != nethttp.StatusCreated {
		t.Fatalf("create course: %d", resp.StatusCode)
	}
	courseID := int64(course["id"].(float64))

	resp, _ = e.do(t, "GET", fmt.Sprintf("/api/courses/%d", courseID), studentTok, nil)
	if resp.StatusCode != nethttp.StatusNotFound {
		t.Fatalf("draft visible: %d", resp.StatusCode)
	}
}

func TestCourseDetailHidesContentWithoutPurchase(t *testing.T) {
	e := newTestEnv(t)
	studentTok := e.register(t, "s@x.dev", "student")
	teacherTok := e.register(t, "t@x.dev", "teacher")
	adminTok := e.register(t, "a@x.dev", "teacher")
	e.makeStaff(t, "a@x.dev")

	resp, course := e.do(t, "POST", "/api/admin/courses", teacherTok, map[string]any{
		"title": "Physics", "exam_target": "jee", "student_class": "11", "is_published": true,
	})
	if resp.StatusCode != nethttp.StatusCreated {
		t.Fatalf("create course: %d %v", resp.StatusCode, course)
	}
	courseID := int64(course["id"].(float64))

	resp, sec := e.do(t, "POST", fmt.Sprintf("/api/admin/courses/%d/sections", courseID), teacherTok,
		map[string]any{"title": "Kinematics"})
	if resp.StatusCode != nethttp.StatusCreated {
		t.Fatalf("create section: %d %v", resp.StatusCode, sec)
	}
	sectionID := int64(sec["id"].(float64))

	const videoURL = "https://cdn.example.com/lessons/kinematics-1.mp4"
	resp, sub := e.do(t, "POST", fmt.Sprintf("/api/admin/sections/%d/subsections", sectionID), teacherTok,
		map[string]any{"title": "Lesson 1", "content_type": "video", "video_url": videoURL})
	if resp.StatusCode != nethttp.StatusCreated {
		t.Fatalf("create subsection: %d %v", resp.StatusCode, sub)
	}

	resp, pkg := e.do(t, "POST", "/api/admin/packages", adminTok, map[string]any{
		"title": "JEE Full", "is_published": true, "price_cents": 10000,
		"course_ids": []int64{courseID},
	})
	if resp.StatusCode != nethttp.StatusCreated {
		t.Fatalf("create package: %d %v", resp.StatusCode, pkg)
	}
	pkgID := int64(pkg["id"].(float64))

	// Without a purchase the outline is visible but the references are not.
	resp, body := e.do(t, "GET", fmt.Sprintf("/api/courses/%d", courseID), studentTok, nil)
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("course detail: %d %v", resp.StatusCode, body)
	}
	raw, _ := json.Marshal(body)
	if strings.Contains(string(raw), videoURL) {
		t.Fatalf("video url leaked without purchase: %s", raw)
	}
	if !strings.Contains(string(raw), "Lesson 1") {
		t.Fatalf("outline missing: %s", raw)
	}

	// The quiz listing is behind the same paywall.
	resp, _ = e.do(t, "GET", fmt.Sprintf("/api/courses/%d/quizzes", courseID), studentTok, nil)
	if resp.StatusCode != nethttp.StatusForbidden {
		t.Fatalf("quiz list without purchase: %d", resp.StatusCode)
	}

	// The assigned teacher always sees the references.
	resp, body = e.do(t, "GET", fmt.Sprintf("/api/courses/%d", courseID), teacherTok, nil)
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("teacher course detail: %d %v", resp.StatusCode, body)
	}
	if raw, _ := json.Marshal(body); !strings.Contains(string(raw), videoURL) {
		t.Fatalf("teacher view stripped: %s", raw)
	}

	// Purchasing restores both.
	if resp, body := e.do(t, "POST", fmt.Sprintf("/api/packages/%d/purchase", pkgID), studentTok, nil); resp.StatusCode != nethttp.StatusCreated {
		t.Fatalf("purchase: %d %v", resp.StatusCode, body)
	}
	resp, body = e.do(t, "GET", fmt.Sprintf("/api/courses/%d", courseID), studentTok, nil)
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("course detail after purchase: %d %v", resp.StatusCode, body)
	}
	if raw, _ := json.Marshal(body); !strings.Contains(string(raw), videoURL) {
		t.Fatalf("video url missing after purchase: %s", raw)
	}
	resp, _ = e.do(t, "GET", fmt.Sprintf("/api/courses/%d/quizzes", courseID), studentTok, nil)
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("quiz list after purchase: %d", resp.StatusCode)
	}
}

func TestQuizAuthoringScopedToCourseStaff(t *testing.T) {
	e := newTestEnv(t)
	authorTok := e.register(t, "author@x.dev", "teacher")
	outsiderTok := e.register(t, "other@x.dev", "teacher")

	resp, course := e.do(t, "POST", "/api/admin/courses", authorTok, map[string]any{
		"title": "Physics", "exam_target": "jee", "student_class": "11", "is_published": true,
	})
	if resp.StatusCode != nethttp.StatusCreated {
		t.Fatalf("create course: %d %v", resp.StatusCode, course)
	}
	courseID := int64(course["id"].(float64))

	resp, qz := e.do(t, "POST", fmt.Sprintf("/api/courses/%d/quizzes", courseID), authorTok, map[string]any{
		"title": "Kinematics check", "is_published": true,
	})
	if resp.StatusCode != nethttp.StatusCreated {
		t.Fatalf("create quiz: %d %v", resp.StatusCode, qz)
	}
	quizID := int64(qz["id"].(float64))

	questionBody := map[string]any{
		"prompt": "v = ?", "order": 1,
		"choices": []map[string]any{
			{"text": "u + at", "is_correct": true},
			{"text": "u - at"},
		},
	}

	// Denials for another teacher's quiz and for an absent quiz are
	// indistinguishable.
	resp, _ = e.do(t, "POST", fmt.Sprintf("/api/quizzes/%d/questions", quizID), outsiderTok, questionBody)
	if resp.StatusCode != nethttp.StatusNotFound {
		t.Fatalf("outsider on existing quiz: %d", resp.StatusCode)
	}
	resp, _ = e.do(t, "POST", "/api/quizzes/999999/questions", outsiderTok, questionBody)
	if resp.StatusCode != nethttp.StatusNotFound {
		t.Fatalf("outsider on absent quiz: %d", resp.StatusCode)
	}

	resp, _ = e.do(t, "POST", fmt.Sprintf("/api/quizzes/%d/questions", quizID), authorTok, questionBody)
	if resp.StatusCode != nethttp.StatusCreated {
		t.Fatalf("author blocked: %d", resp.StatusCode)
	}
}
