package http

import (
	"database/sql"

	nethttp "net/http"

	"github.com/prepverse/prepverse-lms/internal/apperr"
	"github.com/prepverse/prepverse-lms/internal/catalog"
	"github.com/prepverse/prepverse-lms/internal/rbac"
)

type courseRequest struct {
	Title             string  `json:"title" validate:"required"`
	Description       string  `json:"description"`
	ExamTarget        string  `json:"exam_target" validate:"required,oneof=jee neet eamcet"`
	StudentClass      string  `json:"student_class" validate:"required,oneof=11 12"`
	IsPublished       bool    `json:"is_published"`
	EstimatedDuration string  `json:"estimated_duration"`
	TeacherIDs        []int64 `json:"assigned_teacher_ids"`
}

func (c courseRequest) input() catalog.CourseInput {
	return catalog.CourseInput{
		Title:             c.Title,
		Description:       c.Description,
		ExamTarget:        c.ExamTarget,
		StudentClass:      c.StudentClass,
		IsPublished:       c.IsPublished,
		EstimatedDuration: c.EstimatedDuration,
		TeacherIDs:        c.TeacherIDs,
	}
}

func CreateCourseHandler(store *catalog.SQLStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id, _ := rbac.IdentityFromContext(r.Context())
		var req courseRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, validationErrors(err))
			return
		}
		c, err := store.CreateCourse(r.Context(), req.input(), id.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusCreated, c)
	}
}

func ListCoursesAdminHandler(store *catalog.SQLStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		courses, err := store.ListCourses(r.Context(), false)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, courses)
	}
}

func GetCourseAdminHandler(store *catalog.SQLStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		courseID, err := urlID(r, "courseID")
		if err != nil {
			writeError(w, err)
			return
		}
		c, err := store.GetCourse(r.Context(), courseID, true)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, c)
	}
}

func UpdateCourseHandler(store *catalog.SQLStore, dbh *sql.DB) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		identity, _ := rbac.IdentityFromContext(r.Context())
		courseID, err := urlID(r, "courseID")
		if err != nil {
			writeError(w, err)
			return
		}
		if !rbac.CanModifyCourse(r.Context(), dbh, identity, courseID) {
			writeError(w, apperr.ErrForbidden)
			return
		}
		var req courseRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, validationErrors(err))
			return
		}
		c, err := store.UpdateCourse(r.Context(), courseID, req.input())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, c)
	}
}

func DeleteCourseHandler(store *catalog.SQLStore, dbh *sql.DB) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		identity, _ := rbac.IdentityFromContext(r.Context())
		courseID, err := urlID(r, "courseID")
		if err != nil {
			writeError(w, err)
			return
		}
		if !rbac.CanModifyCourse(r.Context(), dbh, identity, courseID) {
			writeError(w, apperr.ErrForbidden)
			return
		}
		if err := store.DeleteCourse(r.Context(), courseID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(nethttp.StatusNoContent)
	}
}
