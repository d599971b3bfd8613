package http

import (
	"database/sql"

	nethttp "net/http"

	"github.com/prepverse/prepverse-lms/internal/apperr"
	"github.com/prepverse/prepverse-lms/internal/catalog"
	"github.com/prepverse/prepverse-lms/internal/entitlement"
	"github.com/prepverse/prepverse-lms/internal/quiz"
	"github.com/prepverse/prepverse-lms/internal/rbac"
)

// ListCourseQuizzesHandler is role-split: staff and assigned teachers see
// everything; students need an entitlement and get published quizzes of a
// published course.
func ListCourseQuizzesHandler(store quiz.Store, catalogStore *catalog.SQLStore, ent *entitlement.Checker, dbh *sql.DB) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		identity, _ := rbac.IdentityFromContext(r.Context())
		courseID, err := urlID(r, "courseID")
		if err != nil {
			writeError(w, err)
			return
		}
		if rbac.IsTeacherOrAdmin(identity) && rbac.CanModifyCourse(r.Context(), dbh, identity, courseID) {
			quizzes, err := store.ListQuizzesByCourse(r.Context(), courseID, false)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, nethttp.StatusOK, quizzes)
			return
		}
		if _, err := catalogStore.GetCourse(r.Context(), courseID, false); err != nil {
			writeError(w, err)
			return
		}
		ok, err := ent.HasAccess(r.Context(), identity.ID, courseID)
		if err != nil {
			writeError(w, err)
			return
		}
		if !ok {
			writeError(w, apperr.ErrNoEntitlement)
			return
		}
		quizzes, err := store.ListQuizzesByCourse(r.Context(), courseID, true)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, quizzes)
	}
}

type quizRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	IsPublished bool   `json:"is_published"`
}

func CreateQuizHandler(store quiz.Store, dbh *sql.DB) nethttp.HandlerFunc {
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
		var req quizRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, validationErrors(err))
			return
		}
		q, err := store.CreateQuiz(r.Context(), courseID, quiz.QuizInput{
			Title:       req.Title,
			Description: req.Description,
			IsPublished: req.IsPublished,
		}, identity.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusCreated, q)
	}
}

// GetQuizHandler gives students the key-stripped published view gated by
// entitlement, and course staff the full authoring view.
func GetQuizHandler(store quiz.Store, ent *entitlement.Checker, dbh *sql.DB) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		identity, _ := rbac.IdentityFromContext(r.Context())
		quizID, err := urlID(r, "quizID")
		if err != nil {
			writeError(w, err)
			return
		}

		if rbac.IsTeacherOrAdmin(identity) {
			courseID, err := store.CourseOfQuiz(r.Context(), quizID)
			if err != nil {
				writeError(w, err)
				return
			}
			if !rbac.CanModifyCourse(r.Context(), dbh, identity, courseID) {
				// Quizzes outside the caller's courses look absent.
				writeError(w, apperr.ErrNotFound)
				return
			}
			q, err := store.GetQuizAdmin(r.Context(), quizID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, nethttp.StatusOK, q)
			return
		}

		q, err := store.GetQuiz(r.Context(), quizID)
		if err != nil {
			writeError(w, err)
			return
		}
		ok, err := ent.HasAccess(r.Context(), identity.ID, q.CourseID)
		if err != nil {
			writeError(w, err)
			return
		}
		if !ok {
			writeError(w, apperr.ErrNoEntitlement)
			return
		}
		writeJSON(w, nethttp.StatusOK, q)
	}
}

// requireQuizAuthor answers not found for quizzes outside the caller's
// courses, so a denial never confirms the quiz exists.
func requireQuizAuthor(r *nethttp.Request, store quiz.Store, dbh *sql.DB, quizID int64) error {
	identity, _ := rbac.IdentityFromContext(r.Context())
	courseID, err := store.CourseOfQuiz(r.Context(), quizID)
	if err != nil {
		return err
	}
	if !rbac.CanModifyCourse(r.Context(), dbh, identity, courseID) {
		return apperr.ErrNotFound
	}
	return nil
}

func UpdateQuizHandler(store quiz.Store, dbh *sql.DB) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		quizID, err := urlID(r, "quizID")
		if err != nil {
			writeError(w, err)
			return
		}
		if err := requireQuizAuthor(r, store, dbh, quizID); err != nil {
			writeError(w, err)
			return
		}
		var req struct {
			Title       *string `json:"title"`
			Description *string `json:"description"`
			IsPublished *bool   `json:"is_published"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		q, err := store.UpdateQuiz(r.Context(), quizID, quiz.QuizPatch{
			Title:       req.Title,
			Description: req.Description,
			IsPublished: req.IsPublished,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, q)
	}
}

func DeleteQuizHandler(store quiz.Store, dbh *sql.DB) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		quizID, err := urlID(r, "quizID")
		if err != nil {
			writeError(w, err)
			return
		}
		if err := requireQuizAuthor(r, store, dbh, quizID); err != nil {
			writeError(w, err)
			return
		}
		if err := store.DeleteQuiz(r.Context(), quizID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(nethttp.StatusNoContent)
	}
}

func AddQuestionHandler(store quiz.Store, dbh *sql.DB) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		quizID, err := urlID(r, "quizID")
		if err != nil {
			writeError(w, err)
			return
		}
		if err := requireQuizAuthor(r, store, dbh, quizID); err != nil {
			writeError(w, err)
			return
		}
		var req quiz.QuestionInput
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		q, err := store.AddQuestion(r.Context(), quizID, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusCreated, q)
	}
}
