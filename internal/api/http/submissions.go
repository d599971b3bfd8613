package http

import (
	"database/sql"
	"encoding/json"
	"strconv"

	nethttp "net/http"

	"github.com/prepverse/prepverse-lms/internal/audit"
	"github.com/prepverse/prepverse-lms/internal/quiz"
	"github.com/prepverse/prepverse-lms/internal/rbac"
)

// SubmitQuizHandler grades one attempt synchronously and returns the full
// result, breakdown included.
func SubmitQuizHandler(store quiz.Store, rec *audit.Recorder) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		identity, _ := rbac.IdentityFromContext(r.Context())
		quizID, err := urlID(r, "quizID")
		if err != nil {
			writeError(w, err)
			return
		}
		var req struct {
			Answers json.RawMessage `json:"answers"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		sheet, err := quiz.ParseAnswerSheet(req.Answers)
		if err != nil {
			writeError(w, err)
			return
		}
		res, err := store.Submit(r.Context(), identity.ID, quizID, sheet)
		if err != nil {
			writeError(w, err)
			return
		}
		rec.Append(r.Context(), audit.EventQuizSubmitted, strconv.FormatInt(res.Submission.ID, 10), map[string]any{
			"student_id": identity.ID,
			"quiz_id":    quizID,
			"score":      res.Score,
			"total":      res.Total,
		})
		writeJSON(w, nethttp.StatusCreated, res)
	}
}

func ListMySubmissionsHandler(store quiz.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		identity, _ := rbac.IdentityFromContext(r.Context())
		subs, err := store.ListSubmissionsByStudent(r.Context(), identity.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, subs)
	}
}

// ListQuizSubmissionsHandler is the course-staff gradebook view, answers
// attached per submission.
func ListQuizSubmissionsHandler(store quiz.Store, dbh *sql.DB) nethttp.HandlerFunc {
	type row struct {
		quiz.Submission
		Answers []quiz.Answer `json:"answers"`
	}
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
		subs, err := store.ListSubmissionsByQuiz(r.Context(), quizID)
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]row, 0, len(subs))
		for _, s := range subs {
			answers, err := store.ListAnswers(r.Context(), s.ID)
			if err != nil {
				writeError(w, err)
				return
			}
			out = append(out, row{Submission: s, Answers: answers})
		}
		writeJSON(w, nethttp.StatusOK, out)
	}
}
