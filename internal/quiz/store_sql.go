package quiz

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/prepverse/prepverse-lms/internal/apperr"
	"github.com/prepverse/prepverse-lms/internal/db"
	"github.com/prepverse/prepverse-lms/internal/entitlement"
)

type SQLStore struct {
	db  *sql.DB
	ent *entitlement.Checker
}

func NewSQLStore(dbh *sql.DB, ent *entitlement.Checker) *SQLStore {
	return &SQLStore{db: dbh, ent: ent}
}

// ---------- quiz CRUD ----------

func (s *SQLStore) CreateQuiz(ctx context.Context, courseID int64, in QuizInput, createdBy int64) (Quiz, error) {
	if strings.TrimSpace(in.Title) == "" {
		return Quiz{}, apperr.FieldErrors{"title": "required"}
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM courses WHERE id=$1)`, courseID).Scan(&exists); err != nil {
		return Quiz{}, err
	}
	if !exists {
		return Quiz{}, apperr.ErrNotFound
	}
	now := time.Now().Unix()
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO quizzes (course_id, created_by, title, description, is_published, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)
		RETURNING id`,
		courseID, createdBy, in.Title, in.Description, in.IsPublished, now).Scan(&id)
	if err != nil {
		return Quiz{}, err
	}
	return s.GetQuizAdmin(ctx, id)
}

// GetQuiz serves students: the quiz and its course must both be published,
// and the returned choice set never carries the correct flags.
func (s *SQLStore) GetQuiz(ctx context.Context, id int64) (Quiz, error) {
	q, err := s.loadQuiz(ctx, id, true)
	if err != nil {
		return Quiz{}, err
	}
	q.StripAnswerKeys()
	return q, nil
}

func (s *SQLStore) GetQuizAdmin(ctx context.Context, id int64) (Quiz, error) {
	return s.loadQuiz(ctx, id, false)
}

func (s *SQLStore) loadQuiz(ctx context.Context, id int64, publishedOnly bool) (Quiz, error) {
	qstr := `
		SELECT q.id, q.course_id, q.created_by, q.title, q.description, q.is_published, q.created_at, q.updated_at
		  FROM quizzes q
		  JOIN courses c ON c.id = q.course_id
		 WHERE q.id=$1`
	if publishedOnly {
		qstr += ` AND q.is_published AND c.is_published`
	}
	var q Quiz
	var createdBy sql.NullInt64
	err := s.db.QueryRowContext(ctx, qstr, id).Scan(
		&q.ID, &q.CourseID, &createdBy, &q.Title, &q.Description, &q.IsPublished, &q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, apperr.ErrNotFound
	}
	if err != nil {
		return Quiz{}, err
	}
	if createdBy.Valid {
		q.CreatedBy = &createdBy.Int64
	}
	q.Questions, err = s.questionsOfQuiz(ctx, id)
	return q, err
}

func (s *SQLStore) questionsOfQuiz(ctx context.Context, quizID int64) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT qq.id, qq.prompt, qq.position, qc.id, qc.text, qc.is_correct
		  FROM quiz_questions qq
		  LEFT JOIN quiz_choices qc ON qc.question_id = qq.id
		 WHERE qq.quiz_id=$1
		 ORDER BY qq.position, qc.id`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Question{}
	var cur *Question
	for rows.Next() {
		var qid int64
		var prompt string
		var pos int
		var cid sql.NullInt64
		var text sql.NullString
		var correct sql.NullBool
		if err := rows.Scan(&qid, &prompt, &pos, &cid, &text, &correct); err != nil {
			return nil, err
		}
		if cur == nil || cur.ID != qid {
			out = append(out, Question{ID: qid, QuizID: quizID, Prompt: prompt, Position: pos, Choices: []Choice{}})
			cur = &out[len(out)-1]
		}
		if cid.Valid {
			v := correct.Bool
			cur.Choices = append(cur.Choices, Choice{ID: cid.Int64, Text: text.String, IsCorrect: &v})
		}
	}
	return out, rows.Err()
}

func (s *SQLStore) ListQuizzesByCourse(ctx context.Context, courseID int64, publishedOnly bool) ([]Quiz, error) {
	qstr := `
		SELECT id, course_id, created_by, title, description, is_published, created_at, updated_at
		  FROM quizzes WHERE course_id=$1`
	if publishedOnly {
		qstr += ` AND is_published`
	}
	qstr += ` ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, qstr, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Quiz{}
	for rows.Next() {
		var q Quiz
		var createdBy sql.NullInt64
		if err := rows.Scan(&q.ID, &q.CourseID, &createdBy, &q.Title, &q.Description,
			&q.IsPublished, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, err
		}
		if createdBy.Valid {
			q.CreatedBy = &createdBy.Int64
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateQuiz(ctx context.Context, id int64, patch QuizPatch) (Quiz, error) {
	cur, err := s.GetQuizAdmin(ctx, id)
	if err != nil {
		return Quiz{}, err
	}
	if patch.Title != nil {
		if strings.TrimSpace(*patch.Title) == "" {
			return Quiz{}, apperr.FieldErrors{"title": "required"}
		}
		cur.Title = *patch.Title
	}
	if patch.Description != nil {
		cur.Description = *patch.Description
	}
	if patch.IsPublished != nil {
		cur.IsPublished = *patch.IsPublished
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE quizzes SET title=$1, description=$2, is_published=$3, updated_at=$4 WHERE id=$5`,
		cur.Title, cur.Description, cur.IsPublished, time.Now().Unix(), id)
	if err != nil {
		return Quiz{}, err
	}
	return s.GetQuizAdmin(ctx, id)
}

func (s *SQLStore) DeleteQuiz(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM quizzes WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *SQLStore) CourseOfQuiz(ctx context.Context, id int64) (int64, error) {
	var courseID int64
	err := s.db.QueryRowContext(ctx, `SELECT course_id FROM quizzes WHERE id=$1`, id).Scan(&courseID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.ErrNotFound
	}
	return courseID, err
}

// ---------- authoring ----------

func validateQuestionInput(in QuestionInput) error {
	fe := apperr.FieldErrors{}
	if strings.TrimSpace(in.Prompt) == "" {
		fe["prompt"] = "required"
	}
	if in.Position < 1 {
		fe["order"] = "must be a positive integer"
	}
	if len(in.Choices) < 2 {
		fe["choices"] = "at least 2 choices are required"
	} else {
		correct := 0
		for _, c := range in.Choices {
			if strings.TrimSpace(c.Text) == "" {
				fe["choices"] = "each choice must have text"
			}
			if c.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			fe["choices"] = "exactly 1 correct choice is required"
		}
	}
	if len(fe) > 0 {
		return fe
	}
	return nil
}

// AddQuestion creates the question and its full choice set as one atomic
// unit; a partially written question is never observable. A duplicate
// position within the quiz is a conflict.
func (s *SQLStore) AddQuestion(ctx context.Context, quizID int64, in QuestionInput) (Question, error) {
	if err := validateQuestionInput(in); err != nil {
		return Question{}, err
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM quizzes WHERE id=$1)`, quizID).Scan(&exists); err != nil {
		return Question{}, err
	}
	if !exists {
		return Question{}, apperr.ErrNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Question{}, err
	}
	defer tx.Rollback()

	var qid int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO quiz_questions (quiz_id, prompt, position) VALUES ($1,$2,$3) RETURNING id`,
		quizID, in.Prompt, in.Position).Scan(&qid)
	if db.IsUniqueViolation(err) {
		return Question{}, apperr.ErrConflict
	}
	if err != nil {
		return Question{}, err
	}

	q := Question{ID: qid, QuizID: quizID, Prompt: in.Prompt, Position: in.Position}
	for _, c := range in.Choices {
		var cid int64
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO quiz_choices (question_id, text, is_correct) VALUES ($1,$2,$3) RETURNING id`,
			qid, c.Text, c.IsCorrect).Scan(&cid); err != nil {
			return Question{}, err
		}
		v := c.IsCorrect
		q.Choices = append(q.Choices, Choice{ID: cid, Text: c.Text, IsCorrect: &v})
	}
	if err := tx.Commit(); err != nil {
		return Question{}, err
	}
	return q, nil
}

// ---------- submission & grading ----------

// Submit grades one attempt synchronously. The submission row is written
// before grading starts so an interrupted pass still leaves an audit record;
// answers and the final score land in a single transaction after the pass.
func (s *SQLStore) Submit(ctx context.Context, studentID, quizID int64, sheet AnswerSheet) (Result, error) {
	q, err := s.loadQuiz(ctx, quizID, true)
	if err != nil {
		return Result{}, err
	}
	ok, err := s.ent.HasAccess(ctx, studentID, q.CourseID)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, apperr.ErrNoEntitlement
	}

	total := len(q.Questions)
	now := time.Now().Unix()
	sub := Submission{QuizID: quizID, StudentID: studentID, Total: total, CreatedAt: now}
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO quiz_submissions (quiz_id, student_id, score, total, created_at)
		VALUES ($1,$2,0,$3,$4) RETURNING id`,
		quizID, studentID, total, now).Scan(&sub.ID); err != nil {
		return Result{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback()

	score := 0
	results := make([]QuestionResult, 0, total)
	for _, question := range q.Questions {
		selected, _ := sheet.Get(question.ID)
		// A choice id pointing at another question's choice counts as no
		// answer, not an error.
		selected = resolveChoice(question, selected)
		correctID := correctChoice(question)

		isCorrect := selected != nil && correctID != nil && *selected == *correctID
		if isCorrect {
			score++
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO quiz_answers (submission_id, question_id, selected_choice_id, is_correct)
			VALUES ($1,$2,$3,$4)`,
			sub.ID, question.ID, selected, isCorrect); err != nil {
			return Result{}, err
		}
		results = append(results, QuestionResult{
			QuestionID:       question.ID,
			SelectedChoiceID: selected,
			CorrectChoiceID:  correctID,
			IsCorrect:        isCorrect,
		})
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE quiz_submissions SET score=$1, total=$2 WHERE id=$3`, score, total, sub.ID); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, err
	}

	sub.Score = score
	q.StripAnswerKeys()
	return Result{
		Submission: sub,
		Quiz:       q,
		Score:      score,
		Total:      total,
		Percent:    percent(score, total),
		Results:    results,
	}, nil
}

// resolveChoice keeps the selection only when it names a choice of this
// question.
func resolveChoice(q Question, selected *int64) *int64 {
	if selected == nil {
		return nil
	}
	for _, c := range q.Choices {
		if c.ID == *selected {
			return selected
		}
	}
	return nil
}

func correctChoice(q Question) *int64 {
	for _, c := range q.Choices {
		if c.IsCorrect != nil && *c.IsCorrect {
			id := c.ID
			return &id
		}
	}
	return nil
}

// percent rounds half away from zero to two decimals; an empty quiz grades
// to 0.0 rather than dividing by zero.
func percent(score, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(score)/float64(total)*100*100) / 100
}

func (s *SQLStore) ListSubmissionsByStudent(ctx context.Context, studentID int64) ([]StudentSubmission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.quiz_id, s.student_id, s.score, s.total, s.created_at, q.title, q.course_id
		  FROM quiz_submissions s
		  JOIN quizzes q ON q.id = s.quiz_id
		 WHERE s.student_id=$1
		 ORDER BY s.created_at DESC, s.id DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []StudentSubmission{}
	for rows.Next() {
		var v StudentSubmission
		if err := rows.Scan(&v.ID, &v.QuizID, &v.StudentID, &v.Score, &v.Total,
			&v.CreatedAt, &v.QuizTitle, &v.QuizCourseID); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListSubmissionsByQuiz(ctx context.Context, quizID int64) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, quiz_id, student_id, score, total, created_at
		  FROM quiz_submissions
		 WHERE quiz_id=$1
		 ORDER BY created_at DESC, id DESC`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Submission{}
	for rows.Next() {
		var v Submission
		if err := rows.Scan(&v.ID, &v.QuizID, &v.StudentID, &v.Score, &v.Total, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListAnswers(ctx context.Context, submissionID int64) ([]Answer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, submission_id, question_id, selected_choice_id, is_correct
		  FROM quiz_answers
		 WHERE submission_id=$1
		 ORDER BY question_id`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Answer{}
	for rows.Next() {
		var a Answer
		var sel sql.NullInt64
		if err := rows.Scan(&a.ID, &a.SubmissionID, &a.QuestionID, &sel, &a.IsCorrect); err != nil {
			return nil, err
		}
		if sel.Valid {
			a.SelectedChoiceID = &sel.Int64
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
