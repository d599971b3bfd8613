package quiz

import "context"

type QuizInput struct {
	Title       string
	Description string
	IsPublished bool
}

// QuizPatch carries partial updates; nil fields are left unchanged.
type QuizPatch struct {
	Title       *string
	Description *string
	IsPublished *bool
}

type ChoiceInput struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// QuestionInput is caller-supplied in full, including the position within the
// quiz (unlike sections, which auto-append).
type QuestionInput struct {
	Prompt   string        `json:"prompt"`
	Position int           `json:"order"`
	Choices  []ChoiceInput `json:"choices"`
}

// StudentSubmission pairs a submission with a summary of its quiz for the
// student history view.
type StudentSubmission struct {
	Submission
	QuizTitle    string `json:"quiz_title"`
	QuizCourseID int64  `json:"quiz_course_id"`
}

type Store interface {
	CreateQuiz(ctx context.Context, courseID int64, in QuizInput, createdBy int64) (Quiz, error)
	// GetQuiz is the student-safe read: published quiz under a published
	// course, answer keys stripped. Everything else is not found.
	GetQuiz(ctx context.Context, id int64) (Quiz, error)
	// GetQuizAdmin returns the full quiz, keys included, any publication state.
	GetQuizAdmin(ctx context.Context, id int64) (Quiz, error)
	ListQuizzesByCourse(ctx context.Context, courseID int64, publishedOnly bool) ([]Quiz, error)
	UpdateQuiz(ctx context.Context, id int64, patch QuizPatch) (Quiz, error)
	DeleteQuiz(ctx context.Context, id int64) error
	CourseOfQuiz(ctx context.Context, id int64) (int64, error)

	AddQuestion(ctx context.Context, quizID int64, in QuestionInput) (Question, error)

	Submit(ctx context.Context, studentID, quizID int64, sheet AnswerSheet) (Result, error)
	ListSubmissionsByStudent(ctx context.Context, studentID int64) ([]StudentSubmission, error)
	ListSubmissionsByQuiz(ctx context.Context, quizID int64) ([]Submission, error)
	ListAnswers(ctx context.Context, submissionID int64) ([]Answer, error)
}
