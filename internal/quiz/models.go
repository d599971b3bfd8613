package quiz

type Choice struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
	// IsCorrect is the answer key. Student-facing reads carry nil here; only
	// teacher/admin views and the post-submission breakdown reveal it.
	IsCorrect *bool `json:"is_correct,omitempty"`
}

type Question struct {
	ID       int64    `json:"id"`
	QuizID   int64    `json:"-"`
	Prompt   string   `json:"prompt"`
	Position int      `json:"order"`
	Choices  []Choice `json:"choices"`
}

type Quiz struct {
	ID          int64  `json:"id"`
	CourseID    int64  `json:"course_id"`
	CreatedBy   *int64 `json:"created_by,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description"`
	IsPublished bool   `json:"is_published"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`

	Questions []Question `json:"questions,omitempty"`
}

// StripAnswerKeys removes the correct flags in place.
func (q *Quiz) StripAnswerKeys() {
	for i := range q.Questions {
		for j := range q.Questions[i].Choices {
			q.Questions[i].Choices[j].IsCorrect = nil
		}
	}
}

// Submission is one complete, immutable, scored attempt. There is no
// uniqueness over (student, quiz): every attempt is independent.
type Submission struct {
	ID        int64 `json:"id"`
	QuizID    int64 `json:"quiz_id"`
	StudentID int64 `json:"student_id"`
	Score     int   `json:"score"`
	Total     int   `json:"total"`
	CreatedAt int64 `json:"created_at"`
}

type Answer struct {
	ID               int64  `json:"id"`
	SubmissionID     int64  `json:"submission_id"`
	QuestionID       int64  `json:"question_id"`
	SelectedChoiceID *int64 `json:"selected_choice_id"`
	IsCorrect        bool   `json:"is_correct"`
}

// QuestionResult is one row of the post-submission review breakdown. It
// carries the correct choice; nothing pre-submission returns it.
type QuestionResult struct {
	QuestionID       int64  `json:"question_id"`
	SelectedChoiceID *int64 `json:"selected_choice_id"`
	CorrectChoiceID  *int64 `json:"correct_choice_id"`
	IsCorrect        bool   `json:"is_correct"`
}

type Result struct {
	Submission Submission       `json:"submission"`
	Quiz       Quiz             `json:"quiz"` // answer keys stripped
	Score      int              `json:"score"`
	Total      int              `json:"total"`
	Percent    float64          `json:"percent"`
	Results    []QuestionResult `json:"results"`
}
