package quiz

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/prepverse/prepverse-lms/internal/apperr"
)

// SelectedAnswer is one boundary-validated entry of a submission payload.
// A nil ChoiceID means the student skipped the question.
type SelectedAnswer struct {
	QuestionID int64
	ChoiceID   *int64
}

// AnswerSheet is the strongly typed form of the loosely shaped answers
// object. It is built once at the boundary; the grading pass never touches
// raw JSON.
type AnswerSheet []SelectedAnswer

// Get returns the selection for a question, if the sheet mentions it.
func (s AnswerSheet) Get(questionID int64) (*int64, bool) {
	for _, a := range s {
		if a.QuestionID == questionID {
			return a.ChoiceID, true
		}
	}
	return nil, false
}

// ParseAnswerSheet coerces the wire payload into an AnswerSheet. The payload
// must be a JSON object mapping question ids to choice ids; both ids tolerate
// string and numeric representations ({"3": 7} and {"3": "7"} are the same
// sheet). Anything that is not an object, or any entry that cannot be read as
// an integer pair, rejects the whole submission.
func ParseAnswerSheet(raw json.RawMessage) (AnswerSheet, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, apperr.FieldErrors{"answers": "must be an object mapping question ids to choice ids"}
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, apperr.FieldErrors{"answers": "must be an object mapping question ids to choice ids"}
	}

	sheet := make(AnswerSheet, 0, len(m))
	for k, v := range m {
		qid, err := strconv.ParseInt(strings.TrimSpace(k), 10, 64)
		if err != nil {
			return nil, apperr.FieldErrors{"answers": "question ids must be integers, got " + strconv.Quote(k)}
		}
		cid, err := coerceChoiceID(v)
		if err != nil {
			return nil, apperr.FieldErrors{"answers": "choice id for question " + k + " must be an integer or null"}
		}
		sheet = append(sheet, SelectedAnswer{QuestionID: qid, ChoiceID: cid})
	}
	sort.Slice(sheet, func(i, j int) bool { return sheet[i].QuestionID < sheet[j].QuestionID })
	return sheet, nil
}

func coerceChoiceID(v any) (*int64, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case json.Number:
		n, err := strconv.ParseInt(x.String(), 10, 64)
		if err != nil {
			return nil, err
		}
		return &n, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil, nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, err
		}
		return &n, nil
	default:
		return nil, strconv.ErrSyntax
	}
}
