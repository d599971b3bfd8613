package quiz

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/prepverse/prepverse-lms/internal/apperr"
)

func TestParseAnswerSheet(t *testing.T) {
	sheet, err := ParseAnswerSheet(json.RawMessage(`{"3": 7, "1": "9", "2": null}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(sheet) != 3 {
		t.Fatalf("len = %d, want 3", len(sheet))
	}
	// Sorted by question id.
	if sheet[0].QuestionID != 1 || sheet[1].QuestionID != 2 || sheet[2].QuestionID != 3 {
		t.Fatalf("unexpected order: %+v", sheet)
	}
	if sheet[0].ChoiceID == nil || *sheet[0].ChoiceID != 9 {
		t.Fatalf("string choice id not coerced: %+v", sheet[0])
	}
	if sheet[1].ChoiceID != nil {
		t.Fatalf("null selection should stay nil: %+v", sheet[1])
	}
	if sheet[2].ChoiceID == nil || *sheet[2].ChoiceID != 7 {
		t.Fatalf("numeric choice id lost: %+v", sheet[2])
	}
}

func TestParseAnswerSheetEmptyStringIsSkip(t *testing.T) {
	sheet, err := ParseAnswerSheet(json.RawMessage(`{"1": ""}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sheet[0].ChoiceID != nil {
		t.Fatal("empty string should mean skipped")
	}
}

func TestParseAnswerSheetRejects(t *testing.T) {
	cases := []string{
		`[1,2,3]`,
		`"answers"`,
		``,
		`{"abc": 1}`,
		`{"1": 2.5}`,
		`{"1": {"nested": true}}`,
		`{"1": true}`,
	}
	for _, raw := range cases {
		_, err := ParseAnswerSheet(json.RawMessage(raw))
		var fe apperr.FieldErrors
		if !errors.As(err, &fe) {
			t.Errorf("payload %q: got %v, want field errors", raw, err)
		}
	}
}

func TestAnswerSheetGet(t *testing.T) {
	seven := int64(7)
	sheet := AnswerSheet{{QuestionID: 4, ChoiceID: &seven}}
	if got, ok := sheet.Get(4); !ok || got == nil || *got != 7 {
		t.Fatalf("Get(4) = %v, %v", got, ok)
	}
	if _, ok := sheet.Get(5); ok {
		t.Fatal("Get(5) should miss")
	}
}
