package execution

import (
	"errors"
	"strings"
	"testing"

	"github.com/cramdesk/backend/internal/ledger"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func TestNewValidator_LoadsEveryKind(t *testing.T) {
	v := newTestValidator(t)
	for _, kind := range []string{ledger.KindFlashcards, ledger.KindQuiz, ledger.KindSlides, ledger.KindSummary} {
		if !v.Supports(kind) {
			t.Errorf("missing output schema for %q", kind)
		}
	}
	if v.Supports(ledger.KindDocument) {
		t.Error("document is not a generation kind")
	}
}

func TestValidateOutput_CountsUnits(t *testing.T) {
	v := newTestValidator(t)

	cases := []struct {
		name   string
		kind   string
		output string
		units  int
	}{
		{
			name:   "flashcards",
			kind:   ledger.KindFlashcards,
			output: `{"cards":[{"front":"ATP","back":"energy currency"},{"front":"DNA","back":"genetic code"},{"front":"RNA","back":"messenger"}]}`,
			units:  3,
		},
		{
			name:   "quiz",
			kind:   ledger.KindQuiz,
			output: `{"questions":[{"question":"2+2?","options":["3","4"],"answer_index":1}]}`,
			units:  1,
		},
		{
			name:   "slides in a code fence",
			kind:   ledger.KindSlides,
			output: "```json\n{\"slides\":[{\"title\":\"Intro\",\"bullets\":[\"a\"]},{\"title\":\"End\",\"bullets\":[]}]}\n```",
			units:  2,
		},
		{
			name:   "summary",
			kind:   ledger.KindSummary,
			output: `{"title":"Cells","summary":"Cells are the unit of life.","key_points":["membranes"]}`,
			units:  1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, units, err := v.ValidateOutput(tc.kind, tc.output)
			if err != nil {
				t.Fatalf("ValidateOutput: %v", err)
			}
			if units != tc.units {
				t.Errorf("units: got %d, want %d", units, tc.units)
			}
			if strings.HasPrefix(string(raw), "```") {
				t.Errorf("code fence not stripped: %s", raw)
			}
		})
	}
}

func TestValidateOutput_Rejects(t *testing.T) {
	v := newTestValidator(t)

	cases := []struct {
		name   string
		kind   string
		output string
	}{
		{"not json", ledger.KindFlashcards, `Here are your flashcards!`},
		{"empty cards", ledger.KindFlashcards, `{"cards":[]}`},
		{"card missing back", ledger.KindFlashcards, `{"cards":[{"front":"x"}]}`},
		{"quiz with one option", ledger.KindQuiz, `{"questions":[{"question":"q","options":["a"],"answer_index":0}]}`},
		{"summary without text", ledger.KindSummary, `{"title":"t"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := v.ValidateOutput(tc.kind, tc.output)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	req, err := BuildPrompt(ledger.KindQuiz, "Organic Chemistry", "Alkanes are saturated hydrocarbons.", 10)
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}
	if !strings.Contains(req.Prompt, "10 multiple-choice questions") {
		t.Errorf("unit count missing from prompt: %q", req.Prompt)
	}
	if !strings.Contains(req.Prompt, "Alkanes are saturated hydrocarbons.") || !strings.Contains(req.Prompt, "Organic Chemistry") {
		t.Errorf("material missing from prompt")
	}
	if req.MaxTokens <= 0 {
		t.Errorf("max tokens not set")
	}

	if _, err := BuildPrompt("mindmap", "", "", 1); err == nil {
		t.Error("expected error for unknown kind")
	}

	long := strings.Repeat("é", maxSourceChars+50)
	req, _ = BuildPrompt(ledger.KindSummary, "", long, 3)
	if strings.Count(req.Prompt, "é") != maxSourceChars {
		t.Errorf("material not truncated to %d runes", maxSourceChars)
	}
}
