package execution

import (
	"fmt"
	"unicode/utf8"

	"github.com/cramdesk/backend/internal/ledger"
	"github.com/cramdesk/backend/internal/llm"
)

// maxSourceChars bounds how much document text goes into one prompt.
const maxSourceChars = 120_000

const systemPrompt = `You are a study assistant that turns course material into study aids for university students.
Only use facts from the provided material. Respond with a single JSON object and nothing else.`

var kindInstructions = map[string]string{
	ledger.KindFlashcards: `Write %d flashcards. Return {"cards":[{"front":"question or term","back":"answer or definition"}]}.`,
	ledger.KindQuiz:       `Write %d multiple-choice questions with 4 options each. Return {"questions":[{"question":"...","options":["..."],"answer_index":0,"explanation":"..."}]}.`,
	ledger.KindSlides:     `Write a %d-slide presentation outline. Return {"slides":[{"title":"...","bullets":["..."],"speaker_notes":"..."}]}.`,
	ledger.KindSummary:    `Summarize the material in about %d paragraphs. Return {"title":"...","summary":"...","key_points":["..."]}.`,
}

// BuildPrompt returns the completion request for a generation.
func BuildPrompt(kind, title, text string, units int) (llm.Request, error) {
	instr, ok := kindInstructions[kind]
	if !ok {
		return llm.Request{}, fmt.Errorf("unknown kind %q", kind)
	}
	if kind == ledger.KindSummary {
		units = max(1, min(units, 6))
	}
	body := truncateRunes(text, maxSourceChars)
	return llm.Request{
		System:      systemPrompt,
		Prompt:      fmt.Sprintf(instr, units) + "\n\nTitle: " + title + "\n\nMaterial:\n" + body,
		MaxTokens:   maxTokensFor(kind, units),
		Temperature: 0.3,
	}, nil
}

func maxTokensFor(kind string, units int) int {
	switch kind {
	case ledger.KindFlashcards:
		return 200 + units*80
	case ledger.KindQuiz:
		return 200 + units*200
	case ledger.KindSlides:
		return 200 + units*250
	default:
		return 1500
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
