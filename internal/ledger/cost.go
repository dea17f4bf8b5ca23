package ledger

// Operation kinds priced by the ledger. Kinds not listed here are priced at
// the page count the caller passes in.
const (
	KindFlashcards = "flashcards"
	KindQuiz       = "quiz"
	KindSlides     = "slides"
	KindSummary    = "summary"
	KindDocument   = "document"
)

// unitsPerPage is how many flashcards or quiz questions one page buys.
const unitsPerPage = 5

// CalculateCost returns the page cost of producing unitCount units of kind.
// It is pure so callers can preview a cost before committing to work.
func CalculateCost(kind string, unitCount int) int {
	if unitCount <= 0 {
		return 0
	}
	switch kind {
	case KindFlashcards, KindQuiz:
		return (unitCount + unitsPerPage - 1) / unitsPerPage
	default:
		return unitCount
	}
}
