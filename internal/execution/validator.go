package execution

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/cramdesk/backend/internal/ledger"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// ErrValidation can be used with errors.Is to detect model output that does
// not match the kind's schema.
var ErrValidation = errors.New("validation failed")

// unitField names the array whose length is the number of units produced.
var unitField = map[string]string{
	ledger.KindFlashcards: "cards",
	ledger.KindQuiz:       "questions",
	ledger.KindSlides:     "slides",
}

type Validator struct {
	outputSchemas map[string]*jsonschema.Schema
}

// NewValidator compiles the embedded output schema of every generation kind.
func NewValidator() (*Validator, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("read embedded schemas: %w", err)
	}
	schemas := make(map[string]*jsonschema.Schema)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		kind := strings.TrimSuffix(e.Name(), ".json")
		data, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", e.Name(), err)
		}
		id := "https://cramdesk.io/schemas/" + kind + ".output"
		schemas[kind], err = jsonschema.CompileString(id, string(data))
		if err != nil {
			return nil, fmt.Errorf("compile output schema %q: %w", kind, err)
		}
	}
	return &Validator{outputSchemas: schemas}, nil
}

// Supports reports whether kind has an output schema.
func (v *Validator) Supports(kind string) bool {
	_, ok := v.outputSchemas[kind]
	return ok
}

// ValidateOutput checks the model output against the kind's schema and
// returns the normalized JSON and the number of units it contains.
// Summaries always count as one unit.
func (v *Validator) ValidateOutput(kind string, output string) (json.RawMessage, int, error) {
	schema, ok := v.outputSchemas[kind]
	if !ok {
		return nil, 0, fmt.Errorf("unknown kind %q", kind)
	}
	raw := stripCodeFence(output)
	var doc interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, 0, fmt.Errorf("%w: invalid JSON: %v", ErrValidation, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	units := 1
	if field, ok := unitField[kind]; ok {
		items, _ := doc.(map[string]interface{})[field].([]interface{})
		units = len(items)
	}
	return json.RawMessage(raw), units, nil
}

// stripCodeFence removes a ```json fence some models wrap around JSON mode output.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
