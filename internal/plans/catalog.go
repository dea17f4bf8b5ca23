// Package plans is the closed catalog of subscription tiers and the mapping
// from retired tier names onto current ones.
package plans

import "strings"

// ID identifies a current subscription tier.
type ID string

const (
	Starter  ID = "starter"
	Student  ID = "student"
	Graduate ID = "graduate"
)

// Default is the tier used when an account has no plan or an unrecognized one.
const Default = Starter

// Limits are the per-tier quotas.
type Limits struct {
	Plan                ID     `json:"plan"`
	Name                string `json:"name"`
	MonthlyPages        int    `json:"monthly_pages"`
	MaxPagesPerDocument int    `json:"max_pages_per_document"`
}

var catalog = map[ID]Limits{
	Starter:  {Plan: Starter, Name: "Starter", MonthlyPages: 300, MaxPagesPerDocument: 50},
	Student:  {Plan: Student, Name: "Student", MonthlyPages: 1000, MaxPagesPerDocument: 200},
	Graduate: {Plan: Graduate, Name: "Graduate", MonthlyPages: 3000, MaxPagesPerDocument: 600},
}

// order is the display order, cheapest first.
var order = []ID{Starter, Student, Graduate}

// legacyID enumerates retired tier identifiers still found in stored records.
type legacyID int

const (
	legacyFree legacyID = iota
	legacyBasic
	legacyPro
	legacyPremium

	numLegacyPlans
)

// The tables below are positional, in legacyID order. Leaving out any entry
// shortens the array and the length checks that follow fail to compile.
var legacyNames = [...]string{
	"free",
	"basic",
	"pro",
	"premium",
}

var legacyReplacements = [...]ID{
	Starter,
	Starter,
	Student,
	Graduate,
}

var (
	_ = [1]struct{}{}[len(legacyNames)-int(numLegacyPlans)]
	_ = [1]struct{}{}[len(legacyReplacements)-int(numLegacyPlans)]
)

// Resolve maps a stored plan identifier onto a current tier. Empty input
// resolves to Default and counts as recognized; anything neither current nor
// legacy resolves to Default with recognized=false.
func Resolve(raw string) (id ID, recognized bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return Default, true
	}
	if _, ok := catalog[ID(key)]; ok {
		return ID(key), true
	}
	for i := legacyID(0); i < numLegacyPlans; i++ {
		if legacyNames[i] != key {
			continue
		}
		if _, ok := catalog[legacyReplacements[i]]; !ok {
			return Default, false
		}
		return legacyReplacements[i], true
	}
	return Default, false
}

// Lookup returns the limits for a stored plan identifier.
func Lookup(raw string) Limits {
	id, _ := Resolve(raw)
	return catalog[id]
}

// Get returns the limits for a current tier.
func Get(id ID) (Limits, bool) {
	l, ok := catalog[id]
	return l, ok
}

// All lists the current tiers, cheapest first.
func All() []Limits {
	out := make([]Limits, 0, len(order))
	for _, id := range order {
		out = append(out, catalog[id])
	}
	return out
}
