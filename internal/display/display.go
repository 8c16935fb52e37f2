// Package display provides human-readable names for machine codes.
//
// Rule: code is for machines, words are for humans.
// Use these functions in CLI output and logs; keep raw codes for JSON
// fields, map keys, and equality comparisons.
package display

import "strings"

// --- Pipeline steps ---

var steps = map[string]string{
	"freeze":      "Freeze",
	"integrate":   "Integrate",
	"twin_up":     "Twin Up",
	"data_mirror": "Data Mirror",
	"regress":     "Regress",
	"resilience":  "Resilience",
	"judge":       "Judge",
	"promote":     "Promote",
	"canary":      "Canary",
}

// Step returns the human-readable name for a step code.
// Unknown codes are returned as-is.
func Step(code string) string {
	if name, ok := steps[code]; ok {
		return name
	}
	return code
}

// --- Incubation statuses ---

// Status renders a persisted status string ("regress", "done",
// "failed_regress", "timeout_integrate") for humans.
func Status(code string) string {
	switch {
	case code == "done":
		return "Done"
	case code == "rejected":
		return "Rejected"
	case strings.HasPrefix(code, "failed_"):
		return "Failed at " + Step(strings.TrimPrefix(code, "failed_"))
	case strings.HasPrefix(code, "timeout_"):
		return "Timed out at " + Step(strings.TrimPrefix(code, "timeout_"))
	default:
		return "Running " + Step(code)
	}
}

// --- Risk levels ---

var riskLevels = map[string]string{
	"low":    "Low",
	"medium": "Medium",
	"high":   "High",
}

// Risk returns the human-readable risk tier name.
func Risk(code string) string {
	if name, ok := riskLevels[code]; ok {
		return name
	}
	return code
}

// --- Judge decisions ---

var decisions = map[string]string{
	"promote": "Promote",
	"reject":  "Reject",
}

// Decision returns the human-readable judge decision.
func Decision(code string) string {
	if name, ok := decisions[code]; ok {
		return name
	}
	return code
}

// --- Change types ---

var changeTypes = map[string]string{
	"feature":    "Feature",
	"bugfix":     "Bug Fix",
	"dependency": "Dependency Update",
	"upstream":   "Upstream Sync",
	"refactor":   "Refactor",
}

// ChangeType returns the human-readable change type.
func ChangeType(code string) string {
	if name, ok := changeTypes[code]; ok {
		return name
	}
	return code
}
