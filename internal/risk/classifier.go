// Package risk assigns a risk tier to a change set. The tier drives how
// much evidence the judge demands before promotion.
package risk

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"incubator/internal/config"
)

// Level is a risk tier. Ordering: low < medium < high.
type Level string

const (
	Low    Level = "low"
	Medium Level = "medium"
	High   Level = "high"
)

var rank = map[Level]int{Low: 1, Medium: 2, High: 3}

// Less reports whether l is strictly below other.
func (l Level) Less(other Level) bool { return rank[l] < rank[other] }

// Valid reports whether l is a known tier.
func (l Level) Valid() bool { return rank[l] != 0 }

// Classification is the classifier's verdict. It is embedded into the
// integration record and the judge report, never persisted on its own.
type Classification struct {
	Level         Level  `json:"level"`
	Reason        string `json:"reason"`
	AutoEscalated bool   `json:"auto_escalated"`
}

// Change describes the change set under classification.
type Change struct {
	FilesChanged []string
	ChangeType   string
	LinesAdded   int
	LinesRemoved int
}

// largeChangeLines is the added+removed line count above which a change
// can no longer be considered low risk.
const largeChangeLines = 500

// Classify maps a change set to a risk tier.
//
// Evaluation order is load-bearing: auto-escalation globs run first and
// short-circuit, so a security-sensitive path can never be down-classified
// by a lower-severity rule matching a different file in the same change.
// Path rules then only ever raise the level as files are scanned, followed
// by the large-change and dependency heuristics.
func Classify(change Change, policy config.RiskPolicy) Classification {
	// 1. Auto-escalation short-circuit.
	for _, pattern := range policy.AutoEscalation {
		var hits []string
		for _, f := range change.FilesChanged {
			if matchGlob(pattern, f) {
				hits = append(hits, f)
			}
		}
		if len(hits) > 0 {
			return Classification{
				Level:         High,
				Reason:        fmt.Sprintf("auto-escalation: %s matched %s", pattern, strings.Join(hits, ", ")),
				AutoEscalated: true,
			}
		}
	}

	// 2. Path rules, highest severity first; the level only ever increases.
	rules := make([]config.PathRule, len(policy.PathRules))
	copy(rules, policy.PathRules)
	sort.SliceStable(rules, func(i, j int) bool {
		return rank[Level(rules[i].Level)] > rank[Level(rules[j].Level)]
	})

	level := Low
	reason := "no rule matched"
	for _, f := range change.FilesChanged {
		for _, r := range rules {
			if !matchGlob(r.Pattern, f) {
				continue
			}
			if ruleLevel := Level(r.Level); level.Less(ruleLevel) {
				level = ruleLevel
				reason = fmt.Sprintf("path rule %s matched %s", r.Pattern, f)
			}
			break // first matching rule decides this file
		}
	}

	// 3. Large-change heuristic.
	if change.LinesAdded+change.LinesRemoved > largeChangeLines && level.Less(Medium) {
		level = Medium
		reason = fmt.Sprintf("large change: %d lines touched", change.LinesAdded+change.LinesRemoved)
	}

	// 4. Dependency changes carry at least medium risk.
	if change.ChangeType == "dependency" && level.Less(Medium) {
		level = Medium
		reason = "dependency change"
	}

	return Classification{Level: level, Reason: reason}
}

// matchGlob matches slash-separated paths against glob patterns where "**"
// spans any number of segments and single segments use path.Match syntax.
func matchGlob(pattern, name string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func matchSegments(pat, segs []string) bool {
	if len(pat) == 0 {
		return len(segs) == 0
	}
	if pat[0] == "**" {
		// "**" may swallow zero or more leading segments.
		for i := 0; i <= len(segs); i++ {
			if matchSegments(pat[1:], segs[i:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	ok, err := path.Match(pat[0], segs[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pat[1:], segs[1:])
}
