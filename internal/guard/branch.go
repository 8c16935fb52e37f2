// Package guard holds the last-line defenses around the protected
// branch: the merge policy check, admission of new incubations against
// the configured concurrency cap, and the opt-in file lock.
package guard

import (
	"fmt"
	"strings"

	"incubator/internal/config"
)

// PushRequest describes one attempted write to a branch.
type PushRequest struct {
	SourceBranch string
	TargetBranch string
	Actor        string
}

// CheckBranchPolicy enforces the protected-branch rules: only the
// intermediate branch may merge into the protected branch, and only the
// promoter actor (case-insensitive) may write it. Writes to any other
// target are unrestricted.
//
// This is a pure policy function. Callers must run it at every write to
// the protected branch, not only inside the pipeline.
func CheckBranchPolicy(req PushRequest, b config.BranchConfig) error {
	if req.TargetBranch != b.Protected {
		return nil
	}
	if req.SourceBranch != b.Intermediate {
		return fmt.Errorf("branch policy: only %s may merge into %s, got %s",
			b.Intermediate, b.Protected, req.SourceBranch)
	}
	if !strings.EqualFold(req.Actor, b.Promoter) {
		return fmt.Errorf("branch policy: only %s may write %s, got actor %s",
			b.Promoter, b.Protected, req.Actor)
	}
	return nil
}
