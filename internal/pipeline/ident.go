package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// NewIncubationID derives a unique, sortable identifier for one
// incubation attempt: sanitized branch slug, 7 characters of the base
// sha, the date, and a zero-padded sequence unique within the artifacts
// root.
func NewIncubationID(root, sourceBranch, baseSHA string, now time.Time) (string, error) {
	slug := sanitizeBranch(sourceBranch)
	sha := baseSHA
	if len(sha) > 7 {
		sha = sha[:7]
	}
	prefix := fmt.Sprintf("%s-%s-%s-", slug, sha, now.UTC().Format("20060102"))

	seq, err := nextSequence(root, prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%03d", prefix, seq), nil
}

// ResumableID returns the most recent incubation for the same branch and
// base sha whose state is still active, or "" when every prior attempt
// reached a terminal status. Re-invoking incubate must continue that
// incubation under its original ID: a freshly minted sibling would be
// refused admission by the very state it abandoned.
//
// The date segment is deliberately not part of the match, so a run that
// crashed yesterday resumes today.
func ResumableID(root, sourceBranch, baseSHA string) (string, error) {
	slug := sanitizeBranch(sourceBranch)
	sha := baseSHA
	if len(sha) > 7 {
		sha = sha[:7]
	}
	prefix := slug + "-" + sha + "-"

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("scan artifacts root: %w", err)
	}

	latest := ""
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		st, err := LoadState(filepath.Join(root, e.Name()))
		if err != nil || st == nil {
			continue
		}
		if st.Status().Terminal() {
			continue
		}
		// Date + zero-padded sequence make IDs sortable as strings.
		if e.Name() > latest {
			latest = e.Name()
		}
	}
	return latest, nil
}

// sanitizeBranch lowers the branch name and collapses anything that is
// not alphanumeric into single dashes, so the ID stays a safe directory
// name.
func sanitizeBranch(branch string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(branch) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			prevDash = false
			continue
		}
		if !prevDash {
			b.WriteByte('-')
			prevDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// nextSequence scans the artifacts root for directories with the same
// prefix and returns one past the highest sequence seen.
func nextSequence(root, prefix string) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return 1, nil
		}
		return 0, fmt.Errorf("scan artifacts root: %w", err)
	}
	max := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(strings.TrimPrefix(e.Name(), prefix), "%d", &n); err == nil && n > max {
			max = n
		}
	}
	return max + 1, nil
}
