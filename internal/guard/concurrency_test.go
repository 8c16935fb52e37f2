package guard

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeState(t *testing.T, root, id, step string) {
	t.Helper()
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	body := `{"incubation_id": "` + id + `", "current_step": "` + step + `"}`
	if err := os.WriteFile(filepath.Join(dir, "state.json"), []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestCheckConcurrencyEmptyRootAllows(t *testing.T) {
	adm, err := CheckConcurrency(filepath.Join(t.TempDir(), "missing"), 1, "")
	if err != nil {
		t.Fatal(err)
	}
	if !adm.Allowed {
		t.Error("empty root should admit")
	}
}

func TestCheckConcurrencyNonPositiveCapDeniesWithoutPanic(t *testing.T) {
	for _, limit := range []int{0, -1} {
		adm, err := CheckConcurrency(t.TempDir(), limit, "")
		if err != nil {
			t.Fatal(err)
		}
		if adm.Allowed {
			t.Errorf("cap %d should admit nothing", limit)
		}
		if !strings.Contains(adm.Reason, "max_concurrent") {
			t.Errorf("cap %d reason = %q", limit, adm.Reason)
		}
	}
}

func TestCheckConcurrencyActiveBlocks(t *testing.T) {
	root := t.TempDir()
	writeState(t, root, "first-aaaaaaa-20260825-001", "regress")

	adm, err := CheckConcurrency(root, 1, "")
	if err != nil {
		t.Fatal(err)
	}
	if adm.Allowed {
		t.Fatal("active incubation at max_concurrent 1 must block")
	}
	if len(adm.ActiveIDs) != 1 || adm.ActiveIDs[0] != "first-aaaaaaa-20260825-001" {
		t.Errorf("active ids: %v", adm.ActiveIDs)
	}
}

func TestCheckConcurrencyTerminalStatesAdmit(t *testing.T) {
	root := t.TempDir()
	writeState(t, root, "a-aaaaaaa-20260825-001", "done")
	writeState(t, root, "b-bbbbbbb-20260825-001", "rejected")
	writeState(t, root, "c-ccccccc-20260825-001", "failed_regress")
	writeState(t, root, "d-ddddddd-20260825-001", "timeout_integrate")

	adm, err := CheckConcurrency(root, 1, "")
	if err != nil {
		t.Fatal(err)
	}
	if !adm.Allowed {
		t.Errorf("only terminal states present, should admit: %+v", adm)
	}
}

func TestCheckConcurrencyCorruptStateSkipped(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "broken")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "state.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	adm, err := CheckConcurrency(root, 1, "")
	if err != nil {
		t.Fatal(err)
	}
	if !adm.Allowed {
		t.Error("corrupted state files must not block admission")
	}
}

func TestCheckConcurrencySelfExcluded(t *testing.T) {
	root := t.TempDir()
	writeState(t, root, "mine-aaaaaaa-20260825-001", "regress")

	adm, err := CheckConcurrency(root, 1, "mine-aaaaaaa-20260825-001")
	if err != nil {
		t.Fatal(err)
	}
	if !adm.Allowed {
		t.Error("a resume must not be blocked by its own active state")
	}
}

func TestCheckConcurrencyHigherCap(t *testing.T) {
	root := t.TempDir()
	writeState(t, root, "a-aaaaaaa-20260825-001", "regress")

	adm, err := CheckConcurrency(root, 2, "")
	if err != nil {
		t.Fatal(err)
	}
	if !adm.Allowed {
		t.Error("one active incubation under max_concurrent 2 should admit")
	}
}

func TestAdmitErrorMentionsActiveIncubation(t *testing.T) {
	root := t.TempDir()
	writeState(t, root, "first-aaaaaaa-20260825-001", "regress")

	err := Admit(root, 1, "")
	if !errors.Is(err, ErrActiveIncubation) {
		t.Fatalf("expected ErrActiveIncubation, got %v", err)
	}
	if !strings.Contains(err.Error(), "Active incubation") {
		t.Errorf("error should mention the active incubation: %v", err)
	}
}
