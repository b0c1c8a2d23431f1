package orchestrator

import (
	"fmt"
	"os/exec"
	"strings"
)

// CommitHash returns the short commit hash of the checkout at dir. It is a
// read-only query used purely as a version marker in run logs; an empty
// string means the hash could not be read (not a git checkout, git missing).
func CommitHash(dir string) string {
	cmd := exec.Command("git", "rev-parse", "--short", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// HardSync fetches the remote and hard-resets the checkout at dir to the tip
// of remote/branch. This DISCARDS local changes. It is an explicit, opt-in
// pre-run synchronization mode and is deliberately kept out of RunBatch so
// that ordinary runs can never reset a checkout as a side effect.
func HardSync(dir, remote, branch string) error {
	fetch := exec.Command("git", "fetch", remote)
	fetch.Dir = dir
	if out, err := fetch.CombinedOutput(); err != nil {
		return fmt.Errorf("git fetch %s failed: %v: %s", remote, err, strings.TrimSpace(string(out)))
	}

	reset := exec.Command("git", "reset", "--hard", fmt.Sprintf("%s/%s", remote, branch))
	reset.Dir = dir
	if out, err := reset.CombinedOutput(); err != nil {
		return fmt.Errorf("git reset to %s/%s failed: %v: %s", remote, branch, err, strings.TrimSpace(string(out)))
	}
	return nil
}
