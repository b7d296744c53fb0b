package gitctx

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotRepo is returned when dir is not inside a git work tree.
var ErrNotRepo = errors.New("not a git repository")

// RepoMeta contains git repository metadata.
type RepoMeta struct {
	Root   string `json:"root"`
	Head   string `json:"head,omitempty"`
	Branch string `json:"branch,omitempty"`
	Dirty  bool   `json:"dirty"`
}

// ShortHead returns the abbreviated commit hash.
func (m RepoMeta) ShortHead() string {
	if len(m.Head) > 12 {
		return m.Head[:12]
	}
	return m.Head
}

// GetRepoMeta collects repository metadata for the work tree containing dir.
func GetRepoMeta(dir string) (RepoMeta, error) {
	root, err := gitOutput(dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return RepoMeta{}, fmt.Errorf("%w: %v", ErrNotRepo, err)
	}
	head, err := gitOutput(dir, "rev-parse", "HEAD")
	if err != nil {
		head = "" // new repo with no commits
	}
	branch, err := gitOutput(dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		branch = ""
	}
	status, err := gitOutput(dir, "status", "--porcelain")
	if err != nil {
		status = ""
	}
	return RepoMeta{
		Root:   strings.TrimSpace(root),
		Head:   strings.TrimSpace(head),
		Branch: strings.TrimSpace(branch),
		Dirty:  strings.TrimSpace(status) != "",
	}, nil
}

// ChangedFiles returns the files under dir that differ from revision since:
// committed changes since the revision, uncommitted edits and untracked files
// not ignored by .gitignore. Paths are slash-separated, relative to dir,
// sorted and unique. Deleted files are left out.
func ChangedFiles(dir, since string) ([]string, error) {
	if since == "" {
		return nil, fmt.Errorf("revision is required")
	}
	if _, err := gitOutput(dir, "rev-parse", "--verify", "--quiet", since+"^{commit}"); err != nil {
		return nil, fmt.Errorf("unknown revision %q: %w", since, err)
	}

	diff, err := gitOutput(dir, "diff", "--name-only", "--relative", "--diff-filter=d", since, "--")
	if err != nil {
		return nil, fmt.Errorf("git diff %s: %w", since, err)
	}
	untracked, err := gitOutput(dir, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}

	seen := make(map[string]bool)
	var files []string
	for _, out := range []string{diff, untracked} {
		for _, line := range strings.Split(out, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || seen[line] {
				continue
			}
			seen[line] = true
			files = append(files, line)
		}
	}
	sort.Strings(files)
	return files, nil
}

// HookPath returns the absolute path of the named hook script for the
// repository containing dir. It honors core.hooksPath and linked worktrees.
func HookPath(dir, name string) (string, error) {
	out, err := gitOutput(dir, "rev-parse", "--git-path", "hooks/"+name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotRepo, err)
	}
	p := strings.TrimSpace(out)
	if !filepath.IsAbs(p) {
		p = filepath.Join(dir, p)
	}
	return p, nil
}

func gitOutput(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), fmt.Errorf("%s: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", err
	}
	return string(out), nil
}
