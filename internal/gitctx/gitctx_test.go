package gitctx

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// setupTestRepo creates a temp git repo with some tracked files and returns
// the path.
func setupTestRepo(t *testing.T) (string, func(args ...string)) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()

	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test",
			"GIT_AUTHOR_EMAIL=test@test.com",
			"GIT_COMMITTER_NAME=test",
			"GIT_COMMITTER_EMAIL=test@test.com",
		)
		out, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("command %v failed: %v\n%s", args, err, out)
		}
	}

	run("git", "init")
	run("git", "checkout", "-b", "main")

	write(t, dir, "main.go", "package main\n\nfunc main() {}\n")
	write(t, dir, "util.go", "package main\n\nfunc helper() {}\n")
	write(t, dir, "pkg/lib/lib.go", "package lib\n")
	write(t, dir, ".gitignore", "*.log\n")

	run("git", "add", "-A")
	run("git", "commit", "-m", "init")

	return dir, run
}

func write(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestGetRepoMeta(t *testing.T) {
	dir, _ := setupTestRepo(t)

	meta, err := GetRepoMeta(dir)
	if err != nil {
		t.Fatalf("GetRepoMeta: %v", err)
	}
	if meta.Branch != "main" {
		t.Errorf("Branch = %q, want main", meta.Branch)
	}
	if len(meta.Head) != 40 {
		t.Errorf("Head = %q, want a full sha", meta.Head)
	}
	if len(meta.ShortHead()) != 12 {
		t.Errorf("ShortHead = %q", meta.ShortHead())
	}
	if meta.Dirty {
		t.Error("fresh commit should not be dirty")
	}

	write(t, dir, "main.go", "package main\n// edited\n")
	meta, err = GetRepoMeta(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !meta.Dirty {
		t.Error("edited tree should be dirty")
	}
}

func TestGetRepoMeta_NotRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	_, err := GetRepoMeta(t.TempDir())
	if !errors.Is(err, ErrNotRepo) {
		t.Errorf("err = %v, want ErrNotRepo", err)
	}
}

func TestChangedFiles(t *testing.T) {
	dir, run := setupTestRepo(t)

	write(t, dir, "util.go", "package main\n\nfunc helper() { panic(1) }\n")
	run("git", "commit", "-am", "edit util")
	write(t, dir, "pkg/lib/lib.go", "package lib\n// uncommitted\n")
	write(t, dir, "new.go", "package main\n")
	write(t, dir, "debug.log", "ignored\n")
	run("git", "rm", "-q", "main.go")

	files, err := ChangedFiles(dir, "HEAD~1")
	if err != nil {
		t.Fatalf("ChangedFiles: %v", err)
	}
	want := []string{"new.go", "pkg/lib/lib.go", "util.go"}
	if len(files) != len(want) {
		t.Fatalf("files = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, files[i], want[i])
		}
	}
}

func TestChangedFiles_RelativeToSubdir(t *testing.T) {
	dir, _ := setupTestRepo(t)
	write(t, dir, "pkg/lib/lib.go", "package lib\n// changed\n")
	write(t, dir, "util.go", "package main\n// changed\n")

	files, err := ChangedFiles(filepath.Join(dir, "pkg"), "HEAD")
	if err != nil {
		t.Fatalf("ChangedFiles: %v", err)
	}
	if len(files) != 1 || files[0] != "lib/lib.go" {
		t.Errorf("files = %v, want [lib/lib.go]", files)
	}
}

func TestChangedFiles_BadRevision(t *testing.T) {
	dir, _ := setupTestRepo(t)
	if _, err := ChangedFiles(dir, "no-such-branch"); err == nil {
		t.Error("expected error for unknown revision")
	}
	if _, err := ChangedFiles(dir, ""); err == nil {
		t.Error("expected error for empty revision")
	}
}

func TestHookPath(t *testing.T) {
	dir, _ := setupTestRepo(t)
	got, err := HookPath(dir, "post-commit")
	if err != nil {
		t.Fatalf("HookPath: %v", err)
	}
	want := filepath.Join(dir, ".git", "hooks", "post-commit")
	if filepath.Clean(got) != want {
		t.Errorf("HookPath = %q, want %q", got, want)
	}
}

func TestHookPath_NotRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	_, err := HookPath(t.TempDir(), "post-commit")
	if !errors.Is(err, ErrNotRepo) {
		t.Errorf("err = %v, want ErrNotRepo", err)
	}
}
