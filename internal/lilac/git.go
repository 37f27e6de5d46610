package lilac

import (
	"fmt"
	"os/exec"
	"strings"
)

// emptyTreeSHA is git's well-known empty tree object, used as the diff
// base on a first run when no commit has been processed yet.
const emptyTreeSHA = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// VCS is the version-control surface the cycle needs. The git
// implementation shells out; tests substitute a fake.
type VCS interface {
	Branch() (string, error)
	Head() (string, error)
	ResetHard() error
	PullOverride() error
	Push() error
	DiffNames(from, to string) ([]string, error)
	ShowFile(rev, path string) (string, error)
}

// GitDriver runs git against the recipe repository working tree.
type GitDriver struct {
	RepoDir string
	Exec    *Executor
}

func (g *GitDriver) git(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = g.RepoDir
	out, err := g.Exec.RunOutput(cmd)
	return strings.TrimSpace(out), err
}

func (g *GitDriver) Branch() (string, error) {
	return g.git("branch", "--show-current")
}

func (g *GitDriver) Head() (string, error) {
	return g.git("rev-parse", "HEAD")
}

func (g *GitDriver) ResetHard() error {
	_, err := g.git("reset", "--hard")
	return err
}

// PullOverride force-syncs the working tree to the remote: local history
// never wins over what maintainers pushed.
func (g *GitDriver) PullOverride() error {
	if _, err := g.git("fetch"); err != nil {
		return fmt.Errorf("git fetch failed: %w", err)
	}
	branch, err := g.Branch()
	if err != nil {
		return err
	}
	if _, err := g.git("reset", "--hard", "origin/"+branch); err != nil {
		return fmt.Errorf("git reset to origin/%s failed: %w", branch, err)
	}
	return nil
}

func (g *GitDriver) Push() error {
	// a maintainer may have pushed while we were building
	for range 3 {
		if _, err := g.git("push"); err == nil {
			return nil
		}
		if _, err := g.git("pull", "--rebase"); err != nil {
			return fmt.Errorf("git pull --rebase failed: %w", err)
		}
	}
	_, err := g.git("push")
	return err
}

// DiffNames lists the files changed between two revisions.
func (g *GitDriver) DiffNames(from, to string) ([]string, error) {
	out, err := g.git("diff", "--name-only", from, to)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// ShowFile returns the content of path at the given revision.
func (g *GitDriver) ShowFile(rev, path string) (string, error) {
	return g.git("show", rev+":"+path)
}

// changedPackages maps a diff file list onto the managed packages whose
// directories the changes touch.
func changedPackages(files []string, recipes map[string]*Recipe) map[string]struct{} {
	changed := make(map[string]struct{})
	for _, file := range files {
		i := strings.IndexByte(file, '/')
		if i <= 0 {
			continue
		}
		pkg := file[:i]
		if _, ok := recipes[pkg]; ok {
			changed[pkg] = struct{}{}
		}
	}
	return changed
}
