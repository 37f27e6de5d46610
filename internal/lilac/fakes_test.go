package lilac

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// testConfig builds a Config rooted at dir without touching disk.
func testConfig(dir string) *Config {
	cfg := &Config{
		Values: map[string]string{
			"repository.repodir": dir,
			"lilac.email":        "admin@example.org",
		},
		Env:  map[string]string{},
		Path: filepath.Join(dir, "lilac.ini"),
	}
	applyConfigDefaults(cfg)
	return cfg
}

type sentMail struct {
	to      []string
	subject string
	body    string
}

type fakeMail struct {
	sent []sentMail
}

func (m *fakeMail) Send(to []string, subject, body string) error {
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

type fakeVCS struct {
	branch string
	head   string
	diff   []string
	files  map[string]string // "rev:path" -> content

	resets int
	pulls  int
	pushes int
}

func newFakeVCS(head string) *fakeVCS {
	return &fakeVCS{branch: "master", head: head, files: make(map[string]string)}
}

func (v *fakeVCS) Branch() (string, error) { return v.branch, nil }
func (v *fakeVCS) Head() (string, error)   { return v.head, nil }
func (v *fakeVCS) ResetHard() error        { v.resets++; return nil }
func (v *fakeVCS) PullOverride() error     { v.pulls++; return nil }
func (v *fakeVCS) Push() error             { v.pushes++; return nil }

func (v *fakeVCS) DiffNames(from, to string) ([]string, error) {
	return v.diff, nil
}

func (v *fakeVCS) ShowFile(rev, path string) (string, error) {
	content, ok := v.files[rev+":"+path]
	if !ok {
		return "", fmt.Errorf("no %s at %s", path, rev)
	}
	return content, nil
}

type fakeChecker struct {
	res   *CheckResult
	err   error
	taken [][]string
}

func (f *fakeChecker) Check(ctx context.Context, recipes map[string]*Recipe) (*CheckResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func (f *fakeChecker) Take(ctx context.Context, pkgs []string) error {
	f.taken = append(f.taken, pkgs)
	return nil
}

type fakeBuilder struct {
	results   map[string]error // pkgbase -> outcome, nil means success
	attempted []string
}

func (b *fakeBuilder) Build(ctx context.Context, in BuildInput) error {
	b.attempted = append(b.attempted, in.Recipe.PkgBase)
	return b.results[in.Recipe.PkgBase]
}

// writeTestRecipe drops a minimal package directory with lilac.yaml and
// PKGBUILD under repoDir.
func writeTestRecipe(t *testing.T, repoDir, pkg string, repoDepends []string) {
	t.Helper()
	dir := filepath.Join(repoDir, pkg)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	yaml := "maintainers:\n  - name: Test Person\n    email: test@example.org\n    github: tester\n"
	if len(repoDepends) > 0 {
		yaml += "repo_depends:\n"
		for _, d := range repoDepends {
			yaml += "  - " + d + "\n"
		}
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lilac.yaml"), []byte(yaml), 0o644))
	pkgbuild := fmt.Sprintf("pkgname=%s\npkgver=1.0\npkgrel=1\n", pkg)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "PKGBUILD"), []byte(pkgbuild), 0o644))
}

// testEnv wires a full Cycle over fakes and a real temp recipe tree.
type testEnv struct {
	dir     string
	cfg     *Config
	store   *Store
	vcs     *fakeVCS
	checker *fakeChecker
	builder *fakeBuilder
	mail    *fakeMail
	cycle   *Cycle
}

func newTestEnv(t *testing.T, head string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := testConfig(dir)

	store := &Store{
		LastCommit: emptyTreeSHA,
		Failed:     make(map[string]string),
		path:       filepath.Join(dir, ".lilac-store.json"),
	}

	env := &testEnv{
		dir:     dir,
		cfg:     cfg,
		store:   store,
		vcs:     newFakeVCS(head),
		checker: &fakeChecker{res: &CheckResult{NV: map[string]NvResult{}, Unknown: set(), Rebuild: set()}},
		builder: &fakeBuilder{results: map[string]error{}},
		mail:    &fakeMail{},
	}

	logDir := filepath.Join(dir, "log", "test")
	require.NoError(t, os.MkdirAll(logDir, 0o755))

	env.cycle = NewCycle(context.Background(), cfg, store, CycleDeps{
		VCS:       env.vcs,
		Checker:   env.checker,
		Builder:   env.builder,
		Publisher: &Publisher{},
		Mail:      env.mail,
		LogDir:    logDir,
	})
	env.cycle.pkgExists = func(string) bool { return false }
	return env
}
