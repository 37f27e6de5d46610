package lilac

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classifierCycle(t *testing.T) (*Cycle, *fakeMail) {
	t.Helper()
	mail := &fakeMail{}
	c := &Cycle{
		cfg:       testConfig(t.TempDir()),
		ctx:       context.Background(),
		store:     &Store{Failed: make(map[string]string)},
		mail:      mail,
		nv:        map[string]NvResult{},
		built:     make(map[string]struct{}),
		failedNow: make(map[string]struct{}),
	}
	return c, mail
}

func testRecipe(pkg string) *Recipe {
	return &Recipe{
		PkgBase:     pkg,
		Maintainers: []Maintainer{{Name: "M", Email: "m@example.org"}},
	}
}

func TestClassifySkipBuildNotFailed(t *testing.T) {
	c, _ := classifierCycle(t)
	c.classifyAndRecord("p", testRecipe("p"), NvResult{}, &SkipBuildError{Reason: "later"}, "/log", 1)
	assert.Empty(t, c.failedNow)
	assert.Empty(t, c.built)
}

func TestClassifyTimeoutMarksFailed(t *testing.T) {
	c, mail := classifierCycle(t)
	c.classifyAndRecord("p", testRecipe("p"), NvResult{}, &BuildTimeoutError{Limit: time.Hour}, "/log", 3600)
	assert.Contains(t, c.failedNow, "p")
	require.Len(t, mail.sent, 1)
	assert.Contains(t, mail.sent[0].subject, "timed out")
}

func TestClassifyConflict(t *testing.T) {
	c, mail := classifierCycle(t)
	c.classifyAndRecord("p", testRecipe("p"), NvResult{}, &ConflictWithOfficialError{Groups: []string{"base"}}, "/log", 10)
	assert.Contains(t, c.failedNow, "p")
	require.Len(t, mail.sent, 1)
	assert.Contains(t, mail.sent[0].subject, "conflicts with official")
}

func TestClassifyDowngrade(t *testing.T) {
	c, mail := classifierCycle(t)
	c.classifyAndRecord("p", testRecipe("p"), NvResult{},
		&DowngradingError{PkgName: "p", Built: "1.0-1", InRepo: "1.1-1"}, "/log", 10)
	assert.Contains(t, c.failedNow, "p")
	require.Len(t, mail.sent, 1)
	assert.Contains(t, mail.sent[0].body, "1.0-1")
	assert.Contains(t, mail.sent[0].body, "1.1-1")
}

func TestClassifyMissingDepsNamesBlockers(t *testing.T) {
	c, mail := classifierCycle(t)
	c.store.Failed["libfoo"] = "2"
	c.classifyAndRecord("p", testRecipe("p"), NvResult{},
		&MissingDependenciesError{Deps: []string{"libfoo", "zlib"}}, "/log", 10)
	assert.Contains(t, c.failedNow, "p")
	require.Len(t, mail.sent, 1)
	assert.Contains(t, mail.sent[0].body, "libfoo")
}

func TestScanMissingDeps(t *testing.T) {
	tail := `resolving dependencies...
error: target not found: libfoo
error: target not found: python-bar
==> ERROR: 'pacman' failed to install missing dependencies.
`
	assert.Equal(t, []string{"libfoo", "python-bar"}, scanMissingDeps(tail))
	assert.Empty(t, scanMissingDeps("all good"))
}

func TestBlockedByFailed(t *testing.T) {
	c, _ := classifierCycle(t)
	c.failedNow["now"] = struct{}{}
	c.store.Failed["before"] = "1"
	assert.Equal(t, []string{"now", "before"}, c.blockedByFailed([]string{"now", "before", "fine"}))
}
