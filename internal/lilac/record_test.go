package lilac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordCycle(t *testing.T, rebuildFailedMode bool) (*Cycle, *fakeChecker, *fakeVCS) {
	t.Helper()
	cfg := testConfig(t.TempDir())
	if rebuildFailedMode {
		cfg.Values["lilac.rebuild_failed_pkgs"] = "true"
	}
	checker := &fakeChecker{}
	vcs := newFakeVCS("head")
	c := &Cycle{
		cfg:      cfg,
		ctx:      context.Background(),
		store:    &Store{Failed: make(map[string]string)},
		vcs:      vcs,
		checker:  checker,
		detected: &Detected{NeedUpdate: set(), NeedRebuildFailed: set(), NeedRebuildPkgrel: set(), AllBuilding: set()},
		nv:       map[string]NvResult{},
		rebuild:      set(),
		built:        make(map[string]struct{}),
		failedNow:    make(map[string]struct{}),
		notAttempted: make(map[string]struct{}),
	}
	return c, checker, vcs
}

func TestRecordFailedRemembersVersion(t *testing.T) {
	c, _, _ := recordCycle(t, false)
	c.failedNow["x"] = struct{}{}
	c.nv["x"] = NvResult{OldVer: "3", NewVer: "4"}
	c.detected.NeedUpdate = set("x")

	c.recordOutcomes()
	assert.Equal(t, "4", c.store.Failed["x"])
}

func TestRecordBuiltClearsFailed(t *testing.T) {
	c, _, _ := recordCycle(t, false)
	c.store.Failed["x"] = "3"
	c.built["x"] = struct{}{}
	c.detected.NeedUpdate = set("x")

	c.recordOutcomes()
	_, stillFailed := c.store.Failed["x"]
	assert.False(t, stillFailed)

	// the store never holds a package as both built and failed
	for pkg := range c.built {
		assert.NotContains(t, c.store.Failed, pkg)
	}
}

func TestRecordTakeDefaultMode(t *testing.T) {
	// default mode: (built ∪ failed) ∩ (need_update ∪ rebuild)
	c, checker, _ := recordCycle(t, false)
	c.built["a"] = struct{}{}     // updated, built
	c.built["dep"] = struct{}{}   // dragged in transitively, built
	c.failedNow["b"] = struct{}{} // updated, failed
	c.nv["b"] = NvResult{OldVer: "1", NewVer: "2"}
	c.detected.NeedUpdate = set("a", "b")

	c.recordOutcomes()

	require.Len(t, checker.taken, 1)
	assert.Equal(t, []string{"a", "b"}, checker.taken[0])
}

func TestRecordTakeRebuildFailedMode(t *testing.T) {
	// rebuild-failed mode advances only successful builds
	c, checker, _ := recordCycle(t, true)
	c.built["a"] = struct{}{}
	c.failedNow["b"] = struct{}{}
	c.nv["b"] = NvResult{OldVer: "1", NewVer: "2"}
	c.detected.NeedUpdate = set("a", "b")

	c.recordOutcomes()

	require.Len(t, checker.taken, 1)
	assert.Equal(t, []string{"a"}, checker.taken[0])
}

func TestRecordTakeUnconditionalRebuild(t *testing.T) {
	c, checker, _ := recordCycle(t, false)
	c.built["r"] = struct{}{}
	c.rebuild = set("r")

	c.recordOutcomes()

	require.Len(t, checker.taken, 1)
	assert.Equal(t, []string{"r"}, checker.taken[0])
}

func TestRecordNotAttemptedExcluded(t *testing.T) {
	// an infrastructure failure must not stamp a version or advance the
	// record, even when the package was due for an update
	c, checker, _ := recordCycle(t, false)
	c.failedNow["x"] = struct{}{}
	c.notAttempted["x"] = struct{}{}
	c.nv["x"] = NvResult{OldVer: "1", NewVer: "2"}
	c.detected.NeedUpdate = set("x")

	c.recordOutcomes()

	assert.Empty(t, checker.taken)
	assert.Equal(t, "", c.store.Failed["x"])
}

func TestRecordNotAttemptedKeepsPriorFailureVersion(t *testing.T) {
	c, checker, _ := recordCycle(t, false)
	c.store.Failed["x"] = "1"
	c.failedNow["x"] = struct{}{}
	c.notAttempted["x"] = struct{}{}
	c.nv["x"] = NvResult{OldVer: "1", NewVer: "2"}
	c.detected.NeedUpdate = set("x")

	c.recordOutcomes()

	assert.Empty(t, checker.taken)
	// the recorded attempt version stays at the build that actually ran
	assert.Equal(t, "1", c.store.Failed["x"])
}

func TestRecordNoTakeWhenNothingEligible(t *testing.T) {
	c, checker, _ := recordCycle(t, false)
	c.built["pkgrel-only"] = struct{}{} // not in need_update, not in rebuild

	c.recordOutcomes()
	assert.Empty(t, checker.taken)
}

func TestRecordResetsTreeAndPushes(t *testing.T) {
	c, _, vcs := recordCycle(t, false)
	c.cfg.Values["lilac.git_push"] = "true"

	c.recordOutcomes()
	assert.Equal(t, 1, vcs.resets)
	assert.Equal(t, 1, vcs.pushes)
}

func TestRecordNoPushByDefault(t *testing.T) {
	c, _, vcs := recordCycle(t, false)
	c.recordOutcomes()
	assert.Equal(t, 1, vcs.resets)
	assert.Equal(t, 0, vcs.pushes)
}
