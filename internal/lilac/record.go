package lilac

import (
	"sort"
)

// recordOutcomes is C5, the guaranteed finally-path around the build
// loop: fold this cycle's results into the failed store, advance the
// version checker for correctly-handled packages, and restore the
// working tree.
func (c *Cycle) recordOutcomes() {
	// failed attempts remember the version they were tried at, so a later
	// upstream bump triggers a retry; packages the builder never saw
	// were not tried at any version
	for pkg := range c.failedNow {
		if _, infra := c.notAttempted[pkg]; infra {
			if _, ok := c.store.Failed[pkg]; !ok {
				c.store.Failed[pkg] = ""
			}
			continue
		}
		if nv, ok := c.nv[pkg]; ok {
			c.store.Failed[pkg] = nv.NewVer
		} else if _, ok := c.store.Failed[pkg]; !ok {
			c.store.Failed[pkg] = ""
		}
	}
	for pkg := range c.built {
		delete(c.store.Failed, pkg)
	}

	c.takeVersions()

	// builders may leave edits behind (pkgrel bumps, checksum updates)
	if err := c.vcs.ResetHard(); err != nil {
		colError.Printf("git reset failed: %v\n", err)
	}
	if c.cfg.Bool("lilac.git_push") {
		if err := c.vcs.Push(); err != nil {
			colError.Printf("git push failed: %v\n", err)
		}
	}
}

// takeVersions advances the recorded upstream versions. With
// rebuild_failed_pkgs on, only successful builds advance, so failures
// keep being retried every cycle. In the default mode both built and
// failed packages advance, but only those the cycle actually meant to
// update: never-attempted packages and transitively dragged-in deps keep
// their old records.
func (c *Cycle) takeVersions() {
	attempted := make(map[string]struct{}, len(c.built)+len(c.failedNow))
	for pkg := range c.built {
		attempted[pkg] = struct{}{}
	}
	if !c.cfg.Bool("lilac.rebuild_failed_pkgs") {
		for pkg := range c.failedNow {
			if _, infra := c.notAttempted[pkg]; infra {
				continue
			}
			attempted[pkg] = struct{}{}
		}
	}

	var take []string
	for pkg := range attempted {
		if c.cfg.Bool("lilac.rebuild_failed_pkgs") {
			take = append(take, pkg)
			continue
		}
		if _, ok := c.detected.NeedUpdate[pkg]; ok {
			take = append(take, pkg)
			continue
		}
		if _, ok := c.rebuild[pkg]; ok {
			take = append(take, pkg)
		}
	}
	sort.Strings(take)

	if len(take) == 0 {
		return
	}
	if err := c.checker.Take(c.ctx, take); err != nil {
		colError.Printf("failed to advance upstream versions: %v\n", err)
	}
}
