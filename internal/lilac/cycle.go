package lilac

import (
	"context"
	"fmt"
	"strings"
)

// Cycle is all the state of one orchestrator invocation. Everything here
// is recomputed fresh each run; only the Store survives between runs.
type Cycle struct {
	cfg       *Config
	store     *Store
	ctx       context.Context
	vcs       VCS
	checker   VersionChecker
	builder   Builder
	publisher *Publisher
	mail      MailSender
	blog      *BuildLogger
	logDir    string

	// test seam for the system package database lookup
	pkgExists func(pkg string) bool

	recipes   map[string]*Recipe
	depmap    map[string][]Dep
	nv        map[string]NvResult
	unknown   map[string]struct{}
	rebuild   map[string]struct{}
	detected *Detected
	built    map[string]struct{}
	// failedNow holds everything that must not be attempted again this
	// cycle; the notAttempted subset never saw its builder run, so it is
	// excluded from version stamping and nv advancement
	failedNow    map[string]struct{}
	notAttempted map[string]struct{}
	manual       bool
}

// CycleDeps bundles the external collaborators for NewCycle.
type CycleDeps struct {
	VCS       VCS
	Checker   VersionChecker
	Builder   Builder
	Publisher *Publisher
	Mail      MailSender
	BuildLog  *BuildLogger
	LogDir    string
}

// NewCycle wires up one invocation.
func NewCycle(ctx context.Context, cfg *Config, store *Store, deps CycleDeps) *Cycle {
	return &Cycle{
		cfg:          cfg,
		store:        store,
		ctx:          ctx,
		vcs:          deps.VCS,
		checker:      deps.Checker,
		builder:      deps.Builder,
		publisher:    deps.Publisher,
		mail:         deps.Mail,
		blog:         deps.BuildLog,
		logDir:       deps.LogDir,
		built:        make(map[string]struct{}),
		failedNow:    make(map[string]struct{}),
		notAttempted: make(map[string]struct{}),
	}
}

// Run performs one full cycle. With pkgs empty it runs change detection;
// otherwise it is a manual rebuild of exactly those packages (plus their
// dependencies). Anything escaping the per-package handling is mailed to
// the admin as a runtime-error report and returned; the persistent store
// is the caller's to save either way.
func (c *Cycle) Run(pkgs []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in build cycle: %v", r)
		}
		if err != nil {
			c.reportRuntimeError(err)
		}
	}()

	// 1. refuse to run anywhere but the primary branch
	branch, err := c.vcs.Branch()
	if err != nil {
		return fmt.Errorf("cannot determine current branch: %w", err)
	}
	if primary := c.cfg.Get("lilac.branch"); branch != primary {
		return fmt.Errorf("%w: on %q, want %q", errWrongBranch, branch, primary)
	}

	// 2. force-sync the working tree to what maintainers pushed
	if err := c.vcs.ResetHard(); err != nil {
		return fmt.Errorf("git reset failed: %w", err)
	}
	if err := c.vcs.PullOverride(); err != nil {
		return fmt.Errorf("git pull failed: %w", err)
	}

	head, err := c.vcs.Head()
	if err != nil {
		return fmt.Errorf("cannot resolve HEAD: %w", err)
	}

	// 3. load recipes; per-package load errors fail just those packages
	repoDir := c.cfg.RepoDir()
	recipes, loadErrors, err := LoadRecipes(repoDir)
	if err != nil {
		return err
	}
	c.recipes = recipes
	for _, pkg := range sortedKeys(loadErrors) {
		loadErr := loadErrors[pkg]
		colError.Printf("failed to load recipe for %s: %v\n", pkg, loadErr)
		c.failedNow[pkg] = struct{}{}
		c.notAttempted[pkg] = struct{}{}
		// no parsed recipe to find maintainers in; the admin hears of it
		c.reportRuntimeError(fmt.Errorf("recipe for %s failed to load: %w", pkg, loadErr))
	}

	// 4. structural dependency map over everything managed
	c.depmap = BuildDepMap(repoDir, c.recipes)

	// 5. manual invocations narrow the world to the requested packages
	// plus their direct deps
	c.manual = len(pkgs) > 0
	if c.manual {
		for _, pkg := range pkgs {
			if _, ok := c.recipes[pkg]; !ok {
				return fmt.Errorf("%w: %s", errPackageNotFound, pkg)
			}
		}
		c.recipes = narrowRecipes(c.recipes, c.depmap, pkgs)
	}

	// 6. upstream version detection
	check, err := c.checker.Check(c.ctx, c.recipes)
	if err != nil {
		return err
	}
	c.nv = check.NV
	c.unknown = check.Unknown
	c.rebuild = check.Rebuild

	// 7. decide what to build
	if c.manual {
		c.detected = detectManual(pkgs, c.recipes, c.rebuild)
	} else {
		diff, err := c.vcs.DiffNames(c.store.LastCommit, head)
		if err != nil {
			return fmt.Errorf("git diff failed: %w", err)
		}
		changed := changedPackages(diff, c.recipes)
		if c.store.LastCommit == emptyTreeSHA {
			// first run: everything counts as changed
			changed = make(map[string]struct{}, len(c.recipes))
			for pkg := range c.recipes {
				changed[pkg] = struct{}{}
			}
		}
		c.detected, err = detectChanges(detectInput{
			recipes:       c.recipes,
			nv:            c.nv,
			unknown:       c.unknown,
			rebuild:       c.rebuild,
			failed:        c.store.Failed,
			changed:       changed,
			pkgrelChanged: c.pkgrelChangedBetween(c.store.LastCommit, head),
		})
		if err != nil {
			return err
		}
	}

	if len(c.detected.AllBuilding) == 0 && len(c.failedNow) == 0 {
		colInfo.Println("nothing to build")
		c.store.LastCommit = head
		return nil
	}
	colInfo.Printf("building: %s\n", strings.Join(sortedSet(c.detected.AllBuilding), " "))

	// 8. expand, verify and order the building set
	plan, err := c.planBuilds(c.detected.AllBuilding)
	if err != nil {
		return err
	}
	if c.manual {
		// everything built on explicit request advances its version
		// record, dependencies included
		for _, pkg := range plan.Order {
			c.detected.NeedUpdate[pkg] = struct{}{}
		}
	}

	// 9 & 10. the build loop, with outcome recording on every exit path
	defer c.recordOutcomes()
	c.buildPackages(plan)

	// reached only without an unhandled failure above; an exception
	// anywhere earlier leaves last_commit alone so the next run re-reads
	// the same diff
	c.store.LastCommit = head
	return nil
}

// pkgrelChangedBetween returns the detector predicate comparing a
// package's PKGBUILD pkgrel at two revisions.
func (c *Cycle) pkgrelChangedBetween(from, to string) func(pkg string) (bool, error) {
	return func(pkg string) (bool, error) {
		path := pkg + "/PKGBUILD"
		oldText, err := c.vcs.ShowFile(from, path)
		if err != nil {
			// no PKGBUILD at the old revision: new package, nothing to compare
			debugf("%s: no PKGBUILD at %s\n", pkg, from)
			return false, nil
		}
		newText, err := c.vcs.ShowFile(to, path)
		if err != nil {
			return false, nil
		}
		oldRel := parsePkgFields(oldText).PkgRel
		newRel := parsePkgFields(newText).PkgRel
		return oldRel != newRel, nil
	}
}
