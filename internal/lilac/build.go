package lilac

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// buildPackages drives the ordered plan through the builder, one package
// at a time. built and failedNow are updated in place; a user interrupt
// exits the loop cleanly and leaves the outcome recording to the caller's
// finally path.
func (c *Cycle) buildPackages(plan *Plan) {
	var bar *progressbar.ProgressBar
	if c.manual && term.IsTerminal(int(os.Stdout.Fd())) {
		bar = progressbar.NewOptions(len(plan.Order),
			progressbar.OptionSetDescription("building"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	for _, pkg := range plan.Order {
		if c.ctx.Err() != nil {
			colWarn.Println("interrupted, stopping the build loop")
			break
		}
		if _, ok := c.failedNow[pkg]; ok {
			debugf("%s already failed this cycle, not attempting\n", pkg)
			continue
		}

		c.buildOne(pkg, plan.Depends[pkg])

		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		bar.Finish()
	}
	cPrintf(styleFor(colInfo), "cycle done: %d built, %d failed\n", len(c.built), len(c.failedNow))
}

// buildOne supervises a single build: scoped working directory, per-build
// log capture, PACKAGER identity, wall-clock timeout with process-group
// reaping, and classification of every outcome.
func (c *Cycle) buildOne(pkg string, depends []Dep) {
	r := c.recipes[pkg]
	nv := c.nv[pkg]

	// a failure before the builder even starts is ours, not the
	// package's: dependents must still skip it, but no version may be
	// stamped or advanced for it
	logPath := filepath.Join(c.logDir, pkg+".log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		colError.Printf("%s: cannot open build log: %v\n", pkg, err)
		c.failedNow[pkg] = struct{}{}
		c.notAttempted[pkg] = struct{}{}
		return
	}
	defer logFile.Close()

	oldWd, err := os.Getwd()
	if err == nil {
		if err = os.Chdir(r.PkgDir); err == nil {
			defer os.Chdir(oldWd)
		}
	}
	if err != nil {
		colError.Printf("%s: cannot enter %s: %v\n", pkg, r.PkgDir, err)
		c.failedNow[pkg] = struct{}{}
		c.notAttempted[pkg] = struct{}{}
		return
	}

	maint := r.FirstMaintainer()
	packager := fmt.Sprintf("%s (on behalf of %s) <%s>", c.cfg.Get("lilac.name"), maint.Name, maint.Email)
	oldPackager := os.Getenv("PACKAGER")
	os.Setenv("PACKAGER", packager)
	defer os.Setenv("PACKAGER", oldPackager)

	limit := time.Duration(r.TimeLimit()) * time.Hour
	ctx, cancel := context.WithTimeout(c.ctx, limit)
	defer cancel()

	colArrow.Print("-> ")
	colSuccess.Printf("building %s (%s -> %s)\n", pkg, nv.OldVer, nv.NewVer)
	c.blog.Append(BuildLogEvent{Event: "build start", PkgBase: pkg, NvOld: nv.OldVer, NvNew: nv.NewVer})

	start := time.Now()
	buildErr := c.builder.Build(ctx, BuildInput{
		Recipe:     r,
		Update:     nv,
		Depends:    depends,
		BindMounts: c.cfg.List("lilac.bindmounts"),
		Logger:     logFile,
	})
	elapsed := int64(time.Since(start).Seconds())

	if ctx.Err() == context.DeadlineExceeded {
		// the child's process group was killed when the context expired;
		// orphaned grandchildren reparented to us via the subreaper and
		// get swept here
		reapDescendants()
		buildErr = &BuildTimeoutError{Limit: limit}
	}

	c.blog.Append(BuildLogEvent{Event: "build end", PkgBase: pkg, NvOld: nv.OldVer, NvNew: nv.NewVer, Elapsed: elapsed})

	if buildErr == nil {
		if err := c.publisher.SignAndCopy(r.PkgDir); err != nil {
			buildErr = fmt.Errorf("publishing failed: %w", err)
		}
	}

	if buildErr == nil {
		c.built[pkg] = struct{}{}
		fields := c.builtVersion(r.PkgDir)
		sum := ""
		if file := latestArtifact(r.PkgDir); file != "" {
			sum, _ = Blake3Sum(file)
		}
		colArrow.Print("-> ")
		colSuccess.Printf("%s built successfully in %ds\n", pkg, elapsed)
		c.blog.Append(BuildLogEvent{
			Event: "successful", PkgBase: pkg,
			NvOld: nv.OldVer, NvNew: nv.NewVer,
			Epoch: fields.Epoch, PkgVer: fields.PkgVer, PkgRel: fields.PkgRel,
			Elapsed: elapsed, B3Sum: sum,
		})
		return
	}

	// a cancelled run is not a package failure
	if c.ctx.Err() == context.Canceled {
		colWarn.Printf("%s: build aborted by interrupt\n", pkg)
		return
	}

	c.classifyAndRecord(pkg, r, nv, buildErr, logPath, elapsed)
}

// classifyAndRecord picks exactly one disposition for a failed build.
func (c *Cycle) classifyAndRecord(pkg string, r *Recipe, nv NvResult, buildErr error, logPath string, elapsed int64) {
	var (
		missingErr   *MissingDependenciesError
		skipErr      *SkipBuildError
		conflictErr  *ConflictWithOfficialError
		downgradeErr *DowngradingError
		timeoutErr   *BuildTimeoutError
	)

	switch {
	case errors.As(buildErr, &skipErr):
		colWarn.Printf("%s: build skipped: %s\n", pkg, skipErr.Reason)
		c.blog.Append(BuildLogEvent{Event: "skipped", PkgBase: pkg, Msg: skipErr.Reason})
		return // not failed, not built, no nv advance

	case errors.As(buildErr, &missingErr):
		blocked := c.blockedByFailed(missingErr.Deps)
		if len(blocked) > 0 {
			c.reportToMaintainers(r,
				fmt.Sprintf("%s depends on packages that failed to build", pkg),
				fmt.Sprintf("After building %s, %s still depends on: %s\n\nThose dependencies did not build successfully, so this package cannot be built either.\n",
					strings.Join(blocked, ", "), pkg, strings.Join(missingErr.Deps, ", ")))
		} else {
			c.reportToMaintainers(r,
				fmt.Sprintf("%s is missing dependencies", pkg),
				fmt.Sprintf("The build of %s could not install its dependencies: %s\n", pkg, strings.Join(missingErr.Deps, ", ")))
		}

	case errors.As(buildErr, &conflictErr):
		c.reportToMaintainers(r,
			fmt.Sprintf("%s conflicts with official repositories", pkg),
			fmt.Sprintf("The built package declares groups %v and replaces %v owned by the official repositories.\n",
				conflictErr.Groups, conflictErr.Replaces))

	case errors.As(buildErr, &downgradeErr):
		c.reportToMaintainers(r,
			fmt.Sprintf("%s would downgrade", pkg),
			fmt.Sprintf("Built version %s of %s is older than repository version %s.\n",
				downgradeErr.Built, downgradeErr.PkgName, downgradeErr.InRepo))

	case errors.As(buildErr, &timeoutErr):
		c.reportToMaintainers(r,
			fmt.Sprintf("%s build timed out", pkg),
			fmt.Sprintf("The build of %s exceeded its limit of %s and was killed.\n\nBuild log: %s\n", pkg, timeoutErr.Limit, logPath))

	default:
		c.reportToMaintainers(r,
			fmt.Sprintf("%s failed to build", pkg),
			fmt.Sprintf("The build of %s failed:\n\n%v\n\nBuild log: %s\n", pkg, buildErr, logPath))
	}

	colError.Printf("%s failed: %v\n", pkg, buildErr)
	c.failedNow[pkg] = struct{}{}
	c.blog.Append(BuildLogEvent{Event: "failed", PkgBase: pkg, NvOld: nv.OldVer, NvNew: nv.NewVer, Elapsed: elapsed, Msg: buildErr.Error()})
}

// blockedByFailed returns the subset of deps known to have failed, either
// earlier this cycle or in a previous one.
func (c *Cycle) blockedByFailed(deps []string) []string {
	var blocked []string
	for _, d := range deps {
		if _, ok := c.failedNow[d]; ok {
			blocked = append(blocked, d)
			continue
		}
		if _, ok := c.store.Failed[d]; ok {
			blocked = append(blocked, d)
		}
	}
	return blocked
}

// builtVersion reads the version fields from the freshest artifact.
func (c *Cycle) builtVersion(pkgDir string) PkgFields {
	file := latestArtifact(pkgDir)
	if file == "" {
		return PkgFields{}
	}
	info, err := ReadPkgInfo(file)
	if err != nil {
		debugf("cannot read built package metadata: %v\n", err)
		return PkgFields{}
	}
	return info.Fields()
}
