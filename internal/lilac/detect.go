package lilac

// NvResult is one package's upstream version pair as reported by the
// version checker.
type NvResult struct {
	OldVer string
	NewVer string
}

// Updated reports whether the checker saw the upstream version move.
func (nv NvResult) Updated() bool {
	return nv.OldVer != nv.NewVer
}

// Detected is the change detector's verdict for one cycle.
type Detected struct {
	NeedUpdate        map[string]struct{} // updated upstream, or failed at an older newver
	NeedRebuildFailed map[string]struct{} // previously failed, recipe edited since
	NeedRebuildPkgrel map[string]struct{} // pkgrel bumped without upstream change
	AllBuilding       map[string]struct{}
}

type detectInput struct {
	recipes       map[string]*Recipe
	nv            map[string]NvResult
	unknown       map[string]struct{} // checker produced no verdict
	rebuild       map[string]struct{} // checker-flagged unconditional rebuilds
	failed        map[string]string   // pkgbase -> last attempted newver
	changed       map[string]struct{} // packages touched in [last_commit..HEAD]
	pkgrelChanged func(pkg string) (bool, error)
}

// detectChanges classifies every managed package per the version-diffing
// rules: upstream updates, retry of failures once upstream moved, recipe
// edits that may fix failures, and pkgrel-only bumps. Packages with an
// unknown upstream version are ineligible for any version-driven trigger.
func detectChanges(in detectInput) (*Detected, error) {
	d := &Detected{
		NeedUpdate:        make(map[string]struct{}),
		NeedRebuildFailed: make(map[string]struct{}),
		NeedRebuildPkgrel: make(map[string]struct{}),
		AllBuilding:       make(map[string]struct{}),
	}

	for pkg, nv := range in.nv {
		if _, ok := in.recipes[pkg]; !ok {
			continue
		}
		if _, ok := in.unknown[pkg]; ok {
			continue
		}
		if nv.Updated() {
			d.NeedUpdate[pkg] = struct{}{}
			continue
		}
		// previously failed, upstream has moved past the failed attempt
		if lastTried, ok := in.failed[pkg]; ok && nv.NewVer != lastTried {
			d.NeedUpdate[pkg] = struct{}{}
		}
	}

	for _, pkg := range sortedKeys(in.changed) {
		if _, ok := in.recipes[pkg]; !ok {
			continue
		}
		if _, wasFailed := in.failed[pkg]; wasFailed {
			d.NeedRebuildFailed[pkg] = struct{}{}
		}
		if _, ok := in.unknown[pkg]; ok {
			colWarn.Printf("%s: pkgrel check skipped, upstream version unknown\n", pkg)
			continue
		}
		if in.pkgrelChanged != nil {
			bumped, err := in.pkgrelChanged(pkg)
			if err != nil {
				return nil, err
			}
			if bumped {
				d.NeedRebuildPkgrel[pkg] = struct{}{}
			}
		}
	}

	for pkg := range d.NeedUpdate {
		d.AllBuilding[pkg] = struct{}{}
	}
	for pkg := range d.NeedRebuildFailed {
		d.AllBuilding[pkg] = struct{}{}
	}
	for pkg := range d.NeedRebuildPkgrel {
		d.AllBuilding[pkg] = struct{}{}
	}
	for pkg := range in.rebuild {
		if _, ok := in.recipes[pkg]; ok {
			d.AllBuilding[pkg] = struct{}{}
		}
	}
	return d, nil
}

// detectManual is the detector bypass for explicit invocations: the given
// packages plus the checker's unconditional rebuilds form the building
// set, with no version- or diff-driven additions.
func detectManual(pkgs []string, recipes map[string]*Recipe, rebuild map[string]struct{}) *Detected {
	d := &Detected{
		NeedUpdate:        make(map[string]struct{}),
		NeedRebuildFailed: make(map[string]struct{}),
		NeedRebuildPkgrel: make(map[string]struct{}),
		AllBuilding:       make(map[string]struct{}),
	}
	for _, pkg := range pkgs {
		if _, ok := recipes[pkg]; ok {
			d.AllBuilding[pkg] = struct{}{}
			// explicit requests count as needing an nv advance on success
			d.NeedUpdate[pkg] = struct{}{}
		}
	}
	for pkg := range rebuild {
		if _, ok := recipes[pkg]; ok {
			d.AllBuilding[pkg] = struct{}{}
		}
	}
	return d
}
