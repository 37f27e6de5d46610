package lilac

import (
	"fmt"
	"sort"
	"strings"
)

// Plan is the planner's output: the build order plus the effective
// dependency set handed to the builder for each package.
type Plan struct {
	Order   []string
	Depends map[string][]Dep
}

// planBuilds expands the building set over managed dependencies, verifies
// that unmanaged deps actually exist, and produces the dependency-ordered
// build list. Unresolvable unmanaged deps are reported to the package's
// maintainers and recorded, but do not abort planning.
func (c *Cycle) planBuilds(allBuilding map[string]struct{}) (*Plan, error) {
	building := dependencyClosure(allBuilding, c.depmap, c.recipes)

	// every package pulled into the closure must have its deps examined:
	// a dep that is neither managed nor installed can never be satisfied
	nonexistent := make(map[string][]Dep)
	for _, pkg := range sortedKeys(building) {
		for _, d := range c.depmap[pkg] {
			if _, managed := c.recipes[d.PkgName]; managed {
				continue
			}
			if c.depResolvable(d) {
				continue
			}
			nonexistent[pkg] = append(nonexistent[pkg], d)
		}
	}
	for _, pkg := range sortedKeys(nonexistent) {
		deps := nonexistent[pkg]
		names := make([]string, len(deps))
		for i, d := range deps {
			names[i] = d.PkgName
		}
		colWarn.Printf("%s depends on nonexistent packages: %s\n", pkg, strings.Join(names, ", "))
		c.reportToMaintainers(c.recipes[pkg],
			fmt.Sprintf("%s depends on nonexistent packages", pkg),
			fmt.Sprintf("The following dependencies of %s are neither in this repository nor provided by the distribution:\n\n  %s\n",
				pkg, strings.Join(names, "\n  ")))
	}

	// restrict the dep edges to the closure for scheduling, but feed the
	// sort every managed edge it can see so transitively inserted deps
	// order correctly; the output is filtered back down afterwards
	edges := make(map[string][]string)
	depends := make(map[string][]Dep, len(building))
	for pkg := range building {
		deps := c.depmap[pkg]
		depends[pkg] = deps
		for _, d := range deps {
			if _, managed := c.recipes[d.PkgName]; !managed {
				continue
			}
			if _, ok := building[d.PkgName]; !ok {
				continue
			}
			edges[pkg] = append(edges[pkg], d.PkgName)
		}
	}

	order, err := topoSort(building, edges)
	if err != nil {
		return nil, err
	}

	// defend against the sort's vertex universe drifting from the
	// intended building set
	filtered := order[:0]
	for _, pkg := range order {
		if _, ok := building[pkg]; ok {
			filtered = append(filtered, pkg)
		}
	}

	return &Plan{Order: filtered, Depends: depends}, nil
}

// depResolvable reports whether a dependency currently exists, either as
// a managed package in this repository or installed in the system
// package database.
func (c *Cycle) depResolvable(d Dep) bool {
	if _, ok := c.recipes[d.PkgName]; ok {
		return true
	}
	if c.pkgExists != nil {
		return c.pkgExists(d.PkgName)
	}
	return installedInSystem(d.PkgName)
}

// narrowRecipes trims the recipe set to the requested packages plus their
// direct dependencies, for manual-rebuild invocations.
func narrowRecipes(recipes map[string]*Recipe, depmap map[string][]Dep, pkgs []string) map[string]*Recipe {
	keep := make(map[string]*Recipe)
	for _, pkg := range pkgs {
		r, ok := recipes[pkg]
		if !ok {
			continue
		}
		keep[pkg] = r
		for _, d := range depmap[pkg] {
			if dr, ok := recipes[d.PkgName]; ok {
				keep[d.PkgName] = dr
			}
		}
	}
	return keep
}

// sortedSet formats a set for logs.
func sortedSet(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
