package lilac

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Dep is a reference from one package to another, managed or not.
type Dep struct {
	PkgName string
	PkgDir  string
}

// parseDepSpec understands the two forms a repo_depends entry can take:
// a bare pkgbase, or "dir/pkgname" when the providing recipe directory
// differs from the dependency's package name.
func parseDepSpec(repoDir, spec string) Dep {
	if i := strings.IndexByte(spec, '/'); i >= 0 {
		return Dep{
			PkgName: spec[i+1:],
			PkgDir:  filepath.Join(repoDir, spec[:i]),
		}
	}
	return Dep{
		PkgName: spec,
		PkgDir:  filepath.Join(repoDir, spec),
	}
}

// BuildDepMap evaluates every recipe's repo_depends into Dep values.
// The result is purely structural; it covers all managed packages whether
// or not they will be built this cycle.
func BuildDepMap(repoDir string, recipes map[string]*Recipe) map[string][]Dep {
	depmap := make(map[string][]Dep, len(recipes))
	for _, pkg := range sortedKeys(recipes) {
		r := recipes[pkg]
		seen := make(map[Dep]struct{}, len(r.RepoDepends))
		deps := make([]Dep, 0, len(r.RepoDepends))
		for _, spec := range r.RepoDepends {
			d := parseDepSpec(repoDir, spec)
			if _, dup := seen[d]; dup {
				continue
			}
			seen[d] = struct{}{}
			deps = append(deps, d)
		}
		sort.Slice(deps, func(i, j int) bool { return deps[i].PkgName < deps[j].PkgName })
		depmap[pkg] = deps
	}
	return depmap
}

// dependencyClosure expands the seed set over managed dependencies: the
// result is the smallest superset of seed closed under "p in set and p
// depends on managed d implies d in set". Unmanaged deps never expand
// the set.
func dependencyClosure(seed map[string]struct{}, depmap map[string][]Dep, managed map[string]*Recipe) map[string]struct{} {
	building := make(map[string]struct{}, len(seed))
	queue := make([]string, 0, len(seed))
	for p := range seed {
		building[p] = struct{}{}
		queue = append(queue, p)
	}
	sort.Strings(queue)
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, d := range depmap[p] {
			if _, ok := managed[d.PkgName]; !ok {
				continue
			}
			if _, ok := building[d.PkgName]; ok {
				continue
			}
			building[d.PkgName] = struct{}{}
			queue = append(queue, d.PkgName)
		}
	}
	return building
}

// CycleError reports a dependency cycle in the managed subgraph. Planning
// cannot proceed; this surfaces as a runtime error for the whole cycle.
type CycleError struct {
	Pkgs []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle among packages: %s", strings.Join(e.Pkgs, ", "))
}

// topoSort orders vertices so that for every edge a -> b (a depends on b),
// b comes before a. Ties are broken lexicographically so the order is
// deterministic for a given input. The edge map may mention vertices not
// present in the vertex set; they are added to the universe so that
// transitively discovered packages order correctly, and the caller filters
// the result back down afterwards.
func topoSort(vertices map[string]struct{}, edges map[string][]string) ([]string, error) {
	indegree := make(map[string]int)
	dependents := make(map[string][]string)
	for v := range vertices {
		indegree[v] += 0
	}
	for a, deps := range edges {
		indegree[a] += 0
		for _, b := range deps {
			indegree[b] += 0
			dependents[b] = append(dependents[b], a)
			indegree[a]++
		}
	}

	ready := make([]string, 0, len(indegree))
	for v, n := range indegree {
		if n == 0 {
			ready = append(ready, v)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(indegree))
	for len(ready) > 0 {
		v := ready[0]
		ready = ready[1:]
		order = append(order, v)
		for _, a := range dependents[v] {
			indegree[a]--
			if indegree[a] == 0 {
				// keep the ready list sorted so ties break deterministically
				i := sort.SearchStrings(ready, a)
				ready = append(ready, "")
				copy(ready[i+1:], ready[i:])
				ready[i] = a
			}
		}
	}

	if len(order) != len(indegree) {
		var cyclic []string
		for v, n := range indegree {
			if n > 0 {
				cyclic = append(cyclic, v)
			}
		}
		sort.Strings(cyclic)
		return nil, &CycleError{Pkgs: cyclic}
	}
	return order, nil
}

// installedInSystem reports whether pkg is present in the system package
// database. Shelling out matches how builders will resolve it later.
func installedInSystem(pkg string) bool {
	err := exec.Command("pacman", "-Si", "--", pkg).Run()
	if err == nil {
		return true
	}
	return exec.Command("pacman", "-Qi", "--", pkg).Run() == nil
}
