package lilac

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Maintainer identifies one person responsible for a package.
type Maintainer struct {
	Name   string `yaml:"name"`
	Email  string `yaml:"email"`
	Handle string `yaml:"github"`
}

// Recipe is the parsed lilac.yaml of one managed package.
type Recipe struct {
	PkgBase        string
	PkgDir         string
	Maintainers    []Maintainer `yaml:"maintainers"`
	TimeLimitHours int          `yaml:"time_limit_hours"`
	RepoDepends    []string     `yaml:"repo_depends"`
	PreBuild       string       `yaml:"pre_build"`
	PostBuild      string       `yaml:"post_build"`
	Managed        *bool        `yaml:"managed"`
}

const recipeFileName = "lilac.yaml"

// IsManaged reports whether the package takes part in automatic builds.
// Absent means managed.
func (r *Recipe) IsManaged() bool {
	return r.Managed == nil || *r.Managed
}

// TimeLimit returns the configured build time limit in hours, default 1.
func (r *Recipe) TimeLimit() int {
	if r.TimeLimitHours > 0 {
		return r.TimeLimitHours
	}
	return 1
}

// FirstMaintainer returns the primary maintainer.
func (r *Recipe) FirstMaintainer() Maintainer {
	return r.Maintainers[0]
}

func loadRecipe(repoDir, pkgBase string) (*Recipe, error) {
	pkgDir := filepath.Join(repoDir, pkgBase)
	data, err := os.ReadFile(filepath.Join(pkgDir, recipeFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", recipeFileName, err)
	}
	r := &Recipe{PkgBase: pkgBase, PkgDir: pkgDir}
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", recipeFileName, err)
	}
	if len(r.Maintainers) == 0 {
		return nil, fmt.Errorf("%s: no maintainers", pkgBase)
	}
	for _, m := range r.Maintainers {
		if m.Email == "" && m.Handle == "" {
			return nil, fmt.Errorf("%s: maintainer without email or github handle", pkgBase)
		}
	}
	if r.TimeLimitHours < 0 {
		return nil, fmt.Errorf("%s: negative time_limit_hours", pkgBase)
	}
	return r, nil
}

// LoadRecipes walks the repository tree and parses every package directory
// carrying a lilac.yaml. Per-package load errors do not abort the walk;
// they are returned keyed by pkgbase so the caller can fail just those
// packages. A recipe that failed to load yields no maintainer list, so
// these errors go to the repository admin, not to the package maintainers.
func LoadRecipes(repoDir string) (map[string]*Recipe, map[string]error, error) {
	entries, err := os.ReadDir(repoDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read repo dir %s: %w", repoDir, err)
	}

	recipes := make(map[string]*Recipe)
	loadErrors := make(map[string]error)
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name()[0] == '.' {
			continue
		}
		pkgBase := entry.Name()
		if _, err := os.Stat(filepath.Join(repoDir, pkgBase, recipeFileName)); err != nil {
			// not a package directory
			continue
		}
		r, err := loadRecipe(repoDir, pkgBase)
		if err != nil {
			loadErrors[pkgBase] = err
			continue
		}
		if !r.IsManaged() {
			debugf("skipping unmanaged package %s\n", pkgBase)
			continue
		}
		recipes[pkgBase] = r
	}
	return recipes, loadErrors, nil
}

// sortedKeys returns the map keys in lexicographic order. Used wherever a
// deterministic iteration order matters.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
