package lilac

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// The builder backend signals structured outcomes through typed errors so
// the supervisor can switch on them.

// MissingDependenciesError: the build failed because dependencies could
// not be installed.
type MissingDependenciesError struct {
	Deps []string
}

func (e *MissingDependenciesError) Error() string {
	return fmt.Sprintf("missing dependencies: %s", strings.Join(e.Deps, ", "))
}

// SkipBuildError: the recipe decided this build should not happen now.
// Not a failure.
type SkipBuildError struct {
	Reason string
}

func (e *SkipBuildError) Error() string {
	return fmt.Sprintf("build skipped: %s", e.Reason)
}

// ConflictWithOfficialError: the built package declares groups or replaces
// that belong to the official distribution repositories.
type ConflictWithOfficialError struct {
	Groups   []string
	Replaces []string
}

func (e *ConflictWithOfficialError) Error() string {
	return fmt.Sprintf("conflicts with official repos (groups: %v, replaces: %v)", e.Groups, e.Replaces)
}

// DowngradingError: the freshly built version compares older than what the
// repository already serves.
type DowngradingError struct {
	PkgName string
	Built   string
	InRepo  string
}

func (e *DowngradingError) Error() string {
	return fmt.Sprintf("%s: built version %s is older than repository version %s", e.PkgName, e.Built, e.InRepo)
}

// BuildTimeoutError: the build exceeded its wall-clock limit.
type BuildTimeoutError struct {
	Limit time.Duration
}

func (e *BuildTimeoutError) Error() string {
	return fmt.Sprintf("build timed out after %s", e.Limit)
}

// BuildInput carries everything the backend needs for one build.
type BuildInput struct {
	Recipe     *Recipe
	Update     NvResult
	Depends    []Dep
	BindMounts []string
	Logger     io.Writer
}

// Builder performs the actual compile of one package inside a sandbox.
type Builder interface {
	Build(ctx context.Context, in BuildInput) error
}

// CmdBuilder shells out to a devtools-style build command in the package
// directory, then validates the produced artifacts. It is the production
// backend; tests substitute their own Builder.
type CmdBuilder struct {
	Command        []string // e.g. ["extra-x86_64-build", "--"]
	Exec           *Executor
	RepoDB         RepoDB // published versions, for the downgrade check
	OfficialGroups map[string]struct{}
}

// RepoDB answers what version of a package the repository currently
// serves. Empty string means not present.
type RepoDB interface {
	Version(pkgname string) string
}

// DirRepoDB derives published versions from the artifact filenames in the
// destination directory: name-[epoch:]ver-rel-arch.pkg.tar.*.
type DirRepoDB struct {
	Dir string
}

func (db *DirRepoDB) Version(pkgname string) string {
	files, err := artifactFiles(db.Dir)
	if err != nil {
		return ""
	}
	best := ""
	for _, file := range files {
		name, ver := splitArtifactName(filepath.Base(file))
		if name != pkgname {
			continue
		}
		if best == "" || VerCmp(ver, best) > 0 {
			best = ver
		}
	}
	return best
}

// splitArtifactName takes "name-ver-rel-arch.pkg.tar.zst" apart. pkgver
// and pkgrel never contain '-', so counting dashes from the right is safe
// even for dashed package names.
func splitArtifactName(base string) (name, version string) {
	for _, suf := range pkgSuffixes {
		if strings.HasSuffix(base, suf) {
			base = base[:len(base)-len(suf)]
			break
		}
	}
	parts := strings.Split(base, "-")
	if len(parts) < 4 {
		return "", ""
	}
	arch := len(parts) - 1
	rel := arch - 1
	ver := rel - 1
	return strings.Join(parts[:ver], "-"), parts[ver] + "-" + parts[rel]
}

func (b *CmdBuilder) Build(ctx context.Context, in BuildInput) error {
	r := in.Recipe

	if _, err := os.Stat(filepath.Join(r.PkgDir, "PKGBUILD")); err != nil {
		return fmt.Errorf("no PKGBUILD in %s: %w", r.PkgDir, err)
	}

	if r.PreBuild != "" {
		if err := b.runScript(ctx, in, r.PreBuild); err != nil {
			return err
		}
	}

	// the supervisor's ctx carries the per-build deadline; the executor
	// must cancel on it, not on the cycle-level context, or the wall-clock
	// limit never kills anything
	buildExec := b.buildExecutor(ctx, in)

	args := append([]string{}, b.Command[1:]...)
	for _, m := range in.BindMounts {
		args = append(args, "-d", m)
	}
	for _, d := range in.Depends {
		pkgfile := latestArtifact(d.PkgDir)
		if pkgfile == "" {
			continue
		}
		args = append(args, "-I", pkgfile)
	}
	cmd := exec.Command(b.Command[0], args...)
	cmd.Dir = r.PkgDir
	if err := buildExec.Run(cmd); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return b.classifyFailure(in, err)
	}

	if err := b.checkArtifacts(in); err != nil {
		return err
	}

	if r.PostBuild != "" {
		if err := b.runScript(ctx, in, r.PostBuild); err != nil {
			return err
		}
	}
	return nil
}

// buildExecutor clones the configured executor, rebinding it to the
// per-build context so a deadline expiry kills the child's process group.
func (b *CmdBuilder) buildExecutor(ctx context.Context, in BuildInput) *Executor {
	buildExec := *b.Exec
	buildExec.Context = ctx
	buildExec.Output = in.Logger
	return &buildExec
}

func (b *CmdBuilder) runScript(ctx context.Context, in BuildInput, script string) error {
	path := filepath.Join(in.Recipe.PkgDir, script)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("script %s: %w", script, err)
	}
	cmd := exec.Command(path)
	cmd.Dir = in.Recipe.PkgDir
	return b.buildExecutor(ctx, in).Run(cmd)
}

// classifyFailure inspects the build log tail for the failure signatures
// the supervisor reacts to.
func (b *CmdBuilder) classifyFailure(in BuildInput, err error) error {
	tail := logTail(in.Recipe.PkgDir)
	if deps := scanMissingDeps(tail); len(deps) > 0 {
		return &MissingDependenciesError{Deps: deps}
	}
	if strings.Contains(tail, "SKIP_BUILD") {
		reason := "requested by recipe"
		if i := strings.Index(tail, "SKIP_BUILD:"); i >= 0 {
			line := tail[i+len("SKIP_BUILD:"):]
			if j := strings.IndexByte(line, '\n'); j >= 0 {
				line = line[:j]
			}
			reason = strings.TrimSpace(line)
		}
		return &SkipBuildError{Reason: reason}
	}
	return err
}

// checkArtifacts validates the built packages: downgrade and
// official-conflict detection from the .PKGINFO metadata.
func (b *CmdBuilder) checkArtifacts(in BuildInput) error {
	files, err := artifactFiles(in.Recipe.PkgDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("build produced no package files in %s", in.Recipe.PkgDir)
	}
	for _, file := range files {
		info, err := ReadPkgInfo(file)
		if err != nil {
			return fmt.Errorf("failed to read package metadata from %s: %w", filepath.Base(file), err)
		}
		if b.RepoDB != nil {
			if repoVer := b.RepoDB.Version(info.PkgName); repoVer != "" && VerCmp(info.PkgVer, repoVer) < 0 {
				return &DowngradingError{PkgName: info.PkgName, Built: info.PkgVer, InRepo: repoVer}
			}
		}
		var groups, replaces []string
		for _, g := range info.Groups {
			if _, ok := b.OfficialGroups[g]; ok {
				groups = append(groups, g)
			}
		}
		for _, rp := range info.Replaces {
			if _, ok := b.OfficialGroups[rp]; ok {
				replaces = append(replaces, rp)
			}
		}
		if len(groups) > 0 || len(replaces) > 0 {
			return &ConflictWithOfficialError{Groups: groups, Replaces: replaces}
		}
	}
	return nil
}

// scanMissingDeps extracts package names from pacman's "target not found"
// complaints in the log tail.
func scanMissingDeps(tail string) []string {
	var deps []string
	for _, line := range strings.Split(tail, "\n") {
		const marker = "target not found: "
		if i := strings.Index(line, marker); i >= 0 {
			deps = append(deps, strings.TrimSpace(line[i+len(marker):]))
		}
	}
	return deps
}

func logTail(pkgDir string) string {
	// builders leave their own log next to the artifacts
	matches, _ := filepath.Glob(filepath.Join(pkgDir, "*.log"))
	var newest string
	var newestMod int64
	for _, m := range matches {
		st, err := os.Stat(m)
		if err != nil {
			continue
		}
		if t := st.ModTime().UnixNano(); t > newestMod {
			newest, newestMod = m, t
		}
	}
	if newest == "" {
		return ""
	}
	data, err := os.ReadFile(newest)
	if err != nil {
		return ""
	}
	if len(data) > 64*1024 {
		data = data[len(data)-64*1024:]
	}
	return string(data)
}
