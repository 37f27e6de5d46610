package lilac

import (
	"bufio"
	"strings"
)

// PkgFields are the version components scraped from a PKGBUILD.
type PkgFields struct {
	Epoch  string
	PkgVer string
	PkgRel string
}

// parsePkgFields scans PKGBUILD text for simple epoch/pkgver/pkgrel
// assignments. Values computed by shell expansion are left as-is; the
// detector only needs to see whether the text of pkgrel changed between
// two revisions, not to evaluate it.
func parsePkgFields(text string) PkgFields {
	var f PkgFields
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		// only column-0 assignments count; indented ones live inside
		// functions and are not the package's version fields
		line := strings.TrimRight(scanner.Text(), " \t\r")
		switch {
		case strings.HasPrefix(line, "epoch="):
			f.Epoch = unquoteShellValue(line[len("epoch="):])
		case strings.HasPrefix(line, "pkgver="):
			f.PkgVer = unquoteShellValue(line[len("pkgver="):])
		case strings.HasPrefix(line, "pkgrel="):
			f.PkgRel = unquoteShellValue(line[len("pkgrel="):])
		}
	}
	return f
}

func unquoteShellValue(v string) string {
	if i := strings.IndexAny(v, " \t#"); i >= 0 {
		v = v[:i]
	}
	return strings.Trim(v, `"'`)
}

// FormatPackageVersion composes the composite version string
// [epoch:]pkgver-pkgrel used in logs and downgrade comparisons.
func FormatPackageVersion(f PkgFields) string {
	var b strings.Builder
	if f.Epoch != "" && f.Epoch != "0" {
		b.WriteString(f.Epoch)
		b.WriteByte(':')
	}
	b.WriteString(f.PkgVer)
	if f.PkgRel != "" {
		b.WriteByte('-')
		b.WriteString(f.PkgRel)
	}
	return b.String()
}
