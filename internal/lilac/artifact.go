package lilac

import (
	"archive/tar"
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
	"lukechampine.com/blake3"
)

// pkgSuffixes are the artifact file suffixes the publisher recognizes.
// Overridden from repository.pkg_suffixes at startup.
var pkgSuffixes = []string{".pkg.tar.zst", ".pkg.tar.xz", ".pkg.tar.gz"}

// SetPkgSuffixes replaces the recognized artifact suffix list.
func SetPkgSuffixes(suffixes []string) {
	if len(suffixes) > 0 {
		pkgSuffixes = suffixes
	}
}

func isArtifact(name string) bool {
	if strings.HasSuffix(name, ".sig") {
		return false
	}
	for _, suf := range pkgSuffixes {
		if strings.HasSuffix(name, suf) {
			return true
		}
	}
	return false
}

// artifactFiles lists the package files a build left in dir, sorted by name.
func artifactFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read build dir %s: %w", dir, err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if isArtifact(entry.Name()) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// latestArtifact returns the newest package file in dir, or "".
func latestArtifact(dir string) string {
	files, err := artifactFiles(dir)
	if err != nil {
		return ""
	}
	var newest string
	var newestMod int64
	for _, file := range files {
		st, err := os.Stat(file)
		if err != nil {
			continue
		}
		if t := st.ModTime().UnixNano(); t >= newestMod {
			newest, newestMod = file, t
		}
	}
	return newest
}

// PkgInfo is the metadata parsed from an artifact's .PKGINFO member.
type PkgInfo struct {
	PkgName  string
	PkgBase  string
	PkgVer   string // full composite version, epoch:pkgver-pkgrel
	Groups   []string
	Replaces []string
}

// Fields splits the composite version into (epoch, pkgver, pkgrel).
func (p *PkgInfo) Fields() PkgFields {
	var f PkgFields
	v := p.PkgVer
	if i := strings.IndexByte(v, ':'); i >= 0 {
		f.Epoch = v[:i]
		v = v[i+1:]
	}
	if i := strings.LastIndexByte(v, '-'); i >= 0 {
		f.PkgRel = v[i+1:]
		v = v[:i]
	}
	f.PkgVer = v
	return f
}

// openArchive picks the decompressor matching the artifact suffix.
func openArchive(path string, f io.Reader) (io.Reader, func(), error) {
	switch {
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd reader for %s: %w", path, err)
		}
		return zr.IOReadCloser(), func() { zr.Close() }, nil
	case strings.HasSuffix(path, ".xz"):
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create xz reader for %s: %w", path, err)
		}
		return xr, func() {}, nil
	case strings.HasSuffix(path, ".gz"):
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gzip reader for %s: %w", path, err)
		}
		return gz, func() { gz.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unrecognized package suffix: %s", path)
	}
}

// ReadPkgInfo extracts and parses the .PKGINFO member of a built package.
func ReadPkgInfo(path string) (*PkgInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, cleanup, err := openArchive(path, bufio.NewReader(f))
	if err != nil {
		return nil, err
	}
	defer cleanup()

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read archive %s: %w", path, err)
		}
		if filepath.Clean(hdr.Name) != ".PKGINFO" {
			continue
		}
		return parsePkgInfo(tr)
	}
	return nil, fmt.Errorf("%s has no .PKGINFO", path)
}

func parsePkgInfo(r io.Reader) (*PkgInfo, error) {
	info := &PkgInfo{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		switch key {
		case "pkgname":
			info.PkgName = val
		case "pkgbase":
			info.PkgBase = val
		case "pkgver":
			info.PkgVer = val
		case "group":
			info.Groups = append(info.Groups, val)
		case "replaces":
			info.Replaces = append(info.Replaces, val)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if info.PkgName == "" || info.PkgVer == "" {
		return nil, fmt.Errorf("incomplete .PKGINFO")
	}
	return info, nil
}

// Blake3Sum computes the artifact checksum recorded in the structured
// build log and the mirror index.
func Blake3Sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
