package lilac

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleINI = `
# repository build bot configuration
[lilac]
name = lilac
email = admin@example.org
rebuild_failed_pkgs = false
git_push = true

[repository]
name = archlinuxcn
destdir = /srv/repo
pkg_suffixes = .pkg.tar.zst .pkg.tar.xz

[nvchecker]
proxy = http://localhost:8000

[enviroment variables]
TZ = Asia/Shanghai
HTTPS_PROXY = 'http://localhost:8000'
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lilac.ini")
	require.NoError(t, os.WriteFile(path, []byte(sampleINI), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "lilac", cfg.Get("lilac.name"))
	assert.Equal(t, "archlinuxcn", cfg.Get("repository.name"))
	assert.Equal(t, "/srv/repo", cfg.Get("repository.destdir"))
	assert.Equal(t, "http://localhost:8000", cfg.Get("nvchecker.proxy"))
	assert.True(t, cfg.Bool("lilac.git_push"))
	assert.False(t, cfg.Bool("lilac.rebuild_failed_pkgs"))
	assert.Equal(t, []string{".pkg.tar.zst", ".pkg.tar.xz"}, cfg.List("repository.pkg_suffixes"))

	// the env section stays apart, quotes stripped
	assert.Equal(t, "Asia/Shanghai", cfg.Env["TZ"])
	assert.Equal(t, "http://localhost:8000", cfg.Env["HTTPS_PROXY"])
}

func TestLoadConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lilac.ini")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "lilac", cfg.Get("lilac.name"))
	assert.Equal(t, "master", cfg.Get("lilac.branch"))
	assert.NotEmpty(t, cfg.List("repository.pkg_suffixes"))
}

func TestRepoDirFallsBackToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lilac.ini")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.RepoDir())
}

func TestLoadConfigMissing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.ini"))
	require.Error(t, err)
}
