package lilac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePkgFields(t *testing.T) {
	text := `
pkgname=foo
pkgver=1.2.3
pkgrel=4  # bumped for soname change
epoch=2
arch=('x86_64')

build() {
  pkgrel=ignored
  make
}
`
	// function bodies are indented, so only the top-level assignments match
	f := parsePkgFields(text)
	assert.Equal(t, "1.2.3", f.PkgVer)
	assert.Equal(t, "4", f.PkgRel)
	assert.Equal(t, "2", f.Epoch)
}

func TestParsePkgFieldsQuoted(t *testing.T) {
	f := parsePkgFields("pkgver='2.0'\npkgrel=\"1\"\n")
	assert.Equal(t, "2.0", f.PkgVer)
	assert.Equal(t, "1", f.PkgRel)
}

func TestFormatPackageVersion(t *testing.T) {
	tests := []struct {
		fields PkgFields
		want   string
	}{
		{PkgFields{PkgVer: "1.0", PkgRel: "1"}, "1.0-1"},
		{PkgFields{Epoch: "2", PkgVer: "1.0", PkgRel: "3"}, "2:1.0-3"},
		{PkgFields{Epoch: "0", PkgVer: "1.0", PkgRel: "1"}, "1.0-1"},
		{PkgFields{PkgVer: "1.0"}, "1.0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatPackageVersion(tt.fields))
	}
}
