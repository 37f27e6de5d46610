package lilac

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnotate(t *testing.T) {
	maintainers := map[string][]string{
		"python-requests": {"alice", "bob"},
		"vim-plugin":      {"carol"},
		"orphan":          nil,
	}

	input := strings.Join([]string{
		"python-requests 2.31.0 fails to build",
		"  vim-plugin: checksum mismatch",
		"unknown-pkg is broken",
		"orphan needs attention",
		"-- separator line: !!!",
		"",
	}, "\n")

	var out strings.Builder
	require.NoError(t, Annotate(strings.NewReader(input), &out, maintainers))

	lines := strings.Split(out.String(), "\n")
	assert.Equal(t, "python-requests 2.31.0 fails to build  (@alice @bob)", lines[0])
	// the first identifier-shaped token counts even after leading spaces
	assert.Equal(t, "  vim-plugin: checksum mismatch  (@carol)", lines[1])
	assert.Equal(t, "unknown-pkg is broken", lines[2])
	// a known package with no handles stays untouched
	assert.Equal(t, "orphan needs attention", lines[3])
	assert.Equal(t, "-- separator line: !!!", lines[4])
}

func TestMaintainerHandles(t *testing.T) {
	recipes := map[string]*Recipe{
		"pkg": {Maintainers: []Maintainer{
			{Name: "A", Email: "a@example.org", Handle: "a"},
			{Name: "B", Email: "b@example.org"},
		}},
	}
	handles := MaintainerHandles(recipes)
	assert.Equal(t, []string{"a"}, handles["pkg"])
}
