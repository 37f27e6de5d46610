package lilac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerCmp(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0", "1.0", 0},
		{"1.0", "1.1", -1},
		{"1.1", "1.0", 1},
		{"1.10", "1.9", 1},
		{"1.0-1", "1.0-2", -1},
		{"1.0-2", "1.0-1", 1},
		{"1:0.5", "2.0", 1},
		{"1:0.5", "1:0.4", 1},
		{"2.0", "1:0.5", -1},
		{"1.0rc1", "1.0", -1},
		{"1.0", "1.0rc1", 1},
		{"1.0.1", "1.0", 1},
		{"1.0a", "1.0b", -1},
		{"0010", "10", 0},
		{"1.0_1", "1.0.1", 0},
		{"20220101", "20211231", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, VerCmp(tt.a, tt.b), "VerCmp(%q, %q)", tt.a, tt.b)
	}
}
