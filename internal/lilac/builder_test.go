package lilac

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildExecutorBindsDeadline(t *testing.T) {
	// the executor clone must cancel on the per-build deadline context,
	// not on the cycle-level one, or timeouts never kill anything
	cycleCtx := context.Background()
	b := &CmdBuilder{Exec: NewExecutor(cycleCtx)}

	buildCtx, cancel := context.WithTimeout(cycleCtx, time.Hour)
	defer cancel()

	got := b.buildExecutor(buildCtx, BuildInput{Logger: io.Discard})
	assert.True(t, got.Context == buildCtx)
	assert.True(t, got.Output == io.Discard)
	// the configured executor itself stays untouched
	assert.True(t, b.Exec.Context == cycleCtx)

	_, hasDeadline := got.Context.Deadline()
	require.True(t, hasDeadline)
}
