package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataflow/internal/ir"
)

func TestProgram_BuildsStraightLineFunc(t *testing.T) {
	p := NewProgram("f", Tensor)
	k := p.Const("k")
	a := p.Op("a", ir.KindAdd, p.Arg(0), k.Result(0))
	p.Return(a.Result(0))

	assert.Equal(t, []string{ir.KindConst, ir.KindAdd, ir.KindReturn}, Kinds(p.Fn.Entry()))
	assert.Same(t, a, p.Get("a"))
	assert.Nil(t, p.TaskOf("a"))
	assert.Empty(t, Tasks(p.Fn))
	require.Len(t, k.Result(0).Users(), 1)
	assert.Same(t, a, k.Result(0).Users()[0])
}

func TestProgram_PanicsOnDuplicateOrMissingName(t *testing.T) {
	p := NewProgram("f")
	p.Const("k")

	assert.Panics(t, func() { p.Const("k") })
	assert.Panics(t, func() { p.Get("missing") })
}
