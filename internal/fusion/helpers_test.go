package fusion

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/dataflow/internal/ir"
)

// requireClosed asserts that node's body only references captured
// arguments or values defined inside it, and that nothing outside the
// node reads a value defined inside it.
func requireClosed(t *testing.T, node *ir.Operation) {
	t.Helper()
	inside := func(op *ir.Operation) bool { return node.IsAncestorOf(op) }

	node.Body().Walk(func(op *ir.Operation) {
		for _, v := range op.OperandValues() {
			require.NotNil(t, v, "%s has a null operand", op)
			if v.IsBlockArgument() {
				require.Same(t, node.Body(), v.Owner(), "%s reads a foreign block argument", op)
				continue
			}
			require.True(t, inside(v.DefiningOp()), "%s reads %s from outside the node", op, v.DefiningOp())
		}
		for _, r := range op.Results() {
			for _, user := range r.Users() {
				require.True(t, inside(user), "%s leaks to %s outside the node", op, user)
			}
		}
	})

	yield := node.Body().Terminator()
	require.NotNil(t, yield)
	require.Equal(t, ir.KindYield, yield.Kind())
	require.Equal(t, node.NumResults(), yield.NumOperands())
	for i, v := range yield.OperandValues() {
		require.Equal(t, node.Result(i).Type(), v.Type())
	}
	require.Equal(t, node.NumOperands(), len(node.Body().Arguments()))
}

func quietRun(t *testing.T, fn *ir.Func, opts ...Option) *Report {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	report, err := Run(context.Background(), fn, opts...)
	require.NoError(t, err)
	return report
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
