// Package fusion turns a flat sequence of tensor operations into a
// dataflow graph: clusters of operations (task nodes) with explicit
// input/output boundaries, wrapped in one schedule per function.
//
// # Pipeline
//
// Run executes the configured phases, each a pattern set driven to a
// fixpoint by rewrite.ApplyGreedily, then wraps the entry block with
// WrapWithSchedule. The default configuration is:
//
//	phase 1: outline conv2d, avg_pool2d, max_pool2d, matmul, mul, add, sub, rsqrt
//	         backward-fuse clamp, transpose
//	         forward-fuse reshape
//	phase 2: outline transpose
//	         replicate constants
//
// # Rules
//
// Every rule declines operations already inside a task node, so each
// operation is clustered at most once and every firing strictly reduces
// the number of unclustered operations.
//
//   - Outline wraps one operation into a singleton task.
//   - ForwardFuse merges an operation into the dominating task among its users.
//   - BackwardFuse merges an operation into the dominated task among its producers.
//   - ConstReplicate clones a constant in front of each task using it and
//     merges the clone into that task.
//
// Task nodes are never nested: when a rule merges an existing task, its
// contents are spliced into the new task and the old shell is erased.
package fusion
