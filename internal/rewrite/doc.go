// Package rewrite implements the generic pattern-rewrite engine used by the
// dataflow passes.
//
// A Pattern inspects one root operation and either declines (returns
// false) or mutates the IR through a Rewriter (returns true). The
// Rewriter wraps the ir mutation primitives and tells the driver which
// operations changed, so they can be revisited.
//
// ApplyGreedily is a worklist driver:
//  1. Seed the worklist with every operation of the function, pre-order
//  2. Pop operations FIFO and try the patterns rooted at their kind
//  3. On success, enqueue created and modified operations and their
//     def-use neighbours
//  4. When the worklist drains, rescan; stop after an iteration without
//     changes or after MaxIterations
//
// Evaluation is single-threaded and deterministic for a given pattern
// registration order.
package rewrite
