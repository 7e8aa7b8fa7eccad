// Package ir provides the program representation rewritten by the dataflow
// passes.
//
// A program is a Func whose entry Block holds an ordered list of
// Operations. Operations consume Values through Operands and produce new
// Values as results; block arguments are Values without a defining
// operation. Compound operations (task nodes, the schedule) own a single
// nested Block.
//
// This package contains the data model and its mutation primitives only.
// All other internal packages import ir; ir imports nothing internal.
//
// Key constraints:
//   - Every Value has exactly one definition (an operation result or a
//     block argument) and an ordered use list kept in sync by Operand.Set.
//   - The last operation of a block is its terminator.
//   - Attributes are the sealed Attr family; floats are not representable,
//     tensor literals are carried as strings (e.g. "dense<0.5>").
//   - The package is not safe for concurrent mutation.
package ir
