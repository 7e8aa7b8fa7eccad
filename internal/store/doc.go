// Package store provides SQLite-backed storage for dataflow pass runs.
//
// Each run of the pass over a function is recorded with:
//   - Runs: function name, fingerprints before and after, convergence,
//     task count and the clustering statistics
//   - Firings: every rule firing of the run, tagged with its phase and
//     the number of task nodes right after it
//
// # Ordering
//
// All ordering uses seq INTEGER (logical clock), never timestamps. Runs
// are numbered by the store on insert; firings carry the seq stamped by
// the rewrite driver. Queries order by seq, then id COLLATE BINARY, so two
// identical runs read back identically.
//
// Run IDs are UUIDv7 strings. Stats are stored as canonical JSON.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Firings must reference a recorded run
package store
