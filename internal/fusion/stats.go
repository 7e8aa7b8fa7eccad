package fusion

import "github.com/roach88/dataflow/internal/ir"

// Stats summarises the clustering of a function.
type Stats struct {
	Tasks       int `json:"tasks"`
	Clustered   int `json:"clustered"`
	Unclustered int `json:"unclustered"`
	LargestTask int `json:"largest_task"`
	Schedules   int `json:"schedules"`
}

// CollectStats counts task nodes and the compute operations inside and
// outside them. Terminators and compound operations are not counted as
// compute operations.
func CollectStats(fn *ir.Func) Stats {
	var s Stats
	fn.Walk(func(op *ir.Operation) {
		switch {
		case op.Kind() == ir.KindTask:
			s.Tasks++
			if n := op.Body().Len() - 1; n > s.LargestTask {
				s.LargestTask = n
			}
		case op.Kind() == ir.KindSchedule:
			s.Schedules++
		case ir.IsTerminator(op.Kind()):
		case op.InTask():
			s.Clustered++
		default:
			s.Unclustered++
		}
	})
	return s
}

// CountUnclustered returns the operations of kind that are not inside a
// task node. An empty kind counts every compute operation.
func CountUnclustered(fn *ir.Func, kind string) int {
	n := 0
	fn.Walk(func(op *ir.Operation) {
		if ir.IsCompound(op.Kind()) || ir.IsTerminator(op.Kind()) || op.InTask() {
			return
		}
		if kind == "" || op.Kind() == kind {
			n++
		}
	})
	return n
}

// countTasks counts the task nodes of fn.
func countTasks(fn *ir.Func) int {
	n := 0
	fn.Walk(func(op *ir.Operation) {
		if op.Kind() == ir.KindTask {
			n++
		}
	})
	return n
}
