package ir

// Operation kinds produced or consumed by the dataflow passes.
const (
	KindReturn   = "func.return"
	KindTask     = "dataflow.task"
	KindSchedule = "dataflow.schedule"
	KindYield    = "dataflow.yield"
)

// TOSA operation kinds recognised by the default fusion configuration.
const (
	KindConst     = "tosa.const"
	KindConv2D    = "tosa.conv2d"
	KindAvgPool2D = "tosa.avg_pool2d"
	KindMaxPool2D = "tosa.max_pool2d"
	KindMatMul    = "tosa.matmul"
	KindMul       = "tosa.mul"
	KindAdd       = "tosa.add"
	KindSub       = "tosa.sub"
	KindRsqrt     = "tosa.rsqrt"
	KindClamp     = "tosa.clamp"
	KindTranspose = "tosa.transpose"
	KindReshape   = "tosa.reshape"
)

// IsTerminator reports whether kind ends a block.
func IsTerminator(kind string) bool {
	return kind == KindReturn || kind == KindYield
}

// IsCompound reports whether kind owns a body block.
func IsCompound(kind string) bool {
	return kind == KindTask || kind == KindSchedule
}

// IsTriviallyDead reports whether op can be erased without changing the
// program: it is a constant and none of its results are used.
func IsTriviallyDead(op *Operation) bool {
	return op.kind == KindConst && op.block != nil && !op.HasResultUses()
}
