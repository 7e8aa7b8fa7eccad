package ir

// Builder creates operations at an insertion point.
//
// The zero value has no insertion point; Create then returns detached
// operations.
type Builder struct {
	block  *Block
	before *Operation
}

// NewBuilderAtEnd returns a builder appending to b.
func NewBuilderAtEnd(b *Block) *Builder {
	return &Builder{block: b}
}

// NewBuilderBefore returns a builder inserting before op.
func NewBuilderBefore(op *Operation) *Builder {
	return &Builder{block: op.block, before: op}
}

// SetInsertionPoint moves the insertion point before op.
func (bl *Builder) SetInsertionPoint(op *Operation) {
	bl.block, bl.before = op.block, op
}

// SetInsertionPointToEnd moves the insertion point to the end of b.
func (bl *Builder) SetInsertionPointToEnd(b *Block) {
	bl.block, bl.before = b, nil
}

// SetInsertionPointToStart moves the insertion point to the start of b.
func (bl *Builder) SetInsertionPointToStart(b *Block) {
	bl.block, bl.before = b, b.first
}

// InsertionBlock returns the block operations are inserted into.
func (bl *Builder) InsertionBlock() *Block { return bl.block }

// Insert places a detached operation at the insertion point.
func (bl *Builder) Insert(op *Operation) *Operation {
	if bl.block != nil {
		bl.block.insert(op, bl.before)
	}
	return op
}

// Create builds an operation and inserts it at the insertion point.
func (bl *Builder) Create(kind string, operands []*Value, resultTypes []Type, attrs Attrs) *Operation {
	return bl.Insert(NewOperation(kind, operands, resultTypes, attrs))
}

// CreateReturn appends a func.return of vals.
func (bl *Builder) CreateReturn(vals ...*Value) *Operation {
	return bl.Create(KindReturn, vals, nil, nil)
}

// CreateYield appends a dataflow.yield of vals.
func (bl *Builder) CreateYield(vals ...*Value) *Operation {
	return bl.Create(KindYield, vals, nil, nil)
}
