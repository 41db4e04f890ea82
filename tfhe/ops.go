package tfhe

import "fmt"

// Kind tags an operation. The set is closed: passes dispatch over it
// exhaustively and treat unknown kinds as a configuration error.
type Kind int

const (
	KindZero Kind = iota
	KindZeroTensor
	KindAdd        // ciphertext + ciphertext
	KindBatchedAdd // elementwise over tensors of ciphertexts
	KindAddPlain   // ciphertext + plaintext integer
	KindBatchedAddPlain
	KindSubPlain // plaintext integer - ciphertext (ciphertext is operand 1)
	KindNeg
	KindBatchedNeg
	KindMulPlain
	KindBatchedMulPlain
	KindBatchedMulPlainCst
	KindKeySwitch
	KindBatchedKeySwitch
	KindBootstrap
	KindBatchedBootstrap
	KindEncodeExpandLUT
	KindConstant
	KindFromElements
	KindExtract
	KindInsert
	KindExtractSlice
	KindInsertSlice
	KindCollapseShape
	KindExpandShape
	KindFor
	KindYield
	KindReturn
	KindPartitionFrontier
	KindPropagateUpward
	KindPropagateDownward
)

var kindNames = map[Kind]string{
	KindZero:               "zero",
	KindZeroTensor:         "zero_tensor",
	KindAdd:                "add",
	KindBatchedAdd:         "batched_add",
	KindAddPlain:           "add_plain",
	KindBatchedAddPlain:    "batched_add_plain",
	KindSubPlain:           "sub_plain",
	KindNeg:                "neg",
	KindBatchedNeg:         "batched_neg",
	KindMulPlain:           "mul_plain",
	KindBatchedMulPlain:    "batched_mul_plain",
	KindBatchedMulPlainCst: "batched_mul_plain_cst",
	KindKeySwitch:          "keyswitch",
	KindBatchedKeySwitch:   "batched_keyswitch",
	KindBootstrap:          "bootstrap",
	KindBatchedBootstrap:   "batched_bootstrap",
	KindEncodeExpandLUT:    "encode_expand_lut",
	KindConstant:           "constant",
	KindFromElements:       "from_elements",
	KindExtract:            "extract",
	KindInsert:             "insert",
	KindExtractSlice:       "extract_slice",
	KindInsertSlice:        "insert_slice",
	KindCollapseShape:      "collapse_shape",
	KindExpandShape:        "expand_shape",
	KindFor:                "for",
	KindYield:              "yield",
	KindReturn:             "return",
	KindPartitionFrontier:  "partition_frontier",
	KindPropagateUpward:    "propagate_upward",
	KindPropagateDownward:  "propagate_downward",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Value is an SSA value: produced by exactly one operation, or a block
// argument, and consumed by any number of operations.
type Value struct {
	id    int64
	typ   Type
	def   *Operation // nil for block arguments
	owner *Block     // owning block for block arguments
	index int        // result index, or argument index

	// Optional operation-id tag for circuit arguments, naming the solver
	// record that fixes the argument's key.
	OID    int64
	HasOID bool
}

// Type returns the value's current type.
func (v *Value) Type() Type { return v.typ }

// SetType replaces the value's type for all uses.
func (v *Value) SetType(t Type) { v.typ = t }

// DefiningOp returns the operation producing v, or nil for block arguments.
func (v *Value) DefiningOp() *Operation { return v.def }

// IsBlockArg reports whether v is a block argument.
func (v *Value) IsBlockArg() bool { return v.def == nil }

// Owner returns the block the value lives in: the producer's block for
// operation results, the argument's block otherwise.
func (v *Value) Owner() *Block {
	if v.def != nil {
		return v.def.block
	}
	return v.owner
}

// ArgIndex returns the argument or result index of v.
func (v *Value) ArgIndex() int { return v.index }

func (v *Value) String() string {
	return fmt.Sprintf("%%%d: %s", v.id, v.typ)
}

// Operation is a node of the program graph.
type Operation struct {
	id    int64
	block *Block

	Kind     Kind
	Operands []*Value
	results  []*Value

	// Body is the nested region of structured control operations (KindFor).
	Body *Block

	// Optional operation-id tag naming the solver record for this operation.
	OID    int64
	HasOID bool

	// Kind-specific attributes.
	ConstValues []int64           // KindConstant: the table entries
	KSK         *KeyswitchKeyAttr // keyswitch kinds, set by parametrization
	BSK         *BootstrapKeyAttr // bootstrap kinds, set by parametrization
	PolySize    uint64            // KindEncodeExpandLUT: target table length
	OutputBits  uint64            // KindEncodeExpandLUT
	Signed      bool              // KindEncodeExpandLUT
	InKeyID     uint64            // KindPartitionFrontier
	OutKeyID    uint64            // KindPartitionFrontier
}

// ID returns the operation's stable creation index. It also serves as the
// gonum graph node identifier for topological traversals.
func (o *Operation) ID() int64 { return o.id }

// Results returns the operation's result values.
func (o *Operation) Results() []*Value { return o.results }

// Result returns the i-th result value.
func (o *Operation) Result(i int) *Value { return o.results[i] }

// Block returns the block the operation currently belongs to.
func (o *Operation) Block() *Block { return o.block }

// Parent returns the structured-control operation whose body contains this
// operation, or nil at circuit scope.
func (o *Operation) Parent() *Operation {
	if o.block == nil {
		return nil
	}
	return o.block.Parent
}

// SetBody attaches a nested block to the operation.
func (o *Operation) SetBody(b *Block) {
	o.Body = b
	b.Parent = o
}

// SetOID tags the operation with a solver operation id.
func (o *Operation) SetOID(oid int64) {
	o.OID = oid
	o.HasOID = true
}

// ClearOID removes the solver operation id tag.
func (o *Operation) ClearOID() {
	o.OID = 0
	o.HasOID = false
}

func (o *Operation) String() string {
	return fmt.Sprintf("op%d(%s)", o.id, o.Kind)
}

// Block holds an ordered operation list together with its arguments. The
// circuit body is a block; loop bodies are nested blocks.
type Block struct {
	// Parent is the operation owning this block as its body, nil for the
	// circuit body.
	Parent *Operation

	Args []*Value
	Ops  []*Operation
}

// Terminator returns the last operation of the block, or nil if empty.
func (b *Block) Terminator() *Operation {
	if len(b.Ops) == 0 {
		return nil
	}
	return b.Ops[len(b.Ops)-1]
}

func (b *Block) indexOf(op *Operation) int {
	for i, o := range b.Ops {
		if o == op {
			return i
		}
	}
	return -1
}

// InsertAfter places op immediately after the given operation, or at the
// front of the block if after is nil.
func (b *Block) InsertAfter(op, after *Operation) {
	idx := 0
	if after != nil {
		i := b.indexOf(after)
		if i < 0 {
			panic(fmt.Sprintf("InsertAfter: %s is not in the block", after))
		}
		idx = i + 1
	}
	b.Ops = append(b.Ops, nil)
	copy(b.Ops[idx+1:], b.Ops[idx:])
	b.Ops[idx] = op
	op.block = b
}

// Remove deletes op from the block's operation list.
func (b *Block) Remove(op *Operation) {
	i := b.indexOf(op)
	if i < 0 {
		panic(fmt.Sprintf("Remove: %s is not in the block", op))
	}
	b.Ops = append(b.Ops[:i], b.Ops[i+1:]...)
	op.block = nil
}

// Circuit is one compiled function: its named body block plus the counter
// handing out stable value and operation ids.
type Circuit struct {
	Name string
	Body *Block

	nextID int64
}

// NewCircuit creates an empty circuit.
func NewCircuit(name string) *Circuit {
	return &Circuit{Name: name, Body: &Block{}}
}

func (c *Circuit) newID() int64 {
	id := c.nextID
	c.nextID++
	return id
}

func (c *Circuit) newBlockArg(b *Block, t Type) *Value {
	v := &Value{id: c.newID(), typ: t, owner: b, index: len(b.Args)}
	b.Args = append(b.Args, v)
	return v
}

// AddArg appends a circuit argument of the given type.
func (c *Circuit) AddArg(t Type) *Value {
	return c.newBlockArg(c.Body, t)
}

// AddArgWithOID appends a circuit argument whose key is fixed by the solver
// record oid.
func (c *Circuit) AddArgWithOID(t Type, oid int64) *Value {
	v := c.AddArg(t)
	v.OID = oid
	v.HasOID = true
	return v
}

// NewBlock creates a nested block (e.g. a loop body) with the given argument
// types.
func (c *Circuit) NewBlock(argTypes ...Type) *Block {
	b := &Block{}
	for _, t := range argTypes {
		c.newBlockArg(b, t)
	}
	return b
}

// NewOp creates an operation with the given operands and result types
// without inserting it into a block.
func (c *Circuit) NewOp(kind Kind, operands []*Value, resultTypes ...Type) *Operation {
	op := &Operation{id: c.newID(), Kind: kind, Operands: append([]*Value(nil), operands...)}
	for i, t := range resultTypes {
		op.results = append(op.results, &Value{id: c.newID(), typ: t, def: op, index: i})
	}
	return op
}

// AppendOp creates an operation and appends it to block b.
func (c *Circuit) AppendOp(b *Block, kind Kind, operands []*Value, resultTypes ...Type) *Operation {
	op := c.NewOp(kind, operands, resultTypes...)
	b.Ops = append(b.Ops, op)
	op.block = b
	return op
}

// AppendFor creates a loop with the given carried operands and body block
// and appends it to b. The body's argument 0 is the induction variable; the
// carried arguments follow in operand order.
func (c *Circuit) AppendFor(b *Block, inits []*Value, body *Block, resultTypes ...Type) *Operation {
	op := c.AppendOp(b, KindFor, inits, resultTypes...)
	op.SetBody(body)
	return op
}

// Walk visits every operation of the circuit in program order, descending
// into nested blocks, until fn returns a non-nil error.
func (c *Circuit) Walk(fn func(*Block, *Operation) error) error {
	return walkBlock(c.Body, fn)
}

func walkBlock(b *Block, fn func(*Block, *Operation) error) error {
	for _, op := range b.Ops {
		if err := fn(b, op); err != nil {
			return err
		}
		if op.Body != nil {
			if err := walkBlock(op.Body, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReplaceUses rewires every use of old to new across the whole circuit,
// skipping operations for which keep returns true.
func (c *Circuit) ReplaceUses(old, new *Value, keep func(*Operation) bool) {
	_ = c.Walk(func(_ *Block, op *Operation) error {
		if keep != nil && keep(op) {
			return nil
		}
		for i, v := range op.Operands {
			if v == old {
				op.Operands[i] = new
			}
		}
		return nil
	})
}

// Returns yields the operand values of the circuit's return operation, or
// nil if the body has no return terminator.
func (c *Circuit) Returns() []*Value {
	term := c.Body.Terminator()
	if term == nil || term.Kind != KindReturn {
		return nil
	}
	return term.Operands
}
