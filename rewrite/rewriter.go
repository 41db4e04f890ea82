package rewrite

import (
	"errors"
	"fmt"

	"github.com/RafLaf/concrete/infer"
	"github.com/RafLaf/concrete/optimizer"
	"github.com/RafLaf/concrete/tfhe"
)

// ErrUnsupportedLUT is returned when a bootstrap lookup table must be
// resized but its producer is not a pattern the pass knows how to
// regenerate.
var ErrUnsupportedLUT = errors.New("unsupported lookup table pattern")

// Rewriter consumes a converged type assignment and mutates the circuit:
// conflicting producer/consumer keys become explicit conversion keyswitches,
// propagation shims are removed, operation-id tags are stripped and key
// attributes plus bootstrap lookup tables are fixed up.
type Rewriter struct {
	Circuit  *tfhe.Circuit
	View     *optimizer.SolutionView
	Resolver *infer.Resolver
	State    infer.State

	// Conversions counts the conversion keyswitches inserted.
	Conversions int

	// One conversion per (producer value, target key), shared by all
	// consumers requiring that key.
	made map[convKey]*tfhe.Value
}

type convKey struct {
	v   *tfhe.Value
	key uint64
}

// Run performs the rewrite. The analysis is complete before any mutation
// happens; on error the circuit must be discarded by the caller.
func (r *Rewriter) Run() error {
	r.made = make(map[convKey]*tfhe.Value)

	// Snapshot program order; conversion insertion grows blocks in place.
	type placed struct {
		block *tfhe.Block
		op    *tfhe.Operation
	}
	var ops []placed
	_ = r.Circuit.Walk(func(b *tfhe.Block, op *tfhe.Operation) error {
		ops = append(ops, placed{b, op})
		return nil
	})

	// Conflict pass: rewire any operand whose required key differs from the
	// key its producer resolved to.
	for _, p := range ops {
		required, err := r.Resolver.RequiredOperandTypes(p.op, r.State)
		if err != nil {
			return err
		}
		for i, operand := range p.op.Operands {
			reqCT, ok := tfhe.ScalarCiphertextType(required[i])
			if !ok || reqCT.Key.IsNone() {
				continue
			}
			haveCT, ok := tfhe.ScalarCiphertextType(r.State.TypeOf(operand))
			if !ok || haveCT.Key.IsNone() {
				continue
			}
			if reqCT.Key == haveCT.Key {
				continue
			}
			conv, err := r.conversionFor(operand, haveCT, reqCT)
			if err != nil {
				return fmt.Errorf("operand %d of %s: %w", i, p.op, err)
			}
			p.op.Operands[i] = conv
		}
	}

	// Commit the resolved types to the IR.
	r.applyTypes()

	// Propagation shims have served their purpose: by now their operand and
	// result types agree, so uses can read the operand directly.
	for _, p := range ops {
		if p.op.Kind != tfhe.KindPropagateUpward && p.op.Kind != tfhe.KindPropagateDownward {
			continue
		}
		r.Circuit.ReplaceUses(p.op.Result(0), p.op.Operands[0], nil)
		p.block.Remove(p.op)
	}

	// Strip the temporary operation-id tags and pin down the concrete key
	// attributes of keyswitch and bootstrap operations.
	for _, arg := range r.Circuit.Body.Args {
		arg.HasOID = false
		arg.OID = 0
	}
	for _, p := range ops {
		if err := r.fixupOp(p.op); err != nil {
			return err
		}
	}
	return nil
}

// conversionFor returns the value holding operand converted to the target
// key, inserting the conversion immediately after the producer so it is not
// duplicated inside loop bodies, and reusing it for every consumer that
// requires the same target key.
func (r *Rewriter) conversionFor(operand *tfhe.Value, from, to tfhe.CiphertextType) (*tfhe.Value, error) {
	ck := convKey{operand, to.Key.ID}
	if v, ok := r.made[ck]; ok {
		return v, nil
	}

	if r.View == nil {
		return nil, fmt.Errorf("%w: no solution to take a conversion key from", optimizer.ErrMissingConversionKey)
	}
	cksk, err := r.View.ConversionKeyBetween(from.Key.ID, to.Key.ID)
	if err != nil {
		return nil, err
	}

	block := operand.Owner()
	after := operand.DefiningOp() // nil for block arguments: insert at front

	operandType := r.State.TypeOf(operand)
	conv, _, err := buildConversion(r.Circuit, block, after, operand,
		optimizer.ConversionKeyAttrOf(cksk), tfhe.ApplyElementType(to, operandType))
	if err != nil {
		return nil, err
	}
	r.made[ck] = conv
	r.Conversions++
	return conv, nil
}

// applyTypes replaces every value's IR type with its resolved type.
func (r *Rewriter) applyTypes() {
	apply := func(vs []*tfhe.Value) {
		for _, v := range vs {
			v.SetType(r.State.TypeOf(v))
		}
	}
	apply(r.Circuit.Body.Args)
	_ = r.Circuit.Walk(func(_ *tfhe.Block, op *tfhe.Operation) error {
		apply(op.Results())
		if op.Body != nil {
			apply(op.Body.Args)
		}
		return nil
	})
}

// fixupOp strips the operation-id tag and, for keyswitch and bootstrap
// operations, replaces the key attribute with the solver's answer, resizing
// the bootstrap lookup table if the new key changed its length.
func (r *Rewriter) fixupOp(op *tfhe.Operation) error {
	if !op.HasOID {
		return nil
	}
	oid := op.OID
	op.ClearOID()
	if r.View == nil {
		return nil
	}

	switch op.Kind {
	case tfhe.KindKeySwitch, tfhe.KindBatchedKeySwitch:
		attr, err := r.View.KeyswitchKeyAttrFor(oid)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		op.KSK = &attr

	case tfhe.KindBootstrap, tfhe.KindBatchedBootstrap:
		attr, err := r.View.BootstrapKeyAttrFor(oid)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		op.BSK = &attr
		if err := r.fixupBootstrapLUT(op); err != nil {
			return err
		}
	}
	return nil
}

// fixupBootstrapLUT adjusts the lookup table operand of a bootstrap
// operation whose key assignment changed the required table length. Only
// uniform constants (rounded bootstrap) and encode-and-expand tables can be
// regenerated; anything else is a hard error.
func (r *Rewriter) fixupBootstrapLUT(op *tfhe.Operation) error {
	lut := op.Operands[1]
	lutType, ok := lut.Type().(tfhe.TensorType)
	if !ok || len(lutType.Shape) != 1 {
		return fmt.Errorf("%s: lookup table must be a flat tensor, got %s", op, lut.Type())
	}
	want := int64(op.BSK.PolySize)
	if lutType.Shape[0] == want {
		// Parametrization has no effect on the table.
		return nil
	}

	producer := lut.DefiningOp()
	if producer == nil {
		return fmt.Errorf("%s: %w: table is a block argument", op, ErrUnsupportedLUT)
	}
	block := producer.Block()

	switch producer.Kind {
	case tfhe.KindConstant:
		if len(producer.ConstValues) == 0 {
			return fmt.Errorf("%s: %w: constant table is empty", op, ErrUnsupportedLUT)
		}
		for _, v := range producer.ConstValues[1:] {
			if v != producer.ConstValues[0] {
				return fmt.Errorf("%s: %w: constant table has differing entries, only uniform tables of a rounded bootstrap can be resized", op, ErrUnsupportedLUT)
			}
		}
		vals := make([]int64, want)
		for i := range vals {
			vals[i] = producer.ConstValues[0]
		}
		cst := r.Circuit.NewOp(tfhe.KindConstant, nil, tfhe.Tensor(lutType.Elem, want))
		cst.ConstValues = vals
		block.InsertAfter(cst, producer)
		op.Operands[1] = cst.Result(0)

	case tfhe.KindEncodeExpandLUT:
		enc := r.Circuit.NewOp(tfhe.KindEncodeExpandLUT, producer.Operands, tfhe.Tensor(lutType.Elem, want))
		enc.PolySize = op.BSK.PolySize
		enc.OutputBits = producer.OutputBits
		enc.Signed = producer.Signed
		block.InsertAfter(enc, producer)
		op.Operands[1] = enc.Result(0)

	default:
		return fmt.Errorf("%s: %w: table produced by %s, only constants and encode-expand tables are supported", op, ErrUnsupportedLUT, producer)
	}
	return nil
}
