// Package rewrite mutates a type-resolved circuit into its final
// parametrized form: it materializes partition boundaries, inserts
// conversion keyswitches wherever producer and consumer disagree on a key,
// and fixes up key attributes and bootstrap lookup tables.
package rewrite

import (
	"fmt"

	"github.com/RafLaf/concrete/optimizer"
	"github.com/RafLaf/concrete/tfhe"
)

// MaterializePartitionBoundaries replaces every partition-frontier marker
// with an explicit conversion keyswitch, bracketed by propagation shims so
// the surrounding unparametrized IR stays well formed until resolution:
//
//	%v  = ...                           : T
//	%v1 = propagate_upward(%v)          : T -> CT_in
//	%v2 = keyswitch(%v1)                : CT_in -> CT_out
//	%v3 = propagate_downward(%v2)       : CT_out -> T?
//
// with all former uses of the marker's result reading %v3. A frontier whose
// conversion key is absent from the solution is a fatal error.
//
// Returns the number of boundaries materialized.
func MaterializePartitionBoundaries(c *tfhe.Circuit, view *optimizer.SolutionView) (int, error) {
	var frontiers []*tfhe.Operation
	_ = c.Walk(func(_ *tfhe.Block, op *tfhe.Operation) error {
		if op.Kind == tfhe.KindPartitionFrontier {
			frontiers = append(frontiers, op)
		}
		return nil
	})

	for _, pf := range frontiers {
		cksk, err := view.ConversionKeyBetween(pf.InKeyID, pf.OutKeyID)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", pf, err)
		}

		in := pf.Operands[0]
		inType := in.Type()
		sct, ok := tfhe.ScalarCiphertextType(inType)
		if !ok {
			return 0, fmt.Errorf("%s: frontier over non-ciphertext type %s", pf, inType)
		}

		inScalar := tfhe.CiphertextType{Key: optimizer.GLWEKey(cksk.InputKey), BitWidth: sct.BitWidth}
		outScalar := tfhe.CiphertextType{Key: optimizer.GLWEKey(cksk.OutputKey), BitWidth: sct.BitWidth}
		unresolved := tfhe.CiphertextType{Key: tfhe.NoneKey(), BitWidth: sct.BitWidth}

		block := pf.Block()
		pu := c.NewOp(tfhe.KindPropagateUpward, []*tfhe.Value{in},
			tfhe.ApplyElementType(inScalar, inType))
		block.InsertAfter(pu, pf)

		attr := optimizer.ConversionKeyAttrOf(cksk)
		converted, last, err := buildConversion(c, block, pu, pu.Result(0), attr,
			tfhe.ApplyElementType(outScalar, inType))
		if err != nil {
			return 0, fmt.Errorf("%s: %w", pf, err)
		}

		pd := c.NewOp(tfhe.KindPropagateDownward, []*tfhe.Value{converted},
			tfhe.ApplyElementType(unresolved, inType))
		block.InsertAfter(pd, last)

		c.ReplaceUses(pf.Result(0), pd.Result(0), nil)
		block.Remove(pf)
	}
	return len(frontiers), nil
}

// buildConversion inserts the operations converting v to resultType with the
// given conversion key, immediately after the given operation (or at the
// block front if after is nil). Scalars use a plain keyswitch, flat tensors
// a batched keyswitch; tensors of higher rank are flattened first and
// restored afterwards, since batched keyswitches only operate on flat
// sequences. Returns the converted value and the last inserted operation.
func buildConversion(c *tfhe.Circuit, block *tfhe.Block, after *tfhe.Operation,
	v *tfhe.Value, key tfhe.KeyswitchKeyAttr, resultType tfhe.Type) (*tfhe.Value, *tfhe.Operation, error) {

	switch rt := resultType.(type) {
	case tfhe.CiphertextType:
		ks := c.NewOp(tfhe.KindKeySwitch, []*tfhe.Value{v}, resultType)
		ks.KSK = &key
		block.InsertAfter(ks, after)
		return ks.Result(0), ks, nil

	case tfhe.TensorType:
		if len(rt.Shape) == 1 {
			ks := c.NewOp(tfhe.KindBatchedKeySwitch, []*tfhe.Value{v}, resultType)
			ks.KSK = &key
			block.InsertAfter(ks, after)
			return ks.Result(0), ks, nil
		}

		fromScalar, ok := tfhe.ScalarCiphertextType(v.Type())
		if !ok {
			return nil, nil, fmt.Errorf("cannot convert non-ciphertext tensor %s", v.Type())
		}
		n := rt.NumElements()

		collapse := c.NewOp(tfhe.KindCollapseShape, []*tfhe.Value{v},
			tfhe.Tensor(fromScalar, n))
		block.InsertAfter(collapse, after)

		ks := c.NewOp(tfhe.KindBatchedKeySwitch, []*tfhe.Value{collapse.Result(0)},
			tfhe.Tensor(rt.Elem, n))
		ks.KSK = &key
		block.InsertAfter(ks, collapse)

		expand := c.NewOp(tfhe.KindExpandShape, []*tfhe.Value{ks.Result(0)}, resultType)
		block.InsertAfter(expand, ks)
		return expand.Result(0), expand, nil
	}
	return nil, nil, fmt.Errorf("cannot convert value of type %s", resultType)
}
