package infer

import (
	"errors"
	"fmt"

	"github.com/RafLaf/concrete/optimizer"
	"github.com/RafLaf/concrete/tfhe"
)

// ErrUnsupportedKind is returned when the analysis meets an operation kind
// it has no constraint rule for. The kind table must be exhaustive; hitting
// this is a configuration error, not a user error.
var ErrUnsupportedKind = errors.New("unsupported operation kind")

// pair is a type-equality constraint between two values. Only the ciphertext
// element participates; container shapes are static.
type pair struct {
	a, b *tfhe.Value
}

// opConstraints returns the equality pairs implied by the operation's kind.
// The dispatch is exhaustive over tfhe.Kind.
func opConstraints(op *tfhe.Operation) ([]pair, error) {
	switch op.Kind {
	case tfhe.KindZero, tfhe.KindZeroTensor, tfhe.KindConstant,
		tfhe.KindEncodeExpandLUT, tfhe.KindReturn,
		tfhe.KindKeySwitch, tfhe.KindBatchedKeySwitch,
		tfhe.KindBootstrap, tfhe.KindBatchedBootstrap:
		// No structural ties between operands and results; keyswitch and
		// bootstrap operations are typed purely by the solver's keys.
		return nil, nil

	case tfhe.KindPropagateUpward, tfhe.KindPropagateDownward:
		return []pair{{op.Operands[0], op.Result(0)}}, nil

	case tfhe.KindAdd, tfhe.KindBatchedAdd:
		return []pair{
			{op.Operands[0], op.Operands[1]},
			{op.Operands[0], op.Result(0)},
		}, nil

	case tfhe.KindAddPlain, tfhe.KindBatchedAddPlain, tfhe.KindNeg,
		tfhe.KindBatchedNeg, tfhe.KindMulPlain, tfhe.KindBatchedMulPlain:
		return []pair{{op.Operands[0], op.Result(0)}}, nil

	case tfhe.KindSubPlain:
		// Operand 0 is the plaintext minuend; the ciphertext is operand 1.
		return []pair{{op.Operands[1], op.Result(0)}}, nil

	case tfhe.KindBatchedMulPlainCst, tfhe.KindExtract, tfhe.KindExtractSlice,
		tfhe.KindCollapseShape, tfhe.KindExpandShape:
		return []pair{{op.Operands[0], op.Result(0)}}, nil

	case tfhe.KindFromElements:
		var ps []pair
		for i := 1; i < len(op.Operands); i++ {
			ps = append(ps, pair{op.Operands[0], op.Operands[i]})
		}
		ps = append(ps, pair{op.Operands[0], op.Result(0)})
		return ps, nil

	case tfhe.KindInsert, tfhe.KindInsertSlice:
		// Inserted element, destination container and result share one
		// element type.
		return []pair{
			{op.Operands[0], op.Operands[1]},
			{op.Operands[1], op.Result(0)},
		}, nil

	case tfhe.KindFor:
		body := op.Body
		if body == nil {
			return nil, fmt.Errorf("%s: loop without a body", op)
		}
		term := body.Terminator()
		if term == nil || term.Kind != tfhe.KindYield {
			return nil, fmt.Errorf("%s: loop body must end in a yield", op)
		}
		// Body arg 0 is the induction variable; the carried values follow.
		if len(body.Args) != len(op.Operands)+1 ||
			len(term.Operands) != len(op.Operands) ||
			len(op.Results()) != len(op.Operands) {
			return nil, fmt.Errorf("%s: mismatched loop-carried value counts", op)
		}
		var ps []pair
		for i, init := range op.Operands {
			regionArg := body.Args[i+1]
			result := op.Result(i)
			yielded := term.Operands[i]
			// Init operand, region argument, yielded value and external
			// result all share one type.
			ps = append(ps,
				pair{init, regionArg},
				pair{init, result},
				pair{result, yielded},
			)
		}
		return ps, nil

	case tfhe.KindYield:
		// Covered by the enclosing loop's constraints.
		return nil, nil

	case tfhe.KindPartitionFrontier:
		return nil, fmt.Errorf("%s: partition frontiers must be materialized before type resolution", op)
	}
	return nil, fmt.Errorf("%s: %w", op, ErrUnsupportedKind)
}

// pinKinds returns the solution key kinds used to pin the operands and
// results of an operation category.
func pinKinds(k tfhe.Kind) (in, out optimizer.KeyKind) {
	switch k {
	case tfhe.KindKeySwitch, tfhe.KindBatchedKeySwitch:
		return optimizer.KeyKskIn, optimizer.KeyKskOut
	case tfhe.KindBootstrap, tfhe.KindBatchedBootstrap:
		return optimizer.KeyBskIn, optimizer.KeyBskOut
	default:
		return optimizer.KeyOperand, optimizer.KeyResult
	}
}

// setUnresolvedTo assigns the given secret key to every value of vs whose
// type (or container element type) is still unresolved.
func setUnresolvedTo(s State, vs []*tfhe.Value, key optimizer.SecretLweKey) bool {
	changed := false
	for _, v := range vs {
		t := s.TypeOf(v)
		if !tfhe.IsUnresolved(t) {
			continue
		}
		sct, _ := tfhe.ScalarCiphertextType(t)
		scalar := tfhe.CiphertextType{Key: optimizer.GLWEKey(key), BitWidth: sct.BitWidth}
		if s.set(v, tfhe.ApplyElementType(scalar, t)) {
			changed = true
		}
	}
	return changed
}

// pinOperation applies the solver's key assignment to the operation's still
// unresolved operands and results. Applied before the structural constraints,
// exactly once per sweep.
func pinOperation(s State, view *optimizer.SolutionView, op *tfhe.Operation) (bool, error) {
	if view == nil || !op.HasOID {
		return false, nil
	}
	inKind, outKind := pinKinds(op.Kind)

	inKey, err := view.SecretKey(op.OID, inKind)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	outKey, err := view.SecretKey(op.OID, outKind)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	changed := setUnresolvedTo(s, op.Operands, inKey)
	if setUnresolvedTo(s, op.Results(), outKey) {
		changed = true
	}
	return changed, nil
}

// pinArguments applies the solver's key assignment to circuit arguments
// tagged with an operation id. Argument keys are looked up as result keys of
// the tagged record.
func pinArguments(s State, view *optimizer.SolutionView, c *tfhe.Circuit) error {
	if view == nil {
		return nil
	}
	for _, arg := range c.Body.Args {
		if !arg.HasOID {
			continue
		}
		key, err := view.SecretKey(arg.OID, optimizer.KeyResult)
		if err != nil {
			return fmt.Errorf("argument %d of %s: %w", arg.ArgIndex(), c.Name, err)
		}
		setUnresolvedTo(s, []*tfhe.Value{arg}, key)
	}
	return nil
}
