package infer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RafLaf/concrete/optimizer"
	"github.com/RafLaf/concrete/tfhe"
)

// Two partitions: key 0 for linear arithmetic, key 1 for table lookups.
func twoKeySolution() *optimizer.CircuitSolution {
	k0 := optimizer.SecretLweKey{Identifier: 0, GlweDimension: 1, PolynomialSize: 512}
	k1 := optimizer.SecretLweKey{Identifier: 1, GlweDimension: 1, PolynomialSize: 1024}
	return &optimizer.CircuitSolution{
		CircuitKeys: optimizer.CircuitKeys{
			SecretKeys: []optimizer.SecretLweKey{k0, k1},
			KeyswitchKeys: []optimizer.KeySwitchKey{{
				Identifier: 0, InputKey: k1, OutputKey: k1,
				KsDecomposition: optimizer.KsDecompositionParameters{Level: 4, BaseLog: 4},
			}},
			BootstrapKeys: []optimizer.BootstrapKey{{
				Identifier: 0, InputKey: k1, OutputKey: k1,
				BrDecomposition: optimizer.KsDecompositionParameters{Level: 2, BaseLog: 15},
			}},
		},
		InstructionsKeys: []optimizer.InstructionKeys{
			{InputKey: 0, OutputKey: 0},
			{InputKey: 1, OutputKey: 1, TluKeyswitchKey: 0, TluBootstrapKey: 0},
		},
	}
}

func key0CT(bits uint64) tfhe.CiphertextType {
	return tfhe.CiphertextType{Key: tfhe.ParameterizedKey(0, 512, 1), BitWidth: bits}
}

func key1CT(bits uint64) tfhe.CiphertextType {
	return tfhe.CiphertextType{Key: tfhe.ParameterizedKey(1, 1024, 1), BitWidth: bits}
}

func TestResolveChain(t *testing.T) {
	ct := tfhe.CiphertextType{Key: tfhe.NoneKey(), BitWidth: 4}
	c := tfhe.NewCircuit("chain")
	a := c.AddArgWithOID(ct, 0)
	b := c.AddArgWithOID(ct, 0)

	add := c.AppendOp(c.Body, tfhe.KindAdd, []*tfhe.Value{a, b}, ct)
	add.SetOID(0)
	neg := c.AppendOp(c.Body, tfhe.KindNeg, []*tfhe.Value{add.Result(0)}, ct)
	c.AppendOp(c.Body, tfhe.KindReturn, []*tfhe.Value{neg.Result(0)})

	r := NewResolver(optimizer.NewSolutionView(twoKeySolution()))
	state, err := r.Resolve(c)
	require.NoError(t, err)

	want := key0CT(4)
	assert.True(t, tfhe.TypeEqual(state.TypeOf(a), want))
	assert.True(t, tfhe.TypeEqual(state.TypeOf(add.Result(0)), want))
	// The untagged negation inherits its operand's key structurally.
	assert.True(t, tfhe.TypeEqual(state.TypeOf(neg.Result(0)), want))
	require.NoError(t, CheckResolved(c, state))
}

func TestResolveKeepsSolverDisagreement(t *testing.T) {
	ct := tfhe.CiphertextType{Key: tfhe.NoneKey(), BitWidth: 4}
	c := tfhe.NewCircuit("disagree")
	a := c.AddArgWithOID(ct, 0)

	add := c.AppendOp(c.Body, tfhe.KindAdd, []*tfhe.Value{a, a}, ct)
	add.SetOID(0)
	neg := c.AppendOp(c.Body, tfhe.KindNeg, []*tfhe.Value{add.Result(0)}, ct)
	neg.SetOID(1)
	c.AppendOp(c.Body, tfhe.KindReturn, []*tfhe.Value{neg.Result(0)})

	r := NewResolver(optimizer.NewSolutionView(twoKeySolution()))
	state, err := r.Resolve(c)
	require.NoError(t, err)

	// The producer keeps key 0, the consumer's result keeps key 1; the
	// structural tie between them stays unsatisfied.
	assert.True(t, tfhe.TypeEqual(state.TypeOf(add.Result(0)), key0CT(4)))
	assert.True(t, tfhe.TypeEqual(state.TypeOf(neg.Result(0)), key1CT(4)))

	// The consumer demands key 1 on its operand, which the rewriter will
	// satisfy with a conversion.
	required, err := r.RequiredOperandTypes(neg, state)
	require.NoError(t, err)
	require.Len(t, required, 1)
	assert.True(t, tfhe.TypeEqual(required[0], key1CT(4)))
}

func TestResolveTensorBroadcast(t *testing.T) {
	ct := tfhe.CiphertextType{Key: tfhe.NoneKey(), BitWidth: 5}
	c := tfhe.NewCircuit("tensors")
	a := c.AddArgWithOID(tfhe.Tensor(ct, 2, 3), 0)

	neg := c.AppendOp(c.Body, tfhe.KindBatchedNeg, []*tfhe.Value{a}, tfhe.Tensor(ct, 2, 3))
	collapse := c.AppendOp(c.Body, tfhe.KindCollapseShape, []*tfhe.Value{neg.Result(0)}, tfhe.Tensor(ct, 6))
	c.AppendOp(c.Body, tfhe.KindReturn, []*tfhe.Value{collapse.Result(0)})

	r := NewResolver(optimizer.NewSolutionView(twoKeySolution()))
	state, err := r.Resolve(c)
	require.NoError(t, err)

	assert.True(t, tfhe.TypeEqual(state.TypeOf(a), tfhe.Tensor(key0CT(5), 2, 3)))
	assert.True(t, tfhe.TypeEqual(state.TypeOf(collapse.Result(0)), tfhe.Tensor(key0CT(5), 6)))
	require.NoError(t, CheckResolved(c, state))
}

func TestResolveLoop(t *testing.T) {
	ct := tfhe.CiphertextType{Key: tfhe.NoneKey(), BitWidth: 4}
	c := tfhe.NewCircuit("loop")
	a := c.AddArgWithOID(ct, 0)

	body := c.NewBlock(tfhe.IndexType{}, ct)
	lut := c.AppendOp(body, tfhe.KindConstant, nil, tfhe.Tensor(tfhe.IntegerType{Width: 64}, 1024))
	lut.ConstValues = make([]int64, 1024)
	bs := c.AppendOp(body, tfhe.KindBootstrap, []*tfhe.Value{body.Args[1], lut.Result(0)}, ct)
	bs.SetOID(1)
	yield := c.AppendOp(body, tfhe.KindYield, []*tfhe.Value{bs.Result(0)})

	loop := c.AppendFor(c.Body, []*tfhe.Value{a}, body, ct)
	c.AppendOp(c.Body, tfhe.KindReturn, []*tfhe.Value{loop.Result(0)})

	r := NewResolver(optimizer.NewSolutionView(twoKeySolution()))
	state, err := r.Resolve(c)
	require.NoError(t, err)
	require.NoError(t, CheckResolved(c, state))

	// The bootstrap pins the carried region argument to the lookup key; the
	// loop result inherits the init's key. Both boundaries need a conversion.
	assert.True(t, tfhe.TypeEqual(state.TypeOf(body.Args[1]), key1CT(4)))
	assert.True(t, tfhe.TypeEqual(state.TypeOf(loop.Result(0)), key0CT(4)))

	required, err := r.RequiredOperandTypes(loop, state)
	require.NoError(t, err)
	assert.True(t, tfhe.TypeEqual(required[0], key1CT(4)), "loop init must enter under the region key")

	required, err = r.RequiredOperandTypes(yield, state)
	require.NoError(t, err)
	assert.True(t, tfhe.TypeEqual(required[0], key0CT(4)), "yield must leave under the result key")
}

func TestResolveRejectsFrontier(t *testing.T) {
	ct := tfhe.CiphertextType{Key: tfhe.NoneKey(), BitWidth: 4}
	c := tfhe.NewCircuit("frontier")
	a := c.AddArgWithOID(ct, 0)
	pf := c.AppendOp(c.Body, tfhe.KindPartitionFrontier, []*tfhe.Value{a}, ct)
	c.AppendOp(c.Body, tfhe.KindReturn, []*tfhe.Value{pf.Result(0)})

	r := NewResolver(optimizer.NewSolutionView(twoKeySolution()))
	_, err := r.Resolve(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "materialized")
}

func TestResolveRejectsUnknownKind(t *testing.T) {
	ct := tfhe.CiphertextType{Key: tfhe.NoneKey(), BitWidth: 4}
	c := tfhe.NewCircuit("unknown")
	a := c.AddArg(ct)
	c.AppendOp(c.Body, tfhe.Kind(99), []*tfhe.Value{a}, ct)

	r := NewResolver(nil)
	_, err := r.Resolve(c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedKind))
}

func TestCheckResolvedReportsLeftovers(t *testing.T) {
	ct := tfhe.CiphertextType{Key: tfhe.NoneKey(), BitWidth: 4}
	c := tfhe.NewCircuit("leftover")
	a := c.AddArg(ct) // no oid, nothing pins it
	neg := c.AppendOp(c.Body, tfhe.KindNeg, []*tfhe.Value{a}, ct)
	c.AppendOp(c.Body, tfhe.KindReturn, []*tfhe.Value{neg.Result(0)})

	r := NewResolver(nil)
	state, err := r.Resolve(c)
	require.NoError(t, err)
	assert.Error(t, CheckResolved(c, state))
}

func TestResolveOrderIndependence(t *testing.T) {
	// A consumer placed textually before its producer still resolves: the
	// traversal follows def-use order, not block order.
	ct := tfhe.CiphertextType{Key: tfhe.NoneKey(), BitWidth: 4}
	c := tfhe.NewCircuit("reordered")
	a := c.AddArgWithOID(ct, 0)

	add := c.AppendOp(c.Body, tfhe.KindAdd, []*tfhe.Value{a, a}, ct)
	add.SetOID(0)
	neg := c.AppendOp(c.Body, tfhe.KindNeg, []*tfhe.Value{add.Result(0)}, ct)
	c.AppendOp(c.Body, tfhe.KindReturn, []*tfhe.Value{neg.Result(0)})

	// Move the negation in front of the addition.
	c.Body.Remove(neg)
	c.Body.InsertAfter(neg, nil)

	r := NewResolver(optimizer.NewSolutionView(twoKeySolution()))
	state, err := r.Resolve(c)
	require.NoError(t, err)
	assert.True(t, tfhe.TypeEqual(state.TypeOf(neg.Result(0)), key0CT(4)))
}
