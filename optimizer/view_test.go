package optimizer

import (
	"errors"
	"testing"
)

func testSolution() *CircuitSolution {
	k0 := SecretLweKey{Identifier: 0, GlweDimension: 1, PolynomialSize: 512}
	k1 := SecretLweKey{Identifier: 1, GlweDimension: 2, PolynomialSize: 1024}
	return &CircuitSolution{
		CircuitKeys: CircuitKeys{
			SecretKeys: []SecretLweKey{k0, k1},
			KeyswitchKeys: []KeySwitchKey{{
				Identifier: 0, InputKey: k1, OutputKey: k0,
				KsDecomposition: KsDecompositionParameters{Level: 5, BaseLog: 3},
				Variance:        1e-20,
			}},
			BootstrapKeys: []BootstrapKey{{
				Identifier: 0, InputKey: k0, OutputKey: k1,
				BrDecomposition: KsDecompositionParameters{Level: 2, BaseLog: 15},
				Variance:        1e-32,
			}},
			ConversionKeyswitchKeys: []ConversionKeySwitchKey{{
				Identifier: 0, InputKey: k0, OutputKey: k1,
				KsDecomposition: KsDecompositionParameters{Level: 3, BaseLog: 6},
				Variance:        1e-24,
			}},
		},
		InstructionsKeys: []InstructionKeys{
			{InputKey: 0, OutputKey: 1, TluKeyswitchKey: 0, TluBootstrapKey: 0, ExtraConversionKeys: []uint64{0}},
		},
	}
}

func TestSecretKeyLookup(t *testing.T) {
	v := NewSolutionView(testSolution())

	cases := []struct {
		kind KeyKind
		want uint64
	}{
		{KeyOperand, 0},
		{KeyResult, 1},
		{KeyKskIn, 1},
		{KeyKskOut, 0},
		{KeyBskIn, 0},
		{KeyBskOut, 1},
		{KeyCkskIn, 0},
		{KeyCkskOut, 1},
	}
	for _, c := range cases {
		k, err := v.SecretKey(0, c.kind)
		if err != nil {
			t.Fatalf("SecretKey(0, %s): %v", c.kind, err)
		}
		if k.Identifier != c.want {
			t.Errorf("SecretKey(0, %s) = key %d, want %d", c.kind, k.Identifier, c.want)
		}
	}
}

func TestLookupOutOfRange(t *testing.T) {
	v := NewSolutionView(testSolution())

	if _, err := v.InstructionKeys(1); err == nil {
		t.Error("oid past the instruction table accepted")
	}
	if _, err := v.InstructionKeys(-1); err == nil {
		t.Error("negative oid accepted")
	}
	if _, err := v.SecretKey(7, KeyOperand); err == nil {
		t.Error("secret key lookup for unknown oid accepted")
	}
}

func TestConversionKeyBetween(t *testing.T) {
	v := NewSolutionView(testSolution())

	k, err := v.ConversionKeyBetween(0, 1)
	if err != nil {
		t.Fatalf("ConversionKeyBetween(0, 1): %v", err)
	}
	if k.Identifier != 0 {
		t.Errorf("wrong conversion key %d", k.Identifier)
	}

	_, err = v.ConversionKeyBetween(1, 0)
	if !errors.Is(err, ErrMissingConversionKey) {
		t.Errorf("missing direction: got %v, want ErrMissingConversionKey", err)
	}
}

func TestConversionKeyWithoutExtras(t *testing.T) {
	s := testSolution()
	s.InstructionsKeys[0].ExtraConversionKeys = nil
	v := NewSolutionView(s)

	_, err := v.ConversionKey(0)
	if !errors.Is(err, ErrMissingConversionKey) {
		t.Errorf("got %v, want ErrMissingConversionKey", err)
	}
	if _, err := v.SecretKey(0, KeyCkskIn); !errors.Is(err, ErrMissingConversionKey) {
		t.Errorf("cksk secret lookup: got %v, want ErrMissingConversionKey", err)
	}
}

func TestGLWEKeyFlattening(t *testing.T) {
	k := GLWEKey(SecretLweKey{Identifier: 1, GlweDimension: 2, PolynomialSize: 1024})
	if k.IsNone() {
		t.Fatal("flattened key is unresolved")
	}
	if k.ID != 1 || k.Dimension != 2048 || k.PolySize != 1 {
		t.Errorf("flattened key = %+v, want id 1, dimension 2048, poly size 1", k)
	}
}

func TestKeyAttrBuilders(t *testing.T) {
	s := testSolution()

	ksk := KeyswitchKeyAttrOf(s.CircuitKeys.KeyswitchKeys[0])
	if ksk.InputKey.ID != 1 || ksk.OutputKey.ID != 0 || ksk.Level != 5 || ksk.BaseLog != 3 {
		t.Errorf("keyswitch attr = %+v", ksk)
	}

	bsk := BootstrapKeyAttrOf(s.CircuitKeys.BootstrapKeys[0])
	if bsk.PolySize != 1024 || bsk.GlweDimension != 2 {
		t.Errorf("bootstrap geometry = poly %d, glwe %d, want output key's 1024/2", bsk.PolySize, bsk.GlweDimension)
	}
	if bsk.InputKey.ID != 0 || bsk.OutputKey.ID != 1 || bsk.Level != 2 || bsk.BaseLog != 15 {
		t.Errorf("bootstrap attr = %+v", bsk)
	}

	cksk := ConversionKeyAttrOf(s.CircuitKeys.ConversionKeyswitchKeys[0])
	if cksk.InputKey.ID != 0 || cksk.OutputKey.ID != 1 || cksk.Level != 3 || cksk.BaseLog != 6 {
		t.Errorf("conversion attr = %+v", cksk)
	}
}
