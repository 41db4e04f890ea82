package optimizer

import (
	"errors"
	"fmt"

	"github.com/RafLaf/concrete/tfhe"
)

// ErrMissingConversionKey is returned when a required conversion keyswitch
// key is absent from the solution. This indicates an inconsistency between
// the optimizer and the compiler, not a user error.
var ErrMissingConversionKey = errors.New("missing conversion keyswitch key")

// KeyKind selects which key of an instruction record a lookup refers to.
type KeyKind int

const (
	KeyOperand KeyKind = iota
	KeyResult
	KeyKskIn
	KeyKskOut
	KeyCkskIn
	KeyCkskOut
	KeyBskIn
	KeyBskOut
)

var keyKindNames = map[KeyKind]string{
	KeyOperand: "operand",
	KeyResult:  "result",
	KeyKskIn:   "ksk_in",
	KeyKskOut:  "ksk_out",
	KeyCkskIn:  "cksk_in",
	KeyCkskOut: "cksk_out",
	KeyBskIn:   "bsk_in",
	KeyBskOut:  "bsk_out",
}

func (k KeyKind) String() string {
	if s, ok := keyKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("keykind(%d)", int(k))
}

// SolutionView is a read-only view over a circuit solution. All lookups are
// pure functions of (operation id, key kind); the view holds no state of its
// own.
type SolutionView struct {
	solution *CircuitSolution
}

// NewSolutionView wraps a circuit solution.
func NewSolutionView(s *CircuitSolution) *SolutionView {
	return &SolutionView{solution: s}
}

// InstructionKeys returns the key assignment for the given operation id.
func (v *SolutionView) InstructionKeys(oid int64) (InstructionKeys, error) {
	if oid < 0 || oid >= int64(len(v.solution.InstructionsKeys)) {
		return InstructionKeys{}, fmt.Errorf("operation id %d out of range (%d instruction records)",
			oid, len(v.solution.InstructionsKeys))
	}
	return v.solution.InstructionsKeys[oid], nil
}

// KeyswitchKey returns the TLU keyswitch key of the operation tagged oid.
func (v *SolutionView) KeyswitchKey(oid int64) (KeySwitchKey, error) {
	ik, err := v.InstructionKeys(oid)
	if err != nil {
		return KeySwitchKey{}, err
	}
	if ik.TluKeyswitchKey >= uint64(len(v.solution.CircuitKeys.KeyswitchKeys)) {
		return KeySwitchKey{}, fmt.Errorf("keyswitch key %d of operation id %d out of range", ik.TluKeyswitchKey, oid)
	}
	return v.solution.CircuitKeys.KeyswitchKeys[ik.TluKeyswitchKey], nil
}

// BootstrapKey returns the TLU bootstrap key of the operation tagged oid.
func (v *SolutionView) BootstrapKey(oid int64) (BootstrapKey, error) {
	ik, err := v.InstructionKeys(oid)
	if err != nil {
		return BootstrapKey{}, err
	}
	if ik.TluBootstrapKey >= uint64(len(v.solution.CircuitKeys.BootstrapKeys)) {
		return BootstrapKey{}, fmt.Errorf("bootstrap key %d of operation id %d out of range", ik.TluBootstrapKey, oid)
	}
	return v.solution.CircuitKeys.BootstrapKeys[ik.TluBootstrapKey], nil
}

// ConversionKey returns the first extra conversion key of the operation
// tagged oid.
func (v *SolutionView) ConversionKey(oid int64) (ConversionKeySwitchKey, error) {
	ik, err := v.InstructionKeys(oid)
	if err != nil {
		return ConversionKeySwitchKey{}, err
	}
	if len(ik.ExtraConversionKeys) == 0 {
		return ConversionKeySwitchKey{}, fmt.Errorf("operation id %d: %w: no extra conversion keys assigned", oid, ErrMissingConversionKey)
	}
	id := ik.ExtraConversionKeys[0]
	if id >= uint64(len(v.solution.CircuitKeys.ConversionKeyswitchKeys)) {
		return ConversionKeySwitchKey{}, fmt.Errorf("conversion key %d of operation id %d out of range", id, oid)
	}
	return v.solution.CircuitKeys.ConversionKeyswitchKeys[id], nil
}

// ConversionKeyBetween returns the conversion keyswitch key moving values
// from the secret key fromID to the secret key toID.
func (v *SolutionView) ConversionKeyBetween(fromID, toID uint64) (ConversionKeySwitchKey, error) {
	for _, k := range v.solution.CircuitKeys.ConversionKeyswitchKeys {
		if k.InputKey.Identifier == fromID && k.OutputKey.Identifier == toID {
			return k, nil
		}
	}
	return ConversionKeySwitchKey{}, fmt.Errorf("%w: from key %d to key %d", ErrMissingConversionKey, fromID, toID)
}

// SecretKey returns the secret key of the given kind for the operation
// tagged oid.
func (v *SolutionView) SecretKey(oid int64, kind KeyKind) (SecretLweKey, error) {
	ik, err := v.InstructionKeys(oid)
	if err != nil {
		return SecretLweKey{}, err
	}

	secret := func(id uint64) (SecretLweKey, error) {
		if id >= uint64(len(v.solution.CircuitKeys.SecretKeys)) {
			return SecretLweKey{}, fmt.Errorf("secret key %d of operation id %d out of range", id, oid)
		}
		return v.solution.CircuitKeys.SecretKeys[id], nil
	}

	switch kind {
	case KeyOperand:
		return secret(ik.InputKey)
	case KeyResult:
		return secret(ik.OutputKey)
	case KeyKskIn, KeyKskOut:
		ksk, err := v.KeyswitchKey(oid)
		if err != nil {
			return SecretLweKey{}, err
		}
		if kind == KeyKskIn {
			return ksk.InputKey, nil
		}
		return ksk.OutputKey, nil
	case KeyBskIn, KeyBskOut:
		bsk, err := v.BootstrapKey(oid)
		if err != nil {
			return SecretLweKey{}, err
		}
		if kind == KeyBskIn {
			return bsk.InputKey, nil
		}
		return bsk.OutputKey, nil
	case KeyCkskIn, KeyCkskOut:
		cksk, err := v.ConversionKey(oid)
		if err != nil {
			return SecretLweKey{}, err
		}
		if kind == KeyCkskIn {
			return cksk.InputKey, nil
		}
		return cksk.OutputKey, nil
	}
	return SecretLweKey{}, fmt.Errorf("unknown key kind %v", kind)
}

// GLWEKey flattens a solution secret key into the IR key reference. The LWE
// dimension is the product of the GLWE dimension and the polynomial size.
func GLWEKey(k SecretLweKey) tfhe.SecretKey {
	return tfhe.ParameterizedKey(k.Identifier, k.GlweDimension*k.PolynomialSize, 1)
}

// KeyswitchKeyAttrOf builds the IR attribute of a keyswitch key.
func KeyswitchKeyAttrOf(k KeySwitchKey) tfhe.KeyswitchKeyAttr {
	return tfhe.KeyswitchKeyAttr{
		InputKey:  GLWEKey(k.InputKey),
		OutputKey: GLWEKey(k.OutputKey),
		Level:     k.KsDecomposition.Level,
		BaseLog:   k.KsDecomposition.BaseLog,
		Variance:  k.Variance,
	}
}

// ConversionKeyAttrOf builds the IR attribute of a conversion keyswitch key.
func ConversionKeyAttrOf(k ConversionKeySwitchKey) tfhe.KeyswitchKeyAttr {
	return tfhe.KeyswitchKeyAttr{
		InputKey:  GLWEKey(k.InputKey),
		OutputKey: GLWEKey(k.OutputKey),
		Level:     k.KsDecomposition.Level,
		BaseLog:   k.KsDecomposition.BaseLog,
		Variance:  k.Variance,
	}
}

// BootstrapKeyAttrOf builds the IR attribute of a bootstrap key. The
// polynomial size and GLWE dimension are those of the output key.
func BootstrapKeyAttrOf(k BootstrapKey) tfhe.BootstrapKeyAttr {
	return tfhe.BootstrapKeyAttr{
		InputKey:      GLWEKey(k.InputKey),
		OutputKey:     GLWEKey(k.OutputKey),
		PolySize:      k.OutputKey.PolynomialSize,
		GlweDimension: k.OutputKey.GlweDimension,
		Level:         k.BrDecomposition.Level,
		BaseLog:       k.BrDecomposition.BaseLog,
		Variance:      k.Variance,
	}
}

// KeyswitchKeyAttrFor returns the IR keyswitch attribute of the operation
// tagged oid.
func (v *SolutionView) KeyswitchKeyAttrFor(oid int64) (tfhe.KeyswitchKeyAttr, error) {
	ksk, err := v.KeyswitchKey(oid)
	if err != nil {
		return tfhe.KeyswitchKeyAttr{}, err
	}
	return KeyswitchKeyAttrOf(ksk), nil
}

// BootstrapKeyAttrFor returns the IR bootstrap attribute of the operation
// tagged oid.
func (v *SolutionView) BootstrapKeyAttrFor(oid int64) (tfhe.BootstrapKeyAttr, error) {
	bsk, err := v.BootstrapKey(oid)
	if err != nil {
		return tfhe.BootstrapKeyAttr{}, err
	}
	return BootstrapKeyAttrOf(bsk), nil
}
