// Package tfhe defines the intermediate representation the parametrization
// pass operates on: ciphertext and tensor types whose cryptographic
// parameters may still be unresolved, and the operation graph that carries
// them.
package tfhe

import (
	"fmt"
	"strings"
)

// SecretKey identifies the secret key protecting a ciphertext, together
// with its geometry. The zero value is the "none" key, meaning the
// ciphertext type has not been parametrized yet.
type SecretKey struct {
	parameterized bool

	ID        uint64
	Dimension uint64
	PolySize  uint64
}

// NoneKey returns the unparametrized secret key placeholder.
func NoneKey() SecretKey {
	return SecretKey{}
}

// ParameterizedKey returns a concrete secret key reference.
func ParameterizedKey(id, dimension, polySize uint64) SecretKey {
	return SecretKey{parameterized: true, ID: id, Dimension: dimension, PolySize: polySize}
}

// IsNone reports whether the key is still unresolved.
func (k SecretKey) IsNone() bool {
	return !k.parameterized
}

func (k SecretKey) String() string {
	if k.IsNone() {
		return "sk?"
	}
	return fmt.Sprintf("sk<%d,%d,%d>", k.ID, k.Dimension, k.PolySize)
}

// KeyswitchKeyAttr carries the concrete keyswitch key parameters attached to
// a keyswitch operation once it has been parametrized.
type KeyswitchKeyAttr struct {
	InputKey  SecretKey
	OutputKey SecretKey
	Level     uint64
	BaseLog   uint64
	Variance  float64
}

// BootstrapKeyAttr carries the concrete bootstrap key parameters attached to
// a bootstrap operation once it has been parametrized.
type BootstrapKeyAttr struct {
	InputKey      SecretKey
	OutputKey     SecretKey
	PolySize      uint64
	GlweDimension uint64
	Level         uint64
	BaseLog       uint64
	Variance      float64
}

// Type is the closed set of value types appearing in the graph.
type Type interface {
	fmt.Stringer
	typeNode()
}

// IntegerType is a plaintext integer of a given bit width.
type IntegerType struct {
	Width uint64
}

func (IntegerType) typeNode() {}

func (t IntegerType) String() string {
	return fmt.Sprintf("i%d", t.Width)
}

// IndexType is the type of loop induction variables and tensor indices.
type IndexType struct{}

func (IndexType) typeNode() {}

func (IndexType) String() string { return "index" }

// CiphertextType describes an encrypted scalar: the key protecting it (which
// may be none while unresolved) and the cleartext bit width.
type CiphertextType struct {
	Key      SecretKey
	BitWidth uint64
}

func (CiphertextType) typeNode() {}

func (t CiphertextType) String() string {
	return fmt.Sprintf("glwe<%s,%d>", t.Key, t.BitWidth)
}

// TensorType is a homogeneous container of a scalar element type.
type TensorType struct {
	Shape []int64
	Elem  Type
}

func (TensorType) typeNode() {}

func (t TensorType) String() string {
	dims := make([]string, len(t.Shape))
	for i, d := range t.Shape {
		dims[i] = fmt.Sprint(d)
	}
	return fmt.Sprintf("tensor<%sx%s>", strings.Join(dims, "x"), t.Elem)
}

// NumElements returns the product of the tensor dimensions.
func (t TensorType) NumElements() int64 {
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Tensor returns a tensor type over elem with the given shape.
func Tensor(elem Type, shape ...int64) TensorType {
	return TensorType{Shape: append([]int64(nil), shape...), Elem: elem}
}

// TypeEqual reports structural equality of two types.
func TypeEqual(a, b Type) bool {
	switch at := a.(type) {
	case IntegerType:
		bt, ok := b.(IntegerType)
		return ok && at == bt
	case IndexType:
		_, ok := b.(IndexType)
		return ok
	case CiphertextType:
		bt, ok := b.(CiphertextType)
		return ok && at == bt
	case TensorType:
		bt, ok := b.(TensorType)
		if !ok || len(at.Shape) != len(bt.Shape) {
			return false
		}
		for i := range at.Shape {
			if at.Shape[i] != bt.Shape[i] {
				return false
			}
		}
		return TypeEqual(at.Elem, bt.Elem)
	}
	return false
}

// ScalarCiphertextType returns the ciphertext type of t itself or of the
// element type of a (possibly nested) tensor, if any.
func ScalarCiphertextType(t Type) (CiphertextType, bool) {
	switch tt := t.(type) {
	case CiphertextType:
		return tt, true
	case TensorType:
		return ScalarCiphertextType(tt.Elem)
	}
	return CiphertextType{}, false
}

// IsUnresolved reports whether t is a ciphertext type (or a container of
// ciphertexts) whose key identity has not been assigned yet.
func IsUnresolved(t Type) bool {
	ct, ok := ScalarCiphertextType(t)
	return ok && ct.Key.IsNone()
}

// ApplyElementType rebuilds orig with scalar as its element type, preserving
// the container shape. For scalar orig types the scalar type itself is
// returned.
func ApplyElementType(scalar Type, orig Type) Type {
	if tt, ok := orig.(TensorType); ok {
		return TensorType{Shape: tt.Shape, Elem: ApplyElementType(scalar, tt.Elem)}
	}
	return scalar
}
