// Package infer implements the dataflow type resolution of the
// parametrization pass: a monotone fixpoint analysis that assigns a concrete
// ciphertext type to every value of a circuit, combining per-kind structural
// constraints with the key assignment of the optimizer's circuit solution.
package infer

import (
	"github.com/RafLaf/concrete/tfhe"
)

// State is the type assignment computed by the analysis, keyed by value
// identity. Values without an entry keep their IR type. The analysis only
// ever refines entries (unresolved fields become concrete, never the other
// way around), so the state converges.
type State map[*tfhe.Value]tfhe.Type

// TypeOf returns the best known type of v.
func (s State) TypeOf(v *tfhe.Value) tfhe.Type {
	if t, ok := s[v]; ok {
		return t
	}
	return v.Type()
}

// set records a refined type for v and reports whether it changed.
func (s State) set(v *tfhe.Value, t tfhe.Type) bool {
	if tfhe.TypeEqual(s.TypeOf(v), t) {
		return false
	}
	s[v] = t
	return true
}

// adoptElem returns dst with its ciphertext element replaced by the resolved
// element of src, preserving dst's container shape.
func adoptElem(src, dst tfhe.Type) (tfhe.Type, bool) {
	sct, ok := tfhe.ScalarCiphertextType(src)
	if !ok || sct.Key.IsNone() {
		return dst, false
	}
	return tfhe.ApplyElementType(sct, dst), true
}

// unify applies a type-equality pair: whichever side is still unresolved
// adopts the other side's ciphertext element. Two concrete but different
// types are left alone; that disagreement is the signal the rewriter turns
// into an explicit conversion.
func unify(s State, a, b *tfhe.Value) bool {
	ta, tb := s.TypeOf(a), s.TypeOf(b)
	if tfhe.IsUnresolved(ta) && !tfhe.IsUnresolved(tb) {
		if t, ok := adoptElem(tb, ta); ok {
			return s.set(a, t)
		}
		return false
	}
	if tfhe.IsUnresolved(tb) && !tfhe.IsUnresolved(ta) {
		if t, ok := adoptElem(ta, tb); ok {
			return s.set(b, t)
		}
		return false
	}
	return false
}

// eraseElemKey returns t with the key identity of its ciphertext element
// dropped, keeping shape and bit width. Non-ciphertext types pass through.
func eraseElemKey(t tfhe.Type) tfhe.Type {
	sct, ok := tfhe.ScalarCiphertextType(t)
	if !ok {
		return t
	}
	return tfhe.ApplyElementType(tfhe.CiphertextType{Key: tfhe.NoneKey(), BitWidth: sct.BitWidth}, t)
}
