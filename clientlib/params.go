// Package clientlib builds the externally visible summary of a parametrized
// circuit: the keys the client must generate and the encoding and shape of
// every circuit input and output. The summary serializes to a strict JSON
// document and hashes deterministically for use as a key-generation cache
// key.
package clientlib

import (
	"fmt"
	"strconv"

	"github.com/RafLaf/concrete/optimizer"
	"github.com/RafLaf/concrete/tfhe"
)

// LweSecretKeyParam describes one secret key to generate.
type LweSecretKeyParam struct {
	Size uint64 `json:"size"`
}

// BootstrapKeyParam describes one bootstrap key to generate.
type BootstrapKeyParam struct {
	InputSecretKeyID  string  `json:"inputSecretKeyID"`
	OutputSecretKeyID string  `json:"outputSecretKeyID"`
	Level             uint64  `json:"level"`
	BaseLog           uint64  `json:"baseLog"`
	GlweDimension     uint64  `json:"glweDimension"`
	Variance          float64 `json:"variance"`
}

// KeyswitchKeyParam describes one keyswitch key to generate.
type KeyswitchKeyParam struct {
	InputSecretKeyID  string  `json:"inputSecretKeyID"`
	OutputSecretKeyID string  `json:"outputSecretKeyID"`
	Level             uint64  `json:"level"`
	BaseLog           uint64  `json:"baseLog"`
	Variance          float64 `json:"variance"`
}

// Encoding is the cleartext encoding of an encrypted gate.
type Encoding struct {
	Precision uint64 `json:"precision"`
}

// EncryptionGate describes how a gate's values are encrypted.
type EncryptionGate struct {
	SecretKeyID string   `json:"secretKeyID"`
	Variance    float64  `json:"variance"`
	Encoding    Encoding `json:"encoding"`
}

// CircuitGateShape is the cleartext shape of a gate.
type CircuitGateShape struct {
	// Width of the scalar value.
	Width uint64 `json:"width"`
	// Dimensions of the tensor, empty if scalar.
	Dimensions []int64 `json:"dimensions"`
	// Number of scalar elements in the gate's buffer.
	Size uint64 `json:"size"`
}

// CircuitGate is one input or output of the circuit.
type CircuitGate struct {
	Encryption *EncryptionGate  `json:"encryption,omitempty"`
	Shape      CircuitGateShape `json:"shape"`
}

// ClientParameters is the full key and gate summary of one circuit.
// Constructed once per compiled circuit and immutable afterwards.
type ClientParameters struct {
	SecretKeys    map[string]LweSecretKeyParam `json:"secretKeys"`
	BootstrapKeys map[string]BootstrapKeyParam `json:"bootstrapKeys"`
	KeyswitchKeys map[string]KeyswitchKeyParam `json:"keyswitchKeys"`
	Inputs        []CircuitGate                `json:"inputs"`
	Outputs       []CircuitGate                `json:"outputs"`
	FunctionName  string                       `json:"functionName"`
}

// Equal reports structural equality. Empty and nil maps or slices compare
// equal.
func (p *ClientParameters) Equal(o *ClientParameters) bool {
	if p.FunctionName != o.FunctionName ||
		len(p.SecretKeys) != len(o.SecretKeys) ||
		len(p.BootstrapKeys) != len(o.BootstrapKeys) ||
		len(p.KeyswitchKeys) != len(o.KeyswitchKeys) ||
		len(p.Inputs) != len(o.Inputs) ||
		len(p.Outputs) != len(o.Outputs) {
		return false
	}
	for id, k := range p.SecretKeys {
		if ok2, found := o.SecretKeys[id]; !found || k != ok2 {
			return false
		}
	}
	for id, k := range p.BootstrapKeys {
		if ok2, found := o.BootstrapKeys[id]; !found || k != ok2 {
			return false
		}
	}
	for id, k := range p.KeyswitchKeys {
		if ok2, found := o.KeyswitchKeys[id]; !found || k != ok2 {
			return false
		}
	}
	for i := range p.Inputs {
		if !gateEqual(p.Inputs[i], o.Inputs[i]) {
			return false
		}
	}
	for i := range p.Outputs {
		if !gateEqual(p.Outputs[i], o.Outputs[i]) {
			return false
		}
	}
	return true
}

func gateEqual(a, b CircuitGate) bool {
	if (a.Encryption == nil) != (b.Encryption == nil) {
		return false
	}
	if a.Encryption != nil && *a.Encryption != *b.Encryption {
		return false
	}
	if a.Shape.Width != b.Shape.Width || a.Shape.Size != b.Shape.Size ||
		len(a.Shape.Dimensions) != len(b.Shape.Dimensions) {
		return false
	}
	for i := range a.Shape.Dimensions {
		if a.Shape.Dimensions[i] != b.Shape.Dimensions[i] {
			return false
		}
	}
	return true
}

// Build assembles the client parameters of a fully parametrized circuit.
//
// The key maps cover every key of the solution (key generation needs the
// complete set); conversion keyswitch keys are folded into the keyswitch map
// under a "conv" prefix. Encryption variances per secret key come from
// variances; absent entries default to 0, as variance selection belongs to
// the external optimizer.
func Build(c *tfhe.Circuit, solution *optimizer.CircuitSolution, variances map[uint64]float64) (*ClientParameters, error) {
	p := &ClientParameters{
		SecretKeys:    map[string]LweSecretKeyParam{},
		BootstrapKeys: map[string]BootstrapKeyParam{},
		KeyswitchKeys: map[string]KeyswitchKeyParam{},
		FunctionName:  c.Name,
	}

	keyID := func(id uint64) string { return strconv.FormatUint(id, 10) }

	for _, k := range solution.CircuitKeys.SecretKeys {
		p.SecretKeys[keyID(k.Identifier)] = LweSecretKeyParam{Size: k.GlweDimension * k.PolynomialSize}
	}
	for _, k := range solution.CircuitKeys.BootstrapKeys {
		p.BootstrapKeys[keyID(k.Identifier)] = BootstrapKeyParam{
			InputSecretKeyID:  keyID(k.InputKey.Identifier),
			OutputSecretKeyID: keyID(k.OutputKey.Identifier),
			Level:             k.BrDecomposition.Level,
			BaseLog:           k.BrDecomposition.BaseLog,
			GlweDimension:     k.OutputKey.GlweDimension,
			Variance:          k.Variance,
		}
	}
	for _, k := range solution.CircuitKeys.KeyswitchKeys {
		p.KeyswitchKeys[keyID(k.Identifier)] = KeyswitchKeyParam{
			InputSecretKeyID:  keyID(k.InputKey.Identifier),
			OutputSecretKeyID: keyID(k.OutputKey.Identifier),
			Level:             k.KsDecomposition.Level,
			BaseLog:           k.KsDecomposition.BaseLog,
			Variance:          k.Variance,
		}
	}
	for _, k := range solution.CircuitKeys.ConversionKeyswitchKeys {
		p.KeyswitchKeys["conv"+keyID(k.Identifier)] = KeyswitchKeyParam{
			InputSecretKeyID:  keyID(k.InputKey.Identifier),
			OutputSecretKeyID: keyID(k.OutputKey.Identifier),
			Level:             k.KsDecomposition.Level,
			BaseLog:           k.KsDecomposition.BaseLog,
			Variance:          k.Variance,
		}
	}

	for _, arg := range c.Body.Args {
		gate, err := gateFor(arg.Type(), variances)
		if err != nil {
			return nil, fmt.Errorf("input %d of %s: %w", arg.ArgIndex(), c.Name, err)
		}
		p.Inputs = append(p.Inputs, gate)
	}
	for i, ret := range c.Returns() {
		gate, err := gateFor(ret.Type(), variances)
		if err != nil {
			return nil, fmt.Errorf("output %d of %s: %w", i, c.Name, err)
		}
		p.Outputs = append(p.Outputs, gate)
	}
	return p, nil
}

// gateFor derives the gate description of a circuit argument or result type.
func gateFor(t tfhe.Type, variances map[uint64]float64) (CircuitGate, error) {
	var gate CircuitGate

	scalar := t
	if tt, ok := t.(tfhe.TensorType); ok {
		gate.Shape.Dimensions = append([]int64(nil), tt.Shape...)
		gate.Shape.Size = uint64(tt.NumElements())
		scalar = tt.Elem
	} else {
		gate.Shape.Size = 1
	}

	switch st := scalar.(type) {
	case tfhe.CiphertextType:
		if st.Key.IsNone() {
			return gate, fmt.Errorf("gate type %s is not parametrized", t)
		}
		gate.Shape.Width = st.BitWidth
		gate.Encryption = &EncryptionGate{
			SecretKeyID: strconv.FormatUint(st.Key.ID, 10),
			Variance:    variances[st.Key.ID],
			Encoding:    Encoding{Precision: st.BitWidth},
		}
	case tfhe.IntegerType:
		gate.Shape.Width = st.Width
	case tfhe.IndexType:
		gate.Shape.Width = 64
	default:
		return gate, fmt.Errorf("unsupported gate type %s", t)
	}
	return gate, nil
}
