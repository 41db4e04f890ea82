// Package optimizer models the circuit solution computed by the external
// numeric optimizer: the concrete keys of a circuit and the per-instruction
// key assignment. The solution is consumed read-only by the parametrization
// pass.
package optimizer

// SecretLweKey describes one secret key of the solution.
type SecretLweKey struct {
	Identifier     uint64
	GlweDimension  uint64
	PolynomialSize uint64
}

// KsDecompositionParameters are the gadget decomposition parameters of a
// keyswitch or bootstrap key.
type KsDecompositionParameters struct {
	Level   uint64
	BaseLog uint64
}

// BootstrapKey describes one bootstrap key of the solution.
type BootstrapKey struct {
	Identifier      uint64
	InputKey        SecretLweKey
	OutputKey       SecretLweKey
	BrDecomposition KsDecompositionParameters
	Variance        float64
}

// KeySwitchKey describes one keyswitch key of the solution.
type KeySwitchKey struct {
	Identifier      uint64
	InputKey        SecretLweKey
	OutputKey       SecretLweKey
	KsDecomposition KsDecompositionParameters
	Variance        float64
}

// ConversionKeySwitchKey describes a keyswitch key moving values between two
// different logical keys, i.e. across partition boundaries.
type ConversionKeySwitchKey struct {
	Identifier      uint64
	InputKey        SecretLweKey
	OutputKey       SecretLweKey
	KsDecomposition KsDecompositionParameters
	Variance        float64
}

// InstructionKeys is the key assignment for a single operation id.
type InstructionKeys struct {
	InputKey            uint64
	OutputKey           uint64
	TluKeyswitchKey     uint64
	TluBootstrapKey     uint64
	ExtraConversionKeys []uint64
}

// CircuitKeys collects every key of the solution, indexable by identifier.
type CircuitKeys struct {
	SecretKeys              []SecretLweKey
	KeyswitchKeys           []KeySwitchKey
	BootstrapKeys           []BootstrapKey
	ConversionKeyswitchKeys []ConversionKeySwitchKey
}

// CircuitSolution is the optimizer's output for one circuit.
type CircuitSolution struct {
	CircuitKeys      CircuitKeys
	InstructionsKeys []InstructionKeys
}
