package clientlib

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/ring"
)

// NoiseDistribution returns the discrete Gaussian sampling parameters for a
// key with the given noise variance, using the usual 6-sigma tail bound.
func NoiseDistribution(variance float64) ring.DiscreteGaussian {
	sigma := math.Sqrt(variance)
	return ring.DiscreteGaussian{Sigma: sigma, Bound: 6 * sigma}
}

// KeygenParametersLiteral returns a lattigo parameters literal sized for the
// ring of the given bootstrap key: the ring degree is derived from the
// output key geometry and the noise distribution from the key variance.
// Modulus selection is left to the key-generation tooling consuming the
// literal.
func (p *ClientParameters) KeygenParametersLiteral(bootstrapKeyID string) (rlwe.ParametersLiteral, error) {
	bsk, ok := p.BootstrapKeys[bootstrapKeyID]
	if !ok {
		return rlwe.ParametersLiteral{}, fmt.Errorf("unknown bootstrap key %q", bootstrapKeyID)
	}
	outKey, ok := p.SecretKeys[bsk.OutputSecretKeyID]
	if !ok {
		return rlwe.ParametersLiteral{}, fmt.Errorf("bootstrap key %q references unknown secret key %q",
			bootstrapKeyID, bsk.OutputSecretKeyID)
	}
	if bsk.GlweDimension == 0 || outKey.Size%bsk.GlweDimension != 0 {
		return rlwe.ParametersLiteral{}, fmt.Errorf("bootstrap key %q: secret key size %d is not a multiple of GLWE dimension %d",
			bootstrapKeyID, outKey.Size, bsk.GlweDimension)
	}
	polySize := outKey.Size / bsk.GlweDimension
	if polySize == 0 || polySize&(polySize-1) != 0 {
		return rlwe.ParametersLiteral{}, fmt.Errorf("bootstrap key %q: polynomial size %d is not a power of two",
			bootstrapKeyID, polySize)
	}

	return rlwe.ParametersLiteral{
		LogN:    bits.Len64(polySize) - 1,
		Xe:      NoiseDistribution(bsk.Variance),
		NTTFlag: true,
	}, nil
}
