package clientlib

import (
	"encoding/binary"
	"hash"
	"math"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// Hash returns a deterministic 64-bit digest of the parameters, suitable as
// a cache key for key-generation artifacts. Key maps contribute in sorted
// key order, so the digest is independent of map iteration order; the input
// and output gate sequences contribute in order, so reordering gates changes
// the digest.
func (p *ClientParameters) Hash() uint64 {
	h, _ := blake2b.New256(nil)

	writeString(h, p.FunctionName)

	for _, id := range sortedKeys(p.SecretKeys) {
		k := p.SecretKeys[id]
		writeString(h, id)
		writeUint(h, k.Size)
	}
	for _, id := range sortedKeys(p.BootstrapKeys) {
		k := p.BootstrapKeys[id]
		writeString(h, id)
		writeString(h, k.InputSecretKeyID)
		writeString(h, k.OutputSecretKeyID)
		writeUint(h, k.Level)
		writeUint(h, k.BaseLog)
		writeUint(h, k.GlweDimension)
		writeFloat(h, k.Variance)
	}
	for _, id := range sortedKeys(p.KeyswitchKeys) {
		k := p.KeyswitchKeys[id]
		writeString(h, id)
		writeString(h, k.InputSecretKeyID)
		writeString(h, k.OutputSecretKeyID)
		writeUint(h, k.Level)
		writeUint(h, k.BaseLog)
		writeFloat(h, k.Variance)
	}

	writeUint(h, uint64(len(p.Inputs)))
	for _, g := range p.Inputs {
		writeGate(h, g)
	}
	writeUint(h, uint64(len(p.Outputs)))
	for _, g := range p.Outputs {
		writeGate(h, g)
	}

	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum[:8])
}

func sortedKeys[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func writeGate(h hash.Hash, g CircuitGate) {
	if g.Encryption != nil {
		writeUint(h, 1)
		writeString(h, g.Encryption.SecretKeyID)
		writeFloat(h, g.Encryption.Variance)
		writeUint(h, g.Encryption.Encoding.Precision)
	} else {
		writeUint(h, 0)
	}
	writeUint(h, g.Shape.Width)
	writeUint(h, uint64(len(g.Shape.Dimensions)))
	for _, d := range g.Shape.Dimensions {
		writeUint(h, uint64(d))
	}
	writeUint(h, g.Shape.Size)
}

func writeString(h hash.Hash, s string) {
	writeUint(h, uint64(len(s)))
	h.Write([]byte(s))
}

func writeUint(h hash.Hash, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}

func writeFloat(h hash.Hash, v float64) {
	writeUint(h, math.Float64bits(v))
}
