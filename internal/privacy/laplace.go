package privacy

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	randv2 "math/rand/v2"
)

// NoiseSource yields uniform draws in [0,1). *math/rand/v2.Rand satisfies
// it, so tests can inject a fixed-seed generator while production uses a
// crypto-seeded one.
type NoiseSource interface {
	Float64() float64
}

// NewCryptoSeededSource returns a PCG generator seeded from the OS entropy
// pool. The generator itself is not cryptographic; the seed just prevents
// noise draws from being replayed across restarts.
func NewCryptoSeededSource() NoiseSource {
	var seed [16]byte
	if _, err := rand.Read(seed[:]); err != nil {
		// Entropy pool read failures are not survivable for a privacy
		// mechanism; a fixed seed would make noise predictable.
		panic("privacy: cannot seed noise source: " + err.Error())
	}
	return randv2.New(randv2.NewPCG(
		binary.LittleEndian.Uint64(seed[:8]),
		binary.LittleEndian.Uint64(seed[8:]),
	))
}

// laplaceDraw samples Laplace(0, scale) by inverse transform:
// for u ~ Uniform(-0.5, 0.5), noise = -sign(u) * scale * ln(1 - 2|u|).
func laplaceDraw(src NoiseSource, scale float64) float64 {
	u := src.Float64() - 0.5
	// u == ±0.5 would take the log of zero; nudge inside the open interval.
	if abs := math.Abs(u); abs >= 0.5 {
		u = math.Copysign(0.5-1e-12, u)
	}
	sign := 1.0
	if u < 0 {
		sign = -1.0
	}
	return -sign * scale * math.Log(1-2*math.Abs(u))
}
