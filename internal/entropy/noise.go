package entropy

import (
	opensimplex "github.com/ojrac/opensimplex-go"
)

// Baseline produces slowly wandering multipliers around 1.0. The same seed,
// series and tick always give the same value.
type Baseline struct {
	noise     opensimplex.Noise
	amplitude float64
	frequency float64
}

// NewBaseline creates a baseline generator. amplitude bounds the wobble:
// every value lies in [1-amplitude, 1+amplitude].
func NewBaseline(seed int64, amplitude, frequency float64) *Baseline {
	if frequency <= 0 {
		frequency = 0.05
	}
	return &Baseline{
		noise:     opensimplex.NewNormalized(seed),
		amplitude: amplitude,
		frequency: frequency,
	}
}

// At returns the multiplier for series (one per market cell) at tick.
func (b *Baseline) At(series int, tick uint64) float64 {
	n := octaveNoise(b.noise, float64(series)*7.31, float64(tick), 3, b.frequency, 0.5)
	return 1 + b.amplitude*(2*n-1)
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
