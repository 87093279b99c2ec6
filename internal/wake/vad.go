package wake

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// fluxGate measures spectral flux between consecutive frames. A jump in
// flux marks the onset of voice energy; a collapse marks its end. The
// gate keeps the previous magnitude spectrum so each call is O(frame).
type fluxGate struct {
	prev []float64
}

func newFluxGate(frameSize int) *fluxGate {
	return &fluxGate{prev: make([]float64, frameSize/2)}
}

// Flux returns the spectral flux of frame against the previous frame.
func (g *fluxGate) Flux(frame []float32) float64 {
	in := make([]float64, len(frame))
	for i, s := range frame {
		in[i] = float64(s)
	}

	spectrum := fft.FFTReal(in)
	half := len(spectrum) / 2
	if half == 0 {
		return 0
	}

	var sum float64
	mags := make([]float64, half)
	for i := 0; i < half; i++ {
		m := cmplx.Abs(spectrum[i])
		mags[i] = m
		var prev float64
		if i < len(g.prev) {
			prev = g.prev[i]
		}
		d := m - prev
		sum += d * d
	}
	g.prev = mags
	return sum / float64(half)
}
