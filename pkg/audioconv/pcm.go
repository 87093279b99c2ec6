package audioconv

import "math"

// IntPCMToFloat32 scales integer samples of the given bit depth into
// [-1, 1] floats.
func IntPCMToFloat32(data []int, bitDepth int) []float32 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	out := make([]float32, len(data))
	for i, v := range data {
		f := float64(v) * scale
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		out[i] = float32(f)
	}
	return out
}

func Int16PCMToFloat32(data []int16) []float32 {
	const scale = 1.0 / 32768.0
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(float64(v) * scale)
	}
	return out
}

// Float32PCMToInt converts [-1, 1] floats into 16-bit integer samples.
func Float32PCMToInt(data []float32) []int {
	out := make([]int, len(data))
	for i, v := range data {
		f := float64(v)
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		out[i] = int(math.Round(f * 32767))
	}
	return out
}

// DownmixInterleaved averages interleaved channels into mono. Mono input
// is returned unchanged.
func DownmixInterleaved(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	frames := len(in) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(in[base+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// Resample converts in from inRate to outRate by linear interpolation.
// Good enough for speech going into a recognizer; not for music.
func Resample(in []float32, inRate, outRate int) []float32 {
	if inRate == outRate || len(in) == 0 {
		return in
	}
	ratio := float64(outRate) / float64(inRate)
	n := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		src := float64(i) / ratio
		i0 := int(src)
		if i0 >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(src - float64(i0))
		out[i] = in[i0]*(1-frac) + in[i0+1]*frac
	}
	return out
}
