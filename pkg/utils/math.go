package utils

import "math"

// NormalizeL2 normalizes the slice in place to unit L2 norm.
// If the norm is zero, the slice is unchanged.
func NormalizeL2(x []float32) {
	var sum float32
	for _, v := range x {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range x {
		x[i] *= norm
	}
}

// MaskedMean averages a flat [tokens*dims] hidden-state buffer over the token
// positions whose mask entry is nonzero, producing a [dims] vector. Positions
// beyond the mask are ignored. An all-zero mask yields a zero vector.
func MaskedMean(flat []float32, mask []int64, dims int) []float32 {
	out := make([]float32, dims)
	if dims <= 0 {
		return out
	}
	var count float32
	for i, m := range mask {
		if m == 0 {
			continue
		}
		base := i * dims
		if base+dims > len(flat) {
			break
		}
		for j := 0; j < dims; j++ {
			out[j] += flat[base+j]
		}
		count++
	}
	if count == 0 {
		return out
	}
	inv := 1 / count
	for j := range out {
		out[j] *= inv
	}
	return out
}
