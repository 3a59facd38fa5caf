package embedding

import "math"

// Epsilon is the smallest norm still treated as a direction.
const Epsilon = 1e-9

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns v scaled to unit length, or false when v has no direction.
func Normalize(v []float32) ([]float32, bool) {
	n := Norm(v)
	if n <= Epsilon {
		return nil, false
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out, true
}

// CosineDistance returns 1 - cos(a, b). Vectors of different length or with
// zero norm are maximally distant.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na <= Epsilon*Epsilon || nb <= Epsilon*Epsilon {
		return 2
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
