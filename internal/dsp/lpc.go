package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// Linear prediction via Burg's method and resonance extraction from the
// prediction polynomial roots. This is the numeric core of formant tracking.

// Resonance is one complex-pole resonance of the vocal tract model.
type Resonance struct {
	FrequencyHz float64
	BandwidthHz float64
}

// BurgLPC estimates the prediction polynomial
// A(z) = 1 + a[0]z^-1 + ... + a[order-1]z^-order using Burg's method and
// returns the coefficients a (without the leading 1). Returns nil when the
// frame is too short or degenerate.
func BurgLPC(samples []float64, order int) []float64 {
	n := len(samples)
	if n <= order || order < 1 {
		return nil
	}

	f := make([]float64, n)
	b := make([]float64, n)
	copy(f, samples)
	copy(b, samples)

	// ak holds [1, a1, ..., ak] as the recursion grows.
	ak := make([]float64, order+1)
	ak[0] = 1

	var dk float64
	for _, s := range samples {
		dk += 2 * s * s
	}
	dk -= f[0]*f[0] + b[n-1]*b[n-1]

	for k := 0; k < order; k++ {
		if dk <= 0 {
			return nil
		}
		var num float64
		for i := k + 1; i < n; i++ {
			num += f[i] * b[i-1]
		}
		mu := -2 * num / dk
		if math.IsNaN(mu) || math.IsInf(mu, 0) {
			return nil
		}

		// Levinson-style update: ak += mu * reverse(ak) over the first
		// k+2 entries.
		for i, j := 0, k+1; i <= j; i, j = i+1, j-1 {
			ai, aj := ak[i], ak[j]
			ak[i] = ai + mu*aj
			if i != j {
				ak[j] = aj + mu*ai
			}
		}

		for i := n - 1; i > k; i-- {
			t1 := f[i] + mu*b[i-1]
			t2 := b[i-1] + mu*f[i]
			f[i] = t1
			b[i] = t2
		}

		dk = (1-mu*mu)*dk - f[k+1]*f[k+1] - b[n-1]*b[n-1]
	}
	return ak[1:]
}

// Resonances converts LPC coefficients to resonance frequencies and
// bandwidths by solving for the roots of the prediction polynomial through
// the eigenvalues of its companion matrix. Only poles in the upper half
// plane with frequency inside (minHz, maxHz) are returned, sorted by
// ascending frequency.
func Resonances(lpc []float64, rate int, minHz, maxHz float64) []Resonance {
	p := len(lpc)
	if p == 0 {
		return nil
	}

	// Companion matrix of z^p + a[0] z^(p-1) + ... + a[p-1].
	comp := mat.NewDense(p, p, nil)
	for j := 0; j < p; j++ {
		comp.Set(0, j, -lpc[j])
	}
	for i := 1; i < p; i++ {
		comp.Set(i, i-1, 1)
	}

	var eig mat.Eigen
	if ok := eig.Factorize(comp, mat.EigenNone); !ok {
		return nil
	}
	roots := eig.Values(nil)

	nyquist := float64(rate) / 2
	var out []Resonance
	for _, r := range roots {
		if imag(r) <= 0 {
			continue // conjugate pair, keep upper half only
		}
		mag := cmplx.Abs(r)
		if mag >= 1 || mag == 0 {
			continue // unstable or degenerate pole
		}
		freq := math.Atan2(imag(r), real(r)) * float64(rate) / (2 * math.Pi)
		if freq <= minHz || freq >= maxHz || freq >= nyquist {
			continue
		}
		bw := -math.Log(mag) * float64(rate) / math.Pi
		out = append(out, Resonance{FrequencyHz: freq, BandwidthHz: bw})
	}

	// Insertion sort: resonance counts are tiny.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].FrequencyHz < out[j-1].FrequencyHz; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
