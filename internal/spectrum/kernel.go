package spectrum

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/chrissnell/peaktree/pkg/config"
)

var (
	// StandardKernel is used for smooth = true
	StandardKernel = []float64{0.25, 0.5, 0.25}
	// BroadKernel is used for smooth = "broad"
	BroadKernel = []float64{1.0 / 16, 2.0 / 16, 3.0 / 16, 4.0 / 16, 3.0 / 16, 2.0 / 16, 1.0 / 16}
)

// KernelFor maps a smoothing mode to its kernel. SmoothNone yields nil.
func KernelFor(mode config.SmoothMode) []float64 {
	switch mode {
	case config.SmoothStandard:
		return StandardKernel
	case config.SmoothBroad:
		return BroadKernel
	}
	return nil
}

// Triangular returns a normalized triangle kernel with 2*halfWidth+1 taps
func Triangular(halfWidth int) []float64 {
	if halfWidth <= 0 {
		return []float64{1}
	}
	k := make([]float64, 2*halfWidth+1)
	sum := 0.0
	for i := range k {
		w := float64(halfWidth + 1 - abs(i-halfWidth))
		k[i] = w
		sum += w
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// Convolve applies a symmetric kernel to x. Samples beyond either edge take
// the value of the nearest valid bin.
func Convolve(x, kernel []float64) []float64 {
	n := len(x)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	h := len(kernel) / 2
	for i := 0; i < n; i++ {
		acc := 0.0
		for j, w := range kernel {
			idx := i + j - h
			if idx < 0 {
				idx = 0
			} else if idx >= n {
				idx = n - 1
			}
			acc += w * x[idx]
		}
		out[i] = acc
	}
	return out
}

// SavitzkyGolay returns the smoothing kernel of a least-squares polynomial of
// the given order fitted over window points. The centre value of the fit is
// linear in the samples; its coefficients are the first row of the
// pseudo-inverse of the Vandermonde matrix.
func SavitzkyGolay(window, order int) ([]float64, error) {
	if window < 1 || window%2 == 0 {
		return nil, fmt.Errorf("window must be a positive odd number, got %d", window)
	}
	if order < 0 || order >= window {
		return nil, fmt.Errorf("polynomial order %d must be in [0, %d)", order, window)
	}

	h := window / 2
	X := mat.NewDense(window, order+1, nil)
	for i := 0; i < window; i++ {
		x := float64(i - h)
		for j := 0; j <= order; j++ {
			X.Set(i, j, math.Pow(x, float64(j)))
		}
	}

	var qr mat.QR
	qr.Factorize(X)

	identity := mat.NewDense(window, window, nil)
	for i := 0; i < window; i++ {
		identity.Set(i, i, 1)
	}

	var coeffs mat.Dense
	if err := qr.SolveTo(&coeffs, false, identity); err != nil {
		return nil, fmt.Errorf("savitzky-golay fit: %w", err)
	}

	k := make([]float64, window)
	for i := range k {
		k[i] = coeffs.At(0, i)
	}
	return k, nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
