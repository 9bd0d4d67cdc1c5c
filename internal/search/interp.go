package search

import (
	"math"
	"sort"
)

// maxTau2 bounds tangent magnitudes for monotonicity preservation in the
// cubic fits.
const maxTau2 = 9.0

// hermite evaluates a cubic Hermite segment at xi over [xk, xk1] with
// values [yk, yk1] and tangents [dk, dk1].
func hermite(xk, xk1, yk, yk1, dk, dk1, xi float64) float64 {
	h := xk1 - xk
	t := (xi - xk) / h
	t2 := t * t
	t3 := t2 * t

	h00 := 2*t3 - 3*t2 + 1
	h10 := t3 - 2*t2 + t
	h01 := -2*t3 + 3*t2
	h11 := t3 - t2

	return h00*yk + h10*h*dk + h01*yk1 + h11*h*dk1
}

// lerp interpolates linearly between two points. Returns nil when x is not
// strictly increasing.
func lerp(x, y [2]float64, xi float64) *float64 {
	if x[1] <= x[0] {
		return nil
	}
	t := (xi - x[0]) / (x[1] - x[0])
	result := t*(y[1]-y[0]) + y[0]
	return &result
}

// fritschCarlson fits a monotone cubic through exactly three points.
func fritschCarlson(x, y []float64, xi float64) *float64 {
	if len(x) != 3 || x[1] <= x[0] || x[2] <= x[1] || xi < x[0] || xi > x[2] {
		return nil
	}

	k := 0
	if xi >= x[1] {
		k = 1
	}

	d0 := (y[1] - y[0]) / (x[1] - x[0])
	d1 := (y[2] - y[1]) / (x[2] - x[1])

	m := [3]float64{d0, 0, d1}
	if d0*d1 > 0 {
		h0 := x[1] - x[0]
		h1 := x[2] - x[1]
		w1 := 2*h1 + h0
		w2 := 2*h0 + h1
		m[1] = (w1 + w2) / (w1/d0 + w2/d1)
	}

	result := hermite(x[k], x[k+1], y[k], y[k+1], m[k], m[k+1], xi)
	return &result
}

// pchip fits a monotonicity-preserving piecewise cubic through exactly four
// points.
func pchip(x, y [4]float64, xi float64) *float64 {
	for i := range 3 {
		if x[i+1] <= x[i] {
			return nil
		}
	}
	if xi < x[0] || xi > x[3] {
		return nil
	}

	k := 0
	for i := range 3 {
		if xi >= x[i] && xi <= x[i+1] {
			k = i
			break
		}
	}

	s0 := (y[1] - y[0]) / (x[1] - x[0])
	s1 := (y[2] - y[1]) / (x[2] - x[1])
	s2 := (y[3] - y[2]) / (x[3] - x[2])
	slopes := [3]float64{s0, s1, s2}

	d := [4]float64{s0, 0, 0, s2}
	interior := [2][4]float64{
		{s0, s1, x[1] - x[0], x[2] - x[1]},
		{s1, s2, x[2] - x[1], x[3] - x[2]},
	}
	for i := range 2 {
		sPrev, sNext := interior[i][0], interior[i][1]
		hPrev, hNext := interior[i][2], interior[i][3]
		idx := i + 1
		if sPrev*sNext <= 0 {
			d[idx] = 0
		} else {
			w1 := 2*hNext + hPrev
			w2 := 2*hPrev + hNext
			d[idx] = (w1 + w2) / (w1/sPrev + w2/sNext)
		}
	}

	for i := range 3 {
		if slopes[i] == 0 {
			d[i] = 0
			d[i+1] = 0
			continue
		}
		alpha := d[i] / slopes[i]
		beta := d[i+1] / slopes[i]
		tau := alpha*alpha + beta*beta
		if tau > maxTau2 {
			scale := 3.0 / math.Sqrt(tau)
			d[i] = scale * alpha * slopes[i]
			d[i+1] = scale * beta * slopes[i]
		}
	}

	result := hermite(x[k], x[k+1], y[k], y[k+1], d[k], d[k+1], xi)
	return &result
}

// akima fits an Akima spline through five or more points.
func akima(x, y []float64, xi float64) *float64 {
	n := len(x)
	if n < 5 || len(y) != n {
		return nil
	}
	for i := 0; i < n-1; i++ {
		if x[i+1] <= x[i] {
			return nil
		}
	}
	if xi < x[0] || xi > x[n-1] {
		return nil
	}

	k := 0
	for i := n - 2; i >= 0; i-- {
		if xi >= x[i] {
			k = i
			break
		}
	}

	m := make([]float64, n+1)
	for i := 0; i < n-1; i++ {
		m[i+1] = (y[i+1] - y[i]) / (x[i+1] - x[i])
	}
	m[0] = 2*m[1] - m[2]
	m[n] = 2*m[n-1] - m[n-2]

	tan := make([]float64, n)
	for i := 0; i < n-1; i++ {
		w1 := math.Abs(m[i+2] - m[i+1])
		w2 := math.Abs(m[i] - m[i+1])
		if w1+w2 < 1e-10 {
			tan[i] = 0.5 * (m[i] + m[i+1])
		} else {
			tan[i] = (w1*m[i] + w2*m[i+1]) / (w1 + w2)
		}
	}
	tan[n-1] = m[n-1]

	result := hermite(x[k], x[k+1], y[k], y[k+1], tan[k], tan[k+1], xi)
	return &result
}

// interpolateCrf fits a monotone score-to-CRF model through the finite
// probes and returns the CRF predicted to land exactly on the target score.
// The fit escalates with probe count: linear, Fritsch-Carlson, PCHIP, then
// Akima. Returns nil when the probes cannot support a fit (too few points,
// duplicate scores, or, with three or more probes, a target outside the
// probed score range). With exactly two probes the line is extrapolated.
func interpolateCrf(probes []Probe, target float64) *float64 {
	finite := make([]Probe, 0, len(probes))
	for _, p := range probes {
		if !p.ScoreInf {
			finite = append(finite, p)
		}
	}
	if len(finite) < 2 {
		return nil
	}

	sort.Slice(finite, func(i, j int) bool {
		return finite[i].Score < finite[j].Score
	})

	x := make([]float64, len(finite))
	y := make([]float64, len(finite))
	for i, p := range finite {
		x[i] = p.Score
		y[i] = p.Crf
	}

	switch len(finite) {
	case 2:
		return lerp([2]float64{x[0], x[1]}, [2]float64{y[0], y[1]}, target)
	case 3:
		return fritschCarlson(x, y, target)
	case 4:
		return pchip([4]float64{x[0], x[1], x[2], x[3]}, [4]float64{y[0], y[1], y[2], y[3]}, target)
	default:
		return akima(x, y, target)
	}
}
