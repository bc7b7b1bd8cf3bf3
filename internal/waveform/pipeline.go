// Package waveform implements the vibration waveform transforms of
// spec.md §4.4: acceleration <-> velocity <-> displacement via numerical
// integration/differentiation, and a magnitude-spectrum FFT, wrapped in a
// per-(readingId, axis) memoization cache.
package waveform

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/sensemesh/gatewayclient/internal/gatewayproto"
)

// gravity converts g (9.80665 m/s^2) to SI on the first integration step,
// per spec.md §4.4.
const gravity = 9.80665

// Unit labels used when advancing/retreating through the integration chain.
const (
	UnitG    = "g"
	UnitMps  = "m/s"
	UnitM    = "m"
)

// PipelineError is returned for illegal waveform transform directions
// (spec.md §7's PipelineError kind) without mutating any pipeline state.
type PipelineError struct {
	Op      string
	Detail  string
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("waveform pipeline: %s: %s", e.Op, e.Detail)
}

func newPipelineError(op, format string, args ...interface{}) *PipelineError {
	return &PipelineError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

// VibrationArrayToWaveform builds the g-unit time-domain waveform for one
// axis of a detailed vibration reading, per spec.md §4.4's contract.
func VibrationArrayToWaveform(samples []float64, sampleRate float64, axis string) gatewayproto.VibrationWaveform {
	data := make([]gatewayproto.WavePoint, len(samples))
	for i, v := range samples {
		data[i] = gatewayproto.WavePoint{Time: float64(i) / sampleRate, Value: v}
	}
	return gatewayproto.VibrationWaveform{
		Axis:       axis,
		SampleRate: sampleRate,
		Data:       data,
		Unit:       UnitG,
	}
}

// Integrate performs trapezoidal cumulative integration with mean (DC)
// removal applied before integrating, advancing the unit chain g -> m/s ->
// m. Converts g to SI (multiplying by gravity) only on the step leaving the
// 'g' unit, per spec.md §4.4.
func Integrate(w gatewayproto.VibrationWaveform) (gatewayproto.VibrationWaveform, error) {
	nextUnit, ok := nextIntegratedUnit(w.Unit)
	if !ok {
		return gatewayproto.VibrationWaveform{}, newPipelineError("integrate", "cannot integrate from unit %q", w.Unit)
	}

	values := removeMean(extractValues(w.Data))
	if w.Unit == UnitG {
		for i := range values {
			values[i] *= gravity
		}
	}

	out := cumulativeTrapezoid(values, w.Data)
	return gatewayproto.VibrationWaveform{
		Axis:       w.Axis,
		SampleRate: w.SampleRate,
		Unit:       nextUnit,
		Data:       out,
	}, nil
}

// Differentiate performs finite-difference differentiation with endpoint
// extrapolation, retreating the unit chain m -> m/s -> g.
func Differentiate(w gatewayproto.VibrationWaveform) (gatewayproto.VibrationWaveform, error) {
	prevUnit, ok := previousDifferentiatedUnit(w.Unit)
	if !ok {
		return gatewayproto.VibrationWaveform{}, newPipelineError("differentiate", "cannot differentiate from unit %q", w.Unit)
	}

	n := len(w.Data)
	out := make([]gatewayproto.WavePoint, n)
	for i := 0; i < n; i++ {
		var deriv float64
		switch {
		case n < 2:
			deriv = 0
		case i == 0:
			dt := w.Data[1].Time - w.Data[0].Time
			deriv = centralOrForwardDiff(w.Data[1].Value, w.Data[0].Value, dt)
		case i == n-1:
			dt := w.Data[i].Time - w.Data[i-1].Time
			deriv = centralOrForwardDiff(w.Data[i].Value, w.Data[i-1].Value, dt)
		default:
			dt := w.Data[i+1].Time - w.Data[i-1].Time
			deriv = centralOrForwardDiff(w.Data[i+1].Value, w.Data[i-1].Value, dt)
		}
		out[i] = gatewayproto.WavePoint{Time: w.Data[i].Time, Value: deriv}
	}

	if prevUnit == UnitG {
		for i := range out {
			out[i].Value /= gravity
		}
	}

	return gatewayproto.VibrationWaveform{
		Axis:       w.Axis,
		SampleRate: w.SampleRate,
		Unit:       prevUnit,
		Data:       out,
	}, nil
}

func centralOrForwardDiff(hi, lo, dt float64) float64 {
	if dt == 0 {
		return 0
	}
	return (hi - lo) / dt
}

func nextIntegratedUnit(unit string) (string, bool) {
	switch unit {
	case UnitG:
		return UnitMps, true
	case UnitMps:
		return UnitM, true
	default:
		return "", false
	}
}

func previousDifferentiatedUnit(unit string) (string, bool) {
	switch unit {
	case UnitM:
		return UnitMps, true
	case UnitMps:
		return UnitG, true
	default:
		return "", false
	}
}

func extractValues(points []gatewayproto.WavePoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

func removeMean(values []float64) []float64 {
	if len(values) == 0 {
		return values
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v - mean
	}
	return out
}

// cumulativeTrapezoid integrates values (already mean-removed and unit
// converted) using the trapezoidal rule, one running sum per sample,
// preserving the original time stamps.
func cumulativeTrapezoid(values []float64, points []gatewayproto.WavePoint) []gatewayproto.WavePoint {
	n := len(values)
	out := make([]gatewayproto.WavePoint, n)
	if n == 0 {
		return out
	}
	out[0] = gatewayproto.WavePoint{Time: points[0].Time, Value: 0}
	var acc float64
	for i := 1; i < n; i++ {
		dt := points[i].Time - points[i-1].Time
		acc += dt * (values[i] + values[i-1]) / 2
		out[i] = gatewayproto.WavePoint{Time: points[i].Time, Value: acc}
	}
	return out
}

// FFT computes the one-sided magnitude spectrum of w: length N/2 spanning
// [0, sampleRate/2], N the true sample count (no zero-padding — padding
// would change the reported length and interpolate between the signal's
// actual frequency bins). Computed as a direct N-point DFT, evaluating only
// the first N/2 output bins since the rest mirror them for a real-valued
// input.
func FFT(w gatewayproto.VibrationWaveform) (gatewayproto.FFTResult, error) {
	n := len(w.Data)
	if n == 0 {
		return gatewayproto.FFTResult{}, newPipelineError("fft", "empty waveform")
	}

	half := n / 2
	freqs := make([]float64, half)
	mags := make([]float64, half)
	for k := 0; k < half; k++ {
		var sum complex128
		ang := -2 * math.Pi * float64(k) / float64(n)
		for t, p := range w.Data {
			phase := float64(t) * ang
			sum += complex(p.Value, 0) * cmplx.Exp(complex(0, phase))
		}
		freqs[k] = float64(k) * w.SampleRate / float64(n)
		mags[k] = cmplx.Abs(sum) / float64(n)
	}

	return gatewayproto.FFTResult{Frequencies: freqs, Magnitudes: mags}, nil
}
