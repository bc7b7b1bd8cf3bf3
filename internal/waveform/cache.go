package waveform

import (
	"sync"

	"github.com/sensemesh/gatewayclient/internal/gatewayproto"
)

// cacheKey identifies one derived waveform by the reading it was built from
// and the axis it covers.
type cacheKey struct {
	readingID string
	axis      string
}

// Pipeline memoizes the derived waveforms (velocity, displacement, FFT) for
// a set of vibration readings, so repeated Velocity/Displacement/Spectrum
// calls for the same
// (readingId, axis) pair don't redo the integration/FFT work — spec.md §4.4's
// "results are memoized per (readingId, axis)".
type Pipeline struct {
	mu           sync.Mutex
	acceleration map[cacheKey]gatewayproto.VibrationWaveform
	velocity     map[cacheKey]gatewayproto.VibrationWaveform
	displacement map[cacheKey]gatewayproto.VibrationWaveform
	spectrum     map[cacheKey]gatewayproto.FFTResult
}

// NewPipeline returns an empty Pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{
		acceleration: make(map[cacheKey]gatewayproto.VibrationWaveform),
		velocity:     make(map[cacheKey]gatewayproto.VibrationWaveform),
		displacement: make(map[cacheKey]gatewayproto.VibrationWaveform),
		spectrum:     make(map[cacheKey]gatewayproto.FFTResult),
	}
}

// Load registers the raw g-unit waveform for one axis of a detailed
// reading, keyed by readingID. Re-loading the same key invalidates any
// derived waveforms memoized under it, since they'd otherwise go stale.
func (p *Pipeline) Load(readingID, axis string, samples []float64, sampleRate float64) {
	key := cacheKey{readingID: readingID, axis: axis}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acceleration[key] = VibrationArrayToWaveform(samples, sampleRate, axis)
	delete(p.velocity, key)
	delete(p.displacement, key)
	delete(p.spectrum, key)
}

// Velocity returns the memoized (or freshly integrated) velocity waveform
// for readingID/axis.
func (p *Pipeline) Velocity(readingID, axis string) (gatewayproto.VibrationWaveform, error) {
	key := cacheKey{readingID: readingID, axis: axis}
	p.mu.Lock()
	defer p.mu.Unlock()

	if v, ok := p.velocity[key]; ok {
		return v, nil
	}
	accel, ok := p.acceleration[key]
	if !ok {
		return gatewayproto.VibrationWaveform{}, newPipelineError("velocity", "no acceleration waveform loaded for %s/%s", readingID, axis)
	}
	v, err := Integrate(accel)
	if err != nil {
		return gatewayproto.VibrationWaveform{}, err
	}
	p.velocity[key] = v
	return v, nil
}

// Displacement returns the memoized (or freshly double-integrated)
// displacement waveform for readingID/axis.
func (p *Pipeline) Displacement(readingID, axis string) (gatewayproto.VibrationWaveform, error) {
	key := cacheKey{readingID: readingID, axis: axis}

	p.mu.Lock()
	if d, ok := p.displacement[key]; ok {
		p.mu.Unlock()
		return d, nil
	}
	p.mu.Unlock()

	v, err := p.Velocity(readingID, axis)
	if err != nil {
		return gatewayproto.VibrationWaveform{}, err
	}
	d, err := Integrate(v)
	if err != nil {
		return gatewayproto.VibrationWaveform{}, err
	}

	p.mu.Lock()
	p.displacement[key] = d
	p.mu.Unlock()
	return d, nil
}

// Spectrum returns the memoized (or freshly computed) FFT magnitude
// spectrum of the raw acceleration waveform for readingID/axis.
func (p *Pipeline) Spectrum(readingID, axis string) (gatewayproto.FFTResult, error) {
	key := cacheKey{readingID: readingID, axis: axis}

	p.mu.Lock()
	if s, ok := p.spectrum[key]; ok {
		p.mu.Unlock()
		return s, nil
	}
	accel, ok := p.acceleration[key]
	p.mu.Unlock()
	if !ok {
		return gatewayproto.FFTResult{}, newPipelineError("spectrum", "no acceleration waveform loaded for %s/%s", readingID, axis)
	}

	s, err := FFT(accel)
	if err != nil {
		return gatewayproto.FFTResult{}, err
	}

	p.mu.Lock()
	p.spectrum[key] = s
	p.mu.Unlock()
	return s, nil
}
