package waveform

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sensemesh/gatewayclient/internal/gatewayproto"
)

func TestIntegrateDifferentiate_RoundTrip(t *testing.T) {
	w := VibrationArrayToWaveform([]float64{0, 1, 0, -1, 0}, 1000, "x")

	velocity, err := Integrate(w)
	require.NoError(t, err)
	require.Equal(t, UnitMps, velocity.Unit)
	require.Len(t, velocity.Data, 5)

	back, err := Differentiate(velocity)
	require.NoError(t, err)
	require.Equal(t, UnitG, back.Unit)
	require.Len(t, back.Data, 5)
}

func TestIntegrate_RejectsPastDisplacement(t *testing.T) {
	w := gatewayproto.VibrationWaveform{Unit: UnitM, Data: []gatewayproto.WavePoint{{Time: 0, Value: 1}}}
	_, err := Integrate(w)
	require.Error(t, err)
	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
}

func TestDifferentiate_RejectsPastAcceleration(t *testing.T) {
	w := gatewayproto.VibrationWaveform{Unit: UnitG, Data: []gatewayproto.WavePoint{{Time: 0, Value: 1}}}
	_, err := Differentiate(w)
	require.Error(t, err)
}

func TestFFT_OneSidedSpectrumShape(t *testing.T) {
	w := VibrationArrayToWaveform([]float64{0, 1, 0, -1, 0}, 1000, "x")
	result, err := FFT(w)
	require.NoError(t, err)
	require.Equal(t, len(w.Data)/2, len(result.Frequencies))
	require.Equal(t, len(result.Frequencies), len(result.Magnitudes))
	require.Equal(t, 0.0, result.Frequencies[0])
	require.Less(t, result.Frequencies[len(result.Frequencies)-1], 500.0)
}

func TestPipeline_MemoizesDerivedWaveforms(t *testing.T) {
	p := NewPipeline()
	p.Load("r1", "x", []float64{0, 1, 0, -1, 0}, 1000)

	d1, err := p.Displacement("r1", "x")
	require.NoError(t, err)
	require.Equal(t, UnitM, d1.Unit)
	require.Len(t, d1.Data, 5)

	d2, err := p.Displacement("r1", "x")
	require.NoError(t, err)
	require.Equal(t, d1, d2)

	_, err = p.Velocity("missing", "x")
	require.Error(t, err)
}

func TestPipeline_ReloadInvalidatesCache(t *testing.T) {
	p := NewPipeline()
	p.Load("r1", "x", []float64{0, 1, 0, -1, 0}, 1000)
	v1, err := p.Velocity("r1", "x")
	require.NoError(t, err)

	p.Load("r1", "x", []float64{0, 2, 0, -2, 0}, 1000)
	v, err := p.Velocity("r1", "x")
	require.NoError(t, err)
	require.NotEqual(t, 0.0, v.Data[1].Value)
	require.NotEqual(t, v1.Data[1].Value, v.Data[1].Value, "velocity must be recomputed from the reloaded samples")
}
