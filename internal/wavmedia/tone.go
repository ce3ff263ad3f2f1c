package wavmedia

import (
	"math"

	"github.com/zaf/g711"
)

const (
	toneFrequencyHz = 1000
	toneDurationSec = 1
	toneAmplitude   = 0.3
)

// SynthesizeTone renders one second of a 1kHz sine at 8kHz/16-bit PCM and
// encodes it to μ-law, used to fill the output WAV when the receiver never
// observed real audio (spec.md §4.2.1 shutdown path). Encoding reuses
// g711.EncodeUlaw, the same call the teacher's PCMToPCMU helper makes.
func SynthesizeTone() []byte {
	samples := sampleRateHz * toneDurationSec
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		t := float64(i) / float64(sampleRateHz)
		v := toneAmplitude * math.MaxInt16 * math.Sin(2*math.Pi*toneFrequencyHz*t)
		sample := int16(v)
		pcm[2*i] = byte(sample)
		pcm[2*i+1] = byte(sample >> 8)
	}
	return g711.EncodeUlaw(pcm)
}
