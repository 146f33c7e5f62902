package transcode

import (
	"errors"
	"io"
	"math"

	"github.com/RyanBlaney/sonido-voz/algorithms/common"
	wavwriter "github.com/youpy/go-wav"
)

// EncodeWAV writes the waveform as 16-bit mono PCM WAV
func EncodeWAV(w io.Writer, wf *Waveform) error {
	if wf == nil || wf.SampleRate <= 0 {
		return errors.New("waveform has no sample rate")
	}

	samples := make([]wavwriter.Sample, len(wf.Samples))
	for i, v := range wf.Samples {
		s := int(math.Round(common.Clamp(v, -1, 1) * 32767))
		samples[i] = wavwriter.Sample{Values: [2]int{s, s}}
	}

	writer := wavwriter.NewWriter(w, uint32(len(samples)), 1, uint32(wf.SampleRate), 16)
	return writer.WriteSamples(samples)
}
