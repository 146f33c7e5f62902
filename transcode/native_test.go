package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

// pcmSubtypeTail is the part of the KSDATAFORMAT_SUBTYPE GUID that follows
// the two-byte format code
var pcmSubtypeTail = []byte{0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71}

// buildWAV assembles a RIFF/WAVE file by hand so that encodings the writer
// libraries cannot produce are covered
func buildWAV(tag, subFormat uint16, channels, sampleRate, bits int, payload []byte) []byte {
	blockAlign := channels * bits / 8

	var fmtChunk bytes.Buffer
	put := func(v any) { _ = binary.Write(&fmtChunk, binary.LittleEndian, v) }
	put(tag)
	put(uint16(channels))
	put(uint32(sampleRate))
	put(uint32(sampleRate * blockAlign))
	put(uint16(blockAlign))
	put(uint16(bits))
	if tag == wavFormatExtensible {
		put(uint16(22))
		put(uint16(bits))
		put(uint32(0))
		put(subFormat)
		fmtChunk.Write(pcmSubtypeTail)
	}

	var out bytes.Buffer
	w := func(v any) { _ = binary.Write(&out, binary.LittleEndian, v) }
	out.WriteString("RIFF")
	w(uint32(4 + 8 + fmtChunk.Len() + 8 + len(payload) + len(payload)%2))
	out.WriteString("WAVE")
	out.WriteString("fmt ")
	w(uint32(fmtChunk.Len()))
	out.Write(fmtChunk.Bytes())
	out.WriteString("data")
	w(uint32(len(payload)))
	out.Write(payload)
	if len(payload)%2 == 1 {
		out.WriteByte(0)
	}
	return out.Bytes()
}

// encodeSamples lays out sig in the given sample encoding, repeating each
// value on every channel
func encodeSamples(sig []float64, channels, bits int, float bool) []byte {
	var buf bytes.Buffer
	for _, v := range sig {
		for c := 0; c < channels; c++ {
			switch {
			case float && bits == 32:
				_ = binary.Write(&buf, binary.LittleEndian, math.Float32bits(float32(v)))
			case float && bits == 64:
				_ = binary.Write(&buf, binary.LittleEndian, math.Float64bits(v))
			case bits == 8:
				buf.WriteByte(uint8(int(math.Round(v*127)) + 128))
			case bits == 16:
				_ = binary.Write(&buf, binary.LittleEndian, int16(math.Round(v*32767)))
			case bits == 24:
				x := int32(math.Round(v * 8388607))
				buf.Write([]byte{byte(x), byte(x >> 8), byte(x >> 16)})
			case bits == 32:
				_ = binary.Write(&buf, binary.LittleEndian, int32(math.Round(v*2147483647)))
			}
		}
	}
	return buf.Bytes()
}

func tone(sampleRate int, seconds, freq, amp float64) []float64 {
	out := make([]float64, int(float64(sampleRate)*seconds))
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func TestDecodeWAVEncodings(t *testing.T) {
	sig := tone(16000, 1.0, 440, 0.5)
	peak := 0.0
	for _, v := range sig {
		peak = math.Max(peak, math.Abs(v))
	}

	tests := []struct {
		name      string
		tag       uint16
		subFormat uint16
		channels  int
		bits      int
		float     bool
		tolerance float64
	}{
		{"pcm8 mono", wavFormatPCM, 0, 1, 8, false, 2.0 / 127},
		{"pcm16 mono", wavFormatPCM, 0, 1, 16, false, 1e-4},
		{"pcm24 stereo", wavFormatPCM, 0, 2, 24, false, 1e-6},
		{"pcm32 mono", wavFormatPCM, 0, 1, 32, false, 1e-6},
		{"float32 mono", wavFormatIEEEFloat, 0, 1, 32, true, 1e-6},
		{"float64 stereo", wavFormatIEEEFloat, 0, 2, 64, true, 1e-12},
		{"extensible pcm16 stereo", wavFormatExtensible, wavFormatPCM, 2, 16, false, 1e-4},
		{"extensible pcm24 mono", wavFormatExtensible, wavFormatPCM, 1, 24, false, 1e-6},
		{"extensible float32 mono", wavFormatExtensible, wavFormatIEEEFloat, 1, 32, true, 1e-6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := buildWAV(tt.tag, tt.subFormat, tt.channels, 16000, tt.bits, encodeSamples(sig, tt.channels, tt.bits, tt.float))

			wf, err := NewDecoder(nil).Decode(context.Background(), data)
			if err != nil {
				t.Fatalf("Decode() error = %v (cause %v)", err, errors.Unwrap(err))
			}
			if wf.Len() != len(sig) {
				t.Fatalf("Len() = %d, want %d", wf.Len(), len(sig))
			}
			if wf.SourceChannels != tt.channels || wf.Codec != FormatWAV {
				t.Errorf("source = %d ch %q, want %d ch wav", wf.SourceChannels, wf.Codec, tt.channels)
			}
			for i, v := range wf.Samples {
				if want := sig[i] / peak; math.Abs(v-want) > tt.tolerance {
					t.Fatalf("sample %d = %v, want %v", i, v, want)
				}
			}
		})
	}
}

func TestDecodeWAVRejectsUnsupportedEncodings(t *testing.T) {
	sig := tone(16000, 0.5, 440, 0.5)

	tests := []struct {
		name string
		data []byte
	}{
		{"a-law", buildWAV(6, 0, 1, 16000, 8, encodeSamples(sig, 1, 8, false))},
		{"extensible a-law", buildWAV(wavFormatExtensible, 6, 1, 16000, 8, encodeSamples(sig, 1, 8, false))},
		{"float16", buildWAV(wavFormatIEEEFloat, 0, 1, 16000, 16, encodeSamples(sig, 1, 16, false))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDecoder(nil).Decode(context.Background(), tt.data)
			if !errors.Is(err, ErrInvalidAudio) {
				t.Errorf("Decode() error = %v, want InvalidAudio", err)
			}
		})
	}
}

func TestDecodeFloatWAVStopsAtMaxDuration(t *testing.T) {
	sig := tone(16000, 3.0, 300, 0.5)
	data := buildWAV(wavFormatIEEEFloat, 0, 1, 16000, 32, encodeSamples(sig, 1, 32, true))

	raw, err := decodeWAV(data, 1.25)
	if err != nil {
		t.Fatalf("decodeWAV() error = %v", err)
	}
	if len(raw.samples) != 20000 || !raw.truncated {
		t.Errorf("got %d samples truncated=%v, want 20000 truncated", len(raw.samples), raw.truncated)
	}
}

// flacTone encodes a 16-bit tone with verbatim subframes, every channel
// carrying the same signal
func flacTone(t *testing.T, sampleRate, channels int, seconds float64) []byte {
	t.Helper()

	const blockSize = 4096
	info := &meta.StreamInfo{
		BlockSizeMin:  blockSize,
		BlockSizeMax:  blockSize,
		SampleRate:    uint32(sampleRate),
		NChannels:     uint8(channels),
		BitsPerSample: 16,
	}

	var buf bytes.Buffer
	enc, err := flac.NewEncoder(&buf, info)
	if err != nil {
		t.Fatalf("flac.NewEncoder: %v", err)
	}

	layout := frame.ChannelsMono
	if channels == 2 {
		layout = frame.ChannelsLR
	}

	n := int(seconds * float64(sampleRate))
	for start := 0; start < n; start += blockSize {
		size := min(blockSize, n-start)
		subframes := make([]*frame.Subframe, channels)
		for c := range subframes {
			samples := make([]int32, size)
			for i := range samples {
				samples[i] = int32(math.Round(8000 * math.Sin(2*math.Pi*440*float64(start+i)/float64(sampleRate))))
			}
			subframes[c] = &frame.Subframe{
				SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
				Samples:   samples,
				NSamples:  size,
			}
		}
		f := &frame.Frame{
			Header: frame.Header{
				HasFixedBlockSize: true,
				BlockSize:         uint16(size),
				SampleRate:        uint32(sampleRate),
				Channels:          layout,
				BitsPerSample:     16,
			},
			Subframes: subframes,
		}
		if err := enc.WriteFrame(f); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("flac encoder close: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeFLAC(t *testing.T) {
	data := flacTone(t, 44100, 2, 3.0)
	if SniffFormat(data) != FormatFLAC {
		t.Fatalf("SniffFormat() = %q, want flac", SniffFormat(data))
	}

	raw, err := decodeFLAC(data, 0)
	if err != nil {
		t.Fatalf("decodeFLAC() error = %v", err)
	}
	if raw.sampleRate != 44100 || raw.channels != 2 {
		t.Errorf("raw = %d Hz %d ch, want 44100 Hz 2 ch", raw.sampleRate, raw.channels)
	}
	if len(raw.samples) != 132300 || raw.truncated {
		t.Errorf("raw has %d samples truncated=%v, want 132300", len(raw.samples), raw.truncated)
	}
	for i := 0; i < 100; i++ {
		want := math.Round(8000*math.Sin(2*math.Pi*440*float64(i)/44100)) / 32768
		if math.Abs(raw.samples[i]-want) > 1e-12 {
			t.Fatalf("sample %d = %v, want %v", i, raw.samples[i], want)
		}
	}

	raw, err = decodeFLAC(data, 1.5)
	if err != nil {
		t.Fatalf("decodeFLAC() error = %v", err)
	}
	if len(raw.samples) != 66150 || !raw.truncated {
		t.Errorf("capped raw has %d samples truncated=%v, want 66150 truncated", len(raw.samples), raw.truncated)
	}

	cfg := DefaultDecoderConfig()
	cfg.MaxDuration = 1500 * time.Millisecond
	wf, err := NewDecoder(cfg).Decode(context.Background(), data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if wf.Len() != 24000 || !wf.Truncated {
		t.Errorf("Len() = %d truncated=%v, want 24000 truncated", wf.Len(), wf.Truncated)
	}
	if wf.Codec != FormatFLAC || wf.SourceSampleRate != 44100 || wf.SourceChannels != 2 {
		t.Errorf("source = %q %d Hz %d ch", wf.Codec, wf.SourceSampleRate, wf.SourceChannels)
	}
}

// silentMP3 returns MPEG-1 layer III frames (128 kbps, 44.1 kHz, stereo)
// whose side information and main data are all zero. Each decodes to 1152
// frames of silence.
func silentMP3(frames int) []byte {
	const frameSize = 417
	out := make([]byte, 0, frames*frameSize)
	for range frames {
		f := make([]byte, frameSize)
		copy(f, []byte{0xFF, 0xFB, 0x90, 0x00})
		out = append(out, f...)
	}
	return out
}

func TestDecodeMP3(t *testing.T) {
	data := silentMP3(40)
	if SniffFormat(data) != FormatMP3 {
		t.Fatalf("SniffFormat() = %q, want mp3", SniffFormat(data))
	}

	raw, err := decodeMP3(data, 0)
	if err != nil {
		t.Fatalf("decodeMP3() error = %v", err)
	}
	if raw.sampleRate != 44100 || raw.channels != 2 {
		t.Errorf("raw = %d Hz %d ch, want 44100 Hz 2 ch", raw.sampleRate, raw.channels)
	}
	if len(raw.samples) != 40*1152 || raw.truncated {
		t.Errorf("raw has %d samples truncated=%v, want %d", len(raw.samples), raw.truncated, 40*1152)
	}

	raw, err = decodeMP3(data, 0.5)
	if err != nil {
		t.Fatalf("decodeMP3() error = %v", err)
	}
	if len(raw.samples) != 22050 || !raw.truncated {
		t.Errorf("capped raw has %d samples truncated=%v, want 22050 truncated", len(raw.samples), raw.truncated)
	}

	cfg := DefaultDecoderConfig()
	cfg.MaxDuration = 500 * time.Millisecond
	wf, err := NewDecoder(cfg).Decode(context.Background(), data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if wf.Len() != 8000 || !wf.Truncated {
		t.Errorf("Len() = %d truncated=%v, want 8000 truncated", wf.Len(), wf.Truncated)
	}
	if wf.Codec != FormatMP3 || wf.SourceSampleRate != 44100 {
		t.Errorf("source = %q %d Hz", wf.Codec, wf.SourceSampleRate)
	}
	for i, v := range wf.Samples {
		if v != 0 {
			t.Fatalf("sample %d = %v, want silence", i, v)
		}
	}
}

func TestResampleMonoKeepsTiming(t *testing.T) {
	for _, from := range []int{8000, 22050, 44100, 48000} {
		in := make([]float64, from)
		pos := from / 4
		in[pos] = 1

		out, err := resampleMono(in, from, 16000)
		if err != nil {
			t.Fatalf("%d Hz: %v", from, err)
		}
		if len(out) < 15998 || len(out) > 16000 {
			t.Errorf("%d Hz: len = %d, want 16000", from, len(out))
		}

		peak := 0
		for i, v := range out {
			if math.Abs(v) > math.Abs(out[peak]) {
				peak = i
			}
		}
		want := int(math.Round(float64(pos) * 16000 / float64(from)))
		if peak < want-1 || peak > want+1 {
			t.Errorf("%d Hz: impulse at output %d, want %d", from, peak, want)
		}
	}
}
