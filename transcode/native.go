package transcode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
)

// Container formats recognised from leading magic bytes
const (
	FormatUnknown = ""
	FormatWAV     = "wav"
	FormatMP3     = "mp3"
	FormatFLAC    = "flac"
)

// rawAudio is mono PCM at the source rate, before resampling
type rawAudio struct {
	samples    []float64
	sampleRate int
	channels   int
	codec      string
	truncated  bool
}

const readFrames = 4096

// SniffFormat identifies the container from its leading bytes
func SniffFormat(data []byte) string {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV
	case len(data) >= 4 && string(data[0:4]) == "fLaC":
		return FormatFLAC
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3
	}
	return FormatUnknown
}

// maxSourceFrames is the decode-time stop point; zero means unlimited
func maxSourceFrames(sampleRate int, maxSeconds float64) int {
	if maxSeconds <= 0 {
		return math.MaxInt
	}
	return int(math.Ceil(float64(sampleRate) * maxSeconds))
}

// WAVE format tags; extensible files carry the real tag in their subformat GUID
const (
	wavFormatPCM        = 1
	wavFormatIEEEFloat  = 3
	wavFormatExtensible = 0xFFFE
)

func decodeWAV(data []byte, maxSeconds float64) (*rawAudio, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, errors.New("invalid wav header")
	}

	format := int(d.WavAudioFormat)
	if format == wavFormatExtensible {
		sub, err := wavSubFormat(data)
		if err != nil {
			return nil, err
		}
		format = sub
	}

	sampleRate := int(d.SampleRate)
	channels := int(d.NumChans)
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid wav format: %d Hz, %d channels", sampleRate, channels)
	}
	limit := maxSourceFrames(sampleRate, maxSeconds)

	switch format {
	case wavFormatPCM:
		return decodeWAVInt(d, sampleRate, channels, limit)
	case wavFormatIEEEFloat:
		return decodeWAVFloat(d, sampleRate, channels, limit)
	}
	return nil, fmt.Errorf("unsupported wav encoding %d", format)
}

// wavSubFormat returns the format code held in the leading bytes of the
// WAVE_FORMAT_EXTENSIBLE subformat GUID
func wavSubFormat(data []byte) (int, error) {
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if id == "fmt " {
			// 16 base bytes, cbSize, valid bits, channel mask, then the GUID
			if size < 40 || body+40 > len(data) {
				return 0, errors.New("truncated extensible wav format chunk")
			}
			return int(binary.LittleEndian.Uint16(data[body+24 : body+26])), nil
		}
		if size < 0 || body+size < body {
			break
		}
		off = body + size + size%2
	}
	return 0, errors.New("wav format chunk not found")
}

func decodeWAVInt(d *wav.Decoder, sampleRate, channels, limit int) (*rawAudio, error) {
	depth := int(d.BitDepth)
	if depth != 8 && depth != 16 && depth != 24 && depth != 32 {
		return nil, fmt.Errorf("unsupported wav bit depth %d", depth)
	}

	// 8-bit PCM is unsigned
	bias := 0
	if depth == 8 {
		bias = 128
	}
	scale := 1.0 / math.Pow(2, float64(depth-1))

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           make([]int, readFrames*channels),
		SourceBitDepth: depth,
	}

	out := &rawAudio{sampleRate: sampleRate, channels: channels, codec: FormatWAV}
	for {
		n, err := d.PCMBuffer(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read wav samples: %w", err)
		}
		if n == 0 {
			break
		}

		frames := n / channels
		for f := 0; f < frames; f++ {
			if len(out.samples) >= limit {
				out.truncated = true
				return out, nil
			}
			sum := 0
			for c := 0; c < channels; c++ {
				sum += buf.Data[f*channels+c] - bias
			}
			out.samples = append(out.samples, float64(sum)/float64(channels)*scale)
		}
		if err != nil {
			break
		}
	}
	return out, nil
}

// decodeWAVFloat reads IEEE float samples straight from the data chunk;
// the integer sample path of go-audio/wav does not interpret them.
func decodeWAVFloat(d *wav.Decoder, sampleRate, channels, limit int) (*rawAudio, error) {
	depth := int(d.BitDepth)
	if depth != 32 && depth != 64 {
		return nil, fmt.Errorf("unsupported float wav bit depth %d", depth)
	}
	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("locate wav data: %w", err)
	}
	if d.PCMChunk == nil {
		return nil, wav.ErrPCMChunkNotFound
	}

	width := depth / 8
	frameBytes := width * channels
	buf := make([]byte, readFrames*frameBytes)

	out := &rawAudio{sampleRate: sampleRate, channels: channels, codec: FormatWAV}
	for {
		n, err := io.ReadFull(d.PCMChunk, buf)
		for i := 0; i+frameBytes <= n; i += frameBytes {
			if len(out.samples) >= limit {
				out.truncated = true
				return out, nil
			}
			sum := 0.0
			for c := 0; c < channels; c++ {
				b := buf[i+c*width:]
				if width == 4 {
					sum += float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
				} else {
					sum += math.Float64frombits(binary.LittleEndian.Uint64(b))
				}
			}
			out.samples = append(out.samples, sum/float64(channels))
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read wav samples: %w", err)
		}
	}
	return out, nil
}

// go-mp3 always yields interleaved 16-bit little-endian stereo
func decodeMP3(data []byte, maxSeconds float64) (*rawAudio, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open mp3 stream: %w", err)
	}

	sampleRate := d.SampleRate()
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid mp3 sample rate %d", sampleRate)
	}
	limit := maxSourceFrames(sampleRate, maxSeconds)

	const frameBytes = 4
	buf := make([]byte, readFrames*frameBytes)
	out := &rawAudio{sampleRate: sampleRate, channels: 2, codec: FormatMP3}
	for {
		n, err := io.ReadFull(d, buf)
		for i := 0; i+frameBytes <= n; i += frameBytes {
			if len(out.samples) >= limit {
				out.truncated = true
				return out, nil
			}
			left := int16(uint16(buf[i]) | uint16(buf[i+1])<<8)
			right := int16(uint16(buf[i+2]) | uint16(buf[i+3])<<8)
			out.samples = append(out.samples, (float64(left)+float64(right))/2/32768)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read mp3 samples: %w", err)
		}
	}
	return out, nil
}

func decodeFLAC(data []byte, maxSeconds float64) (*rawAudio, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open flac stream: %w", err)
	}
	defer stream.Close()

	sampleRate := int(stream.Info.SampleRate)
	channels := int(stream.Info.NChannels)
	depth := int(stream.Info.BitsPerSample)
	if sampleRate <= 0 || channels <= 0 || depth <= 0 {
		return nil, errors.New("invalid flac stream info")
	}

	scale := 1.0 / math.Pow(2, float64(depth-1))
	limit := maxSourceFrames(sampleRate, maxSeconds)

	out := &rawAudio{sampleRate: sampleRate, channels: channels, codec: FormatFLAC}
	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read flac frame: %w", err)
		}
		if len(frame.Subframes) < channels {
			return nil, errors.New("flac frame is missing channels")
		}

		n := len(frame.Subframes[0].Samples)
		for i := 0; i < n; i++ {
			if len(out.samples) >= limit {
				out.truncated = true
				return out, nil
			}
			var sum int64
			for c := 0; c < channels; c++ {
				sum += int64(frame.Subframes[c].Samples[i])
			}
			out.samples = append(out.samples, float64(sum)/float64(channels)*scale)
		}
	}
	return out, nil
}
