package detection

import (
	"bytes"
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/RyanBlaney/sonido-voz/classifier"
	"github.com/RyanBlaney/sonido-voz/features"
	"github.com/RyanBlaney/sonido-voz/transcode"
)

// spyDecoder records calls and returns a fixed waveform or error
type spyDecoder struct {
	calls int
	wf    *transcode.Waveform
	err   error
}

func (s *spyDecoder) Decode(ctx context.Context, data []byte) (*transcode.Waveform, error) {
	s.calls++
	return s.wf, s.err
}

type stubFetcher struct {
	data []byte
	err  error
}

func (s stubFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	return s.data, s.err
}

func newSpyDetector(t *testing.T, dec AudioDecoder, fetch AudioFetcher) *Detector {
	t.Helper()
	d, err := NewDetector(dec, fetch, &meanExtractor{}, identityScorer{}, DefaultAggregatorConfig(), DefaultConfig())
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}
	return d
}

func TestExtension(t *testing.T) {
	tests := map[string]string{
		"voice.wav":         "wav",
		"VOICE.MP3":         "mp3",
		"take.2.final.FLAC": "flac",
		"clip.ogg":          "ogg",
		"dir.d/noext":       "",
		"":                  "",
	}
	for name, want := range tests {
		if got := Extension(name); got != want {
			t.Errorf("Extension(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestDetectUpload_RejectsBeforeDecode(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		size     int
		want     error
	}{
		{"ogg extension", "clip.ogg", 2048, transcode.ErrUnsupportedFormat},
		{"no extension", "clip", 2048, transcode.ErrUnsupportedFormat},
		{"too large", "clip.wav", 10<<20 + 1, transcode.ErrInvalidAudio},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := &spyDecoder{}
			d := newSpyDetector(t, dec, stubFetcher{})

			_, err := d.DetectUpload(context.Background(), tt.filename, make([]byte, tt.size), nil)
			if !errors.Is(err, tt.want) {
				t.Fatalf("DetectUpload() error = %v, want %v", err, tt.want)
			}
			if dec.calls != 0 {
				t.Errorf("decoder called %d times, want 0", dec.calls)
			}
		})
	}
}

func TestDetectUpload_DecodeFailure(t *testing.T) {
	dec := &spyDecoder{err: errors.New("codec exploded")}
	d := newSpyDetector(t, dec, stubFetcher{})

	_, err := d.DetectUpload(context.Background(), "voice.WAV", []byte("x"), nil)
	if !errors.Is(err, transcode.ErrInvalidAudio) {
		t.Fatalf("DetectUpload() error = %v, want InvalidAudio", err)
	}
	if err.Error() == "codec exploded" {
		t.Error("codec error leaked into the message")
	}
}

func TestDetectUpload_Result(t *testing.T) {
	dec := &spyDecoder{wf: levelWaveform(4, 0.12345, 0.54321)}
	d := newSpyDetector(t, dec, stubFetcher{})
	id := "req-42"

	res, err := d.DetectUpload(context.Background(), "voice.flac", []byte("x"), &id)
	if err != nil {
		t.Fatalf("DetectUpload() error = %v", err)
	}

	if !res.Success || res.ModelVersion != "test-v1" {
		t.Errorf("Success = %v ModelVersion = %q", res.Success, res.ModelVersion)
	}
	if res.RequestID == nil || *res.RequestID != id {
		t.Errorf("RequestID = %v, want %q", res.RequestID, id)
	}
	if res.Confidence != 0.333 {
		t.Errorf("Confidence = %v, want 0.333", res.Confidence)
	}
	if res.Prediction != LabelHuman {
		t.Errorf("Prediction = %q, want human", res.Prediction)
	}
	if len(res.Chunks) != 2 {
		t.Errorf("Chunks = %v, want 2 entries", res.Chunks)
	}
	if res.ProcessingTimeMS < 0 {
		t.Errorf("ProcessingTimeMS = %d", res.ProcessingTimeMS)
	}
}

func TestDetectWaveform_NoSignal(t *testing.T) {
	d := newSpyDetector(t, &spyDecoder{}, stubFetcher{})

	res, err := d.DetectWaveform(context.Background(), levelWaveform(6, -1))
	if err != nil {
		t.Fatalf("DetectWaveform() error = %v", err)
	}
	if !res.NoSignal || res.Confidence != 0.5 || res.Prediction != LabelAIGenerated {
		t.Errorf("result = %+v, want neutral 0.5 ai_generated", res)
	}
	if len(res.Chunks) != 0 {
		t.Errorf("Chunks = %v, want empty", res.Chunks)
	}
	if res.RequestID != nil {
		t.Errorf("RequestID = %v, want nil", res.RequestID)
	}
}

func TestDetectURL(t *testing.T) {
	tiny := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte{0x1}, 500))
	}))
	defer tiny.Close()

	t.Run("small download fails before decode", func(t *testing.T) {
		dec := &spyDecoder{}
		d := newSpyDetector(t, dec, transcode.NewFetcher(transcode.DefaultFetchConfig()))

		_, err := d.DetectURL(context.Background(), tiny.URL+"/a.wav", nil)
		if !errors.Is(err, transcode.ErrDownloadFailed) {
			t.Fatalf("DetectURL() error = %v, want DownloadFailed", err)
		}
		if dec.calls != 0 {
			t.Errorf("decoder called %d times, want 0", dec.calls)
		}
	})

	t.Run("plain fetch error is wrapped", func(t *testing.T) {
		d := newSpyDetector(t, &spyDecoder{}, stubFetcher{err: errors.New("boom")})
		_, err := d.DetectURL(context.Background(), "http://example.invalid/a.wav", nil)
		if !errors.Is(err, transcode.ErrDownloadFailed) {
			t.Fatalf("DetectURL() error = %v, want DownloadFailed", err)
		}
	})

	t.Run("decode failure after download", func(t *testing.T) {
		dec := &spyDecoder{err: transcode.InvalidAudio("audio could not be decoded", nil)}
		d := newSpyDetector(t, dec, stubFetcher{data: make([]byte, 2000)})
		_, err := d.DetectURL(context.Background(), "http://example.invalid/a.wav", nil)
		if !errors.Is(err, transcode.ErrInvalidAudio) {
			t.Fatalf("DetectURL() error = %v, want InvalidAudio", err)
		}
	})
}

func TestDetector_EndToEnd(t *testing.T) {
	params := features.DefaultParams()
	ext, err := features.NewExtractor(params)
	if err != nil {
		t.Fatalf("NewExtractor() error = %v", err)
	}

	coef := make([]float64, params.Dimension())
	coef[0] = 0.001 // mean of C0
	model, err := classifier.New(classifier.Artifact{
		ModelVersion:  "v1.1",
		Kind:          classifier.KindLogisticRegression,
		Coefficients:  coef,
		FeatureParams: params,
	}, params)
	if err != nil {
		t.Fatalf("classifier.New() error = %v", err)
	}

	d, err := NewDetector(transcode.NewDecoder(nil), stubFetcher{}, ext, model,
		AggregatorConfig{ChunkDuration: DefaultAggregatorConfig().ChunkDuration, Workers: 2}, DefaultConfig())
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}

	samples := make([]float64, 3*testRate)
	for i := range samples {
		samples[i] = 0.4*math.Sin(2*math.Pi*220*float64(i)/testRate) + 0.1*math.Sin(2*math.Pi*1330*float64(i)/testRate)
	}
	var buf bytes.Buffer
	if err := transcode.EncodeWAV(&buf, &transcode.Waveform{Samples: samples, SampleRate: testRate}); err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}

	res, err := d.DetectUpload(context.Background(), "speech.wav", buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("DetectUpload() error = %v", err)
	}
	if res.ModelVersion != "v1.1" {
		t.Errorf("ModelVersion = %q", res.ModelVersion)
	}
	// 3 s at 2 s chunks: one full chunk and a 1 s tail that is exactly half.
	if len(res.Chunks) != 2 {
		t.Errorf("Chunks = %d, want 2", len(res.Chunks))
	}
	if res.Confidence < 0 || res.Confidence > 1 {
		t.Errorf("Confidence = %v out of range", res.Confidence)
	}
	want := Decide(res.RawConfidence)
	if res.Prediction != want.Label || res.Explanation != want.Explanation {
		t.Errorf("result label/explanation do not match Decide(%v)", res.RawConfidence)
	}

	again, err := d.DetectUpload(context.Background(), "speech.wav", buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("second DetectUpload() error = %v", err)
	}
	if again.RawConfidence != res.RawConfidence {
		t.Errorf("non-deterministic confidence: %v vs %v", again.RawConfidence, res.RawConfidence)
	}
}
