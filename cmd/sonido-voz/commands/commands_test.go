package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/RyanBlaney/sonido-voz/classifier"
	"github.com/RyanBlaney/sonido-voz/detection"
	"github.com/RyanBlaney/sonido-voz/features"
	"github.com/RyanBlaney/sonido-voz/transcode"
)

func writeWAV(t *testing.T, path string, samples []float64) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := transcode.EncodeWAV(f, &transcode.Waveform{SampleRate: 16000, Samples: samples}); err != nil {
		t.Fatal(err)
	}
}

func tone(freq, seconds float64) []float64 {
	out := make([]float64, int(seconds*16000))
	for i := range out {
		out[i] = 0.6 * math.Sin(2*math.Pi*freq*float64(i)/16000)
	}
	return out
}

func noise(seed int64, seconds float64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, int(seconds*16000))
	for i := range out {
		out[i] = 0.3 * rng.NormFloat64()
	}
	return out
}

func run(t *testing.T, args ...string) []byte {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append([]string{"--log-level", "error", "--env-file", ""}, args...))
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.Bytes()
}

func TestFeaturesCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeWAV(t, path, tone(300, 1.5))

	var report featureReport
	if err := json.Unmarshal(run(t, "features", path), &report); err != nil {
		t.Fatal(err)
	}
	if len(report.Vector) != 26 {
		t.Errorf("vector has %d values, want 26", len(report.Vector))
	}
	if report.Fingerprint != features.DefaultParams().Fingerprint() {
		t.Errorf("fingerprint = %q", report.Fingerprint)
	}
	if math.Abs(report.Duration-1.5) > 1e-9 {
		t.Errorf("duration = %v, want 1.5", report.Duration)
	}
	if report.Descriptors != nil {
		t.Error("descriptors present without --describe")
	}
}

func TestFeaturesCommand_Describe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeWAV(t, path, tone(300, 1.5))
	defer featuresCmd.Flags().Set("describe", "false")

	var report featureReport
	if err := json.Unmarshal(run(t, "features", "--describe", path), &report); err != nil {
		t.Fatal(err)
	}
	if report.Descriptors == nil {
		t.Fatal("descriptors missing")
	}
	if c := report.Descriptors.SpectralCentroidHz; c < 200 || c > 450 {
		t.Errorf("centroid = %.1f Hz, want near 300", c)
	}
}

func TestNormalizeCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.wav")
	writeWAV(t, in, tone(500, 1))

	run(t, "normalize", in, out)

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if transcode.SniffFormat(data) != transcode.FormatWAV {
		t.Fatal("output is not a WAV file")
	}
}

func TestNormalizeCommand_Stdin(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.wav")
	writeWAV(t, in, tone(500, 1))

	data, err := os.ReadFile(in)
	if err != nil {
		t.Fatal(err)
	}
	rootCmd.SetIn(bytes.NewReader(data))
	defer rootCmd.SetIn(nil)

	run(t, "normalize", "-", out)

	written, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	wf, err := transcode.NewDecoder(nil).Decode(context.Background(), written)
	if err != nil {
		t.Fatalf("decode normalized output: %v", err)
	}
	if wf.Len() != 16000 {
		t.Errorf("normalized output has %d samples, want 16000", wf.Len())
	}
}

func TestTrainThenDetect(t *testing.T) {
	dir := t.TempDir()
	for _, sub := range []string{"human", "ai"} {
		if err := os.MkdirAll(filepath.Join(dir, "data", sub), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 6; i++ {
		writeWAV(t, filepath.Join(dir, "data", "human", "h"+string(rune('a'+i))+".wav"), tone(150+float64(i)*20, 2.5))
		writeWAV(t, filepath.Join(dir, "data", "ai", "a"+string(rune('a'+i))+".wav"), noise(int64(i), 2.5))
	}
	// Undecodable files are skipped, not fatal.
	if err := os.WriteFile(filepath.Join(dir, "data", "ai", "broken.wav"), []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	modelPath := filepath.Join(dir, "models", "model.json")
	var report map[string]any
	if err := json.Unmarshal(run(t, "train", filepath.Join(dir, "data"), "-o", modelPath, "--version", "v-test"), &report); err != nil {
		t.Fatal(err)
	}
	if report["model_version"] != "v-test" {
		t.Errorf("report = %v", report)
	}
	if _, err := classifier.Load(modelPath, features.DefaultParams()); err != nil {
		t.Fatalf("trained artifact does not load: %v", err)
	}

	t.Setenv("VOZ_MODEL_PATH", modelPath)
	clip := filepath.Join(dir, "clip.wav")
	writeWAV(t, clip, noise(99, 4))

	var res detection.Result
	if err := json.Unmarshal(run(t, "detect", clip, "--request-id", "cli-1"), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.ModelVersion != "v-test" {
		t.Errorf("result = %+v", res)
	}
	if res.RequestID == nil || *res.RequestID != "cli-1" {
		t.Errorf("request_id = %v", res.RequestID)
	}
	if res.Prediction != detection.LabelAIGenerated {
		t.Errorf("noise clip predicted %q, want ai_generated", res.Prediction)
	}
}
