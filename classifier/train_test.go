package classifier

import (
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/RyanBlaney/sonido-voz/features"
)

// separableData puts class 1 around +offset and class 0 around -offset on
// the first feature; the others are noise at a large scale.
func separableData(n int, offset float64, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	dim := features.DefaultParams().Dimension()
	X := make([][]float64, n)
	y := make([]int, n)
	for i := range X {
		X[i] = make([]float64, dim)
		for j := range X[i] {
			X[i][j] = 100 + 40*rng.NormFloat64()
		}
		y[i] = i % 2
		if y[i] == 1 {
			X[i][0] = offset + rng.NormFloat64()
		} else {
			X[i][0] = -offset + rng.NormFloat64()
		}
	}
	return X, y
}

func TestTrain_Separable(t *testing.T) {
	params := features.DefaultParams()
	X, y := separableData(200, 5, 1)

	artifact, err := Train(X, y, params, DefaultTrainOptions())
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if artifact.Scaler == nil {
		t.Fatal("Scaler = nil, want a fitted scaler")
	}
	if artifact.Coefficients[0] <= 0 {
		t.Errorf("coefficient of the informative feature = %v, want positive", artifact.Coefficients[0])
	}

	model, err := New(*artifact, params)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	testX, testY := separableData(100, 5, 2)
	metrics, err := Evaluate(model, testX, testY)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if metrics.Accuracy < 0.95 {
		t.Errorf("Accuracy = %v, want >= 0.95", metrics.Accuracy)
	}
	if metrics.Samples != 100 || metrics.F1 <= 0 {
		t.Errorf("metrics = %+v", metrics)
	}
}

func TestTrain_WithoutScaler(t *testing.T) {
	params := features.DefaultParams()
	X, y := separableData(100, 5, 3)

	opts := DefaultTrainOptions()
	opts.Standardize = false
	artifact, err := Train(X, y, params, opts)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if artifact.Scaler != nil {
		t.Error("Scaler should be nil when standardization is off")
	}
}

func TestTrain_Errors(t *testing.T) {
	params := features.DefaultParams()
	good, labels := separableData(10, 3, 4)

	short := [][]float64{{1, 2, 3}, {4, 5, 6}}
	nan := separableCopy(good)
	nan[3][2] = math.NaN()

	tests := []struct {
		name string
		X    [][]float64
		y    []int
		opts TrainOptions
	}{
		{"empty", nil, nil, DefaultTrainOptions()},
		{"length mismatch", good, labels[:5], DefaultTrainOptions()},
		{"wrong dimension", short, []int{0, 1}, DefaultTrainOptions()},
		{"non-finite", nan, labels, DefaultTrainOptions()},
		{"single class", good, make([]int, len(good)), DefaultTrainOptions()},
		{"bad label", good, append([]int{2}, labels[1:]...), DefaultTrainOptions()},
		{"zero C", good, labels, TrainOptions{ModelVersion: "v", C: 0}},
		{"no version", good, labels, TrainOptions{C: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Train(tt.X, tt.y, params, tt.opts); err == nil {
				t.Error("Train() expected error")
			}
		})
	}
}

func TestTrain_IterationLimit(t *testing.T) {
	params := features.DefaultParams()
	X, y := separableData(200, 5, 1)

	opts := DefaultTrainOptions()
	opts.MaxIterations = 1

	artifact, err := Train(X, y, params, opts)
	if err != nil {
		t.Fatalf("Train() error = %v, want best weights kept", err)
	}
	if len(artifact.Coefficients) != params.Dimension() {
		t.Errorf("coefficients = %d, want %d", len(artifact.Coefficients), params.Dimension())
	}

	opts.RequireConvergence = true
	if _, err := Train(X, y, params, opts); !errors.Is(err, ErrNotConverged) {
		t.Errorf("Train() error = %v, want ErrNotConverged", err)
	}

	opts.MaxIterations = DefaultTrainOptions().MaxIterations
	if _, err := Train(X, y, params, opts); err != nil {
		t.Errorf("Train() with a full budget error = %v", err)
	}
}

func separableCopy(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i := range X {
		out[i] = append([]float64(nil), X[i]...)
	}
	return out
}

func TestLogLossGradient(t *testing.T) {
	X := [][]float64{{0.5, -1}, {1.5, 2}, {-0.3, 0.7}}
	y := []int{1, 0, 1}
	w := []float64{0.2, -0.4, 0.1}

	grad := make([]float64, len(w))
	logLoss(w, X, y, 2.0, grad)

	const h = 1e-6
	for i := range w {
		plus := append([]float64(nil), w...)
		minus := append([]float64(nil), w...)
		plus[i] += h
		minus[i] -= h
		numeric := (logLoss(plus, X, y, 2.0, nil) - logLoss(minus, X, y, 2.0, nil)) / (2 * h)
		if math.Abs(numeric-grad[i]) > 1e-5 {
			t.Errorf("grad[%d] = %v, numeric %v", i, grad[i], numeric)
		}
	}
}

func TestSplit(t *testing.T) {
	train, test := Split(10, 0.2, 42)
	if len(train) != 8 || len(test) != 2 {
		t.Fatalf("Split() = %d/%d, want 8/2", len(train), len(test))
	}
	seen := map[int]bool{}
	for _, i := range append(train, test...) {
		if seen[i] {
			t.Fatalf("index %d appears twice", i)
		}
		seen[i] = true
	}

	again, _ := Split(10, 0.2, 42)
	for i := range train {
		if train[i] != again[i] {
			t.Fatal("Split() is not deterministic for a fixed seed")
		}
	}
}

func TestArtifactSaveLoad(t *testing.T) {
	params := features.DefaultParams()
	X, y := separableData(60, 4, 5)
	artifact, err := Train(X, y, params, DefaultTrainOptions())
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "model.json")
	if err := artifact.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	model, err := Load(path, params)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	direct, _ := New(*artifact, params)

	p1, _ := model.Predict(X[0])
	p2, _ := direct.Predict(X[0])
	if math.Abs(p1-p2) > 1e-12 {
		t.Errorf("loaded prediction %v differs from in-memory %v", p1, p2)
	}
}
