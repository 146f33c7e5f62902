package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/RyanBlaney/sonido-voz/algorithms/common"
	"github.com/RyanBlaney/sonido-voz/features"
	"github.com/RyanBlaney/sonido-voz/logging"
)

// TrainOptions configures logistic regression fitting
type TrainOptions struct {
	ModelVersion  string
	C             float64 // Inverse L2 strength; the intercept is not penalized
	MaxIterations int
	Standardize   bool // Fit a Scaler and store it in the artifact

	// RequireConvergence fails training when the optimiser stops early.
	// Otherwise the best weights found are kept and a warning is logged.
	RequireConvergence bool
}

// gradientTolerance is the gradient norm at which fitting counts as converged
const gradientTolerance = 1e-6

// ErrNotConverged is returned when RequireConvergence is set and the
// optimiser stopped before reaching a minimum
var ErrNotConverged = errors.New("classifier: optimiser did not converge")

// DefaultTrainOptions mirrors an unregularized-intercept L2 model with C=1
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		ModelVersion:  "v1.1",
		C:             1.0,
		MaxIterations: 1000,
		Standardize:   true,
	}
}

// Train fits a binary logistic regression on X with labels y (1 = synthetic)
// and returns a loadable artifact.
func Train(X [][]float64, y []int, params features.Params, opts TrainOptions) (*Artifact, error) {
	if len(X) == 0 || len(X) != len(y) {
		return nil, fmt.Errorf("classifier: need matching non-empty samples and labels, got %d and %d", len(X), len(y))
	}
	if opts.C <= 0 {
		return nil, fmt.Errorf("classifier: C must be positive, got %v", opts.C)
	}
	if opts.ModelVersion == "" {
		return nil, errors.New("classifier: model version is required")
	}

	dim := params.Dimension()
	var positives int
	for i, row := range X {
		if len(row) != dim {
			return nil, fmt.Errorf("%w: sample %d has %d values, want %d", ErrDimension, i, len(row), dim)
		}
		if !common.AllFinite(row) {
			return nil, fmt.Errorf("%w: sample %d", ErrNonFinite, i)
		}
		switch y[i] {
		case 0:
		case 1:
			positives++
		default:
			return nil, fmt.Errorf("classifier: label %d of sample %d is not 0 or 1", y[i], i)
		}
	}
	if positives == 0 || positives == len(y) {
		return nil, errors.New("classifier: training data must contain both classes")
	}

	var scaler *Scaler
	data := X
	if opts.Standardize {
		scaler = fitScaler(X, dim)
		data = make([][]float64, len(X))
		for i, row := range X {
			data[i] = make([]float64, dim)
			for j := range row {
				data[i][j] = (row[j] - scaler.Mean[j]) / scaler.Scale[j]
			}
		}
	}

	problem := optimize.Problem{
		Func: func(w []float64) float64 {
			return logLoss(w, data, y, opts.C, nil)
		},
		Grad: func(grad, w []float64) {
			logLoss(w, data, y, opts.C, grad)
		},
	}

	settings := &optimize.Settings{
		MajorIterations:   opts.MaxIterations,
		GradientThreshold: gradientTolerance,
	}
	result, err := optimize.Minimize(problem, make([]float64, dim+1), settings, &optimize.LBFGS{})
	if result == nil {
		return nil, fmt.Errorf("classifier: optimisation failed: %w", err)
	}

	logger := logging.WithFields(logging.Fields{
		"component":  "classifier",
		"function":   "Train",
		"samples":    len(X),
		"positives":  positives,
		"status":     result.Status.String(),
		"loss":       result.F,
		"iterations": result.MajorIterations,
	})

	if err == nil {
		err = result.Status.Err()
	}
	if err != nil {
		if opts.RequireConvergence {
			return nil, fmt.Errorf("%w: %s: %v", ErrNotConverged, result.Status, err)
		}
		logger.Warn("Optimiser stopped early, keeping best weights", logging.Fields{"error": err.Error()})
	}

	logger.Info("Model trained")

	w := result.X
	if !common.AllFinite(w) {
		return nil, fmt.Errorf("%w: optimiser produced non-finite weights", ErrNonFinite)
	}

	return &Artifact{
		ModelVersion:  opts.ModelVersion,
		Kind:          KindLogisticRegression,
		Coefficients:  append([]float64(nil), w[:dim]...),
		Intercept:     w[dim],
		Scaler:        scaler,
		FeatureParams: params,
	}, nil
}

// logLoss is C * sum(log-loss) + ||w||^2 / 2 over weights w = [coef..., intercept].
// When grad is non-nil it receives the gradient.
func logLoss(w []float64, X [][]float64, y []int, c float64, grad []float64) float64 {
	dim := len(w) - 1
	coef, intercept := w[:dim], w[dim]

	if grad != nil {
		for i := range grad {
			grad[i] = 0
		}
	}

	loss := 0.0
	for i, row := range X {
		z := floats.Dot(coef, row) + intercept
		// log(1 + exp(-z)) for y=1 and log(1 + exp(z)) for y=0, overflow safe
		if y[i] == 1 {
			loss += softplus(-z)
		} else {
			loss += softplus(z)
		}

		if grad != nil {
			r := sigmoid(z) - float64(y[i])
			floats.AddScaled(grad[:dim], c*r, row)
			grad[dim] += c * r
		}
	}

	loss *= c
	loss += 0.5 * floats.Dot(coef, coef)
	if grad != nil {
		floats.Add(grad[:dim], coef)
	}
	return loss
}

func softplus(x float64) float64 {
	if x > 0 {
		return x + math.Log1p(math.Exp(-x))
	}
	return math.Log1p(math.Exp(x))
}

func fitScaler(X [][]float64, dim int) *Scaler {
	s := &Scaler{Mean: make([]float64, dim), Scale: make([]float64, dim)}
	col := make([]float64, len(X))
	for j := 0; j < dim; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Mean[j], s.Scale[j] = mean, std
	}
	return s
}

// Metrics summarises binary classification quality at threshold 0.5
type Metrics struct {
	Samples   int     `json:"samples"`
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Evaluate scores X with the model and compares against y
func Evaluate(m *Model, X [][]float64, y []int) (Metrics, error) {
	if len(X) != len(y) {
		return Metrics{}, fmt.Errorf("classifier: %d samples but %d labels", len(X), len(y))
	}

	var tp, fp, tn, fn int
	for i, row := range X {
		p, err := m.Predict(row)
		if err != nil {
			return Metrics{}, fmt.Errorf("sample %d: %w", i, err)
		}
		predicted := p >= 0.5
		switch {
		case predicted && y[i] == 1:
			tp++
		case predicted:
			fp++
		case y[i] == 1:
			fn++
		default:
			tn++
		}
	}

	out := Metrics{Samples: len(X)}
	if len(X) > 0 {
		out.Accuracy = float64(tp+tn) / float64(len(X))
	}
	if tp+fp > 0 {
		out.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		out.Recall = float64(tp) / float64(tp+fn)
	}
	if out.Precision+out.Recall > 0 {
		out.F1 = 2 * out.Precision * out.Recall / (out.Precision + out.Recall)
	}
	return out, nil
}

// Split shuffles indices with seed and holds out testFraction of them
func Split(n int, testFraction float64, seed int64) (train, test []int) {
	idx := rand.New(rand.NewSource(seed)).Perm(n)
	nTest := int(math.Ceil(float64(n) * testFraction))
	if nTest >= n {
		nTest = n - 1
	}
	if nTest < 0 {
		nTest = 0
	}
	return idx[nTest:], idx[:nTest]
}

// Save writes the artifact as indented JSON
func (a *Artifact) Save(path string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("classifier: encode artifact: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("classifier: write artifact: %w", err)
	}
	return nil
}
