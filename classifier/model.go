// Package classifier scores feature vectors with a pre-trained logistic
// regression model loaded from a JSON artifact.
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/sonido-voz/algorithms/common"
	"github.com/RyanBlaney/sonido-voz/features"
	"github.com/RyanBlaney/sonido-voz/logging"
)

// KindLogisticRegression is the only model kind the scorer evaluates
const KindLogisticRegression = "logistic_regression"

var (
	// ErrDimension is returned when a vector does not match the model input size
	ErrDimension = errors.New("classifier: feature dimension mismatch")
	// ErrNonFinite is returned when a vector contains NaN or Inf
	ErrNonFinite = errors.New("classifier: non-finite feature value")
)

// Artifact is the on-disk representation of a trained model
type Artifact struct {
	ModelVersion  string          `json:"model_version"`
	Kind          string          `json:"kind"`
	Coefficients  []float64       `json:"coefficients"`
	Intercept     float64         `json:"intercept"`
	Scaler        *Scaler         `json:"scaler,omitempty"`
	FeatureParams features.Params `json:"feature_params"`
}

// Scaler standardizes inputs as (x - mean) / scale before the linear term
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Model is an immutable, loaded classifier. It holds no mutable state, so a
// single *Model is shared by every in-flight request without locking.
type Model struct {
	version   string
	coef      []float64
	intercept float64
	mean      []float64
	invScale  []float64
	params    features.Params
}

// Load reads and validates the artifact at path. The artifact's feature
// parameters must equal expected; a mismatch fails here instead of silently
// degrading predictions at serving time.
func Load(path string, expected features.Params) (*Model, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "classifier",
		"function":  "Load",
		"path":      path,
	})

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classifier: read model artifact: %w", err)
	}

	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("classifier: parse model artifact: %w", err)
	}

	model, err := New(artifact, expected)
	if err != nil {
		return nil, err
	}

	logger.Info("Model loaded", logging.Fields{
		"model_version":  model.version,
		"dimension":      len(model.coef),
		"standardized":   model.mean != nil,
		"feature_params": model.params.Fingerprint(),
	})

	return model, nil
}

// New builds a Model from an in-memory artifact with the same checks as Load
func New(artifact Artifact, expected features.Params) (*Model, error) {
	if artifact.Kind != "" && artifact.Kind != KindLogisticRegression {
		return nil, fmt.Errorf("classifier: unsupported model kind %q", artifact.Kind)
	}
	if artifact.ModelVersion == "" {
		return nil, fmt.Errorf("classifier: model_version is required")
	}
	if diffs := expected.Diff(artifact.FeatureParams); len(diffs) > 0 {
		return nil, fmt.Errorf("classifier: feature parameters of model %s do not match extractor: %v", artifact.ModelVersion, diffs)
	}

	dim := expected.Dimension()
	if len(artifact.Coefficients) != dim {
		return nil, fmt.Errorf("classifier: expected %d coefficients, got %d", dim, len(artifact.Coefficients))
	}
	if !common.AllFinite(artifact.Coefficients) || !common.AllFinite([]float64{artifact.Intercept}) {
		return nil, fmt.Errorf("classifier: non-finite model weights")
	}

	model := &Model{
		version:   artifact.ModelVersion,
		coef:      append([]float64(nil), artifact.Coefficients...),
		intercept: artifact.Intercept,
		params:    artifact.FeatureParams,
	}

	if s := artifact.Scaler; s != nil {
		if len(s.Mean) != dim || len(s.Scale) != dim {
			return nil, fmt.Errorf("classifier: scaler expects %d values, got mean=%d scale=%d", dim, len(s.Mean), len(s.Scale))
		}
		if !common.AllFinite(s.Mean) || !common.AllFinite(s.Scale) {
			return nil, fmt.Errorf("classifier: non-finite scaler values")
		}
		model.mean = append([]float64(nil), s.Mean...)
		model.invScale = make([]float64, dim)
		for i, sc := range s.Scale {
			if sc == 0 {
				return nil, fmt.Errorf("classifier: scaler scale[%d] is zero", i)
			}
			model.invScale[i] = 1.0 / sc
		}
	}

	return model, nil
}

// Version returns the model_version string of the artifact
func (m *Model) Version() string {
	return m.version
}

// FeatureParams returns the extraction parameters the model was trained with
func (m *Model) FeatureParams() features.Params {
	return m.params
}

// Dimension is the expected feature vector length
func (m *Model) Dimension() int {
	return len(m.coef)
}

// Predict returns the probability in [0, 1] that vec comes from synthetic speech
func (m *Model) Predict(vec []float64) (float64, error) {
	if len(vec) != len(m.coef) {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(vec), len(m.coef))
	}
	if !common.AllFinite(vec) {
		return 0, ErrNonFinite
	}

	x := vec
	if m.mean != nil {
		x = make([]float64, len(vec))
		floats.SubTo(x, vec, m.mean)
		floats.Mul(x, m.invScale)
	}

	z := floats.Dot(m.coef, x) + m.intercept
	p := sigmoid(z)
	if math.IsNaN(p) {
		return 0, ErrNonFinite
	}

	return p, nil
}

// sigmoid is evaluated so that exp never overflows
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1.0 / (1.0 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1.0 + e)
}
