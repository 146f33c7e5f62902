package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-voz/classifier"
	"github.com/RyanBlaney/sonido-voz/features"
	"github.com/RyanBlaney/sonido-voz/logging"
	"github.com/RyanBlaney/sonido-voz/transcode"
)

var (
	trainOutput       string
	trainVersion      string
	trainTestFraction float64
	trainSeed         int64
	trainC            float64
	trainNoScaler     bool
	trainStrict       bool
)

var trainCmd = &cobra.Command{
	Use:   "train <data_dir>",
	Short: "Fit a model from labelled recordings",
	Long: `Fit a logistic regression model from <data_dir>/human (label 0) and
<data_dir>/ai (label 1). Every file is decoded and featurized exactly as the
service does it. A held-out split is evaluated and the artifact is written
with the feature parameters it was trained on.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dec, err := newDecoder(cfg)
		if err != nil {
			return err
		}
		ext, err := newExtractor(cfg)
		if err != nil {
			return err
		}

		var (
			X [][]float64
			y []int
		)
		for label, dir := range []string{"human", "ai"} {
			vecs, err := featurizeDir(cmd.Context(), dec, ext, filepath.Join(args[0], dir))
			if err != nil {
				return err
			}
			for _, v := range vecs {
				X = append(X, v)
				y = append(y, label)
			}
		}

		trainIdx, testIdx := classifier.Split(len(X), trainTestFraction, trainSeed)
		trainX, trainY := pick(X, y, trainIdx)
		testX, testY := pick(X, y, testIdx)

		opts := classifier.DefaultTrainOptions()
		opts.ModelVersion = trainVersion
		opts.C = trainC
		opts.Standardize = !trainNoScaler
		opts.RequireConvergence = trainStrict

		artifact, err := classifier.Train(trainX, trainY, ext.Params(), opts)
		if err != nil {
			return err
		}
		model, err := classifier.New(*artifact, ext.Params())
		if err != nil {
			return err
		}

		report := map[string]any{"train_samples": len(trainX)}
		if len(testX) > 0 {
			metrics, err := classifier.Evaluate(model, testX, testY)
			if err != nil {
				return err
			}
			report["test"] = metrics
		}

		if err := os.MkdirAll(filepath.Dir(trainOutput), 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		if err := artifact.Save(trainOutput); err != nil {
			return err
		}
		report["model_path"] = trainOutput
		report["model_version"] = artifact.ModelVersion

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

// featurizeDir extracts one vector per decodable file; undecodable files are skipped
func featurizeDir(ctx context.Context, dec *transcode.Decoder, ext *features.Extractor, dir string) ([][]float64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var out [][]float64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		wf, err := dec.Decode(ctx, data)
		if err != nil {
			logging.Warn("Skipping undecodable file", logging.Fields{"file": path, "error": err.Error()})
			continue
		}
		vec, err := ext.Extract(wf.Samples)
		if err != nil {
			logging.Warn("Skipping file without features", logging.Fields{"file": path, "error": err.Error()})
			continue
		}
		out = append(out, vec)
	}
	return out, nil
}

func pick(X [][]float64, y []int, idx []int) ([][]float64, []int) {
	px := make([][]float64, len(idx))
	py := make([]int, len(idx))
	for i, j := range idx {
		px[i], py[i] = X[j], y[j]
	}
	return px, py
}

func init() {
	trainCmd.Flags().StringVarP(&trainOutput, "output", "o", "models/voice_detector.json", "artifact output path")
	trainCmd.Flags().StringVar(&trainVersion, "version", "v1.1", "model_version written to the artifact")
	trainCmd.Flags().Float64Var(&trainTestFraction, "test-fraction", 0.2, "fraction of samples held out for evaluation")
	trainCmd.Flags().Int64Var(&trainSeed, "seed", 42, "shuffle seed for the split")
	trainCmd.Flags().Float64Var(&trainC, "C", 1.0, "inverse L2 regularization strength")
	trainCmd.Flags().BoolVar(&trainNoScaler, "no-scaler", false, "train on raw features without standardization")
	trainCmd.Flags().BoolVar(&trainStrict, "require-convergence", false, "fail when the optimiser stops before converging")
	rootCmd.AddCommand(trainCmd)
}
