package ml

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"energyflow/dataset"
)

// TrainOptions 训练参数
type TrainOptions struct {
	TestRatio float64
	Seed      int64
	Trees     int
	MaxDepth  int
	// ModelPath, when set, is where the trained model is saved.
	ModelPath string
}

func (o TrainOptions) withDefaults() TrainOptions {
	if o.TestRatio == 0 {
		o.TestRatio = DefaultTestRatio
	}
	if o.Seed == 0 {
		o.Seed = DefaultSeed
	}
	return o
}

// RegressionResult 回归训练结果
type RegressionResult struct {
	Model     *LinearRegression
	MSE       float64
	TrainRows int
	TestRows  int
	Features  []string
	Target    string
	TrainedAt time.Time
}

// ClassificationResult 分类训练结果
type ClassificationResult struct {
	Model      *RandomForest
	Report     *ClassificationReport
	ClassNames []string
	TrainRows  int
	TestRows   int
	Features   []string
	Target     string
	TrainedAt  time.Time
}

// TrainRegressionModel fits a linear regression on a seeded train split and
// reports the mean squared error on the held-out rows.
func TrainRegressionModel(ds *dataset.Dataset, features []string, target string, opts TrainOptions) (*RegressionResult, error) {
	opts = opts.withDefaults()
	x, err := BuildTrainingSet(ds, features)
	if err != nil {
		return nil, err
	}
	y, err := RegressionTargets(ds, target)
	if err != nil {
		return nil, err
	}
	trainIdx, testIdx, err := TrainTestSplit(len(x), opts.TestRatio, opts.Seed)
	if err != nil {
		return nil, err
	}

	model := &LinearRegression{}
	if err := model.Fit(pickRows(x, trainIdx), pickRows(y, trainIdx)); err != nil {
		return nil, fmt.Errorf("fit linear regression: %w", err)
	}

	testX, testY := pickRows(x, testIdx), pickRows(y, testIdx)
	predicted := make([]float64, len(testX))
	for i, row := range testX {
		if predicted[i], err = model.Predict(row); err != nil {
			return nil, err
		}
	}
	mse, err := MSE(testY, predicted)
	if err != nil {
		return nil, err
	}

	if err := saveModel(model, opts.ModelPath); err != nil {
		return nil, err
	}
	return &RegressionResult{
		Model:     model,
		MSE:       mse,
		TrainRows: len(trainIdx),
		TestRows:  len(testIdx),
		Features:  features,
		Target:    target,
		TrainedAt: time.Now(),
	}, nil
}

// TrainClassificationModel trains a random forest on a seeded train split and
// scores it on the held-out rows.
func TrainClassificationModel(ds *dataset.Dataset, features []string, target string, opts TrainOptions) (*ClassificationResult, error) {
	opts = opts.withDefaults()
	x, err := BuildTrainingSet(ds, features)
	if err != nil {
		return nil, err
	}
	labels, classNames, err := ClassLabels(ds, target)
	if err != nil {
		return nil, err
	}
	trainIdx, testIdx, err := TrainTestSplit(len(x), opts.TestRatio, opts.Seed)
	if err != nil {
		return nil, err
	}

	model := NewRandomForest(opts.Trees, opts.MaxDepth, opts.Seed)
	if err := model.Train(pickRows(x, trainIdx), pickRows(labels, trainIdx)); err != nil {
		return nil, fmt.Errorf("train random forest: %w", err)
	}

	testX, testY := pickRows(x, testIdx), pickRows(labels, testIdx)
	predicted := make([]int, len(testX))
	for i, row := range testX {
		if predicted[i], _, err = model.Predict(row); err != nil {
			return nil, err
		}
	}
	report, err := NewClassificationReport(testY, predicted)
	if err != nil {
		return nil, err
	}

	if err := saveModel(model, opts.ModelPath); err != nil {
		return nil, err
	}
	return &ClassificationResult{
		Model:      model,
		Report:     report,
		ClassNames: classNames,
		TrainRows:  len(trainIdx),
		TestRows:   len(testIdx),
		Features:   features,
		Target:     target,
		TrainedAt:  time.Now(),
	}, nil
}

func saveModel(model Model, path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create model dir: %w", err)
	}
	if err := model.Save(path); err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}
	return nil
}
