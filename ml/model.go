// Package ml 提供能耗预测模型：线性回归、决策树、随机森林
package ml

// Model is anything that can be persisted to and restored from disk.
type Model interface {
	Save(path string) error
	Load(path string) error
}

// Classifier 分类模型
type Classifier interface {
	Model
	Train(features [][]float64, labels []int) error
	// Predict returns the predicted label and the model's confidence in it.
	Predict(features []float64) (int, float64, error)
}

// Regressor 回归模型
type Regressor interface {
	Model
	Fit(features [][]float64, targets []float64) error
	Predict(features []float64) (float64, error)
}
