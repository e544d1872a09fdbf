package ml

import (
	"fmt"
)

const (
	TypeLinearRegression = "linear_regression"
	TypeDecisionTree     = "decision_tree"
	TypeRandomForest     = "random_forest"
)

func LoadModel(modelType, path string) (Model, error) {
	var model Model
	switch modelType {
	case TypeLinearRegression:
		model = &LinearRegression{}
	case TypeDecisionTree:
		model = &DecisionTree{}
	case TypeRandomForest:
		model = &RandomForest{}
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
	if err := model.Load(path); err != nil {
		return nil, err
	}
	return model, nil
}
