package ml

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecisionTreeTrainPredict(t *testing.T) {
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.9, 0.8},
		{0.8, 0.9},
	}
	labels := []int{0, 0, 2, 2}

	model := NewDecisionTree(2)
	require.NoError(t, model.Train(features, labels))

	label, confidence, err := model.Predict([]float64{0.15, 0.15})
	require.NoError(t, err)
	assert.Equal(t, 0, label)
	assert.Equal(t, 1.0, confidence)

	label, _, err = model.Predict([]float64{0.85, 0.85})
	require.NoError(t, err)
	assert.Equal(t, 2, label)
}

func TestDecisionTreeDeepSubtreeIndices(t *testing.T) {
	// four bands along one feature need two levels of splits
	var features [][]float64
	var labels []int
	for i := 0; i < 40; i++ {
		features = append(features, []float64{float64(i)})
		labels = append(labels, i/10%2)
	}

	model := NewDecisionTree(4)
	require.NoError(t, model.Train(features, labels))
	for i, row := range features {
		label, _, err := model.Predict(row)
		require.NoError(t, err)
		assert.Equal(t, labels[i], label, "row %d", i)
	}
}

func TestDecisionTreeErrors(t *testing.T) {
	model := &DecisionTree{}
	_, _, err := model.Predict([]float64{1})
	assert.Error(t, err)
	assert.Error(t, model.Train(nil, nil))
	assert.Error(t, model.Train([][]float64{{1}}, []int{1, 2}))
}

func TestDecisionTreeSaveLoad(t *testing.T) {
	model := NewDecisionTree(3)
	require.NoError(t, model.Train([][]float64{{0}, {1}, {10}, {11}}, []int{0, 0, 1, 1}))

	path := filepath.Join(t.TempDir(), "tree.json")
	require.NoError(t, model.Save(path))

	loaded, err := LoadModel(TypeDecisionTree, path)
	require.NoError(t, err)
	label, _, err := loaded.(Classifier).Predict([]float64{10.5})
	require.NoError(t, err)
	assert.Equal(t, 1, label)
}
