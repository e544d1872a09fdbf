package ml

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// RandomForest bags decision trees over bootstrap samples and predicts by
// majority vote. Tree i is seeded with Seed+i, so training is reproducible
// regardless of scheduling.
type RandomForest struct {
	NTrees   int
	MaxDepth int
	Seed     int64

	trees []*DecisionTree
}

type forestPayload struct {
	Trees [][]TreeNode `json:"trees"`
}

// NewRandomForest 创建随机森林
func NewRandomForest(nTrees, maxDepth int, seed int64) *RandomForest {
	return &RandomForest{NTrees: nTrees, MaxDepth: maxDepth, Seed: seed}
}

func (rf *RandomForest) Train(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if rf.NTrees <= 0 {
		rf.NTrees = 100
	}
	if rf.MaxDepth <= 0 {
		rf.MaxDepth = 10
	}
	maxFeatures := int(math.Max(1, math.Round(math.Sqrt(float64(len(features[0]))))))

	trees := make([]*DecisionTree, rf.NTrees)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range trees {
		g.Go(func() error {
			rng := rand.New(rand.NewSource(rf.Seed + int64(i)))
			sampleX := make([][]float64, len(features))
			sampleY := make([]int, len(labels))
			for j := range sampleX {
				k := rng.Intn(len(features))
				sampleX[j] = features[k]
				sampleY[j] = labels[k]
			}
			tree := &DecisionTree{MaxDepth: rf.MaxDepth, MaxFeatures: maxFeatures, rng: rng}
			if err := tree.Train(sampleX, sampleY); err != nil {
				return err
			}
			trees[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	rf.trees = trees
	return nil
}

// Predict returns the majority label and the fraction of trees voting for it.
func (rf *RandomForest) Predict(features []float64) (int, float64, error) {
	if len(rf.trees) == 0 {
		return 0, 0, errors.New("model not trained")
	}
	votes := make([]int, 0, len(rf.trees))
	for _, tree := range rf.trees {
		label, _, err := tree.Predict(features)
		if err != nil {
			return 0, 0, err
		}
		votes = append(votes, label)
	}
	label, count := majorityLabel(votes)
	return label, float64(count) / float64(len(votes)), nil
}

func (rf *RandomForest) Save(path string) error {
	if len(rf.trees) == 0 {
		return errors.New("model not trained")
	}
	payload := forestPayload{Trees: make([][]TreeNode, len(rf.trees))}
	for i, tree := range rf.trees {
		payload.Trees[i] = tree.nodes
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func (rf *RandomForest) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var payload forestPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	rf.trees = make([]*DecisionTree, len(payload.Trees))
	for i, nodes := range payload.Trees {
		rf.trees[i] = &DecisionTree{nodes: nodes}
	}
	rf.NTrees = len(rf.trees)
	return nil
}
