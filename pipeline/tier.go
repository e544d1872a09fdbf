package pipeline

import (
	"fmt"
	"math"
	"sort"

	"energyflow/dataset"
)

// TierColumn 消费分层列名
const TierColumn = "consumption_tier"

// Bins are N+1 strictly increasing edges with N labels. The first interval
// is closed on both sides, the rest are (edge[i-1], edge[i]].
type Bins struct {
	Edges  []float64 `yaml:"edges" json:"edges"`
	Labels []string  `yaml:"labels" json:"labels"`
}

// Validate 校验分箱配置
func (b Bins) Validate() error {
	if len(b.Labels) == 0 {
		return fmt.Errorf("bins: at least one label is required")
	}
	if len(b.Edges) != len(b.Labels)+1 {
		return fmt.Errorf("bins: %d edges for %d labels, want %d", len(b.Edges), len(b.Labels), len(b.Labels)+1)
	}
	for i := 1; i < len(b.Edges); i++ {
		if !(b.Edges[i] > b.Edges[i-1]) {
			return fmt.Errorf("bins: edges must be strictly increasing, edge %d (%g) <= edge %d (%g)", i, b.Edges[i], i-1, b.Edges[i-1])
		}
	}
	return nil
}

// Label returns the label of the bin containing v.
func (b Bins) Label(v float64) (string, bool) {
	last := len(b.Edges) - 1
	if math.IsNaN(v) || v < b.Edges[0] || v > b.Edges[last] {
		return "", false
	}
	idx := sort.SearchFloat64s(b.Edges, v)
	if idx == 0 {
		return b.Labels[0], true
	}
	return b.Labels[idx-1], true
}

// AssignTiers labels every row by the bin containing its value in column and
// stores the result in the consumption_tier column. The first out-of-range
// value fails the stage with a *dataset.BinningError.
func AssignTiers(ds *dataset.Dataset, column string, bins Bins) (*dataset.Dataset, error) {
	if err := bins.Validate(); err != nil {
		return nil, err
	}
	values, err := numericValues(ds, column)
	if err != nil {
		return nil, err
	}

	tiers := make([]dataset.Value, len(values))
	for i, v := range values {
		label, ok := bins.Label(v)
		if !ok {
			return nil, &dataset.BinningError{
				Column: column,
				Row:    i,
				Value:  v,
				Low:    bins.Edges[0],
				High:   bins.Edges[len(bins.Edges)-1],
			}
		}
		tiers[i] = dataset.Text(label)
	}

	out := ds.Clone()
	if err := out.SetColumn(&dataset.Column{Name: TierColumn, Kind: dataset.KindCategorical, Values: tiers}); err != nil {
		return nil, err
	}
	return out, nil
}

// HighUsageFlagColumn 高用量标记列名
const HighUsageFlagColumn = "high_usage_flag"

// FlagAbove adds a derived 0/1 column marking rows whose value in column is
// strictly greater than threshold.
func FlagAbove(ds *dataset.Dataset, column string, threshold float64, outColumn string) (*dataset.Dataset, error) {
	values, err := numericValues(ds, column)
	if err != nil {
		return nil, err
	}
	flags := make([]dataset.Value, len(values))
	for i, v := range values {
		if v > threshold {
			flags[i] = dataset.Number(1)
		} else {
			flags[i] = dataset.Number(0)
		}
	}
	out := ds.Clone()
	if err := out.SetColumn(&dataset.Column{Name: outColumn, Kind: dataset.KindDerived, Values: flags}); err != nil {
		return nil, err
	}
	return out, nil
}
