package model

// forest averages the outputs of its regression trees.
type forest struct {
	trees []TreeSpec
}

func newForest(trees []TreeSpec) *forest {
	return &forest{trees: trees}
}

func (f *forest) predictBatch(rows [][]float64) []float64 {
	out := make([]float64, len(rows))
	for i, x := range rows {
		var sum float64
		for _, t := range f.trees {
			sum += t.predict(x)
		}
		out[i] = sum / float64(len(f.trees))
	}
	return out
}

func (t TreeSpec) predict(x []float64) float64 {
	node := 0
	for t.Left[node] != -1 {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.Left[node]
		} else {
			node = t.Right[node]
		}
	}
	return t.Value[node]
}
