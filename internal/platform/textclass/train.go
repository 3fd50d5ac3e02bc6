package textclass

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Example is one labelled training document.
type Example struct {
	Text  string
	Label string
}

// TrainOptions controls the batch gradient descent run. Training is fully
// deterministic: weights start at zero and examples are visited in order.
type TrainOptions struct {
	MaxFeatures  int
	Epochs       int
	LearningRate float64
	L2           float64
}

var DefaultTrainOptions = TrainOptions{
	MaxFeatures:  100,
	Epochs:       1000,
	LearningRate: 1.0,
	L2:           1e-4,
}

// Train fits a vectorizer and a softmax model on examples.
func Train(examples []Example, opts TrainOptions) (*Classifier, error) {
	if len(examples) == 0 {
		return nil, errors.New("train: no examples")
	}
	if opts.Epochs <= 0 || opts.LearningRate <= 0 {
		return nil, fmt.Errorf("train: epochs and learning rate must be positive")
	}

	docs := make([][]string, len(examples))
	labelSet := make(map[string]struct{})
	for i, ex := range examples {
		if strings.TrimSpace(ex.Label) == "" {
			return nil, fmt.Errorf("train: example %d has no label", i)
		}
		docs[i] = Tokenize(ex.Text)
		labelSet[ex.Label] = struct{}{}
	}

	labels := make([]string, 0, len(labelSet))
	for l := range labelSet {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	labelIdx := make(map[string]int, len(labels))
	for i, l := range labels {
		labelIdx[l] = i
	}

	vec := FitVectorizer(docs, opts.MaxFeatures)
	xs := make([][]Feature, len(docs))
	ys := make([]int, len(docs))
	for i, doc := range docs {
		xs[i] = vec.Transform(doc)
		ys[i] = labelIdx[examples[i].Label]
	}

	m := &Model{
		Labels:  labels,
		Weights: make([][]float64, len(labels)),
		Bias:    make([]float64, len(labels)),
	}
	for k := range m.Weights {
		m.Weights[k] = make([]float64, vec.Len())
	}

	n := float64(len(xs))
	gradW := make([][]float64, len(labels))
	for k := range gradW {
		gradW[k] = make([]float64, vec.Len())
	}
	gradB := make([]float64, len(labels))

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		for k := range gradW {
			for j := range gradW[k] {
				gradW[k][j] = opts.L2 * m.Weights[k][j]
			}
			gradB[k] = 0
		}
		for i, x := range xs {
			probs := m.Probabilities(x)
			for k, p := range probs {
				diff := p
				if k == ys[i] {
					diff -= 1
				}
				diff /= n
				gradB[k] += diff
				for _, f := range x {
					gradW[k][f.Index] += diff * f.Value
				}
			}
		}
		for k := range m.Weights {
			for j := range m.Weights[k] {
				m.Weights[k][j] -= opts.LearningRate * gradW[k][j]
			}
			m.Bias[k] -= opts.LearningRate * gradB[k]
		}
	}

	c := &Classifier{Vectorizer: vec, Model: m}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
