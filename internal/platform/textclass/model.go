package textclass

import (
	"math"
)

// Model is a multinomial logistic regression over sparse features. Labels are
// sorted; Weights[k] holds the coefficients of Labels[k].
type Model struct {
	Labels  []string    `json:"labels"`
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
}

func (m *Model) scores(x []Feature) []float64 {
	out := make([]float64, len(m.Labels))
	for k := range m.Labels {
		s := m.Bias[k]
		w := m.Weights[k]
		for _, f := range x {
			if f.Index < len(w) {
				s += w[f.Index] * f.Value
			}
		}
		out[k] = s
	}
	return out
}

// Probabilities returns the softmax posterior for every label, in label order.
func (m *Model) Probabilities(x []Feature) []float64 {
	return softmax(m.scores(x))
}

// Predict returns the index of the most probable label and its posterior.
// Ties go to the lowest index.
func (m *Model) Predict(x []Feature) (int, float64) {
	probs := m.Probabilities(x)
	best := 0
	for k := 1; k < len(probs); k++ {
		if probs[k] > probs[best] {
			best = k
		}
	}
	return best, probs[best]
}

func softmax(z []float64) []float64 {
	out := make([]float64, len(z))
	if len(z) == 0 {
		return out
	}
	max := z[0]
	for _, v := range z[1:] {
		if v > max {
			max = v
		}
	}
	var sum float64
	for i, v := range z {
		out[i] = math.Exp(v - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
