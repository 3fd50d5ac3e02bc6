package textclass

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

// Classifier pairs a fitted vectorizer with a trained model.
type Classifier struct {
	Vectorizer *Vectorizer `json:"vectorizer"`
	Model      *Model      `json:"model"`
}

// Prediction is one label with its posterior.
type Prediction struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Classify returns the most probable label for text and its posterior in [0,1].
func (c *Classifier) Classify(text string) (string, float64) {
	idx, p := c.Model.Predict(c.Vectorizer.Transform(Tokenize(text)))
	return c.Model.Labels[idx], p
}

// Rank returns every label ordered by descending posterior.
func (c *Classifier) Rank(text string) []Prediction {
	probs := c.Model.Probabilities(c.Vectorizer.Transform(Tokenize(text)))
	out := make([]Prediction, len(probs))
	for i, p := range probs {
		out[i] = Prediction{Label: c.Model.Labels[i], Probability: p}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Probability > out[j].Probability })
	return out
}

// Labels lists the labels the classifier can produce.
func (c *Classifier) Labels() []string {
	return append([]string(nil), c.Model.Labels...)
}

// Validate checks that the vectorizer and model agree on shape.
func (c *Classifier) Validate() error {
	if c.Vectorizer == nil || c.Model == nil {
		return errors.New("classifier: missing vectorizer or model")
	}
	if len(c.Model.Labels) == 0 {
		return errors.New("classifier: no labels")
	}
	if len(c.Vectorizer.IDF) != len(c.Vectorizer.Vocabulary) {
		return fmt.Errorf("classifier: vocabulary has %d terms but %d idf values",
			len(c.Vectorizer.Vocabulary), len(c.Vectorizer.IDF))
	}
	if len(c.Model.Weights) != len(c.Model.Labels) || len(c.Model.Bias) != len(c.Model.Labels) {
		return errors.New("classifier: weights and bias must have one row per label")
	}
	for k, w := range c.Model.Weights {
		if len(w) != c.Vectorizer.Len() {
			return fmt.Errorf("classifier: label %q has %d weights, want %d",
				c.Model.Labels[k], len(w), c.Vectorizer.Len())
		}
	}
	if !sort.StringsAreSorted(c.Model.Labels) {
		return errors.New("classifier: labels must be sorted")
	}
	return nil
}

// Encode writes the classifier as JSON.
func (c *Classifier) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

// Decode reads and validates a JSON classifier.
func Decode(r io.Reader) (*Classifier, error) {
	var c Classifier
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode classifier: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load reads a classifier from a JSON file.
func Load(path string) (*Classifier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}
