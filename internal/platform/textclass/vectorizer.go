package textclass

import (
	"math"
	"sort"
)

// Feature is one non-zero entry of a sparse document vector.
type Feature struct {
	Index int
	Value float64
}

// Vectorizer turns token lists into L2-normalised TF-IDF vectors.
type Vectorizer struct {
	Vocabulary map[string]int `json:"vocabulary"`
	IDF        []float64      `json:"idf"`
}

// FitVectorizer builds the vocabulary and inverse document frequencies from
// tokenized documents. When maxFeatures > 0 only the most frequent terms are
// kept (corpus-wide count, ties broken alphabetically). Vocabulary indices
// follow alphabetical order.
func FitVectorizer(docs [][]string, maxFeatures int) *Vectorizer {
	counts := make(map[string]int)
	docFreq := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool, len(doc))
		for _, tok := range doc {
			counts[tok]++
			if !seen[tok] {
				docFreq[tok]++
				seen[tok] = true
			}
		}
	}

	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	if maxFeatures > 0 && len(terms) > maxFeatures {
		sort.Slice(terms, func(i, j int) bool {
			if counts[terms[i]] != counts[terms[j]] {
				return counts[terms[i]] > counts[terms[j]]
			}
			return terms[i] < terms[j]
		})
		terms = terms[:maxFeatures]
	}
	sort.Strings(terms)

	n := float64(len(docs))
	v := &Vectorizer{
		Vocabulary: make(map[string]int, len(terms)),
		IDF:        make([]float64, len(terms)),
	}
	for i, term := range terms {
		v.Vocabulary[term] = i
		v.IDF[i] = math.Log((1+n)/(1+float64(docFreq[term]))) + 1
	}
	return v
}

// Len is the dimensionality of the produced vectors.
func (v *Vectorizer) Len() int { return len(v.IDF) }

// Transform returns the sparse TF-IDF vector for tokens, ordered by index.
// Unknown tokens are ignored; a document with no known token yields nil.
func (v *Vectorizer) Transform(tokens []string) []Feature {
	tf := make(map[int]float64)
	for _, tok := range tokens {
		if idx, ok := v.Vocabulary[tok]; ok {
			tf[idx]++
		}
	}
	if len(tf) == 0 {
		return nil
	}

	features := make([]Feature, 0, len(tf))
	var norm float64
	for idx, count := range tf {
		val := count * v.IDF[idx]
		features = append(features, Feature{Index: idx, Value: val})
		norm += val * val
	}
	norm = math.Sqrt(norm)
	for i := range features {
		features[i].Value /= norm
	}
	sort.Slice(features, func(i, j int) bool { return features[i].Index < features[j].Index })
	return features
}
