package triage

import (
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

const (
	SeverityMild     = "Leve"
	SeverityModerate = "Moderada"
	SeverityHigh     = "Alta"
	SeverityUnknown  = "Desconocida"
)

// DiseaseProfile is the reference data attached to a disease label.
type DiseaseProfile struct {
	Severity    string   `yaml:"severity" json:"severity"`
	ExamNeeded  bool     `yaml:"exam_needed" json:"exam_needed"`
	Medications []string `yaml:"medications" json:"medications"`
}

// DefaultProfile is returned for labels the knowledge base does not know.
func DefaultProfile() DiseaseProfile {
	return DiseaseProfile{Severity: SeverityUnknown, ExamNeeded: false, Medications: []string{}}
}

// KnowledgeBase maps disease labels to profiles. It is never mutated after
// construction.
type KnowledgeBase struct {
	profiles map[string]DiseaseProfile
}

type knowledgeFile struct {
	Diseases map[string]DiseaseProfile `yaml:"diseases"`
}

func NewKnowledgeBase(profiles map[string]DiseaseProfile) *KnowledgeBase {
	kb := &KnowledgeBase{profiles: make(map[string]DiseaseProfile, len(profiles))}
	for label, p := range profiles {
		kb.profiles[label] = p
	}
	return kb
}

// Lookup returns the profile for label, or DefaultProfile. The returned
// medications slice is a copy.
func (kb *KnowledgeBase) Lookup(label string) DiseaseProfile {
	p, ok := kb.profiles[label]
	if !ok {
		return DefaultProfile()
	}
	if p.Severity == "" {
		p.Severity = SeverityUnknown
	}
	meds := make([]string, len(p.Medications))
	copy(meds, p.Medications)
	p.Medications = meds
	return p
}

// Labels returns the known disease labels, sorted.
func (kb *KnowledgeBase) Labels() []string {
	out := make([]string, 0, len(kb.profiles))
	for l := range kb.profiles {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Missing returns the labels in want that have no profile.
func (kb *KnowledgeBase) Missing(want []string) []string {
	var missing []string
	for _, l := range want {
		if _, ok := kb.profiles[l]; !ok {
			missing = append(missing, l)
		}
	}
	return missing
}

// DecodeKnowledgeBase parses a diseases.yaml document.
func DecodeKnowledgeBase(r io.Reader) (*KnowledgeBase, error) {
	var f knowledgeFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode knowledge base: %w", err)
	}
	if len(f.Diseases) == 0 {
		return nil, fmt.Errorf("decode knowledge base: no diseases")
	}
	for label, p := range f.Diseases {
		switch p.Severity {
		case SeverityMild, SeverityModerate, SeverityHigh, SeverityUnknown:
		default:
			return nil, fmt.Errorf("decode knowledge base: %s has invalid severity %q", label, p.Severity)
		}
	}
	return NewKnowledgeBase(f.Diseases), nil
}

// Encode writes the knowledge base as YAML.
func (kb *KnowledgeBase) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(knowledgeFile{Diseases: kb.profiles}); err != nil {
		return err
	}
	return enc.Close()
}
