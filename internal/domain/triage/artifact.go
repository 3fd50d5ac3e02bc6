package triage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/twmb/murmur3"

	"github.com/medtriage/triage/internal/platform/textclass"
)

// Artifact file names inside an artifact directory.
const (
	ModelFile     = "model.json"
	KnowledgeFile = "diseases.yaml"
	ManifestFile  = "manifest.json"
	historyDir    = "history"
)

// ErrArtifactMissing is returned by LoadArtifact when the directory holds no
// artifact at all.
var ErrArtifactMissing = errors.New("artifact not found")

// Classifier maps symptom text to a disease label and its posterior.
type Classifier interface {
	Classify(text string) (string, float64)
	Labels() []string
}

// Artifact is a classifier paired with the knowledge base describing its
// labels. The pair is loaded and replaced as one unit.
type Artifact struct {
	Classifier Classifier
	Knowledge  *KnowledgeBase
	Version    string
	CreatedAt  time.Time
}

// Manifest ties the two artifact files together. It is written last, so a
// directory whose files do not match their recorded hashes is a partial write.
type Manifest struct {
	Version       string    `json:"version"`
	ModelHash     string    `json:"model_hash"`
	KnowledgeHash string    `json:"knowledge_hash"`
	Labels        []string  `json:"labels"`
	CreatedAt     time.Time `json:"created_at"`
}

func hashHex(parts ...[]byte) string {
	h := murmur3.New64()
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

func encodeArtifact(clf *textclass.Classifier, kb *KnowledgeBase) (model, knowledge []byte, err error) {
	var mb, kbuf bytes.Buffer
	if err := clf.Encode(&mb); err != nil {
		return nil, nil, fmt.Errorf("encode model: %w", err)
	}
	if err := kb.Encode(&kbuf); err != nil {
		return nil, nil, fmt.Errorf("encode knowledge base: %w", err)
	}
	return mb.Bytes(), kbuf.Bytes(), nil
}

func checkCoverage(clf Classifier, kb *KnowledgeBase) error {
	if missing := kb.Missing(clf.Labels()); len(missing) > 0 {
		return fmt.Errorf("knowledge base has no profile for %v", missing)
	}
	return nil
}

// NewArtifact pairs a trained classifier with its knowledge base. The version
// is the murmur3 fingerprint of both encoded files.
func NewArtifact(clf *textclass.Classifier, kb *KnowledgeBase) (*Artifact, error) {
	if err := clf.Validate(); err != nil {
		return nil, err
	}
	if err := checkCoverage(clf, kb); err != nil {
		return nil, err
	}
	model, knowledge, err := encodeArtifact(clf, kb)
	if err != nil {
		return nil, err
	}
	return &Artifact{
		Classifier: clf,
		Knowledge:  kb,
		Version:    hashHex(model, knowledge),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// WriteArtifact stores clf and kb in dir. Each file is replaced through a
// temporary file and rename; timestamped copies go to dir/history.
func WriteArtifact(dir string, clf *textclass.Classifier, kb *KnowledgeBase, now time.Time) (*Manifest, error) {
	if err := checkCoverage(clf, kb); err != nil {
		return nil, err
	}
	model, knowledge, err := encodeArtifact(clf, kb)
	if err != nil {
		return nil, err
	}
	m := Manifest{
		Version:       hashHex(model, knowledge),
		ModelHash:     hashHex(model),
		KnowledgeHash: hashHex(knowledge),
		Labels:        clf.Labels(),
		CreatedAt:     now.UTC(),
	}
	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}

	hist := filepath.Join(dir, historyDir)
	if err := os.MkdirAll(hist, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	stamp := now.UTC().Format("20060102_150405")
	for _, f := range []artifactFile{
		{"model_" + stamp + ".json", model},
		{"diseases_" + stamp + ".yaml", knowledge},
		{"manifest_" + stamp + ".json", manifest},
	} {
		if err := writeFileAtomic(filepath.Join(hist, f.name), f.data); err != nil {
			return nil, err
		}
	}

	// Manifest goes last: readers racing this write see a hash mismatch
	// rather than a mixed artifact.
	for _, f := range []artifactFile{{ModelFile, model}, {KnowledgeFile, knowledge}, {ManifestFile, manifest}} {
		if err := writeFileAtomic(filepath.Join(dir, f.name), f.data); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

type artifactFile struct {
	name string
	data []byte
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return os.Rename(tmp.Name(), path)
}

// ReadManifest reads dir/manifest.json.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrArtifactMissing
		}
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// LoadArtifact reads and verifies the artifact in dir. A missing or
// mismatched file fails the whole load.
func LoadArtifact(dir string) (*Artifact, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	model, err := os.ReadFile(filepath.Join(dir, ModelFile))
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	knowledge, err := os.ReadFile(filepath.Join(dir, KnowledgeFile))
	if err != nil {
		return nil, fmt.Errorf("read knowledge base: %w", err)
	}
	if hashHex(model) != m.ModelHash || hashHex(knowledge) != m.KnowledgeHash {
		return nil, fmt.Errorf("artifact %s: files do not match manifest %s", dir, m.Version)
	}

	clf, err := textclass.Decode(bytes.NewReader(model))
	if err != nil {
		return nil, err
	}
	kb, err := DecodeKnowledgeBase(bytes.NewReader(knowledge))
	if err != nil {
		return nil, err
	}
	if err := checkCoverage(clf, kb); err != nil {
		return nil, err
	}
	return &Artifact{
		Classifier: clf,
		Knowledge:  kb,
		Version:    m.Version,
		CreatedAt:  m.CreatedAt,
	}, nil
}
