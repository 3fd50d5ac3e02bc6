// Package blobstore archives rendered documents (diagnosis reports) under
// hierarchical keys. It defines the Store interface, an in-memory
// implementation for tests and development, and a MinIO/S3 implementation.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrTooLarge   = errors.New("object exceeds maximum allowed size")
	ErrMissingKey = errors.New("object key is required")
	ErrInvalidKey = errors.New("object key must be a relative path without '..' segments")
)

// MaxObjectSize caps a single archived document (10 MB).
const MaxObjectSize = 10 * 1024 * 1024

// Object describes a stored document.
type Object struct {
	Key         string            `json:"key"`
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	Hash        string            `json:"hash"`
	CreatedAt   time.Time         `json:"created_at"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// Store is implemented by every archive backend.
type Store interface {
	Put(ctx context.Context, obj Object, content io.Reader) (*Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, *Object, error)
	List(ctx context.Context, prefix string) ([]*Object, error)
	Delete(ctx context.Context, key string) error
}

// ValidateKey rejects empty, absolute and parent-relative keys.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrMissingKey
	}
	if strings.HasPrefix(key, "/") {
		return ErrInvalidKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || seg == "" {
			return ErrInvalidKey
		}
	}
	return nil
}

// readLimited reads content and computes its SHA-256, rejecting anything
// larger than MaxObjectSize.
func readLimited(content io.Reader) ([]byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(content, MaxObjectSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxObjectSize {
		return nil, "", ErrTooLarge
	}
	return data, fmt.Sprintf("%x", sha256.Sum256(data)), nil
}

type storedObject struct {
	meta    Object
	content []byte
}

// MemoryStore is a thread-safe in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*storedObject
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]*storedObject),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Put stores content under obj.Key, replacing any previous object.
func (s *MemoryStore) Put(_ context.Context, obj Object, content io.Reader) (*Object, error) {
	if err := ValidateKey(obj.Key); err != nil {
		return nil, err
	}
	data, hash, err := readLimited(content)
	if err != nil {
		return nil, err
	}

	obj.Size = int64(len(data))
	obj.Hash = hash
	obj.CreatedAt = s.now()
	if obj.ContentType == "" {
		obj.ContentType = "application/octet-stream"
	}

	s.mu.Lock()
	s.objects[obj.Key] = &storedObject{meta: obj, content: data}
	s.mu.Unlock()

	out := obj
	return &out, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, *Object, error) {
	s.mu.RLock()
	o, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrNotFound
	}
	meta := o.meta
	return io.NopCloser(bytes.NewReader(o.content)), &meta, nil
}

// List returns objects whose key starts with prefix, ordered by key.
func (s *MemoryStore) List(_ context.Context, prefix string) ([]*Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Object
	for key, o := range s.objects {
		if strings.HasPrefix(key, prefix) {
			m := o.meta
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return ErrNotFound
	}
	delete(s.objects, key)
	return nil
}
