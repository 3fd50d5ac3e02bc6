package patient

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/medtriage/triage/internal/platform/apperror"
)

// -- Mock Patient Repository --

type mockRepo struct {
	mu       sync.Mutex
	patients map[string]*Patient
}

func newMockRepo() *mockRepo {
	return &mockRepo{patients: make(map[string]*Patient)}
}

func (m *mockRepo) emailTaken(email, except string) bool {
	for id, p := range m.patients {
		if id != except && p.Email == email {
			return true
		}
	}
	return false
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[p.NationalID]; ok {
		return apperror.Conflict("patient %s already exists", p.NationalID)
	}
	if m.emailTaken(p.Email, "") {
		return apperror.Conflict("email %s is already registered", p.Email)
	}
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.patients[p.NationalID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id string) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, apperror.NotFound("patient %s not found", id)
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) Exists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.patients[id]
	return ok, nil
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.patients[p.NationalID]
	if !ok {
		return apperror.NotFound("patient %s not found", p.NationalID)
	}
	if m.emailTaken(p.Email, p.NationalID) {
		return apperror.Conflict("email %s is already registered", p.Email)
	}
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	m.patients[p.NationalID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[id]; !ok {
		return apperror.NotFound("patient %s not found", id)
	}
	delete(m.patients, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.patients))
	for id := range m.patients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := []*Patient{}
	for i := offset; i < len(ids) && i < offset+limit; i++ {
		out = append(out, m.patients[ids[i]])
	}
	return out, len(ids), nil
}
