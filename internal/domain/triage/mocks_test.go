package triage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medtriage/triage/internal/platform/apperror"
	"github.com/medtriage/triage/internal/platform/events"
)

// -- Mock Store --

type mockStore struct {
	mu       sync.Mutex
	outcomes map[uuid.UUID]*Outcome
	saveErr  error
	saves    int
}

func newMockStore() *mockStore {
	return &mockStore{outcomes: make(map[uuid.UUID]*Outcome)}
}

func (m *mockStore) Save(_ context.Context, o *Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	o.ID = uuid.New()
	for _, t := range o.Tests {
		t.ID = uuid.New()
		t.OutcomeID = o.ID
		t.CreatedAt = o.CreatedAt
		t.UpdatedAt = o.CreatedAt
	}
	if o.Appointment != nil {
		o.Appointment.ID = uuid.New()
		o.Appointment.OutcomeID = o.ID
		o.Appointment.CreatedAt = o.CreatedAt
		o.Appointment.UpdatedAt = o.CreatedAt
	}
	m.outcomes[o.ID] = o
	return nil
}

func (m *mockStore) GetByID(_ context.Context, id uuid.UUID) (*Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.outcomes[id]
	if !ok {
		return nil, apperror.NotFound("diagnosis %s not found", id)
	}
	return o, nil
}

func (m *mockStore) ListByPatient(_ context.Context, patientID string) ([]*Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*Outcome{}
	for _, o := range m.outcomes {
		if o.PatientID == patientID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockStore) MarkReportGenerated(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.outcomes[id]
	if !ok {
		return apperror.NotFound("diagnosis %s not found", id)
	}
	o.ReportGenerated = true
	return nil
}

func (m *mockStore) GetTests(_ context.Context, outcomeID uuid.UUID) ([]*RecommendedTest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.outcomes[outcomeID]
	if !ok {
		return []*RecommendedTest{}, nil
	}
	return o.Tests, nil
}

func (m *mockStore) GetAppointment(_ context.Context, outcomeID uuid.UUID) (*FollowUpAppointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.outcomes[outcomeID]
	if !ok || o.Appointment == nil {
		return nil, apperror.NotFound("appointment for diagnosis %s not found", outcomeID)
	}
	return o.Appointment, nil
}

func (m *mockStore) findTest(id uuid.UUID) *RecommendedTest {
	for _, o := range m.outcomes {
		for _, t := range o.Tests {
			if t.ID == id {
				return t
			}
		}
	}
	return nil
}

func (m *mockStore) GetTest(_ context.Context, id uuid.UUID) (*RecommendedTest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.findTest(id)
	if t == nil {
		return nil, apperror.NotFound("test %s not found", id)
	}
	cp := *t
	return &cp, nil
}

func (m *mockStore) GetAppointmentByID(_ context.Context, id uuid.UUID) (*FollowUpAppointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.outcomes {
		if o.Appointment != nil && o.Appointment.ID == id {
			cp := *o.Appointment
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("appointment %s not found", id)
}

func (m *mockStore) ListTestsByPatient(_ context.Context, patientID string) ([]*RecommendedTest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*RecommendedTest{}
	for _, o := range m.outcomes {
		if o.PatientID == patientID {
			out = append(out, o.Tests...)
		}
	}
	return out, nil
}

func (m *mockStore) UpdateTest(_ context.Context, t *RecommendedTest, from string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.findTest(t.ID)
	if cur == nil {
		return apperror.NotFound("test %s not found", t.ID)
	}
	if cur.Status != from {
		return apperror.Conflict("test %s is %s, no longer %s", t.ID, cur.Status, from)
	}
	t.UpdatedAt = time.Now().UTC()
	*cur = *t
	return nil
}

func (m *mockStore) UpdateAppointment(_ context.Context, a *FollowUpAppointment, from string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.outcomes {
		if o.Appointment != nil && o.Appointment.ID == a.ID {
			if o.Appointment.Status != from {
				return apperror.Conflict("appointment %s is %s, no longer %s", a.ID, o.Appointment.Status, from)
			}
			a.UpdatedAt = time.Now().UTC()
			*o.Appointment = *a
			return nil
		}
	}
	return apperror.NotFound("appointment %s not found", a.ID)
}

// -- Mock Patient Directory --

type mockDirectory struct {
	patients map[string]PatientSummary
	lookups  int
}

func newMockDirectory(ids ...string) *mockDirectory {
	d := &mockDirectory{patients: make(map[string]PatientSummary)}
	for _, id := range ids {
		d.patients[id] = PatientSummary{NationalID: id, Name: "Ana Pérez", Age: 34, Gender: "F", Email: id + "@example.com"}
	}
	return d
}

func (d *mockDirectory) Exists(_ context.Context, id string) (bool, error) {
	d.lookups++
	_, ok := d.patients[id]
	return ok, nil
}

func (d *mockDirectory) Summary(_ context.Context, id string) (*PatientSummary, error) {
	p, ok := d.patients[id]
	if !ok {
		return nil, apperror.NotFound("patient %s not found", id)
	}
	return &p, nil
}

// -- Fake classifier and artifact source --

type fakeClassifier struct {
	mu        sync.Mutex
	label     string
	posterior float64
	labels    []string
	calls     int
	lastText  string
}

func (f *fakeClassifier) Classify(text string) (string, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastText = text
	return f.label, f.posterior
}

func (f *fakeClassifier) Labels() []string { return f.labels }

type fakeSource struct {
	artifact *Artifact
	err      error
}

func (s *fakeSource) Acquire(context.Context) (*Artifact, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.artifact, nil
}

func fakeArtifact(clf *fakeClassifier) *Artifact {
	return &Artifact{
		Classifier: clf,
		Knowledge:  ReferenceKnowledgeBase(),
		Version:    "test-v1",
		CreatedAt:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

// -- Recording publisher --

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}
