package triage

import (
	"context"

	"github.com/google/uuid"
)

// Store persists outcomes together with their tests and appointment.
type Store interface {
	// Save assigns ids to the outcome and its children and writes them in
	// one transaction.
	Save(ctx context.Context, o *Outcome) error
	GetByID(ctx context.Context, id uuid.UUID) (*Outcome, error)
	ListByPatient(ctx context.Context, patientID string) ([]*Outcome, error)
	MarkReportGenerated(ctx context.Context, id uuid.UUID) error

	GetTests(ctx context.Context, outcomeID uuid.UUID) ([]*RecommendedTest, error)
	GetAppointment(ctx context.Context, outcomeID uuid.UUID) (*FollowUpAppointment, error)
	GetTest(ctx context.Context, id uuid.UUID) (*RecommendedTest, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*FollowUpAppointment, error)
	ListTestsByPatient(ctx context.Context, patientID string) ([]*RecommendedTest, error)
	// UpdateTest and UpdateAppointment write only while the stored status
	// still equals from; a row that moved on in the meantime is a Conflict.
	UpdateTest(ctx context.Context, t *RecommendedTest, from string) error
	UpdateAppointment(ctx context.Context, a *FollowUpAppointment, from string) error
}

// PatientSummary is the patient data a report needs.
type PatientSummary struct {
	NationalID string `json:"national_id"`
	Name       string `json:"name"`
	Age        int    `json:"age"`
	Gender     string `json:"gender"`
	Email      string `json:"email"`
}

// PatientDirectory answers patient questions for the triage flow.
type PatientDirectory interface {
	Exists(ctx context.Context, nationalID string) (bool, error)
	Summary(ctx context.Context, nationalID string) (*PatientSummary, error)
}
