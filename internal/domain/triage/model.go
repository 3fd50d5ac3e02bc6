package triage

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// ConfidenceThreshold is the percent below which an outcome is low
	// confidence. The comparison is strict: exactly 84.00 is confident.
	ConfidenceThreshold = 84.0
	FollowUpDelay       = 7 * 24 * time.Hour
	FollowUpReason      = "Evaluación de pruebas de apoyo"

	MessageConfident = "Diagnóstico completado"
)

// Test statuses.
const (
	TestRecommended = "recommended"
	TestScheduled   = "scheduled"
	TestCompleted   = "completed"
)

// Appointment statuses.
const (
	AppointmentScheduled = "scheduled"
	AppointmentCompleted = "completed"
	AppointmentCancelled = "cancelled"
)

// SymptomEntry is one structured symptom reported alongside the free text.
type SymptomEntry struct {
	Name         string `json:"name" validate:"notblank,max=120"`
	Intensity    int    `json:"intensity" validate:"min=1,max=10"`
	DurationDays int    `json:"duration_days" validate:"min=0"`
}

// SymptomReport is the classifier input.
type SymptomReport struct {
	Text    string         `json:"symptoms" validate:"notblank"`
	Entries []SymptomEntry `json:"symptom_entries,omitempty" validate:"dive"`
}

// ClassificationText is the free text followed by the entry names.
func (r SymptomReport) ClassificationText() string {
	text := r.Text
	for _, e := range r.Entries {
		text += " " + e.Name
	}
	return text
}

// Outcome is one triage decision with its children.
type Outcome struct {
	ID              uuid.UUID            `json:"id"`
	PatientID       string               `json:"patient_id"`
	Symptoms        string               `json:"symptoms"`
	SymptomEntries  []SymptomEntry       `json:"symptom_entries"`
	Disease         string               `json:"disease"`
	Confidence      float64              `json:"confidence"`
	Severity        string               `json:"severity"`
	ExamRequired    bool                 `json:"exam_required"`
	Medications     []string             `json:"medications"`
	LowConfidence   bool                 `json:"low_confidence"`
	ReportGenerated bool                 `json:"report_generated"`
	ArtifactVersion string               `json:"artifact_version"`
	Tests           []*RecommendedTest   `json:"recommended_tests"`
	Appointment     *FollowUpAppointment `json:"follow_up_appointment,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

// RecommendedTest is a supporting test requested by a low-confidence outcome.
type RecommendedTest struct {
	ID            uuid.UUID  `json:"id"`
	OutcomeID     uuid.UUID  `json:"outcome_id"`
	Position      int        `json:"position"`
	TestType      string     `json:"type"`
	Description   string     `json:"description"`
	Status        string     `json:"status"`
	ScheduledDate *time.Time `json:"scheduled_date,omitempty"`
	Results       *string    `json:"results,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// FollowUpAppointment is the single appointment of a low-confidence outcome.
type FollowUpAppointment struct {
	ID            uuid.UUID `json:"id"`
	OutcomeID     uuid.UUID `json:"outcome_id"`
	ScheduledDate time.Time `json:"date"`
	Reason        string    `json:"reason"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// supportTests is the fixed list attached to every low-confidence outcome.
var supportTests = []struct {
	Type        string
	Description string
}{
	{"Análisis de sangre", "Hemograma completo y química sanguínea para confirmar %s"},
	{"Radiografía", "Radiografía de apoyo para descartar complicaciones de %s"},
	{"Ecografía", "Ecografía de apoyo para la evaluación de %s"},
}

// IsLowConfidence applies the threshold to a confidence percent.
func IsLowConfidence(percent float64) bool {
	return percent < ConfidenceThreshold
}

// LowConfidenceMessage is the disposition shown for a low-confidence outcome.
func LowConfidenceMessage(percent float64, tests int) string {
	return fmt.Sprintf("Confianza del %.2f%% inferior al %.0f%%: se recomiendan %d pruebas de apoyo y una cita de seguimiento",
		percent, ConfidenceThreshold, tests)
}

var testTransitions = map[string][]string{
	TestRecommended: {TestScheduled, TestCompleted},
	TestScheduled:   {TestCompleted},
	TestCompleted:   {},
}

var appointmentTransitions = map[string][]string{
	AppointmentScheduled: {AppointmentCompleted, AppointmentCancelled},
	AppointmentCompleted: {},
	AppointmentCancelled: {},
}

// ValidateTransition checks a status change for "test" or "appointment".
func ValidateTransition(kind, from, to string) error {
	var transitions map[string][]string
	switch kind {
	case "test":
		transitions = testTransitions
	case "appointment":
		transitions = appointmentTransitions
	default:
		return fmt.Errorf("unsupported kind: %s", kind)
	}

	allowed, ok := transitions[from]
	if !ok {
		return fmt.Errorf("unknown %s status: %s", kind, from)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%s cannot move from %s to %s", kind, from, to)
}
