package triage

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/medtriage/triage/internal/platform/apperror"
	"github.com/medtriage/triage/internal/platform/events"
	"github.com/medtriage/triage/internal/platform/validation"
)

// Result is an outcome plus the disposition message shown to the caller.
type Result struct {
	Outcome *Outcome
	Message string
}

// Engine turns a symptom report into a persisted triage outcome.
type Engine struct {
	artifacts ArtifactSource
	patients  PatientDirectory
	store     Store
	publisher events.Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

func NewEngine(artifacts ArtifactSource, patients PatientDirectory, store Store, publisher events.Publisher, logger zerolog.Logger) *Engine {
	return &Engine{
		artifacts: artifacts,
		patients:  patients,
		store:     store,
		publisher: publisher,
		logger:    logger.With().Str("component", "triage-engine").Logger(),
		now:       time.Now,
	}
}

// WithClock replaces the engine clock.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// RoundPercent converts a posterior in [0,1] to a percent with two decimals.
func RoundPercent(p float64) float64 {
	return math.Round(p*100*100) / 100
}

var reportValidator = validation.New()

func validateReport(r SymptomReport) error {
	return reportValidator.Validate(r)
}

// Plan builds the unsaved outcome for a classification. It holds the whole
// confident / low-confidence branching and has no side effects.
func Plan(patientID string, report SymptomReport, label string, posterior float64, profile DiseaseProfile, createdAt time.Time) *Outcome {
	percent := RoundPercent(posterior)
	o := &Outcome{
		PatientID:      patientID,
		Symptoms:       report.Text,
		SymptomEntries: nonNilEntries(report.Entries),
		Disease:        label,
		Confidence:     percent,
		Severity:       profile.Severity,
		Medications:    append([]string{}, profile.Medications...),
		LowConfidence:  IsLowConfidence(percent),
		Tests:          []*RecommendedTest{},
		CreatedAt:      createdAt,
	}

	if !o.LowConfidence {
		o.ExamRequired = profile.ExamNeeded
		return o
	}

	o.ExamRequired = true
	for i, st := range supportTests {
		o.Tests = append(o.Tests, &RecommendedTest{
			Position:    i + 1,
			TestType:    st.Type,
			Description: fmt.Sprintf(st.Description, label),
			Status:      TestRecommended,
		})
	}
	o.Appointment = &FollowUpAppointment{
		ScheduledDate: createdAt.Add(FollowUpDelay),
		Reason:        FollowUpReason,
		Status:        AppointmentScheduled,
	}
	return o
}

// Message returns the disposition message for o.
func Message(o *Outcome) string {
	if o.LowConfidence {
		return LowConfidenceMessage(o.Confidence, len(o.Tests))
	}
	return MessageConfident
}

// Diagnose classifies report for patientID and persists the outcome with its
// tests and appointment in one transaction.
func (e *Engine) Diagnose(ctx context.Context, patientID string, report SymptomReport) (*Result, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, apperror.InvalidInput("patient_id is required")
	}
	exists, err := e.patients.Exists(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperror.NotFound("patient %s not found", patientID)
	}

	art, err := e.artifacts.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateReport(report); err != nil {
		return nil, err
	}

	label, posterior := art.Classifier.Classify(report.ClassificationText())
	profile := art.Knowledge.Lookup(label)
	o := Plan(patientID, report, label, posterior, profile, e.now().UTC().Truncate(time.Microsecond))
	o.ArtifactVersion = art.Version

	// The write must not be aborted halfway by a client disconnect.
	saveCtx := context.WithoutCancel(ctx)
	if err := e.store.Save(saveCtx, o); err != nil {
		if apperror.KindOf(err) == apperror.KindInternal {
			e.logger.Error().Err(err).
				Str("patient_id", patientID).
				Str("disease", o.Disease).
				Float64("confidence", o.Confidence).
				Msg("persist diagnosis failed")
		}
		return nil, err
	}

	e.logger.Info().
		Str("patient_id", patientID).
		Str("diagnosis_id", o.ID.String()).
		Str("disease", o.Disease).
		Float64("confidence", o.Confidence).
		Bool("low_confidence", o.LowConfidence).
		Msg("diagnosis recorded")

	if ev, err := events.New(events.TypeDiagnosisRecorded, "diagnosis", o.ID.String(), recordedPayload(o)); err == nil {
		events.PublishBestEffort(saveCtx, e.publisher, e.logger, ev)
	}

	return &Result{Outcome: o, Message: Message(o)}, nil
}

func recordedPayload(o *Outcome) map[string]interface{} {
	return map[string]interface{}{
		"patient_id":       o.PatientID,
		"disease":          o.Disease,
		"confidence":       o.Confidence,
		"severity":         o.Severity,
		"low_confidence":   o.LowConfidence,
		"tests":            len(o.Tests),
		"artifact_version": o.ArtifactVersion,
	}
}
