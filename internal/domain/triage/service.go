package triage

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medtriage/triage/internal/platform/apperror"
	"github.com/medtriage/triage/internal/platform/blobstore"
	"github.com/medtriage/triage/internal/platform/events"
)

// Service covers everything after the diagnosis itself: history queries,
// test and appointment lifecycle, and reports.
type Service struct {
	store     Store
	patients  PatientDirectory
	archive   blobstore.Store
	publisher events.Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService builds the service. archive may be nil, in which case reports
// are not archived.
func NewService(store Store, patients PatientDirectory, archive blobstore.Store, publisher events.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		store:     store,
		patients:  patients,
		archive:   archive,
		publisher: publisher,
		logger:    logger.With().Str("component", "triage-service").Logger(),
		now:       time.Now,
	}
}

func (s *Service) requirePatient(ctx context.Context, patientID string) error {
	if strings.TrimSpace(patientID) == "" {
		return apperror.InvalidInput("patient id is required")
	}
	ok, err := s.patients.Exists(ctx, patientID)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.NotFound("patient %s not found", patientID)
	}
	return nil
}

func (s *Service) GetOutcome(ctx context.Context, id uuid.UUID) (*Outcome, error) {
	return s.store.GetByID(ctx, id)
}

// History lists a patient's outcomes, newest first.
func (s *Service) History(ctx context.Context, patientID string) ([]*Outcome, error) {
	if err := s.requirePatient(ctx, patientID); err != nil {
		return nil, err
	}
	return s.store.ListByPatient(ctx, patientID)
}

// PatientTests lists the recommended tests across a patient's outcomes.
func (s *Service) PatientTests(ctx context.Context, patientID string) ([]*RecommendedTest, error) {
	if err := s.requirePatient(ctx, patientID); err != nil {
		return nil, err
	}
	return s.store.ListTestsByPatient(ctx, patientID)
}

func (s *Service) moveTest(ctx context.Context, id uuid.UUID, to string, apply func(t *RecommendedTest)) (*RecommendedTest, error) {
	t, err := s.store.GetTest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ValidateTransition("test", t.Status, to); err != nil {
		return nil, apperror.Conflict("%s", err.Error())
	}
	from := t.Status
	t.Status = to
	apply(t)
	if err := s.store.UpdateTest(ctx, t, from); err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeTestUpdated, "test", t.ID.String(), map[string]string{"status": t.Status})
	return t, nil
}

// ScheduleTest moves a recommended test to scheduled on date.
func (s *Service) ScheduleTest(ctx context.Context, id uuid.UUID, date time.Time) (*RecommendedTest, error) {
	if date.IsZero() {
		return nil, apperror.InvalidInput("scheduled_date is required")
	}
	return s.moveTest(ctx, id, TestScheduled, func(t *RecommendedTest) {
		d := date.UTC()
		t.ScheduledDate = &d
	})
}

// CompleteTest records results and marks the test completed.
func (s *Service) CompleteTest(ctx context.Context, id uuid.UUID, results string) (*RecommendedTest, error) {
	results = strings.TrimSpace(results)
	if results == "" {
		return nil, apperror.InvalidInput("results are required")
	}
	return s.moveTest(ctx, id, TestCompleted, func(t *RecommendedTest) {
		t.Results = &results
	})
}

func (s *Service) moveAppointment(ctx context.Context, id uuid.UUID, to string) (*FollowUpAppointment, error) {
	a, err := s.store.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ValidateTransition("appointment", a.Status, to); err != nil {
		return nil, apperror.Conflict("%s", err.Error())
	}
	from := a.Status
	a.Status = to
	if err := s.store.UpdateAppointment(ctx, a, from); err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeAppointmentUpdated, "appointment", a.ID.String(), map[string]string{"status": a.Status})
	return a, nil
}

func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID) (*FollowUpAppointment, error) {
	return s.moveAppointment(ctx, id, AppointmentCompleted)
}

func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) (*FollowUpAppointment, error) {
	return s.moveAppointment(ctx, id, AppointmentCancelled)
}

// GenerateReport builds the report for an outcome and flips its
// reportGenerated flag. Archiving is best effort.
func (s *Service) GenerateReport(ctx context.Context, id uuid.UUID) (*Report, error) {
	o, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	patient, err := s.patients.Summary(ctx, o.PatientID)
	if err != nil {
		return nil, err
	}

	r := BuildReport(o, *patient, s.now().UTC())
	if err := s.store.MarkReportGenerated(ctx, o.ID); err != nil {
		return nil, err
	}

	if s.archive != nil {
		key := ArchiveKey(o.PatientID, r.ReportID)
		body, err := json.Marshal(r)
		if err == nil {
			_, err = s.archive.Put(ctx, blobstore.Object{
				Key:         key,
				ContentType: "application/json",
				Tags:        map[string]string{"diagnosis_id": o.ID.String()},
			}, bytes.NewReader(body))
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("report_id", r.ReportID).Msg("report archive failed")
		} else {
			r.ArchiveKey = key
		}
	}

	s.logger.Info().Str("report_id", r.ReportID).Str("diagnosis_id", o.ID.String()).Msg("report generated")
	s.publish(ctx, events.TypeReportGenerated, "diagnosis", o.ID.String(), map[string]string{"report_id": r.ReportID})
	return r, nil
}

func (s *Service) publish(ctx context.Context, eventType, resourceType, resourceID string, payload interface{}) {
	ev, err := events.New(eventType, resourceType, resourceID, payload)
	if err != nil {
		s.logger.Warn().Err(err).Msg("build event")
		return
	}
	events.PublishBestEffort(ctx, s.publisher, s.logger, ev)
}
