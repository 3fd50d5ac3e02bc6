package patient

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/medtriage/triage/internal/platform/apperror"
	"github.com/medtriage/triage/internal/platform/events"
)

type Service struct {
	repo      Repository
	publisher events.Publisher
	logger    zerolog.Logger
}

// NewService builds the registry service. publisher may be nil.
func NewService(repo Repository, publisher events.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger.With().Str("component", "patient").Logger(),
	}
}

func requireID(nationalID string) (string, error) {
	id := strings.TrimSpace(nationalID)
	if id == "" {
		return "", apperror.InvalidInput("national_id is required")
	}
	return id, nil
}

func (s *Service) Create(ctx context.Context, p *Patient) error {
	p.normalize()
	if p.NationalID == "" {
		return apperror.InvalidInput("national_id is required")
	}
	if p.Name == "" {
		return apperror.InvalidInput("name is required")
	}
	if p.Email == "" {
		return apperror.InvalidInput("email is required")
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return err
	}
	s.logger.Info().Str("patient_id", p.NationalID).Msg("patient registered")
	return nil
}

func (s *Service) Get(ctx context.Context, nationalID string) (*Patient, error) {
	id, err := requireID(nationalID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// Update replaces the demographics of an existing patient. The national id
// never changes.
func (s *Service) Update(ctx context.Context, nationalID string, d Demographics) (*Patient, error) {
	id, err := requireID(nationalID)
	if err != nil {
		return nil, err
	}
	p := &Patient{NationalID: id}
	p.apply(d)
	p.normalize()
	if p.Name == "" {
		return nil, apperror.InvalidInput("name is required")
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes the patient with all diagnoses, tests and appointments.
func (s *Service) Delete(ctx context.Context, nationalID string) error {
	id, err := requireID(nationalID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("patient_id", id).Msg("patient deleted")
	if ev, err := events.New(events.TypePatientDeleted, "patient", id, map[string]string{"national_id": id}); err == nil {
		events.PublishBestEffort(ctx, s.publisher, s.logger, ev)
	}
	return nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, limit, offset)
}
