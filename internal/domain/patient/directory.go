package patient

import (
	"context"

	"github.com/medtriage/triage/internal/domain/triage"
)

// Directory exposes the registry to the triage flow.
type Directory struct {
	repo Repository
}

func NewDirectory(repo Repository) *Directory {
	return &Directory{repo: repo}
}

func (d *Directory) Exists(ctx context.Context, nationalID string) (bool, error) {
	return d.repo.Exists(ctx, nationalID)
}

func (d *Directory) Summary(ctx context.Context, nationalID string) (*triage.PatientSummary, error) {
	p, err := d.repo.GetByID(ctx, nationalID)
	if err != nil {
		return nil, err
	}
	return &triage.PatientSummary{
		NationalID: p.NationalID,
		Name:       p.Name,
		Age:        p.Age,
		Gender:     p.Gender,
		Email:      p.Email,
	}, nil
}

var _ triage.PatientDirectory = (*Directory)(nil)
