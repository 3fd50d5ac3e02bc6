package patient

import "context"

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, nationalID string) (*Patient, error)
	Exists(ctx context.Context, nationalID string) (bool, error)
	Update(ctx context.Context, p *Patient) error
	// Delete removes the patient and, through the schema's cascades, every
	// diagnosis, test and appointment it owns.
	Delete(ctx context.Context, nationalID string) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}
