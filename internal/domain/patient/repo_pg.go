package patient

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medtriage/triage/internal/platform/apperror"
	"github.com/medtriage/triage/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `national_id, name, age, gender, email, phone, medical_history, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.NationalID, &p.Name, &p.Age, &p.Gender, &p.Email,
		&p.Phone, &p.MedicalHistory, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func mapWriteErr(err error, p *Patient) error {
	if constraint, ok := db.IsUniqueViolation(err); ok {
		if constraint == "patients_email_key" {
			return apperror.Conflict("email %s is already registered", p.Email)
		}
		return apperror.Conflict("patient %s already exists", p.NationalID)
	}
	if db.IsCheckViolation(err) {
		return apperror.InvalidInput("patient %s: invalid field value", p.NationalID)
	}
	return apperror.Internal(err, "write patient %s", p.NationalID)
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	now := time.Now().UTC().Truncate(time.Microsecond)
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (`+patientCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.NationalID, p.Name, p.Age, p.Gender, p.Email, p.Phone, p.MedicalHistory, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return mapWriteErr(err, p)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, nationalID string) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE national_id = $1`, nationalID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperror.NotFound("patient %s not found", nationalID)
		}
		return nil, apperror.Internal(err, "get patient %s", nationalID)
	}
	return p, nil
}

func (r *repoPG) Exists(ctx context.Context, nationalID string) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM patients WHERE national_id = $1)`, nationalID).Scan(&ok)
	if err != nil {
		return false, apperror.Internal(err, "check patient %s", nationalID)
	}
	return ok, nil
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET
			name=$2, age=$3, gender=$4, email=$5, phone=$6, medical_history=$7, updated_at=NOW()
		WHERE national_id = $1
		RETURNING created_at, updated_at`,
		p.NationalID, p.Name, p.Age, p.Gender, p.Email, p.Phone, p.MedicalHistory,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return apperror.NotFound("patient %s not found", p.NationalID)
		}
		return mapWriteErr(err, p)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, nationalID string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE national_id = $1`, nationalID)
	if err != nil {
		return apperror.Internal(err, "delete patient %s", nationalID)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("patient %s not found", nationalID)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, apperror.Internal(err, "count patients")
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+` FROM patients ORDER BY created_at DESC, national_id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, apperror.Internal(err, "list patients")
	}
	defer rows.Close()

	patients := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, apperror.Internal(err, "scan patient")
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperror.Internal(err, "list patients")
	}
	return patients, total, nil
}
