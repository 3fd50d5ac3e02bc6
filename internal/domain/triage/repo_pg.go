package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medtriage/triage/internal/platform/apperror"
	"github.com/medtriage/triage/internal/platform/db"
)

type storePG struct{ pool *pgxpool.Pool }

func NewStorePG(pool *pgxpool.Pool) Store {
	return &storePG{pool: pool}
}

func (r *storePG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const outcomeCols = `id, patient_id, symptoms, symptom_entries, disease, confidence, severity,
	exam_required, medications, low_confidence, report_generated, artifact_version, created_at`

const testCols = `id, outcome_id, position, test_type, description, status, scheduled_date,
	results, created_at, updated_at`

const apptCols = `id, outcome_id, scheduled_date, reason, status, created_at, updated_at`

func (r *storePG) Save(ctx context.Context, o *Outcome) error {
	entries, err := json.Marshal(nonNilEntries(o.SymptomEntries))
	if err != nil {
		return apperror.Internal(err, "encode symptom entries")
	}
	meds, err := json.Marshal(nonNilStrings(o.Medications))
	if err != nil {
		return apperror.Internal(err, "encode medications")
	}
	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC().Truncate(time.Microsecond)
	}

	// Ids and defaults are copied onto o only after the commit.
	outcomeID := uuid.New()
	tests := make([]RecommendedTest, len(o.Tests))
	for i, t := range o.Tests {
		tests[i] = *t
		tests[i].ID = uuid.New()
		tests[i].OutcomeID = outcomeID
		if tests[i].Position == 0 {
			tests[i].Position = i + 1
		}
		if tests[i].Status == "" {
			tests[i].Status = TestRecommended
		}
		tests[i].CreatedAt, tests[i].UpdatedAt = createdAt, createdAt
	}
	var appt *FollowUpAppointment
	if o.Appointment != nil {
		a := *o.Appointment
		a.ID = uuid.New()
		a.OutcomeID = outcomeID
		if a.Status == "" {
			a.Status = AppointmentScheduled
		}
		a.CreatedAt, a.UpdatedAt = createdAt, createdAt
		appt = &a
	}

	err = db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO diagnosis_outcomes (`+outcomeCols+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			outcomeID, o.PatientID, o.Symptoms, entries, o.Disease, o.Confidence, o.Severity,
			o.ExamRequired, meds, o.LowConfidence, o.ReportGenerated, o.ArtifactVersion, createdAt)
		if err != nil {
			return err
		}

		for _, t := range tests {
			_, err := r.conn(ctx).Exec(ctx, `
				INSERT INTO recommended_tests (`+testCols+`)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
				t.ID, t.OutcomeID, t.Position, t.TestType, t.Description, t.Status, t.ScheduledDate,
				t.Results, t.CreatedAt, t.UpdatedAt)
			if err != nil {
				return err
			}
		}

		if a := appt; a != nil {
			_, err := r.conn(ctx).Exec(ctx, `
				INSERT INTO follow_up_appointments (`+apptCols+`)
				VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				a.ID, a.OutcomeID, a.ScheduledDate, a.Reason, a.Status, a.CreatedAt, a.UpdatedAt)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return mapWriteErr(err, "save outcome", o.PatientID)
	}

	o.ID = outcomeID
	o.CreatedAt = createdAt
	for i, t := range o.Tests {
		*t = tests[i]
	}
	if appt != nil {
		*o.Appointment = *appt
	}
	return nil
}

func mapWriteErr(err error, op, patientID string) error {
	if db.IsForeignKeyViolation(err) {
		return apperror.NotFound("patient %s not found", patientID)
	}
	if constraint, ok := db.IsUniqueViolation(err); ok {
		return apperror.Conflict("%s: duplicate value violates %s", op, constraint)
	}
	return apperror.Internal(err, "%s", op)
}

func scanOutcome(row pgx.Row) (*Outcome, error) {
	var o Outcome
	var entries, meds []byte
	err := row.Scan(&o.ID, &o.PatientID, &o.Symptoms, &entries, &o.Disease, &o.Confidence, &o.Severity,
		&o.ExamRequired, &meds, &o.LowConfidence, &o.ReportGenerated, &o.ArtifactVersion, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(entries, &o.SymptomEntries); err != nil {
		return nil, fmt.Errorf("decode symptom entries: %w", err)
	}
	if err := json.Unmarshal(meds, &o.Medications); err != nil {
		return nil, fmt.Errorf("decode medications: %w", err)
	}
	o.Tests = []*RecommendedTest{}
	return &o, nil
}

func scanTest(row pgx.Row) (*RecommendedTest, error) {
	var t RecommendedTest
	err := row.Scan(&t.ID, &t.OutcomeID, &t.Position, &t.TestType, &t.Description, &t.Status,
		&t.ScheduledDate, &t.Results, &t.CreatedAt, &t.UpdatedAt)
	return &t, err
}

func scanAppointment(row pgx.Row) (*FollowUpAppointment, error) {
	var a FollowUpAppointment
	err := row.Scan(&a.ID, &a.OutcomeID, &a.ScheduledDate, &a.Reason, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *storePG) GetByID(ctx context.Context, id uuid.UUID) (*Outcome, error) {
	o, err := scanOutcome(r.conn(ctx).QueryRow(ctx,
		`SELECT `+outcomeCols+` FROM diagnosis_outcomes WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperror.NotFound("diagnosis %s not found", id)
		}
		return nil, apperror.Internal(err, "get diagnosis %s", id)
	}
	if err := r.attachChildren(ctx, []*Outcome{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *storePG) ListByPatient(ctx context.Context, patientID string) ([]*Outcome, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+outcomeCols+` FROM diagnosis_outcomes
		WHERE patient_id = $1 ORDER BY created_at DESC, id`, patientID)
	if err != nil {
		return nil, apperror.Internal(err, "list diagnoses for %s", patientID)
	}
	defer rows.Close()

	out := []*Outcome{}
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, apperror.Internal(err, "scan diagnosis")
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Internal(err, "list diagnoses for %s", patientID)
	}
	if err := r.attachChildren(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *storePG) attachChildren(ctx context.Context, outcomes []*Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	ids := make([]string, len(outcomes))
	byID := make(map[uuid.UUID]*Outcome, len(outcomes))
	for i, o := range outcomes {
		ids[i] = o.ID.String()
		byID[o.ID] = o
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+testCols+` FROM recommended_tests
		WHERE outcome_id = ANY($1::uuid[]) ORDER BY outcome_id, position`, ids)
	if err != nil {
		return apperror.Internal(err, "load tests")
	}
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			rows.Close()
			return apperror.Internal(err, "scan test")
		}
		if o := byID[t.OutcomeID]; o != nil {
			o.Tests = append(o.Tests, t)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return apperror.Internal(err, "load tests")
	}

	rows, err = r.conn(ctx).Query(ctx,
		`SELECT `+apptCols+` FROM follow_up_appointments WHERE outcome_id = ANY($1::uuid[])`, ids)
	if err != nil {
		return apperror.Internal(err, "load appointments")
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return apperror.Internal(err, "scan appointment")
		}
		if o := byID[a.OutcomeID]; o != nil {
			o.Appointment = a
		}
	}
	if err := rows.Err(); err != nil {
		return apperror.Internal(err, "load appointments")
	}
	return nil
}

func (r *storePG) MarkReportGenerated(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE diagnosis_outcomes SET report_generated = TRUE WHERE id = $1`, id)
	if err != nil {
		return apperror.Internal(err, "mark report generated %s", id)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("diagnosis %s not found", id)
	}
	return nil
}

func (r *storePG) GetTests(ctx context.Context, outcomeID uuid.UUID) ([]*RecommendedTest, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+testCols+` FROM recommended_tests WHERE outcome_id = $1 ORDER BY position`, outcomeID)
	if err != nil {
		return nil, apperror.Internal(err, "get tests for %s", outcomeID)
	}
	defer rows.Close()
	return collectTests(rows)
}

func collectTests(rows pgx.Rows) ([]*RecommendedTest, error) {
	out := []*RecommendedTest{}
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, apperror.Internal(err, "scan test")
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Internal(err, "read tests")
	}
	return out, nil
}

func (r *storePG) GetAppointment(ctx context.Context, outcomeID uuid.UUID) (*FollowUpAppointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM follow_up_appointments WHERE outcome_id = $1`, outcomeID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperror.NotFound("no follow-up appointment for diagnosis %s", outcomeID)
		}
		return nil, apperror.Internal(err, "get appointment for %s", outcomeID)
	}
	return a, nil
}

func (r *storePG) GetTest(ctx context.Context, id uuid.UUID) (*RecommendedTest, error) {
	t, err := scanTest(r.conn(ctx).QueryRow(ctx,
		`SELECT `+testCols+` FROM recommended_tests WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperror.NotFound("test %s not found", id)
		}
		return nil, apperror.Internal(err, "get test %s", id)
	}
	return t, nil
}

func (r *storePG) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*FollowUpAppointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM follow_up_appointments WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperror.NotFound("appointment %s not found", id)
		}
		return nil, apperror.Internal(err, "get appointment %s", id)
	}
	return a, nil
}

func (r *storePG) ListTestsByPatient(ctx context.Context, patientID string) ([]*RecommendedTest, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT t.id, t.outcome_id, t.position, t.test_type, t.description, t.status, t.scheduled_date,
			t.results, t.created_at, t.updated_at
		FROM recommended_tests t
		JOIN diagnosis_outcomes o ON o.id = t.outcome_id
		WHERE o.patient_id = $1
		ORDER BY o.created_at DESC, t.position`, patientID)
	if err != nil {
		return nil, apperror.Internal(err, "list tests for %s", patientID)
	}
	defer rows.Close()
	return collectTests(rows)
}

func (r *storePG) UpdateTest(ctx context.Context, t *RecommendedTest, from string) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE recommended_tests SET status = $2, scheduled_date = $3, results = $4, updated_at = NOW()
		WHERE id = $1 AND status = $5
		RETURNING updated_at`,
		t.ID, t.Status, t.ScheduledDate, t.Results, from).Scan(&t.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return r.staleWrite(ctx, "recommended_tests", "test", t.ID, from)
		}
		if db.IsCheckViolation(err) {
			return apperror.InvalidInput("invalid test status %q", t.Status)
		}
		return apperror.Internal(err, "update test %s", t.ID)
	}
	return nil
}

func (r *storePG) UpdateAppointment(ctx context.Context, a *FollowUpAppointment, from string) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE follow_up_appointments SET status = $2, scheduled_date = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
		RETURNING updated_at`,
		a.ID, a.Status, a.ScheduledDate, from).Scan(&a.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return r.staleWrite(ctx, "follow_up_appointments", "appointment", a.ID, from)
		}
		if db.IsCheckViolation(err) {
			return apperror.InvalidInput("invalid appointment status %q", a.Status)
		}
		return apperror.Internal(err, "update appointment %s", a.ID)
	}
	return nil
}

// staleWrite explains a conditional update that matched no row: the row is
// either gone or no longer in status from.
func (r *storePG) staleWrite(ctx context.Context, table, kind string, id uuid.UUID, from string) error {
	var current string
	err := r.conn(ctx).QueryRow(ctx, `SELECT status FROM `+table+` WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if db.IsNoRows(err) {
			return apperror.NotFound("%s %s not found", kind, id)
		}
		return apperror.Internal(err, "read %s %s", kind, id)
	}
	return apperror.Conflict("%s %s is %s, no longer %s", kind, id, current, from)
}

func nonNilEntries(e []SymptomEntry) []SymptomEntry {
	if e == nil {
		return []SymptomEntry{}
	}
	return e
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
