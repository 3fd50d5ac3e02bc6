package triage

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestBuildReport(t *testing.T) {
	id := uuid.MustParse("7d4e1f0a-2b3c-4d5e-8f90-123456789abc")
	o := &Outcome{
		ID:           id,
		PatientID:    "1712345678",
		Symptoms:     "fiebre",
		Disease:      "Gripe/Influenza",
		Confidence:   87.5,
		Severity:     SeverityModerate,
		ExamRequired: true,
		Medications:  []string{"Paracetamol"},
	}
	patient := PatientSummary{NationalID: "1712345678", Name: "Ana", Age: 34, Gender: "F", Email: "ana@example.com"}
	now := time.Date(2024, 5, 10, 14, 30, 5, 0, time.UTC)

	r := BuildReport(o, patient, now)
	if want := "RPT-7d4e1f0a-2b3c-4d5e-8f90-123456789abc-20240510143005"; r.ReportID != want {
		t.Errorf("expected %s, got %s", want, r.ReportID)
	}
	if r.Diagnosis.Confidence != "87.50%" {
		t.Errorf("unexpected confidence %q", r.Diagnosis.Confidence)
	}
	if r.Prescription.Instructions != "Seguir instrucciones médicas para Gripe/Influenza" {
		t.Errorf("unexpected instructions %q", r.Prescription.Instructions)
	}
	if r.Prescription.FollowUp != "Consultar si síntomas persisten en 7 días" {
		t.Errorf("unexpected follow up %q", r.Prescription.FollowUp)
	}
	if r.ExamOrder == nil || !r.ExamOrder.Required || !r.ExamOrder.ScheduleNewAppointment {
		t.Fatalf("expected exam order, got %+v", r.ExamOrder)
	}
	if r.Patient.Email != "ana@example.com" {
		t.Errorf("expected patient info, got %+v", r.Patient)
	}
}

func TestBuildReport_NoExam(t *testing.T) {
	o := &Outcome{ID: uuid.New(), Disease: "Otitis", Confidence: 90}
	r := BuildReport(o, PatientSummary{}, time.Now())
	if r.ExamOrder != nil {
		t.Error("no exam order expected")
	}
	if r.Prescription.Medications == nil {
		t.Error("medications should be an empty list")
	}
}

func TestArchiveKey(t *testing.T) {
	if got := ArchiveKey("1712345678", "RPT-x-1"); got != "reports/1712345678/RPT-x-1.json" {
		t.Errorf("unexpected key %q", got)
	}
}
