package triage

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	reportFollowUp   = "Consultar si síntomas persisten en 7 días"
	reportExamNotice = "Se requiere examen médico para confirmación del diagnóstico"
)

// Report is the document produced for one outcome.
type Report struct {
	ReportID     string               `json:"report_id"`
	GeneratedAt  time.Time            `json:"generated_at"`
	DiagnosisID  uuid.UUID            `json:"diagnosis_id"`
	Patient      PatientSummary       `json:"patient_info"`
	Diagnosis    ReportDiagnosis      `json:"diagnosis"`
	Prescription ReportPrescription   `json:"medical_prescription"`
	ExamOrder    *ReportExamOrder     `json:"exam_order,omitempty"`
	Tests        []*RecommendedTest   `json:"recommended_tests,omitempty"`
	Appointment  *FollowUpAppointment `json:"follow_up_appointment,omitempty"`
	ArchiveKey   string               `json:"archive_key,omitempty"`
}

type ReportDiagnosis struct {
	Disease    string `json:"disease"`
	Confidence string `json:"confidence"`
	Severity   string `json:"severity"`
	Symptoms   string `json:"symptoms"`
}

type ReportPrescription struct {
	Medications  []string `json:"medications"`
	Instructions string   `json:"instructions"`
	FollowUp     string   `json:"follow_up"`
}

type ReportExamOrder struct {
	Required               bool   `json:"required"`
	Message                string `json:"message"`
	ScheduleNewAppointment bool   `json:"schedule_new_appointment"`
}

// BuildReport assembles the report document for o.
func BuildReport(o *Outcome, patient PatientSummary, now time.Time) *Report {
	r := &Report{
		ReportID:    fmt.Sprintf("RPT-%s-%s", o.ID, now.Format("20060102150405")),
		GeneratedAt: now,
		DiagnosisID: o.ID,
		Patient:     patient,
		Diagnosis: ReportDiagnosis{
			Disease:    o.Disease,
			Confidence: fmt.Sprintf("%.2f%%", o.Confidence),
			Severity:   o.Severity,
			Symptoms:   o.Symptoms,
		},
		Prescription: ReportPrescription{
			Medications:  nonNilStrings(o.Medications),
			Instructions: "Seguir instrucciones médicas para " + o.Disease,
			FollowUp:     reportFollowUp,
		},
		Tests:       o.Tests,
		Appointment: o.Appointment,
	}
	if o.ExamRequired {
		r.ExamOrder = &ReportExamOrder{
			Required:               true,
			Message:                reportExamNotice,
			ScheduleNewAppointment: true,
		}
	}
	return r
}

// ArchiveKey is where the rendered report is stored.
func ArchiveKey(patientID, reportID string) string {
	return fmt.Sprintf("reports/%s/%s.json", patientID, reportID)
}
