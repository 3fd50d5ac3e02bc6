package triage

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medtriage/triage/internal/platform/apperror"
	"github.com/medtriage/triage/internal/platform/auth"
)

type Handler struct {
	engine   *Engine
	svc      *Service
	provider *Provider
	notify   *Broadcaster
}

// NewHandler builds the handler. notify may be nil.
func NewHandler(engine *Engine, svc *Service, provider *Provider, notify *Broadcaster) *Handler {
	return &Handler{engine: engine, svc: svc, provider: provider, notify: notify}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleRegistrar))
	read.GET("/diagnoses/:id", h.GetDiagnosis)
	read.GET("/patients/:id/diagnoses", h.ListPatientDiagnoses)
	read.GET("/patients/:id/tests", h.ListPatientTests)

	write := api.Group("", auth.RequireRole(auth.RoleClinician))
	write.POST("/diagnoses", h.Diagnose)
	write.GET("/diagnoses/:id/report", h.GenerateReport)
	write.PUT("/tests/:id/schedule", h.ScheduleTest)
	write.PUT("/tests/:id/complete", h.CompleteTest)
	write.PUT("/appointments/:id/complete", h.CompleteAppointment)
	write.PUT("/appointments/:id/cancel", h.CancelAppointment)

	admin := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/artifact/reload", h.ReloadArtifact)
}

type DiagnoseRequest struct {
	PatientID string         `json:"patient_id"`
	Symptoms  string         `json:"symptoms"`
	Entries   []SymptomEntry `json:"symptom_entries"`
}

type testView struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

type appointmentView struct {
	Date   time.Time `json:"date"`
	Reason string    `json:"reason"`
}

type DiagnoseResponse struct {
	DiagnosisID  uuid.UUID        `json:"diagnosis_id"`
	PatientID    string           `json:"patient_id"`
	Disease      string           `json:"disease"`
	Confidence   float64          `json:"confidence"`
	Severity     string           `json:"severity"`
	ExamRequired bool             `json:"exam_required"`
	Medications  []string         `json:"medications"`
	LowConf      bool             `json:"low_confidence"`
	Tests        []testView       `json:"recommended_tests,omitempty"`
	Appointment  *appointmentView `json:"follow_up_appointment,omitempty"`
	Message      string           `json:"message"`
}

func newDiagnoseResponse(r *Result) DiagnoseResponse {
	o := r.Outcome
	resp := DiagnoseResponse{
		DiagnosisID:  o.ID,
		PatientID:    o.PatientID,
		Disease:      o.Disease,
		Confidence:   o.Confidence,
		Severity:     o.Severity,
		ExamRequired: o.ExamRequired,
		Medications:  o.Medications,
		LowConf:      o.LowConfidence,
		Message:      r.Message,
	}
	for _, t := range o.Tests {
		resp.Tests = append(resp.Tests, testView{Type: t.TestType, Description: t.Description})
	}
	if o.Appointment != nil {
		resp.Appointment = &appointmentView{Date: o.Appointment.ScheduledDate, Reason: o.Appointment.Reason}
	}
	return resp
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return apperror.InvalidInput("invalid JSON body")
	}
	return c.Validate(req)
}

func parseID(c echo.Context, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperror.InvalidInput("invalid %s id", what)
	}
	return id, nil
}

// Diagnose leaves validation to the engine so an unknown patient is reported
// before a malformed report.
func (h *Handler) Diagnose(c echo.Context) error {
	var req DiagnoseRequest
	if err := c.Bind(&req); err != nil {
		return apperror.InvalidInput("invalid JSON body")
	}
	res, err := h.engine.Diagnose(c.Request().Context(), req.PatientID, SymptomReport{Text: req.Symptoms, Entries: req.Entries})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newDiagnoseResponse(res))
}

func (h *Handler) GetDiagnosis(c echo.Context) error {
	id, err := parseID(c, "diagnosis")
	if err != nil {
		return err
	}
	o, err := h.svc.GetOutcome(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) ListPatientDiagnoses(c echo.Context) error {
	items, err := h.svc.History(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items, "total": len(items)})
}

func (h *Handler) ListPatientTests(c echo.Context) error {
	items, err := h.svc.PatientTests(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items, "total": len(items)})
}

func (h *Handler) GenerateReport(c echo.Context) error {
	id, err := parseID(c, "diagnosis")
	if err != nil {
		return err
	}
	r, err := h.svc.GenerateReport(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

type scheduleRequest struct {
	ScheduledDate time.Time `json:"scheduled_date" validate:"required"`
}

type completeRequest struct {
	Results string `json:"results" validate:"notblank,max=4000"`
}

func (h *Handler) ScheduleTest(c echo.Context) error {
	id, err := parseID(c, "test")
	if err != nil {
		return err
	}
	var req scheduleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	t, err := h.svc.ScheduleTest(c.Request().Context(), id, req.ScheduledDate)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) CompleteTest(c echo.Context) error {
	id, err := parseID(c, "test")
	if err != nil {
		return err
	}
	var req completeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	t, err := h.svc.CompleteTest(c.Request().Context(), id, req.Results)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) CompleteAppointment(c echo.Context) error {
	id, err := parseID(c, "appointment")
	if err != nil {
		return err
	}
	a, err := h.svc.CompleteAppointment(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := parseID(c, "appointment")
	if err != nil {
		return err
	}
	a, err := h.svc.CancelAppointment(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ReloadArtifact(c echo.Context) error {
	ctx := c.Request().Context()
	a, err := h.provider.Reload(ctx)
	if err != nil {
		h.provider.logger.Error().Err(err).Str("dir", h.provider.Dir()).Msg("artifact reload failed")
		return apperror.Unavailable("artifact reload failed; the current artifact stays in place")
	}
	if h.notify != nil {
		h.notify.AnnounceBestEffort(ctx, a.Version)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"version":    a.Version,
		"labels":     a.Classifier.Labels(),
		"created_at": a.CreatedAt,
	})
}
