package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/afyacare/clinic-intake-platform/internal/conversation"
	"github.com/afyacare/clinic-intake-platform/internal/tenancy"
	"github.com/afyacare/clinic-intake-platform/pkg/logging"
)

type patientCounter interface {
	CountByTenant(ctx context.Context, tenantID string) (int64, error)
}

type consultationCounter interface {
	CountByTenant(ctx context.Context, tenantID string) (int64, error)
}

type messageSender interface {
	Send(ctx context.Context, to, body string) error
}

// AdminHandler is the JSON control panel for managing clinic accounts.
type AdminHandler struct {
	tenants       *tenancy.Repository
	patients      patientCounter
	consultations consultationCounter
	stats         *StatsRepository
	hospitals     *conversation.HospitalDirectory
	sender        messageSender
	logger        *logging.Logger
}

// NewAdminHandler wires the admin endpoints. sender may be nil, which
// disables the outbound message endpoint.
func NewAdminHandler(tenants *tenancy.Repository, patients patientCounter, consultations consultationCounter, stats *StatsRepository, hospitals *conversation.HospitalDirectory, sender messageSender, logger *logging.Logger) *AdminHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{
		tenants:       tenants,
		patients:      patients,
		consultations: consultations,
		stats:         stats,
		hospitals:     hospitals,
		sender:        sender,
		logger:        logger,
	}
}

// ClinicSummary is one row of the clinic list.
type ClinicSummary struct {
	*tenancy.Tenant
	Patients      int64 `json:"patients"`
	TodayMessages int64 `json:"today_messages"`
}

// ClinicDetail is the single-clinic view.
type ClinicDetail struct {
	*tenancy.Tenant
	Patients            int64 `json:"patients"`
	Consultations       int64 `json:"consultations"`
	ActiveConversations int64 `json:"active_conversations"`
}

// List is GET /admin/clinics.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenants, err := h.tenants.List(ctx)
	if err != nil {
		h.serverError(w, "listing clinics failed", err)
		return
	}
	out := make([]ClinicSummary, 0, len(tenants))
	for _, t := range tenants {
		patientCount, err := h.patients.CountByTenant(ctx, t.ID)
		if err != nil {
			h.serverError(w, "counting patients failed", err)
			return
		}
		todayCount, err := h.stats.MessagesToday(ctx, t.ID)
		if err != nil {
			h.serverError(w, "counting messages failed", err)
			return
		}
		out = append(out, ClinicSummary{Tenant: t, Patients: patientCount, TodayMessages: todayCount})
	}
	writeJSON(w, http.StatusOK, map[string]any{"clinics": out})
}

// Create is POST /admin/clinics.
func (h *AdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req tenancy.CreateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	tenant, err := h.tenants.Create(r.Context(), &req)
	switch {
	case errors.Is(err, tenancy.ErrInvalidName), errors.Is(err, tenancy.ErrMissingNumber):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, tenancy.ErrNumberTaken):
		writeError(w, http.StatusConflict, "whatsapp number already registered")
		return
	case err != nil:
		h.serverError(w, "creating clinic failed", err)
		return
	}
	h.logger.Info("clinic created", "tenant_id", tenant.ID, "name", tenant.Name)
	writeJSON(w, http.StatusCreated, tenant)
}

// Detail is GET /admin/clinics/{clinicID}.
func (h *AdminHandler) Detail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, ok := h.lookup(w, r)
	if !ok {
		return
	}
	patientCount, err := h.patients.CountByTenant(ctx, tenant.ID)
	if err != nil {
		h.serverError(w, "counting patients failed", err)
		return
	}
	consultationCount, err := h.consultations.CountByTenant(ctx, tenant.ID)
	if err != nil {
		h.serverError(w, "counting consultations failed", err)
		return
	}
	conversationCount, err := h.stats.ActiveConversations(ctx, tenant.ID)
	if err != nil {
		h.serverError(w, "counting conversations failed", err)
		return
	}
	writeJSON(w, http.StatusOK, ClinicDetail{
		Tenant:              tenant,
		Patients:            patientCount,
		Consultations:       consultationCount,
		ActiveConversations: conversationCount,
	})
}

// Toggle is POST /admin/clinics/{clinicID}/toggle.
func (h *AdminHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.lookup(w, r)
	if !ok {
		return
	}
	next := !tenant.Active
	if err := h.tenants.SetActive(r.Context(), tenant.ID, next); err != nil {
		h.serverError(w, "toggling clinic failed", err)
		return
	}
	tenant.Active = next
	h.logger.Info("clinic toggled", "tenant_id", tenant.ID, "active", next)
	writeJSON(w, http.StatusOK, tenant)
}

// Reset is POST /admin/clinics/{clinicID}/reset. It deletes every
// patient, conversation, and consultation for the clinic.
func (h *AdminHandler) Reset(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := h.tenants.Reset(r.Context(), tenant.ID); err != nil {
		h.serverError(w, "resetting clinic failed", err)
		return
	}
	h.logger.Warn("clinic data cleared", "tenant_id", tenant.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared", "clinic_id": tenant.ID})
}

// Hospitals is GET /admin/clinics/{clinicID}/hospitals.
func (h *AdminHandler) Hospitals(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hospitals": h.hospitals.ForTenant(r.Context(), tenant.ID),
	})
}

// SetHospitals is PUT /admin/clinics/{clinicID}/hospitals.
func (h *AdminHandler) SetHospitals(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req struct {
		Hospitals []conversation.Hospital `json:"hospitals"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.hospitals.SetForTenant(r.Context(), tenant.ID, req.Hospitals); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hospitals": req.Hospitals})
}

// SendMessage is POST /admin/clinics/{clinicID}/message.
func (h *AdminHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	if h.sender == nil {
		writeError(w, http.StatusServiceUnavailable, "outbound messaging not configured")
		return
	}
	if _, ok := h.lookup(w, r); !ok {
		return
	}
	var req struct {
		To   string `json:"to"`
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.To == "" || req.Body == "" {
		writeError(w, http.StatusBadRequest, "to and body are required")
		return
	}
	if err := h.sender.Send(r.Context(), req.To, req.Body); err != nil {
		h.serverError(w, "sending message failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (h *AdminHandler) lookup(w http.ResponseWriter, r *http.Request) (*tenancy.Tenant, bool) {
	id := chi.URLParam(r, "clinicID")
	tenant, err := h.tenants.GetByID(r.Context(), id)
	if errors.Is(err, tenancy.ErrTenantNotFound) {
		writeError(w, http.StatusNotFound, "clinic not found")
		return nil, false
	}
	if err != nil {
		h.serverError(w, "loading clinic failed", err)
		return nil, false
	}
	return tenant, true
}

func (h *AdminHandler) serverError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
