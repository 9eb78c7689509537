package clinic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/afyacare/clinic-intake-platform/internal/conversation"
	"github.com/afyacare/clinic-intake-platform/internal/tenancy"
)

type stubCounter struct {
	count int64
	err   error
}

func (s stubCounter) CountByTenant(context.Context, string) (int64, error) {
	return s.count, s.err
}

type stubSender struct {
	sent []string
}

func (s *stubSender) Send(_ context.Context, to, body string) error {
	s.sent = append(s.sent, to+": "+body)
	return nil
}

func newFixture(t *testing.T) (pgxmock.PgxPoolIface, *AdminHandler, *stubSender, chi.Router) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	sender := &stubSender{}
	h := NewAdminHandler(
		tenancy.NewRepositoryWithDB(mock),
		stubCounter{count: 12},
		stubCounter{count: 5},
		NewStatsRepositoryWithDB(mock),
		conversation.NewHospitalDirectory(nil, nil),
		sender,
		nil,
	)

	r := chi.NewRouter()
	r.Get("/admin/clinics", h.List)
	r.Post("/admin/clinics", h.Create)
	r.Route("/admin/clinics/{clinicID}", func(c chi.Router) {
		c.Get("/", h.Detail)
		c.Post("/toggle", h.Toggle)
		c.Post("/reset", h.Reset)
		c.Get("/hospitals", h.Hospitals)
		c.Put("/hospitals", h.SetHospitals)
		c.Post("/message", h.SendMessage)
	})
	return mock, h, sender, r
}

func tenantRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "name", "phone", "whatsapp_number", "plan", "active", "created_at"})
}

func TestAdminListClinics(t *testing.T) {
	mock, _, _, r := newFixture(t)

	mock.ExpectQuery("SELECT (.+) FROM tenants ORDER BY created_at DESC").
		WillReturnRows(tenantRows().
			AddRow("clinic_1", "AfyaCare Medical Center", "+254711", "+254722", "starter", true, time.Now()))
	mock.ExpectQuery("SELECT COUNT(.+) FROM conversation_states").
		WithArgs("clinic_1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(3)))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/clinics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Clinics []ClinicSummary `json:"clinics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Clinics, 1)
	require.Equal(t, int64(12), body.Clinics[0].Patients)
	require.Equal(t, int64(3), body.Clinics[0].TodayMessages)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminCreateClinic(t *testing.T) {
	mock, _, _, r := newFixture(t)

	mock.ExpectQuery("INSERT INTO tenants").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	payload := `{"name":"Kisumu Clinic","whatsapp_number":"+254733000000"}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/clinics", strings.NewReader(payload)))

	require.Equal(t, http.StatusCreated, rec.Code)
	var tenant tenancy.Tenant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tenant))
	require.Equal(t, "Kisumu Clinic", tenant.Name)
	require.True(t, strings.HasPrefix(tenant.ID, "clinic_"))
}

func TestAdminCreateClinicRejectsBadPayload(t *testing.T) {
	_, _, _, r := newFixture(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/clinics", strings.NewReader(`{"name":""}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminClinicDetail(t *testing.T) {
	mock, _, _, r := newFixture(t)

	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE id").
		WithArgs("clinic_1").
		WillReturnRows(tenantRows().
			AddRow("clinic_1", "AfyaCare Medical Center", "+254711", "+254722", "starter", true, time.Now()))
	mock.ExpectQuery("SELECT COUNT(.+) FROM conversation_states").
		WithArgs("clinic_1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(4)))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/clinics/clinic_1/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var detail ClinicDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	require.Equal(t, int64(12), detail.Patients)
	require.Equal(t, int64(5), detail.Consultations)
	require.Equal(t, int64(4), detail.ActiveConversations)
}

func TestAdminClinicNotFound(t *testing.T) {
	mock, _, _, r := newFixture(t)

	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE id").
		WithArgs("clinic_missing").
		WillReturnError(pgx.ErrNoRows)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/clinics/clinic_missing/", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminToggle(t *testing.T) {
	mock, _, _, r := newFixture(t)

	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE id").
		WithArgs("clinic_1").
		WillReturnRows(tenantRows().
			AddRow("clinic_1", "AfyaCare Medical Center", "+254711", "+254722", "starter", true, time.Now()))
	mock.ExpectExec("UPDATE tenants SET active").
		WithArgs("clinic_1", false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/clinics/clinic_1/toggle", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var tenant tenancy.Tenant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tenant))
	require.False(t, tenant.Active)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminReset(t *testing.T) {
	mock, _, _, r := newFixture(t)

	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE id").
		WithArgs("clinic_1").
		WillReturnRows(tenantRows().
			AddRow("clinic_1", "AfyaCare Medical Center", "+254711", "+254722", "starter", true, time.Now()))
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM consultations").WithArgs("clinic_1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM conversation_states").WithArgs("clinic_1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM patients").WithArgs("clinic_1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/clinics/clinic_1/reset", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminHospitalsDefaults(t *testing.T) {
	mock, _, _, r := newFixture(t)

	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE id").
		WithArgs("clinic_1").
		WillReturnRows(tenantRows().
			AddRow("clinic_1", "AfyaCare Medical Center", "+254711", "+254722", "starter", true, time.Now()))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/clinics/clinic_1/hospitals", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Hospitals []conversation.Hospital `json:"hospitals"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Hospitals, len(conversation.DefaultHospitals))
}

func TestAdminSendMessage(t *testing.T) {
	mock, _, sender, r := newFixture(t)

	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE id").
		WithArgs("clinic_1").
		WillReturnRows(tenantRows().
			AddRow("clinic_1", "AfyaCare Medical Center", "+254711", "+254722", "starter", true, time.Now()))

	payload := `{"to":"+254700000001","body":"Your clinic will be closed tomorrow."}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/clinics/clinic_1/message", strings.NewReader(payload)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sender.sent, 1)
}
