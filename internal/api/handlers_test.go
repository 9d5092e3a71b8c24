package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/auth"
	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
)

const testSecret = "test-secret"

// 2030-01-07 is a Monday.
const monday = "2030-01-07"

type testEnv struct {
	router  http.Handler
	store   *appointment.MemoryStore
	doctor  *appointment.Doctor
	docUser appointment.Actor
	admin   appointment.Actor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := appointment.NewMemoryStore()
	docUser := appointment.Actor{ID: uuid.New(), Role: appointment.RoleDoctor}
	doctor := &appointment.Doctor{
		UserID:          docUser.ID,
		Name:            "Dr. Grey",
		Specialization:  "cardiology",
		ConsultationFee: 80,
		IsActive:        true,
		IsVerified:      true,
		Availability: []appointment.AvailabilityEntry{
			{DayOfWeek: appointment.Monday, StartTime: "09:00", EndTime: "12:00", IsAvailable: true},
		},
	}
	require.NoError(t, store.CreateDoctor(context.Background(), doctor))

	cfg := config.Config{Location: time.UTC, CancellationWindow: 24 * time.Hour}
	svc := appointment.NewService(store, store, redisclient.NewLocalLocker(), cfg, zerolog.Nop())

	router := NewRouter(RouterConfig{
		Service:   svc,
		Logger:    zerolog.Nop(),
		JWTSecret: testSecret,
		Env:       "test",
		Version:   "test",
	})

	return &testEnv{
		router:  router,
		store:   store,
		doctor:  doctor,
		docUser: docUser,
		admin:   appointment.Actor{ID: uuid.New(), Role: appointment.RoleAdmin},
	}
}

func patient() appointment.Actor {
	return appointment.Actor{ID: uuid.New(), Role: appointment.RolePatient}
}

func (e *testEnv) do(t *testing.T, method, path string, actor *appointment.Actor, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != nil {
		tok, err := auth.IssueToken(testSecret, *actor, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) book(t *testing.T, p appointment.Actor, hhmm string) AppointmentResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/appointments", &p, map[string]any{
		"doctor":          e.doctor.ID.String(),
		"appointmentDate": monday,
		"appointmentTime": hhmm,
		"reason":          "Persistent chest pain",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[AppointmentResponse](t, rec)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthEndpoints(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/health/ready", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ready := decode[ReadinessResponse](t, rec)
	assert.Equal(t, "ok", ready.Status)
	assert.Equal(t, "disabled", ready.Dependencies["postgres"])
	assert.Equal(t, "disabled", ready.Dependencies["redis"])
}

func TestCreateAppointment(t *testing.T) {
	e := newTestEnv(t)
	p := patient()

	appt := e.book(t, p, "9:30")
	assert.Equal(t, "09:30", appt.AppointmentTime)
	assert.Equal(t, "pending", appt.Status)
	assert.Equal(t, 80.0, appt.ConsultationFee)
	assert.Equal(t, p.ID, appt.Patient)
	assert.False(t, appt.CanBeCancelled)
	assert.False(t, appt.IsPast)

	t.Run("same slot conflicts", func(t *testing.T) {
		other := patient()
		rec := e.do(t, http.MethodPost, "/appointments", &other, map[string]any{
			"doctor":          e.doctor.ID.String(),
			"appointmentDate": monday,
			"appointmentTime": "09:30",
			"reason":          "Follow-up for chest pain",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "slot_conflict", decode[ErrorResponse](t, rec).Error)
	})

	t.Run("requires token", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/appointments", nil, map[string]any{})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("doctors cannot book", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/appointments", &e.docUser, map[string]any{
			"doctor":          e.doctor.ID.String(),
			"appointmentDate": monday,
			"appointmentTime": "11:00",
			"reason":          "Booking on behalf of someone",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("bad time format", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/appointments", &p, map[string]any{
			"doctor":          e.doctor.ID.String(),
			"appointmentDate": monday,
			"appointmentTime": "25:00",
			"reason":          "Persistent chest pain",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_input", decode[ErrorResponse](t, rec).Error)
	})

	t.Run("past date", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/appointments", &p, map[string]any{
			"doctor":          e.doctor.ID.String(),
			"appointmentDate": "2001-01-01",
			"appointmentTime": "10:00",
			"reason":          "Persistent chest pain",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "invalid_schedule", decode[ErrorResponse](t, rec).Error)
	})

	t.Run("unknown doctor", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/appointments", &p, map[string]any{
			"doctor":          uuid.NewString(),
			"appointmentDate": monday,
			"appointmentTime": "10:00",
			"reason":          "Persistent chest pain",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "doctor_unavailable", decode[ErrorResponse](t, rec).Error)
	})
}

func TestAvailableSlots(t *testing.T) {
	e := newTestEnv(t)
	e.book(t, patient(), "10:00")

	rec := e.do(t, http.MethodGet, "/doctors/"+e.doctor.ID.String()+"/slots?date="+monday, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	slots := decode[SlotsResponse](t, rec)
	assert.Equal(t, []string{"09:00", "09:30", "10:30", "11:00", "11:30"}, slots.AvailableSlots)

	rec = e.do(t, http.MethodGet, "/doctors/"+e.doctor.ID.String()+"/slots?date=2030-01-08", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[SlotsResponse](t, rec).AvailableSlots)

	rec = e.do(t, http.MethodGet, "/doctors/"+uuid.NewString()+"/slots?date="+monday, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAppointments_RoleScoping(t *testing.T) {
	e := newTestEnv(t)
	alice, bob := patient(), patient()
	e.book(t, alice, "09:00")
	e.book(t, alice, "10:00")
	e.book(t, bob, "11:00")

	list := func(actor appointment.Actor, query string) AppointmentListResponse {
		rec := e.do(t, http.MethodGet, "/appointments"+query, &actor, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decode[AppointmentListResponse](t, rec)
	}

	got := list(alice, "?patient="+bob.ID.String())
	assert.Equal(t, 2, got.Total)
	for _, a := range got.Appointments {
		assert.Equal(t, alice.ID, a.Patient)
	}
	assert.Equal(t, "10:00", got.Appointments[0].AppointmentTime)

	assert.Equal(t, 3, list(e.docUser, "").Total)
	assert.Equal(t, 1, list(e.admin, "?patient="+bob.ID.String()).Total)

	paged := list(e.admin, "?limit=2&page=2")
	assert.Equal(t, 3, paged.Total)
	assert.Equal(t, 1, paged.Count)
	assert.Equal(t, Pagination{Current: 2, Pages: 2, Limit: 2}, paged.Pagination)

	orphan := appointment.Actor{ID: uuid.New(), Role: appointment.RoleDoctor}
	assert.Equal(t, 0, list(orphan, "").Total)
}

func TestLifecycleOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	p := patient()
	appt := e.book(t, p, "09:00")
	base := "/appointments/" + appt.ID.String()

	rec := e.do(t, http.MethodPost, base+"/complete", &e.docUser, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "complete from pending")

	rec = e.do(t, http.MethodPost, base+"/confirm", &e.docUser, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	confirmed := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "confirmed", confirmed.Status)
	assert.True(t, confirmed.CanBeCancelled)

	rec = e.do(t, http.MethodPost, base+"/complete", &e.docUser, map[string]any{
		"diagnosis": "Costochondritis",
		"notes":     "Rest and NSAIDs",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Costochondritis", decode[AppointmentResponse](t, rec).Diagnosis)

	rec = e.do(t, http.MethodPost, base+"/rate", &p, map[string]any{"score": 4, "review": "Very thorough"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, decode[AppointmentResponse](t, rec).Rating)

	rec = e.do(t, http.MethodPost, base+"/rate", &p, map[string]any{"score": 5})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_rated", decode[ErrorResponse](t, rec).Error)

	rec = e.do(t, http.MethodGet, "/doctors/"+e.doctor.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[DoctorResponse](t, rec)
	assert.Equal(t, RatingAggregateResponse{Average: 4, Count: 1}, doc.Rating)

	rec = e.do(t, http.MethodPost, base+"/cancel", &p, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_terminal", decode[ErrorResponse](t, rec).Error)
}

func TestRescheduleAndCancelOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	p := patient()
	appt := e.book(t, p, "09:00")

	rec := e.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/reschedule", &p, map[string]any{
		"appointmentDate": "2030-01-07T00:00:00Z",
		"appointmentTime": "11:30",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	next := decode[AppointmentResponse](t, rec)
	require.NotNil(t, next.RescheduledFrom)
	assert.Equal(t, appt.ID, *next.RescheduledFrom)
	assert.Equal(t, "11:30", next.AppointmentTime)

	rec = e.do(t, http.MethodGet, "/appointments/"+appt.ID.String(), &p, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rescheduled", decode[AppointmentResponse](t, rec).Status)

	stranger := patient()
	rec = e.do(t, http.MethodPost, "/appointments/"+next.ID.String()+"/cancel", &stranger, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPost, "/appointments/"+next.ID.String()+"/cancel", &p, map[string]any{
		"cancellationReason": "Feeling better",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cancelled := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Equal(t, "Feeling better", cancelled.CancellationReason)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, p.ID, *cancelled.CancelledBy)
}

func TestUpdateAppointment_PatientLimits(t *testing.T) {
	e := newTestEnv(t)
	p := patient()
	appt := e.book(t, p, "09:00")
	path := "/appointments/" + appt.ID.String()

	rec := e.do(t, http.MethodPatch, path, &p, map[string]any{"symptoms": "mild fever", "duration": 45})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "mild fever", updated.Symptoms)
	assert.Equal(t, 45, updated.Duration)

	rec = e.do(t, http.MethodPatch, path, &p, map[string]any{"paymentStatus": "paid"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPatch, path, &e.admin, map[string]any{"consultationFee": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPatch, path, &e.admin, map[string]any{"status": "cancelled"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDoctorAdministration(t *testing.T) {
	e := newTestEnv(t)
	docPath := "/doctors/" + e.doctor.ID.String()

	rec := e.do(t, http.MethodPut, docPath+"/availability", &e.docUser, map[string]any{
		"availability": []map[string]any{
			{"dayOfWeek": "Tuesday", "startTime": "13:00", "endTime": "15:00", "isAvailable": true},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	doc := decode[DoctorResponse](t, rec)
	require.Len(t, doc.Availability, 1)
	assert.Equal(t, appointment.Tuesday, doc.Availability[0].DayOfWeek)

	rec = e.do(t, http.MethodPut, docPath+"/availability", &e.docUser, map[string]any{
		"availability": []map[string]any{
			{"dayOfWeek": "tuesday", "startTime": "15:00", "endTime": "13:00", "isAvailable": true},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	other := appointment.Actor{ID: uuid.New(), Role: appointment.RoleDoctor}
	rec = e.do(t, http.MethodPut, docPath+"/availability", &other, map[string]any{
		"availability": []map[string]any{},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	e.do(t, http.MethodPut, docPath+"/availability", &e.admin, map[string]any{
		"availability": []map[string]any{
			{"dayOfWeek": "monday", "startTime": "09:00", "endTime": "12:00", "isAvailable": true},
		},
	})
	appt := e.book(t, patient(), "09:00")

	rec = e.do(t, http.MethodDelete, docPath, &e.docUser, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodDelete, docPath, &e.admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel", &e.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodDelete, docPath, &e.admin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, docPath, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.book(t, patient(), "09:00")

	rec := e.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `appointment_booking_outcomes_total{operation="create",outcome="ok"} 1`), body)
	assert.Contains(t, body, "http_requests_total")
}

func TestDoctorDirectoryOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	newDoc := appointment.Actor{ID: uuid.New(), Role: appointment.RoleDoctor}

	rec := e.do(t, http.MethodPost, "/doctors", &newDoc, map[string]any{
		"name":            "Dr. Yang",
		"specialization":  "Cardiothoracic Surgery",
		"city":            "Seattle",
		"consultationFee": 150,
		"availability": []map[string]any{
			{"dayOfWeek": "Monday", "startTime": "13:00", "endTime": "17:00", "isAvailable": true},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[DoctorResponse](t, rec)
	assert.Equal(t, newDoc.ID, created.User)
	assert.False(t, created.IsVerified)

	rec = e.do(t, http.MethodPost, "/doctors", &newDoc, map[string]any{
		"name": "Dr. Yang", "specialization": "Surgery",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "doctor_profile_exists", decode[ErrorResponse](t, rec).Error)

	p := patient()
	rec = e.do(t, http.MethodPost, "/doctors", &p, map[string]any{"name": "Dr. Fake", "specialization": "Quackery"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodGet, "/doctors?specialization=CARDIO", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[DoctorListResponse](t, rec)
	require.Equal(t, 1, list.Total, "unverified profiles stay out of the directory")
	assert.Equal(t, e.doctor.ID, list.Doctors[0].ID)

	docPath := "/doctors/" + created.ID.String()
	rec = e.do(t, http.MethodPut, docPath, &newDoc, map[string]any{"isVerified": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPut, docPath, &newDoc, map[string]any{"consultationFee": -10})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPut, docPath, &e.admin, map[string]any{"isVerified": true, "bio": "Heart surgeon."})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[DoctorResponse](t, rec)
	assert.True(t, updated.IsVerified)
	assert.Equal(t, "Heart surgeon.", updated.Bio)

	rec = e.do(t, http.MethodGet, "/doctors?specialization=cardio&limit=1&page=2", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = decode[DoctorListResponse](t, rec)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, Pagination{Current: 2, Pages: 2, Limit: 1}, list.Pagination)

	rec = e.do(t, http.MethodGet, "/doctors?city=seattle", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = decode[DoctorListResponse](t, rec)
	require.Len(t, list.Doctors, 1)
	assert.Equal(t, created.ID, list.Doctors[0].ID)

	rec = e.do(t, http.MethodGet, "/doctors/specializations", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Cardiothoracic Surgery", "cardiology"}, decode[SpecializationsResponse](t, rec).Specializations)
}
