package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
)

func createAppointmentHandler(svc *appointment.Service, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), actor, appointment.CreateInput{
			DoctorID: uuid.MustParse(req.Doctor),
			Date:     normalizeDate(req.AppointmentDate),
			Time:     req.AppointmentTime,
			Reason:   req.Reason,
			Symptoms: req.Symptoms,
		})
		metrics.RecordBooking("create", outcomeOf(err))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(svc, appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		q := r.URL.Query()
		query := appointment.ListQuery{
			Status: appointment.AppointmentStatus(q.Get("status")),
			Page:   atoiOr(q.Get("page"), 1),
			Limit:  atoiOr(q.Get("limit"), appointment.DefaultPageSize),
		}

		// patient/doctor filters only take effect for admins; the gate overrides them otherwise
		if v := q.Get("patient"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_input", "patient must be a valid UUID")
				return
			}
			query.PatientID = &id
		}
		if v := q.Get("doctor"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_input", "doctor must be a valid UUID")
				return
			}
			query.DoctorID = &id
		}
		if v := q.Get("date"); v != "" {
			d, err := appointment.ParseDate(normalizeDate(v))
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			query.Date = &d
		}

		page, err := svc.ListAppointments(r.Context(), actor, query)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		items := make([]AppointmentResponse, 0, len(page.Items))
		for i := range page.Items {
			items = append(items, toAppointmentResponse(svc, &page.Items[i]))
		}

		writeJSON(w, http.StatusOK, AppointmentListResponse{
			Count: len(items),
			Total: page.Total,
			Pagination: Pagination{
				Current: page.Page,
				Pages:   page.Pages,
				Limit:   page.Limit,
			},
			Appointments: items,
		})
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), actor, id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(svc, appt))
	}
}

func updateAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var req UpdateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.UpdateAppointment(r.Context(), actor, id, req.toInput())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(svc, appt))
	}
}

func confirmAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		appt, err := svc.ConfirmAppointment(r.Context(), actor, id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(svc, appt))
	}
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var req CancelRequest
		if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.CancelAppointment(r.Context(), actor, id, appointment.CancelInput{Reason: req.CancellationReason})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(svc, appt))
	}
}

func rescheduleAppointmentHandler(svc *appointment.Service, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var req RescheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.RescheduleAppointment(r.Context(), actor, id, appointment.RescheduleInput{
			Date: normalizeDate(req.AppointmentDate),
			Time: req.AppointmentTime,
		})
		metrics.RecordBooking("reschedule", outcomeOf(err))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(svc, appt))
	}
}

func completeAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var req CompleteRequest
		if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.CompleteAppointment(r.Context(), actor, id, appointment.ClinicalInput{
			Notes:            req.Notes,
			Diagnosis:        req.Diagnosis,
			Prescription:     req.Prescription,
			FollowUpRequired: req.FollowUpRequired,
			FollowUpDate:     req.FollowUpDate,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(svc, appt))
	}
}

func rateAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var req RateRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.RateAppointment(r.Context(), actor, id, appointment.RateInput{Score: req.Score, Review: req.Review})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(svc, appt))
	}
}

func listDoctorsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, err := svc.ListDoctors(r.Context(), appointment.DoctorQuery{
			Specialization: q.Get("specialization"),
			City:           q.Get("city"),
			Page:           atoiOr(q.Get("page"), 1),
			Limit:          atoiOr(q.Get("limit"), appointment.DefaultPageSize),
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		doctors := make([]DoctorResponse, 0, len(page.Items))
		for i := range page.Items {
			doctors = append(doctors, toDoctorResponse(&page.Items[i]))
		}
		writeJSON(w, http.StatusOK, DoctorListResponse{
			Count: len(doctors),
			Total: page.Total,
			Pagination: Pagination{
				Current: page.Page,
				Pages:   page.Pages,
				Limit:   page.Limit,
			},
			Doctors: doctors,
		})
	}
}

func specializationsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := svc.Specializations(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, SpecializationsResponse{Specializations: out})
	}
}

func createDoctorHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		var req CreateDoctorRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		doc, err := svc.CreateDoctorProfile(r.Context(), actor, req.toInput())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toDoctorResponse(doc))
	}
}

func updateDoctorHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var req UpdateDoctorRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		doc, err := svc.UpdateDoctorProfile(r.Context(), actor, id, req.toInput())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctorResponse(doc))
	}
}

func getDoctorHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		doc, err := svc.GetDoctor(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctorResponse(doc))
	}
}

func availableSlotsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		raw := r.URL.Query().Get("date")
		if raw == "" {
			writeError(w, http.StatusBadRequest, "invalid_input", "date query parameter is required")
			return
		}
		date, err := appointment.ParseDate(normalizeDate(raw))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		slots, err := svc.AvailableSlots(r.Context(), id, date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, SlotsResponse{Date: date.Format(appointment.DateLayout), AvailableSlots: slots})
	}
}

func updateAvailabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var req AvailabilityRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		doc, err := svc.UpdateAvailability(r.Context(), actor, id, req.Availability)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctorResponse(doc))
	}
}

func deleteDoctorHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		if err := svc.DeleteDoctor(r.Context(), actor, id); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func requireActor(w http.ResponseWriter, r *http.Request) (appointment.Actor, bool) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
	}
	return actor, ok
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// normalizeDate accepts a full RFC 3339 timestamp as well as YYYY-MM-DD and keeps the date part.
func normalizeDate(s string) string {
	if len(s) > len(appointment.DateLayout) {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.Format(appointment.DateLayout)
		}
	}
	return s
}

func atoiOr(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	for _, m := range serviceErrors {
		if errors.Is(err, m.target) {
			return m.code
		}
	}
	return "internal_error"
}
