package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
)

type CreateAppointmentRequest struct {
	Doctor          string `json:"doctor" validate:"required,uuid"`
	AppointmentDate string `json:"appointmentDate" validate:"required"`
	AppointmentTime string `json:"appointmentTime" validate:"required"`
	Reason          string `json:"reason" validate:"required,max=200"`
	Symptoms        string `json:"symptoms" validate:"max=500"`
}

type RescheduleRequest struct {
	AppointmentDate string `json:"appointmentDate" validate:"required"`
	AppointmentTime string `json:"appointmentTime" validate:"required"`
}

type CancelRequest struct {
	CancellationReason string `json:"cancellationReason" validate:"max=200"`
}

type CompleteRequest struct {
	Notes            string     `json:"notes" validate:"max=1000"`
	Diagnosis        string     `json:"diagnosis" validate:"max=500"`
	Prescription     string     `json:"prescription" validate:"max=1000"`
	FollowUpRequired bool       `json:"followUpRequired"`
	FollowUpDate     *time.Time `json:"followUpDate"`
}

type RateRequest struct {
	Score  int    `json:"score" validate:"required,min=1,max=5"`
	Review string `json:"review" validate:"max=500"`
}

type UpdateAppointmentRequest struct {
	Status           *string    `json:"status" validate:"omitempty,oneof=confirmed completed"`
	Symptoms         *string    `json:"symptoms" validate:"omitempty,max=500"`
	DurationMinutes  *int       `json:"duration" validate:"omitempty,min=15,max=120"`
	Notes            *string    `json:"notes" validate:"omitempty,max=1000"`
	Diagnosis        *string    `json:"diagnosis" validate:"omitempty,max=500"`
	Prescription     *string    `json:"prescription" validate:"omitempty,max=1000"`
	FollowUpRequired *bool      `json:"followUpRequired"`
	FollowUpDate     *time.Time `json:"followUpDate"`
	PaymentStatus    *string    `json:"paymentStatus" validate:"omitempty,oneof=pending paid refunded"`
	ConsultationFee  *float64   `json:"consultationFee"`
}

func (req UpdateAppointmentRequest) toInput() appointment.UpdateInput {
	in := appointment.UpdateInput{
		Symptoms:         req.Symptoms,
		DurationMinutes:  req.DurationMinutes,
		Notes:            req.Notes,
		Diagnosis:        req.Diagnosis,
		Prescription:     req.Prescription,
		FollowUpRequired: req.FollowUpRequired,
		FollowUpDate:     req.FollowUpDate,
		ConsultationFee:  req.ConsultationFee,
	}
	if req.Status != nil {
		s := appointment.AppointmentStatus(*req.Status)
		in.Status = &s
	}
	if req.PaymentStatus != nil {
		p := appointment.PaymentStatus(*req.PaymentStatus)
		in.PaymentStatus = &p
	}
	return in
}

type CreateDoctorRequest struct {
	User            *string                         `json:"user" validate:"omitempty,uuid"`
	Name            string                          `json:"name" validate:"required,max=100"`
	Specialization  string                          `json:"specialization" validate:"required,max=100"`
	City            string                          `json:"city" validate:"max=100"`
	Bio             string                          `json:"bio" validate:"max=500"`
	ConsultationFee float64                         `json:"consultationFee" validate:"gte=0"`
	Availability    []appointment.AvailabilityEntry `json:"availability"`
}

func (req CreateDoctorRequest) toInput() appointment.DoctorProfileInput {
	in := appointment.DoctorProfileInput{
		Name:            req.Name,
		Specialization:  req.Specialization,
		City:            req.City,
		Bio:             req.Bio,
		ConsultationFee: req.ConsultationFee,
		Availability:    req.Availability,
	}
	if req.User != nil {
		id := uuid.MustParse(*req.User)
		in.UserID = &id
	}
	return in
}

type UpdateDoctorRequest struct {
	Name            *string  `json:"name" validate:"omitempty,max=100"`
	Specialization  *string  `json:"specialization" validate:"omitempty,max=100"`
	City            *string  `json:"city" validate:"omitempty,max=100"`
	Bio             *string  `json:"bio" validate:"omitempty,max=500"`
	ConsultationFee *float64 `json:"consultationFee" validate:"omitempty,gte=0"`
	IsActive        *bool    `json:"isActive"`
	IsVerified      *bool    `json:"isVerified"`
}

func (req UpdateDoctorRequest) toInput() appointment.DoctorProfileUpdate {
	return appointment.DoctorProfileUpdate{
		Name:            req.Name,
		Specialization:  req.Specialization,
		City:            req.City,
		Bio:             req.Bio,
		ConsultationFee: req.ConsultationFee,
		IsActive:        req.IsActive,
		IsVerified:      req.IsVerified,
	}
}

type AvailabilityRequest struct {
	Availability []appointment.AvailabilityEntry `json:"availability" validate:"required,dive"`
}

type RatingResponse struct {
	Score   int       `json:"score"`
	Review  string    `json:"review,omitempty"`
	RatedAt time.Time `json:"ratedAt"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID       `json:"id"`
	Patient            uuid.UUID       `json:"patient"`
	Doctor             uuid.UUID       `json:"doctor"`
	AppointmentDate    string          `json:"appointmentDate"`
	AppointmentTime    string          `json:"appointmentTime"`
	Duration           int             `json:"duration"`
	Status             string          `json:"status"`
	Reason             string          `json:"reason"`
	Symptoms           string          `json:"symptoms,omitempty"`
	Notes              string          `json:"notes,omitempty"`
	Diagnosis          string          `json:"diagnosis,omitempty"`
	Prescription       string          `json:"prescription,omitempty"`
	FollowUpRequired   bool            `json:"followUpRequired"`
	FollowUpDate       *time.Time      `json:"followUpDate,omitempty"`
	ConsultationFee    float64         `json:"consultationFee"`
	PaymentStatus      string          `json:"paymentStatus"`
	CancellationReason string          `json:"cancellationReason,omitempty"`
	CancelledBy        *uuid.UUID      `json:"cancelledBy,omitempty"`
	CancelledAt        *time.Time      `json:"cancelledAt,omitempty"`
	RescheduledFrom    *uuid.UUID      `json:"rescheduledFrom,omitempty"`
	Rating             *RatingResponse `json:"rating,omitempty"`
	IsPast             bool            `json:"isPast"`
	CanBeCancelled     bool            `json:"canBeCancelled"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

type Pagination struct {
	Current int `json:"current"`
	Pages   int `json:"pages"`
	Limit   int `json:"limit"`
}

type AppointmentListResponse struct {
	Count        int                   `json:"count"`
	Total        int                   `json:"total"`
	Pagination   Pagination            `json:"pagination"`
	Appointments []AppointmentResponse `json:"appointments"`
}

type DoctorResponse struct {
	ID              uuid.UUID                       `json:"id"`
	User            uuid.UUID                       `json:"user"`
	Name            string                          `json:"name"`
	Specialization  string                          `json:"specialization"`
	City            string                          `json:"city,omitempty"`
	Bio             string                          `json:"bio,omitempty"`
	ConsultationFee float64                         `json:"consultationFee"`
	IsActive        bool                            `json:"isActive"`
	IsVerified      bool                            `json:"isVerified"`
	Availability    []appointment.AvailabilityEntry `json:"availability"`
	Rating          RatingAggregateResponse         `json:"rating"`
}

type DoctorListResponse struct {
	Count      int              `json:"count"`
	Total      int              `json:"total"`
	Pagination Pagination       `json:"pagination"`
	Doctors    []DoctorResponse `json:"doctors"`
}

type SpecializationsResponse struct {
	Specializations []string `json:"specializations"`
}

type RatingAggregateResponse struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

type SlotsResponse struct {
	Date           string   `json:"date"`
	AvailableSlots []string `json:"availableSlots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(svc *appointment.Service, a *appointment.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:                 a.ID,
		Patient:            a.PatientID,
		Doctor:             a.DoctorID,
		AppointmentDate:    a.Date.Format(appointment.DateLayout),
		AppointmentTime:    a.Time,
		Duration:           a.DurationMinutes,
		Status:             string(a.Status),
		Reason:             a.Reason,
		Symptoms:           a.Symptoms,
		Notes:              a.Notes,
		Diagnosis:          a.Diagnosis,
		Prescription:       a.Prescription,
		FollowUpRequired:   a.FollowUpRequired,
		FollowUpDate:       a.FollowUpDate,
		ConsultationFee:    a.ConsultationFee,
		PaymentStatus:      string(a.PaymentStatus),
		CancellationReason: a.CancellationReason,
		CancelledBy:        a.CancelledBy,
		CancelledAt:        a.CancelledAt,
		RescheduledFrom:    a.RescheduledFrom,
		IsPast:             svc.IsPast(a),
		CanBeCancelled:     svc.CanBeCancelled(a),
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
	if a.Rated() {
		resp.Rating = &RatingResponse{Score: a.Rating.Score, Review: a.Rating.Review, RatedAt: a.Rating.RatedAt}
	}
	return resp
}

func toDoctorResponse(d *appointment.Doctor) DoctorResponse {
	availability := d.Availability
	if availability == nil {
		availability = []appointment.AvailabilityEntry{}
	}
	return DoctorResponse{
		ID:              d.ID,
		User:            d.UserID,
		Name:            d.Name,
		Specialization:  d.Specialization,
		City:            d.City,
		Bio:             d.Bio,
		ConsultationFee: d.ConsultationFee,
		IsActive:        d.IsActive,
		IsVerified:      d.IsVerified,
		Availability:    availability,
		Rating:          RatingAggregateResponse{Average: d.Rating.Average, Count: d.Rating.Count},
	}
}
