package appointment

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

type DoctorQuery struct {
	Specialization string
	City           string
	Page           int
	Limit          int
}

type DoctorPage struct {
	Items []Doctor
	Total int
	Page  int
	Pages int
	Limit int
}

// ListDoctors pages through the public directory of active, verified doctors, best rated first.
func (s *Service) ListDoctors(ctx context.Context, q DoctorQuery) (DoctorPage, error) {
	var offset int
	q.Page, q.Limit, offset = paginate(q.Page, q.Limit)

	items, total, err := s.doctors.ListDoctors(ctx, DoctorFilter{
		Specialization: strings.TrimSpace(q.Specialization),
		City:           strings.TrimSpace(q.City),
		Limit:          q.Limit,
		Offset:         offset,
	})
	if err != nil {
		return DoctorPage{}, storageErr("list doctors", err)
	}
	return DoctorPage{
		Items: items,
		Total: total,
		Page:  q.Page,
		Pages: pageCount(total, q.Limit),
		Limit: q.Limit,
	}, nil
}

func (s *Service) Specializations(ctx context.Context) ([]string, error) {
	out, err := s.doctors.Specializations(ctx)
	if err != nil {
		return nil, storageErr("list specializations", err)
	}
	return out, nil
}

// CreateDoctorProfile registers a doctor profile. Doctors create their own; admins create one
// for the account named in UserID. New profiles are active but unverified, so they cannot be
// booked until an admin verifies them.
func (s *Service) CreateDoctorProfile(ctx context.Context, actor Actor, in DoctorProfileInput) (*Doctor, error) {
	var owner uuid.UUID
	switch actor.Role {
	case RoleDoctor:
		if in.UserID != nil && *in.UserID != actor.ID {
			return nil, ErrForbidden
		}
		owner = actor.ID
	case RoleAdmin:
		if in.UserID == nil || *in.UserID == uuid.Nil {
			return nil, invalid("user", "is required when an admin creates a profile")
		}
		owner = *in.UserID
	default:
		return nil, ErrForbidden
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	d := &Doctor{
		ID:              uuid.New(),
		UserID:          owner,
		Name:            in.Name,
		Specialization:  in.Specialization,
		City:            in.City,
		Bio:             in.Bio,
		ConsultationFee: in.ConsultationFee,
		IsActive:        true,
		Availability:    in.Availability,
	}
	if err := s.doctors.CreateDoctor(ctx, d); err != nil {
		if errors.Is(err, ErrDoctorProfileExists) {
			return nil, err
		}
		return nil, storageErr("create doctor", err)
	}
	s.log.Info().Str("doctor_id", d.ID.String()).Str("user_id", owner.String()).Msg("doctor profile created")
	return d, nil
}

// UpdateDoctorProfile edits profile fields. A fee change only affects appointments booked
// afterwards, since each appointment keeps the fee it was booked at.
func (s *Service) UpdateDoctorProfile(ctx context.Context, actor Actor, doctorID uuid.UUID, in DoctorProfileUpdate) (*Doctor, error) {
	d, err := s.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.AuthorizeDoctorProfile(ctx, actor, doctorID); err != nil {
		return nil, err
	}
	if (in.IsActive != nil || in.IsVerified != nil) && actor.Role != RoleAdmin {
		return nil, ErrForbidden
	}
	if err := in.applyTo(d); err != nil {
		return nil, err
	}

	updated, err := s.doctors.UpdateProfile(ctx, d)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, storageErr("update doctor", err)
	}
	s.log.Info().Str("doctor_id", doctorID.String()).Msg("doctor profile updated")
	return updated, nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.doctors.GetDoctorByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, storageErr("load doctor", err)
	}
	return d, nil
}

// UpdateAvailability replaces a doctor's weekly template. Only the owning doctor or an admin may do it.
func (s *Service) UpdateAvailability(ctx context.Context, actor Actor, doctorID uuid.UUID, entries []AvailabilityEntry) (*Doctor, error) {
	clean, err := ValidateAvailability(entries)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	if err := s.gate.AuthorizeDoctorProfile(ctx, actor, doctorID); err != nil {
		return nil, err
	}

	d, err := s.doctors.UpdateAvailability(ctx, doctorID, clean)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, storageErr("update availability", err)
	}
	s.log.Info().Str("doctor_id", doctorID.String()).Int("entries", len(clean)).Msg("availability updated")
	return d, nil
}

// DeleteDoctor retires a doctor profile. It is refused while the doctor still has pending or
// confirmed appointments. Past appointments can still be rated afterwards.
func (s *Service) DeleteDoctor(ctx context.Context, actor Actor, doctorID uuid.UUID) error {
	if actor.Role != RoleAdmin {
		return ErrForbidden
	}

	if err := s.doctors.DeleteDoctor(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) || errors.Is(err, ErrDoctorHasActiveBookings) {
			return err
		}
		return storageErr("delete doctor", err)
	}
	s.log.Info().Str("doctor_id", doctorID.String()).Msg("doctor deleted")
	return nil
}
