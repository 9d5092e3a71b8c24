package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

type Action string

const (
	ActionView       Action = "view"
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionConfirm    Action = "confirm"
	ActionCancel     Action = "cancel"
	ActionComplete   Action = "complete"
	ActionReschedule Action = "reschedule"
	ActionRate       Action = "rate"
)

// actionRoles restricts actions to a subset of roles. Actions not listed are open to every role,
// subject to the ownership rule.
var actionRoles = map[Action][]Role{
	ActionCreate:     {RolePatient},
	ActionReschedule: {RolePatient},
	ActionRate:       {RolePatient},
	ActionComplete:   {RoleDoctor, RoleAdmin},
}

type ownershipRule func(ctx context.Context, g *Gate, actor Actor, a *Appointment) (bool, error)

var ownershipRules = map[Role]ownershipRule{
	RolePatient: func(_ context.Context, _ *Gate, actor Actor, a *Appointment) (bool, error) {
		return actor.ID == a.PatientID, nil
	},
	RoleDoctor: func(ctx context.Context, g *Gate, actor Actor, a *Appointment) (bool, error) {
		doc, err := g.doctorProfile(ctx, actor)
		if err != nil || doc == nil {
			return false, err
		}
		return doc.ID == a.DoctorID, nil
	},
	RoleAdmin: func(context.Context, *Gate, Actor, *Appointment) (bool, error) {
		return true, nil
	},
}

// Gate answers whether an actor may perform an action on an appointment.
type Gate struct {
	doctors DoctorRepository
}

func NewGate(doctors DoctorRepository) *Gate {
	return &Gate{doctors: doctors}
}

// Authorize returns nil when allowed, ErrForbidden when denied, or a storage error.
func (g *Gate) Authorize(ctx context.Context, actor Actor, action Action, a *Appointment) error {
	if roles, ok := actionRoles[action]; ok && !hasRole(roles, actor.Role) {
		return ErrForbidden
	}
	rule, ok := ownershipRules[actor.Role]
	if !ok {
		return ErrForbidden
	}
	allowed, err := rule(ctx, g, actor, a)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrForbidden
	}
	return nil
}

// Scope restricts a listing filter to what the actor may see. ok is false when the actor has no
// accessible appointments at all (a doctor account without a profile).
func (g *Gate) Scope(ctx context.Context, actor Actor, f ListFilter) (scoped ListFilter, ok bool, err error) {
	switch actor.Role {
	case RolePatient:
		id := actor.ID
		f.PatientID = &id
		f.DoctorID = nil
		return f, true, nil
	case RoleDoctor:
		doc, err := g.doctorProfile(ctx, actor)
		if err != nil {
			return f, false, err
		}
		if doc == nil {
			return f, false, nil
		}
		id := doc.ID
		f.DoctorID = &id
		f.PatientID = nil
		return f, true, nil
	case RoleAdmin:
		return f, true, nil
	}
	return f, false, ErrForbidden
}

// AuthorizeDoctorProfile allows the owning doctor or an admin to edit a doctor profile.
func (g *Gate) AuthorizeDoctorProfile(ctx context.Context, actor Actor, doctorID uuid.UUID) error {
	switch actor.Role {
	case RoleAdmin:
		return nil
	case RoleDoctor:
		doc, err := g.doctorProfile(ctx, actor)
		if err != nil {
			return err
		}
		if doc != nil && doc.ID == doctorID {
			return nil
		}
	}
	return ErrForbidden
}

// doctorProfile resolves the doctor profile owned by actor. A missing profile is (nil, nil).
func (g *Gate) doctorProfile(ctx context.Context, actor Actor) (*Doctor, error) {
	doc, err := g.doctors.GetDoctorByUserID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, nil
		}
		return nil, storageErr("resolve doctor profile", err)
	}
	return doc, nil
}

func hasRole(roles []Role, r Role) bool {
	for _, have := range roles {
		if have == r {
			return true
		}
	}
	return false
}
