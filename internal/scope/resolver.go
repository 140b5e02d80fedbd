package scope

import (
	"fmt"

	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/logger"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/types"
)

// Scope is the resolved visibility of one caller: a filter predicate per
// entity type. Listings and dashboards consume the same Scope, so the two
// can never diverge on what a role may see.
type Scope struct {
	Actor types.Actor

	preds map[types.EntityType]*types.Predicate
}

// Predicate returns the scope predicate for an entity type. Unknown entity
// types get the match-nothing predicate.
func (s *Scope) Predicate(entity types.EntityType) *types.Predicate {
	if p, ok := s.preds[entity]; ok {
		return p
	}
	return types.False()
}

// AllowsCentre reports whether the caller may write records routed through
// the given centre.
func (s *Scope) AllowsCentre(centreID string) bool {
	if s.Actor.GlobalScope() {
		return true
	}
	switch s.Actor.Role {
	case types.RoleAdmin, types.RoleMedicalAdmin, types.RoleNurse, types.RoleSecretary:
		return s.Actor.HasCentre(centreID)
	case types.RoleDoctor:
		// Doctors are centre-agnostic: they practice wherever their
		// patients are routed.
		return true
	}
	return false
}

// Resolver computes scope predicates from a caller's role and centre
// assignments
type Resolver struct {
	logger *logger.Logger
}

// NewResolver creates a scope resolver
func NewResolver(log *logger.Logger) *Resolver {
	return &Resolver{logger: log}
}

// Resolve builds the caller's Scope. A NURSE or SECRETARY with no assigned
// centres is a configuration error and resolves to permission denied, never
// to unrestricted access.
func (r *Resolver) Resolve(actor types.Actor) (*Scope, error) {
	if !actor.Role.IsValid() {
		return nil, types.NewPermissionDenied(types.ErrCodeRoleNotAllowed,
			fmt.Sprintf("unknown role %q", actor.Role))
	}

	if actor.Role.RequiresCentres() && len(actor.CentreIDs) == 0 {
		r.logger.AccessDenied(actor, "", "role requires centre assignments")
		return nil, types.NewPermissionDenied(types.ErrCodeCentresRequired,
			fmt.Sprintf("role %s has no assigned centres", actor.Role))
	}

	scope := &Scope{
		Actor: actor,
		preds: make(map[types.EntityType]*types.Predicate),
	}

	switch actor.Role {
	case types.RoleAdmin, types.RoleMedicalAdmin:
		r.resolveAdmin(scope, actor)
	case types.RoleDoctor:
		r.resolveDoctor(scope, actor)
	case types.RoleNurse, types.RoleSecretary:
		r.resolveCentreBound(scope, actor)
	}

	return scope, nil
}

// resolveAdmin: global scope with no centre assignments, otherwise
// restricted to the assigned centres.
func (r *Resolver) resolveAdmin(s *Scope, actor types.Actor) {
	if actor.GlobalScope() {
		for _, e := range clinicalEntities {
			s.preds[e] = types.True()
		}
		s.preds[types.EntityCentre] = types.True()
		s.preds[types.EntityProfile] = types.True()
		return
	}

	for _, e := range clinicalEntities {
		s.preds[e] = types.In("centre_id", actor.CentreIDs)
	}
	s.preds[types.EntityCentre] = types.In("id", actor.CentreIDs)
	s.preds[types.EntityProfile] = types.True()
}

// resolveDoctor: encounters restricted to the caller as treating doctor,
// patients derived from having at least one encounter with the caller.
func (r *Resolver) resolveDoctor(s *Scope, actor types.Actor) {
	s.preds[types.EntityPatient] = types.EncounterWith(actor.ID)
	s.preds[types.EntityConsultation] = types.Equals("doctor_id", actor.ID)
	s.preds[types.EntityHospitalisation] = types.Equals("doctor_id", actor.ID)
	s.preds[types.EntityEmergency] = types.Equals("doctor_id", actor.ID)
	s.preds[types.EntityAppointment] = types.Equals("doctor_id", actor.ID)
	s.preds[types.EntityCentre] = types.True()
	s.preds[types.EntityProfile] = types.False()
}

// resolveCentreBound: NURSE and SECRETARY see records routed through their
// assigned centres only. The nurse's active-hospitalisations default is
// applied by the query builder, where the caller's explicit request for
// historical records is known.
func (r *Resolver) resolveCentreBound(s *Scope, actor types.Actor) {
	centres := types.In("centre_id", actor.CentreIDs)
	for _, e := range clinicalEntities {
		s.preds[e] = centres
	}
	s.preds[types.EntityCentre] = types.In("id", actor.CentreIDs)
	s.preds[types.EntityProfile] = types.False()
}

var clinicalEntities = []types.EntityType{
	types.EntityPatient,
	types.EntityConsultation,
	types.EntityHospitalisation,
	types.EntityEmergency,
	types.EntityAppointment,
}
