package query

import (
	"fmt"
	"time"

	"github.com/JUNIORUSENI/system-gestion-hopital/internal/scope"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/logger"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/types"
)

// filterKind is how a filter key compares against its field
type filterKind int

const (
	kindText filterKind = iota // free-text, handled specially
	kindExact
	kindBool
	kindEnum
	kindFlag // boolean switch altering the predicate shape, not a field match
)

// filterSpec describes one allowed filter key for an entity type
type filterSpec struct {
	kind    filterKind
	field   string
	allowed []string
}

// filterSchemas is the closed filter schema per entity type. Unknown keys
// are rejected, never silently ignored.
var filterSchemas = map[types.EntityType]map[string]filterSpec{
	types.EntityPatient: {
		"q":          {kind: kindText},
		"centre_id":  {kind: kindExact, field: "centre_id"},
		"gender":     {kind: kindEnum, field: "gender", allowed: []string{"M", "F"}},
		"subscriber": {kind: kindBool, field: "is_subscriber"},
	},
	types.EntityConsultation: {
		"q":          {kind: kindText},
		"centre_id":  {kind: kindExact, field: "centre_id"},
		"patient_id": {kind: kindExact, field: "patient_id"},
		"doctor_id":  {kind: kindExact, field: "doctor_id"},
		"status": {kind: kindEnum, field: "status",
			allowed: []string{"PENDING", "IN_PROGRESS", "DONE", "CANCELLED"}},
	},
	types.EntityHospitalisation: {
		"q":                  {kind: kindText},
		"centre_id":          {kind: kindExact, field: "centre_id"},
		"patient_id":         {kind: kindExact, field: "patient_id"},
		"doctor_id":          {kind: kindExact, field: "doctor_id"},
		"service":            {kind: kindExact, field: "service"},
		"include_discharged": {kind: kindFlag},
	},
	types.EntityEmergency: {
		"q":          {kind: kindText},
		"centre_id":  {kind: kindExact, field: "centre_id"},
		"patient_id": {kind: kindExact, field: "patient_id"},
		"triage_level": {kind: kindEnum, field: "triage_level",
			allowed: []string{"MINOR", "MODERATE", "SEVERE", "CRITICAL"}},
		"untriaged": {kind: kindFlag},
	},
	types.EntityAppointment: {
		"q":          {kind: kindText},
		"centre_id":  {kind: kindExact, field: "centre_id"},
		"patient_id": {kind: kindExact, field: "patient_id"},
		"doctor_id":  {kind: kindExact, field: "doctor_id"},
		"status": {kind: kindEnum, field: "status",
			allowed: []string{"PLANNED", "CONFIRMED", "DONE", "CANCELLED"}},
		"upcoming": {kind: kindFlag},
	},
	types.EntityCentre: {
		"q": {kind: kindText},
	},
	types.EntityProfile: {
		"q": {kind: kindText},
		"role": {kind: kindEnum, field: "role",
			allowed: []string{"ADMIN", "MEDICAL_ADMIN", "DOCTOR", "NURSE", "SECRETARY"}},
	},
}

// searchFields lists the fields the free-text query matches per entity.
// Identifiers are included so a partial id finds its record.
var searchFields = map[types.EntityType][]string{
	types.EntityPatient:         {"first_name", "postname", "last_name", "phone", "id"},
	types.EntityConsultation:    {"id", "reason"},
	types.EntityHospitalisation: {"id", "service", "room"},
	types.EntityEmergency:       {"id", "reason"},
	types.EntityAppointment:     {"id", "reason"},
	types.EntityCentre:          {"id", "name"},
	types.EntityProfile:         {"id", "username"},
}

// orderings holds the fixed listing order per entity: patients by name
// ascending, everything dated by date descending with id as the
// deterministic tie-breaker.
var orderings = map[types.EntityType][]types.Ordering{
	types.EntityPatient: {{Field: "last_name"}, {Field: "first_name"}},
	types.EntityConsultation: {
		{Field: "date", Desc: true}, {Field: "id"}},
	types.EntityHospitalisation: {
		{Field: "admission_date", Desc: true}, {Field: "id"}},
	types.EntityEmergency: {
		{Field: "admission_time", Desc: true}, {Field: "id"}},
	types.EntityAppointment: {
		{Field: "start_time", Desc: true}, {Field: "id"}},
	types.EntityCentre:  {{Field: "name"}},
	types.EntityProfile: {{Field: "username"}},
}

// Builder merges user filters with the caller's scope predicate into a
// storage-agnostic QuerySpec
type Builder struct {
	logger *logger.Logger
	now    func() time.Time
}

// NewBuilder creates a query builder
func NewBuilder(log *logger.Logger) *Builder {
	return &Builder{logger: log, now: time.Now}
}

// Build validates the raw filters against the entity's closed schema and
// ANDs them with the scope predicate. Scope is never relaxed by user
// filters.
func (b *Builder) Build(entity types.EntityType, rawFilters map[string]string, sc *scope.Scope, page, pageSize int) (*types.QuerySpec, error) {
	if !entity.IsValid() {
		return nil, types.NewValidationError(types.ErrCodeInvalidFilter,
			fmt.Sprintf("unknown entity type %q", entity))
	}
	if err := types.ValidatePagination(page, pageSize); err != nil {
		return nil, err
	}

	schema := filterSchemas[entity]
	userPreds := make([]*types.Predicate, 0, len(rawFilters))

	for key, value := range rawFilters {
		spec, ok := schema[key]
		if !ok {
			return nil, types.NewValidationError(types.ErrCodeInvalidFilter,
				fmt.Sprintf("unknown filter %q for %s", key, entity)).WithDetail("filter", key)
		}

		pred, err := b.buildFilter(entity, key, value, spec)
		if err != nil {
			return nil, err
		}
		if pred != nil {
			userPreds = append(userPreds, pred)
		}
	}

	if p := b.nurseDefault(entity, rawFilters, sc); p != nil {
		userPreds = append(userPreds, p)
	}

	return &types.QuerySpec{
		Entity:      entity,
		Predicate:   types.And(append([]*types.Predicate{sc.Predicate(entity)}, userPreds...)...),
		OrderBy:     orderings[entity],
		Page:        page,
		PageSize:    pageSize,
		Fingerprint: Fingerprint(rawFilters),
	}, nil
}

// buildFilter converts one validated (key, value) pair to a predicate.
func (b *Builder) buildFilter(entity types.EntityType, key, value string, spec filterSpec) (*types.Predicate, error) {
	switch spec.kind {
	case kindText:
		return b.freeText(entity, value), nil

	case kindExact:
		return types.Equals(spec.field, value), nil

	case kindBool:
		if value != "true" && value != "false" {
			return nil, types.NewValidationError(types.ErrCodeInvalidFilter,
				fmt.Sprintf("filter %q expects true or false, got %q", key, value))
		}
		return types.Equals(spec.field, value), nil

	case kindEnum:
		for _, v := range spec.allowed {
			if v == value {
				return types.Equals(spec.field, value), nil
			}
		}
		return nil, types.NewValidationError(types.ErrCodeInvalidFilter,
			fmt.Sprintf("filter %q does not accept %q", key, value))

	case kindFlag:
		return b.buildFlag(entity, key, value)
	}
	return nil, nil
}

// buildFlag handles the switches that reshape the predicate rather than
// match a stored field.
func (b *Builder) buildFlag(entity types.EntityType, key, value string) (*types.Predicate, error) {
	if value != "true" && value != "false" {
		return nil, types.NewValidationError(types.ErrCodeInvalidFilter,
			fmt.Sprintf("filter %q expects true or false, got %q", key, value))
	}

	switch {
	case entity == types.EntityHospitalisation && key == "include_discharged":
		if value == "false" {
			return types.IsNull("discharge_date"), nil
		}
		// true: no restriction; also suppresses the nurse default.
		return nil, nil

	case entity == types.EntityEmergency && key == "untriaged":
		if value == "true" {
			return types.IsNull("orientation"), nil
		}
		return types.NotNull("orientation"), nil

	case entity == types.EntityAppointment && key == "upcoming":
		if value == "true" {
			return types.Gte("start_time", b.now().UTC().Format(time.RFC3339)), nil
		}
		return nil, nil
	}
	return nil, nil
}

// freeText builds the case-insensitive OR across the entity's searchable
// fields. An empty query matches everything.
func (b *Builder) freeText(entity types.EntityType, q string) *types.Predicate {
	if q == "" {
		return nil
	}
	fields := searchFields[entity]
	preds := make([]*types.Predicate, 0, len(fields))
	for _, f := range fields {
		preds = append(preds, types.Contains(f, q))
	}
	return types.Or(preds...)
}

// nurseDefault pins nurse hospitalisation listings to active stays unless
// historical records were explicitly requested.
func (b *Builder) nurseDefault(entity types.EntityType, rawFilters map[string]string, sc *scope.Scope) *types.Predicate {
	if entity != types.EntityHospitalisation || sc.Actor.Role != types.RoleNurse {
		return nil
	}
	if _, explicit := rawFilters["include_discharged"]; explicit {
		return nil
	}
	return types.IsNull("discharge_date")
}
