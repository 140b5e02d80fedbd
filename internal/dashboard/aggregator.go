package dashboard

import (
	"context"
	"time"

	"github.com/JUNIORUSENI/system-gestion-hopital/internal/query"
	"github.com/JUNIORUSENI/system-gestion-hopital/internal/scope"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/interfaces"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/logger"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/types"
)

// Aggregator builds the role-specific dashboard. Every count and every
// recent list goes through the same resolver and query builder as the
// listings, so a dashboard can never show a record its caller could not
// list. Results are computed per call, never cached.
type Aggregator struct {
	resolver *scope.Resolver
	builder  *query.Builder
	store    interfaces.RecordStore
	logger   *logger.Logger
	now      func() time.Time
}

// NewAggregator creates a dashboard aggregator
func NewAggregator(resolver *scope.Resolver, builder *query.Builder, store interfaces.RecordStore, log *logger.Logger) *Aggregator {
	return &Aggregator{
		resolver: resolver,
		builder:  builder,
		store:    store,
		logger:   log,
		now:      time.Now,
	}
}

// Build assembles the actor's dashboard.
func (a *Aggregator) Build(ctx context.Context, actor types.Actor) (*types.DashboardModel, error) {
	sc, err := a.resolver.Resolve(actor)
	if err != nil {
		return nil, err
	}

	model := &types.DashboardModel{
		Role:    actor.Role,
		Counts:  make(map[string]int),
		Recent:  make(map[string][]types.Summary),
		BuiltAt: a.now().UTC(),
	}

	switch actor.Role {
	case types.RoleAdmin, types.RoleMedicalAdmin:
		err = a.buildAdmin(ctx, sc, model)
	case types.RoleDoctor:
		err = a.buildDoctor(ctx, sc, model)
	case types.RoleSecretary:
		err = a.buildSecretary(ctx, sc, model)
	case types.RoleNurse:
		err = a.buildNurse(ctx, sc, model)
	}
	if err != nil {
		return nil, err
	}
	return model, nil
}

// fetch runs one scoped query and returns the recent page plus the total.
func (a *Aggregator) fetch(ctx context.Context, sc *scope.Scope, entity types.EntityType, filters map[string]string) ([]types.Summary, int, error) {
	spec, err := a.builder.Build(entity, filters, sc, 1, types.DashboardRecentLimit)
	if err != nil {
		return nil, 0, err
	}
	return a.store.List(ctx, spec)
}

// count runs one scoped query for its total only.
func (a *Aggregator) count(ctx context.Context, sc *scope.Scope, entity types.EntityType, filters map[string]string) (int, error) {
	_, total, err := a.fetch(ctx, sc, entity, filters)
	return total, err
}

func (a *Aggregator) buildAdmin(ctx context.Context, sc *scope.Scope, model *types.DashboardModel) error {
	recentPatients, totalPatients, err := a.fetch(ctx, sc, types.EntityPatient, nil)
	if err != nil {
		return err
	}
	model.Counts["patients"] = totalPatients
	model.Recent["patients"] = recentPatients

	recentConsultations, totalConsultations, err := a.fetch(ctx, sc, types.EntityConsultation, nil)
	if err != nil {
		return err
	}
	model.Counts["consultations"] = totalConsultations
	model.Recent["consultations"] = recentConsultations

	totals := map[string]types.EntityType{
		"hospitalisations": types.EntityHospitalisation,
		"emergencies":      types.EntityEmergency,
		"appointments":     types.EntityAppointment,
		"centres":          types.EntityCentre,
	}
	for key, entity := range totals {
		total, err := a.count(ctx, sc, entity, nil)
		if err != nil {
			return err
		}
		model.Counts[key] = total
	}
	return nil
}

func (a *Aggregator) buildDoctor(ctx context.Context, sc *scope.Scope, model *types.DashboardModel) error {
	recentPatients, totalPatients, err := a.fetch(ctx, sc, types.EntityPatient, nil)
	if err != nil {
		return err
	}
	model.Counts["patients"] = totalPatients
	model.Recent["patients"] = recentPatients

	pending, totalPending, err := a.fetch(ctx, sc, types.EntityConsultation,
		map[string]string{"status": string(types.ConsultationPending)})
	if err != nil {
		return err
	}
	model.Counts["consultations_pending"] = totalPending
	model.Recent["consultations_pending"] = pending

	done, err := a.count(ctx, sc, types.EntityConsultation,
		map[string]string{"status": string(types.ConsultationDone)})
	if err != nil {
		return err
	}
	model.Counts["consultations_done"] = done

	active, totalActive, err := a.fetch(ctx, sc, types.EntityHospitalisation,
		map[string]string{"include_discharged": "false"})
	if err != nil {
		return err
	}
	model.Counts["hospitalisations_active"] = totalActive
	model.Recent["hospitalisations_active"] = active

	untriaged, err := a.count(ctx, sc, types.EntityEmergency,
		map[string]string{"untriaged": "true"})
	if err != nil {
		return err
	}
	model.Counts["emergencies_untriaged"] = untriaged

	upcoming, totalUpcoming, err := a.fetch(ctx, sc, types.EntityAppointment,
		map[string]string{"upcoming": "true"})
	if err != nil {
		return err
	}
	model.Counts["appointments_upcoming"] = totalUpcoming
	model.Recent["appointments_upcoming"] = upcoming
	return nil
}

func (a *Aggregator) buildSecretary(ctx context.Context, sc *scope.Scope, model *types.DashboardModel) error {
	recentPatients, totalPatients, err := a.fetch(ctx, sc, types.EntityPatient, nil)
	if err != nil {
		return err
	}
	model.Counts["patients"] = totalPatients
	model.Recent["patients"] = recentPatients

	recentConsultations, _, err := a.fetch(ctx, sc, types.EntityConsultation, nil)
	if err != nil {
		return err
	}
	model.Recent["consultations"] = recentConsultations

	activeStays, err := a.count(ctx, sc, types.EntityHospitalisation,
		map[string]string{"include_discharged": "false"})
	if err != nil {
		return err
	}
	model.Counts["hospitalisations_active"] = activeStays

	upcoming, totalUpcoming, err := a.fetch(ctx, sc, types.EntityAppointment,
		map[string]string{"upcoming": "true"})
	if err != nil {
		return err
	}
	model.Counts["appointments_upcoming"] = totalUpcoming
	model.Recent["appointments_upcoming"] = upcoming
	return nil
}

func (a *Aggregator) buildNurse(ctx context.Context, sc *scope.Scope, model *types.DashboardModel) error {
	// No filters: the builder's nurse default already pins hospitalisation
	// queries to active stays.
	active, totalActive, err := a.fetch(ctx, sc, types.EntityHospitalisation, nil)
	if err != nil {
		return err
	}
	model.Counts["hospitalisations_active"] = totalActive
	model.Recent["hospitalisations_active"] = active

	recentEmergencies, totalEmergencies, err := a.fetch(ctx, sc, types.EntityEmergency, nil)
	if err != nil {
		return err
	}
	model.Counts["emergencies"] = totalEmergencies
	model.Recent["emergencies"] = recentEmergencies

	critical, err := a.count(ctx, sc, types.EntityEmergency,
		map[string]string{"triage_level": string(types.TriageCritical)})
	if err != nil {
		return err
	}
	model.Counts["emergencies_critical"] = critical
	return nil
}
