package interfaces

import (
	"context"

	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/types"
)

// RecordStore is the storage collaborator the core depends on. It evaluates
// the predicate/ordering/pagination triple of a QuerySpec and persists
// entity writes; the core never sees storage technology.
type RecordStore interface {
	// List evaluates a query spec and returns one page of summaries plus
	// the total match count before pagination.
	List(ctx context.Context, spec *types.QuerySpec) ([]types.Summary, int, error)

	GetCentre(ctx context.Context, id string) (*types.Centre, error)
	CreateCentre(ctx context.Context, c *types.Centre) error
	UpdateCentre(ctx context.Context, c *types.Centre) error

	GetProfile(ctx context.Context, id string) (*types.Profile, error)
	CreateProfile(ctx context.Context, p *types.Profile) error
	UpdateProfile(ctx context.Context, p *types.Profile) error

	GetPatient(ctx context.Context, id string) (*types.Patient, error)
	CreatePatient(ctx context.Context, p *types.Patient) error
	UpdatePatient(ctx context.Context, p *types.Patient) error
	DeletePatient(ctx context.Context, id string) error

	GetConsultation(ctx context.Context, id string) (*types.Consultation, error)
	CreateConsultation(ctx context.Context, c *types.Consultation) error
	UpdateConsultation(ctx context.Context, c *types.Consultation) error

	GetHospitalisation(ctx context.Context, id string) (*types.Hospitalisation, error)
	CreateHospitalisation(ctx context.Context, h *types.Hospitalisation) error
	UpdateHospitalisation(ctx context.Context, h *types.Hospitalisation) error

	GetEmergency(ctx context.Context, id string) (*types.Emergency, error)
	CreateEmergency(ctx context.Context, e *types.Emergency) error
	UpdateEmergency(ctx context.Context, e *types.Emergency) error

	GetAppointment(ctx context.Context, id string) (*types.Appointment, error)
	CreateAppointment(ctx context.Context, a *types.Appointment) error
	UpdateAppointment(ctx context.Context, a *types.Appointment) error

	// AppointmentsForDoctor returns every appointment of a doctor across
	// all centres; the scheduler's comparison set.
	AppointmentsForDoctor(ctx context.Context, doctorID string) ([]*types.Appointment, error)
}

// PageCache memoizes filtered, paginated listing results. Implementations
// must support concurrent use; invalidation clears the entire key space of
// an (entity, caller, role) scope, never a subset.
type PageCache interface {
	Get(ctx context.Context, key types.CacheKey) (*types.CachedPage, bool, error)
	Put(ctx context.Context, key types.CacheKey, page *types.CachedPage) error
	Invalidate(ctx context.Context, entity types.EntityType, callerID string, role types.Role) error
}
