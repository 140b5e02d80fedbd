package gateway

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JUNIORUSENI/system-gestion-hopital/internal/dashboard"
	"github.com/JUNIORUSENI/system-gestion-hopital/internal/listing"
	"github.com/JUNIORUSENI/system-gestion-hopital/internal/records"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/logger"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/monitoring"
)

// Service is the HTTP surface over the core: identity extraction, routing,
// and the error-kind to status-code mapping.
type Service struct {
	listings  *listing.Service
	records   *records.Service
	dashboard *dashboard.Aggregator
	logger    *logger.Logger
	jwtSecret string
	health    []monitoring.HealthChecker
	registry  *prometheus.Registry
}

// NewService creates the HTTP gateway
func NewService(listings *listing.Service, recs *records.Service, dash *dashboard.Aggregator,
	log *logger.Logger, jwtSecret string, registry *prometheus.Registry,
	health ...monitoring.HealthChecker) *Service {
	return &Service{
		listings:  listings,
		records:   recs,
		dashboard: dash,
		logger:    log,
		jwtSecret: jwtSecret,
		health:    health,
		registry:  registry,
	}
}

// Router builds the route table. Everything under /api/v1 requires a caller
// identity; /health and /metrics do not.
func (s *Service) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)

	r.HandleFunc("/health", monitoring.HealthHandler(s.health...)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.identityMiddleware)

	api.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)

	// Listings share one handler; the path segment names the entity type.
	api.HandleFunc("/{entity:patients|consultations|hospitalisations|emergencies|appointments|centres|profiles}",
		s.handleListing).Methods(http.MethodGet)

	api.HandleFunc("/patients", s.handleCreatePatient).Methods(http.MethodPost)
	api.HandleFunc("/patients/{id}", s.handleGetPatient).Methods(http.MethodGet)
	api.HandleFunc("/patients/{id}", s.handleUpdatePatient).Methods(http.MethodPut)
	api.HandleFunc("/patients/{id}", s.handleDeletePatient).Methods(http.MethodDelete)

	api.HandleFunc("/consultations", s.handleCreateConsultation).Methods(http.MethodPost)
	api.HandleFunc("/consultations/{id}", s.handleUpdateConsultation).Methods(http.MethodPut)

	api.HandleFunc("/hospitalisations", s.handleCreateHospitalisation).Methods(http.MethodPost)
	api.HandleFunc("/hospitalisations/{id}", s.handleUpdateHospitalisation).Methods(http.MethodPut)
	api.HandleFunc("/hospitalisations/{id}/nursing-notes", s.handleAppendNursingNote).Methods(http.MethodPost)

	api.HandleFunc("/emergencies", s.handleCreateEmergency).Methods(http.MethodPost)
	api.HandleFunc("/emergencies/{id}", s.handleUpdateEmergency).Methods(http.MethodPut)

	api.HandleFunc("/appointments", s.handleCreateAppointment).Methods(http.MethodPost)
	api.HandleFunc("/appointments/{id}", s.handleUpdateAppointment).Methods(http.MethodPut)

	api.HandleFunc("/centres", s.handleCreateCentre).Methods(http.MethodPost)
	api.HandleFunc("/centres/{id}", s.handleUpdateCentre).Methods(http.MethodPut)

	api.HandleFunc("/profiles", s.handleCreateProfile).Methods(http.MethodPost)
	api.HandleFunc("/profiles/{id}", s.handleUpdateProfile).Methods(http.MethodPut)

	return r
}
