package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/types"
)

// pathEntities maps URL path segments to entity types.
var pathEntities = map[string]types.EntityType{
	"patients":         types.EntityPatient,
	"consultations":    types.EntityConsultation,
	"hospitalisations": types.EntityHospitalisation,
	"emergencies":      types.EntityEmergency,
	"appointments":     types.EntityAppointment,
	"centres":          types.EntityCentre,
	"profiles":         types.EntityProfile,
}

type errorBody struct {
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	ConflictIDs []string          `json:"conflict_ids,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

func (s *Service) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, errorBody{Code: code, Message: message})
}

// writeCoreError maps a core error kind onto its HTTP status. Cache
// inconsistencies degrade inside the core (reads bypass the cache, writes
// mark the scope bypassed), so one reaching here is an internal fault.
func (s *Service) writeCoreError(w http.ResponseWriter, err error) {
	ce, ok := types.AsCoreError(err)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, types.ErrCodeInternal, "internal error")
		return
	}

	status := http.StatusInternalServerError
	switch ce.Kind {
	case types.ErrorKindValidation:
		status = http.StatusUnprocessableEntity
	case types.ErrorKindPermissionDenied:
		status = http.StatusForbidden
	case types.ErrorKindSchedulingConflict:
		status = http.StatusConflict
	case types.ErrorKindNotFound:
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).Error("Request failed")
	}
	s.writeJSON(w, status, errorBody{
		Code:        ce.Code,
		Message:     ce.Message,
		ConflictIDs: ce.ConflictIDs,
		Details:     ce.Details,
	})
}

func (s *Service) actor(w http.ResponseWriter, r *http.Request) (types.Actor, bool) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "no caller identity")
	}
	return actor, ok
}

// handleListing serves GET /api/v1/{entity}. Pagination comes from the
// page/page_size params; every other query param is an entity filter and is
// validated against the entity's closed schema.
func (s *Service) handleListing(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	entity := pathEntities[mux.Vars(r)["entity"]]

	req := types.ListingRequest{
		Entity:   entity,
		Filters:  map[string]string{},
		Page:     1,
		PageSize: types.AllowedPageSizes[0],
	}
	for key, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		switch key {
		case "page":
			n, err := strconv.Atoi(values[0])
			if err != nil {
				s.writeError(w, http.StatusUnprocessableEntity, types.ErrCodeInvalidPage, "page must be an integer")
				return
			}
			req.Page = n
		case "page_size":
			n, err := strconv.Atoi(values[0])
			if err != nil {
				s.writeError(w, http.StatusUnprocessableEntity, types.ErrCodeInvalidPageSize, "page_size must be an integer")
				return
			}
			req.PageSize = n
		default:
			req.Filters[key] = values[0]
		}
	}

	resp, err := s.listings.List(r.Context(), actor, req)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleDashboard(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	model, err := s.dashboard.Build(r.Context(), actor)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, model)
}

func (s *Service) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "MALFORMED_BODY", "request body is not valid JSON")
		return false
	}
	return true
}

func (s *Service) handleCreatePatient(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var p types.Patient
	if !s.decodeBody(w, r, &p) {
		return
	}
	created, err := s.records.CreatePatient(r.Context(), actor, &p)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Service) handleGetPatient(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	p, err := s.records.GetPatient(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Service) handleUpdatePatient(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var p types.Patient
	if !s.decodeBody(w, r, &p) {
		return
	}
	p.ID = mux.Vars(r)["id"]
	updated, err := s.records.UpdatePatient(r.Context(), actor, &p)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Service) handleDeletePatient(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	if err := s.records.DeletePatient(r.Context(), actor, mux.Vars(r)["id"]); err != nil {
		s.writeCoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleCreateConsultation(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var c types.Consultation
	if !s.decodeBody(w, r, &c) {
		return
	}
	created, err := s.records.CreateConsultation(r.Context(), actor, &c)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Service) handleUpdateConsultation(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var c types.Consultation
	if !s.decodeBody(w, r, &c) {
		return
	}
	c.ID = mux.Vars(r)["id"]
	updated, err := s.records.UpdateConsultation(r.Context(), actor, &c)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Service) handleCreateHospitalisation(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var h types.Hospitalisation
	if !s.decodeBody(w, r, &h) {
		return
	}
	created, err := s.records.CreateHospitalisation(r.Context(), actor, &h)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Service) handleUpdateHospitalisation(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var h types.Hospitalisation
	if !s.decodeBody(w, r, &h) {
		return
	}
	h.ID = mux.Vars(r)["id"]
	updated, err := s.records.UpdateHospitalisation(r.Context(), actor, &h)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Service) handleAppendNursingNote(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	updated, err := s.records.AppendNursingNote(r.Context(), actor, mux.Vars(r)["id"], body.Text)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Service) handleCreateEmergency(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var e types.Emergency
	if !s.decodeBody(w, r, &e) {
		return
	}
	created, err := s.records.CreateEmergency(r.Context(), actor, &e)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Service) handleUpdateEmergency(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var e types.Emergency
	if !s.decodeBody(w, r, &e) {
		return
	}
	e.ID = mux.Vars(r)["id"]
	updated, err := s.records.UpdateEmergency(r.Context(), actor, &e)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Service) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var a types.Appointment
	if !s.decodeBody(w, r, &a) {
		return
	}
	created, err := s.records.CreateAppointment(r.Context(), actor, &a)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Service) handleUpdateAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var a types.Appointment
	if !s.decodeBody(w, r, &a) {
		return
	}
	a.ID = mux.Vars(r)["id"]
	updated, err := s.records.UpdateAppointment(r.Context(), actor, &a)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Service) handleCreateCentre(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var c types.Centre
	if !s.decodeBody(w, r, &c) {
		return
	}
	created, err := s.records.CreateCentre(r.Context(), actor, &c)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Service) handleUpdateCentre(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var c types.Centre
	if !s.decodeBody(w, r, &c) {
		return
	}
	c.ID = mux.Vars(r)["id"]
	updated, err := s.records.UpdateCentre(r.Context(), actor, &c)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Service) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var p types.Profile
	if !s.decodeBody(w, r, &p) {
		return
	}
	created, err := s.records.CreateProfile(r.Context(), actor, &p)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Service) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var p types.Profile
	if !s.decodeBody(w, r, &p) {
		return
	}
	p.ID = mux.Vars(r)["id"]
	updated, err := s.records.UpdateProfile(r.Context(), actor, &p)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}
