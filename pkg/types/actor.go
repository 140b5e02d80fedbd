package types

// Actor is the immutable caller identity threaded through every core call:
// who is asking, as which role, with which centre assignments. It is built
// once per request at the transport boundary and never read from ambient
// state.
type Actor struct {
	ID        string   `json:"id"`
	Role      Role     `json:"role"`
	CentreIDs []string `json:"centre_ids,omitempty"`
}

// HasCentre reports whether the actor is assigned to the given centre.
func (a Actor) HasCentre(centreID string) bool {
	for _, id := range a.CentreIDs {
		if id == centreID {
			return true
		}
	}
	return false
}

// GlobalScope reports whether the actor sees all centres: ADMIN and
// MEDICAL_ADMIN with no explicit centre assignments.
func (a Actor) GlobalScope() bool {
	return (a.Role == RoleAdmin || a.Role == RoleMedicalAdmin) && len(a.CentreIDs) == 0
}
