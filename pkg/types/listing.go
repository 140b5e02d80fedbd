package types

import (
	"fmt"
	"time"
)

// ListingRequest is the inbound listing call from the presentation layer.
type ListingRequest struct {
	Entity   EntityType        `json:"entity"`
	Filters  map[string]string `json:"filters,omitempty"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// Summary is the listing projection of a record: enough to render a row
// without loading the full entity.
type Summary struct {
	ID       string     `json:"id"`
	Entity   EntityType `json:"entity"`
	Label    string     `json:"label"`
	Date     time.Time  `json:"date"`
	Status   string     `json:"status,omitempty"`
	CentreID string     `json:"centre_id,omitempty"`
}

// ListingResponse is the outbound page of summaries.
type ListingResponse struct {
	Items      []Summary `json:"items"`
	TotalCount int       `json:"total_count"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
}

// CachedPage is a memoized listing response.
type CachedPage struct {
	Items      []Summary `json:"items"`
	TotalCount int       `json:"total_count"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	StoredAt   time.Time `json:"stored_at"`
}

// CacheKey addresses one cached page. The full key space is the explicit
// product (entity x caller x role x page x page size x filter fingerprint),
// which makes invalidation an enumerable sweep rather than a guess.
type CacheKey struct {
	Entity      EntityType `json:"entity"`
	CallerID    string     `json:"caller_id"`
	Role        Role       `json:"role"`
	Page        int        `json:"page"`
	PageSize    int        `json:"page_size"`
	Fingerprint string     `json:"fingerprint"`
}

// String renders the key in its canonical storage form.
func (k CacheKey) String() string {
	return fmt.Sprintf("%s:%s:%s:%d:%d:%s", k.Entity, k.CallerID, k.Role, k.Page, k.PageSize, k.Fingerprint)
}

// ScopePrefix renders the key prefix shared by every page cached for the
// same (entity, caller, role) scope. Invalidation sweeps this prefix.
func (k CacheKey) ScopePrefix() string {
	return ScopePrefix(k.Entity, k.CallerID, k.Role)
}

// ScopePrefix builds the cache key prefix for an (entity, caller, role) scope.
func ScopePrefix(entity EntityType, callerID string, role Role) string {
	return fmt.Sprintf("%s:%s:%s:", entity, callerID, role)
}

// DashboardModel is the role-specific dashboard: aggregate counts plus
// bounded most-recent-first record lists.
type DashboardModel struct {
	Role    Role                 `json:"role"`
	Counts  map[string]int       `json:"counts"`
	Recent  map[string][]Summary `json:"recent"`
	BuiltAt time.Time            `json:"built_at"`
}

// DashboardRecentLimit caps every recent-record list on the dashboard.
const DashboardRecentLimit = 10
