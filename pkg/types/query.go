package types

// PredicateOp is the node kind of a predicate tree
type PredicateOp string

const (
	// OpTrue matches every record (unrestricted scope)
	OpTrue PredicateOp = "true"
	// OpFalse matches nothing
	OpFalse PredicateOp = "false"
	// OpAnd matches when all sub-predicates match
	OpAnd PredicateOp = "and"
	// OpOr matches when any sub-predicate matches
	OpOr PredicateOp = "or"
	// OpEquals matches an exact field value
	OpEquals PredicateOp = "equals"
	// OpContains matches a case-insensitive substring of a field
	OpContains PredicateOp = "contains"
	// OpIn matches a field against a value set
	OpIn PredicateOp = "in"
	// OpIsNull matches a nullable field with no value
	OpIsNull PredicateOp = "is_null"
	// OpNotNull matches a nullable field holding a value
	OpNotNull PredicateOp = "not_null"
	// OpGte matches a time/ordinal field at or after the value
	OpGte PredicateOp = "gte"
	// OpEncounterWith matches patients having at least one consultation,
	// hospitalisation or emergency with the given doctor. Derived, not stored.
	OpEncounterWith PredicateOp = "encounter_with"
)

// Predicate is a storage-agnostic filter tree. Leaves compare a named field;
// OpAnd/OpOr combine sub-trees. Storage collaborators compile or evaluate it.
type Predicate struct {
	Op     PredicateOp  `json:"op"`
	Field  string       `json:"field,omitempty"`
	Value  string       `json:"value,omitempty"`
	Values []string     `json:"values,omitempty"`
	Sub    []*Predicate `json:"sub,omitempty"`
}

// True returns the unrestricted predicate.
func True() *Predicate { return &Predicate{Op: OpTrue} }

// False returns the match-nothing predicate.
func False() *Predicate { return &Predicate{Op: OpFalse} }

// And combines predicates conjunctively, flattening trivial cases.
func And(preds ...*Predicate) *Predicate {
	kept := make([]*Predicate, 0, len(preds))
	for _, p := range preds {
		if p == nil || p.Op == OpTrue {
			continue
		}
		if p.Op == OpFalse {
			return False()
		}
		kept = append(kept, p)
	}
	switch len(kept) {
	case 0:
		return True()
	case 1:
		return kept[0]
	}
	return &Predicate{Op: OpAnd, Sub: kept}
}

// Or combines predicates disjunctively, flattening trivial cases.
func Or(preds ...*Predicate) *Predicate {
	kept := make([]*Predicate, 0, len(preds))
	for _, p := range preds {
		if p == nil || p.Op == OpFalse {
			continue
		}
		if p.Op == OpTrue {
			return True()
		}
		kept = append(kept, p)
	}
	switch len(kept) {
	case 0:
		return False()
	case 1:
		return kept[0]
	}
	return &Predicate{Op: OpOr, Sub: kept}
}

// Equals builds an exact-match leaf.
func Equals(field, value string) *Predicate {
	return &Predicate{Op: OpEquals, Field: field, Value: value}
}

// Contains builds a case-insensitive substring leaf.
func Contains(field, value string) *Predicate {
	return &Predicate{Op: OpContains, Field: field, Value: value}
}

// In builds a set-membership leaf.
func In(field string, values []string) *Predicate {
	return &Predicate{Op: OpIn, Field: field, Values: values}
}

// IsNull builds a null-check leaf.
func IsNull(field string) *Predicate { return &Predicate{Op: OpIsNull, Field: field} }

// NotNull builds a non-null-check leaf.
func NotNull(field string) *Predicate { return &Predicate{Op: OpNotNull, Field: field} }

// Gte builds an at-or-after leaf; Value is RFC 3339 for time fields.
func Gte(field, value string) *Predicate {
	return &Predicate{Op: OpGte, Field: field, Value: value}
}

// EncounterWith builds the derived patient-of-doctor leaf.
func EncounterWith(doctorID string) *Predicate {
	return &Predicate{Op: OpEncounterWith, Value: doctorID}
}

// Ordering is one sort key of a query
type Ordering struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// AllowedPageSizes is the closed set of listing page sizes.
var AllowedPageSizes = []int{10, 25, 50, 100}

// IsAllowedPageSize reports whether size is one of the permitted page sizes.
func IsAllowedPageSize(size int) bool {
	for _, s := range AllowedPageSizes {
		if s == size {
			return true
		}
	}
	return false
}

// QuerySpec is the storage-agnostic retrieval request the query builder
// produces: predicate tree plus ordering plus pagination. Fingerprint is a
// stable hash of the merged user filters, used as a cache key dimension.
type QuerySpec struct {
	Entity      EntityType  `json:"entity"`
	Predicate   *Predicate  `json:"predicate"`
	OrderBy     []Ordering  `json:"order_by"`
	Page        int         `json:"page"`
	PageSize    int         `json:"page_size"`
	Fingerprint string      `json:"fingerprint"`
}

// Offset returns the zero-based row offset of the requested page.
func (q *QuerySpec) Offset() int {
	return (q.Page - 1) * q.PageSize
}
