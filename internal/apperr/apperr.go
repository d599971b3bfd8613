// Package apperr defines the error taxonomy shared by the domain stores and
// mapped onto HTTP status codes at the API boundary.
package apperr

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrNotFound covers both truly absent records and records hidden by a
	// publication filter; callers must not be able to tell the two apart.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is a role/ownership denial.
	ErrForbidden = errors.New("forbidden")

	// ErrNoEntitlement is the paid-content gate, distinct from ErrForbidden
	// so the API can direct the student toward purchase.
	ErrNoEntitlement = errors.New("purchase required to access this content")

	// ErrConflict is a retryable uniqueness race (order assignment).
	ErrConflict = errors.New("conflict")
)

// FieldErrors is a rule-violation error keyed by input field. The whole
// operation it belongs to is rejected; no partial writes happen.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+f[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
