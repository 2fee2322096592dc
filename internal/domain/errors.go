package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the domain layer.
var (
	ErrNotFound        = errors.New("domain: not found")
	ErrConflict        = errors.New("domain: conflict")
	ErrVersionMismatch = errors.New("domain: version mismatch")
)

// ValidationError reports malformed input (bad subdomain, start time in the
// past). Always recoverable; surfaced to the caller unchanged.
type ValidationError struct {
	Op     string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: invalid %s: %s", e.Op, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// PreconditionError reports that an operation was attempted from the wrong
// workflow state ("tenant is not archived", "retention not expired").
// Recoverable: the caller must correct the workflow state first.
type PreconditionError struct {
	Op         string
	TenantID   uuid.UUID
	Reason     string
	EligibleAt *time.Time // set when the operation becomes valid at a known time
}

func (e *PreconditionError) Error() string {
	if e.EligibleAt != nil {
		return fmt.Sprintf("%s: tenant %s: %s, eligible at %s", e.Op, e.TenantID, e.Reason, e.EligibleAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("%s: tenant %s: %s", e.Op, e.TenantID, e.Reason)
}

// PostconditionError reports that an external resource failed a check after
// the operation ran (database still exists after a drop). Fatal for the
// operation; must never be retried automatically and requires operator
// intervention.
type PostconditionError struct {
	Op       string
	TenantID uuid.UUID
	Reason   string
}

func (e *PostconditionError) Error() string {
	return fmt.Sprintf("%s: tenant %s: %s", e.Op, e.TenantID, e.Reason)
}

// BatchItemError records a single tenant's failure inside a batch operation.
// Batch calls collect these instead of aborting on the first failure.
type BatchItemError struct {
	TenantID uuid.UUID
	Err      error
}

func (e *BatchItemError) Error() string {
	return fmt.Sprintf("tenant %s: %v", e.TenantID, e.Err)
}

func (e *BatchItemError) Unwrap() error { return e.Err }
