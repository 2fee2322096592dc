package v1

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/tenantd/internal/domain"
)

// mapError translates domain errors to HTTP problem responses. Anything
// unrecognized becomes a 500 without leaking internals to the caller.
func mapError(err error) error {
	var val *domain.ValidationError
	if errors.As(err, &val) {
		return huma.Error422UnprocessableEntity(val.Error())
	}

	var pre *domain.PreconditionError
	if errors.As(err, &pre) {
		return huma.Error412PreconditionFailed(pre.Error())
	}

	if errors.Is(err, domain.ErrNotFound) {
		return huma.Error404NotFound("not found")
	}

	if errors.Is(err, domain.ErrConflict) {
		return huma.Error409Conflict("conflict with existing resource")
	}

	return huma.Error500InternalServerError("internal error", err)
}
