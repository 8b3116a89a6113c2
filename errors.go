package authz

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNilStore is returned by Resolve when the Resolver was constructed
// without a store and no decision override is in effect.
var ErrNilStore = errors.New("authz: nil store")

// AccessDeniedError reports a permission shortfall for one object: which
// mask was requested, which was available, and their difference. It carries
// an HTTP status code for web-layer consumers.
//
// This error is expected control flow for denied requests. It never
// indicates an engine or storage fault.
type AccessDeniedError struct {
	GID       GID
	Requested Permissions
	Available Permissions
	Missing   Permissions
}

// Deny builds an AccessDeniedError, computing the missing mask as the set
// difference of requested and available.
func Deny(gid GID, requested, available Permissions) *AccessDeniedError {
	return &AccessDeniedError{
		GID:       gid,
		Requested: requested,
		Available: available,
		Missing:   requested.Subtract(available),
	}
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("authz: access denied on %s: requested %q, available %q, missing %q",
		e.GID, e.Requested, e.Available, e.Missing)
}

// StatusCode returns 403 for web-layer consumers.
func (e *AccessDeniedError) StatusCode() int {
	return http.StatusForbidden
}

// IsAccessDenied returns the AccessDeniedError wrapped in err, if any.
func IsAccessDenied(err error) (*AccessDeniedError, bool) {
	var denied *AccessDeniedError
	if errors.As(err, &denied) {
		return denied, true
	}
	return nil, false
}
