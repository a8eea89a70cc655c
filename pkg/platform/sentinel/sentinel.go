package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these wrapped
// around the driver error so services can decide how to react without
// knowing which backend produced them.
//
// - ErrNotFound: entity does not exist in store
// - ErrConflict: lock, serialization or deadlock conflict; retrying may succeed
// - ErrUnavailable: connection lost or backend temporarily unavailable
// - ErrConstraint: integrity constraint or invalid data; retrying cannot succeed
// - ErrSchema: schema mismatch or malformed statement; retrying cannot succeed
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
	ErrConstraint  = errors.New("constraint violation")
	ErrSchema      = errors.New("schema error")
)

// IsPermanent reports whether err is a storage failure that a retry cannot
// fix.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrConstraint) || errors.Is(err, ErrSchema)
}
