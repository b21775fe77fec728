package ownership

import (
	"errors"
	"fmt"
)

// DeniedCode categorizes ownership refusals.
type DeniedCode string

const (
	// CodeOwnedByOther means the store id is bound to a different identity.
	CodeOwnedByOther DeniedCode = "OWNED_BY_OTHER"

	// CodeClaimRace means a concurrent claim bound the id to another identity.
	CodeClaimRace DeniedCode = "CLAIM_RACE"

	// CodeMigrationRefused means a one-store identity cannot be migrated.
	CodeMigrationRefused DeniedCode = "MIGRATION_REFUSED"

	// CodeNotBound means the store id is not bound to any identity.
	CodeNotBound DeniedCode = "NOT_BOUND"

	// CodeAmbiguous means the identity already owns several stores.
	CodeAmbiguous DeniedCode = "AMBIGUOUS_STORES"
)

// DeniedError is an access-denied condition raised by the guard. It is fatal
// for the request: retrying with the same identity and store cannot succeed.
type DeniedError struct {
	Code    DeniedCode
	StoreID string
	OwnerID string
	Message string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: %s (store=%s, owner=%s)", e.Code, e.Message, e.StoreID, e.OwnerID)
}

// AccessDenied marks the error as belonging to the access-denied class.
func (e *DeniedError) AccessDenied() bool { return true }

// IsDenied returns true if err is or wraps a DeniedError.
func IsDenied(err error) bool {
	var de *DeniedError
	return errors.As(err, &de)
}

func denied(code DeniedCode, storeID, ownerID, format string, args ...any) *DeniedError {
	return &DeniedError{
		Code:    code,
		StoreID: storeID,
		OwnerID: ownerID,
		Message: fmt.Sprintf(format, args...),
	}
}
