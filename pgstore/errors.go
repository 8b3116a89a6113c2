package pgstore

import "errors"

// Sentinel errors for storage-level failures. These indicate setup issues,
// never permission denials: denied access is expressed through the masks
// the engine resolves, not through errors from the store.
var (
	// ErrUnknownEntity is returned when a bulk fetch names an entity this
	// store has no query for.
	ErrUnknownEntity = errors.New("pgstore: unknown fetch entity")

	// ErrMissingTable is returned when a fetch hits a table that does not
	// exist in the connected database.
	ErrMissingTable = errors.New("pgstore: groupware table missing")
)

// IsUnknownEntityErr returns true if err is or wraps ErrUnknownEntity.
func IsUnknownEntityErr(err error) bool {
	return errors.Is(err, ErrUnknownEntity)
}

// IsMissingTableErr returns true if err is or wraps ErrMissingTable.
func IsMissingTableErr(err error) bool {
	return errors.Is(err, ErrMissingTable)
}

// PostgreSQL error codes used by error mapping.
const (
	pgUndefinedTable = "42P01" // undefined_table
)
