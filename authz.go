// Package authz resolves per-object access permissions for a multi-tenant
// groupware database (contacts, projects, documents, tasks) whose objects
// derive trust from one another: an address inherits from its owning contact,
// a document is capped by its project, a task follows its project membership.
//
// # Batched fixed-point resolution
//
// Permissions are resolved in batches. The caller hands a set of global
// identifiers plus the authenticated principal IDs (the acting account and its
// team memberships) to a Resolver, which runs a bounded fixed-point loop:
// type-specific handlers inspect each identifier, register dependencies on
// other objects' masks and requests for missing raw rows or ACL entries, and
// the loop issues grouped bulk fetches between passes until every identifier
// is resolved or the iteration budget runs out.
//
//	resolver := authz.NewResolver(store)
//	result, err := resolver.Resolve(ctx, gids, principalIDs)
//	mask, ok := result.PermissionsFor(gid)
//
// Identifiers missing from the result were unresolvable (typically a
// dependency cycle or a failing fetch) and must be treated as no-access.
//
// # Storage
//
// The engine never talks SQL itself. It consumes a Store, an opaque bulk-fetch
// capability keyed by entity name and a set of primary keys. The pgstore
// subpackage implements Store over PostgreSQL for the stock groupware schema.
//
// # Decision overrides
//
// Use WithDecision for admin tools or tests:
//
//	resolver := authz.NewResolver(store, authz.WithDecision(authz.DecisionAllow))
//
// DecisionAllow grants the full mask without touching the store, DecisionDeny
// the empty mask.
package authz

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// EntityKind names a persisted object type ("persons", "projects", ...).
type EntityKind string

// String returns the string representation of the entity kind.
func (k EntityKind) String() string {
	return string(k)
}

// Entity kinds of the stock groupware schema. All kinds draw their primary
// keys from one shared integer namespace, so a raw key is unique across the
// whole database even without its kind.
const (
	KindPersons   EntityKind = "persons"
	KindTeams     EntityKind = "teams"
	KindCompanies EntityKind = "companies"

	KindAddresses EntityKind = "addresses"
	KindPhones    EntityKind = "phones"
	KindEMails    EntityKind = "emails"

	KindProjects    EntityKind = "projects"
	KindAttachments EntityKind = "attachments"

	KindDocuments EntityKind = "documents"
	KindFolders   EntityKind = "folders"
	KindNotes     EntityKind = "notes"

	KindTasks EntityKind = "tasks"

	KindAppointments EntityKind = "appointments"

	KindACLEntries      EntityKind = "acl_entries"
	KindTeamMemberships EntityKind = "team_memberships"
)

// GID is a global object identifier: entity kind plus primary key.
// GIDs are value types, safe to copy and usable as map keys. The canonical
// string format is "kind:id", used in logging and debugging.
type GID struct {
	Kind EntityKind
	ID   int64
}

// String returns the canonical representation "kind:id".
func (g GID) String() string {
	return g.Kind.String() + ":" + strconv.FormatInt(g.ID, 10)
}

// IsValid reports whether the GID names a concrete persisted object.
func (g GID) IsValid() bool {
	return g.Kind != "" && g.ID > 0
}

// ParseGID parses the canonical "kind:id" form.
func ParseGID(s string) (GID, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || kind == "" {
		return GID{}, fmt.Errorf("authz: malformed gid %q", s)
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return GID{}, fmt.Errorf("authz: malformed gid %q", s)
	}
	return GID{Kind: EntityKind(kind), ID: n}, nil
}

// Row is one raw attribute row returned by a bulk fetch, keyed by column
// name. Handlers read rows through the typed accessors; a missing column and
// a SQL NULL are treated alike.
type Row map[string]any

// Int64 returns the named column as an int64.
func (r Row) Int64(col string) (int64, bool) {
	switch v := r[col].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	default:
		return 0, false
	}
}

// Str returns the named column as a string.
func (r Row) Str(col string) (string, bool) {
	switch v := r[col].(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	default:
		return "", false
	}
}

// Bool returns the named column as a bool. Integer columns are common for
// flags in the legacy schema; any non-zero value counts as true.
func (r Row) Bool(col string) bool {
	switch v := r[col].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case string:
		return v == "1" || v == "t" || v == "true" || v == "YES"
	default:
		return false
	}
}

// FetchSpec parameterizes a bulk fetch: the target primary keys and the
// authenticated principal IDs the query may restrict on.
type FetchSpec struct {
	IDs          []int64
	PrincipalIDs []int64
}

// Store is the opaque bulk-fetch capability the engine runs against.
// Implementations map the entity name to a prepared query (see pgstore for
// the PostgreSQL mapping) and return raw attribute rows.
//
// The engine is read-only: Store implementations are never asked to mutate
// anything, and must support concurrent readers since multiple resolutions
// may run at once.
type Store interface {
	BulkFetch(ctx context.Context, entity string, spec FetchSpec) ([]Row, error)
}

// ObjectSource is an optional collaborator that exposes objects the caller
// already holds in memory, saving the engine a fetch. Rows returned here must
// carry the same columns the entity's authz fetch would produce.
type ObjectSource interface {
	MaterializedObject(gid GID) (Row, bool)
}

// PrincipalSet is the set of principal IDs an acting session is
// authenticated as: the account itself plus all of its team memberships.
type PrincipalSet map[int64]struct{}

// NewPrincipalSet builds a PrincipalSet from a list of IDs.
func NewPrincipalSet(ids []int64) PrincipalSet {
	s := make(PrincipalSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Contains reports whether id is in the set.
func (s PrincipalSet) Contains(id int64) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the set as a slice, in unspecified order.
func (s PrincipalSet) IDs() []int64 {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	return ids
}
