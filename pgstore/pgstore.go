// Package pgstore implements authz.Store over PostgreSQL for the stock
// groupware schema (company, address, telephone, company_value, project,
// project_company_assignment, doc, attachment, job, object_acl).
//
// Every authz entity name maps to one prepared query parameterized by the
// target primary keys and, where the query joins access rows, the
// authenticated principal IDs. Array parameters are bound as int64 arrays
// with explicit ::bigint[] casts, which works under both the lib/pq and the
// pgx stdlib drivers.
//
//	db, _ := sql.Open("pgx", dsn)
//	store := pgstore.New(db)
//	resolver := authz.NewResolver(store)
//
// The store is read-only and safe for concurrent use; it holds no state
// beyond the database handle, which may be *sql.DB, *sql.Tx or *sql.Conn.
package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/lib/pq"

	authz "github.com/opengroupware/ogo-authz"
)

// Querier executes queries against PostgreSQL.
// Implemented by *sql.DB, *sql.Tx, and *sql.Conn. The minimal interface
// lets permission resolution run inside a transaction and see uncommitted
// changes.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// schemaValidation holds the process-wide validation state.
// Validation runs once per process on the first New call.
var schemaValidation struct {
	once sync.Once
	done bool
}

// validateSchema performs one-time schema validation on first store
// creation. Issues are logged as warnings, never returned: the application
// should start even when the groupware schema is not fully present.
func validateSchema(q Querier) {
	schemaValidation.once.Do(func() {
		ctx := context.Background()

		var count int
		err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM object_acl").Scan(&count)
		if err != nil {
			if sqlState(err) == pgUndefinedTable {
				log.Printf("[pgstore] WARNING: object_acl table not found; explicit ACLs will not resolve")
			} else {
				log.Printf("[pgstore] WARNING: error checking object_acl: %v", err)
			}
		}
		schemaValidation.done = true
	})
}

// Store resolves bulk authorization fetches against PostgreSQL.
type Store struct {
	q Querier
}

// New creates a Store over the given database handle. On the first call
// with a non-nil Querier the groupware schema is validated once per
// process; problems are logged as warnings and do not prevent creation.
func New(q Querier) *Store {
	if q != nil {
		validateSchema(q)
	}
	return &Store{q: q}
}

// entityQuery pairs the SQL for one authz entity with whether it binds the
// principal set as its second array parameter.
type entityQuery struct {
	sql            string
	wantPrincipals bool
}

// entityQueries maps authz entity names to their fetch queries. Column
// aliases follow the names the engine's handlers expect.
var entityQueries = map[string]entityQuery{
	authz.EntityACLEntries: {
		sql: `SELECT object_id, auth_id, permissions
		        FROM object_acl
		       WHERE object_id = ANY($1::bigint[])
		         AND auth_id = ANY($2::bigint[])`,
		wantPrincipals: true,
	},
	authz.EntityACLPresence: {
		sql: `SELECT DISTINCT object_id
		        FROM object_acl
		       WHERE object_id = ANY($1::bigint[])`,
	},
	authz.EntityContactsAuthz: {
		sql: `SELECT company_id AS object_id, owner_id, is_private,
		             is_readonly_flag AS is_readonly, contact_id AS primary_contact_id
		        FROM company
		       WHERE company_id = ANY($1::bigint[])`,
	},
	authz.EntityContactInfosAuthz: {
		sql: `SELECT s.object_id, s.company_id, s.type, s.label,
		             CASE WHEN c.is_team = 1 THEN 'teams'
		                  WHEN c.is_enterprise = 1 THEN 'companies'
		                  ELSE 'persons' END AS company_kind
		        FROM (SELECT address_id AS object_id, company_id, type, NULL AS label
		                FROM address WHERE address_id = ANY($1::bigint[])
		              UNION ALL
		              SELECT telephone_id, company_id, type, NULL
		                FROM telephone WHERE telephone_id = ANY($1::bigint[])
		              UNION ALL
		              SELECT company_value_id, company_id, attribute, label
		                FROM company_value WHERE company_value_id = ANY($1::bigint[])) s
		        JOIN company c ON c.company_id = s.company_id`,
	},
	authz.EntityProjectsAuthz: {
		sql: `SELECT p.project_id AS object_id, p.owner_id, p.team_id,
		             a.company_id AS principal_id, a.access_right AS permissions,
		             a.has_access
		        FROM project p
		        LEFT JOIN project_company_assignment a
		          ON a.project_id = p.project_id
		         AND a.company_id = ANY($2::bigint[])
		       WHERE p.project_id = ANY($1::bigint[])`,
		wantPrincipals: true,
	},
	authz.EntityAttachmentsAuthz: {
		sql: `SELECT attachment_id AS object_id, project_id
		        FROM attachment
		       WHERE attachment_id = ANY($1::bigint[])`,
	},
	authz.EntityDocumentsAuthz: {
		sql: `SELECT document_id AS object_id, owner_id, parent_document_id AS parent_id,
		             project_id, company_id, event_id
		        FROM doc
		       WHERE document_id = ANY($1::bigint[])`,
	},
	authz.EntityTasksAuthz: {
		sql: `SELECT job_id AS object_id, creator_id, owner_id, project_id
		        FROM job
		       WHERE job_id = ANY($1::bigint[])`,
	},
}

// BulkFetch implements authz.Store.
func (s *Store) BulkFetch(ctx context.Context, entity string, spec authz.FetchSpec) ([]authz.Row, error) {
	eq, ok := entityQueries[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}
	if len(spec.IDs) == 0 {
		return nil, nil
	}

	args := []any{pq.Array(spec.IDs)}
	if eq.wantPrincipals {
		args = append(args, pq.Array(spec.PrincipalIDs))
	}

	rows, err := s.q.QueryContext(ctx, eq.sql, args...)
	if err != nil {
		return nil, mapError(entity, err)
	}
	defer func() { _ = rows.Close() }()

	out, err := scanRows(rows)
	if err != nil {
		return nil, mapError(entity, err)
	}
	return out, nil
}

// scanRows materializes a result set into generic authz rows keyed by
// column name. NULL columns are dropped so the engine's accessors treat
// them as absent.
func scanRows(rows *sql.Rows) ([]authz.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []authz.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(authz.Row, len(cols))
		for i, col := range cols {
			if values[i] != nil {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// mapError maps PostgreSQL errors to sentinel errors.
func mapError(entity string, err error) error {
	if sqlState(err) == pgUndefinedTable {
		return fmt.Errorf("%w: fetching %s: %v", ErrMissingTable, entity, err)
	}
	return fmt.Errorf("pgstore: fetch %s: %w", entity, err)
}

// sqlState extracts the SQLSTATE code from a PostgreSQL error.
// Works with multiple drivers via interface detection:
//   - pgx/pgconn: SQLState() string
//   - lib/pq: Code field (via error interface)
//
// Returns empty string if the error doesn't contain a SQLSTATE.
func sqlState(err error) string {
	type sqlStateErr interface{ SQLState() string }
	if e, ok := err.(sqlStateErr); ok {
		return e.SQLState()
	}

	type codeErr interface{ Code() string }
	if e, ok := err.(codeErr); ok {
		return e.Code()
	}

	errStr := err.Error()
	for _, prefix := range []string{"SQLSTATE ", "SQLSTATE: "} {
		if idx := strings.Index(errStr, prefix); idx >= 0 {
			start := idx + len(prefix)
			if start+5 <= len(errStr) {
				return errStr[start : start+5]
			}
		}
	}
	return ""
}
