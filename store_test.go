package authz_test

import (
	"context"
	"fmt"
	"sync"

	authz "github.com/opengroupware/ogo-authz"
)

// aclFixture is one row of the fake object_acl table.
type aclFixture struct {
	objectID    int64
	principalID int64
	permissions string
}

// assignmentFixture is one row of the fake project assignment table.
type assignmentFixture struct {
	projectID   int64
	principalID int64
	permissions string
	hasAccess   bool
}

// fakeStore implements authz.Store in memory, mimicking the shapes the
// pgstore queries produce. Call counts per entity let tests assert fetch
// batching and re-fetch avoidance.
type fakeStore struct {
	mu    sync.Mutex
	calls map[string]int

	acl         []aclFixture
	contacts    map[int64]authz.Row
	subobjects  map[int64]authz.Row
	projects    map[int64]authz.Row // owner_id, team_id
	assignments []assignmentFixture
	attachments map[int64]authz.Row
	documents   map[int64]authz.Row
	tasks       map[int64]authz.Row

	fail map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		calls:       make(map[string]int),
		contacts:    make(map[int64]authz.Row),
		subobjects:  make(map[int64]authz.Row),
		projects:    make(map[int64]authz.Row),
		attachments: make(map[int64]authz.Row),
		documents:   make(map[int64]authz.Row),
		tasks:       make(map[int64]authz.Row),
		fail:        make(map[string]error),
	}
}

func (s *fakeStore) callCount(entity string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[entity]
}

func (s *fakeStore) BulkFetch(ctx context.Context, entity string, spec authz.FetchSpec) ([]authz.Row, error) {
	s.mu.Lock()
	s.calls[entity]++
	s.mu.Unlock()

	if err := s.fail[entity]; err != nil {
		return nil, err
	}

	ids := make(map[int64]bool, len(spec.IDs))
	for _, id := range spec.IDs {
		ids[id] = true
	}
	principals := make(map[int64]bool, len(spec.PrincipalIDs))
	for _, id := range spec.PrincipalIDs {
		principals[id] = true
	}

	switch entity {
	case authz.EntityACLEntries:
		var out []authz.Row
		for _, e := range s.acl {
			if ids[e.objectID] && principals[e.principalID] {
				out = append(out, authz.Row{
					"object_id":   e.objectID,
					"auth_id":     e.principalID,
					"permissions": e.permissions,
				})
			}
		}
		return out, nil

	case authz.EntityACLPresence:
		var out []authz.Row
		seen := make(map[int64]bool)
		for _, e := range s.acl {
			if ids[e.objectID] && !seen[e.objectID] {
				seen[e.objectID] = true
				out = append(out, authz.Row{"object_id": e.objectID})
			}
		}
		return out, nil

	case authz.EntityContactsAuthz:
		return tableRows(s.contacts, ids), nil
	case authz.EntityContactInfosAuthz:
		return tableRows(s.subobjects, ids), nil
	case authz.EntityAttachmentsAuthz:
		return tableRows(s.attachments, ids), nil
	case authz.EntityDocumentsAuthz:
		return tableRows(s.documents, ids), nil
	case authz.EntityTasksAuthz:
		return tableRows(s.tasks, ids), nil

	case authz.EntityProjectsAuthz:
		// Mimics the LEFT JOIN: one row per matching assignment, or a
		// bare project row when none match.
		var out []authz.Row
		for id, base := range s.projects {
			if !ids[id] {
				continue
			}
			matched := false
			for _, a := range s.assignments {
				if a.projectID == id && principals[a.principalID] {
					row := projectRow(id, base)
					row["principal_id"] = a.principalID
					row["permissions"] = a.permissions
					row["has_access"] = a.hasAccess
					out = append(out, row)
					matched = true
				}
			}
			if !matched {
				out = append(out, projectRow(id, base))
			}
		}
		return out, nil
	}

	return nil, fmt.Errorf("fake store: unknown entity %q", entity)
}

func tableRows(table map[int64]authz.Row, ids map[int64]bool) []authz.Row {
	var out []authz.Row
	for id, row := range table {
		if !ids[id] {
			continue
		}
		copied := authz.Row{"object_id": id}
		for k, v := range row {
			copied[k] = v
		}
		out = append(out, copied)
	}
	return out
}

func projectRow(id int64, base authz.Row) authz.Row {
	row := authz.Row{"object_id": id}
	for k, v := range base {
		row[k] = v
	}
	return row
}
