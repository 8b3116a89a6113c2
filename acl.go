package authz

import (
	"context"
	"fmt"
	"sort"
)

// Store entity names for the two ACL queries. The entries query is
// restricted to the authenticated principal set; the presence query is not.
const (
	EntityACLEntries  = "acl_entries"
	EntityACLPresence = "acl_presence"
)

// Columns expected on ACL rows.
const (
	colObjectID    = "object_id"
	colPermissions = "permissions"
)

// bulkFetchACLs fetches the explicit ACL entries for every GID in the
// required queue in one grouped round trip.
//
// The entity kind is dropped from the keys: all kinds sharing the ACL table
// draw from one primary-key namespace, so the raw keys are unambiguous. The
// fetch unions the permission characters of all entries naming one of the
// authenticated principals, per key. A second fetch determines which keys
// have any ACL entries at all, so handlers can tell "no ACL configured"
// (default rules apply) apart from "ACL exists but excludes the actor"
// (denial for non-owners).
//
// After a successful call every queued GID has an entry in both the mask
// cache and the presence cache, even if zero rows matched; the same ACL is
// never requested twice in one run.
func (fc *fetchContext) bulkFetchACLs(ctx context.Context) error {
	keys := make([]int64, 0, len(fc.requiredACL))
	for gid := range fc.requiredACL {
		keys = append(keys, gid.ID)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	spec := FetchSpec{IDs: keys, PrincipalIDs: fc.principals.IDs()}
	rows, err := fc.r.store.BulkFetch(ctx, EntityACLEntries, spec)
	if err != nil {
		return fmt.Errorf("fetch acl entries: %w", err)
	}

	masks := make(map[int64]Permissions, len(rows))
	for _, row := range rows {
		id, ok := row.Int64(colObjectID)
		if !ok {
			continue
		}
		perms, _ := row.Str(colPermissions)
		masks[id] = masks[id].Union(NewPermissions(perms))
	}

	present, err := fc.fetchACLPresence(ctx, keys, masks)
	if err != nil {
		return err
	}

	for gid := range fc.requiredACL {
		fc.aclMask[gid] = masks[gid.ID]
		fc.aclPresence[gid] = present[gid.ID]
	}
	return nil
}

// fetchACLPresence determines which keys have any ACL rows at all. Keys that
// already matched an entry for the actor are known present and excluded from
// the query; only the keys with an empty mask need the extra check.
func (fc *fetchContext) fetchACLPresence(ctx context.Context, keys []int64, masks map[int64]Permissions) (map[int64]bool, error) {
	present := make(map[int64]bool, len(keys))
	unknown := make([]int64, 0, len(keys))
	for _, id := range keys {
		if _, ok := masks[id]; ok {
			present[id] = true
		} else {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) == 0 {
		return present, nil
	}

	rows, err := fc.r.store.BulkFetch(ctx, EntityACLPresence, FetchSpec{IDs: unknown})
	if err != nil {
		return nil, fmt.Errorf("fetch acl presence: %w", err)
	}
	for _, row := range rows {
		if id, ok := row.Int64(colObjectID); ok {
			present[id] = true
		}
	}
	return present, nil
}
