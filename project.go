package authz

import "context"

// Store entity names for the project-family authz fetches.
const (
	EntityProjectsAuthz    = "projects_authz"
	EntityAttachmentsAuthz = "attachments_authz"
)

// Columns expected on project rows. The authz fetch joins the assignment
// table restricted to the principal set, so a project may come back as
// several rows, one per matching assignment; FetchInfos folds them into one.
const (
	colTeamID      = "team_id"
	colPrincipalID = "principal_id"
	colHasAccess   = "has_access"
	colACLMask     = "acl_mask"
	colProjectID   = "project_id"
)

// projectHandler resolves projects. The owner holds the full manage mask;
// everyone else gets the union of their assignment entries, where manage
// implies all other bits, with a read bonus for members of the project's
// team.
type projectHandler struct{}

func (h *projectHandler) Process(fc *fetchContext, gid GID, info Row) outcome {
	if info == nil {
		fc.requestInfoFetch(h, gid)
		return pending
	}

	if ownerID, ok := info.Int64(colOwnerID); ok && fc.principals.Contains(ownerID) {
		fc.recordPermission(gid, projectOwnerMask)
		return resolved
	}

	raw, _ := info.Str(colACLMask)
	mask := expandProjectMask(NewPermissions(raw))
	if teamID, ok := info.Int64(colTeamID); ok && fc.principals.Contains(teamID) {
		mask = mask.Union("r")
	}
	fc.recordPermission(gid, mask)
	return resolved
}

// FetchInfos loads project rows, folding the per-assignment join rows into
// one row per project and short-circuiting ownership on the way: projects
// the actor owns are recorded immediately so the next scan pass is free.
func (h *projectHandler) FetchInfos(ctx context.Context, fc *fetchContext, gids []GID) (map[GID]Row, error) {
	ids := make([]int64, 0, len(gids))
	byID := make(map[int64]GID, len(gids))
	for _, gid := range gids {
		ids = append(ids, gid.ID)
		byID[gid.ID] = gid
	}

	rows, err := fc.r.store.BulkFetch(ctx, EntityProjectsAuthz, FetchSpec{
		IDs:          ids,
		PrincipalIDs: fc.principals.IDs(),
	})
	if err != nil {
		return nil, err
	}

	out := make(map[GID]Row, len(gids))
	for _, row := range rows {
		id, ok := row.Int64(colObjectID)
		if !ok {
			continue
		}
		gid, ok := byID[id]
		if !ok {
			continue
		}

		folded, ok := out[gid]
		if !ok {
			folded = Row{}
			if v, ok := row.Int64(colOwnerID); ok {
				folded[colOwnerID] = v
			}
			if v, ok := row.Int64(colTeamID); ok {
				folded[colTeamID] = v
			}
			out[gid] = folded
		}

		if pid, ok := row.Int64(colPrincipalID); ok && fc.principals.Contains(pid) && row.Bool(colHasAccess) {
			perms, _ := row.Str(colPermissions)
			prev, _ := folded.Str(colACLMask)
			folded[colACLMask] = string(UnionOf(prev, perms))
		}

		if v, ok := folded.Int64(colOwnerID); ok && fc.principals.Contains(v) {
			fc.recordPermission(gid, projectOwnerMask)
		}
	}
	return out, nil
}

// projectOwnedHandler resolves objects that live inside a project and have
// no access rules of their own, such as attachments: any access to the
// project, even bare read, grants read/write on the subobject; no project
// access grants nothing.
type projectOwnedHandler struct{}

func (h *projectOwnedHandler) Process(fc *fetchContext, gid GID, info Row) outcome {
	if info == nil {
		fc.requestInfoFetch(h, gid)
		return pending
	}

	projectID, ok := info.Int64(colProjectID)
	if !ok {
		fc.recordPermission(gid, NoPermissions)
		return resolved
	}
	project := GID{Kind: KindProjects, ID: projectID}

	projectMask, ok := fc.permissionsFor(project)
	if !ok {
		fc.registerDependency(gid, project)
		return pending
	}

	if projectMask.IsEmpty() {
		fc.recordPermission(gid, NoPermissions)
	} else {
		fc.recordPermission(gid, NewPermissions("rw"))
	}
	return resolved
}

func (h *projectOwnedHandler) FetchInfos(ctx context.Context, fc *fetchContext, gids []GID) (map[GID]Row, error) {
	return fetchRowsByID(ctx, fc, EntityAttachmentsAuthz, gids)
}
