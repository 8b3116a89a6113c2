package authz

import "context"

// Store entity name for the task authz fetch.
const EntityTasksAuthz = "tasks_authz"

// Column for the task creator; the assigned owner reuses colOwnerID.
const colCreatorID = "creator_id"

// taskHandler resolves tasks. The creator and the assigned owner (which may
// be a team; team IDs are part of the principal set) hold the full task
// mask. Everyone else is routed through the attached project: membership
// access to the project yields a reduced read/list mask, no project access
// or no project at all yields nothing.
type taskHandler struct{}

func (h *taskHandler) Process(fc *fetchContext, gid GID, info Row) outcome {
	if info == nil {
		fc.requestInfoFetch(h, gid)
		return pending
	}

	if creatorID, ok := info.Int64(colCreatorID); ok && fc.principals.Contains(creatorID) {
		fc.recordPermission(gid, taskOwnerMask)
		return resolved
	}
	if ownerID, ok := info.Int64(colOwnerID); ok && fc.principals.Contains(ownerID) {
		fc.recordPermission(gid, taskOwnerMask)
		return resolved
	}

	projectID, ok := info.Int64(colProjectID)
	if !ok || projectID <= 0 {
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
		fc.recordPermission(gid, taskProjectMemberMask)
	}
	return resolved
}

func (h *taskHandler) FetchInfos(ctx context.Context, fc *fetchContext, gids []GID) (map[GID]Row, error) {
	return fetchRowsByID(ctx, fc, EntityTasksAuthz, gids)
}
