package authz

import "context"

// Store entity name for the document-family authz fetch.
const EntityDocumentsAuthz = "documents_authz"

// Columns expected on document rows.
const (
	colParentID = "parent_id"
	colEventID  = "event_id"
)

// documentHandler resolves documents, folders and notes. This is the most
// entangled rule set in the engine: a document answers to its parent folder
// (read gate, delete inheritance), its own ACL, its owner, and an attached
// project, contact or appointment. The checks run in a fixed order:
//
//  1. cached rejections: a project or linked object already resolved
//     negative kills the document without further fetches
//  2. parent folder: no read on the parent means no access at all
//  3. explicit ACL: present but naming nobody relevant means denial for
//     everyone but the owner
//  4. computed mask: owner mask, or the public default for the attachment
//     shape (project / contact / appointment / fully private), or the ACL
//     grant
//
// The delete bit is inherited from the parent folder, and the final mask is
// intersected with the attached project's mask: a document never exceeds its
// project's ceiling.
//
// A single call may register several dependencies and fetch requests before
// returning pending once; the loop re-runs it when they fill in.
type documentHandler struct{}

func (h *documentHandler) Process(fc *fetchContext, gid GID, info Row) outcome {
	if info == nil {
		fc.requestInfoFetch(h, gid)
		fc.considerACLFetch(gid)
		return pending
	}

	ownerID, _ := info.Int64(colOwnerID)
	isOwner := ownerID > 0 && fc.principals.Contains(ownerID)

	project, hasProject := documentRef(info, colProjectID, KindProjects)
	link, hasLink := documentLink(info)
	parent, hasParent := documentRef(info, colParentID, KindFolders)

	// Cached direct rejections: cost nothing, settle most denied batches
	// before any further round trip.
	if hasProject {
		if pm, ok := fc.permissionsFor(project); ok && pm.IsEmpty() {
			fc.recordPermission(gid, NoPermissions)
			return resolved
		}
	}
	if hasLink && !isOwner {
		if lm, ok := fc.permissionsFor(link); ok && !lm.Contains('r') {
			fc.recordPermission(gid, NoPermissions)
			return resolved
		}
	}

	blocked := false

	var parentMask Permissions
	if hasParent {
		pm, ok := fc.permissionsFor(parent)
		if !ok {
			fc.registerDependency(gid, parent)
			blocked = true
		} else if !pm.Contains('r') {
			fc.recordPermission(gid, NoPermissions)
			return resolved
		} else {
			parentMask = pm
		}
	}

	aclPresent, aclKnown := fc.aclPresent(gid)
	if !aclKnown && !isOwner {
		fc.requestACLFetch(gid)
		blocked = true
	}
	if aclKnown && aclPresent && !isOwner {
		if m, _ := fc.aclMaskFor(gid); m.IsEmpty() {
			// ACL configured but the actor is not named: hard denial,
			// the public defaults below do not apply.
			fc.recordPermission(gid, NoPermissions)
			return resolved
		}
	}

	var projectMask Permissions
	if hasProject {
		pm, ok := fc.permissionsFor(project)
		if !ok {
			fc.registerDependency(gid, project)
			blocked = true
		} else {
			projectMask = pm
		}
	}

	// The public-linked default needs the linked object to be readable.
	needLink := hasLink && !isOwner && aclKnown && !aclPresent && !hasProject
	if needLink {
		if _, ok := fc.permissionsFor(link); !ok {
			fc.registerDependency(gid, link)
			blocked = true
		}
	}

	if blocked {
		return pending
	}

	var mask Permissions
	switch {
	case isOwner:
		mask = documentOwnerMask
	case !aclPresent:
		switch {
		case hasProject:
			mask = documentPublicProjectMask
		case hasLink:
			// Link readability was established above: a negative link
			// is rejected early and an unknown one blocks.
			mask = documentPublicLinkedMask
		default:
			mask = NoPermissions // fully private
		}
	default:
		aclMask, _ := fc.aclMaskFor(gid)
		mask = expandCompoundMask(aclMask)
	}

	if hasParent && parentMask.Contains('d') {
		mask = mask.Union("d")
	}
	if hasProject {
		mask = mask.Intersect(projectMask)
	}

	fc.recordPermission(gid, mask)
	return resolved
}

func (h *documentHandler) FetchInfos(ctx context.Context, fc *fetchContext, gids []GID) (map[GID]Row, error) {
	return fetchRowsByID(ctx, fc, EntityDocumentsAuthz, gids)
}

// documentRef reads an optional reference column into a GID.
func documentRef(info Row, col string, kind EntityKind) (GID, bool) {
	id, ok := info.Int64(col)
	if !ok || id <= 0 {
		return GID{}, false
	}
	return GID{Kind: kind, ID: id}, true
}

// documentLink returns the contact or appointment a document is attached
// to, if any. A contact link carries its kind alongside since persons,
// teams and companies share the key namespace.
func documentLink(info Row) (GID, bool) {
	if id, ok := info.Int64(colCompanyID); ok && id > 0 {
		kind := KindPersons
		if s, ok := info.Str(colCompanyKind); ok && s != "" {
			kind = EntityKind(s)
		}
		return GID{Kind: kind, ID: id}, true
	}
	if id, ok := info.Int64(colEventID); ok && id > 0 {
		return GID{Kind: KindAppointments, ID: id}, true
	}
	return GID{}, false
}
