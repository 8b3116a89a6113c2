package authz

import "context"

// outcome is the result of one handler invocation for one GID.
type outcome int

const (
	// pending means the handler registered dependencies or fetch requests
	// and must be re-run once they are satisfied.
	pending outcome = iota

	// resolved means the handler recorded a mask for the GID.
	resolved
)

// permissionHandler is the per-entity-kind resolution rule.
//
// Process is called with whatever raw info is available (nil if none). A
// handler that cannot decide yet registers what it needs on the context -
// an info fetch, an ACL fetch, or another GID's resolved mask - and returns
// pending. On success it records the mask exactly once and returns resolved.
//
// Handlers must be idempotent: re-running one with the same inputs before
// resolution may re-register needs (registration is set-based) but must not
// enqueue fetches for data the context already holds.
//
// FetchInfos loads the raw authorization rows for a batch of GIDs in one
// grouped query. A handler may short-circuit during the fetch by recording
// masks for rows it can already classify (ownership, typically); such GIDs
// still receive their row so a later Process call stays cheap.
type permissionHandler interface {
	Process(fc *fetchContext, gid GID, info Row) outcome
	FetchInfos(ctx context.Context, fc *fetchContext, gids []GID) (map[GID]Row, error)
}

// noInfoFetch is embedded by handlers that never need raw rows.
type noInfoFetch struct{}

func (noInfoFetch) FetchInfos(ctx context.Context, fc *fetchContext, gids []GID) (map[GID]Row, error) {
	return map[GID]Row{}, nil
}

// newHandlerTable builds the immutable kind-to-handler table. Kinds not in
// the table fall back to the resolver's configured fallback behavior.
func newHandlerTable() map[EntityKind]permissionHandler {
	contact := &contactHandler{}
	contactOwned := &contactOwnedHandler{}
	project := &projectHandler{}
	projectOwned := &projectOwnedHandler{}
	document := &documentHandler{}
	task := &taskHandler{}
	public := &publicAlwaysHandler{}

	return map[EntityKind]permissionHandler{
		KindPersons:   contact,
		KindTeams:     contact,
		KindCompanies: contact,

		KindAddresses: contactOwned,
		KindPhones:    contactOwned,
		KindEMails:    contactOwned,

		KindProjects:    project,
		KindAttachments: projectOwned,

		KindDocuments: document,
		KindFolders:   document,
		KindNotes:     document,

		KindTasks: task,

		KindACLEntries:      public,
		KindTeamMemberships: public,
	}
}

// Fixed masks per entity kind. These encode the groupware business rules;
// see the handler files for where each applies.
const (
	// contactOwnerMask is granted to a contact's owner and to public,
	// writable contacts: read/write plus business, private and mobile
	// field visibility.
	contactOwnerMask Permissions = "Mbprw"

	// contactPublicReadOnlyMask applies to public contacts flagged
	// read-only: readable with business and mobile fields, private
	// fields hidden.
	contactPublicReadOnlyMask Permissions = "Mbr"

	// projectOwnerMask is the full project mask. Manage (m) implies
	// every other bit.
	projectOwnerMask Permissions = "adilmrw"

	// documentOwnerMask applies to a document's owner. The delete bit is
	// not included; it is inherited from the parent folder.
	documentOwnerMask Permissions = "rw"

	// documentPublicProjectMask applies to unprotected documents inside a
	// project, before the project ceiling is applied.
	documentPublicProjectMask Permissions = "rw"

	// documentPublicLinkedMask applies to unprotected documents attached
	// to a contact or appointment rather than a project.
	documentPublicLinkedMask Permissions = "r"

	// taskOwnerMask applies to a task's creator and assigned owner.
	taskOwnerMask Permissions = "adlrw"

	// taskProjectMemberMask applies to tasks reached through project
	// membership only.
	taskProjectMemberMask Permissions = "lr"
)

// expandCompoundMask applies the implications shared by all handlers:
// write implies read.
func expandCompoundMask(p Permissions) Permissions {
	if p.Contains('w') {
		p = p.Union("r")
	}
	return p
}

// expandProjectMask applies project-specific implications on top of the
// shared ones: manage implies everything.
func expandProjectMask(p Permissions) Permissions {
	if p.Contains('m') {
		return projectOwnerMask
	}
	return expandCompoundMask(p)
}
