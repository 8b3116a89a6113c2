package authz_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authz "github.com/opengroupware/ogo-authz"
)

const (
	dDoc    int64 = 9120
	dFolder int64 = 9100
)

func TestDocumentOwnerMask(t *testing.T) {
	store := newFakeStore()
	store.documents[dDoc] = authz.Row{"owner_id": uOwner}

	mask, ok := resolveOne(t, store, authz.GID{Kind: authz.KindDocuments, ID: dDoc}, uOwner)
	require.True(t, ok)
	assert.Equal(t, authz.Permissions("rw"), mask)
}

func TestDocumentFullyPrivateWithoutAttachments(t *testing.T) {
	store := newFakeStore()
	store.documents[dDoc] = authz.Row{"owner_id": uOwner}

	mask, ok := resolveOne(t, store, authz.GID{Kind: authz.KindDocuments, ID: dDoc}, uOther)
	require.True(t, ok)
	assert.True(t, mask.IsEmpty())
}

func TestDocumentProjectCeiling(t *testing.T) {
	store := newFakeStore()
	store.documents[dDoc] = authz.Row{"owner_id": uOwner, "project_id": pProject}
	store.projects[pProject] = authz.Row{"owner_id": uOwner}
	store.assignments = append(store.assignments, assignmentFixture{
		projectID: pProject, principalID: uOther, permissions: "r", hasAccess: true,
	})
	// The document's own ACL would grant read/write...
	store.acl = append(store.acl, aclFixture{objectID: dDoc, principalID: uOther, permissions: "rw"})

	// ...but the project mask is read-only, and the document can never
	// exceed its project's ceiling.
	mask, ok := resolveOne(t, store, authz.GID{Kind: authz.KindDocuments, ID: dDoc}, uOther)
	require.True(t, ok)
	assert.Equal(t, authz.Permissions("r"), mask)
}

func TestDocumentPublicInProject(t *testing.T) {
	store := newFakeStore()
	store.documents[dDoc] = authz.Row{"owner_id": uOwner, "project_id": pProject}
	store.projects[pProject] = authz.Row{"owner_id": uOwner}
	store.assignments = append(store.assignments, assignmentFixture{
		projectID: pProject, principalID: uOther, permissions: "rw", hasAccess: true,
	})

	// No document ACL at all: the public-with-project default applies,
	// capped by the project mask.
	mask, ok := resolveOne(t, store, authz.GID{Kind: authz.KindDocuments, ID: dDoc}, uOther)
	require.True(t, ok)
	assert.Equal(t, authz.Permissions("rw"), mask)
}

func TestDocumentDeniedWithoutProjectAccess(t *testing.T) {
	store := newFakeStore()
	store.documents[dDoc] = authz.Row{"owner_id": uOwner, "project_id": pProject}
	store.projects[pProject] = authz.Row{"owner_id": uOwner}

	mask, ok := resolveOne(t, store, authz.GID{Kind: authz.KindDocuments, ID: dDoc}, uOther)
	require.True(t, ok)
	assert.True(t, mask.IsEmpty())
}

func TestDocumentACLExcludesActor(t *testing.T) {
	store := newFakeStore()
	store.documents[dDoc] = authz.Row{"owner_id": uOwner}
	store.acl = append(store.acl, aclFixture{objectID: dDoc, principalID: uTeam, permissions: "rw"})

	// An ACL exists but names nobody in the principal set: hard denial,
	// no public fallback.
	mask, ok := resolveOne(t, store, authz.GID{Kind: authz.KindDocuments, ID: dDoc}, uOther)
	require.True(t, ok)
	assert.True(t, mask.IsEmpty())
}

func TestDocumentACLExclusionDoesNotBindOwner(t *testing.T) {
	store := newFakeStore()
	store.documents[dDoc] = authz.Row{"owner_id": uOwner}
	store.acl = append(store.acl, aclFixture{objectID: dDoc, principalID: uTeam, permissions: "r"})

	mask, ok := resolveOne(t, store, authz.GID{Kind: authz.KindDocuments, ID: dDoc}, uOwner)
	require.True(t, ok)
	assert.Equal(t, authz.Permissions("rw"), mask)
}

func TestDocumentLinkedToReadableContact(t *testing.T) {
	store := newFakeStore()
	store.documents[dDoc] = authz.Row{"owner_id": uOwner, "company_id": cPublic, "company_kind": "persons"}
	store.contacts[cPublic] = authz.Row{"owner_id": uOwner, "is_private": false}

	mask, ok := resolveOne(t, store, authz.GID{Kind: authz.KindDocuments, ID: dDoc}, uOther)
	require.True(t, ok)
	assert.Equal(t, authz.Permissions("r"), mask)
}

func TestDocumentLinkedToHiddenContact(t *testing.T) {
	store := newFakeStore()
	store.documents[dDoc] = authz.Row{"owner_id": uOwner, "company_id": cPrivate, "company_kind": "persons"}
	store.contacts[cPrivate] = authz.Row{"owner_id": uOwner, "is_private": true}

	mask, ok := resolveOne(t, store, authz.GID{Kind: authz.KindDocuments, ID: dDoc}, uOther)
	require.True(t, ok)
	assert.True(t, mask.IsEmpty())
}

func TestDocumentParentFolderReadGate(t *testing.T) {
	store := newFakeStore()
	store.documents[dFolder] = authz.Row{"owner_id": uOwner}
	store.documents[dDoc] = authz.Row{"owner_id": uOwner, "parent_id": dFolder}
	// The document's ACL would grant read, but the parent folder is
	// invisible to the actor.
	store.acl = append(store.acl, aclFixture{objectID: dDoc, principalID: uOther, permissions: "r"})

	mask, ok := resolveOne(t, store, authz.GID{Kind: authz.KindDocuments, ID: dDoc}, uOther)
	require.True(t, ok)
	assert.True(t, mask.IsEmpty())
}

func TestDocumentInheritsDeleteFromParent(t *testing.T) {
	store := newFakeStore()
	store.documents[dFolder] = authz.Row{"owner_id": uOwner}
	store.documents[dDoc] = authz.Row{"owner_id": uOwner, "parent_id": dFolder}
	store.acl = append(store.acl,
		aclFixture{objectID: dFolder, principalID: uOther, permissions: "rd"},
		aclFixture{objectID: dDoc, principalID: uOther, permissions: "w"},
	)

	mask, ok := resolveOne(t, store, authz.GID{Kind: authz.KindDocuments, ID: dDoc}, uOther)
	require.True(t, ok)
	assert.Equal(t, authz.Permissions("drw"), mask, "w implies r, d inherited from parent")
}

func TestDocumentFolderCycleTerminates(t *testing.T) {
	store := newFakeStore()
	// Two folders claiming each other as parent: unresolvable, must
	// terminate within the iteration budget and stay absent from the
	// result.
	store.documents[dFolder] = authz.Row{"owner_id": uOwner, "parent_id": dDoc}
	store.documents[dDoc] = authz.Row{"owner_id": uOwner, "parent_id": dFolder}

	a := authz.GID{Kind: authz.KindFolders, ID: dFolder}
	b := authz.GID{Kind: authz.KindFolders, ID: dDoc}

	resolver := authz.NewResolver(store)
	result, err := resolver.Resolve(context.Background(), []authz.GID{a, b}, []int64{uOther})
	require.NoError(t, err)

	_, ok := result.PermissionsFor(a)
	assert.False(t, ok)
	_, ok = result.PermissionsFor(b)
	assert.False(t, ok)
}
