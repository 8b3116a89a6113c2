package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStore answers BulkFetch from canned rows per entity and counts calls.
type stubStore struct {
	rows  map[string][]Row
	calls map[string]int
}

func newStubStore() *stubStore {
	return &stubStore{rows: make(map[string][]Row), calls: make(map[string]int)}
}

func (s *stubStore) BulkFetch(ctx context.Context, entity string, spec FetchSpec) ([]Row, error) {
	s.calls[entity]++
	return s.rows[entity], nil
}

func newTestContext(store Store, principals ...int64) *fetchContext {
	r := NewResolver(store)
	return newFetchContext(r, NewPrincipalSet(principals))
}

func TestRecordPermissionFirstWriteWins(t *testing.T) {
	fc := newTestContext(newStubStore())
	gid := GID{Kind: KindTasks, ID: 1}

	fc.recordPermission(gid, "r")
	fc.recordPermission(gid, "rw")

	mask, ok := fc.permissionsFor(gid)
	require.True(t, ok)
	assert.Equal(t, Permissions("r"), mask)
}

func TestRegisterDependencySkipsResolved(t *testing.T) {
	fc := newTestContext(newStubStore())
	dependent := GID{Kind: KindDocuments, ID: 1}
	required := GID{Kind: KindProjects, ID: 2}

	fc.recordPermission(required, "r")
	fc.registerDependency(dependent, required)
	assert.Empty(t, fc.deps, "already resolved GIDs are not re-queued")

	other := GID{Kind: KindProjects, ID: 3}
	fc.registerDependency(dependent, other)
	assert.Contains(t, fc.deps, other)
}

func TestACLFetchRequestsSkipCached(t *testing.T) {
	fc := newTestContext(newStubStore())
	gid := GID{Kind: KindDocuments, ID: 1}

	fc.aclMask[gid] = "r"
	fc.requestACLFetch(gid)
	fc.considerACLFetch(gid)

	assert.Empty(t, fc.requiredACL)
	assert.Empty(t, fc.optionalACL)
}

func TestInfoFetchSkipsCached(t *testing.T) {
	fc := newTestContext(newStubStore())
	h := &taskHandler{}
	gid := GID{Kind: KindTasks, ID: 1}

	fc.objectInfo[gid] = Row{"owner_id": int64(1)}
	fc.requestInfoFetch(h, gid)
	assert.Empty(t, fc.infoFetch)

	fresh := GID{Kind: KindTasks, ID: 2}
	fc.requestInfoFetch(h, fresh)
	assert.Contains(t, fc.infoFetch[h], fresh)
}

func TestBulkFetchACLsUnionsPerKey(t *testing.T) {
	store := newStubStore()
	store.rows[EntityACLEntries] = []Row{
		{"object_id": int64(10), "auth_id": int64(1), "permissions": "r"},
		{"object_id": int64(10), "auth_id": int64(2), "permissions": "w"},
	}

	fc := newTestContext(store, 1, 2)
	granted := GID{Kind: KindDocuments, ID: 10}
	empty := GID{Kind: KindDocuments, ID: 11}
	fc.requiredACL[granted] = struct{}{}
	fc.requiredACL[empty] = struct{}{}

	require.NoError(t, fc.bulkFetchACLs(context.Background()))

	mask, ok := fc.aclMaskFor(granted)
	require.True(t, ok)
	assert.Equal(t, Permissions("rw"), mask, "entries for different principals union")

	// Every queued GID lands in both caches, matched or not.
	mask, ok = fc.aclMaskFor(empty)
	require.True(t, ok)
	assert.True(t, mask.IsEmpty())
	_, known := fc.aclPresent(empty)
	assert.True(t, known)
}

func TestBulkFetchACLsPresenceWithoutGrant(t *testing.T) {
	store := newStubStore()
	// No entries name the actor, but the presence probe finds rows: the
	// object has an ACL that excludes this principal set.
	store.rows[EntityACLPresence] = []Row{{"object_id": int64(10)}}

	fc := newTestContext(store, 1)
	gid := GID{Kind: KindDocuments, ID: 10}
	fc.requiredACL[gid] = struct{}{}

	require.NoError(t, fc.bulkFetchACLs(context.Background()))

	present, known := fc.aclPresent(gid)
	require.True(t, known)
	assert.True(t, present)
	mask, _ := fc.aclMaskFor(gid)
	assert.True(t, mask.IsEmpty())
}

func TestBulkFetchACLsSkipsPresenceWhenAllMatched(t *testing.T) {
	store := newStubStore()
	store.rows[EntityACLEntries] = []Row{
		{"object_id": int64(10), "auth_id": int64(1), "permissions": "r"},
	}

	fc := newTestContext(store, 1)
	fc.requiredACL[GID{Kind: KindDocuments, ID: 10}] = struct{}{}

	require.NoError(t, fc.bulkFetchACLs(context.Background()))
	assert.Zero(t, store.calls[EntityACLPresence],
		"a matched entry proves presence without the extra query")
}

func TestHandlerForCachesFallbackDecision(t *testing.T) {
	fc := newTestContext(newStubStore())

	h := fc.handlerFor(KindAppointments)
	require.NotNil(t, h)
	assert.Same(t, h, fc.handlerFor(KindAppointments))

	assert.NotNil(t, fc.handlerFor(KindTasks))
}

func TestHandlerForFallbackDeny(t *testing.T) {
	r := NewResolver(newStubStore(), WithFallbackPolicy(FallbackDeny))
	fc := newFetchContext(r, NewPrincipalSet([]int64{1}))

	assert.Nil(t, fc.handlerFor(KindAppointments))
}

// loopHandler counts Process invocations and never resolves, forcing the
// run loop to exhaust its budget.
type loopHandler struct {
	noInfoFetch
	processed int
}

func (h *loopHandler) Process(fc *fetchContext, gid GID, info Row) outcome {
	h.processed++
	// Alternate a phantom dependency so the scan pass always looks live.
	fc.registerDependency(gid, GID{Kind: gid.Kind, ID: gid.ID%2 + 100})
	return pending
}

func TestRunBudgetBoundsHandlerInvocations(t *testing.T) {
	h := &loopHandler{}
	r := NewResolver(newStubStore())
	r.handlers = map[EntityKind]permissionHandler{KindTasks: h}

	fc := newFetchContext(r, NewPrincipalSet([]int64{1}))
	fc.run(context.Background(), []GID{{Kind: KindTasks, ID: 1}, {Kind: KindTasks, ID: 2}})

	assert.Empty(t, fc.resolved)
	// Four GIDs in play (the two requested plus the two phantom deps); the
	// budgets cap total Process calls regardless of how often the handler
	// re-registers needs.
	assert.LessOrEqual(t, h.processed, 4*maxFetchIterations*maxScanIterations)
	assert.Greater(t, h.processed, 0)
}

func TestRunResolvesWithoutFetchesForMaterializedObjects(t *testing.T) {
	store := newStubStore()
	src := materializedMap{
		{Kind: KindTasks, ID: 1}: {"creator_id": int64(7)},
	}
	r := NewResolver(store, WithObjectSource(src))
	fc := newFetchContext(r, NewPrincipalSet([]int64{7}))

	fc.run(context.Background(), []GID{{Kind: KindTasks, ID: 1}})

	mask, ok := fc.permissionsFor(GID{Kind: KindTasks, ID: 1})
	require.True(t, ok)
	assert.Equal(t, taskOwnerMask, mask)
	assert.Empty(t, store.calls, "no store round trip for materialized objects")
}

type materializedMap map[GID]Row

func (m materializedMap) MaterializedObject(gid GID) (Row, bool) {
	row, ok := m[gid]
	return row, ok
}
