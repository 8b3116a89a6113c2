package authz

import (
	"context"
	"sort"
)

// Iteration budgets for the fixed-point loop. The outer bound caps bulk
// fetch round trips to the store, the inner bound caps free in-memory
// re-scans between fetches. Both are safety valves against dependency
// cycles: on exhaustion the engine logs and returns a partial result.
const (
	maxFetchIterations = 10
	maxScanIterations  = 8
)

// fetchContext is the per-request orchestrator. It owns the result map, the
// raw-row and ACL caches, and the dependency and fetch queues the handlers
// register into. A fetchContext lives for exactly one Resolve call and is
// never shared: every cache in here is only valid for one principal set.
type fetchContext struct {
	r          *Resolver
	principals PrincipalSet

	// resolved is the output map. Entries are write-once: a mask recorded
	// for a GID is never revised within the run.
	resolved map[GID]Permissions

	// objectInfo caches raw fetched rows, at most one fetch per GID per
	// run. A nil entry marks a GID whose fetch returned no row.
	objectInfo map[GID]Row

	// aclMask and aclPresence cache the bulk ACL fetcher's results.
	// Presence distinguishes "no ACL configured" (public/default rules
	// apply) from "ACL exists but excludes the actor" (denial).
	aclMask     map[GID]Permissions
	aclPresence map[GID]bool

	// deps collects GIDs whose mask some pending GID needs; drained into
	// the pending set after every scan pass.
	deps map[GID]struct{}

	// requiredACL and optionalACL queue ACL fetches. Optional entries are
	// opportunistic: fetched only when a required fetch pays for the
	// round trip anyway.
	requiredACL map[GID]struct{}
	optionalACL map[GID]struct{}

	// infoFetch queues raw-row fetches, grouped by handler rather than
	// entity kind so one handler can batch several kinds in one query.
	infoFetch map[permissionHandler]map[GID]struct{}

	// handlerCache memoizes kind lookups including the fallback decision,
	// so unknown kinds are logged once and not per pass.
	handlerCache map[EntityKind]permissionHandler
}

func newFetchContext(r *Resolver, principals PrincipalSet) *fetchContext {
	return &fetchContext{
		r:            r,
		principals:   principals,
		resolved:     make(map[GID]Permissions),
		objectInfo:   make(map[GID]Row),
		aclMask:      make(map[GID]Permissions),
		aclPresence:  make(map[GID]bool),
		deps:         make(map[GID]struct{}),
		requiredACL:  make(map[GID]struct{}),
		optionalACL:  make(map[GID]struct{}),
		infoFetch:    make(map[permissionHandler]map[GID]struct{}),
		handlerCache: make(map[EntityKind]permissionHandler),
	}
}

// recordPermission writes the resolved mask for a GID. First write wins;
// the fixed point is monotonic and handlers never retract a decision.
func (fc *fetchContext) recordPermission(gid GID, mask Permissions) {
	if _, ok := fc.resolved[gid]; ok {
		return
	}
	fc.resolved[gid] = mask
}

// permissionsFor returns the resolved mask for a GID, if any.
func (fc *fetchContext) permissionsFor(gid GID) (Permissions, bool) {
	p, ok := fc.resolved[gid]
	return p, ok
}

// registerDependency notes that gid cannot resolve until required has a
// mask. The required GID joins the pending set on the next pass.
func (fc *fetchContext) registerDependency(gid, required GID) {
	if _, ok := fc.resolved[required]; ok {
		return
	}
	fc.deps[required] = struct{}{}
}

// requestInfoFetch queues gid for the handler's next grouped raw-row fetch.
// GIDs whose row is already cached are not re-queued.
func (fc *fetchContext) requestInfoFetch(h permissionHandler, gid GID) {
	if _, ok := fc.objectInfo[gid]; ok {
		return
	}
	set, ok := fc.infoFetch[h]
	if !ok {
		set = make(map[GID]struct{})
		fc.infoFetch[h] = set
	}
	set[gid] = struct{}{}
}

// requestACLFetch queues a mandatory ACL fetch for gid.
func (fc *fetchContext) requestACLFetch(gid GID) {
	if _, ok := fc.aclMask[gid]; ok {
		return
	}
	fc.requiredACL[gid] = struct{}{}
}

// considerACLFetch queues an opportunistic ACL fetch for gid: performed only
// if a mandatory fetch happens anyway, as a batching cost saver.
func (fc *fetchContext) considerACLFetch(gid GID) {
	if _, ok := fc.aclMask[gid]; ok {
		return
	}
	fc.optionalACL[gid] = struct{}{}
}

// aclMaskFor returns the unioned ACL mask for gid if it has been fetched.
func (fc *fetchContext) aclMaskFor(gid GID) (Permissions, bool) {
	p, ok := fc.aclMask[gid]
	return p, ok
}

// aclPresent reports whether any ACL rows exist for gid. The second return
// is false until the ACL has been fetched.
func (fc *fetchContext) aclPresent(gid GID) (bool, bool) {
	p, ok := fc.aclPresence[gid]
	return p, ok
}

// handlerFor resolves the handler for a kind, applying the fallback policy
// for unmodeled kinds. A nil return means resolve to NoPermissions.
func (fc *fetchContext) handlerFor(kind EntityKind) permissionHandler {
	if h, ok := fc.handlerCache[kind]; ok {
		return h
	}
	h, ok := fc.r.handlers[kind]
	if !ok {
		// Configuration gap, not a failure. The fallback policy decides
		// between the permissive generic handler and a hard denial.
		fc.r.log.V(1).Info("no permission handler for kind, using fallback",
			"kind", kind, "policy", fc.r.fallback)
		if fc.r.fallback == FallbackAllow {
			h = fc.r.generic
		} else {
			h = nil
		}
	}
	fc.handlerCache[kind] = h
	return h
}

// infoFor returns the best available raw info for gid: the cached fetched
// row, or a materialized object from the caller normalized into row form.
// The bool reports whether a fetch already ran and found nothing.
func (fc *fetchContext) infoFor(gid GID) (Row, bool) {
	if row, ok := fc.objectInfo[gid]; ok {
		return row, row == nil
	}
	if fc.r.objects != nil {
		if row, ok := fc.r.objects.MaterializedObject(gid); ok && row != nil {
			fc.objectInfo[gid] = row
			return row, false
		}
	}
	return nil, false
}

// run drives the fixed-point loop over the requested GIDs. See the package
// documentation for the overall shape: bounded inner scan passes exploit
// cheap in-memory re-evaluation, bounded outer iterations pay for grouped
// bulk fetches, and on budget exhaustion the partial result stands.
func (fc *fetchContext) run(ctx context.Context, gids []GID) {
	pending := make(map[GID]struct{}, len(gids))
	for _, gid := range gids {
		if !gid.IsValid() {
			fc.r.log.Error(nil, "skipping malformed gid", "gid", gid.String())
			continue
		}
		pending[gid] = struct{}{}
	}

	for fetchIter := 0; fetchIter < maxFetchIterations; fetchIter++ {
		for scanIter := 0; scanIter < maxScanIterations; scanIter++ {
			resolvedThisPass := make(map[GID]struct{})

			for gid := range pending {
				if _, ok := fc.resolved[gid]; ok {
					resolvedThisPass[gid] = struct{}{}
					continue
				}
				h := fc.handlerFor(gid.Kind)
				if h == nil {
					fc.recordPermission(gid, NoPermissions)
					resolvedThisPass[gid] = struct{}{}
					continue
				}
				info, vanished := fc.infoFor(gid)
				if vanished {
					// The row fetch came back empty: the object is gone
					// or invisible. Deny rather than re-request.
					fc.recordPermission(gid, NoPermissions)
					resolvedThisPass[gid] = struct{}{}
					continue
				}
				if h.Process(fc, gid, info) == resolved {
					resolvedThisPass[gid] = struct{}{}
				}
			}

			newlyRequested := fc.deps
			fc.deps = make(map[GID]struct{})
			for gid := range newlyRequested {
				pending[gid] = struct{}{}
			}
			for gid := range resolvedThisPass {
				delete(pending, gid)
			}
			if len(resolvedThisPass) == 0 && len(newlyRequested) == 0 {
				break
			}
		}

		if len(pending) == 0 {
			break
		}
		if ctx.Err() != nil {
			fc.r.log.Error(ctx.Err(), "resolution canceled", "pending", len(pending))
			break
		}

		// Optional ACL fetches piggyback on a mandatory round trip; if no
		// mandatory fetch is due they are dropped, not paid for.
		if len(fc.requiredACL) > 0 {
			for gid := range fc.optionalACL {
				fc.requiredACL[gid] = struct{}{}
			}
		}
		fc.optionalACL = make(map[GID]struct{})

		if len(fc.requiredACL) == 0 && len(fc.infoFetch) == 0 {
			fc.r.log.Error(nil, "permission resolution stuck, giving up",
				"pending", len(pending), "iteration", fetchIter)
			break
		}

		if len(fc.requiredACL) > 0 {
			if err := fc.bulkFetchACLs(ctx); err != nil {
				// Contained: this iteration's ACL processing is lost but
				// independent GIDs keep going, and the queue is retried
				// on the next outer iteration.
				fc.r.log.Error(err, "bulk acl fetch failed", "count", len(fc.requiredACL))
			} else {
				fc.requiredACL = make(map[GID]struct{})
			}
		}

		fc.fetchRequestedInfos(ctx)
	}
}

// fetchRequestedInfos drains the per-handler info queues through grouped
// FetchInfos calls. GIDs whose fetch yields no row are cached as vanished so
// they resolve to NoPermissions instead of re-requesting forever.
func (fc *fetchContext) fetchRequestedInfos(ctx context.Context) {
	for h, set := range fc.infoFetch {
		gids := make([]GID, 0, len(set))
		for gid := range set {
			gids = append(gids, gid)
		}
		sort.Slice(gids, func(i, j int) bool { return gids[i].ID < gids[j].ID })

		rows, err := h.FetchInfos(ctx, fc, gids)
		if err != nil {
			fc.r.log.Error(err, "bulk info fetch failed", "count", len(gids))
			continue
		}
		if rows == nil {
			fc.r.log.Error(nil, "bulk info fetch returned no result map", "count", len(gids))
			delete(fc.infoFetch, h)
			continue
		}
		for _, gid := range gids {
			if row, ok := rows[gid]; ok {
				if _, cached := fc.objectInfo[gid]; !cached {
					fc.objectInfo[gid] = row
				}
			} else {
				fc.objectInfo[gid] = nil
			}
		}
		delete(fc.infoFetch, h)
	}
}
