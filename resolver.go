package authz

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
)

// FallbackPolicy decides what happens to entity kinds without a registered
// permission handler.
type FallbackPolicy int

const (
	// FallbackAllow resolves unmodeled kinds to the full mask. This is
	// the historical behavior and the default; see genericHandler.
	FallbackAllow FallbackPolicy = iota

	// FallbackDeny resolves unmodeled kinds to the empty mask.
	FallbackDeny
)

// String returns "allow" or "deny".
func (p FallbackPolicy) String() string {
	if p == FallbackDeny {
		return "deny"
	}
	return "allow"
}

// Resolver resolves permission masks for batches of GIDs against a Store.
//
// Resolvers are cheap and safe for concurrent use: all mutable state lives
// in a per-call fetch context, never on the Resolver itself. The Store is
// the only shared collaborator and is only ever read from.
type Resolver struct {
	store    Store
	objects  ObjectSource
	log      logr.Logger
	decision Decision
	fallback FallbackPolicy
	handlers map[EntityKind]permissionHandler
	generic  *genericHandler
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger. The default logs to stderr via stdr.
func WithLogger(l logr.Logger) Option {
	return func(r *Resolver) {
		r.log = l
	}
}

// WithObjectSource lets the resolver pick up objects the caller already has
// in memory instead of fetching their rows.
func WithObjectSource(src ObjectSource) Option {
	return func(r *Resolver) {
		r.objects = src
	}
}

// WithDecision sets a decision override that bypasses the store entirely.
// DecisionAllow resolves every GID to the full mask, DecisionDeny to the
// empty mask. Use for admin tools and tests; the bypass is explicit at
// construction time on purpose.
func WithDecision(d Decision) Option {
	return func(r *Resolver) {
		r.decision = d
	}
}

// WithFallbackPolicy sets the behavior for entity kinds without a handler.
func WithFallbackPolicy(p FallbackPolicy) Option {
	return func(r *Resolver) {
		r.fallback = p
	}
}

// NewResolver creates a Resolver over the given store.
func NewResolver(store Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:    store,
		log:      stdr.New(log.New(os.Stderr, "", log.LstdFlags)).WithName("authz"),
		decision: DecisionUnset,
		handlers: newHandlerTable(),
		generic:  &genericHandler{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result maps each resolved GID to its permission mask. GIDs absent from
// the map could not be resolved (dependency cycle, failing fetch, budget
// exhaustion) and must be treated as no-access.
type Result map[GID]Permissions

// PermissionsFor returns the mask resolved for gid. ok is false if the GID
// was not part of the resolution or could not be resolved.
func (r Result) PermissionsFor(gid GID) (Permissions, bool) {
	p, ok := r[gid]
	return p, ok
}

// Allows reports whether gid resolved to a mask covering every requested
// character. Unresolved GIDs allow nothing.
func (r Result) Allows(gid GID, requested Permissions) bool {
	p, ok := r[gid]
	return ok && p.ContainsAll(requested)
}

// Resolve computes permission masks for the given GIDs as seen by the given
// principal set (the acting account plus its team memberships).
//
// The result may be partial: GIDs the engine could not resolve within its
// iteration budget are absent, not an error. Store failures during the run
// are logged and contained per batch; only a nil store or an unusable
// context fail the call itself.
func (r *Resolver) Resolve(ctx context.Context, gids []GID, principalIDs []int64) (Result, error) {
	if d := r.decision; d != DecisionUnset {
		out := make(Result, len(gids))
		for _, gid := range gids {
			if !gid.IsValid() {
				continue
			}
			if d == DecisionAllow {
				out[gid] = AllPermissions
			} else {
				out[gid] = NoPermissions
			}
		}
		return out, nil
	}

	if r.store == nil {
		return nil, ErrNilStore
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fc := newFetchContext(r, NewPrincipalSet(principalIDs))
	fc.run(ctx, gids)
	return Result(fc.resolved), nil
}

// Check resolves a single GID and verifies the requested mask against it.
// A shortfall is reported as *AccessDeniedError carrying the requested,
// available and missing masks; that error is expected control flow for
// denied requests, not a system fault.
func (r *Resolver) Check(ctx context.Context, gid GID, requested Permissions, principalIDs []int64) error {
	res, err := r.Resolve(ctx, []GID{gid}, principalIDs)
	if err != nil {
		return err
	}
	available, _ := res.PermissionsFor(gid)
	if available.ContainsAll(requested) {
		return nil
	}
	return Deny(gid, requested, available)
}

// Must panics if the check fails or errors. Use for internal invariants
// where unauthorized access indicates a bug in the calling code; prefer
// Check for user-facing authorization.
func (r *Resolver) Must(ctx context.Context, gid GID, requested Permissions, principalIDs []int64) {
	if err := r.Check(ctx, gid, requested, principalIDs); err != nil {
		panic(fmt.Sprintf("authz.Must: %v", err))
	}
}
