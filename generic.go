package authz

// genericHandler is the fallback for entity kinds without a handler of
// their own. It resolves immediately to the full mask, mirroring the
// historical fail-open behavior of the groupware server.
//
// This is a configuration default, not a security recommendation: deploys
// that prefer to deny unmodeled kinds outright set WithFallbackPolicy
// (FallbackDeny), which bypasses this handler entirely.
type genericHandler struct {
	noInfoFetch
}

func (h *genericHandler) Process(fc *fetchContext, gid GID, info Row) outcome {
	fc.recordPermission(gid, AllPermissions)
	return resolved
}

// publicAlwaysHandler covers object kinds that are not access-controlled
// per row, such as ACL entries and team-membership rows. Access control for
// these lives on the objects they describe, never on the rows themselves.
type publicAlwaysHandler struct {
	noInfoFetch
}

func (h *publicAlwaysHandler) Process(fc *fetchContext, gid GID, info Row) outcome {
	fc.recordPermission(gid, AllPermissions)
	return resolved
}
