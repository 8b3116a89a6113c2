package authz

import (
	"context"
	"strings"
)

// Store entity names for the contact-family authz fetches.
const (
	EntityContactsAuthz     = "contacts_authz"
	EntityContactInfosAuthz = "contact_infos_authz"
)

// Columns expected on contact rows.
const (
	colOwnerID          = "owner_id"
	colIsPrivate        = "is_private"
	colIsReadOnly       = "is_readonly"
	colPrimaryContactID = "primary_contact_id"
)

// contactHandler resolves persons, teams and companies.
//
// Rule order is authoritative and deliberately not reordered: owner first,
// then the public/private flag, then the explicit ACL. A read-only flag on a
// public contact limits the public mask; it does not limit what an ACL
// grants on a private one.
type contactHandler struct{}

func (h *contactHandler) Process(fc *fetchContext, gid GID, info Row) outcome {
	if info == nil {
		fc.requestInfoFetch(h, gid)
		fc.considerACLFetch(gid)
		return pending
	}

	if ownerID, ok := info.Int64(colOwnerID); ok && fc.principals.Contains(ownerID) {
		fc.recordPermission(gid, contactOwnerMask)
		return resolved
	}

	if !info.Bool(colIsPrivate) {
		if info.Bool(colIsReadOnly) {
			fc.recordPermission(gid, contactPublicReadOnlyMask)
		} else {
			fc.recordPermission(gid, contactOwnerMask)
		}
		return resolved
	}

	// A private contact that is the acting account itself is always fully
	// visible to that account, ACL or not.
	if fc.principals.Contains(gid.ID) {
		fc.recordPermission(gid, contactOwnerMask)
		return resolved
	}

	aclMask, ok := fc.aclMaskFor(gid)
	if !ok {
		fc.requestACLFetch(gid)
		return pending
	}

	mask := expandCompoundMask(aclMask)
	if pcID, ok := info.Int64(colPrimaryContactID); ok && fc.principals.Contains(pcID) {
		// The account whose primary contact record this is can always
		// read it.
		mask = mask.Union("r")
	}
	fc.recordPermission(gid, mask)
	return resolved
}

// FetchInfos loads contact rows for all three contact kinds in one grouped
// query; the shared key namespace makes the batch unambiguous.
func (h *contactHandler) FetchInfos(ctx context.Context, fc *fetchContext, gids []GID) (map[GID]Row, error) {
	return fetchRowsByID(ctx, fc, EntityContactsAuthz, gids)
}

// Columns expected on contact-owned subobject rows.
const (
	colCompanyID   = "company_id"
	colCompanyKind = "company_kind"
	colTypeCode    = "type"
	colVCardLabel  = "label"
)

// contactOwnedHandler resolves addresses, phone numbers and email
// addresses. Their permission is derived from the owning contact's mask:
// write on the contact carries through as read/write, read as read. Below
// that, a business/private classification of the subobject decides whether
// the contact's field-visibility bits (b, p) expose it read-only.
type contactOwnedHandler struct{}

func (h *contactOwnedHandler) Process(fc *fetchContext, gid GID, info Row) outcome {
	if info == nil {
		fc.requestInfoFetch(h, gid)
		return pending
	}

	ownerID, ok := info.Int64(colCompanyID)
	if !ok {
		fc.recordPermission(gid, NoPermissions)
		return resolved
	}
	ownerKind := KindPersons
	if s, ok := info.Str(colCompanyKind); ok && s != "" {
		ownerKind = EntityKind(s)
	}
	owner := GID{Kind: ownerKind, ID: ownerID}

	ownerMask, ok := fc.permissionsFor(owner)
	if !ok {
		fc.registerDependency(gid, owner)
		return pending
	}

	switch {
	case ownerMask.Contains('w'):
		fc.recordPermission(gid, NewPermissions("rw"))
	case ownerMask.Contains('r'):
		fc.recordPermission(gid, NewPermissions("r"))
	default:
		fc.recordPermission(gid, classifiedSubobjectMask(info, ownerMask))
	}
	return resolved
}

func (h *contactOwnedHandler) FetchInfos(ctx context.Context, fc *fetchContext, gids []GID) (map[GID]Row, error) {
	return fetchRowsByID(ctx, fc, EntityContactInfosAuthz, gids)
}

// classifiedSubobjectMask handles contacts whose mask carries neither r nor
// w but may still expose business or private fields. The subobject is
// classified business vs. private from the legacy internal type code or the
// vCard-style label, whichever the row carries.
func classifiedSubobjectMask(info Row, ownerMask Permissions) Permissions {
	code, hasCode := info.Str(colTypeCode)
	if !hasCode {
		code, _ = info.Str(colVCardLabel)
	}
	switch {
	case isPrivateTypeCode(code):
		if ownerMask.Contains('p') {
			return NewPermissions("r")
		}
	case code != "":
		if ownerMask.Contains('b') {
			return NewPermissions("r")
		}
	}
	return NoPermissions
}

// isPrivateTypeCode classifies a type code or vCard label as private.
// Legacy codes look like "private" or "10_fax_private"; vCard labels carry a
// HOME component ("HOME", "HOME,VOICE").
func isPrivateTypeCode(code string) bool {
	if code == "" {
		return false
	}
	if strings.Contains(strings.ToLower(code), "private") {
		return true
	}
	for _, part := range strings.Split(code, ",") {
		if strings.TrimSpace(part) == "HOME" {
			return true
		}
	}
	return false
}

// fetchRowsByID is the common FetchInfos shape: one grouped query keyed by
// primary key, rows mapped back to their GIDs through the "object_id"
// column and the request batch.
func fetchRowsByID(ctx context.Context, fc *fetchContext, entity string, gids []GID) (map[GID]Row, error) {
	ids := make([]int64, 0, len(gids))
	byID := make(map[int64]GID, len(gids))
	for _, gid := range gids {
		ids = append(ids, gid.ID)
		byID[gid.ID] = gid
	}

	rows, err := fc.r.store.BulkFetch(ctx, entity, FetchSpec{
		IDs:          ids,
		PrincipalIDs: fc.principals.IDs(),
	})
	if err != nil {
		return nil, err
	}

	out := make(map[GID]Row, len(rows))
	for _, row := range rows {
		id, ok := row.Int64(colObjectID)
		if !ok {
			continue
		}
		if gid, ok := byID[id]; ok {
			out[gid] = row
		}
	}
	return out, nil
}
