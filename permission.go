package authz

import "sort"

// Permissions is a set of single-character capability flags. The alphabet is
// domain specific: r read, w write, l list, d delete, i insert, m manage,
// a archive, A accept, b business-field visibility, p private-field
// visibility, M mobile visibility. Meaning is per entity kind.
//
// Permissions values are canonical: characters sorted by byte value with no
// duplicates. Build them with NewPermissions or the set operations; comparing
// two canonical values with == is a set comparison.
type Permissions string

// NoPermissions is the empty mask. An object resolved to NoPermissions is
// denied, which is distinct from an object missing from a Result (unresolved).
const NoPermissions Permissions = ""

// AllPermissions holds every character of the alphabet.
const AllPermissions Permissions = "AMabdilmprw"

// NewPermissions normalizes a raw character string into a canonical mask.
// Duplicates are dropped and characters are sorted; characters outside the
// alphabet are kept as-is since legacy rows occasionally carry vendor flags.
func NewPermissions(s string) Permissions {
	if s == "" {
		return NoPermissions
	}
	seen := make(map[byte]bool, len(s))
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if !seen[s[i]] {
			seen[s[i]] = true
			b = append(b, s[i])
		}
	}
	sort.Slice(b, func(i, j int) bool { return b[i] < b[j] })
	return Permissions(b)
}

// Union returns the set union of p and o.
func (p Permissions) Union(o Permissions) Permissions {
	if o == NoPermissions {
		return NewPermissions(string(p))
	}
	return NewPermissions(string(p) + string(o))
}

// Intersect returns the set intersection of p and o.
func (p Permissions) Intersect(o Permissions) Permissions {
	b := make([]byte, 0, len(p))
	for i := 0; i < len(p); i++ {
		if o.Contains(p[i]) {
			b = append(b, p[i])
		}
	}
	return NewPermissions(string(b))
}

// Subtract returns the characters of p not present in o. Used to report
// which requested permissions are missing from an available mask.
func (p Permissions) Subtract(o Permissions) Permissions {
	b := make([]byte, 0, len(p))
	for i := 0; i < len(p); i++ {
		if !o.Contains(p[i]) {
			b = append(b, p[i])
		}
	}
	return NewPermissions(string(b))
}

// Contains reports whether the mask holds the given character.
func (p Permissions) Contains(c byte) bool {
	for i := 0; i < len(p); i++ {
		if p[i] == c {
			return true
		}
	}
	return false
}

// ContainsAll reports whether every character of o is present in p.
func (p Permissions) ContainsAll(o Permissions) bool {
	return o.Subtract(p) == NoPermissions
}

// IsEmpty reports whether the mask grants nothing.
func (p Permissions) IsEmpty() bool {
	return len(p) == 0
}

// String returns the canonical textual form.
func (p Permissions) String() string {
	return string(p)
}

// UnionOf unions any number of raw permission strings into one canonical
// mask. Handy for folding ACL entry rows.
func UnionOf(masks ...string) Permissions {
	var b []byte
	for _, m := range masks {
		b = append(b, m...)
	}
	return NewPermissions(string(b))
}
