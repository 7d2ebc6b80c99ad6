package lock

import "strings"

// Roles defines a total order over role names. Higher index = more power.
type Roles struct {
	order map[string]int
	names []string
}

// DefaultRoles returns the stock role hierarchy.
func DefaultRoles() *Roles {
	return NewRoles("player", "builder", "admin", "superadmin")
}

// NewRoles builds a hierarchy from names listed lowest to highest.
func NewRoles(names ...string) *Roles {
	r := &Roles{order: make(map[string]int, len(names))}
	for i, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		r.order[n] = i
		r.names = append(r.names, n)
	}
	return r
}

// Level returns the rank of a role name, or (-1, false) if unknown.
func (r *Roles) Level(name string) (int, bool) {
	lvl, ok := r.order[strings.ToLower(name)]
	if !ok {
		return -1, false
	}
	return lvl, true
}

// Satisfies reports whether a subject holding `have` passes a role(want)
// predicate: the exact role or any strictly higher one qualifies.
func (r *Roles) Satisfies(have, want string) (bool, error) {
	haveLvl, ok := r.Level(have)
	if !ok {
		return false, errUnknownRole(have)
	}
	wantLvl, ok := r.Level(want)
	if !ok {
		return false, errUnknownRole(want)
	}
	return haveLvl >= wantLvl, nil
}

// Names returns the role names lowest to highest.
func (r *Roles) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}
