package rbac

import "slices"

// Principal is the slice of a user that authorization decisions depend on.
// A nil Facilities slice means the user has no facility restriction.
type Principal struct {
	Role       Role
	Facilities []string
}

// Evaluator answers capability queries for one principal. It is immutable,
// so a new Evaluator is built whenever the current user changes. Every
// query is total: missing data yields the least privileged answer.
type Evaluator struct {
	role       Role
	level      int
	restricted bool
	facilities map[string]struct{}
}

// NewEvaluator snapshots p. The zero Principal yields an evaluator that denies everything.
func NewEvaluator(p Principal) *Evaluator {
	e := &Evaluator{
		role:  p.Role,
		level: Level(p.Role),
	}
	if p.Facilities != nil {
		e.restricted = true
		e.facilities = make(map[string]struct{}, len(p.Facilities))
		for _, id := range p.Facilities {
			e.facilities[id] = struct{}{}
		}
	}
	return e
}

// Anonymous returns an evaluator with no role.
func Anonymous() *Evaluator {
	return NewEvaluator(Principal{})
}

func (e *Evaluator) Role() Role {
	if e == nil {
		return ""
	}
	return e.role
}

func (e *Evaluator) Level() int {
	if e == nil {
		return 0
	}
	return e.level
}

func (e *Evaluator) HasPermission(name Permission) bool {
	if e == nil {
		return false
	}
	return RoleHasPermission(e.role, name)
}

func (e *Evaluator) HasRoleLevel(required int) bool {
	return e.Level() >= required
}

// HasHigherRoleThan is strict: a role never outranks itself.
func (e *Evaluator) HasHigherRoleThan(other Role) bool {
	return e.Level() > Level(other)
}

// CanAssignRole reports whether the principal may create or assign target.
// Only known roles at or below the principal's own level qualify.
func (e *Evaluator) CanAssignRole(target Role) bool {
	if e == nil || e.level == 0 || !IsValidRole(target) {
		return false
	}
	return Level(target) <= e.level
}

// CanAccessFacility grants access when the user is unrestricted, when the
// facility is on the user's list, or when the role can view all documents.
// Without a role there is no user, so access is denied.
func (e *Evaluator) CanAccessFacility(facilityID string) bool {
	if e == nil || e.role == "" {
		return false
	}
	if !e.restricted {
		return true
	}
	if _, ok := e.facilities[facilityID]; ok {
		return true
	}
	return e.HasPermission(CanViewAllDocuments)
}

// AvailableRoles lists the roles the principal may hand out, most privileged first.
func (e *Evaluator) AvailableRoles() []RoleOption {
	return RolesAtOrBelow(e.Level())
}

// GrantedPermissions returns the permissions the principal holds, sorted by name.
func (e *Evaluator) GrantedPermissions() []Permission {
	var out []Permission
	for _, p := range Permissions() {
		if e.HasPermission(p) {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out
}

func (e *Evaluator) RoleDisplayName() string {
	return RoleDisplayName(e.Role())
}

func (e *Evaluator) RoleColor() string {
	return RoleColor(e.Role())
}
