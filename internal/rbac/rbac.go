package rbac

// Role is one of the eight fixed platform roles.
type Role string

// Role names, most privileged first.
const (
	RoleSuperAdmin       Role = "super_admin"        // Platform owner
	RoleAdmin            Role = "admin"              // Organisation administrator
	RoleEngineerOfRecord Role = "engineer_of_record" // Accountable TSF engineer
	RoleManagement       Role = "management"         // Site or corporate management
	RoleTSFOperator      Role = "tsf_operator"       // Day-to-day facility operator
	RoleRegulator        Role = "regulator"          // External regulator, read mostly
	RoleConsultant       Role = "consultant"         // External consultant
	RoleViewer           Role = "viewer"             // Read-only access
)

const (
	unknownRoleName  = "Unknown Role"
	unknownRoleColor = "#757575"
)

type roleInfo struct {
	level       int
	displayName string
	color       string
}

// hierarchy levels run 8..1, higher outranks lower
var roles = map[Role]roleInfo{
	RoleSuperAdmin:       {level: 8, displayName: "Super Administrator", color: "#d32f2f"},
	RoleAdmin:            {level: 7, displayName: "Administrator", color: "#f57c00"},
	RoleEngineerOfRecord: {level: 6, displayName: "Engineer of Record", color: "#1976d2"},
	RoleManagement:       {level: 5, displayName: "Management", color: "#7b1fa2"},
	RoleTSFOperator:      {level: 4, displayName: "TSF Operator", color: "#0288d1"},
	RoleRegulator:        {level: 3, displayName: "Regulator", color: "#388e3c"},
	RoleConsultant:       {level: 2, displayName: "Consultant", color: "#5d4037"},
	RoleViewer:           {level: 1, displayName: "Viewer", color: "#616161"},
}

// ordered from most to least privileged
var roleOrder = []Role{
	RoleSuperAdmin,
	RoleAdmin,
	RoleEngineerOfRecord,
	RoleManagement,
	RoleTSFOperator,
	RoleRegulator,
	RoleConsultant,
	RoleViewer,
}

// RoleOption is a role paired with its UI presentation.
type RoleOption struct {
	Role        Role   `json:"value"`
	DisplayName string `json:"label"`
	Color       string `json:"color"`
	Level       int    `json:"level"`
}

// ValidRoles returns every role, most privileged first.
func ValidRoles() []Role {
	out := make([]Role, len(roleOrder))
	copy(out, roleOrder)
	return out
}

// IsValidRole reports whether role is one of the known roles.
func IsValidRole(role Role) bool {
	_, ok := roles[role]
	return ok
}

// Level returns the hierarchy level for role, or 0 when unknown.
func Level(role Role) int {
	return roles[role].level
}

// RoleDisplayName never fails; unknown roles get a generic label.
func RoleDisplayName(role Role) string {
	if info, ok := roles[role]; ok {
		return info.displayName
	}
	return unknownRoleName
}

// RoleColor never fails; unknown roles get a neutral grey.
func RoleColor(role Role) string {
	if info, ok := roles[role]; ok {
		return info.color
	}
	return unknownRoleColor
}

func optionFor(role Role) RoleOption {
	return RoleOption{
		Role:        role,
		DisplayName: RoleDisplayName(role),
		Color:       RoleColor(role),
		Level:       Level(role),
	}
}

// RolesAtOrBelow returns the roles whose level is <= level, most privileged first.
func RolesAtOrBelow(level int) []RoleOption {
	var out []RoleOption
	for _, r := range roleOrder {
		if roles[r].level <= level {
			out = append(out, optionFor(r))
		}
	}
	if out == nil {
		out = []RoleOption{}
	}
	return out
}
