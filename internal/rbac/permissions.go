package rbac

// Permission names a capability that gates a page, route or action.
type Permission string

// Administration
const (
	CanAccessAdminPanel Permission = "canAccessAdminPanel"
	CanManageUsers      Permission = "canManageUsers"
	CanDeleteUsers      Permission = "canDeleteUsers"
	CanConfigureSystem  Permission = "canConfigureSystem"
)

// Documents
const (
	CanViewAllDocuments Permission = "canViewAllDocuments"
	CanUploadDocuments  Permission = "canUploadDocuments"
	CanDeleteDocuments  Permission = "canDeleteDocuments"
)

// Monitoring, compliance and analysis
const (
	CanViewMonitoring        Permission = "canViewMonitoring"
	CanEditMonitoringData    Permission = "canEditMonitoringData"
	CanManageAlerts          Permission = "canManageAlerts"
	CanViewCompliance        Permission = "canViewCompliance"
	CanManageCompliance      Permission = "canManageCompliance"
	CanPerformRiskAssessment Permission = "canPerformRiskAssessment"
	CanUseAIChat             Permission = "canUseAIChat"
	CanViewReports           Permission = "canViewReports"
	CanExportData            Permission = "canExportData"
	CanGenerateSyntheticData Permission = "canGenerateSyntheticData"
)

var allRoles = []Role{
	RoleSuperAdmin, RoleAdmin, RoleEngineerOfRecord, RoleManagement,
	RoleTSFOperator, RoleRegulator, RoleConsultant, RoleViewer,
}

// permissionRoles is the single source of truth for which roles hold a permission.
// It is read-only after init.
var permissionRoles = map[Permission][]Role{
	CanAccessAdminPanel: {RoleSuperAdmin, RoleAdmin},
	CanManageUsers:      {RoleSuperAdmin, RoleAdmin},
	CanDeleteUsers:      {RoleSuperAdmin},
	CanConfigureSystem:  {RoleSuperAdmin},

	CanViewAllDocuments: {RoleSuperAdmin, RoleAdmin, RoleEngineerOfRecord, RoleRegulator},
	CanUploadDocuments:  {RoleSuperAdmin, RoleAdmin, RoleEngineerOfRecord, RoleTSFOperator, RoleConsultant},
	CanDeleteDocuments:  {RoleSuperAdmin, RoleAdmin},

	CanViewMonitoring:        allRoles,
	CanEditMonitoringData:    {RoleSuperAdmin, RoleAdmin, RoleEngineerOfRecord, RoleTSFOperator},
	CanManageAlerts:          {RoleSuperAdmin, RoleAdmin, RoleEngineerOfRecord, RoleTSFOperator},
	CanViewCompliance:        {RoleSuperAdmin, RoleAdmin, RoleEngineerOfRecord, RoleManagement, RoleRegulator, RoleConsultant},
	CanManageCompliance:      {RoleSuperAdmin, RoleAdmin, RoleEngineerOfRecord},
	CanPerformRiskAssessment: {RoleSuperAdmin, RoleEngineerOfRecord},
	CanUseAIChat:             {RoleSuperAdmin, RoleAdmin, RoleEngineerOfRecord, RoleManagement, RoleTSFOperator, RoleConsultant},
	CanViewReports:           allRoles,
	CanExportData:            {RoleSuperAdmin, RoleAdmin, RoleEngineerOfRecord, RoleManagement},
	CanGenerateSyntheticData: {RoleSuperAdmin, RoleAdmin},
}

// membership index built once from permissionRoles
var grants = func() map[Permission]map[Role]struct{} {
	idx := make(map[Permission]map[Role]struct{}, len(permissionRoles))
	for perm, rs := range permissionRoles {
		set := make(map[Role]struct{}, len(rs))
		for _, r := range rs {
			set[r] = struct{}{}
		}
		idx[perm] = set
	}
	return idx
}()

// Permissions returns every known permission name.
func Permissions() []Permission {
	out := make([]Permission, 0, len(permissionRoles))
	for p := range permissionRoles {
		out = append(out, p)
	}
	return out
}

// IsKnownPermission reports whether name is in the permission table.
func IsKnownPermission(name Permission) bool {
	_, ok := grants[name]
	return ok
}

// RolesWith returns a copy of the roles allowed to exercise perm, or nil when unknown.
func RolesWith(perm Permission) []Role {
	rs, ok := permissionRoles[perm]
	if !ok {
		return nil
	}
	out := make([]Role, len(rs))
	copy(out, rs)
	return out
}

// RoleHasPermission is the table lookup behind Evaluator.HasPermission.
// Unknown permission names and empty roles are denied.
func RoleHasPermission(role Role, perm Permission) bool {
	if role == "" {
		return false
	}
	set, ok := grants[perm]
	if !ok {
		return false
	}
	_, ok = set[role]
	return ok
}
