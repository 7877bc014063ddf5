package auth

// Permission represents a named capability.
type Permission string

// Permission constants.
const (
	PermDeviceProvision Permission = "device:provision"
	PermHistoryRead     Permission = "history:read"
)

// rolePermissions maps each role to its granted permissions.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermHistoryRead,
	},
	RoleOperator: {
		PermDeviceProvision,
		PermHistoryRead,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns a copy of the permissions granted to role.
func PermissionsForRole(role Role) []Permission {
	return append([]Permission(nil), rolePermissions[role]...)
}
