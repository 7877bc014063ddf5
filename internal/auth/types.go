package auth

import "errors"

// Role represents an authorisation tier.
type Role string

const (
	// RoleViewer can read provisioning history.
	RoleViewer Role = "viewer"

	// RoleOperator can provision devices and read history.
	RoleOperator Role = "operator"
)

// ValidRoles lists every role a token may carry.
var ValidRoles = []Role{RoleViewer, RoleOperator}

// IsValidRole reports whether r is a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if v == r {
			return true
		}
	}
	return false
}

// Sentinel errors.
var (
	ErrTokenMissing = errors.New("missing bearer token")
	ErrTokenInvalid = errors.New("invalid token")
	ErrForbidden    = errors.New("insufficient permissions")
)
