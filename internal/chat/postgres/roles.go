package postgres

import "github.com/lunastream/realtime/internal/identity"

// roleFromString maps a stored role; rows written before a role existed in
// this binary degrade to viewer instead of failing the scan.
func roleFromString(s string) identity.Role {
	role := identity.Role(s)
	if !role.Valid() {
		return identity.RoleViewer
	}
	return role
}
