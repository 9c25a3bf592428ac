// Package identity resolves bearer credentials to user identities and
// defines the role hierarchy used for chat and command authorization.
package identity

// Role is a user's tier within a stream room.
type Role string

const (
	RoleViewer     Role = "viewer"
	RoleSubscriber Role = "subscriber"
	RoleModerator  Role = "moderator"
	RoleStreamer   Role = "streamer"
	RoleAdmin      Role = "admin"
)

// roleRanks orders roles from least to most privileged.
var roleRanks = map[Role]int{
	RoleViewer:     0,
	RoleSubscriber: 1,
	RoleModerator:  2,
	RoleStreamer:   3,
	RoleAdmin:      4,
}

// Rank returns the privilege rank of a role. Unknown roles rank below viewer.
func (r Role) Rank() int {
	rank, ok := roleRanks[r]
	if !ok {
		return -1
	}
	return rank
}

// AtLeast reports whether r is ranked at or above required.
func (r Role) AtLeast(required Role) bool {
	return r.Rank() >= required.Rank()
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// Identity is a resolved user. A nil *Identity means the connection is
// anonymous and operates at viewer tier without authentication.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}
