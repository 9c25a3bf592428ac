// Package command interprets "/"-prefixed chat text as structured commands
// with role-gated execution.
package command

import (
	"github.com/lunastream/realtime/internal/identity"
)

// ParamType is the declared primitive of a positional parameter.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
)

// Param declares one positional parameter.
type Param struct {
	Name     string
	Type     ParamType
	Required bool
	// Rest captures the remainder of the line (free text such as a reason).
	// Only valid on the final parameter.
	Rest bool
}

// Command is a static catalog entry, not per-instance state.
type Command struct {
	Name         string
	Aliases      []string
	Description  string
	Params       []Param
	RequiredRole identity.Role
	RequiresAuth bool
}

// Usage renders a help line like "/timeout <user> <seconds> [reason]".
func (c Command) Usage() string {
	out := "/" + c.Name
	for _, p := range c.Params {
		if p.Required {
			out += " <" + p.Name + ">"
		} else {
			out += " [" + p.Name + "]"
		}
	}
	return out
}

// DefaultCatalog is the command set of the live chat surface.
func DefaultCatalog() []Command {
	return []Command{
		{
			Name:         "help",
			Aliases:      []string{"commands", "h"},
			Description:  "List available commands or show usage for one",
			Params:       []Param{{Name: "command", Type: ParamString}},
			RequiredRole: identity.RoleViewer,
		},
		{
			Name:         "me",
			Description:  "Send an action-style message",
			Params:       []Param{{Name: "text", Type: ParamString, Required: true, Rest: true}},
			RequiredRole: identity.RoleViewer,
			RequiresAuth: true,
		},
		{
			Name:         "timeout",
			Aliases:      []string{"to"},
			Description:  "Temporarily mute a user in this room",
			Params: []Param{
				{Name: "user", Type: ParamString, Required: true},
				{Name: "seconds", Type: ParamNumber, Required: true},
				{Name: "reason", Type: ParamString, Rest: true},
			},
			RequiredRole: identity.RoleModerator,
			RequiresAuth: true,
		},
		{
			Name:        "ban",
			Description: "Ban a user from chatting in this room",
			Params: []Param{
				{Name: "user", Type: ParamString, Required: true},
				{Name: "reason", Type: ParamString, Rest: true},
			},
			RequiredRole: identity.RoleModerator,
			RequiresAuth: true,
		},
		{
			Name:         "unban",
			Description:  "Lift a ban",
			Params:       []Param{{Name: "user", Type: ParamString, Required: true}},
			RequiredRole: identity.RoleModerator,
			RequiresAuth: true,
		},
		{
			Name:        "slow",
			Description: "Enable slow mode with a per-user delay in seconds",
			Params: []Param{
				{Name: "seconds", Type: ParamNumber, Required: true},
			},
			RequiredRole: identity.RoleModerator,
			RequiresAuth: true,
		},
		{
			Name:         "slowoff",
			Description:  "Disable slow mode",
			RequiredRole: identity.RoleModerator,
			RequiresAuth: true,
		},
		{
			Name:         "pin",
			Description:  "Pin a message",
			Params:       []Param{{Name: "messageId", Type: ParamString, Required: true}},
			RequiredRole: identity.RoleModerator,
			RequiresAuth: true,
		},
		{
			Name:         "unpin",
			Description:  "Unpin the pinned message",
			Params:       []Param{{Name: "messageId", Type: ParamString, Required: true}},
			RequiredRole: identity.RoleModerator,
			RequiresAuth: true,
		},
		{
			Name:         "delete",
			Aliases:      []string{"del"},
			Description:  "Delete a message",
			Params:       []Param{{Name: "messageId", Type: ParamString, Required: true}},
			RequiredRole: identity.RoleModerator,
			RequiresAuth: true,
		},
		{
			Name:         "shoutout",
			Aliases:      []string{"so"},
			Description:  "Give a shoutout to another channel",
			Params:       []Param{{Name: "user", Type: ParamString, Required: true}},
			RequiredRole: identity.RoleStreamer,
			RequiresAuth: true,
		},
		{
			Name:        "announce",
			Description: "Broadcast a highlighted announcement",
			Params: []Param{
				{Name: "text", Type: ParamString, Required: true, Rest: true},
			},
			RequiredRole: identity.RoleStreamer,
			RequiresAuth: true,
		},
	}
}
