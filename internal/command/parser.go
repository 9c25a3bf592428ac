package command

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lunastream/realtime/internal/identity"
)

// Prefix marks chat text as a command.
const Prefix = "/"

var ErrNotFound = errors.New("unknown command")

// DenyReason explains an authorization failure.
type DenyReason string

const (
	DenyAuthRequired     DenyReason = "authentication required"
	DenyInsufficientRole DenyReason = "insufficient role"
)

// Parsed is the result of Parse: the raw name and positional args.
type Parsed struct {
	Name string
	Args []string
}

// Parser resolves and validates commands against a static catalog.
type Parser struct {
	byName map[string]*Command
	all    []Command
}

func NewParser(catalog []Command) *Parser {
	p := &Parser{
		byName: make(map[string]*Command),
		all:    append([]Command(nil), catalog...),
	}
	for i := range p.all {
		c := &p.all[i]
		p.byName[c.Name] = c
		for _, alias := range c.Aliases {
			p.byName[alias] = c
		}
	}
	return p
}

// IsCommand reports whether text is a command: it starts with the prefix
// character after trimming, and is not the bare prefix itself.
func IsCommand(text string) bool {
	t := strings.TrimSpace(text)
	return len(t) > len(Prefix) && strings.HasPrefix(t, Prefix)
}

// Parse splits command text into a name and positional args. The final
// declared parameter may be a rest capture, in which case ValidateArgs
// rejoins the tail; Parse itself is catalog-unaware.
func Parse(text string) Parsed {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return Parsed{}
	}
	name := strings.ToLower(strings.TrimPrefix(fields[0], Prefix))
	return Parsed{Name: name, Args: fields[1:]}
}

// Resolve looks a name up in the catalog: canonical name first, then alias.
func (p *Parser) Resolve(name string) (*Command, error) {
	c, ok := p.byName[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return c, nil
}

// Authorize checks whether the caller may run cmd. Deny when the command
// requires authentication and the caller has none, or when the caller's
// role ranks below the command's required role. An anonymous caller ranks
// as viewer.
func (p *Parser) Authorize(cmd *Command, ident *identity.Identity, isAuthenticated bool) (allowed bool, reason DenyReason) {
	if cmd.RequiresAuth && !isAuthenticated {
		return false, DenyAuthRequired
	}
	role := identity.RoleViewer
	if ident != nil {
		role = ident.Role
	}
	if !role.AtLeast(cmd.RequiredRole) {
		return false, DenyInsufficientRole
	}
	return true, ""
}

// ArgError is one argument validation failure.
type ArgError struct {
	Param  string `json:"param"`
	Reason string `json:"reason"`
}

func (e ArgError) Error() string { return e.Param + ": " + e.Reason }

// ValidateArgs checks args against cmd's declared parameters. All problems
// are collected, not short-circuited, so the user sees everything at once.
// On success the returned slice is the canonical argument list with any
// rest-capture tail joined into its final element.
func (p *Parser) ValidateArgs(cmd *Command, args []string) ([]string, []ArgError) {
	var errs []ArgError
	canonical := make([]string, 0, len(cmd.Params))

	for i, param := range cmd.Params {
		if i >= len(args) {
			if param.Required {
				errs = append(errs, ArgError{Param: param.Name, Reason: "required"})
			}
			continue
		}

		value := args[i]
		if param.Rest {
			value = strings.Join(args[i:], " ")
		}

		switch param.Type {
		case ParamNumber:
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				errs = append(errs, ArgError{Param: param.Name, Reason: fmt.Sprintf("%q is not a number", value)})
			}
		case ParamBoolean:
			if _, err := strconv.ParseBool(value); err != nil {
				errs = append(errs, ArgError{Param: param.Name, Reason: fmt.Sprintf("%q is not a boolean", value)})
			}
		}
		canonical = append(canonical, value)
	}

	// Extra args beyond the declared list (and not consumed by a rest
	// capture) are a mistake worth surfacing.
	if n := len(cmd.Params); len(args) > n && (n == 0 || !cmd.Params[n-1].Rest) {
		errs = append(errs, ArgError{Param: "args", Reason: fmt.Sprintf("too many arguments: expected at most %d", n)})
	}

	return canonical, errs
}

// Help returns help lines for every command the caller is authorized to
// run, sorted by name. With a non-empty name it returns usage for that one
// command (still gated by authorization).
func (p *Parser) Help(name string, ident *identity.Identity, isAuthenticated bool) ([]string, error) {
	if name != "" {
		cmd, err := p.Resolve(name)
		if err != nil {
			return nil, err
		}
		if ok, _ := p.Authorize(cmd, ident, isAuthenticated); !ok {
			return nil, ErrNotFound // unauthorized commands stay invisible
		}
		return []string{cmd.Usage() + " - " + cmd.Description}, nil
	}

	var lines []string
	for i := range p.all {
		cmd := &p.all[i]
		if ok, _ := p.Authorize(cmd, ident, isAuthenticated); ok {
			lines = append(lines, cmd.Usage()+" - "+cmd.Description)
		}
	}
	sort.Strings(lines)
	return lines, nil
}
