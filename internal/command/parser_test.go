package command

import (
	"errors"
	"strings"
	"testing"

	"github.com/lunastream/realtime/internal/identity"
)

func newTestParser() *Parser {
	return NewParser(DefaultCatalog())
}

func TestIsCommand(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"/help", true},
		{"  /ban troll spam", true},
		{"/", false},
		{"hello", false},
		{"", false},
		{"not /a command", false},
	}
	for _, c := range cases {
		if got := IsCommand(c.text); got != c.want {
			t.Errorf("IsCommand(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestParseSplitsNameAndArgs(t *testing.T) {
	p := Parse("/Timeout  troll  600  being rude")
	if p.Name != "timeout" {
		t.Errorf("name = %q, want lowercased timeout", p.Name)
	}
	if len(p.Args) != 4 || p.Args[0] != "troll" || p.Args[3] != "rude" {
		t.Errorf("args = %v", p.Args)
	}
}

func TestResolveAliases(t *testing.T) {
	p := newTestParser()

	cmd, err := p.Resolve("to")
	if err != nil {
		t.Fatalf("resolve alias: %v", err)
	}
	if cmd.Name != "timeout" {
		t.Errorf("alias resolved to %q, want timeout", cmd.Name)
	}

	if _, err := p.Resolve("frobnicate"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestAuthorizeMatrix(t *testing.T) {
	p := newTestParser()
	mod := &identity.Identity{ID: "m1", Role: identity.RoleModerator}
	sub := &identity.Identity{ID: "s1", Role: identity.RoleSubscriber}

	cases := []struct {
		command string
		ident   *identity.Identity
		authed  bool
		allowed bool
		reason  DenyReason
	}{
		{"help", nil, false, true, ""},
		{"me", nil, false, false, DenyAuthRequired},
		{"me", sub, true, true, ""},
		{"timeout", sub, true, false, DenyInsufficientRole},
		{"timeout", mod, true, true, ""},
		{"ban", mod, false, false, DenyAuthRequired},
	}
	for _, c := range cases {
		cmd, err := p.Resolve(c.command)
		if err != nil {
			t.Fatalf("resolve %s: %v", c.command, err)
		}
		allowed, reason := p.Authorize(cmd, c.ident, c.authed)
		if allowed != c.allowed || reason != c.reason {
			t.Errorf("%s ident=%v authed=%v: allowed=%v reason=%q, want %v/%q",
				c.command, c.ident, c.authed, allowed, reason, c.allowed, c.reason)
		}
	}
}

func TestValidateArgsRestCapture(t *testing.T) {
	p := newTestParser()
	cmd, _ := p.Resolve("timeout")

	canonical, errs := p.ValidateArgs(cmd, []string{"troll", "600", "being", "very", "rude"})
	if len(errs) != 0 {
		t.Fatalf("errs = %v", errs)
	}
	if len(canonical) != 3 || canonical[2] != "being very rude" {
		t.Fatalf("canonical = %v, want rest tail joined", canonical)
	}
}

func TestValidateArgsCollectsAllFailures(t *testing.T) {
	p := newTestParser()
	cmd, _ := p.Resolve("timeout")

	_, errs := p.ValidateArgs(cmd, nil)
	if len(errs) != 2 {
		t.Fatalf("errs = %v, want both user and seconds", errs)
	}

	_, errs = p.ValidateArgs(cmd, []string{"troll", "soon"})
	if len(errs) != 1 || errs[0].Param != "seconds" {
		t.Fatalf("errs = %v, want a seconds type failure", errs)
	}
}

func TestValidateArgsTooMany(t *testing.T) {
	p := newTestParser()
	cmd, _ := p.Resolve("unban")

	_, errs := p.ValidateArgs(cmd, []string{"troll", "extra"})
	if len(errs) != 1 || errs[0].Param != "args" {
		t.Fatalf("errs = %v, want a too-many-arguments failure", errs)
	}
}

func TestHelpFiltersByAuthorization(t *testing.T) {
	p := newTestParser()

	anon, err := p.Help("", nil, false)
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	mod, err := p.Help("", &identity.Identity{ID: "m1", Role: identity.RoleModerator}, true)
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	if len(anon) >= len(mod) {
		t.Fatalf("anonymous sees %d commands, moderator sees %d; want fewer for anonymous", len(anon), len(mod))
	}
	for _, line := range anon {
		if strings.HasPrefix(line, "/ban") || strings.HasPrefix(line, "/timeout") {
			t.Errorf("anonymous help leaks %q", line)
		}
	}
}

func TestHelpSingleCommandHidesUnauthorized(t *testing.T) {
	p := newTestParser()

	lines, err := p.Help("timeout", &identity.Identity{ID: "m1", Role: identity.RoleModerator}, true)
	if err != nil || len(lines) != 1 {
		t.Fatalf("help timeout: lines=%v err=%v", lines, err)
	}
	if !strings.HasPrefix(lines[0], "/timeout <user> <seconds> [reason]") {
		t.Errorf("usage line = %q", lines[0])
	}

	if _, err := p.Help("timeout", nil, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound for unauthorized single help", err)
	}
}
