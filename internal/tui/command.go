package tui

import (
	"errors"
	"strings"
)

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a command string (without the leading ':').
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd
}

// Fields splits the arguments on whitespace.
func (c Command) Fields() []string {
	return strings.Fields(c.Args)
}

var errLoginUsage = errors.New("usage: login [+country] <digits> [name]")

// LoginArgs holds the parts of a ":login" command.
type LoginArgs struct {
	CountryCode string
	Digits      string
	Name        string
}

// ParseLogin reads "[+country] <digits> [name...]". An omitted country code
// is left empty so the daemon default applies.
func ParseLogin(args string) (LoginArgs, error) {
	f := strings.Fields(args)
	var out LoginArgs
	if len(f) > 0 && strings.HasPrefix(f[0], "+") {
		out.CountryCode, f = f[0], f[1:]
	}
	if len(f) == 0 {
		return LoginArgs{}, errLoginUsage
	}
	out.Digits = f[0]
	out.Name = strings.Join(f[1:], " ")
	return out, nil
}
