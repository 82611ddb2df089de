package external

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Command is an external program with templated arguments.
type Command struct {
	Name string
	Args []string
}

// Placeholders.
const (
	VarNexus = "nexus"
	VarDat   = "dat"
	VarFile  = "file"
)

// Default tool invocations.
var (
	DefaultConverter = Command{Name: "nexus2srs", Args: []string{"{" + VarNexus + "}", "{" + VarDat + "}"}}
	DefaultValidator = Command{Name: "punx", Args: []string{"validate", "{" + VarFile + "}"}}
)

// Expand substitutes {name} placeholders in the arguments. Unknown
// placeholders are left as they are.
func (c Command) Expand(vars map[string]string) []string {
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)

	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = r.Replace(a)
	}
	return args
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// ToolError reports a failed tool run with its combined output.
type ToolError struct {
	Tool   string
	Args   []string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Tool, e.Err)
	if last := lastLine(e.Output); last != "" {
		msg += ": " + last
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// run executes c with vars substituted and returns its combined output.
func (c Command) run(ctx context.Context, vars map[string]string) (string, error) {
	if c.Name == "" {
		return "", &ToolError{Err: fmt.Errorf("no command configured")}
	}
	args := c.Expand(vars)

	cmd := exec.CommandContext(ctx, c.Name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	slog.Debug("executing", "cmd", cmd.String())
	if err := cmd.Run(); err != nil {
		return out.String(), &ToolError{Tool: c.Name, Args: args, Output: out.String(), Err: err}
	}
	return out.String(), nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
