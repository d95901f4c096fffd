package sshterminal

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/gluk-w/webssh/internal/ptyproc"
)

// DefaultSSHBinary is looked up on PATH when SSHTarget.Binary is empty.
const DefaultSSHBinary = "ssh"

// TerminalType is exported to every spawned process as TERM.
const TerminalType = "xterm-256color"

// SSHTarget describes the outbound ssh hop every terminal runs.
type SSHTarget struct {
	Binary  string
	Host    string
	User    string
	Port    int
	Options []string // key=value, each passed as -o
}

func (t SSHTarget) binary() string {
	if t.Binary == "" {
		return DefaultSSHBinary
	}
	return t.Binary
}

// Args returns the ssh argument vector: -o for every option, -p, -t and the
// destination last.
func (t SSHTarget) Args() []string {
	args := make([]string, 0, 2*len(t.Options)+4)
	for _, opt := range t.Options {
		args = append(args, "-o", opt)
	}
	port := t.Port
	if port == 0 {
		port = 22
	}
	args = append(args, "-p", strconv.Itoa(port), "-t", t.User+"@"+t.Host)
	return args
}

// SpawnOptions returns the process template handed to the backend. Cols and
// Rows are filled in per terminal.
func (t SSHTarget) SpawnOptions() ptyproc.SpawnOptions {
	return ptyproc.SpawnOptions{
		Command: t.binary(),
		Args:    t.Args(),
		Env:     TerminalEnv(os.Environ()),
		Dir:     workingDir(),
	}
}

func (t SSHTarget) String() string {
	return fmt.Sprintf("%s %s", t.binary(), strings.Join(t.Args(), " "))
}

// TerminalEnv returns base with TERM forced to TerminalType.
func TerminalEnv(base []string) []string {
	env := make([]string, 0, len(base)+1)
	for _, kv := range base {
		if strings.HasPrefix(kv, "TERM=") {
			continue
		}
		env = append(env, kv)
	}
	return append(env, "TERM="+TerminalType)
}

func workingDir() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		if st, err := os.Stat(home); err == nil && st.IsDir() {
			return home
		}
	}
	return "/"
}

// ProbeSSH runs "<binary> -V" once and returns the reported version line.
// ssh prints its version on stderr, so both streams are read.
func ProbeSSH(ctx context.Context, binary string) (string, error) {
	if binary == "" {
		binary = DefaultSSHBinary
	}
	out, err := exec.CommandContext(ctx, binary, "-V").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("probe %s: %w", binary, err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return line, nil
}
