// Package claudecli resolves how to invoke the claude CLI on the current
// platform, including the shell-quoting rules Windows batch launchers need.
package claudecli

import (
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Invocation describes a platform-correct way to run the claude CLI.
type Invocation struct {
	Command string
	Args    []string
	// UseShell is set when the command must go through cmd.exe, which is
	// the case for .cmd/.bat launchers installed by npm on Windows.
	UseShell bool
}

// Resolve returns the invocation for the claude CLI. An explicit override
// wins; otherwise the binary is located on PATH.
func Resolve(override string) Invocation {
	return resolveFor(override, runtime.GOOS)
}

func resolveFor(override, goos string) Invocation {
	command := override
	if command == "" {
		command = "claude"
		if path, err := exec.LookPath(command); err == nil {
			command = path
		}
	}

	quoted, needsShell := ShellForm(command, goos)
	if needsShell {
		return Invocation{
			Command:  "cmd.exe",
			Args:     []string{"/c", quoted},
			UseShell: true,
		}
	}
	return Invocation{Command: command}
}

// cmd.exe treats these as metacharacters outside quotes.
const cmdMetaChars = " &()[]{}^=;!'+,`~%"

// ShellForm maps a claude binary path and platform to the quoted form and
// whether it must be launched through a shell. Batch files (.cmd/.bat) on
// Windows cannot be exec'd directly; they run under cmd.exe, and paths
// containing spaces or cmd metacharacters must be double-quoted. Inputs
// that are already quoted are returned unchanged.
func ShellForm(path, goos string) (string, bool) {
	if goos != "windows" {
		return path, false
	}

	ext := strings.ToLower(filepath.Ext(strings.TrimSuffix(strings.Trim(path, `"`), " ")))
	needsShell := ext == ".cmd" || ext == ".bat"
	if !needsShell {
		return path, false
	}

	if strings.HasPrefix(path, `"`) && strings.HasSuffix(path, `"`) {
		return path, true
	}

	if strings.ContainsAny(path, cmdMetaChars) {
		return `"` + path + `"`, true
	}
	return path, true
}
