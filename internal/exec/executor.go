// Package exec starts and signals the trainer process and classifies how
// it ended.
package exec

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/forgellm/forge/internal/errors"
)

// ExitCommandNotFound is the shell convention for a missing executable.
const ExitCommandNotFound = 127

// commandNotFoundPatterns detect "command not found" messages from various
// shells. These require exit code 127.
var commandNotFoundPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bash: (\S+): command not found`),
	regexp.MustCompile(`(?i)zsh: command not found: (\S+)`),
	regexp.MustCompile(`(?i)sh: \d+: (\S+): not found`),
	regexp.MustCompile(`(?i)env: '?([^\s:']+)'?: No such file or directory`),
	regexp.MustCompile(`(?i)(\S+): not found`),
	regexp.MustCompile(`(?i)(\S+): command not found`),
}

// moduleNotFoundPattern matches a Python trainer whose package isn't installed:
// /usr/bin/python: No module named mlx_lm
var moduleNotFoundPattern = regexp.MustCompile(`No module named '?([\w.]+)'?`)

// IsCommandNotFound checks if the trainer output indicates a missing command.
// Returns the command name (if extractable) and whether it's a
// command-not-found exit.
func IsCommandNotFound(output string, exitCode int) (string, bool) {
	if exitCode != ExitCommandNotFound {
		return "", false
	}
	for _, pattern := range commandNotFoundPatterns {
		if matches := pattern.FindStringSubmatch(output); len(matches) > 1 {
			return strings.Trim(matches[1], "'\""), true
		}
	}
	return "", true
}

// IsModuleNotFound reports a Python "No module named X" failure.
func IsModuleNotFound(output string) (string, bool) {
	if m := moduleNotFoundPattern.FindStringSubmatch(output); len(m) > 1 {
		return m[1], true
	}
	return "", false
}

// HandleExitError turns a failed trainer exit into an error with a fix when
// the cause is recognisable. It returns nil for ordinary failures, whose
// exit code alone is recorded.
func HandleExitError(argv []string, output string, exitCode int) error {
	if exitCode == 0 {
		return nil
	}

	if name, notFound := IsCommandNotFound(output, exitCode); notFound {
		if name == "" && len(argv) > 0 {
			name = argv[0]
		}
		if name == "" {
			name = "trainer"
		}
		return errors.New(errors.ErrLaunch,
			fmt.Sprintf("'%s' not found in PATH", name),
			fmt.Sprintf(`The trainer command couldn't be found.

Fixes:

1. Install it, or activate the environment that provides it

2. Point forge at the right executable in .forge.yaml:
   trainer:
     command: [/path/to/%s]`, name))
	}

	if module, ok := IsModuleNotFound(output); ok {
		pkg := strings.SplitN(module, ".", 2)[0]
		return errors.New(errors.ErrLaunch,
			fmt.Sprintf("Python module '%s' is not installed", module),
			fmt.Sprintf("Run: pip install %s\n  or set trainer.command to the interpreter that has it", strings.ReplaceAll(pkg, "_", "-")))
	}

	return nil
}
