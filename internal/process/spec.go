// Package process launches child processes with parent-owned output pipes
// and reports how they exited.
package process

import (
	"sort"
	"strings"
)

// Spec describes the child to launch.
type Spec struct {
	// Path is the executable. Names without a slash are resolved via PATH.
	Path string

	// Args are the arguments after the program name.
	Args []string

	// Env is the complete environment of the child. A nil or empty map
	// starts the child with an empty environment.
	Env map[string]string

	// Dir is the working directory. Empty means the parent's.
	Dir string
}

// environ renders Env as KEY=VALUE pairs sorted by key.
// The result is never nil so exec.Cmd does not fall back to os.Environ.
func (s Spec) environ() []string {
	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+s.Env[k])
	}
	return env
}

// CommandLine returns the command as a single display string.
func (s Spec) CommandLine() string {
	parts := make([]string, 0, len(s.Args)+1)
	parts = append(parts, s.Path)
	for _, a := range s.Args {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			a = `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}
