package tools

import (
	"os"
	"path/filepath"
	"strings"
)

// Sandbox confines every path a tool touches to a single workspace root.
// Relative paths resolve against the root; absolute paths are accepted only
// when they stay inside it. Symlinks are resolved before the containment
// check so a link cannot smuggle access out of the workspace.
type Sandbox struct {
	root string
}

// NewSandbox creates a sandbox rooted at dir. An empty dir means the current
// working directory.
func NewSandbox(dir string) (*Sandbox, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, NewToolErrorf(ErrExecutionFailed, "cannot get working directory: %v", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, NewToolErrorf(ErrInvalidParams, "cannot resolve workspace root: %v", err)
	}
	// Resolve the root itself so later prefix checks compare like with like
	// (e.g. /tmp vs /private/tmp).
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return &Sandbox{root: abs}, nil
}

// Root returns the absolute workspace root.
func (s *Sandbox) Root() string {
	return s.root
}

// Resolve turns path into an absolute path inside the workspace or fails
// with PATH_NOT_IN_WORKSPACE. The target does not need to exist; containment
// is checked against the deepest existing ancestor with symlinks resolved.
func (s *Sandbox) Resolve(path string) (string, error) {
	if path == "" {
		return "", NewToolError(ErrInvalidParams, "path is required")
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(s.root, abs)
	}
	abs = filepath.Clean(abs)

	if !s.contains(abs) {
		return "", NewToolErrorf(ErrPathNotInWorkspace, "%s is outside the workspace %s", path, s.root)
	}

	// Walk up to the deepest existing ancestor and resolve its symlinks; a
	// link inside the workspace may point anywhere.
	ancestor := abs
	suffix := ""
	for {
		resolved, err := filepath.EvalSymlinks(ancestor)
		if err == nil {
			real := filepath.Join(resolved, suffix)
			if !s.contains(real) {
				return "", NewToolErrorf(ErrSymlinkEscape, "%s resolves outside the workspace %s", path, s.root)
			}
			return real, nil
		}
		if !os.IsNotExist(err) {
			return "", NewToolErrorf(ErrExecutionFailed, "cannot resolve %s: %v", path, err)
		}
		parent := filepath.Dir(ancestor)
		if parent == ancestor {
			return abs, nil
		}
		suffix = filepath.Join(filepath.Base(ancestor), suffix)
		ancestor = parent
	}
}

func (s *Sandbox) contains(abs string) bool {
	if abs == s.root {
		return true
	}
	return strings.HasPrefix(abs, s.root+string(filepath.Separator))
}
