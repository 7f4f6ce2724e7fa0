// Package workspace resolves paths inside a session's workspace root and
// expands @path references in user messages into file content.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscapes is returned when a path resolves outside the workspace root.
var ErrPathEscapes = errors.New("path escapes workspace")

// Resolver resolves and validates workspace-relative paths.
type Resolver struct {
	Root string
}

// Resolve returns an absolute, cleaned path within the workspace root.
func (r Resolver) Resolve(path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", fmt.Errorf("path is required")
	}
	root := strings.TrimSpace(r.Root)
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(ExpandHome(root))
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(rootAbs, clean)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if !Within(rootAbs, targetAbs) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, path)
	}
	return targetAbs, nil
}

// Rel returns target relative to the root, using forward slashes.
func (r Resolver) Rel(target string) string {
	rootAbs, err := filepath.Abs(ExpandHome(r.Root))
	if err != nil {
		return target
	}
	rel, err := filepath.Rel(rootAbs, target)
	if err != nil {
		return target
	}
	return filepath.ToSlash(rel)
}

// Within reports whether target is root or lies beneath it. Both paths must
// be absolute and clean.
func Within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}

// ExpandHome replaces a leading ~ with the current user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

// NormalizeRoot expands ~, makes root absolute and checks that it is an
// existing directory. An empty root falls back to fallback.
func NormalizeRoot(root, fallback string) (string, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		root = fallback
	}
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(ExpandHome(root))
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("workspace root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("workspace root %s is not a directory", abs)
	}
	return abs, nil
}
