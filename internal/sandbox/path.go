package sandbox

import (
	"os"
	"path/filepath"
	"strings"
)

// isGlob reports whether path contains glob metacharacters the caller wants
// bound literally. Linux can only bind real paths, so globs are skipped
// there; the macOS builder turns them into seatbelt regexes instead.
func isGlob(path string) bool {
	return strings.ContainsAny(path, "*?[")
}

// normalizePath expands "~", resolves "./x"/"../x" against cwd, makes the
// result absolute, and follows symlinks via realpath where possible. Glob
// patterns are returned unchanged (isGlob distinguishes them downstream).
func normalizePath(path, cwd string) string {
	if path == "" {
		return path
	}
	if isGlob(path) {
		return path
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			if path == "~" {
				path = home
			} else {
				path = filepath.Join(home, path[2:])
			}
		}
	}

	if !filepath.IsAbs(path) {
		if cwd == "" {
			cwd, _ = os.Getwd()
		}
		path = filepath.Join(cwd, path)
	}
	path = filepath.Clean(path)

	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real
	}
	return path
}

// normalizeAll normalizes every entry of paths against cwd.
func normalizeAll(paths []string, cwd string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = normalizePath(p, cwd)
	}
	return out
}
