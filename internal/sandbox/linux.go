package sandbox

import "os"

// buildLinux wraps argv with bubblewrap flags per spec §4.5: a fresh
// pid/uts/ipc namespace, network namespace dropped when restricted, and
// either an unrestricted bind of "/" or a read-only "/" with explicit
// writable roots carved back out.
func buildLinux(p *Profile, argv []string) ([]string, error) {
	args := []string{
		"--die-with-parent",
		"--new-session",
		"--unshare-pid",
		"--unshare-uts",
		"--unshare-ipc",
	}

	if p.NeedsNetworkRestriction {
		args = append(args, "--unshare-net")
	}

	cwd, _ := os.Getwd()

	if len(p.WriteAllow) == 0 {
		args = append(args, "--bind", "/", "/")
	} else {
		args = append(args, "--ro-bind", "/", "/")
		for _, root := range normalizeAll(p.WriteAllow, cwd) {
			if isGlob(root) {
				continue
			}
			args = append(args, "--bind", root, root)
		}
		for _, deny := range normalizeAll(p.WriteDenyWithinAllow, cwd) {
			if isGlob(deny) || !withinAnyRoot(deny, p.WriteAllow, cwd) {
				continue
			}
			args = append(args, "--ro-bind", deny, deny)
		}
	}

	for _, deny := range normalizeAll(p.ReadDeny, cwd) {
		if isGlob(deny) {
			continue
		}
		if info, err := os.Stat(deny); err == nil && info.IsDir() {
			args = append(args, "--tmpfs", deny)
		} else {
			args = append(args, "--ro-bind", "/dev/null", deny)
		}
	}

	args = append(args, "--")
	return append(append([]string{"bwrap"}, args...), argv...), nil
}

// withinAnyRoot reports whether path falls under one of roots, after
// normalization, by simple prefix match (bubblewrap binds are literal
// paths so no further glob handling applies here).
func withinAnyRoot(path string, roots []string, cwd string) bool {
	for _, root := range normalizeAll(roots, cwd) {
		if len(path) >= len(root) && path[:len(root)] == root {
			return true
		}
	}
	return false
}
