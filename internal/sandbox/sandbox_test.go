package sandbox

import "testing"

func TestGlobToSeatbeltRegex(t *testing.T) {
	cases := []struct {
		pattern string
		want    string
	}{
		{"/tmp/*.log", `^/tmp/[^/]*\.log$`},
		{"/src/**/*.go", `^/src/.*/[^/]*\.go$`},
	}
	for _, c := range cases {
		got := globToSeatbeltRegex(c.pattern)
		if got != c.want {
			t.Errorf("globToSeatbeltRegex(%q) = %q, want %q", c.pattern, got, c.want)
		}
	}
}

func TestBuildLinux_Unrestricted(t *testing.T) {
	p := New(Options{NetworkUnrestricted: true})
	argv, err := buildLinux(p, []string{"/bin/sh", "-c", "echo hi"})
	if err != nil {
		t.Fatalf("buildLinux: %v", err)
	}
	if argv[0] != "bwrap" {
		t.Fatalf("expected bwrap wrapper, got %v", argv)
	}
	if contains(argv, "--unshare-net") {
		t.Errorf("unrestricted network should not add --unshare-net: %v", argv)
	}
	if !contains(argv, "--bind") {
		t.Errorf("unrestricted write should bind / rw: %v", argv)
	}
}

func TestBuildLinux_Restricted(t *testing.T) {
	p := New(Options{
		NetworkUnrestricted: false,
		WriteAllow:          []string{"/tmp/work"},
	})
	argv, err := buildLinux(p, []string{"/bin/sh", "-c", "echo hi"})
	if err != nil {
		t.Fatalf("buildLinux: %v", err)
	}
	if !contains(argv, "--unshare-net") {
		t.Errorf("restricted network should add --unshare-net: %v", argv)
	}
	if !contains(argv, "--ro-bind") {
		t.Errorf("restricted write should ro-bind /: %v", argv)
	}
}

func TestRenderSeatbeltProfile_Unrestricted(t *testing.T) {
	p := New(Options{NetworkUnrestricted: true})
	profile := renderSeatbeltProfile(p)
	if !contains(splitLines(profile), "(allow network*)") {
		t.Errorf("expected unrestricted network rule, got:\n%s", profile)
	}
}

func TestRenderSeatbeltProfile_Restricted(t *testing.T) {
	p := New(Options{
		NetworkUnrestricted: false,
		HTTPProxyPort:       18080,
	})
	profile := renderSeatbeltProfile(p)
	if contains(splitLines(profile), "(allow network*)") {
		t.Errorf("restricted profile should not allow all network:\n%s", profile)
	}
}

func contains(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i, c := range s {
		if c == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
