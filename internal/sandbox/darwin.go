package sandbox

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// buildDarwin generates a sandbox-exec seatbelt profile and wraps argv with
// "sandbox-exec -p <profile> -- argv...", per spec §4.5.
func buildDarwin(p *Profile, argv []string) ([]string, error) {
	profile := renderSeatbeltProfile(p)
	wrapped := append([]string{"sandbox-exec", "-p", profile, "--"}, argv...)
	return wrapped, nil
}

func renderSeatbeltProfile(p *Profile) string {
	var b strings.Builder
	b.WriteString("(version 1)\n")
	b.WriteString("(deny default)\n")
	b.WriteString("(allow process*)\n")
	b.WriteString("(allow sysctl-read)\n")
	b.WriteString("(allow mach-lookup)\n")

	writeNetworkRules(&b, p)
	writeFileReadRules(&b, p)
	writeFileWriteRules(&b, p)

	return b.String()
}

func writeNetworkRules(b *strings.Builder, p *Profile) {
	if !p.NeedsNetworkRestriction {
		b.WriteString("(allow network*)\n")
		return
	}

	if p.AllowLocalBinding {
		b.WriteString(`(allow network-bind (local ip "localhost:*"))` + "\n")
	}
	for _, sock := range p.AllowedUnixSockets {
		fmt.Fprintf(b, "(allow network* (local path %q))\n", sock)
	}
	if p.HTTPProxyPort != 0 {
		fmt.Fprintf(b, `(allow network-outbound (remote ip "localhost:%d"))`+"\n", p.HTTPProxyPort)
	}
	if p.SOCKSProxyPort != 0 {
		fmt.Fprintf(b, `(allow network-outbound (remote ip "localhost:%d"))`+"\n", p.SOCKSProxyPort)
	}
}

func writeFileReadRules(b *strings.Builder, p *Profile) {
	b.WriteString("(allow file-read*)\n")
	cwd, _ := os.Getwd()
	for _, raw := range p.ReadDeny {
		if isGlob(raw) {
			pattern := globToSeatbeltRegex(raw)
			fmt.Fprintf(b, `(deny file-read* (regex #"%s"))`+"\n", pattern)
			continue
		}
		path := normalizePath(raw, cwd)
		fmt.Fprintf(b, "(deny file-read* (subpath %q))\n", path)
	}
}

func writeFileWriteRules(b *strings.Builder, p *Profile) {
	b.WriteString("(deny file-write*)\n")
	b.WriteString(`(allow file-write* (subpath "/tmp"))` + "\n")
	b.WriteString(`(allow file-write* (subpath "/private/tmp"))` + "\n")
	b.WriteString(`(allow file-write* (subpath "/var/folders"))` + "\n")
	b.WriteString(`(allow file-write* (literal "/dev/null"))` + "\n")
	b.WriteString(`(allow file-write* (subpath "/tmp/kode"))` + "\n")

	cwd, _ := os.Getwd()
	for _, raw := range normalizeAll(p.WriteAllow, cwd) {
		if isGlob(raw) {
			continue
		}
		fmt.Fprintf(b, "(allow file-write* (subpath %q))\n", raw)
	}
	for _, raw := range normalizeAll(p.WriteDenyWithinAllow, cwd) {
		if isGlob(raw) {
			continue
		}
		fmt.Fprintf(b, "(deny file-write-unlink (subpath %q))\n", raw)
	}
}

// globToSeatbeltRegex turns a doublestar glob pattern into the POSIX
// extended regex seatbelt's (regex #"...") expects. doublestar has no
// glob-to-regex conversion of its own; SplitPattern is used to separate the
// literal base directory (anchored verbatim) from the glob remainder
// (translated character by character), so the resulting regex only needs to
// express what's actually variable in the pattern.
func globToSeatbeltRegex(pattern string) string {
	base, rest := doublestar.SplitPattern(pattern)
	var b strings.Builder
	b.WriteString("^")
	b.WriteString(regexp.QuoteMeta(base))
	if base != "" && !strings.HasSuffix(base, "/") {
		b.WriteString("/")
	}

	runes := []rune(rest)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '.', '+', '(', ')', '^', '$', '|', '\\':
			b.WriteString(`\` + string(c))
		case '[':
			end := strings.IndexRune(string(runes[i:]), ']')
			if end == -1 {
				b.WriteString(`\[`)
				continue
			}
			b.WriteString(string(runes[i : i+end+1]))
			i += end
		default:
			b.WriteRune(c)
		}
	}
	b.WriteString("$")
	return b.String()
}
