package shellexec

import (
	"github.com/kestrelcode/kestrel/internal/config"
	"github.com/kestrelcode/kestrel/internal/proxy"
	"github.com/kestrelcode/kestrel/internal/sandbox"
)

// BuildProfile derives a Sandbox Profile for one command from merged
// shell-sandbox settings, the caller's writable root (the project cwd, as
// a slice so callers with multiple permitted roots can extend it), and the
// Proxy Gateway's bound ports (0 if the gateway hasn't started yet — a
// network-restricted sandbox then has no proxy escape hatch at all, which
// is intentional rather than a bug: a command that needs the network
// forces the gateway to start first).
func BuildProfile(settings config.ShellSandboxSettings, writableRoots []string, gw *proxy.Gateway) *sandbox.Profile {
	opts := sandbox.Options{
		NetworkUnrestricted:  len(settings.Network.AllowedDomains) == 0 && len(settings.Network.DeniedDomains) == 0 && gw == nil,
		WriteAllow:           writableRoots,
		AllowedUnixSockets:   settings.Network.AllowUnixSockets,
		AllowLocalBinding:    settings.Network.AllowLocalBinding,
	}
	if gw != nil {
		opts.HTTPProxyPort = gw.HTTPPort()
		opts.SOCKSProxyPort = gw.SOCKSPort()
	}
	return sandbox.New(opts)
}

// ProxyPolicyFromSettings builds the Proxy Gateway's static allow/deny
// policy from the merged network settings.
func ProxyPolicyFromSettings(settings config.NetworkSettings) proxy.Policy {
	return proxy.Policy{
		Allow: settings.AllowedDomains,
		Deny:  settings.DeniedDomains,
	}
}
