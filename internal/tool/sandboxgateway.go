package tool

import (
	"context"
	"sync"

	"github.com/kestrelcode/kestrel/internal/config"
	"github.com/kestrelcode/kestrel/internal/log"
	"github.com/kestrelcode/kestrel/internal/proxy"
	"github.com/kestrelcode/kestrel/internal/sandbox"
	"github.com/kestrelcode/kestrel/internal/shellexec"
)

// gatewayOnce lazily starts the process-wide Proxy Gateway the first time a
// sandboxed command needs network access, per spec §5 ("the Proxy Gateway
// is process-wide and bound once per process lifetime; it is started on
// demand").
var (
	gatewayOnce sync.Once
	gateway     *proxy.Gateway
)

// sandboxEnabledForCommand reports whether settings ask for this command to
// run under the Sandbox Profile Builder, honoring excludedCommands.
func sandboxEnabledForCommand(settings *config.Settings, command string) bool {
	if !settings.ShellSandbox.Enabled {
		return false
	}
	for _, excluded := range settings.ShellSandbox.ExcludedCommands {
		if excluded != "" && len(command) >= len(excluded) && command[:len(excluded)] == excluded {
			return false
		}
	}
	return true
}

// resolveSandboxProfile builds the Sandbox Profile for one command from
// loaded settings, starting the process-wide Proxy Gateway on first use if
// the command isn't network-unrestricted. Returns (nil, false, nil) when
// sandboxing isn't requested for this command at all. env is non-nil only
// when a Proxy Gateway is live for this command, and carries the
// HTTP_PROXY/HTTPS_PROXY/ALL_PROXY/NO_PROXY family the sandboxed process
// should inherit.
func resolveSandboxProfile(cwd, command string, askNetwork proxy.PermissionFunc) (profile *sandbox.Profile, required bool, env map[string]string) {
	settings, loadErr := config.Load()
	if loadErr != nil || settings == nil {
		return nil, false, nil
	}
	if !sandboxEnabledForCommand(settings, command) {
		return nil, false, nil
	}

	needsNetwork := len(settings.ShellSandbox.Network.AllowedDomains) > 0 ||
		len(settings.ShellSandbox.Network.DeniedDomains) > 0

	var gw *proxy.Gateway
	if needsNetwork {
		gatewayOnce.Do(func() {
			g := proxy.New(shellexec.ProxyPolicyFromSettings(settings.ShellSandbox.Network), askNetwork, settings.ShellSandbox.Network.AllowLocalBinding)
			if startErr := g.Start(context.Background()); startErr != nil {
				log.Logger().Sugar().Warnf("sandbox: proxy gateway failed to start: %v", startErr)
				return
			}
			gateway = g
		})
		gw = gateway
	}

	p := shellexec.BuildProfile(settings.ShellSandbox, []string{cwd}, gw)
	if gw != nil {
		env = gw.Env()
	}
	return p, !settings.ShellSandbox.AllowUnsandboxedCommands, env
}
