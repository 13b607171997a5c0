package proxy

import (
	"fmt"
	"strings"
)

// Env returns the environment variables a sandboxed command should inherit
// once the Proxy Gateway has bound its ports, per spec §4.5: HTTP_PROXY/
// HTTPS_PROXY point at the HTTP CONNECT listener, ALL_PROXY at the SOCKS5
// listener via socks5h (so DNS resolution also happens through the proxy),
// NO_PROXY carries loopback plus the private CIDRs so local traffic never
// round-trips through the gateway, and a handful of tool-specific
// equivalents (git SSH, gRPC, cloud SDKs, rsync, docker) get the same
// coordinates under the names those tools actually read.
func (g *Gateway) Env() map[string]string {
	httpAddr := fmt.Sprintf("http://127.0.0.1:%d", g.httpPort)
	socksAddr := fmt.Sprintf("socks5h://127.0.0.1:%d", g.socksPort)
	noProxy := strings.Join(append([]string{"localhost", "127.0.0.1", "::1"}, NoProxyCIDRs()...), ",")

	return map[string]string{
		"HTTP_PROXY":  httpAddr,
		"HTTPS_PROXY": httpAddr,
		"ALL_PROXY":   socksAddr,
		"NO_PROXY":    noProxy,
		"http_proxy":  httpAddr,
		"https_proxy": httpAddr,
		"all_proxy":   socksAddr,
		"no_proxy":    noProxy,

		// Git over SSH has no HTTP(S)_PROXY equivalent; route it through
		// the SOCKS5 listener via a connect-proxy ProxyCommand.
		"GIT_SSH_COMMAND": fmt.Sprintf(
			"ssh -o ProxyCommand='nc -X 5 -x 127.0.0.1:%d %%h %%p'", g.socksPort,
		),

		// gRPC's own proxy resolver reads these two directly.
		"GRPC_PROXY":      httpAddr,
		"grpc_proxy":      httpAddr,

		// Cloud SDKs (AWS/GCP/Azure CLIs) honor the standard HTTPS_PROXY
		// plus these vendor-specific overrides some tool versions prefer.
		"AWS_HTTPS_PROXY": httpAddr,
		"CLOUDSDK_PROXY":  httpAddr,

		"RSYNC_PROXY": fmt.Sprintf("127.0.0.1:%d", g.httpPort),

		// Docker CLI reads these from the environment when building/pulling.
		"DOCKER_HTTP_PROXY":  httpAddr,
		"DOCKER_HTTPS_PROXY": httpAddr,
		"DOCKER_NO_PROXY":    noProxy,
	}
}
