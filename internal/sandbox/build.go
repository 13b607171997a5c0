package sandbox

// New builds a Profile from the merged shell-sandbox settings plus the
// caller's writable roots and the Proxy Gateway's bound ports (0 if the
// gateway hasn't been started for this command).
func New(opts Options) *Profile {
	return &Profile{
		NeedsNetworkRestriction: !opts.NetworkUnrestricted,
		ReadDeny:                opts.ReadDeny,
		WriteAllow:              opts.WriteAllow,
		WriteDenyWithinAllow:    opts.WriteDenyWithinAllow,
		AllowedUnixSockets:      opts.AllowedUnixSockets,
		AllowLocalBinding:       opts.AllowLocalBinding,
		HTTPProxyPort:           opts.HTTPProxyPort,
		SOCKSProxyPort:          opts.SOCKSProxyPort,
	}
}

// Options collects everything New needs, kept separate from config.Settings
// so this package never imports internal/config (profile building is pure
// data shaping; the caller resolves settings + proxy ports beforehand).
type Options struct {
	NetworkUnrestricted  bool
	ReadDeny             []string
	WriteAllow           []string
	WriteDenyWithinAllow []string
	AllowedUnixSockets   []string
	AllowLocalBinding    bool
	HTTPProxyPort        int
	SOCKSProxyPort       int
}
