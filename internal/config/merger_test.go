package config

import (
	"reflect"
	"testing"
)

func TestMergeSettings_ShellSandbox(t *testing.T) {
	base := &Settings{
		ShellSandbox: ShellSandboxSettings{
			Enabled:          true,
			ExcludedCommands: []string{"bwrap"},
			Network: NetworkSettings{
				AllowedDomains: []string{"github.com"},
			},
		},
	}
	overlay := &Settings{
		ShellSandbox: ShellSandboxSettings{
			AutoAllowBashIfSandboxed: true,
			ExcludedCommands:         []string{"sandbox-exec"},
			Network: NetworkSettings{
				AllowedDomains: []string{"npmjs.org"},
				DeniedDomains:  []string{"evil.example"},
			},
		},
	}

	got := MergeSettings(base, overlay)

	if !got.ShellSandbox.Enabled {
		t.Error("expected Enabled=true to survive from base")
	}
	if !got.ShellSandbox.AutoAllowBashIfSandboxed {
		t.Error("expected AutoAllowBashIfSandboxed=true from overlay")
	}

	wantExcluded := []string{"bwrap", "sandbox-exec"}
	if !reflect.DeepEqual(got.ShellSandbox.ExcludedCommands, wantExcluded) {
		t.Errorf("ExcludedCommands = %v, want %v", got.ShellSandbox.ExcludedCommands, wantExcluded)
	}

	wantAllowed := []string{"github.com", "npmjs.org"}
	if !reflect.DeepEqual(got.ShellSandbox.Network.AllowedDomains, wantAllowed) {
		t.Errorf("Network.AllowedDomains = %v, want %v", got.ShellSandbox.Network.AllowedDomains, wantAllowed)
	}

	wantDenied := []string{"evil.example"}
	if !reflect.DeepEqual(got.ShellSandbox.Network.DeniedDomains, wantDenied) {
		t.Errorf("Network.DeniedDomains = %v, want %v", got.ShellSandbox.Network.DeniedDomains, wantDenied)
	}
}

func TestMergeSettings_ShellSandboxEmptyOverlayKeepsBase(t *testing.T) {
	base := &Settings{
		ShellSandbox: ShellSandboxSettings{
			Enabled: true,
			Network: NetworkSettings{
				AllowLocalBinding: true,
			},
		},
	}
	overlay := &Settings{}

	got := MergeSettings(base, overlay)

	if !got.ShellSandbox.Enabled {
		t.Error("expected Enabled=true to survive an empty overlay")
	}
	if !got.ShellSandbox.Network.AllowLocalBinding {
		t.Error("expected AllowLocalBinding=true to survive an empty overlay")
	}
}
