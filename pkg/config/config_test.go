package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"

	"solidus/internal/testutil"
)

// chdirRepoRoot returns to the module root from pkg/config, where Load's relative
// "cmd/config" and "config" search paths are resolved from.
func chdirRepoRoot(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	if err := os.Chdir("../.."); err != nil {
		t.Fatalf("chdir to repo root: %v", err)
	}
}

func TestLoadDefault(t *testing.T) {
	viper.Reset()
	chdirRepoRoot(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.ChainID != 963 {
		t.Fatalf("expected default chain_id 963, got %d", cfg.Network.ChainID)
	}
	if cfg.RPC.Enabled {
		t.Fatal("expected rpc disabled by default")
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected default logging level info, got %s", cfg.Logging.Level)
	}
}

func TestLoadEnvOverlay(t *testing.T) {
	viper.Reset()
	chdirRepoRoot(t)

	cfg, err := Load("dev")
	if err != nil {
		t.Fatalf("Load(dev): %v", err)
	}
	if !cfg.RPC.Enabled {
		t.Fatal("expected dev overlay to enable rpc")
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected dev overlay logging level debug, got %s", cfg.Logging.Level)
	}
	// Values the overlay doesn't touch fall through from default.yaml.
	if cfg.Network.ChainID != 963 {
		t.Fatalf("expected chain_id to remain 963, got %d", cfg.Network.ChainID)
	}
}

func TestLoadSandboxedConfig(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	data := []byte("network:\n  chain_id: 7\nrpc:\n  enabled: true\n")
	if err := sb.WriteFile("cmd/config/default.yaml", data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()
	if err := os.Chdir(sb.Root); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.ChainID != 7 {
		t.Fatalf("expected sandboxed chain_id 7, got %d", cfg.Network.ChainID)
	}
	if !cfg.RPC.Enabled {
		t.Fatal("expected sandboxed rpc enabled")
	}
}
