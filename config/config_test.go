package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	if cfg.RPCAddress != "127.0.0.1:9332" || cfg.NetworkName != "cch-main" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.JournalDepth != 128 {
		t.Fatalf("unexpected journal depth: %d", cfg.JournalDepth)
	}
	if cfg.DataDir != filepath.Join(filepath.Dir(path), "data") {
		t.Fatalf("unexpected data dir: %s", cfg.DataDir)
	}
}

func TestLoadExistingFileFillsGaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `RPCAddress = "0.0.0.0:19332"
NetworkName = "cch-test"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != "0.0.0.0:19332" || cfg.NetworkName != "cch-test" {
		t.Fatalf("explicit values lost: %+v", cfg)
	}
	if cfg.MetricsAddress != "127.0.0.1:9333" || cfg.JournalDepth != 128 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestDataDirEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	t.Setenv(dataDirEnv, "/var/lib/cchlayer")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/var/lib/cchlayer" {
		t.Fatalf("env override ignored: %s", cfg.DataDir)
	}
}

func TestNegativeJournalDepthRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("JournalDepth = -5\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("negative journal depth accepted")
	}
}
