package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultLeavesClusteringOffAndProcessorsEmpty(t *testing.T) {
	cfg := Default()
	if len(cfg.Cassandra.BootstrapHosts) != 0 {
		t.Fatalf("Default() set BootstrapHosts = %v, want none", cfg.Cassandra.BootstrapHosts)
	}
	if len(cfg.Processors) != 0 {
		t.Fatalf("Default() populated Processors, want empty map")
	}
	if cfg.Cassandra.RetryCount != 5 {
		t.Fatalf("Default() RetryCount = %d, want 5", cfg.Cassandra.RetryCount)
	}
}

func TestDurationStringUsesGoDurationSyntax(t *testing.T) {
	d := Duration(90 * time.Second)
	if got, want := d.String(), "1m30s"; got != want {
		t.Fatalf("Duration.String() = %q, want %q", got, want)
	}
}

func TestLoadReadsTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "psgcassd.toml")
	contents := `
[server]
bind = ":9000"
worker-loops = 8

[cassandra]
meta-keyspace = "mapping"
bootstrap-hosts = ["cass1:9042", "cass2:9042"]

[processors.osg]
enabled = true
max-concurrency = 16
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Bind != ":9000" || cfg.Server.WorkerLoops != 8 {
		t.Fatalf("Server section = %+v, want bind :9000 worker-loops 8", cfg.Server)
	}
	if cfg.Cassandra.MetaKeyspace != "mapping" {
		t.Fatalf("Cassandra.MetaKeyspace = %q, want %q", cfg.Cassandra.MetaKeyspace, "mapping")
	}
	if len(cfg.Cassandra.BootstrapHosts) != 2 {
		t.Fatalf("BootstrapHosts = %v, want 2 entries", cfg.Cassandra.BootstrapHosts)
	}
	p, ok := cfg.Processors["osg"]
	if !ok || !p.Enabled || p.MaxConcurrency != 16 {
		t.Fatalf("Processors[osg] = %+v, ok=%v, want enabled with max-concurrency 16", p, ok)
	}
}

func TestLoadWithEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Bind != Default().Server.Bind {
		t.Fatalf("Load(\"\") did not fall back to defaults: %+v", cfg.Server)
	}
}

func TestLoadEnvOverridesFileValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "psgcassd.toml")
	if err := os.WriteFile(path, []byte("[server]\nbind = \":2180\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("PSGCASS_SERVER_BIND", ":7777")

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Bind != ":7777" {
		t.Fatalf("Server.Bind = %q, want env override %q", cfg.Server.Bind, ":7777")
	}
}
