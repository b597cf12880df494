package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
  "backends": {
    "openai": {"api_key": "sk-test"}
  },
  "council": {"approval_threshold": 0.75},
  "web3": {"enabled": true, "rpc_url": "http://localhost:8545"}
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected server address %s", cfg.Server.Address)
	}
	if cfg.Storage.ReviewStore.Driver != "memory" || cfg.Queue.Driver != "memory" {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.Council.ApprovalThreshold != 0.75 {
		t.Fatalf("expected explicit threshold kept, got %f", cfg.Council.ApprovalThreshold)
	}
	if cfg.Council.CallTimeoutSeconds != 60 || cfg.Council.SessionTimeoutSeconds != 300 {
		t.Fatalf("unexpected council timeouts: %+v", cfg.Council)
	}
	if cfg.Council.Workers != 4 || cfg.Council.MaxRetries != 3 {
		t.Fatalf("unexpected council worker defaults: %+v", cfg.Council)
	}
	if cfg.Backends.OpenAI.APIKey != "sk-test" {
		t.Fatalf("unexpected openai key: %s", cfg.Backends.OpenAI.APIKey)
	}
	if !cfg.Web3.Enabled || cfg.Web3.RPCURL != "http://localhost:8545" {
		t.Fatalf("unexpected web3 config: %+v", cfg.Web3)
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("unexpected data dir: %s", cfg.Runtime.DataDir)
	}
}

func TestLoadRejectsInvalidThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"council": {"approval_threshold": 1.5}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Council.ApprovalThreshold != 0.5 {
		t.Fatalf("expected out-of-range threshold reset to 0.5, got %f", cfg.Council.ApprovalThreshold)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
