package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	path := writeFile(t, "agentvault.yaml", `
ledger:
  controller: "0x00000000000000000000000000000000000000c1"
  token_limits:
    - asset: "0x00000000000000000000000000000000000000d1"
      limit: "250.5"
      decimals: 6
storage:
  driver: sqlite
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":8080" || cfg.Auth.Mode != "header" {
		t.Fatalf("server defaults not applied: %+v %+v", cfg.Server, cfg.Auth)
	}
	if cfg.Storage.DSN != filepath.Join(filepath.Dir(path), "data", "agentvault.db") {
		t.Fatalf("unexpected sqlite dsn %s", cfg.Storage.DSN)
	}
	limit, err := cfg.Ledger.NativeLimit()
	if err != nil {
		t.Fatalf("native limit: %v", err)
	}
	if limit.Uint64() != 100_000_000_000_000_000 {
		t.Fatalf("unexpected native limit %s", limit.Dec())
	}
	tokens, err := cfg.Ledger.Tokens()
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	if len(tokens) != 1 || tokens[0].Limit.Uint64() != 250_500_000 {
		t.Fatalf("unexpected tokens %+v", tokens)
	}
	if cfg.AdminAddress() != common.HexToAddress("0x00000000000000000000000000000000000000c1") {
		t.Fatalf("admin should fall back to controller, got %s", cfg.AdminAddress().Hex())
	}
	if !cfg.MetricsEnabled() || len(cfg.Events.Sinks) != 1 || cfg.Events.Sinks[0] != "log" {
		t.Fatalf("unexpected metrics/events defaults: %+v", cfg.Events)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "agentvault.json", `{"server":{"address":":9090"},"directory":{"reputation_reporting":"gated"},"metrics":{"enabled":false}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":9090" || cfg.Directory.ReputationReporting != "gated" || cfg.MetricsEnabled() {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	path := writeFile(t, "bad.yaml", `
storage:
  driver: postgres
ledger:
  controller: "nope"
  default_native_limit: "-1"
events:
  sinks: [redis]
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"storage.driver", "ledger.controller", "default_native_limit", "events.redis.address"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv(EnvPath, "")
	if PathFromEnv() != DefaultPath {
		t.Fatalf("unexpected default path %s", PathFromEnv())
	}
	t.Setenv(EnvPath, "/etc/agentvault.yaml")
	if PathFromEnv() != "/etc/agentvault.yaml" {
		t.Fatalf("unexpected env path %s", PathFromEnv())
	}
}

func TestShippedConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "agentvault.yaml"))
	if err != nil {
		t.Fatalf("load shipped config: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || !strings.HasSuffix(cfg.Storage.DSN, "agentvault.db") {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
	if cfg.AdminAddress() != cfg.Ledger.ControllerAddress() {
		t.Fatalf("admin should fall back to the controller, got %s", cfg.AdminAddress().Hex())
	}
	deposit, err := cfg.Ledger.Deposit()
	if err != nil || deposit == nil || deposit.IsZero() {
		t.Fatalf("unexpected initial deposit %v %v", deposit, err)
	}
}
