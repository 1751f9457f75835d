package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"AgentVault/internal/api"
	"AgentVault/internal/directory"
	"AgentVault/internal/ledger"
)

var (
	controller = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	payee      = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func newTestAPI(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	l, err := ledger.New(ctx, ledger.NewMemoryStore(), ledger.WithController(controller))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if _, err := l.Executions.Deposit(ctx, controller, ledger.NativeAsset, uint256.NewInt(1_000_000_000_000_000_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	d, err := directory.New(ctx, directory.NewMemoryStore(), directory.WithAdmin(controller))
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}
	srv, err := api.NewServer(api.Options{Ledger: l, Directory: d})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDecisionLogAndExecute(t *testing.T) {
	url := newTestAPI(t)
	dir := t.TempDir()
	proof := filepath.Join(dir, "decision.json")
	if err := os.WriteFile(proof, []byte(`{"action":"pay"}`), 0o644); err != nil {
		t.Fatalf("write proof: %v", err)
	}
	fingerprint := crypto.Keccak256Hash([]byte(`{"action":"pay"}`)).Hex()

	out, err := execute(t, "decision", "fingerprint", proof)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if strings.TrimSpace(out) != fingerprint {
		t.Fatalf("unexpected fingerprint %q", out)
	}

	out, err = execute(t, "--url", url, "--address", controller.Hex(), "decision", "log", "--file", proof, "--proof", "ipfs://proof")
	if err != nil {
		t.Fatalf("decision log: %v", err)
	}
	var decision api.DecisionResponse
	if err := json.Unmarshal([]byte(out), &decision); err != nil {
		t.Fatalf("decode decision %q: %v", out, err)
	}
	if decision.Fingerprint != fingerprint || decision.State != "logged" {
		t.Fatalf("unexpected decision %+v", decision)
	}

	out, err = execute(t, "--url", url, "--address", controller.Hex(),
		"execute", fingerprint, "--payee", payee.Hex(), "--amount", "0.05", "--category", "compute")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var receipt api.ReceiptResponse
	if err := json.Unmarshal([]byte(out), &receipt); err != nil {
		t.Fatalf("decode receipt %q: %v", out, err)
	}
	if receipt.Record.Amount != "50000000000000000" || receipt.Record.Category != "compute" {
		t.Fatalf("unexpected record %+v", receipt.Record)
	}

	if _, err := execute(t, "--url", url, "--address", controller.Hex(),
		"execute", fingerprint, "--payee", payee.Hex(), "--amount", "0.01"); err == nil {
		t.Fatal("expected second execution to fail")
	}
}

func TestAgentCommands(t *testing.T) {
	url := newTestAPI(t)
	agent := common.HexToAddress("0x00000000000000000000000000000000000000a1")

	if _, err := execute(t, "--url", url, "--address", agent.Hex(), "agent", "register", "ipfs://meta"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := execute(t, "--url", url, "--address", controller.Hex(), "agent", "report", agent.Hex()); err != nil {
		t.Fatalf("report: %v", err)
	}
	out, err := execute(t, "--url", url, "--address", controller.Hex(), "agent", "get", agent.Hex())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var profile api.AgentResponse
	if err := json.Unmarshal([]byte(out), &profile); err != nil {
		t.Fatalf("decode agent %q: %v", out, err)
	}
	if profile.TransactionCount != 1 || profile.SuccessfulCount != 1 {
		t.Fatalf("unexpected counters %+v", profile)
	}
}

func TestParseHelpers(t *testing.T) {
	if _, err := parseFingerprint("0x1234"); err == nil {
		t.Fatal("expected short fingerprint to be rejected")
	}
	amount, err := parseAmount("1.5", 6, false)
	if err != nil {
		t.Fatalf("parse amount: %v", err)
	}
	if amount.Uint64() != 1_500_000 {
		t.Fatalf("unexpected amount %s", amount)
	}
	raw, err := parseAmount("42", 18, true)
	if err != nil || raw.Uint64() != 42 {
		t.Fatalf("unexpected base amount %v %v", raw, err)
	}
	asset, err := parseAsset("")
	if err != nil || asset != (common.Address{}) {
		t.Fatalf("empty asset should be native, got %s %v", asset.Hex(), err)
	}
	if _, err := parseAddress("--payee", "nope"); err == nil {
		t.Fatal("expected invalid address to be rejected")
	}
}
