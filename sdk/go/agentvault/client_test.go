package agentvault

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"AgentVault/internal/api"
	"AgentVault/internal/auth"
	"AgentVault/internal/directory"
	"AgentVault/internal/ledger"
)

func newVault(t *testing.T, controller common.Address) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	l, err := ledger.New(ctx, ledger.NewMemoryStore(), ledger.WithController(controller))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	d, err := directory.New(ctx, directory.NewMemoryStore(), directory.WithAdmin(controller))
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}
	verifier, err := auth.NewVerifier(auth.Config{Mode: auth.ModeSignature})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	srv, err := api.NewServer(api.Options{Ledger: l, Directory: d, Verifier: verifier})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestSignedRoundTrip(t *testing.T) {
	ctx := context.Background()
	controllerKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	agentKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	ts := newVault(t, crypto.PubkeyToAddress(controllerKey.PublicKey))

	ctrl, err := NewClient(ts.URL, WithKey(controllerKey), WithHTTPClient(ts.Client()))
	if err != nil {
		t.Fatalf("controller client: %v", err)
	}
	agent, err := NewClient(ts.URL, WithKey(agentKey), WithHTTPClient(ts.Client()))
	if err != nil {
		t.Fatalf("agent client: %v", err)
	}

	if _, err := ctrl.Deposit(ctx, ledger.NativeAsset, uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	fp := crypto.Keccak256Hash([]byte("rebalance"))
	if _, err := agent.LogDecision(ctx, fp, "ipfs://rebalance"); err != nil {
		t.Fatalf("log: %v", err)
	}
	_, err = agent.LogDecision(ctx, fp, "ipfs://again")
	if !errors.Is(err, ledger.ErrDuplicateDecision) {
		t.Fatalf("expected duplicate decision, got %v", err)
	}

	payee := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	receipt, err := ctrl.Execute(ctx, fp, payee, ledger.NativeAsset, uint256.NewInt(500), "ops")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if receipt.Record.Amount != "500" || receipt.Record.Category != "ops" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	history, err := agent.History(ctx, 10, 0, true)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if history.Total != 1 {
		t.Fatalf("unexpected history %+v", history)
	}

	if _, err := agent.RegisterAgent(ctx, `{"name":"scout"}`); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := agent.RegisterService(ctx, "quote", uint256.NewInt(9), "price quote"); err != nil {
		t.Fatalf("register service: %v", err)
	}
	services, err := ctrl.Services(ctx, agent.Address())
	if err != nil {
		t.Fatalf("services: %v", err)
	}
	if len(services) != 1 || services[0].Price != "9" {
		t.Fatalf("unexpected services %+v", services)
	}
	got, err := ctrl.Report(ctx, agent.Address(), true)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if got.Reputation != 510 || got.SuccessRate != 100 {
		t.Fatalf("unexpected agent %+v", got)
	}
}

func TestUnsignedClientIsRejectedInSignatureMode(t *testing.T) {
	ts := newVault(t, common.HexToAddress("0x00000000000000000000000000000000000000c1"))
	client, err := NewClient(ts.URL, WithAddress(common.HexToAddress("0x00000000000000000000000000000000000000c1")), WithHTTPClient(ts.Client()))
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	_, err = client.Vault(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 401 || apiErr.Code != string(auth.CodeUnauthenticated) {
		t.Fatalf("expected 401 unauthenticated, got %v", err)
	}
}
