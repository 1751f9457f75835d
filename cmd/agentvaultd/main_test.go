package main

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"AgentVault/internal/config"
	"AgentVault/internal/events"
	"AgentVault/internal/ledger"
)

type closeCounter struct {
	closed int
}

func (c *closeCounter) Publish(context.Context, events.Event) error { return nil }

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func TestBuildSinkClosesBuiltSinksOnFailure(t *testing.T) {
	built := &closeCounter{}
	saved := sinkFactories
	t.Cleanup(func() { sinkFactories = saved })
	sinkFactories = map[string]sinkFactory{
		"first": func(context.Context, config.EventsConfig) (events.Sink, error) { return built, nil },
		"broken": func(context.Context, config.EventsConfig) (events.Sink, error) {
			return nil, errors.New("dial refused")
		},
	}

	_, err := buildSink(context.Background(), config.EventsConfig{Sinks: []string{"first", "broken"}})
	if err == nil {
		t.Fatal("expected construction error")
	}
	if built.closed != 1 {
		t.Fatalf("expected the built sink to be closed once, got %d", built.closed)
	}
}

func TestBuildSinkRejectsUnknownName(t *testing.T) {
	if _, err := buildSink(context.Background(), config.EventsConfig{Sinks: []string{"kafka"}}); err == nil {
		t.Fatal("expected unknown sink error")
	}
	sink, err := buildSink(context.Background(), config.EventsConfig{Sinks: []string{"none"}})
	if err != nil || sink != nil {
		t.Fatalf("expected no sink for none, got %v %v", sink, err)
	}
}

func TestBuildLedgerDoesNotRefundDrainedVault(t *testing.T) {
	ctx := context.Background()
	controller := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	cfg := &config.Config{Ledger: config.LedgerConfig{
		Controller:         controller.Hex(),
		DefaultNativeLimit: "0.1",
		InitialDeposit:     "10",
	}}
	store := ledger.NewMemoryStore()

	l, err := buildLedger(ctx, cfg, store, events.Nop{})
	if err != nil {
		t.Fatalf("build ledger: %v", err)
	}
	balance, err := l.Executions.Balance(ctx, ledger.NativeAsset)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.IsZero() {
		t.Fatal("expected the initial deposit on first start")
	}
	if _, err := l.Executions.Withdraw(ctx, controller, ledger.NativeAsset, &balance); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	l, err = buildLedger(ctx, cfg, store, events.Nop{})
	if err != nil {
		t.Fatalf("rebuild ledger: %v", err)
	}
	balance, err = l.Executions.Balance(ctx, ledger.NativeAsset)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.IsZero() {
		t.Fatalf("restart refunded the vault: %s", balance.Dec())
	}
}
