package directory

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"AgentVault/internal/access"
	xerrors "AgentVault/internal/errors"
	"AgentVault/internal/events"
)

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	reporter = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func newTestDirectory(t *testing.T, opts ...Option) *Directory {
	t.Helper()
	opts = append([]Option{WithAdmin(admin)}, opts...)
	d, err := New(context.Background(), NewMemoryStore(), opts...)
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}
	return d
}

func numbered(i int) common.Address {
	return common.BigToAddress(big.NewInt(int64(0x10000 + i)))
}

func register(t *testing.T, d *Directory, who common.Address, metadata string) Agent {
	t.Helper()
	a, err := d.Identities.Register(context.Background(), who, metadata)
	if err != nil {
		t.Fatalf("register %s: %v", who.Hex(), err)
	}
	return a
}

func TestRegisterDefaults(t *testing.T) {
	d := newTestDirectory(t)
	a := register(t, d, alice, `{"name":"alice"}`)
	if a.Reputation != InitialReputation || !a.Active || a.TransactionCount != 0 || a.SuccessfulCount != 0 {
		t.Fatalf("unexpected defaults %+v", a)
	}
	if a.Seq != 1 {
		t.Fatalf("unexpected seq %d", a.Seq)
	}

	if _, err := d.Identities.Register(context.Background(), alice, "again"); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected already registered, got %v", err)
	}
	if _, err := d.Identities.Register(context.Background(), bob, ""); !errors.Is(err, ErrMetadataRequired) {
		t.Fatalf("expected metadata required, got %v", err)
	}
	if _, err := d.Identities.Register(context.Background(), common.Address{}, "zero"); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestReputationSaturates(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()
	register(t, d, alice, "up")
	register(t, d, bob, "down")

	for i := 0; i < 60; i++ {
		if _, err := d.Reputation.Report(ctx, reporter, alice, true); err != nil {
			t.Fatalf("report success: %v", err)
		}
	}
	if score, _ := d.Reputation.Score(ctx, alice); score != MaxReputation {
		t.Fatalf("expected 1000 after 60 successes, got %d", score)
	}

	for i := 0; i < 30; i++ {
		if _, err := d.Reputation.Report(ctx, reporter, bob, false); err != nil {
			t.Fatalf("report failure: %v", err)
		}
	}
	agent, _ := d.Identities.Get(ctx, bob)
	if agent.Reputation != 0 {
		t.Fatalf("expected 0 after 30 failures, got %d", agent.Reputation)
	}
	if agent.TransactionCount != 30 || agent.SuccessfulCount != 0 {
		t.Fatalf("unexpected counters %+v", agent)
	}
}

func TestSuccessRate(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()
	register(t, d, alice, "rate")

	if rate, err := d.Reputation.SuccessRate(ctx, alice); err != nil || rate != 0 {
		t.Fatalf("expected 0 with no transactions, got %d %v", rate, err)
	}
	for _, outcome := range []bool{true, true, false, true, false} {
		if _, err := d.Reputation.Report(ctx, reporter, alice, outcome); err != nil {
			t.Fatalf("report: %v", err)
		}
	}
	rate, err := d.Reputation.SuccessRate(ctx, alice)
	if err != nil {
		t.Fatalf("success rate: %v", err)
	}
	if rate != 60 {
		t.Fatalf("expected 60, got %d", rate)
	}
	if score, _ := d.Reputation.Score(ctx, alice); score != 490 {
		t.Fatalf("expected 490, got %d", score)
	}
	if _, err := d.Reputation.SuccessRate(ctx, bob); !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("expected agent not found, got %v", err)
	}
}

func TestSuccessRateFloors(t *testing.T) {
	a := Agent{TransactionCount: 3, SuccessfulCount: 2}
	if a.SuccessRate() != 66 {
		t.Fatalf("expected 66, got %d", a.SuccessRate())
	}
}

func TestReportUnknownAgent(t *testing.T) {
	d := newTestDirectory(t)
	if _, err := d.Reputation.Report(context.Background(), reporter, alice, true); !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("expected agent not found, got %v", err)
	}
}

func TestGatedReporting(t *testing.T) {
	d := newTestDirectory(t, WithReporter(access.Reporter{
		Policy: access.ReportingGated,
		Authority: access.AuthorityFunc(func(context.Context) (common.Address, error) {
			return reporter, nil
		}),
	}))
	register(t, d, alice, "gated")

	if _, err := d.Reputation.Report(context.Background(), bob, alice, true); !errors.Is(err, access.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := d.Reputation.Report(context.Background(), reporter, alice, true); err != nil {
		t.Fatalf("authorized reporter: %v", err)
	}
}

func TestServiceRequiresAgent(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	if _, err := d.Services.Register(ctx, alice, "translate", uint256.NewInt(100), "EN to FR"); !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("expected agent not found, got %v", err)
	}
	register(t, d, alice, "translator")
	if _, err := d.Services.Register(ctx, alice, "translate", uint256.NewInt(100), "EN to FR"); err != nil {
		t.Fatalf("register service: %v", err)
	}
	svc, err := d.Services.Get(ctx, alice, "translate")
	if err != nil {
		t.Fatalf("get service: %v", err)
	}
	if !svc.Available || svc.Price.Uint64() != 100 || svc.Description != "EN to FR" {
		t.Fatalf("unexpected service %+v", svc)
	}
	if _, err := d.Services.Register(ctx, alice, "  ", nil, ""); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument for empty id, got %v", err)
	}
}

func TestServiceAvailability(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()
	register(t, d, alice, "a")
	register(t, d, bob, "b")
	if _, err := d.Services.Register(ctx, alice, "summarize", uint256.NewInt(5), "v1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := d.Services.SetAvailability(ctx, bob, "summarize", false); !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("bob must not reach alice's entry, got %v", err)
	}
	if err := d.Services.SetAvailability(ctx, alice, "summarize", false); err != nil {
		t.Fatalf("set availability: %v", err)
	}
	svc, _ := d.Services.Get(ctx, alice, "summarize")
	if svc.Available {
		t.Fatal("expected service to be unavailable")
	}

	if _, err := d.Services.Register(ctx, alice, "summarize", uint256.NewInt(7), "v2"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	svc, _ = d.Services.Get(ctx, alice, "summarize")
	if !svc.Available || svc.Description != "v2" || svc.Price.Uint64() != 7 {
		t.Fatalf("upsert must overwrite and re-enable: %+v", svc)
	}

	if _, err := d.Services.Register(ctx, alice, "classify", nil, ""); err != nil {
		t.Fatalf("register second: %v", err)
	}
	list, err := d.Services.List(ctx, alice)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ServiceID != "classify" || list[1].ServiceID != "summarize" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()
	register(t, d, alice, "M")

	if _, err := d.Identities.UpdateMetadata(ctx, alice, "M2"); err != nil {
		t.Fatalf("update: %v", err)
	}
	a, err := d.Identities.Get(ctx, alice)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.Metadata != "M2" {
		t.Fatalf("expected M2, got %q", a.Metadata)
	}
	if _, err := d.Identities.UpdateMetadata(ctx, bob, "x"); !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("expected agent not found, got %v", err)
	}
	if _, err := d.Identities.UpdateMetadata(ctx, alice, ""); !errors.Is(err, ErrMetadataRequired) {
		t.Fatalf("expected metadata required, got %v", err)
	}
}

func TestSetActiveStatusIsSelfOnly(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()
	register(t, d, alice, "a")
	register(t, d, bob, "b")

	if err := d.Identities.SetActiveStatus(ctx, bob, alice, false); !errors.Is(err, access.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := d.Identities.SetActiveStatus(ctx, reporter, reporter, false); !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("expected agent not found, got %v", err)
	}
	if err := d.Identities.SetActiveStatus(ctx, alice, alice, false); err != nil {
		t.Fatalf("set status: %v", err)
	}

	all, _ := d.Identities.All(ctx)
	active, _ := d.Identities.Active(ctx)
	if len(all) != 2 || all[0] != alice || all[1] != bob {
		t.Fatalf("unexpected all %v", all)
	}
	if len(active) != 1 || active[0] != bob {
		t.Fatalf("unexpected active %v", active)
	}
	if n, _ := d.Identities.Count(ctx, true); n != 1 {
		t.Fatalf("unexpected active count %d", n)
	}
}

func TestPage(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		register(t, d, numbered(i), fmt.Sprintf("agent-%d", i))
	}
	page, err := d.Identities.Page(ctx, WithOffset(1), WithLimit(2))
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page) != 2 || page[0].Metadata != "agent-2" || page[1].Metadata != "agent-3" {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestTransferAdmin(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	if err := d.Identities.TransferAdmin(ctx, alice, bob); !errors.Is(err, access.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := d.Identities.TransferAdmin(ctx, admin, common.Address{}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if err := d.Identities.TransferAdmin(ctx, admin, bob); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if current, _ := d.Identities.Admin(ctx); current != bob {
		t.Fatalf("unexpected admin %s", current.Hex())
	}
	if err := d.Identities.TransferAdmin(ctx, admin, alice); !errors.Is(err, access.ErrUnauthorized) {
		t.Fatalf("old admin must lose the role, got %v", err)
	}
}

func TestConcurrentRegisterHasOneWinner(t *testing.T) {
	d := newTestDirectory(t)
	var wg sync.WaitGroup
	results := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Identities.Register(context.Background(), alice, "race")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		if !errors.Is(err, ErrAlreadyRegistered) {
			t.Fatalf("unexpected error %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected one winner, got %d", wins)
	}
}

func TestSnapshotNeverTorn(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 200; i++ {
			_, _ = d.Identities.Register(ctx, numbered(1000 + i), "x")
		}
	}()
	for {
		select {
		case <-done:
			return
		default:
		}
		all, err := d.Identities.All(ctx)
		if err != nil {
			t.Fatalf("all: %v", err)
		}
		n, _ := d.Identities.Count(ctx, false)
		if uint64(len(all)) > n {
			t.Fatalf("snapshot larger than committed count: %d > %d", len(all), n)
		}
	}
}

func TestEventsFollowCommits(t *testing.T) {
	sink := events.NewMemorySink(8)
	d := newTestDirectory(t, WithEmitter(events.NewPublisher(sink)))
	ctx := context.Background()
	register(t, d, alice, "a")
	_, _ = d.Identities.Register(ctx, alice, "dup")
	_ = d.Identities.SetActiveStatus(ctx, alice, alice, false)

	got := sink.Drain()
	if len(got) != 2 || got[0].Kind != events.KindAgentRegistered || got[1].Kind != events.KindAgentStatusChanged {
		t.Fatalf("unexpected events %+v", got)
	}
	if got[1].Attributes["active"] != "false" {
		t.Fatalf("unexpected attributes %v", got[1].Attributes)
	}
}

type viewCounter struct {
	*MemoryStore
	views int
}

func (s *viewCounter) View(ctx context.Context, fn func(tx ReadTx) error) error {
	s.views++
	return s.MemoryStore.View(ctx, fn)
}

func TestPageWithTotalReadsOneSnapshot(t *testing.T) {
	ctx := context.Background()
	store := &viewCounter{MemoryStore: NewMemoryStore()}
	d, err := New(ctx, store, WithAdmin(admin))
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}
	for i := 1; i <= 5; i++ {
		register(t, d, numbered(i), fmt.Sprintf("agent-%d", i))
	}
	if err := d.Identities.SetActiveStatus(ctx, numbered(2), numbered(2), false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	store.views = 0
	agents, total, err := d.Identities.PageWithTotal(ctx, WithActiveOnly(true), WithLimit(2))
	if err != nil {
		t.Fatalf("page with total: %v", err)
	}
	if store.views != 1 {
		t.Fatalf("expected a single snapshot, got %d views", store.views)
	}
	if total != 4 || len(agents) != 2 || agents[0].Metadata != "agent-1" || agents[1].Metadata != "agent-3" {
		t.Fatalf("unexpected page total=%d agents=%+v", total, agents)
	}
}

func TestServiceFieldBounds(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()
	register(t, d, alice, "alice")

	_, err := d.Services.Register(ctx, alice, strings.Repeat("s", MaxServiceIDLength+1), uint256.NewInt(1), "")
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument for service id, got %v", err)
	}
	_, err = d.Services.Register(ctx, alice, "ocr", uint256.NewInt(1), strings.Repeat("d", MaxDescriptionLength+1))
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument for description, got %v", err)
	}

	id := strings.Repeat("服", MaxServiceIDLength)
	if _, err := d.Services.Register(ctx, alice, id, uint256.NewInt(1), "ok"); err != nil {
		t.Fatalf("service id at the character bound rejected: %v", err)
	}
	if _, err := d.Services.Get(ctx, alice, id); err != nil {
		t.Fatalf("get: %v", err)
	}
}
