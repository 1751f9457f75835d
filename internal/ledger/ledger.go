// Package ledger implements the decision-gated vault: decisions are logged
// once, executed once by the controller, and every spend is checked against a
// per-asset limit before funds leave the pool.
package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	xerrors "AgentVault/internal/errors"
	"AgentVault/internal/events"
	"AgentVault/pkg/logger"
)

// Observer is notified after every operation with its outcome.
type Observer func(operation string, err error)

type settings struct {
	controller  common.Address
	nativeLimit *uint256.Int
	tokenLimits map[common.Address]*uint256.Int
	deposit     *uint256.Int
	emitter     events.Emitter
	observer    Observer
	clock       func() time.Time
}

// Option configures a Ledger.
type Option func(*settings)

// WithController sets the controller used when the store holds no state yet.
func WithController(addr common.Address) Option {
	return func(s *settings) { s.controller = addr }
}

// WithNativeLimit overrides the initial native asset limit.
func WithNativeLimit(limit *uint256.Int) Option {
	return func(s *settings) { s.nativeLimit = limit }
}

// WithTokenLimit seeds the limit of a token asset if none is stored.
func WithTokenLimit(asset common.Address, limit *uint256.Int) Option {
	return func(s *settings) {
		if s.tokenLimits == nil {
			s.tokenLimits = make(map[common.Address]*uint256.Int)
		}
		s.tokenLimits[asset] = limit
	}
}

// WithInitialDeposit funds the native pool when the store holds no vault yet.
// Restarts against an existing vault never apply it again.
func WithInitialDeposit(amount *uint256.Int) Option {
	return func(s *settings) { s.deposit = amount }
}

// WithEmitter sets where committed state changes are announced.
func WithEmitter(e events.Emitter) Option {
	return func(s *settings) { s.emitter = e }
}

// WithObserver registers an operation observer, typically a metrics counter.
func WithObserver(o Observer) Option {
	return func(s *settings) { s.observer = o }
}

// WithClock replaces the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *settings) { s.clock = clock }
}

type core struct {
	store    Store
	emitter  events.Emitter
	observer Observer
	clock    func() time.Time
	log      *slog.Logger
}

func (c *core) now() time.Time {
	return c.clock().UTC().Truncate(time.Millisecond)
}

func (c *core) observe(operation string, err *error) {
	if c.observer != nil {
		c.observer(operation, *err)
	}
	if *err != nil && xerrors.CategoryOf(*err) == xerrors.CategoryInternal {
		c.log.Error("operation failed", slog.String("operation", operation), slog.Any("error", *err))
	}
}

func (c *core) emit(ctx context.Context, evts ...events.Event) {
	c.emitter.Emit(ctx, evts...)
}

// Ledger groups the three components that share one vault store.
type Ledger struct {
	Decisions  *DecisionLedger
	Guard      *SpendingGuard
	Executions *ExecutionController
}

// New wires the components on top of store. The first call against an empty
// store installs the controller and the initial limits.
func New(ctx context.Context, store Store, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "ledger store is nil")
	}
	cfg := settings{
		nativeLimit: uint256.NewInt(DefaultNativeLimit),
		emitter:     events.Nop{},
		clock:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.emitter == nil {
		cfg.emitter = events.Nop{}
	}
	if cfg.nativeLimit == nil {
		cfg.nativeLimit = uint256.NewInt(DefaultNativeLimit)
	}

	c := &core{
		store:    store,
		emitter:  cfg.emitter,
		observer: cfg.observer,
		clock:    cfg.clock,
		log:      logger.Named("ledger"),
	}
	funded, err := bootstrap(ctx, store, cfg)
	if err != nil {
		return nil, err
	}
	if funded != nil {
		logger.Audit().Info("vault deposited",
			slog.String("asset", NativeAsset.Hex()),
			slog.String("amount", funded.Dec()),
			slog.String("from", cfg.controller.Hex()))
		c.emit(ctx, events.New(events.KindVaultDeposited, NativeAsset.Hex(), map[string]string{
			"amount":  funded.Dec(),
			"from":    cfg.controller.Hex(),
			"balance": funded.Dec(),
		}))
	}
	return &Ledger{
		Decisions:  &DecisionLedger{core: c},
		Guard:      &SpendingGuard{core: c},
		Executions: &ExecutionController{core: c},
	}, nil
}

// bootstrap 在空库上写入控制者与初始资金，返回本次注入的金额。
func bootstrap(ctx context.Context, store Store, cfg settings) (funded *uint256.Int, err error) {
	err = store.Atomic(ctx, func(tx Tx) error {
		funded = nil
		_, ok, err := tx.Control()
		if err != nil {
			return err
		}
		if !ok {
			if cfg.controller == (common.Address{}) {
				return xerrors.New(xerrors.CodeInitializationFailure, "controller address is required for a new vault")
			}
			if err := tx.PutControl(Control{Controller: cfg.controller}); err != nil {
				return err
			}
			if cfg.deposit != nil && !cfg.deposit.IsZero() {
				current, err := tx.Balance(NativeAsset)
				if err != nil {
					return err
				}
				if err := tx.PutBalance(NativeAsset, saturatingAdd(&current, cfg.deposit)); err != nil {
					return err
				}
				funded = cfg.deposit
			}
		}
		seed := map[common.Address]*uint256.Int{NativeAsset: cfg.nativeLimit}
		for asset, limit := range cfg.tokenLimits {
			if asset != NativeAsset && limit != nil {
				seed[asset] = limit
			}
		}
		for asset, limit := range seed {
			_, exists, err := tx.SpendingLimit(asset)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			if err := tx.PutSpendingLimit(SpendingLimit{Asset: asset, Limit: *limit}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return funded, nil
}

func limitFor(tx ReadTx, asset common.Address) (SpendingLimit, error) {
	l, ok, err := tx.SpendingLimit(asset)
	if err != nil {
		return SpendingLimit{}, err
	}
	if !ok {
		return SpendingLimit{Asset: asset}, nil
	}
	return l, nil
}

func control(tx ReadTx) (Control, error) {
	c, ok, err := tx.Control()
	if err != nil {
		return Control{}, err
	}
	if !ok {
		return Control{}, xerrors.New(xerrors.CodeInitializationFailure, "vault control state missing")
	}
	return c, nil
}

func amountOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
