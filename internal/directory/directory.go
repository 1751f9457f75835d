// Package directory 维护代理身份、信誉分与服务目录。
package directory

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"AgentVault/internal/access"
	xerrors "AgentVault/internal/errors"
	"AgentVault/internal/events"
	"AgentVault/pkg/logger"
)

// Observer 在每次操作结束后收到结果。
type Observer func(operation string, err error)

type settings struct {
	admin    common.Address
	reporter access.Reporter
	emitter  events.Emitter
	observer Observer
	clock    func() time.Time
}

// Option 配置 Directory。
type Option func(*settings)

// WithAdmin 设置空存储初始化时使用的目录管理员。
func WithAdmin(admin common.Address) Option {
	return func(s *settings) { s.admin = admin }
}

// WithReporter 设置信誉上报策略。
func WithReporter(r access.Reporter) Option {
	return func(s *settings) { s.reporter = r }
}

// WithEmitter 设置状态变更的通知目标。
func WithEmitter(e events.Emitter) Option {
	return func(s *settings) { s.emitter = e }
}

// WithObserver 注册操作观察者。
func WithObserver(o Observer) Option {
	return func(s *settings) { s.observer = o }
}

// WithClock 替换时间源。
func WithClock(clock func() time.Time) Option {
	return func(s *settings) { s.clock = clock }
}

type core struct {
	store    Store
	reporter access.Reporter
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

// Directory 组合共享同一存储的三个组件。
type Directory struct {
	Identities *IdentityLedger
	Reputation *ReputationEngine
	Services   *ServiceCatalog
}

// New 在 store 之上构造目录服务，空存储会写入初始管理员。
func New(ctx context.Context, store Store, opts ...Option) (*Directory, error) {
	if store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "directory store is nil")
	}
	cfg := settings{
		reporter: access.Reporter{Policy: access.ReportingOpen},
		emitter:  events.Nop{},
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.emitter == nil {
		cfg.emitter = events.Nop{}
	}

	err := store.Atomic(ctx, func(tx Tx) error {
		_, ok, err := tx.Admin()
		if err != nil || ok {
			return err
		}
		if cfg.admin == (common.Address{}) {
			return xerrors.New(xerrors.CodeInitializationFailure, "directory admin address is required for a new directory")
		}
		return tx.PutAdmin(cfg.admin)
	})
	if err != nil {
		return nil, err
	}

	c := &core{
		store:    store,
		reporter: cfg.reporter,
		emitter:  cfg.emitter,
		observer: cfg.observer,
		clock:    cfg.clock,
		log:      logger.Named("directory"),
	}
	return &Directory{
		Identities: &IdentityLedger{core: c},
		Reputation: &ReputationEngine{core: c},
		Services:   &ServiceCatalog{core: c},
	}, nil
}

func requireAgent(tx ReadTx, identity common.Address) (Agent, error) {
	a, ok, err := tx.Agent(identity)
	if err != nil {
		return Agent{}, err
	}
	if !ok {
		return Agent{}, xerrors.New(CodeAgentNotFound,
			"agent "+identity.Hex()+" is not registered",
			xerrors.WithMetadata("identity", identity.Hex()))
	}
	return a, nil
}
