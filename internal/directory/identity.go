package directory

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"AgentVault/internal/access"
	xerrors "AgentVault/internal/errors"
	"AgentVault/internal/events"
	"AgentVault/pkg/logger"
)

// IdentityLedger 负责代理的登记、资料与启用状态。
type IdentityLedger struct {
	*core
}

// Register 以 caller 的地址登记代理，初始信誉为 500 且处于启用状态。
func (l *IdentityLedger) Register(ctx context.Context, caller common.Address, metadata string) (agent Agent, err error) {
	defer l.observe("register_agent", &err)

	if caller == (common.Address{}) {
		return Agent{}, xerrors.New(xerrors.CodeInvalidArgument, "identity must be non-zero", xerrors.WithMetadata("field", "identity"))
	}
	err = l.store.Atomic(ctx, func(tx Tx) error {
		if _, exists, err := tx.Agent(caller); err != nil {
			return err
		} else if exists {
			return alreadyRegistered(caller)
		}
		if strings.TrimSpace(metadata) == "" {
			return ErrMetadataRequired
		}
		now := l.now()
		agent = Agent{
			Identity:     caller,
			Metadata:     metadata,
			Reputation:   InitialReputation,
			Active:       true,
			RegisteredAt: now,
			UpdatedAt:    now,
		}
		seq, err := tx.InsertAgent(agent)
		if err != nil {
			if xerrors.CodeOf(err) == CodeAlreadyRegistered {
				return alreadyRegistered(caller)
			}
			return err
		}
		agent.Seq = seq
		return nil
	})
	if err != nil {
		return Agent{}, err
	}

	logger.Audit().Info("agent registered", slog.String("identity", caller.Hex()), slog.Uint64("seq", agent.Seq))
	l.emit(ctx, events.New(events.KindAgentRegistered, caller.Hex(), map[string]string{
		"seq": strconv.FormatUint(agent.Seq, 10),
	}))
	return agent, nil
}

// UpdateMetadata 覆盖 caller 自己的资料，后写覆盖先写。
func (l *IdentityLedger) UpdateMetadata(ctx context.Context, caller common.Address, metadata string) (agent Agent, err error) {
	defer l.observe("update_metadata", &err)

	err = l.store.Atomic(ctx, func(tx Tx) error {
		current, err := requireAgent(tx, caller)
		if err != nil {
			return err
		}
		if strings.TrimSpace(metadata) == "" {
			return ErrMetadataRequired
		}
		current.Metadata = metadata
		current.UpdatedAt = l.now()
		agent = current
		return tx.UpdateAgent(current)
	})
	if err != nil {
		return Agent{}, err
	}

	logger.Audit().Info("agent metadata updated", slog.String("identity", caller.Hex()))
	l.emit(ctx, events.New(events.KindAgentMetadataUpdated, caller.Hex(), nil))
	return agent, nil
}

// SetActiveStatus 只允许代理修改自己的启用状态。
func (l *IdentityLedger) SetActiveStatus(ctx context.Context, caller, identity common.Address, active bool) (err error) {
	defer l.observe("set_active_status", &err)

	if err := access.RequireSelf(identity, caller); err != nil {
		return err
	}
	err = l.store.Atomic(ctx, func(tx Tx) error {
		current, err := requireAgent(tx, identity)
		if err != nil {
			return err
		}
		current.Active = active
		current.UpdatedAt = l.now()
		return tx.UpdateAgent(current)
	})
	if err != nil {
		return err
	}

	logger.Audit().Info("agent status changed", slog.String("identity", identity.Hex()), slog.Bool("active", active))
	l.emit(ctx, events.New(events.KindAgentStatusChanged, identity.Hex(), map[string]string{
		"active": strconv.FormatBool(active),
	}))
	return nil
}

// Get 返回代理资料。
func (l *IdentityLedger) Get(ctx context.Context, identity common.Address) (Agent, error) {
	var out Agent
	err := l.store.View(ctx, func(tx ReadTx) error {
		a, err := requireAgent(tx, identity)
		out = a
		return err
	})
	return out, err
}

// All 按登记顺序返回全部代理地址的快照。
func (l *IdentityLedger) All(ctx context.Context) ([]common.Address, error) {
	return l.identities(ctx, false)
}

// Active 按登记顺序返回启用中的代理地址。
func (l *IdentityLedger) Active(ctx context.Context) ([]common.Address, error) {
	return l.identities(ctx, true)
}

func (l *IdentityLedger) identities(ctx context.Context, activeOnly bool) ([]common.Address, error) {
	agents, err := l.Page(ctx, WithActiveOnly(activeOnly))
	if err != nil {
		return nil, err
	}
	out := make([]common.Address, 0, len(agents))
	for _, a := range agents {
		out = append(out, a.Identity)
	}
	return out, nil
}

// Page 分页列出代理。
func (l *IdentityLedger) Page(ctx context.Context, opts ...ListOption) ([]Agent, error) {
	options := buildListOptions(opts)
	var out []Agent
	err := l.store.View(ctx, func(tx ReadTx) error {
		agents, err := tx.Agents(options.query())
		out = agents
		return err
	})
	return out, err
}

// PageWithTotal 在同一快照中返回一页代理以及满足过滤条件的代理总数。
func (l *IdentityLedger) PageWithTotal(ctx context.Context, opts ...ListOption) ([]Agent, uint64, error) {
	options := buildListOptions(opts)
	var (
		agents []Agent
		total  uint64
	)
	err := l.store.View(ctx, func(tx ReadTx) error {
		var err error
		if agents, err = tx.Agents(options.query()); err != nil {
			return err
		}
		total, err = tx.AgentCount(options.ActiveOnly)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return agents, total, nil
}

// Count 返回代理数量。
func (l *IdentityLedger) Count(ctx context.Context, activeOnly bool) (uint64, error) {
	var out uint64
	err := l.store.View(ctx, func(tx ReadTx) error {
		n, err := tx.AgentCount(activeOnly)
		out = n
		return err
	})
	return out, err
}

// Admin 返回当前目录管理员。
func (l *IdentityLedger) Admin(ctx context.Context) (common.Address, error) {
	var out common.Address
	err := l.store.View(ctx, func(tx ReadTx) error {
		admin, _, err := tx.Admin()
		out = admin
		return err
	})
	return out, err
}

// TransferAdmin 将目录管理员角色转移给 newAdmin。
func (l *IdentityLedger) TransferAdmin(ctx context.Context, caller, newAdmin common.Address) (err error) {
	defer l.observe("transfer_admin", &err)

	err = l.store.Atomic(ctx, func(tx Tx) error {
		admin, _, err := tx.Admin()
		if err != nil {
			return err
		}
		if err := access.Require(access.RoleDirectoryAdmin, admin, caller); err != nil {
			return err
		}
		if newAdmin == (common.Address{}) {
			return xerrors.New(xerrors.CodeInvalidArgument, "new admin must be non-zero", xerrors.WithMetadata("field", "admin"))
		}
		return tx.PutAdmin(newAdmin)
	})
	if err != nil {
		return err
	}

	logger.Audit().Info("directory admin transferred", slog.String("from", caller.Hex()), slog.String("to", newAdmin.Hex()))
	l.emit(ctx, events.New(events.KindAdminTransferred, "directory", map[string]string{
		"previous": caller.Hex(),
		"current":  newAdmin.Hex(),
	}))
	return nil
}

func alreadyRegistered(identity common.Address) error {
	return xerrors.New(CodeAlreadyRegistered,
		"agent "+identity.Hex()+" already registered",
		xerrors.WithMetadata("identity", identity.Hex()))
}
