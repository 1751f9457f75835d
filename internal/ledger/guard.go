package ledger

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"AgentVault/internal/access"
	"AgentVault/internal/events"
	"AgentVault/pkg/logger"
)

// SpendingGuard 维护每种资产的额度与累计支出。
type SpendingGuard struct {
	*core
}

// SetLimit 覆盖资产额度，不会回溯校验已有支出。
func (g *SpendingGuard) SetLimit(ctx context.Context, caller, asset common.Address, limit *uint256.Int) (updated SpendingLimit, err error) {
	defer g.observe("set_limit", &err)

	limit = amountOrZero(limit)
	err = g.store.Atomic(ctx, func(tx Tx) error {
		ctrl, err := control(tx)
		if err != nil {
			return err
		}
		if err := access.Require(access.RoleController, ctrl.Controller, caller); err != nil {
			return err
		}
		current, err := limitFor(tx, asset)
		if err != nil {
			return err
		}
		current.Limit = *limit
		updated = current
		return tx.PutSpendingLimit(current)
	})
	if err != nil {
		return SpendingLimit{}, err
	}

	logger.Audit().Info("spending limit updated",
		slog.String("asset", asset.Hex()),
		slog.String("limit", limit.Dec()),
		slog.String("caller", caller.Hex()))
	g.emit(ctx, events.New(events.KindLimitUpdated, asset.Hex(), map[string]string{
		"limit": limit.Dec(),
		"spent": updated.Spent.Dec(),
	}))
	return updated, nil
}

// ResetSpent 清零累计支出，开启新的支出窗口。
func (g *SpendingGuard) ResetSpent(ctx context.Context, caller, asset common.Address) (err error) {
	defer g.observe("reset_spent", &err)

	var previous uint256.Int
	err = g.store.Atomic(ctx, func(tx Tx) error {
		ctrl, err := control(tx)
		if err != nil {
			return err
		}
		if err := access.Require(access.RoleController, ctrl.Controller, caller); err != nil {
			return err
		}
		current, err := limitFor(tx, asset)
		if err != nil {
			return err
		}
		previous = current.Spent
		current.Spent.Clear()
		return tx.PutSpendingLimit(current)
	})
	if err != nil {
		return err
	}

	logger.Audit().Info("spent amount reset",
		slog.String("asset", asset.Hex()),
		slog.String("previous", previous.Dec()),
		slog.String("caller", caller.Hex()))
	g.emit(ctx, events.New(events.KindSpentReset, asset.Hex(), map[string]string{
		"previous": previous.Dec(),
	}))
	return nil
}

// Limit 返回资产的额度状态，未配置的代币额度为零。
func (g *SpendingGuard) Limit(ctx context.Context, asset common.Address) (SpendingLimit, error) {
	var out SpendingLimit
	err := g.store.View(ctx, func(tx ReadTx) error {
		l, err := limitFor(tx, asset)
		out = l
		return err
	})
	return out, err
}
