package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"AgentVault/internal/access"
	xerrors "AgentVault/internal/errors"
	"AgentVault/internal/events"
	"AgentVault/pkg/logger"
)

// ExecutionController 是唯一能够移动资金的特权入口。
type ExecutionController struct {
	*core
}

// VerifyAndExecute 校验决策与额度后支付给 payee，并追加交易记录。
// 所有写入在同一个原子区间内完成，任何一步失败都会整体回滚。
func (e *ExecutionController) VerifyAndExecute(ctx context.Context, caller common.Address, req ExecuteRequest) (receipt Receipt, err error) {
	defer e.observe("verify_and_execute", &err)

	amount := amountOrZero(req.Amount)
	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = DefaultCategory
	}

	err = e.store.Atomic(ctx, func(tx Tx) error {
		ctrl, err := control(tx)
		if err != nil {
			return err
		}
		if err := access.Require(access.RoleController, ctrl.Controller, caller); err != nil {
			return err
		}
		if ctrl.Paused {
			return ErrPaused
		}
		if req.Payee == (common.Address{}) {
			return xerrors.New(xerrors.CodeInvalidArgument, "payee must be non-zero", xerrors.WithMetadata("field", "payee"))
		}
		if utf8.RuneCountInString(category) > MaxCategoryLength {
			return xerrors.New(xerrors.CodeInvalidArgument,
				fmt.Sprintf("category exceeds %d characters", MaxCategoryLength),
				xerrors.WithMetadata("field", "category"))
		}
		decision, ok, err := tx.Decision(req.Fingerprint)
		if err != nil {
			return err
		}
		if !ok {
			return notFound(req.Fingerprint)
		}
		if decision.Executed {
			return xerrors.New(CodeAlreadyExecuted,
				fmt.Sprintf("decision %s already executed", req.Fingerprint.Hex()),
				xerrors.WithMetadata("fingerprint", req.Fingerprint.Hex()))
		}

		limit, err := limitFor(tx, req.Asset)
		if err != nil {
			return err
		}
		var next uint256.Int
		if _, overflow := next.AddOverflow(&limit.Spent, amount); overflow || next.Gt(&limit.Limit) {
			return xerrors.New(CodeLimitExceeded,
				fmt.Sprintf("spending %s would exceed limit %s (spent %s)", amount.Dec(), limit.Limit.Dec(), limit.Spent.Dec()),
				xerrors.WithMetadata("asset", req.Asset.Hex()),
				xerrors.WithMetadata("limit", limit.Limit.Dec()),
				xerrors.WithMetadata("spent", limit.Spent.Dec()))
		}
		balance, err := tx.Balance(req.Asset)
		if err != nil {
			return err
		}
		if balance.Lt(amount) {
			return insufficient(req.Asset, &balance, amount)
		}

		now := e.now()
		decision.Executed = true
		decision.ExecutedAmount = *amount
		decision.ExecutedPayee = req.Payee
		decision.ExecutedAsset = req.Asset
		decision.ExecutedAt = now
		if err := tx.UpdateDecision(decision); err != nil {
			return err
		}

		limit.Spent = saturatingAdd(&limit.Spent, amount)
		if err := tx.PutSpendingLimit(limit); err != nil {
			return err
		}

		record := Record{
			Destination: req.Payee,
			Asset:       req.Asset,
			Amount:      *amount,
			Category:    category,
			Success:     true,
			Fingerprint: req.Fingerprint,
			Timestamp:   now,
		}
		seq, err := tx.AppendRecord(record)
		if err != nil {
			return err
		}
		record.Sequence = seq

		if err := transfer(tx, req.Asset, req.Payee, &balance, amount); err != nil {
			return err
		}
		receipt = Receipt{Decision: decision, Record: record, Remaining: limit.Remaining()}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}

	fp := req.Fingerprint.Hex()
	logger.Audit().Info("decision executed",
		slog.String("fingerprint", fp),
		slog.String("payee", req.Payee.Hex()),
		slog.String("asset", req.Asset.Hex()),
		slog.String("amount", amount.Dec()),
		slog.Uint64("sequence", receipt.Record.Sequence))
	e.emit(ctx,
		events.New(events.KindDecisionExecuted, fp, map[string]string{
			"payee":  req.Payee.Hex(),
			"asset":  req.Asset.Hex(),
			"amount": amount.Dec(),
		}),
		events.New(events.KindTransactionRecorded, strconv.FormatUint(receipt.Record.Sequence, 10), map[string]string{
			"fingerprint": fp,
			"destination": req.Payee.Hex(),
			"asset":       req.Asset.Hex(),
			"amount":      amount.Dec(),
			"category":    category,
		}))
	return receipt, nil
}

// transfer 从资金池扣款并记入收款方。
func transfer(tx Tx, asset, payee common.Address, balance, amount *uint256.Int) error {
	var remaining uint256.Int
	remaining.Sub(balance, amount)
	if err := tx.PutBalance(asset, remaining); err != nil {
		return err
	}
	paid, err := tx.Payout(payee, asset)
	if err != nil {
		return err
	}
	return tx.PutPayout(payee, asset, saturatingAdd(&paid, amount))
}

// SetPaused 暂停或恢复决策登记与执行。
func (e *ExecutionController) SetPaused(ctx context.Context, caller common.Address, paused bool) (err error) {
	defer e.observe("set_paused", &err)

	err = e.store.Atomic(ctx, func(tx Tx) error {
		ctrl, err := control(tx)
		if err != nil {
			return err
		}
		if err := access.Require(access.RoleController, ctrl.Controller, caller); err != nil {
			return err
		}
		ctrl.Paused = paused
		return tx.PutControl(ctrl)
	})
	if err != nil {
		return err
	}

	kind := events.KindVaultUnpaused
	if paused {
		kind = events.KindVaultPaused
	}
	logger.Audit().Info("vault pause changed", slog.Bool("paused", paused), slog.String("caller", caller.Hex()))
	e.emit(ctx, events.New(kind, "vault", map[string]string{"caller": caller.Hex()}))
	return nil
}

// Withdraw 将资金从资金池提取给控制者，不影响额度计数与交易历史。
func (e *ExecutionController) Withdraw(ctx context.Context, caller, asset common.Address, amount *uint256.Int) (remaining uint256.Int, err error) {
	defer e.observe("withdraw", &err)

	amount = amountOrZero(amount)
	err = e.store.Atomic(ctx, func(tx Tx) error {
		ctrl, err := control(tx)
		if err != nil {
			return err
		}
		if err := access.Require(access.RoleController, ctrl.Controller, caller); err != nil {
			return err
		}
		balance, err := tx.Balance(asset)
		if err != nil {
			return err
		}
		if balance.Lt(amount) {
			return insufficient(asset, &balance, amount)
		}
		if err := transfer(tx, asset, caller, &balance, amount); err != nil {
			return err
		}
		remaining.Sub(&balance, amount)
		return nil
	})
	if err != nil {
		return uint256.Int{}, err
	}

	logger.Audit().Info("vault withdrawn",
		slog.String("asset", asset.Hex()),
		slog.String("amount", amount.Dec()),
		slog.String("to", caller.Hex()))
	e.emit(ctx, events.New(events.KindVaultWithdrawn, asset.Hex(), map[string]string{
		"amount":    amount.Dec(),
		"to":        caller.Hex(),
		"remaining": remaining.Dec(),
	}))
	return remaining, nil
}

// Deposit 为资金池注资，任何调用方都可以注资。
func (e *ExecutionController) Deposit(ctx context.Context, from, asset common.Address, amount *uint256.Int) (balance uint256.Int, err error) {
	defer e.observe("deposit", &err)

	amount = amountOrZero(amount)
	err = e.store.Atomic(ctx, func(tx Tx) error {
		current, err := tx.Balance(asset)
		if err != nil {
			return err
		}
		balance = saturatingAdd(&current, amount)
		return tx.PutBalance(asset, balance)
	})
	if err != nil {
		return uint256.Int{}, err
	}

	logger.Audit().Info("vault deposited",
		slog.String("asset", asset.Hex()),
		slog.String("amount", amount.Dec()),
		slog.String("from", from.Hex()))
	e.emit(ctx, events.New(events.KindVaultDeposited, asset.Hex(), map[string]string{
		"amount":  amount.Dec(),
		"from":    from.Hex(),
		"balance": balance.Dec(),
	}))
	return balance, nil
}

// TransferOwnership 将控制者角色转移给 newController。
func (e *ExecutionController) TransferOwnership(ctx context.Context, caller, newController common.Address) (err error) {
	defer e.observe("transfer_ownership", &err)

	err = e.store.Atomic(ctx, func(tx Tx) error {
		ctrl, err := control(tx)
		if err != nil {
			return err
		}
		if err := access.Require(access.RoleController, ctrl.Controller, caller); err != nil {
			return err
		}
		if newController == (common.Address{}) {
			return xerrors.New(xerrors.CodeInvalidArgument, "new controller must be non-zero", xerrors.WithMetadata("field", "controller"))
		}
		ctrl.Controller = newController
		return tx.PutControl(ctrl)
	})
	if err != nil {
		return err
	}

	logger.Audit().Info("ownership transferred",
		slog.String("from", caller.Hex()),
		slog.String("to", newController.Hex()))
	e.emit(ctx, events.New(events.KindOwnershipTransferred, "vault", map[string]string{
		"previous": caller.Hex(),
		"current":  newController.Hex(),
	}))
	return nil
}

// Controller 返回当前控制者。
func (e *ExecutionController) Controller(ctx context.Context) (common.Address, error) {
	var out common.Address
	err := e.store.View(ctx, func(tx ReadTx) error {
		ctrl, err := control(tx)
		out = ctrl.Controller
		return err
	})
	return out, err
}

// Holder 实现 access.Authority，返回当前控制者。
func (e *ExecutionController) Holder(ctx context.Context) (common.Address, error) {
	return e.Controller(ctx)
}

// Paused 返回金库是否处于暂停状态。
func (e *ExecutionController) Paused(ctx context.Context) (bool, error) {
	var out bool
	err := e.store.View(ctx, func(tx ReadTx) error {
		ctrl, err := control(tx)
		out = ctrl.Paused
		return err
	})
	return out, err
}

// Balance 返回资金池中某资产的余额。
func (e *ExecutionController) Balance(ctx context.Context, asset common.Address) (uint256.Int, error) {
	var out uint256.Int
	err := e.store.View(ctx, func(tx ReadTx) error {
		b, err := tx.Balance(asset)
		out = b
		return err
	})
	return out, err
}

// Payouts 返回累计支付给 payee 的金额。
func (e *ExecutionController) Payouts(ctx context.Context, payee, asset common.Address) (uint256.Int, error) {
	var out uint256.Int
	err := e.store.View(ctx, func(tx ReadTx) error {
		p, err := tx.Payout(payee, asset)
		out = p
		return err
	})
	return out, err
}

// Status 在同一快照中读取控制者、暂停状态、原生余额与记录数。
func (e *ExecutionController) Status(ctx context.Context) (VaultStatus, error) {
	var out VaultStatus
	err := e.store.View(ctx, func(tx ReadTx) error {
		ctrl, err := control(tx)
		if err != nil {
			return err
		}
		balance, err := tx.Balance(NativeAsset)
		if err != nil {
			return err
		}
		count, err := tx.RecordCount()
		if err != nil {
			return err
		}
		out = VaultStatus{Controller: ctrl.Controller, Paused: ctrl.Paused, NativeBalance: balance, Records: count}
		return nil
	})
	return out, err
}

// History 按序号返回交易历史。
func (e *ExecutionController) History(ctx context.Context, opts ...ListOption) ([]Record, error) {
	options := buildListOptions(opts)
	var out []Record
	err := e.store.View(ctx, func(tx ReadTx) error {
		records, err := tx.Records(options.query())
		out = records
		return err
	})
	return out, err
}

// HistoryPage 在同一快照中返回一页交易历史与记录总数。
func (e *ExecutionController) HistoryPage(ctx context.Context, opts ...ListOption) ([]Record, uint64, error) {
	options := buildListOptions(opts)
	var (
		records []Record
		total   uint64
	)
	err := e.store.View(ctx, func(tx ReadTx) error {
		var err error
		if records, err = tx.Records(options.query()); err != nil {
			return err
		}
		total, err = tx.RecordCount()
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// HistoryCount 返回交易记录总数。
func (e *ExecutionController) HistoryCount(ctx context.Context) (uint64, error) {
	var out uint64
	err := e.store.View(ctx, func(tx ReadTx) error {
		n, err := tx.RecordCount()
		out = n
		return err
	})
	return out, err
}

func insufficient(asset common.Address, balance, amount *uint256.Int) error {
	return xerrors.New(CodeInsufficientBalance,
		fmt.Sprintf("balance %s is lower than %s", balance.Dec(), amount.Dec()),
		xerrors.WithMetadata("asset", asset.Hex()),
		xerrors.WithMetadata("balance", balance.Dec()))
}

var _ access.Authority = (*ExecutionController)(nil)
