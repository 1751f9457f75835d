package sqlstore

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"AgentVault/internal/ledger"
)

// LedgerStore 实现 ledger.Store。
type LedgerStore struct {
	db *DB
}

// Atomic 实现 ledger.Store 接口。
func (s *LedgerStore) Atomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return s.db.atomic(ctx, func(tx *sql.Tx) error {
		return fn(&ledgerTx{ctx: ctx, tx: tx, dialect: s.db.dialect})
	})
}

// View 实现 ledger.Store 接口。
func (s *LedgerStore) View(ctx context.Context, fn func(tx ledger.ReadTx) error) error {
	return s.db.view(ctx, func(tx *sql.Tx) error {
		return fn(&ledgerTx{ctx: ctx, tx: tx, dialect: s.db.dialect})
	})
}

// Close 不关闭共享连接池，连接池由 DB.Close 释放。
func (s *LedgerStore) Close() error {
	return nil
}

type ledgerTx struct {
	ctx     context.Context
	tx      *sql.Tx
	dialect Dialect
}

func (t *ledgerTx) Decision(fingerprint common.Hash) (ledger.Decision, bool, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT proof_pointer, logger, executed, executed_amount, executed_payee, executed_asset, created_at, executed_at
FROM decisions WHERE fingerprint = ?`, fingerprint.Hex())

	d := ledger.Decision{Fingerprint: fingerprint, Logged: true}
	var (
		loggerAddr, amount, payee, asset string
		executed, createdAt, executedAt  int64
	)
	if err := row.Scan(&d.ProofPointer, &loggerAddr, &executed, &amount, &payee, &asset, &createdAt, &executedAt); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return ledger.Decision{}, false, nil
		}
		return ledger.Decision{}, false, storageErr("查询决策失败", err)
	}
	value, err := decodeAmount(amount)
	if err != nil {
		return ledger.Decision{}, false, err
	}
	d.Logger = decodeAddress(loggerAddr)
	d.Executed = executed != 0
	d.ExecutedAmount = value
	d.ExecutedPayee = decodeAddress(payee)
	d.ExecutedAsset = decodeAddress(asset)
	d.CreatedAt = decodeTime(createdAt)
	d.ExecutedAt = decodeTime(executedAt)
	return d, true, nil
}

func (t *ledgerTx) SpendingLimit(asset common.Address) (ledger.SpendingLimit, bool, error) {
	var limitText, spentText string
	err := t.tx.QueryRowContext(t.ctx, `SELECT limit_amount, spent_amount FROM spending_limits WHERE asset = ?`, encodeAddress(asset)).
		Scan(&limitText, &spentText)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return ledger.SpendingLimit{}, false, nil
		}
		return ledger.SpendingLimit{}, false, storageErr("查询额度失败", err)
	}
	limit, err := decodeAmount(limitText)
	if err != nil {
		return ledger.SpendingLimit{}, false, err
	}
	spent, err := decodeAmount(spentText)
	if err != nil {
		return ledger.SpendingLimit{}, false, err
	}
	return ledger.SpendingLimit{Asset: asset, Limit: limit, Spent: spent}, true, nil
}

func (t *ledgerTx) Balance(asset common.Address) (uint256.Int, error) {
	return t.amount(`SELECT amount FROM vault_balances WHERE asset = ?`, encodeAddress(asset))
}

func (t *ledgerTx) Payout(payee, asset common.Address) (uint256.Int, error) {
	return t.amount(`SELECT amount FROM payouts WHERE payee = ? AND asset = ?`, encodeAddress(payee), encodeAddress(asset))
}

func (t *ledgerTx) amount(query string, args ...any) (uint256.Int, error) {
	var text string
	if err := t.tx.QueryRowContext(t.ctx, query, args...).Scan(&text); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return uint256.Int{}, nil
		}
		return uint256.Int{}, storageErr("查询余额失败", err)
	}
	return decodeAmount(text)
}

func (t *ledgerTx) Control() (ledger.Control, bool, error) {
	var (
		controller string
		paused     int64
	)
	err := t.tx.QueryRowContext(t.ctx, `SELECT controller, paused FROM vault_control WHERE id = 1`).Scan(&controller, &paused)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return ledger.Control{}, false, nil
		}
		return ledger.Control{}, false, storageErr("查询金库控制状态失败", err)
	}
	return ledger.Control{Controller: decodeAddress(controller), Paused: paused != 0}, true, nil
}

func (t *ledgerTx) Records(q ledger.RecordQuery) ([]ledger.Record, error) {
	order := " ORDER BY sequence ASC"
	if q.Descending {
		order = " ORDER BY sequence DESC"
	}
	rows, err := t.tx.QueryContext(t.ctx, `SELECT sequence, destination, asset, amount, category, success, fingerprint, recorded_at
FROM transactions`+order+t.dialect.limitClause(q.Limit, q.Offset))
	if err != nil {
		return nil, storageErr("查询交易历史失败", err)
	}
	defer rows.Close()

	records := make([]ledger.Record, 0)
	for rows.Next() {
		var (
			r                              ledger.Record
			seq, success, recordedAt       int64
			destination, asset, amount, fp string
		)
		if err := rows.Scan(&seq, &destination, &asset, &amount, &r.Category, &success, &fp, &recordedAt); err != nil {
			return nil, storageErr("解析交易历史失败", err)
		}
		value, err := decodeAmount(amount)
		if err != nil {
			return nil, err
		}
		r.Sequence = uint64(seq)
		r.Destination = decodeAddress(destination)
		r.Asset = decodeAddress(asset)
		r.Amount = value
		r.Success = success != 0
		r.Fingerprint = common.HexToHash(fp)
		r.Timestamp = decodeTime(recordedAt)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("遍历交易历史失败", err)
	}
	return records, nil
}

func (t *ledgerTx) RecordCount() (uint64, error) {
	var n int64
	if err := t.tx.QueryRowContext(t.ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, storageErr("统计交易历史失败", err)
	}
	return uint64(n), nil
}

func (t *ledgerTx) InsertDecision(d ledger.Decision) error {
	_, err := t.tx.ExecContext(t.ctx, `INSERT INTO decisions (fingerprint, proof_pointer, logger, executed, executed_amount, executed_payee, executed_asset, created_at, executed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Fingerprint.Hex(), d.ProofPointer, encodeAddress(d.Logger), encodeBool(d.Executed),
		encodeAmount(&d.ExecutedAmount), encodeAddress(d.ExecutedPayee), encodeAddress(d.ExecutedAsset),
		encodeTime(d.CreatedAt), encodeTime(d.ExecutedAt))
	if err != nil {
		if isDuplicate(err) {
			return ledger.ErrDuplicateDecision
		}
		return storageErr("写入决策失败", err)
	}
	return nil
}

func (t *ledgerTx) UpdateDecision(d ledger.Decision) error {
	_, err := t.tx.ExecContext(t.ctx, `UPDATE decisions SET executed = ?, executed_amount = ?, executed_payee = ?, executed_asset = ?, executed_at = ?
WHERE fingerprint = ?`,
		encodeBool(d.Executed), encodeAmount(&d.ExecutedAmount), encodeAddress(d.ExecutedPayee),
		encodeAddress(d.ExecutedAsset), encodeTime(d.ExecutedAt), d.Fingerprint.Hex())
	if err != nil {
		return storageErr("更新决策失败", err)
	}
	return nil
}

func (t *ledgerTx) PutSpendingLimit(l ledger.SpendingLimit) error {
	query := t.dialect.upsert("spending_limits", []string{"asset"}, []string{"limit_amount", "spent_amount"})
	if _, err := t.tx.ExecContext(t.ctx, query, encodeAddress(l.Asset), encodeAmount(&l.Limit), encodeAmount(&l.Spent)); err != nil {
		return storageErr("写入额度失败", err)
	}
	return nil
}

func (t *ledgerTx) AppendRecord(r ledger.Record) (uint64, error) {
	var last int64
	if err := t.tx.QueryRowContext(t.ctx, `SELECT COALESCE(MAX(sequence), 0) FROM transactions`).Scan(&last); err != nil {
		return 0, storageErr("查询交易序号失败", err)
	}
	seq := uint64(last) + 1
	_, err := t.tx.ExecContext(t.ctx, `INSERT INTO transactions (sequence, destination, asset, amount, category, success, fingerprint, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(seq), encodeAddress(r.Destination), encodeAddress(r.Asset), encodeAmount(&r.Amount), r.Category,
		encodeBool(r.Success), r.Fingerprint.Hex(), encodeTime(r.Timestamp))
	if err != nil {
		if isDuplicate(err) {
			return 0, ledger.ErrAlreadyExecuted
		}
		return 0, storageErr("写入交易记录失败", err)
	}
	return seq, nil
}

func (t *ledgerTx) PutBalance(asset common.Address, amount uint256.Int) error {
	query := t.dialect.upsert("vault_balances", []string{"asset"}, []string{"amount"})
	if _, err := t.tx.ExecContext(t.ctx, query, encodeAddress(asset), encodeAmount(&amount)); err != nil {
		return storageErr("写入余额失败", err)
	}
	return nil
}

func (t *ledgerTx) PutPayout(payee, asset common.Address, amount uint256.Int) error {
	query := t.dialect.upsert("payouts", []string{"payee", "asset"}, []string{"amount"})
	if _, err := t.tx.ExecContext(t.ctx, query, encodeAddress(payee), encodeAddress(asset), encodeAmount(&amount)); err != nil {
		return storageErr("写入支付记录失败", err)
	}
	return nil
}

func (t *ledgerTx) PutControl(c ledger.Control) error {
	query := t.dialect.upsert("vault_control", []string{"id"}, []string{"controller", "paused", "updated_at"})
	if _, err := t.tx.ExecContext(t.ctx, query, 1, encodeAddress(c.Controller), encodeBool(c.Paused), time.Now().UnixMilli()); err != nil {
		return storageErr("写入金库控制状态失败", err)
	}
	return nil
}

var _ ledger.Store = (*LedgerStore)(nil)
